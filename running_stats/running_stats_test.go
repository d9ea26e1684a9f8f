package running_stats

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const tol = 1e-9

func TestRunningMeanStd(t *testing.T) {
	Convey("When a scalar accumulator is created", t, func() {
		rms := New(DefaultEpsilon, 1)

		Convey("It starts from a zero mean, unit variance, and epsilon count", func() {
			So(rms.Mean().AtVec(0), ShouldEqual, 0.0)
			So(rms.Var().AtVec(0), ShouldEqual, 1.0)
			So(rms.Count(), ShouldEqual, DefaultEpsilon)
		})

		Convey("Sequential batches match one combined batch", func() {
			So(rms.UpdateScalars([]float64{1, 2, 3}), ShouldBeNil)
			So(rms.UpdateScalars([]float64{4, 5, 6}), ShouldBeNil)

			once := New(DefaultEpsilon, 1)
			So(once.UpdateScalars([]float64{1, 2, 3, 4, 5, 6}), ShouldBeNil)

			So(rms.Mean().AtVec(0), ShouldAlmostEqual, once.Mean().AtVec(0), tol)
			So(rms.Var().AtVec(0), ShouldAlmostEqual, once.Var().AtVec(0), tol)
			So(rms.Count(), ShouldAlmostEqual, once.Count(), tol)
		})

		Convey("The estimate approaches the population moments of the stream", func() {
			data := []float64{1, 2, 3, 4, 5, 6}
			So(rms.UpdateScalars(data[:2]), ShouldBeNil)
			So(rms.UpdateScalars(data[2:5]), ShouldBeNil)
			So(rms.UpdateScalars(data[5:]), ShouldBeNil)

			mean, vari := stat.PopMeanVariance(data, nil)
			So(rms.Mean().AtVec(0), ShouldAlmostEqual, mean, 1e-3)
			So(rms.Var().AtVec(0), ShouldAlmostEqual, vari, 1e-3)
			So(rms.Std().AtVec(0), ShouldAlmostEqual, math.Sqrt(rms.Var().AtVec(0)), tol)
		})

		Convey("The count never decreases and the variance stays non-negative", func() {
			last := rms.Count()
			for i := 0; i < 20; i++ {
				x := float64(i * i)
				So(rms.UpdateScalars([]float64{x, -x, 0.5 * x}), ShouldBeNil)
				So(rms.Count(), ShouldBeGreaterThan, last)
				So(rms.Var().AtVec(0), ShouldBeGreaterThanOrEqualTo, 0.0)
				last = rms.Count()
			}
		})

		Convey("Degenerate batches are rejected and leave the state alone", func() {
			err := rms.UpdateFromMoments(mat.NewVecDense(1, []float64{3}), mat.NewVecDense(1, []float64{1}), 0)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			So(errors.Is(rms.UpdateScalars(nil), ErrInvalidInput), ShouldBeTrue)
			So(rms.Count(), ShouldEqual, DefaultEpsilon)
			So(rms.Mean().AtVec(0), ShouldEqual, 0.0)
		})

		Convey("Moments that would corrupt the variance are rejected and leave the state alone", func() {
			one := mat.NewVecDense(1, []float64{0})
			for _, bad := range []struct {
				mean, vari, count float64
			}{
				{0, -5, 10},
				{0, math.NaN(), 10},
				{0, math.Inf(1), 10},
				{math.NaN(), 1, 10},
				{math.Inf(-1), 1, 10},
				{0, 1, math.Inf(1)},
				{0, 1, math.NaN()},
			} {
				err := rms.UpdateFromMoments(
					mat.NewVecDense(1, []float64{bad.mean}),
					mat.NewVecDense(1, []float64{bad.vari}),
					bad.count)
				So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			}
			So(rms.Count(), ShouldEqual, DefaultEpsilon)
			So(rms.Mean().AtVec(0), ShouldEqual, 0.0)
			So(rms.Var().AtVec(0), ShouldEqual, 1.0)

			So(rms.UpdateFromMoments(one, mat.NewVecDense(1, []float64{0}), 10), ShouldBeNil)
			So(rms.Var().AtVec(0), ShouldBeGreaterThanOrEqualTo, 0.0)
		})
	})

	Convey("When a vector accumulator is updated", t, func() {
		rms := New(DefaultEpsilon, 2)

		Convey("Columns are tracked independently", func() {
			b1 := mat.NewDense(3, 2, []float64{
				1, 10,
				2, 20,
				3, 30,
			})
			b2 := mat.NewDense(2, 2, []float64{
				4, 40,
				5, 50,
			})
			So(rms.Update(b1), ShouldBeNil)
			So(rms.Update(b2), ShouldBeNil)

			all := New(DefaultEpsilon, 2)
			So(all.Update(mat.NewDense(5, 2, []float64{
				1, 10,
				2, 20,
				3, 30,
				4, 40,
				5, 50,
			})), ShouldBeNil)

			for i := 0; i < 2; i++ {
				So(rms.Mean().AtVec(i), ShouldAlmostEqual, all.Mean().AtVec(i), tol)
				So(rms.Var().AtVec(i), ShouldAlmostEqual, all.Var().AtVec(i), 1e-7)
			}
			So(rms.Mean().AtVec(1), ShouldAlmostEqual, 10*rms.Mean().AtVec(0), 1e-6)
		})

		Convey("Merging moments directly matches the closed form", func() {
			So(rms.UpdateFromMoments(
				mat.NewVecDense(2, []float64{2, -2}),
				mat.NewVecDense(2, []float64{0.5, 4}),
				4), ShouldBeNil)

			total := DefaultEpsilon + 4
			So(rms.Count(), ShouldAlmostEqual, total, tol)
			So(rms.Mean().AtVec(0), ShouldAlmostEqual, 2*4/total, tol)
			m2 := 1*DefaultEpsilon + 0.5*4 + 4*DefaultEpsilon*4/total
			So(rms.Var().AtVec(0), ShouldAlmostEqual, m2/total, tol)
		})

		Convey("Mismatched dimensions are rejected", func() {
			err := rms.Update(mat.NewDense(2, 3, nil))
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			_, err = rms.Normalize(mat.NewVecDense(1, nil), 1e-8)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Normalize centers and scales by the running moments", func() {
			So(rms.Update(mat.NewDense(4, 2, []float64{
				0, 0,
				2, 4,
				0, 0,
				2, 4,
			})), ShouldBeNil)
			mean := rms.Mean()
			x := mat.NewVecDense(2, []float64{mean.AtVec(0), mean.AtVec(1)})
			z, err := rms.Normalize(x, 1e-8)
			So(err, ShouldBeNil)
			So(z.AtVec(0), ShouldAlmostEqual, 0.0, tol)
			So(z.AtVec(1), ShouldAlmostEqual, 0.0, tol)
		})
	})
}
