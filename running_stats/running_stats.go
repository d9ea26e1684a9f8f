// running_stats tracks the mean and variance of a vector-valued stream without
// retaining it, merging each batch's moments into the running moments (Chan et al.).
// This is the usual reward/observation normalizer.
package running_stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultEpsilon is the initial pseudo-count, which keeps the first merge finite.
const DefaultEpsilon = 1e-4

// ErrInvalidInput is returned for malformed batches and for moments that would
// leave the running variance negative or non-finite.
var ErrInvalidInput error = errors.New("invalid input")

// RunningMeanStd holds per-dimension running moments. The variance starts at one
// and the count at epsilon, so early estimates are pulled toward a unit prior.
// A dimension of 1 stands in for a scalar stream.
type RunningMeanStd struct {
	mean  *mat.VecDense
	vari  *mat.VecDense
	count float64
}

// New returns an accumulator over dim-dimensional samples. A non-positive
// epsilon falls back to DefaultEpsilon.
func New(epsilon float64, dim int) *RunningMeanStd {
	if dim < 1 {
		dim = 1
	}
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	ones := make([]float64, dim)
	for i := range ones {
		ones[i] = 1
	}
	return &RunningMeanStd{
		mean:  mat.NewVecDense(dim, nil),
		vari:  mat.NewVecDense(dim, ones),
		count: epsilon,
	}
}

// Dim is the sample dimension.
func (rms *RunningMeanStd) Dim() int {
	return rms.mean.Len()
}

// Update merges a batch whose rows are samples and whose columns are dimensions.
func (rms *RunningMeanStd) Update(batch mat.Matrix) error {
	rows, cols := batch.Dims()
	if cols != rms.Dim() {
		return fmt.Errorf("%w: batch has %d columns, want %d", ErrInvalidInput, cols, rms.Dim())
	}
	if rows == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}

	batchMean := mat.NewVecDense(cols, nil)
	batchVar := mat.NewVecDense(cols, nil)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, batch)
		m, v := stat.PopMeanVariance(col, nil)
		batchMean.SetVec(j, m)
		// Rounding can leave a constant column a hair below zero.
		batchVar.SetVec(j, math.Max(v, 0))
	}
	return rms.UpdateFromMoments(batchMean, batchVar, float64(rows))
}

// UpdateScalars merges a batch of scalar samples into a one-dimensional accumulator.
func (rms *RunningMeanStd) UpdateScalars(xs []float64) error {
	if len(xs) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	return rms.Update(mat.NewVecDense(len(xs), append([]float64(nil), xs...)))
}

// UpdateFromMoments merges a batch summarized by its mean, population variance
// and sample count. A count that is not positive and finite, or a negative or
// non-finite moment, is rejected and the state is left unchanged.
func (rms *RunningMeanStd) UpdateFromMoments(batchMean, batchVar mat.Vector, batchCount float64) error {
	if !(batchCount > 0) || math.IsInf(batchCount, 1) {
		return fmt.Errorf("%w: batch count must be positive and finite, got %v", ErrInvalidInput, batchCount)
	}
	if batchMean.Len() != rms.Dim() || batchVar.Len() != rms.Dim() {
		return fmt.Errorf(
			"%w: moments have lengths %d and %d, want %d",
			ErrInvalidInput, batchMean.Len(), batchVar.Len(), rms.Dim())
	}
	for i := 0; i < rms.Dim(); i++ {
		m, v := batchMean.AtVec(i), batchVar.AtVec(i)
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("%w: batch mean[%d] is %v", ErrInvalidInput, i, m)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: batch variance[%d] must be finite and non-negative, got %v", ErrInvalidInput, i, v)
		}
	}

	totalCount := rms.count + batchCount
	newMean := mat.NewVecDense(rms.Dim(), nil)
	newVar := mat.NewVecDense(rms.Dim(), nil)
	for i := 0; i < rms.Dim(); i++ {
		mean, vari := rms.mean.AtVec(i), rms.vari.AtVec(i)
		delta := batchMean.AtVec(i) - mean

		m2 := vari*rms.count +
			batchVar.AtVec(i)*batchCount +
			delta*delta*rms.count*batchCount/totalCount

		newMean.SetVec(i, mean+delta*batchCount/totalCount)
		newVar.SetVec(i, m2/totalCount)
	}

	rms.mean = newMean
	rms.vari = newVar
	rms.count = totalCount
	return nil
}

// Mean returns a copy of the running mean.
func (rms *RunningMeanStd) Mean() *mat.VecDense {
	return mat.VecDenseCopyOf(rms.mean)
}

// Var returns a copy of the running population variance.
func (rms *RunningMeanStd) Var() *mat.VecDense {
	return mat.VecDenseCopyOf(rms.vari)
}

// Std returns the elementwise square root of the running variance.
func (rms *RunningMeanStd) Std() *mat.VecDense {
	std := mat.NewVecDense(rms.Dim(), nil)
	for i := 0; i < rms.Dim(); i++ {
		std.SetVec(i, math.Sqrt(rms.vari.AtVec(i)))
	}
	return std
}

// Count is the accumulated sample count, including the initial epsilon.
func (rms *RunningMeanStd) Count() float64 {
	return rms.count
}

// Normalize returns (x - mean) / sqrt(var + eps), elementwise.
func (rms *RunningMeanStd) Normalize(x mat.Vector, eps float64) (*mat.VecDense, error) {
	if x.Len() != rms.Dim() {
		return nil, fmt.Errorf("%w: sample has length %d, want %d", ErrInvalidInput, x.Len(), rms.Dim())
	}
	out := mat.NewVecDense(rms.Dim(), nil)
	for i := 0; i < rms.Dim(); i++ {
		out.SetVec(i, (x.AtVec(i)-rms.mean.AtVec(i))/math.Sqrt(rms.vari.AtVec(i)+eps))
	}
	return out, nil
}
