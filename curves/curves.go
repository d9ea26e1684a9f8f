// curves computes the smoothed series drawn in learning-curve plots.
package curves

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MovingAverage returns the mean of every full window of data, i.e. a 'valid'
// convolution with a uniform kernel: len(data)-window+1 values, or none when the
// data is shorter than the window. A non-positive window returns nil.
func MovingAverage(data []float64, window int) []float64 {
	if window <= 0 || len(data) < window {
		return nil
	}
	avgs := make([]float64, 0, len(data)-window+1)
	sum := floats.Sum(data[:window])
	avgs = append(avgs, sum/float64(window))
	for i := window; i < len(data); i++ {
		sum += data[i] - data[i-window]
		avgs = append(avgs, sum/float64(window))
	}
	return avgs
}

// MovingStd returns the population standard deviation of the same windows
// MovingAverage averages, so the two align index for index as a shaded band.
func MovingStd(data []float64, window int) []float64 {
	if window <= 0 || len(data) < window {
		return nil
	}
	stds := make([]float64, 0, len(data)-window+1)
	for end := window; end <= len(data); end++ {
		stds = append(stds, stat.PopStdDev(data[end-window:end], nil))
	}
	return stds
}

// Point is one (x, y) sample of a curve.
type Point struct {
	X, Y float64
}

// Series is a named curve, e.g. one agent's smoothed returns.
type Series struct {
	Name   string
	Points []Point
}

// Raw converts data to points indexed from zero.
func Raw(name string, data []float64) Series {
	pts := make([]Point, len(data))
	for i, y := range data {
		pts[i] = Point{X: float64(i), Y: y}
	}
	return Series{Name: name, Points: pts}
}

// Smoothed returns the moving average as a series whose x values are the index
// of each window's last sample, aligned with the raw series.
func Smoothed(name string, data []float64, window int) Series {
	avgs := MovingAverage(data, window)
	pts := make([]Point, len(avgs))
	for i, y := range avgs {
		pts[i] = Point{X: float64(i + window - 1), Y: y}
	}
	return Series{Name: name, Points: pts}
}

// Bounds returns the extent of every point across all series. ok is false if
// there are no points.
func Bounds(series ...Series) (minX, maxX, minY, maxY float64, ok bool) {
	for _, s := range series {
		for _, p := range s.Points {
			if !ok {
				minX, maxX, minY, maxY = p.X, p.X, p.Y, p.Y
				ok = true
				continue
			}
			minX, maxX = min(minX, p.X), max(maxX, p.X)
			minY, maxY = min(minY, p.Y), max(maxY, p.Y)
		}
	}
	return
}
