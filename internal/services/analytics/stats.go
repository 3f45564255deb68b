package analytics

import (
	"math"

	"CoinPulse/internal/domain/models"
)

// Mean returns the arithmetic mean of values, zero for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationStd returns the population standard deviation of values.
// Fewer than two elements carry no spread and return 0.
func PopulationStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sum2 float64
	for _, v := range values {
		d := v - mean
		sum2 += d * d
	}
	return math.Sqrt(sum2 / float64(len(values)))
}

// EnrichChart converts stored buckets into chart points, attaching the
// trailing-window close-price volatility. The window shrinks to the series
// length when the series is short; points before the first full window
// carry zero volatility.
func EnrichChart(points []models.HistoricalPoint, window int) []models.ChartPoint {
	if window <= 0 {
		window = 10
	}
	if window > len(points) {
		window = len(points)
	}

	out := make([]models.ChartPoint, len(points))
	for i, p := range points {
		out[i] = models.ChartPoint{
			Bucket: p.Bucket,
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		}
		if window > 0 && i >= window-1 {
			closes := make([]float64, window)
			for j := 0; j < window; j++ {
				closes[j] = points[i-window+1+j].Close
			}
			out[i].Volatility = PopulationStd(closes)
		}
	}
	return out
}

// volumeZThreshold flags a volume whose z-score against the trailing
// baseline exceeds this many standard deviations.
const volumeZThreshold = 3.0

// VolumeAnomaly reports whether the latest volume deviates abnormally from
// the trailing baseline.
func VolumeAnomaly(volumes []float64) bool {
	if len(volumes) < 3 {
		return false
	}
	baseline := volumes[:len(volumes)-1]
	mean := Mean(baseline)
	std := PopulationStd(baseline)
	if std == 0 {
		return false
	}
	z := (volumes[len(volumes)-1] - mean) / std
	return math.Abs(z) > volumeZThreshold
}
