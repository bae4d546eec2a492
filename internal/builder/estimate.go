package builder

import (
	"math"
	"math/rand/v2"
	"sort"
)

// quantile returns the linearly interpolated q-quantile of sorted xs.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// bootstrapRange estimates [q(fpr/2), q(1-fpr/2)] as the mean of those
// quantiles over numSamples resamples with replacement.
func bootstrapRange(xs []float64, fpr float64, numSamples int, seed uint64) (float64, float64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	n := len(xs)
	sample := make([]float64, n)

	lowQ, highQ := fpr/2, 1-fpr/2
	var sumLow, sumHigh float64
	for s := 0; s < numSamples; s++ {
		for i := range sample {
			sample[i] = xs[rng.IntN(n)]
		}
		sort.Float64s(sample)
		sumLow += quantile(sample, lowQ)
		sumHigh += quantile(sample, highQ)
	}
	return sumLow / float64(numSamples), sumHigh / float64(numSamples)
}

// parametricRange is mean -/+ z*stddev with z the two-sided standard normal
// quantile for fpr, using the sample standard deviation.
func parametricRange(xs []float64, fpr float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(xs)-1))

	z := math.Sqrt2 * math.Erfinv(1-fpr)
	return mean - z*std, mean + z*std
}

func roundTo(x float64, decimals int) float64 {
	if decimals < 0 {
		return x
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

func allIntegral(xs []float64) bool {
	for _, x := range xs {
		if x != math.Trunc(x) {
			return false
		}
	}
	return true
}
