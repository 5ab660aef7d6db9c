// Package latency turns raw round-trip samples into an ICMP summary.
package latency

import (
	"math"

	"github.com/internet-performance-optimizer/internal/models"
)

// MaxRawSamples bounds the number of raw samples kept on a summary.
const MaxRawSamples = 100

// Summarize computes the ICMP summary of successful round-trip samples (ms)
// and the number of failed attempts. With no successful sample the result is
// the zero sentinel with 100% packet loss. Inputs are not sanitized: a
// negative or NaN sample, or a negative failure count, yields a summary that
// fails Validate.
func Summarize(samples []float64, failures int) models.ICMPResult {
	if len(samples) == 0 {
		return models.ICMPResult{
			Samples:    failures,
			PacketLoss: 100,
			RawSamples: []float64{},
		}
	}

	sorted := models.SortedCopy(samples)
	n := len(sorted)
	total := n + failures

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	// Sample standard deviation (n-1)
	var stddev float64
	if n >= 2 {
		var sq float64
		for _, v := range sorted {
			sq += (v - mean) * (v - mean)
		}
		stddev = math.Sqrt(sq / float64(n-1))
	}

	keep := n
	if keep > MaxRawSamples {
		keep = MaxRawSamples
	}
	raw := make([]float64, keep)
	copy(raw, samples[:keep])

	return models.ICMPResult{
		Samples:    total,
		P50:        models.Percentile(sorted, 0.50),
		P90:        models.Percentile(sorted, 0.90),
		P95:        models.Percentile(sorted, 0.95),
		P99:        models.Percentile(sorted, 0.99),
		Min:        sorted[0],
		Max:        sorted[n-1],
		Mean:       clampMean(mean, sorted[0], sorted[n-1]),
		StdDev:     stddev,
		PacketLoss: float64(failures) / float64(total) * 100,
		RawSamples: raw,
	}
}

// driftTolerance is the relative error a summed mean may carry.
const driftTolerance = 1e-9

// clampMean pulls a mean back onto [min, max] when floating point summation
// pushed it a rounding error past a bound. Anything further out is returned
// unchanged.
func clampMean(mean, lo, hi float64) float64 {
	if mean < lo && lo-mean <= driftTolerance*math.Abs(lo) {
		return lo
	}
	if mean > hi && mean-hi <= driftTolerance*math.Abs(hi) {
		return hi
	}
	return mean
}
