// Package qmath holds the NaN-aware arithmetic that grade averaging is built
// on. NaN stands for "no grade" and is skipped rather than propagated.
package qmath

import "math"

// Numerics returns only the non-NaN elements of values.
func Numerics(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Sum adds up the numeric elements of values, NaN when there are none.
func Sum(values []float64) float64 {
	numerics := Numerics(values)
	if len(numerics) == 0 {
		return math.NaN()
	}
	total := 0.0
	for _, v := range numerics {
		total += v
	}
	return total
}

// Average is the mean of the numeric elements of values, NaN when there are none.
func Average(values []float64) float64 {
	numerics := Numerics(values)
	if len(numerics) == 0 {
		return math.NaN()
	}
	return Sum(numerics) / float64(len(numerics))
}

// WeightedAverage filters values and weights for NaN independently, then
// pairs them up positionally. Mismatched lengths or nothing to average
// result in NaN.
func WeightedAverage(values, weights []float64) float64 {
	numerics := Numerics(values)
	weightNums := Numerics(weights)
	if len(numerics) != len(weightNums) || len(numerics) == 0 {
		return math.NaN()
	}

	products := make([]float64, len(numerics))
	for i := range numerics {
		products[i] = numerics[i] * weightNums[i]
	}
	return Sum(products) / Sum(weightNums)
}

// Flatten concatenates nested slices.
func Flatten[T any](nested [][]T) []T {
	var out []T
	for _, inner := range nested {
		out = append(out, inner...)
	}
	return out
}

// Round rounds x to the given number of decimal places.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) {
		return x
	}
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}
