package qmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func TestNumerics(t *testing.T) {
	require.Equal(t, []float64{1, 3}, Numerics([]float64{1, nan, 3}))
	require.Empty(t, Numerics([]float64{nan, nan}))
	require.Empty(t, Numerics(nil))
}

func TestSumAndAverage(t *testing.T) {
	testCases := []struct {
		values  []float64
		sum     float64
		average float64
	}{
		{values: []float64{90, 80, 70}, sum: 240, average: 80},
		{values: []float64{90, nan, 70}, sum: 160, average: 80},
		{values: []float64{nan}, sum: nan, average: nan},
		{values: nil, sum: nan, average: nan},
	}

	for _, test := range testCases {
		sum := Sum(test.values)
		average := Average(test.values)
		if math.IsNaN(test.sum) {
			require.True(t, math.IsNaN(sum))
			require.True(t, math.IsNaN(average))
			continue
		}
		require.InDelta(t, test.sum, sum, 1e-9)
		require.InDelta(t, test.average, average, 1e-9)
	}
}

func TestAverageBounds(t *testing.T) {
	values := []float64{55, nan, 100, 72.5, 0, 88}
	avg := Average(values)
	require.GreaterOrEqual(t, avg, 0.0)
	require.LessOrEqual(t, avg, 100.0)
}

func TestWeightedAverage(t *testing.T) {
	require.InDelta(t, 85.0, WeightedAverage([]float64{80, 90}, []float64{1, 1}), 1e-9)
	require.InDelta(t, 87.5, WeightedAverage([]float64{80, 90}, []float64{1, 3}), 1e-9)

	// values and weights are filtered independently
	require.InDelta(t, 90.0, WeightedAverage([]float64{nan, 90}, []float64{2}), 1e-9)

	require.True(t, math.IsNaN(WeightedAverage([]float64{80, 90}, []float64{1})))
	require.True(t, math.IsNaN(WeightedAverage(nil, nil)))
	require.True(t, math.IsNaN(WeightedAverage([]float64{nan}, []float64{nan})))
}

func TestFlatten(t *testing.T) {
	require.Equal(t, []int{1, 2, 3}, Flatten([][]int{{1}, {}, {2, 3}}))
	require.Nil(t, Flatten[int](nil))
}

func TestRound(t *testing.T) {
	require.Equal(t, 3.1416, Round(math.Pi, 4))
	require.Equal(t, 89.0, Round(88.54, 0))
	require.True(t, math.IsNaN(Round(nan, 2)))
}
