package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected float64
	}{
		{"empty", []float64{}, 0},
		{"single", []float64{5}, 5},
		{"odd", []float64{3, 1, 2}, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"negatives", []float64{-5, -1, -3}, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, median(tt.input))
		})
	}
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	in := []float64{3, 1, 2}
	median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestSampleStd(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected float64
	}{
		{"empty", nil, 0},
		{"single", []float64{0.7}, 0},
		{"identical", []float64{2, 2, 2}, 0},
		{"pair", []float64{1, 3}, math.Sqrt2},
		{"known", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 2.138089935299395},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, sampleStd(tt.input), 1e-12)
		})
	}
}

func TestClip(t *testing.T) {
	assert.Equal(t, 0.0, clip(-1, 0, 100))
	assert.Equal(t, 100.0, clip(101, 0, 100))
	assert.Equal(t, 42.0, clip(42, 0, 100))
	assert.Equal(t, 0.0, clip(math.NaN(), 0, 100))
}
