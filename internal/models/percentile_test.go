package models

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		p    float64
		want float64
	}{
		{
			name: "empty data",
			data: []float64{},
			p:    0.5,
			want: 0,
		},
		{
			name: "single value",
			data: []float64{42.0},
			p:    0.95,
			want: 42.0,
		},
		{
			name: "P50 of ten values",
			data: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			p:    0.50,
			want: 5.5, // k = 4.5, between 5 and 6
		},
		{
			name: "P95 of ten values",
			data: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			p:    0.95,
			want: 9.55, // k = 8.55, between 9 and 10
		},
		{
			name: "P95 of two values",
			data: []float64{10, 20},
			p:    0.95,
			want: 19.5,
		},
		{
			name: "P95 with duplicates",
			data: []float64{5, 5, 5, 5, 5, 10, 10, 10, 10, 10},
			p:    0.95,
			want: 10.0,
		},
		{
			name: "P99 of 100 values",
			data: make100Values(),
			p:    0.99,
			want: 98.01,
		},
		{
			name: "P0 is the minimum",
			data: []float64{3, 7, 9},
			p:    0,
			want: 3,
		},
		{
			name: "P100 is the maximum",
			data: []float64{3, 7, 9},
			p:    1,
			want: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.data, tt.p)
			if !floatEquals(got, tt.want, 0.0001) {
				t.Errorf("Percentile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculatePercentilesDoesNotMutateInput(t *testing.T) {
	data := []float64{9, 1, 5}
	p50, p95 := CalculatePercentiles(data)

	if p50 != 5 {
		t.Errorf("p50: expected 5, got %v", p50)
	}
	if !floatEquals(p95, 8.6, 0.0001) {
		t.Errorf("p95: expected 8.6, got %v", p95)
	}
	if data[0] != 9 || data[1] != 1 || data[2] != 5 {
		t.Errorf("input was reordered: %v", data)
	}
}

func TestCalculatePercentilesSingleSample(t *testing.T) {
	p50, p95 := CalculatePercentiles([]float64{12})
	if p50 != 12 || p95 != 12 {
		t.Errorf("CalculatePercentiles([12]) = (%v, %v), want (12, 12)", p50, p95)
	}
}

func TestPercentileMonotonic(t *testing.T) {
	sorted := SortedCopy([]float64{12.5, 3.1, 44, 8, 8, 19.2, 0.4, 27})
	prev := -1.0
	for _, p := range []float64{0, 0.1, 0.25, 0.5, 0.9, 0.95, 0.99, 1} {
		got := Percentile(sorted, p)
		if got < prev {
			t.Fatalf("percentile %v = %v is below previous %v", p, got, prev)
		}
		prev = got
	}
}

func make100Values() []float64 {
	values := make([]float64, 100)
	for i := 0; i < 100; i++ {
		values[i] = float64(i)
	}
	return values
}

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
