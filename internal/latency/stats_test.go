package latency

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float64
		failures int
		wantN    int
		wantP50  float64
		wantP95  float64
		wantMin  float64
		wantMax  float64
		wantMean float64
		wantStd  float64
		wantLoss float64
	}{
		{
			name:     "four samples no loss",
			samples:  []float64{10, 20, 30, 40},
			wantN:    4,
			wantP50:  25,
			wantP95:  38.5,
			wantMin:  10,
			wantMax:  40,
			wantMean: 25,
			wantStd:  12.9099,
			wantLoss: 0,
		},
		{
			name:     "single sample",
			samples:  []float64{15},
			failures: 1,
			wantN:    2,
			wantP50:  15,
			wantP95:  15,
			wantMin:  15,
			wantMax:  15,
			wantMean: 15,
			wantStd:  0,
			wantLoss: 50,
		},
		{
			name:     "unsorted input with loss",
			samples:  []float64{30, 10, 20},
			failures: 1,
			wantN:    4,
			wantP50:  20,
			wantP95:  29,
			wantMin:  10,
			wantMax:  30,
			wantMean: 20,
			wantStd:  10,
			wantLoss: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.samples, tt.failures)

			if got.Samples != tt.wantN {
				t.Errorf("Samples: expected %d, got %d", tt.wantN, got.Samples)
			}
			checks := []struct {
				field     string
				got, want float64
			}{
				{"P50", got.P50, tt.wantP50},
				{"P95", got.P95, tt.wantP95},
				{"Min", got.Min, tt.wantMin},
				{"Max", got.Max, tt.wantMax},
				{"Mean", got.Mean, tt.wantMean},
				{"StdDev", got.StdDev, tt.wantStd},
				{"PacketLoss", got.PacketLoss, tt.wantLoss},
			}
			for _, c := range checks {
				if math.Abs(c.got-c.want) > 0.001 {
					t.Errorf("%s: expected %v, got %v", c.field, c.want, c.got)
				}
			}
			if err := got.Validate(); err != nil {
				t.Errorf("summary should validate: %v", err)
			}
		})
	}
}

func TestSummarizeNoSuccess(t *testing.T) {
	tests := []struct {
		name     string
		failures int
	}{
		{name: "all lost", failures: 10},
		{name: "nothing attempted", failures: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(nil, tt.failures)
			if got.Samples != tt.failures {
				t.Errorf("Samples: expected %d, got %d", tt.failures, got.Samples)
			}
			if got.PacketLoss != 100 {
				t.Errorf("PacketLoss: expected 100, got %v", got.PacketLoss)
			}
			if got.P50 != 0 || got.P99 != 0 || got.Min != 0 || got.Max != 0 || got.Mean != 0 || got.StdDev != 0 {
				t.Errorf("expected zeroed statistics, got %+v", got)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("sentinel should validate: %v", err)
			}
		})
	}
}

func TestSummarizeOrdering(t *testing.T) {
	samples := make([]float64, 0, 1000)
	for i := 0; i < 1000; i++ {
		samples = append(samples, float64((i*7919)%997)/10+1)
	}
	got := Summarize(samples, 3)

	if !(got.Min <= got.P50 && got.P50 <= got.P90 && got.P90 <= got.P95 && got.P95 <= got.P99 && got.P99 <= got.Max) {
		t.Errorf("percentile ordering violated: %+v", got)
	}
	if len(got.RawSamples) != MaxRawSamples {
		t.Errorf("RawSamples: expected %d entries, got %d", MaxRawSamples, len(got.RawSamples))
	}
	if got.RawSamples[0] != samples[0] || got.RawSamples[99] != samples[99] {
		t.Error("RawSamples should keep the first samples in input order")
	}
	if got.Samples != 1003 {
		t.Errorf("Samples: expected 1003, got %d", got.Samples)
	}
}

func TestSummarizeIdenticalSamples(t *testing.T) {
	samples := []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	got := Summarize(samples, 0)
	if got.Mean < got.Min || got.Mean > got.Max {
		t.Errorf("mean %v outside [%v, %v]", got.Mean, got.Min, got.Max)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("summary should validate: %v", err)
	}
}

func TestSummarizeMalformedInput(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float64
		failures int
	}{
		{name: "nan sample", samples: []float64{5, math.NaN(), 7}},
		{name: "negative sample", samples: []float64{5, -3, 7}},
		{name: "negative failures", samples: []float64{5, 6, 7}, failures: -1},
		{name: "negative failures without replies", failures: -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.samples, tt.failures)
			if err := got.Validate(); err == nil {
				t.Errorf("summary should fail validation: %+v", got)
			}
		})
	}
}

func TestClampMeanOnlyAbsorbsDrift(t *testing.T) {
	if got := clampMean(0.1-1e-17, 0.1, 0.1); got != 0.1 {
		t.Errorf("rounding drift not absorbed: %v", got)
	}
	if got := clampMean(5, 10, 20); got != 5 {
		t.Errorf("clampMean(5, 10, 20) = %v, want 5 unchanged", got)
	}
}

func TestSummarizeDoesNotMutateInput(t *testing.T) {
	samples := []float64{3, 1, 2}
	Summarize(samples, 0)
	if samples[0] != 3 || samples[1] != 1 || samples[2] != 2 {
		t.Errorf("input reordered: %v", samples)
	}
}
