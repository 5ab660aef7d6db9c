package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/internet-performance-optimizer/internal/models"
)

func init() {
	color.NoColor = true
}

func sample() *models.BenchmarkResult {
	return &models.BenchmarkResult{
		Timestamp:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Target:     "8.8.8.8",
		SystemInfo: map[string]any{"os": "linux", "interfaces": []any{"eth0"}},
		ICMP:       models.ICMPResult{Samples: 10, P50: 12.5, P95: 20, P99: 25, Min: 10, Max: 25, PacketLoss: 0, RawSamples: []float64{}},
		Bufferbloat: models.BufferbloatResult{
			IdleLatencyMs: 12.5, LoadedLatencyMs: 18.75, LatencyIncreaseMs: 6.25, LatencyIncreasePct: 50, Grade: models.GradeAPlus,
		},
		DNS: []models.DNSResult{{Resolver: "1.1.1.1", MedianMs: 9, P95Ms: 15, SuccessRate: 100, Samples: 20}},
		Metadata: models.Metadata{
			RunID: "run-1", PingCount: 10, BufferbloatPolicy: "fixed-factor-x1.5", BufferbloatEstimated: true,
			DegradedPhases: []string{"throughput"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"", FormatText, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sample(), FormatJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.BenchmarkResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.Bufferbloat.LatencyIncreaseMs != 6.25 {
		t.Errorf("decoded increase = %v", decoded.Bufferbloat.LatencyIncreaseMs)
	}
}

func TestEncodeYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sample(), FormatYAML); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"latency_increase_ms: 6.25", "bufferbloat_policy: fixed-factor-x1.5", "run_id: run-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml missing %q:\n%s", want, out)
		}
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
}

func TestEncodeRejectsText(t *testing.T) {
	if err := Encode(&bytes.Buffer{}, sample(), FormatText); err == nil {
		t.Error("expected error for text format")
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, sample())
	out := buf.String()
	for _, want := range []string{
		"Benchmark run-1",
		"Degraded:  throughput",
		"p50 12.50 ms",
		"grade A+",
		"estimated (fixed-factor-x1.5)",
		"1.1.1.1",
		"linux",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "interfaces") {
		t.Error("nested system info should not be printed")
	}
}

func TestPrintSummaryTotalLoss(t *testing.T) {
	r := sample()
	r.ICMP = models.ICMPResult{Samples: 10, PacketLoss: 100, RawSamples: []float64{}}
	var buf bytes.Buffer
	PrintSummary(&buf, r)
	if !strings.Contains(buf.String(), "no replies received") {
		t.Errorf("summary should flag total loss:\n%s", buf.String())
	}
}

func TestPrintRecommendations(t *testing.T) {
	var buf bytes.Buffer
	PrintRecommendations(&buf, nil)
	if !strings.Contains(buf.String(), "No recommendations") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	PrintRecommendations(&buf, []models.Recommendation{{
		ID:               "sqm",
		Title:            "Enable SQM",
		Description:      "Bufferbloat detected",
		Confidence:       models.ConfidenceHigh,
		EstimatedImpact:  "large",
		Category:         models.CategoryRouter,
		Commands:         []string{"tc qdisc add dev eth0 root cake"},
		RollbackCommands: []string{"tc qdisc del dev eth0 root"},
		RequiresAdmin:    true,
		RiskLevel:        models.RiskLow,
	}})
	out := buf.String()
	for _, want := range []string{"1. Enable SQM", "[high confidence]", "$ tc qdisc add dev eth0 root cake", "Rollback:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
