package models

import "time"

// ICMPResult summarizes one ICMP latency sampling run. All latencies are in
// milliseconds, PacketLoss is a percentage.
type ICMPResult struct {
	// Samples counts every attempt, successful or not
	Samples    int       `json:"samples" yaml:"samples"`
	P50        float64   `json:"p50" yaml:"p50"`
	P90        float64   `json:"p90" yaml:"p90"`
	P95        float64   `json:"p95" yaml:"p95"`
	P99        float64   `json:"p99" yaml:"p99"`
	Min        float64   `json:"min" yaml:"min"`
	Max        float64   `json:"max" yaml:"max"`
	Mean       float64   `json:"mean" yaml:"mean"`
	StdDev     float64   `json:"stddev" yaml:"stddev"`
	PacketLoss float64   `json:"packet_loss" yaml:"packet_loss"`
	RawSamples []float64 `json:"raw_samples" yaml:"raw_samples"`
}

// Succeeded reports whether at least one echo reply was received.
func (r ICMPResult) Succeeded() bool {
	return r.Samples > 0 && r.PacketLoss < 100
}

// JitterResult is the UDP jitter measurement reported by the jitter probe.
type JitterResult struct {
	MeanJitterMs float64 `json:"mean_jitter_ms" yaml:"mean_jitter_ms"`
	MaxJitterMs  float64 `json:"max_jitter_ms" yaml:"max_jitter_ms"`
	PacketLoss   float64 `json:"packet_loss" yaml:"packet_loss"`
	OutOfOrder   int     `json:"out_of_order" yaml:"out_of_order"`
}

// ThroughputResult holds download and upload rates in Mbps. Retransmits is
// summed over both directions.
type ThroughputResult struct {
	DownloadMbps float64 `json:"download_mbps" yaml:"download_mbps"`
	UploadMbps   float64 `json:"upload_mbps" yaml:"upload_mbps"`
	Retransmits  int     `json:"retransmits" yaml:"retransmits"`
}

// BufferbloatResult compares idle and loaded latency. Grade is always derived
// from LatencyIncreaseMs.
type BufferbloatResult struct {
	IdleLatencyMs      float64 `json:"idle_latency_ms" yaml:"idle_latency_ms"`
	LoadedLatencyMs    float64 `json:"loaded_latency_ms" yaml:"loaded_latency_ms"`
	LatencyIncreaseMs  float64 `json:"latency_increase_ms" yaml:"latency_increase_ms"`
	LatencyIncreasePct float64 `json:"latency_increase_pct" yaml:"latency_increase_pct"`
	Grade              Grade   `json:"grade" yaml:"grade"`
}

// DNSResult is the aggregate of one resolver's query panel.
type DNSResult struct {
	Resolver    string  `json:"resolver" yaml:"resolver"`
	MedianMs    float64 `json:"median_ms" yaml:"median_ms"`
	P95Ms       float64 `json:"p95_ms" yaml:"p95_ms"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
	Samples     int     `json:"samples" yaml:"samples"`
}

// Metadata records how a benchmark run was configured and which phases
// degraded to placeholders.
type Metadata struct {
	RunID                string   `json:"run_id" yaml:"run_id"`
	PingCount            int      `json:"ping_count" yaml:"ping_count"`
	SkipThroughput       bool     `json:"skip_throughput" yaml:"skip_throughput"`
	SkipDNS              bool     `json:"skip_dns" yaml:"skip_dns"`
	BufferbloatPolicy    string   `json:"bufferbloat_policy,omitempty" yaml:"bufferbloat_policy,omitempty"`
	BufferbloatEstimated bool     `json:"bufferbloat_estimated" yaml:"bufferbloat_estimated"`
	ThroughputBackend    string   `json:"throughput_backend,omitempty" yaml:"throughput_backend,omitempty"`
	DegradedPhases       []string `json:"degraded_phases,omitempty" yaml:"degraded_phases,omitempty"`
}

// BenchmarkResult is the complete record of one benchmark run.
type BenchmarkResult struct {
	Timestamp   time.Time         `json:"timestamp" yaml:"timestamp"`
	Target      string            `json:"target" yaml:"target"`
	SystemInfo  map[string]any    `json:"system_info" yaml:"system_info"`
	ICMP        ICMPResult        `json:"icmp" yaml:"icmp"`
	Jitter      JitterResult      `json:"jitter" yaml:"jitter"`
	Throughput  ThroughputResult  `json:"throughput" yaml:"throughput"`
	Bufferbloat BufferbloatResult `json:"bufferbloat" yaml:"bufferbloat"`
	DNS         []DNSResult       `json:"dns" yaml:"dns"`
	Metadata    Metadata          `json:"metadata" yaml:"metadata"`
}

// RunID returns the run identifier stored in the metadata.
func (b *BenchmarkResult) RunID() string {
	return b.Metadata.RunID
}

// BenchmarkSummary is the list view of a stored run.
type BenchmarkSummary struct {
	RunID           string    `json:"run_id"`
	Timestamp       time.Time `json:"timestamp"`
	Target          string    `json:"target"`
	Grade           Grade     `json:"grade"`
	P50Ms           float64   `json:"p50_ms"`
	PacketLoss      float64   `json:"packet_loss"`
	DegradedPhases  int       `json:"degraded_phases"`
	DownloadMbps    float64   `json:"download_mbps"`
	FastestResolver string    `json:"fastest_resolver,omitempty"`
}

// Summarize builds the list view of a run.
func (b *BenchmarkResult) Summarize() BenchmarkSummary {
	s := BenchmarkSummary{
		RunID:          b.Metadata.RunID,
		Timestamp:      b.Timestamp,
		Target:         b.Target,
		Grade:          b.Bufferbloat.Grade,
		P50Ms:          b.ICMP.P50,
		PacketLoss:     b.ICMP.PacketLoss,
		DegradedPhases: len(b.Metadata.DegradedPhases),
		DownloadMbps:   b.Throughput.DownloadMbps,
	}
	if len(b.DNS) > 0 {
		s.FastestResolver = b.DNS[0].Resolver
	}
	return s
}
