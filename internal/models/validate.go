package models

import (
	"errors"
	"fmt"
	"math"
)

// ValidationError describes a record field that violates its contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func nonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	if v < 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be non-negative, got %v", v)}
	}
	return nil
}

func percentage(field string, v float64) error {
	if err := nonNegative(field, v); err != nil {
		return err
	}
	if v > 100 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be within [0, 100], got %v", v)}
	}
	return nil
}

// Validate checks the ICMP summary invariants. A result with no successful
// sample must be the all-zero, 100% loss sentinel.
func (r ICMPResult) Validate() error {
	if r.Samples < 0 {
		return &ValidationError{Field: "icmp.samples", Reason: "must be non-negative"}
	}
	if len(r.RawSamples) > 100 {
		return &ValidationError{Field: "icmp.raw_samples", Reason: "must hold at most 100 entries"}
	}
	if err := percentage("icmp.packet_loss", r.PacketLoss); err != nil {
		return err
	}

	named := []struct {
		field string
		value float64
	}{
		{"icmp.min", r.Min},
		{"icmp.p50", r.P50},
		{"icmp.p90", r.P90},
		{"icmp.p95", r.P95},
		{"icmp.p99", r.P99},
		{"icmp.max", r.Max},
	}
	for _, n := range named {
		if err := nonNegative(n.field, n.value); err != nil {
			return err
		}
	}
	if err := nonNegative("icmp.mean", r.Mean); err != nil {
		return err
	}
	if err := nonNegative("icmp.stddev", r.StdDev); err != nil {
		return err
	}

	if r.PacketLoss == 100 {
		for _, n := range named {
			if n.value != 0 {
				return &ValidationError{Field: n.field, Reason: "must be 0 when every sample was lost"}
			}
		}
		return nil
	}

	for i := 1; i < len(named); i++ {
		if named[i-1].value > named[i].value {
			return &ValidationError{
				Field:  named[i].field,
				Reason: fmt.Sprintf("ordering violated: %s=%v > %s=%v", named[i-1].field, named[i-1].value, named[i].field, named[i].value),
			}
		}
	}
	if r.Mean < r.Min || r.Mean > r.Max {
		return &ValidationError{Field: "icmp.mean", Reason: "must lie between min and max"}
	}
	return nil
}

func (r JitterResult) Validate() error {
	if err := nonNegative("jitter.mean_jitter_ms", r.MeanJitterMs); err != nil {
		return err
	}
	if err := nonNegative("jitter.max_jitter_ms", r.MaxJitterMs); err != nil {
		return err
	}
	if err := percentage("jitter.packet_loss", r.PacketLoss); err != nil {
		return err
	}
	if r.OutOfOrder < 0 {
		return &ValidationError{Field: "jitter.out_of_order", Reason: "must be non-negative"}
	}
	return nil
}

func (r ThroughputResult) Validate() error {
	if err := nonNegative("throughput.download_mbps", r.DownloadMbps); err != nil {
		return err
	}
	if err := nonNegative("throughput.upload_mbps", r.UploadMbps); err != nil {
		return err
	}
	if r.Retransmits < 0 {
		return &ValidationError{Field: "throughput.retransmits", Reason: "must be non-negative"}
	}
	return nil
}

// Validate checks the bufferbloat record. The increase may be negative when
// a measured loaded latency undercuts idle; the grade must still be valid.
func (r BufferbloatResult) Validate() error {
	if err := nonNegative("bufferbloat.idle_latency_ms", r.IdleLatencyMs); err != nil {
		return err
	}
	if err := nonNegative("bufferbloat.loaded_latency_ms", r.LoadedLatencyMs); err != nil {
		return err
	}
	if !r.Grade.Valid() {
		return &ValidationError{Field: "bufferbloat.grade", Reason: fmt.Sprintf("unknown grade %q", r.Grade)}
	}
	return nil
}

func (r DNSResult) Validate() error {
	if r.Resolver == "" {
		return &ValidationError{Field: "dns.resolver", Reason: "must not be empty"}
	}
	if r.Samples < 1 {
		return &ValidationError{Field: "dns.samples", Reason: "must be at least 1"}
	}
	if err := nonNegative("dns.median_ms", r.MedianMs); err != nil {
		return err
	}
	if err := nonNegative("dns.p95_ms", r.P95Ms); err != nil {
		return err
	}
	if r.MedianMs > r.P95Ms {
		return &ValidationError{Field: "dns.p95_ms", Reason: "must not be below the median"}
	}
	return percentage("dns.success_rate", r.SuccessRate)
}

// Validate checks every component of the benchmark and returns all
// violations joined together.
func (b *BenchmarkResult) Validate() error {
	if b == nil {
		return &ValidationError{Field: "benchmark", Reason: "is nil"}
	}
	var errs []error
	if b.Target == "" {
		errs = append(errs, &ValidationError{Field: "target", Reason: "must not be empty"})
	}
	if b.Timestamp.IsZero() {
		errs = append(errs, &ValidationError{Field: "timestamp", Reason: "must be set"})
	}
	errs = append(errs,
		b.ICMP.Validate(),
		b.Jitter.Validate(),
		b.Throughput.Validate(),
		b.Bufferbloat.Validate(),
	)
	for _, d := range b.DNS {
		errs = append(errs, d.Validate())
	}
	return errors.Join(errs...)
}

func (r Recommendation) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "recommendation.id", Reason: "must not be empty"}
	}
	if !r.Confidence.Valid() {
		return &ValidationError{Field: "recommendation.confidence", Reason: fmt.Sprintf("unknown value %q", r.Confidence)}
	}
	if !r.Category.Valid() {
		return &ValidationError{Field: "recommendation.category", Reason: fmt.Sprintf("unknown value %q", r.Category)}
	}
	if !r.RiskLevel.Valid() {
		return &ValidationError{Field: "recommendation.risk_level", Reason: fmt.Sprintf("unknown value %q", r.RiskLevel)}
	}
	return nil
}
