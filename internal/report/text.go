package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/internet-performance-optimizer/internal/models"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	label   = color.New(color.Bold)
	faint   = color.New(color.Faint)
)

// gradeColor maps a bufferbloat grade to its display colour.
func gradeColor(g models.Grade) *color.Color {
	switch g {
	case models.GradeAPlus, models.GradeA:
		return color.New(color.FgGreen, color.Bold)
	case models.GradeB, models.GradeC:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func confidenceColor(c models.Confidence) *color.Color {
	switch c {
	case models.ConfidenceHigh:
		return color.New(color.FgRed)
	case models.ConfidenceMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgBlue)
	}
}

// PrintSummary writes the human readable summary of a benchmark.
func PrintSummary(w io.Writer, r *models.BenchmarkResult) {
	heading.Fprintf(w, "Benchmark %s\n", r.RunID())
	fmt.Fprintf(w, "  Target:    %s\n", r.Target)
	fmt.Fprintf(w, "  Timestamp: %s\n", r.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if len(r.Metadata.DegradedPhases) > 0 {
		color.New(color.FgYellow).Fprintf(w, "  Degraded:  %s\n", strings.Join(r.Metadata.DegradedPhases, ", "))
	}
	fmt.Fprintln(w)

	label.Fprintln(w, "Latency (ICMP)")
	if r.ICMP.Succeeded() {
		fmt.Fprintf(w, "  p50 %.2f ms  p95 %.2f ms  p99 %.2f ms\n", r.ICMP.P50, r.ICMP.P95, r.ICMP.P99)
		fmt.Fprintf(w, "  min %.2f ms  max %.2f ms  stddev %.2f ms\n", r.ICMP.Min, r.ICMP.Max, r.ICMP.StdDev)
	} else {
		color.New(color.FgRed).Fprintln(w, "  no replies received")
	}
	fmt.Fprintf(w, "  packet loss %.1f%% of %d\n\n", r.ICMP.PacketLoss, r.ICMP.Samples)

	if !r.Metadata.SkipThroughput {
		label.Fprintln(w, "Throughput")
		fmt.Fprintf(w, "  down %.1f Mbps  up %.1f Mbps  retransmits %d\n", r.Throughput.DownloadMbps, r.Throughput.UploadMbps, r.Throughput.Retransmits)
		fmt.Fprintf(w, "  jitter %.2f ms  udp loss %.2f%%\n\n", r.Jitter.MeanJitterMs, r.Jitter.PacketLoss)
	}

	label.Fprintln(w, "Bufferbloat")
	fmt.Fprintf(w, "  idle %.2f ms  loaded %.2f ms  +%.2f ms  grade ", r.Bufferbloat.IdleLatencyMs, r.Bufferbloat.LoadedLatencyMs, r.Bufferbloat.LatencyIncreaseMs)
	gradeColor(r.Bufferbloat.Grade).Fprintln(w, r.Bufferbloat.Grade)
	if r.Metadata.BufferbloatEstimated {
		faint.Fprintf(w, "  estimated (%s)\n", r.Metadata.BufferbloatPolicy)
	}
	fmt.Fprintln(w)

	if !r.Metadata.SkipDNS {
		label.Fprintln(w, "DNS resolvers")
		if len(r.DNS) == 0 {
			fmt.Fprintln(w, "  no results")
		}
		for _, d := range r.DNS {
			fmt.Fprintf(w, "  %-16s median %7.2f ms  p95 %7.2f ms  success %5.1f%%\n", d.Resolver, d.MedianMs, d.P95Ms, d.SuccessRate)
		}
		fmt.Fprintln(w)
	}

	if len(r.SystemInfo) > 0 {
		label.Fprintln(w, "System")
		keys := make([]string, 0, len(r.SystemInfo))
		for k := range r.SystemInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v := r.SystemInfo[k].(type) {
			case map[string]any, []any:
				continue
			default:
				fmt.Fprintf(w, "  %-14s %v\n", k, v)
			}
		}
	}
}

// PrintRecommendations writes recommendations in engine order. Commands
// are shown for the user to run; nothing is executed.
func PrintRecommendations(w io.Writer, recs []models.Recommendation) {
	if len(recs) == 0 {
		color.New(color.FgGreen).Fprintln(w, "No recommendations: the connection looks healthy.")
		return
	}
	heading.Fprintf(w, "%d recommendation(s)\n\n", len(recs))
	for i, rec := range recs {
		label.Fprintf(w, "%d. %s ", i+1, rec.Title)
		confidenceColor(rec.Confidence).Fprintf(w, "[%s confidence]\n", rec.Confidence)
		fmt.Fprintf(w, "   %s\n", rec.Description)
		fmt.Fprintf(w, "   Impact: %s  Category: %s  Risk: %s\n", rec.EstimatedImpact, rec.Category, rec.RiskLevel)
		if rec.RequiresAdmin {
			faint.Fprintln(w, "   Requires administrator privileges")
		}
		for _, cmd := range rec.Commands {
			fmt.Fprintf(w, "   $ %s\n", cmd)
		}
		if len(rec.RollbackCommands) > 0 {
			faint.Fprintln(w, "   Rollback:")
			for _, cmd := range rec.RollbackCommands {
				faint.Fprintf(w, "   $ %s\n", cmd)
			}
		}
		fmt.Fprintln(w)
	}
}
