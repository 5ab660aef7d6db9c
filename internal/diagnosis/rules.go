package diagnosis

import (
	"fmt"
	"math"

	"github.com/internet-performance-optimizer/internal/models"
)

// Recommendation identifiers, stable across releases.
const (
	IDSQM        = "sqm"
	IDPacketLoss = "packet-loss-investigation"
	IDDNS        = "dns"
	IDJitter     = "jitter"
	IDNICRSS     = "nic-rss"
)

// Thresholds
const (
	sqmIncreaseMs       = 100.0
	sqmHighIncreaseMs   = 200.0
	sqmTargetIdleFactor = 1.2
	packetLossPct       = 1.0
	packetLossHighPct   = 5.0
	dnsFastMedianMs     = 20.0
	dnsMinSuccessRate   = 95.0
	minDNSResultsToRank = 2
	jitterMeanMs        = 10.0
	rssPlatform         = "windows"
)

// RecommendSQM suggests Smart Queue Management on the router when latency
// under load grows significantly.
//
// Criteria:
// - latency increase > 100ms
// - confidence high above 200ms
func RecommendSQM(result *models.BenchmarkResult) (models.Recommendation, bool) {
	bb := result.Bufferbloat
	if !(bb.LatencyIncreaseMs > sqmIncreaseMs) {
		return models.Recommendation{}, false
	}

	confidence := models.ConfidenceMedium
	if bb.LatencyIncreaseMs > sqmHighIncreaseMs {
		confidence = models.ConfidenceHigh
	}

	return models.Recommendation{
		ID:    IDSQM,
		Title: "Enable Smart Queue Management (SQM) on Router",
		Description: fmt.Sprintf("Your connection shows %.0fms latency increase under load (grade %s). "+
			"This indicates bufferbloat, which causes lag spikes during high bandwidth usage. "+
			"SQM with CAKE or fq_codel can reduce this significantly.", bb.LatencyIncreaseMs, bb.Grade),
		Confidence: confidence,
		EstimatedImpact: fmt.Sprintf("Reduce latency under load by 50-80%% (from ~%.0fms to ~%.0fms)",
			bb.LoadedLatencyMs, bb.IdleLatencyMs*sqmTargetIdleFactor),
		Category: models.CategoryRouter,
		Commands: []string{
			"# On an OpenWrt router, install and enable SQM:",
			"opkg update && opkg install luci-app-sqm",
			"# Set download/upload limits to ~90% of measured throughput, qdisc cake",
		},
		RollbackCommands: []string{
			"# On router: uci delete sqm.@queue[0]",
			"# On router: uci commit && /etc/init.d/sqm restart",
		},
		RequiresAdmin: false,
		Reversible:    true,
		RiskLevel:     models.RiskLow,
	}, true
}

// RecommendPacketLossInvestigation fires on ICMP loss above 1%. UDP loss
// seen by the jitter probe is mentioned in the same recommendation.
//
// Criteria:
// - ICMP packet loss > 1%
// - confidence high above 5%
func RecommendPacketLossInvestigation(result *models.BenchmarkResult) (models.Recommendation, bool) {
	icmpLoss := result.ICMP.PacketLoss
	if !(icmpLoss > packetLossPct) {
		return models.Recommendation{}, false
	}

	confidence := models.ConfidenceMedium
	if icmpLoss > packetLossHighPct {
		confidence = models.ConfidenceHigh
	}

	description := fmt.Sprintf("Detected %.1f%% ICMP packet loss. "+
		"This suggests network congestion, hardware issues, or ISP problems.", icmpLoss)
	if udpLoss := result.Jitter.PacketLoss; udpLoss > packetLossPct {
		description += fmt.Sprintf(" UDP loss of %.1f%% was also observed during the jitter test.", udpLoss)
	}

	return models.Recommendation{
		ID:              IDPacketLoss,
		Title:           "Investigate Packet Loss",
		Description:     description,
		Confidence:      confidence,
		EstimatedImpact: "Potential for significant stability improvement",
		Category:        models.CategorySystem,
		Commands: []string{
			"# Check network cable connections",
			"# Test over a wired connection to rule out Wi-Fi interference",
			"# Contact ISP if persistent",
		},
		RollbackCommands: []string{},
		RequiresAdmin:    false,
		Reversible:       true,
		RiskLevel:        models.RiskLow,
	}, true
}

// RecommendDNS suggests switching to the fastest benchmarked resolver.
//
// Criteria:
// - at least two resolvers were benchmarked
// - fastest median < 20ms and its success rate > 95%
//
// Resolvers that never answered report a median of 0 and never count as
// fastest, so a failed resolver next to a fast one still fires.
func RecommendDNS(result *models.BenchmarkResult) (models.Recommendation, bool) {
	if len(result.DNS) < minDNSResultsToRank {
		return models.Recommendation{}, false
	}

	fastest := result.DNS[0]
	for _, d := range result.DNS[1:] {
		if dnsRankKey(d) < dnsRankKey(fastest) {
			fastest = d
		}
	}
	if fastest.MedianMs <= 0 || !(fastest.MedianMs < dnsFastMedianMs) || !(fastest.SuccessRate > dnsMinSuccessRate) {
		return models.Recommendation{}, false
	}

	return models.Recommendation{
		ID:    IDDNS,
		Title: fmt.Sprintf("Use Faster DNS Resolver (%s)", fastest.Resolver),
		Description: fmt.Sprintf("DNS resolver %s shows %.1fms median latency. "+
			"Switching from your ISP's DNS can improve browsing responsiveness.", fastest.Resolver, fastest.MedianMs),
		Confidence:      models.ConfidenceMedium,
		EstimatedImpact: fmt.Sprintf("Reduce DNS lookup time to ~%.0fms", fastest.MedianMs),
		Category:        models.CategoryDNS,
		Commands: []string{
			fmt.Sprintf("# Windows: Set DNS to %s", fastest.Resolver),
			"# Settings > Network > Adapter > Properties > IPv4 > DNS",
			fmt.Sprintf("# Linux (systemd-resolved): resolvectl dns <interface> %s", fastest.Resolver),
		},
		RollbackCommands: []string{
			"# Set DNS back to 'Obtain DNS server address automatically'",
		},
		RequiresAdmin: true,
		Reversible:    true,
		RiskLevel:     models.RiskLow,
	}, true
}

func dnsRankKey(d models.DNSResult) float64 {
	if d.MedianMs <= 0 {
		return math.Inf(1)
	}
	return d.MedianMs
}

// RecommendJitterReduction fires when mean UDP jitter exceeds 10ms.
func RecommendJitterReduction(result *models.BenchmarkResult) (models.Recommendation, bool) {
	jitter := result.Jitter.MeanJitterMs
	if !(jitter > jitterMeanMs) {
		return models.Recommendation{}, false
	}

	return models.Recommendation{
		ID:    IDJitter,
		Title: "High Jitter Detected",
		Description: fmt.Sprintf("UDP jitter is %.1fms, which may cause issues in real-time "+
			"applications (gaming, VoIP, video calls).", jitter),
		Confidence:      models.ConfidenceMedium,
		EstimatedImpact: "Improved real-time application performance",
		Category:        models.CategorySystem,
		Commands: []string{
			"# Enable QoS on router",
			"# Close background applications using bandwidth",
			"# Consider SQM for jitter reduction",
		},
		RollbackCommands: []string{},
		RequiresAdmin:    false,
		Reversible:       true,
		RiskLevel:        models.RiskLow,
	}, true
}

// RecommendNICRSS suggests enabling Receive Side Scaling. Only Windows
// exposes the RSS control surface this recommendation drives.
func RecommendNICRSS(platform string) (models.Recommendation, bool) {
	if platform != rssPlatform {
		return models.Recommendation{}, false
	}

	return models.Recommendation{
		ID:    IDNICRSS,
		Title: "Enable Receive Side Scaling (RSS) on Network Adapter",
		Description: "RSS distributes network processing across multiple CPU cores, " +
			"improving throughput on multi-core systems. " +
			"This is especially beneficial for high-speed connections (>100 Mbps).",
		Confidence:      models.ConfidenceMedium,
		EstimatedImpact: "Potential 10-30% throughput improvement on fast connections",
		Category:        models.CategoryNIC,
		Commands: []string{
			"# Check current RSS status:",
			"Get-NetAdapterRss",
			"# Enable RSS:",
			"Enable-NetAdapterRss -Name '*'",
		},
		RollbackCommands: []string{
			"Disable-NetAdapterRss -Name '*'",
		},
		RequiresAdmin: true,
		Reversible:    true,
		RiskLevel:     models.RiskLow,
	}, true
}
