package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"runtime"

	"github.com/elastic/go-sysinfo"
	"github.com/elastic/go-sysinfo/types"
	"github.com/jackpal/gateway"
	"github.com/sirupsen/logrus"
)

// SystemInfo collects a host inventory for the benchmark record.
type SystemInfo struct {
	ClientID string
	Logger   logrus.FieldLogger
}

// HostSummary is the inventory recorded on every run.
type HostSummary struct {
	OS             string   `json:"os"`
	Platform       string   `json:"platform,omitempty"`
	Version        string   `json:"version,omitempty"`
	KernelVersion  string   `json:"kernel_version,omitempty"`
	Architecture   string   `json:"architecture"`
	Hostname       string   `json:"hostname,omitempty"`
	CPUCount       int      `json:"cpu_count"`
	MemoryGB       float64  `json:"memory_gb,omitempty"`
	Interfaces     []string `json:"interfaces,omitempty"`
	DefaultGateway string   `json:"default_gateway,omitempty"`
	LocalAddress   string   `json:"local_address,omitempty"`
	Containerized  bool     `json:"containerized,omitempty"`
	ClientID       string   `json:"client_id,omitempty"`
}

// Collect gathers host, memory and gateway information. Missing gateway
// details are logged and left empty; only a host lookup failure is an
// error.
func (s *SystemInfo) Collect(ctx context.Context) (map[string]any, error) {
	host, err := sysinfo.Host()
	if err != nil {
		return nil, stageError(StageSystemInfo, "host lookup", err)
	}

	var mem *types.HostMemoryInfo
	if m, err := host.Memory(); err == nil {
		mem = m
	} else {
		s.logf("Memory information unavailable: %v", err)
	}

	summary := summarizeHost(host.Info(), mem)
	summary.ClientID = s.ClientID

	if gw, err := gateway.DiscoverGateway(); err == nil {
		summary.DefaultGateway = gw.String()
	} else {
		s.logf("Could not discover default gateway: %v", err)
	}
	if local, err := gateway.DiscoverInterface(); err == nil {
		summary.LocalAddress = local.String()
	} else {
		s.logf("Could not discover local interface address: %v", err)
	}

	return toMap(summary)
}

func (s *SystemInfo) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Debugf(format, args...)
	}
}

func summarizeHost(info types.HostInfo, mem *types.HostMemoryInfo) HostSummary {
	summary := HostSummary{
		OS:            runtime.GOOS,
		KernelVersion: info.KernelVersion,
		Architecture:  info.Architecture,
		Hostname:      info.Hostname,
		CPUCount:      runtime.NumCPU(),
		Interfaces:    ipv4Only(info.IPs),
	}
	if summary.Architecture == "" {
		summary.Architecture = runtime.GOARCH
	}
	if info.OS != nil {
		summary.Platform = info.OS.Platform
		summary.Version = info.OS.Version
	}
	if info.Containerized != nil {
		summary.Containerized = *info.Containerized
	}
	if mem != nil {
		summary.MemoryGB = float64(mem.Total) / (1 << 30)
	}
	return summary
}

// ipv4Only keeps IPv4 addresses from CIDR or plain address strings.
func ipv4Only(addrs []string) []string {
	var out []string
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			parsed, _, err := net.ParseCIDR(a)
			if err != nil {
				continue
			}
			ip = parsed
		}
		if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() {
			out = append(out, ip4.String())
		}
	}
	return out
}

// toMap converts the summary into the plain map stored on a benchmark, so
// a stored run reloads into an identical map.
func toMap(summary HostSummary) (map[string]any, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encode system info: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode system info: %w", err)
	}
	return out, nil
}
