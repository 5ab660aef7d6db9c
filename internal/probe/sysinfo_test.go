package probe

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/elastic/go-sysinfo/types"
)

func TestSummarizeHost(t *testing.T) {
	containerized := true
	info := types.HostInfo{
		Architecture:  "x86_64",
		Hostname:      "bench-box",
		KernelVersion: "6.8.0",
		IPs:           []string{"127.0.0.1/8", "192.168.1.20/24", "fe80::1/64", "10.0.0.5"},
		OS:            &types.OSInfo{Platform: "ubuntu", Version: "24.04"},
		Containerized: &containerized,
	}
	mem := &types.HostMemoryInfo{Total: 16 << 30}

	got := summarizeHost(info, mem)

	if got.Architecture != "x86_64" || got.Hostname != "bench-box" || got.Platform != "ubuntu" || got.Version != "24.04" {
		t.Errorf("unexpected summary %+v", got)
	}
	if got.MemoryGB != 16 {
		t.Errorf("memory: expected 16, got %v", got.MemoryGB)
	}
	if !reflect.DeepEqual(got.Interfaces, []string{"192.168.1.20", "10.0.0.5"}) {
		t.Errorf("interfaces: got %v", got.Interfaces)
	}
	if !got.Containerized {
		t.Error("expected containerized flag")
	}
	if got.CPUCount < 1 {
		t.Errorf("cpu count: got %d", got.CPUCount)
	}
}

func TestSummarizeHostWithoutMemory(t *testing.T) {
	got := summarizeHost(types.HostInfo{}, nil)
	if got.MemoryGB != 0 || got.Architecture == "" {
		t.Errorf("unexpected summary %+v", got)
	}
}

func TestToMapSurvivesJSONRoundTrip(t *testing.T) {
	m, err := toMap(HostSummary{OS: "linux", Architecture: "arm64", CPUCount: 4, MemoryGB: 7.5, Interfaces: []string{"10.1.1.1"}})
	if err != nil {
		t.Fatalf("toMap: %v", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(m, back) {
		t.Errorf("expected %v, got %v", m, back)
	}
	if m["cpu_count"] != float64(4) {
		t.Errorf("cpu_count: got %v", m["cpu_count"])
	}
}
