package probe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetOrCreateClientID(t *testing.T) {
	t.Setenv(clientIDEnv, "")
	dir := filepath.Join(t.TempDir(), "ipo")

	first, err := GetOrCreateClientID(dir)
	if err != nil {
		t.Fatalf("GetOrCreateClientID: %v", err)
	}
	if !strings.HasPrefix(first, "ipo-") || len(first) != len("ipo-")+32 {
		t.Errorf("unexpected client id %q", first)
	}

	second, err := GetOrCreateClientID(dir)
	if err != nil {
		t.Fatalf("GetOrCreateClientID: %v", err)
	}
	if first != second {
		t.Errorf("client id should be stable: %q != %q", first, second)
	}

	if _, err := os.Stat(filepath.Join(dir, clientIDFile)); err != nil {
		t.Errorf("client id file not written: %v", err)
	}
}

func TestGetOrCreateClientIDFromEnv(t *testing.T) {
	t.Setenv(clientIDEnv, "lab-probe-7")
	got, err := GetOrCreateClientID(t.TempDir())
	if err != nil {
		t.Fatalf("GetOrCreateClientID: %v", err)
	}
	if got != "lab-probe-7" {
		t.Errorf("expected env override, got %q", got)
	}
}
