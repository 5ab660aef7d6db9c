package probe

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	clientIDFile = "client_id"
	clientIDEnv  = "IPO_CLIENT_ID"
)

// GetOrCreateClientID returns a stable identifier for this machine, stored
// under dir. IPO_CLIENT_ID overrides the stored value.
func GetOrCreateClientID(dir string) (string, error) {
	if clientID := os.Getenv(clientIDEnv); clientID != "" {
		return clientID, nil
	}

	clientIDPath := filepath.Join(dir, clientIDFile)

	if data, err := os.ReadFile(clientIDPath); err == nil {
		if clientID := strings.TrimSpace(string(data)); clientID != "" {
			return clientID, nil
		}
	}

	clientID, err := generateClientID()
	if err != nil {
		return "", fmt.Errorf("failed to generate client ID: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(clientIDPath, []byte(clientID), 0o600); err != nil {
		return "", fmt.Errorf("failed to save client ID: %w", err)
	}

	return clientID, nil
}

func generateClientID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "ipo-" + hex.EncodeToString(bytes), nil
}
