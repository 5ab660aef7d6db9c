package metrics

import (
	"crypto/sha256"
	"fmt"
	"net"
)

// HashLabel creates a short hash of a label value to bound cardinality
// while keeping values distinguishable. Returns 8 hex characters.
func HashLabel(value string) string {
	if value == "" {
		return "unknown"
	}

	hash := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", hash[:4])
}

// ResolverLabel keeps well-known public resolvers readable and hashes
// anything else (private resolvers, hostnames).
func ResolverLabel(resolver string) string {
	if _, ok := knownResolvers[resolver]; ok {
		return resolver
	}
	return HashLabel(resolver)
}

// TargetLabel keeps literal IP targets and hashes host names.
func TargetLabel(target string) string {
	if ip := net.ParseIP(target); ip != nil {
		return ip.String()
	}
	return HashLabel(target)
}

var knownResolvers = map[string]struct{}{
	"1.1.1.1":        {},
	"1.0.0.1":        {},
	"8.8.8.8":        {},
	"8.8.4.4":        {},
	"9.9.9.9":        {},
	"208.67.222.222": {},
}
