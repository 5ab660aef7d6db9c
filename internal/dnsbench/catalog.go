package dnsbench

import "strings"

// KnownResolvers maps friendly names to public resolver addresses.
var KnownResolvers = map[string]string{
	"cloudflare":           "1.1.1.1",
	"cloudflare_secondary": "1.0.0.1",
	"google":               "8.8.8.8",
	"google_secondary":     "8.8.4.4",
	"quad9":                "9.9.9.9",
	"opendns":              "208.67.222.222",
}

// DefaultResolvers are benchmarked when none are configured.
var DefaultResolvers = []string{"1.1.1.1", "8.8.8.8"}

// TestDomains is the full panel of popular names. DefaultDomainCount of
// them are queried by default.
var TestDomains = []string{
	"google.com", "facebook.com", "youtube.com", "amazon.com", "wikipedia.org",
	"twitter.com", "instagram.com", "reddit.com", "netflix.com", "linkedin.com",
	"github.com", "stackoverflow.com", "microsoft.com", "apple.com", "cloudflare.com",
	"yahoo.com", "zoom.us", "ebay.com", "twitch.tv", "pinterest.com",
	"cnn.com", "bbc.com", "nytimes.com", "espn.com", "spotify.com",
	"discord.com", "dropbox.com", "adobe.com", "nvidia.com", "amd.com",
}

const DefaultDomainCount = 20

// Domains returns the first n names of the test panel. n <= 0 selects
// DefaultDomainCount; larger n is capped at the panel size.
func Domains(n int) []string {
	if n <= 0 {
		n = DefaultDomainCount
	}
	if n > len(TestDomains) {
		n = len(TestDomains)
	}
	out := make([]string, n)
	copy(out, TestDomains[:n])
	return out
}

// ParseResolvers turns a comma separated list of addresses or friendly
// names into resolver addresses. Unknown names are kept verbatim.
func ParseResolvers(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if addr, ok := KnownResolvers[strings.ToLower(item)]; ok {
			item = addr
		}
		out = append(out, item)
	}
	return out
}
