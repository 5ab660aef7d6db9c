package dnsbench

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// ErrNoAnswer is returned when a resolver replies without any A record.
var ErrNoAnswer = errors.New("empty answer section")

// MiekgQuerier sends a single recursive A query straight to the resolver,
// bypassing the system resolver and its cache.
type MiekgQuerier struct {
	Client *dns.Client
	Port   string
}

// NewMiekgQuerier returns a UDP querier targeting port 53.
func NewMiekgQuerier(timeout time.Duration) *MiekgQuerier {
	return &MiekgQuerier{
		Client: &dns.Client{Net: "udp", Timeout: timeout},
		Port:   "53",
	}
}

func (q *MiekgQuerier) Query(ctx context.Context, domain, resolver string) (time.Duration, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	msg.RecursionDesired = true

	addr := resolver
	if _, _, err := net.SplitHostPort(resolver); err != nil {
		addr = net.JoinHostPort(resolver, q.Port)
	}

	start := time.Now()
	resp, _, err := q.Client.ExchangeContext(ctx, msg, addr)
	elapsed := time.Since(start)
	if err != nil {
		return 0, fmt.Errorf("query %s via %s: %w", domain, resolver, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return 0, fmt.Errorf("query %s via %s: %s", domain, resolver, dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) == 0 {
		return 0, fmt.Errorf("query %s via %s: %w", domain, resolver, ErrNoAnswer)
	}
	return elapsed, nil
}
