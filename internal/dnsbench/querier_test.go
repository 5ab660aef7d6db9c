package dnsbench

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func startTestResolver(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen on udp: %v", err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		switch r.Question[0].Name {
		case "example.com.":
			m.SetReply(r)
			rr, _ := dns.NewRR("example.com. 60 IN A 192.0.2.10")
			m.Answer = append(m.Answer, rr)
		case "empty.example.":
			m.SetReply(r)
		default:
			m.SetRcode(r, dns.RcodeNameError)
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestMiekgQuerier(t *testing.T) {
	addr := startTestResolver(t)
	q := NewMiekgQuerier(time.Second)

	tests := []struct {
		name    string
		domain  string
		wantErr bool
		errIs   error
	}{
		{name: "answered", domain: "example.com"},
		{name: "nxdomain", domain: "missing.example", wantErr: true},
		{name: "no records", domain: "empty.example", wantErr: true, errIs: ErrNoAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rtt, err := q.Query(context.Background(), tt.domain, addr)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				if tt.errIs != nil && !errors.Is(err, tt.errIs) {
					t.Errorf("expected %v, got %v", tt.errIs, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rtt <= 0 {
				t.Errorf("expected a positive rtt, got %v", rtt)
			}
		})
	}
}
