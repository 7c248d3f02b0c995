package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/dnschat/dnschat/internal/wire"
)

// Resolver is the native transport: a full DNS client library instead
// of the raw socket paths. It is preferred when usable because the
// library handles truncation, retransmission details, and EDNS0.
type Resolver struct {
	// Port overrides the DNS port, for tests. Empty means "53".
	Port string

	probeOnce sync.Once
	probeErr  error
}

func (t *Resolver) Kind() Kind { return KindNative }

// Available probes the host resolver configuration once and caches the
// result; a host without a readable client config cannot use this
// transport, which is a fallback-chain decision rather than an error.
func (t *Resolver) Available() error {
	t.probeOnce.Do(func() {
		if _, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err != nil {
			t.probeErr = fmt.Errorf("native resolver unavailable: %w", err)
		}
	})
	return t.probeErr
}

func (t *Resolver) Query(ctx context.Context, server, name string) ([]string, error) {
	normalized, err := wire.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	client := &dns.Client{Net: "udp"}
	if deadline, ok := ctx.Deadline(); ok {
		client.Timeout = time.Until(deadline)
	} else {
		client.Timeout = DefaultTimeout
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(normalized), dns.TypeTXT)
	msg.RecursionDesired = true

	reply, _, err := client.ExchangeContext(ctx, msg, net.JoinHostPort(server, t.port()))
	if err != nil {
		return nil, fmt.Errorf("native exchange: %w", err)
	}
	if reply.Truncated {
		tcpClient := &dns.Client{Net: "tcp", Timeout: client.Timeout}
		reply, _, err = tcpClient.ExchangeContext(ctx, msg, net.JoinHostPort(server, t.port()))
		if err != nil {
			return nil, fmt.Errorf("native tcp retry: %w", err)
		}
	}
	if reply.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("native exchange: server returned %s", dns.RcodeToString[reply.Rcode])
	}

	var records []string
	for _, rr := range reply.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			records = append(records, txt.Txt...)
		}
	}
	if len(records) == 0 {
		return nil, wire.ErrNoRecords
	}
	return records, nil
}

func (t *Resolver) port() string {
	if t.Port != "" {
		return t.Port
	}
	return "53"
}
