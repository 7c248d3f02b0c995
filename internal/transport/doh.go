package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dnschat/dnschat/internal/wire"
)

// DefaultDoHEndpoint is the public JSON DNS gateway used when no
// endpoint is configured.
const DefaultDoHEndpoint = "https://cloudflare-dns.com/dns-query"

// DoH resolves through a public DNS-over-HTTPS JSON gateway. It
// bypasses the wire codec entirely and is a strictly degraded fallback:
// some custom TXT payloads are unreachable through generic public
// resolvers, which is why it sits last in the default preference order.
type DoH struct {
	// Endpoint overrides DefaultDoHEndpoint when non-empty.
	Endpoint string

	// Client overrides http.DefaultClient, for tests.
	Client *http.Client
}

func (t *DoH) Kind() Kind { return KindHTTPS }

func (t *DoH) Available() error { return nil }

// dohAnswer is one entry of the gateway's JSON Answer array.
type dohAnswer struct {
	Type int    `json:"type"`
	Data string `json:"data"`
}

type dohResponse struct {
	Status int         `json:"Status"`
	Answer []dohAnswer `json:"Answer"`
}

// Query issues a GET against the JSON gateway. The server parameter is
// unused: the public gateway resolves the name through ordinary
// recursion, not against the chat server directly.
func (t *DoH) Query(ctx context.Context, _ string, name string) ([]string, error) {
	normalized, err := wire.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = DefaultDoHEndpoint
	}

	reqURL := fmt.Sprintf("%s?name=%s&type=TXT", endpoint, url.QueryEscape(normalized))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("doh build request: %w", err)
	}
	req.Header.Set("Accept", "application/dns-json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh request: gateway returned %d", resp.StatusCode)
	}

	var parsed dohResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("doh parse response: %w", err)
	}

	var records []string
	for _, answer := range parsed.Answer {
		if answer.Type != wire.TypeTXT {
			continue
		}
		records = append(records, stripQuotes(answer.Data))
	}
	if len(records) == 0 {
		return nil, wire.ErrNoRecords
	}
	return records, nil
}

// stripQuotes removes the single pair of surrounding quotes the JSON
// gateway wraps TXT data in. Interior quotes are payload.
func stripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}
