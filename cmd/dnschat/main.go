// Command dnschat sends one chat prompt over DNS and prints the
// reassembled TXT answer.
//
// Usage:
//
//	dnschat [flags] <message...>
//
// The prompt is encoded into a TXT query name, resolved against the
// configured chat server with transport fallback, and the multi-part
// answer is printed to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dnschat/dnschat/internal/chat"
	"github.com/dnschat/dnschat/internal/config"
	"github.com/dnschat/dnschat/internal/transport"
)

func main() {
	var (
		server       = flag.String("server", "", "chat server host (must be whitelisted; default from DNSCHAT_SERVER)")
		conversation = flag.String("conversation", "", "conversation discriminator (generated when empty)")
		transports   = flag.String("transports", "", "comma-separated transport preference: native,udp,tcp,https")
		verbose      = flag.Bool("v", false, "log transport attempts")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: dnschat [flags] <message>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	message := strings.Join(flag.Args(), " ")

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	engine := chat.NewService(chat.Options{
		DefaultServer: cfg.Server,
		Transports: []transport.Transport{
			&transport.Resolver{},
			&transport.UDP{},
			&transport.TCP{},
			&transport.DoH{Endpoint: cfg.DoHEndpoint},
		},
		MaxRetries:    cfg.MaxRetries,
		Timeout:       cfg.QueryTimeout,
		RateLimit:     cfg.RateLimit,
		RateInterval:  cfg.RateInterval,
		BackoffBase:   cfg.BackoffBase,
		BackoffCap:    cfg.BackoffCap,
		BackoffJitter: cfg.BackoffJitter,
	})

	preference := kinds(*transports, cfg.Transports)

	result, err := engine.Ask(context.Background(), chat.Query{
		Message:        message,
		ConversationID: *conversation,
		Server:         *server,
		Transports:     preference,
	})
	if err != nil {
		slog.Error("query failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(result.Text)
	if *verbose {
		slog.Debug("query completed",
			"transport", result.Transport,
			"domain", result.Domain,
			"records", len(result.RawRecords),
			"duration", result.Duration)
	}
}

// kinds parses the -transports flag, falling back to the configured
// order.
func kinds(flagValue string, configured []string) []transport.Kind {
	names := configured
	if flagValue != "" {
		names = strings.Split(flagValue, ",")
	}
	out := make([]transport.Kind, 0, len(names))
	for _, name := range names {
		out = append(out, transport.Kind(strings.TrimSpace(name)))
	}
	return out
}
