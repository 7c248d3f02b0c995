package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     string
	Transports []string

	QueryTimeout time.Duration
	MaxRetries   int

	RateLimit    int
	RateInterval time.Duration

	BackoffBase   time.Duration
	BackoffCap    time.Duration
	BackoffJitter time.Duration

	DoHEndpoint string

	// Gateway settings.
	GatewayPort           int
	GatewayRateLimitRPS   float64
	GatewayRateLimitBurst int
}

func Load() (*Config, error) {
	timeout, err := getDurationEnv("DNSCHAT_QUERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_QUERY_TIMEOUT: %w", err)
	}

	retries, err := getIntEnv("DNSCHAT_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_MAX_RETRIES: %w", err)
	}

	rateLimit, err := getIntEnv("DNSCHAT_RATE_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_RATE_LIMIT: %w", err)
	}

	rateInterval, err := getDurationEnv("DNSCHAT_RATE_INTERVAL", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_RATE_INTERVAL: %w", err)
	}

	backoffBase, err := getDurationEnv("DNSCHAT_BACKOFF_BASE", 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_BACKOFF_BASE: %w", err)
	}

	backoffCap, err := getDurationEnv("DNSCHAT_BACKOFF_CAP", 1500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_BACKOFF_CAP: %w", err)
	}

	backoffJitter, err := getDurationEnv("DNSCHAT_BACKOFF_JITTER", 120*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_BACKOFF_JITTER: %w", err)
	}

	gatewayPort, err := getIntEnv("DNSCHAT_GATEWAY_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_GATEWAY_PORT: %w", err)
	}

	rps, err := getFloatEnv("DNSCHAT_GATEWAY_RATE_LIMIT_RPS", 2.0)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_GATEWAY_RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getIntEnv("DNSCHAT_GATEWAY_RATE_LIMIT_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DNSCHAT_GATEWAY_RATE_LIMIT_BURST: %w", err)
	}

	transports := strings.Split(getEnv("DNSCHAT_TRANSPORTS", "native,udp,tcp,https"), ",")
	for i, t := range transports {
		transports[i] = strings.TrimSpace(t)
	}

	return &Config{
		Server:                getEnv("DNSCHAT_SERVER", "ch.at"),
		Transports:            transports,
		QueryTimeout:          timeout,
		MaxRetries:            retries,
		RateLimit:             rateLimit,
		RateInterval:          rateInterval,
		BackoffBase:           backoffBase,
		BackoffCap:            backoffCap,
		BackoffJitter:         backoffJitter,
		DoHEndpoint:           getEnv("DNSCHAT_DOH_ENDPOINT", "https://cloudflare-dns.com/dns-query"),
		GatewayPort:           gatewayPort,
		GatewayRateLimitRPS:   rps,
		GatewayRateLimitBurst: burst,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
