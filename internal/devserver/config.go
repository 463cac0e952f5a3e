package devserver

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8787"
	defaultAllowedOrigin = "http://localhost:5173"
	defaultNonceTTL      = 5 * time.Minute
	defaultLeaderboard   = 100
)

// Config aggregates runtime settings for the development game server.
type Config struct {
	ListenAddr     string
	DatabaseURL    string
	AllowedOrigins []string
	// SignerKeyHex is the hex private key that attests settlement packets.
	// The settlement contract must be deployed with the matching signer.
	SignerKeyHex string
	// RequireHandshake gates run starts behind a signed nonce challenge.
	RequireHandshake bool
	NonceTTL         time.Duration
	LeaderboardLimit int
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = defaultNonceTTL
	}
	if cfg.LeaderboardLimit <= 0 {
		cfg.LeaderboardLimit = defaultLeaderboard
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("database url is required")
	}
	if strings.TrimSpace(cfg.SignerKeyHex) == "" {
		return fmt.Errorf("settlement signer key is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
