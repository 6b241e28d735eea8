package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// GatewayMode selects how settlement is executed.
type GatewayMode string

const (
	GatewaySimulated GatewayMode = "simulated"
	GatewayHTTP      GatewayMode = "http"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL         string
	ServerAddr          string
	SessionTTL          time.Duration
	SessionCookieName   string
	SessionCookieSecure bool

	GatewayMode    GatewayMode
	GatewayURL     string
	GatewayTimeout time.Duration

	ChainID       string
	TokenSymbol   string
	TokenDecimals int

	NegotiationTTL time.Duration
	DepositTTL     time.Duration
	ExpiryWarning  time.Duration
	SweepInterval  time.Duration
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "escrow_room")
		pass := getenv("POSTGRES_PASSWORD", "escrow_room_pass")
		db := getenv("POSTGRES_DB", "escrow_room")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	addr := getenv("SERVER_ADDR", "0.0.0.0:8080")
	ttl := parseDuration(getenv("SESSION_TTL", "24h"), 24*time.Hour)
	cookieName := getenv("SESSION_COOKIE_NAME", "escrow_room_session")
	cookieSecure := parseBool(getenv("SESSION_COOKIE_SECURE", "false"), false)

	mode := GatewayMode(getenv("GATEWAY_MODE", string(GatewaySimulated)))
	gatewayURL := os.Getenv("GATEWAY_URL")
	if mode != GatewaySimulated && mode != GatewayHTTP {
		return nil, fmt.Errorf("GATEWAY_MODE must be %q or %q", GatewaySimulated, GatewayHTTP)
	}
	if mode == GatewayHTTP && gatewayURL == "" {
		return nil, fmt.Errorf("GATEWAY_URL is required when GATEWAY_MODE=http")
	}

	decimals := parseInt(getenv("TOKEN_DECIMALS", "6"), 6)
	if decimals < 0 || decimals > 18 {
		return nil, fmt.Errorf("TOKEN_DECIMALS out of range: %d", decimals)
	}

	return &Config{
		DatabaseURL:         dsn,
		ServerAddr:          addr,
		SessionTTL:          ttl,
		SessionCookieName:   cookieName,
		SessionCookieSecure: cookieSecure,

		GatewayMode:    mode,
		GatewayURL:     gatewayURL,
		GatewayTimeout: parseDuration(getenv("GATEWAY_TIMEOUT", "15s"), 15*time.Second),

		ChainID:       getenv("CHAIN_ID", "base-sepolia"),
		TokenSymbol:   getenv("TOKEN_SYMBOL", "USDC"),
		TokenDecimals: decimals,

		NegotiationTTL: parseDuration(getenv("NEGOTIATION_TTL", "24h"), 24*time.Hour),
		DepositTTL:     parseDuration(getenv("DEPOSIT_TTL", "72h"), 72*time.Hour),
		ExpiryWarning:  parseDuration(getenv("EXPIRY_WARNING", "1h"), time.Hour),
		SweepInterval:  parseDuration(getenv("SWEEP_INTERVAL", "5m"), 5*time.Minute),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
