// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the SQLite ledger path, the federation
// client endpoint, messaging transport credentials, and watcher policy.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "hermes")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// FedimintConfig defines how to reach the federation client daemon that
// issues invoices, streams settlement updates, and mints notes.
type FedimintConfig struct {
	BaseURL  string // FEDIMINT_BASE_URL (e.g. "http://localhost:7070")
	Password string // FEDIMINT_PASSWORD (bearer credential; may be empty)
}

// NostrConfig defines the identity and default relays used for direct
// message delivery of minted notes.
type NostrConfig struct {
	SecretKey string   // NOSTR_SECRET_KEY (hex)
	Relays    []string // NOSTR_RELAYS, CSV; fallback when a contact has none
}

// XMPPConfig defines the chat-presence fallback transport. Disabled unless
// explicitly enabled; delivery addresses are name@ChatServer.
type XMPPConfig struct {
	Enabled    bool   // XMPP_ENABLED
	Username   string // XMPP_USERNAME
	Password   string // XMPP_PASSWORD
	Server     string // XMPP_SERVER (host:port to dial)
	ChatServer string // XMPP_CHAT_SERVER (domain part of recipient JIDs)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	Domain            string        // public host used in verify URLs
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath        string        // SQLite path
	MinAmountMsat int64         // smallest payable callback amount
	NoteValidity  time.Duration // validity window passed to the mint
	InvoiceExpiry time.Duration // watcher deadline for unpaid invoices
	WatcherLimit  int           // cap on concurrently live watchers

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

	// External collaborators
	Fedimint FedimintConfig
	Nostr    NostrConfig
	XMPP     XMPPConfig

	// Observability
	OTEL OTELConfig
}

// VerifyBaseURL returns the externally visible base used when constructing
// verify URLs, e.g. "http://pay.example.com:8080".
func (c Config) VerifyBaseURL() string {
	return fmt.Sprintf("http://%s:%s", c.Domain, c.Port)
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		Domain:            getenv("DOMAIN", "localhost"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:        getenv("DB_PATH", "hermes.db"),
		MinAmountMsat: getint64("MIN_AMOUNT_MSAT", 1000),
		NoteValidity:  getdur("NOTE_VALIDITY", 7*24*time.Hour),
		InvoiceExpiry: getdur("INVOICE_EXPIRY", 24*time.Hour),
		WatcherLimit:  getint("WATCHER_LIMIT", 10000),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// External collaborators
		Fedimint: FedimintConfig{
			BaseURL:  strings.TrimRight(getenv("FEDIMINT_BASE_URL", "http://localhost:7070"), "/"),
			Password: getenv("FEDIMINT_PASSWORD", ""),
		},
		Nostr: NostrConfig{
			SecretKey: getenv("NOSTR_SECRET_KEY", ""),
			Relays:    splitCSV(getenv("NOSTR_RELAYS", "")),
		},
		XMPP: XMPPConfig{
			Enabled:    getbool("XMPP_ENABLED", false),
			Username:   getenv("XMPP_USERNAME", ""),
			Password:   getenv("XMPP_PASSWORD", ""),
			Server:     getenv("XMPP_SERVER", ""),
			ChatServer: getenv("XMPP_CHAT_SERVER", ""),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "hermes"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if strings.TrimSpace(cfg.Domain) == "" {
		return cfg, errors.New("DOMAIN must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MinAmountMsat <= 0 {
		return cfg, errors.New("MIN_AMOUNT_MSAT must be > 0")
	}
	if cfg.NoteValidity <= 0 {
		return cfg, errors.New("NOTE_VALIDITY must be > 0")
	}
	if cfg.InvoiceExpiry <= 0 {
		return cfg, errors.New("INVOICE_EXPIRY must be > 0")
	}
	if cfg.WatcherLimit < 1 {
		return cfg, errors.New("WATCHER_LIMIT must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if strings.TrimSpace(cfg.Fedimint.BaseURL) == "" {
		return cfg, errors.New("FEDIMINT_BASE_URL must not be empty")
	}
	if cfg.XMPP.Enabled {
		if cfg.XMPP.Username == "" || cfg.XMPP.Server == "" || cfg.XMPP.ChatServer == "" {
			return cfg, errors.New("XMPP_USERNAME, XMPP_SERVER and XMPP_CHAT_SERVER are required when XMPP_ENABLED")
		}
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
