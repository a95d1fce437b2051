// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the concierge's
// settings: the ops HTTP server, logging, the database, scheduling, the
// messaging channel, text generation, search, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "fm-concierge")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// TelegramConfig holds the Bot API credentials and throttle.
type TelegramConfig struct {
	Token   string  // TELEGRAM_BOT_TOKEN
	ChatID  string  // TELEGRAM_CHAT_ID
	APIURL  string  // TELEGRAM_API_URL
	SendRPS float64 // TELEGRAM_SEND_RPS
}

// OpenAIConfig holds the chat-completions settings.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// SearchConfig selects and configures the candidate search backend.
type SearchConfig struct {
	Backend      string // catalog|web
	CatalogPath  string
	TavilyAPIKey string
	TavilyAPIURL string
}

// Search backends.
const (
	SearchCatalog = "catalog"
	SearchWeb     = "web"
)

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBPath string

	// Schedule
	Timezone      string         // IANA name
	Location      *time.Location // resolved Timezone
	GreetingTime  string         // HH:MM local
	GreetHour     int
	GreetMinute   int
	SweepInterval time.Duration
	Lookahead     time.Duration

	// Dispatch
	PollInterval          time.Duration
	MaxDeliveryAttempts   int
	CollaboratorTimeout   time.Duration
	StoreRetryAttempts    int
	SendRetryAttempts     int
	GenerateRetryAttempts int

	// Conversation
	HistoryLimit  int
	MaxCandidates int
	Principal     string
	Place         string // LOCATION, e.g. "Shelter Island, NY"
	PersonaName   string

	Telegram TelegramConfig
	OpenAI   OpenAIConfig
	Search   SearchConfig

	// OperatorWebhookURL receives alerts; empty means log only.
	OperatorWebhookURL string

	// Rate limiting (ops API)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
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
// Credentials are not required here; see ValidateRuntime.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath: getenv("DB_PATH", "fm_agent.db"),

		Timezone:      getenv("TIMEZONE", "America/Los_Angeles"),
		GreetingTime:  getenv("GREETING_TIME", "06:00"),
		SweepInterval: getdur("SWEEP_INTERVAL", 5*time.Minute),
		Lookahead:     getdur("LOOKAHEAD", 65*time.Minute),

		PollInterval:          getdur("POLL_INTERVAL", 2*time.Second),
		MaxDeliveryAttempts:   getint("MAX_DELIVERY_ATTEMPTS", 5),
		CollaboratorTimeout:   getdur("COLLABORATOR_TIMEOUT", 45*time.Second),
		StoreRetryAttempts:    getint("STORE_RETRY_ATTEMPTS", 4),
		SendRetryAttempts:     getint("SEND_RETRY_ATTEMPTS", 3),
		GenerateRetryAttempts: getint("GENERATE_RETRY_ATTEMPTS", 3),

		HistoryLimit:  getint("HISTORY_LIMIT", 10),
		MaxCandidates: getint("MAX_CANDIDATES", 5),
		Principal:     getenv("PRINCIPAL_NAME", "Peter"),
		Place:         getenv("LOCATION", "Shelter Island, NY"),
		PersonaName:   getenv("PERSONA_NAME", "Morris"),

		Telegram: TelegramConfig{
			Token:   getenv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:  getenv("TELEGRAM_CHAT_ID", ""),
			APIURL:  strings.TrimRight(getenv("TELEGRAM_API_URL", "https://api.telegram.org"), "/"),
			SendRPS: getfloat("TELEGRAM_SEND_RPS", 1),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getenv("OPENAI_API_KEY", ""),
			BaseURL:     getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getenv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: getfloat("OPENAI_TEMPERATURE", 0.7),
		},
		Search: SearchConfig{
			Backend:      strings.ToLower(getenv("SEARCH_BACKEND", SearchCatalog)),
			CatalogPath:  getenv("CATALOG_PATH", "data/events.md"),
			TavilyAPIKey: getenv("TAVILY_API_KEY", ""),
			TavilyAPIURL: strings.TrimRight(getenv("TAVILY_API_URL", "https://api.tavily.com"), "/"),
		},

		OperatorWebhookURL: getenv("OPERATOR_WEBHOOK_URL", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "fm-concierge"),
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
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return cfg, fmt.Errorf("TIMEZONE %q is not a known IANA zone", cfg.Timezone)
	}
	cfg.Location = loc

	gt, err := time.Parse("15:04", cfg.GreetingTime)
	if err != nil {
		return cfg, fmt.Errorf("GREETING_TIME %q must be HH:MM", cfg.GreetingTime)
	}
	cfg.GreetHour, cfg.GreetMinute = gt.Hour(), gt.Minute()

	if cfg.SweepInterval <= 0 || cfg.Lookahead <= 0 || cfg.PollInterval <= 0 || cfg.CollaboratorTimeout <= 0 {
		return cfg, errors.New("SWEEP_INTERVAL, LOOKAHEAD, POLL_INTERVAL and COLLABORATOR_TIMEOUT must be positive")
	}
	if cfg.Lookahead <= cfg.SweepInterval {
		return cfg, errors.New("LOOKAHEAD must exceed SWEEP_INTERVAL")
	}
	if cfg.MaxDeliveryAttempts < 1 {
		return cfg, errors.New("MAX_DELIVERY_ATTEMPTS must be >= 1")
	}
	if cfg.StoreRetryAttempts < 1 || cfg.SendRetryAttempts < 1 || cfg.GenerateRetryAttempts < 1 {
		return cfg, errors.New("STORE_RETRY_ATTEMPTS, SEND_RETRY_ATTEMPTS and GENERATE_RETRY_ATTEMPTS must be >= 1")
	}
	if cfg.HistoryLimit < 0 {
		return cfg, errors.New("HISTORY_LIMIT must be >= 0")
	}
	if cfg.MaxCandidates < 1 {
		return cfg, errors.New("MAX_CANDIDATES must be >= 1")
	}
	if cfg.Telegram.SendRPS < 0 {
		return cfg, errors.New("TELEGRAM_SEND_RPS must be >= 0")
	}
	if cfg.OpenAI.Temperature < 0 || cfg.OpenAI.Temperature > 2 {
		return cfg, errors.New("OPENAI_TEMPERATURE must be in [0,2]")
	}

	switch cfg.Search.Backend {
	case SearchCatalog:
		if strings.TrimSpace(cfg.Search.CatalogPath) == "" {
			return cfg, errors.New("CATALOG_PATH must not be empty")
		}
	case SearchWeb:
		if cfg.Search.TavilyAPIKey == "" {
			return cfg, errors.New("SEARCH_BACKEND=web requires TAVILY_API_KEY")
		}
	default:
		return cfg, errors.New("SEARCH_BACKEND must be one of: catalog, web")
	}

	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ValidateRuntime checks the credentials the background loops need. The
// binary calls it after Load; tests do not.
func (c Config) ValidateRuntime() error {
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.Telegram.ChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ---- helpers ----

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

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
