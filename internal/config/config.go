// Package config handles application configuration and environment loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// DefaultBlockedColumns are hidden from the schema and the validator unless
// BLOCKED_COLUMNS or a policy file overrides them.
var DefaultBlockedColumns = []string{
	"password", "password_hash", "api_key", "api_token", "access_token",
	"refresh_token", "secret", "remember_token", "card_number", "cvv",
}

// AuthConfig holds authentication and identity provider configuration.
type AuthConfig struct {
	IssuerURL   string // OIDC issuer URL; discovery provides the key set
	JWTSecret   string // HS256 shared secret for local/dev JWT auth
	Audience    string // Required JWT audience claim
	TenantClaim string // JWT claim carrying the tenant id (default: store_id)
}

// OIDCEnabled returns true when an external identity provider is configured.
func (a *AuthConfig) OIDCEnabled() bool {
	return a.IssuerURL != ""
}

// Enabled returns true when any token verification is configured.
func (a *AuthConfig) Enabled() bool {
	return a.OIDCEnabled() || a.JWTSecret != ""
}

// QueryConfig holds the operator controls of the query pipeline.
type QueryConfig struct {
	AllowedTables  []string
	BlockedColumns []string
	TenantColumn   string
	MaxRows        int
	Timeout        time.Duration
	SchemaCacheTTL time.Duration
	PolicyFile     string
}

// LLMConfig configures the OpenAI-compatible generation service.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// SMTPConfig configures email delivery. Delivery is disabled when Host is empty.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	StartTLS    bool
	ImplicitTLS bool
}

// Enabled returns true when an SMTP relay is configured.
func (s *SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// Config holds the configuration for the HTTP API, the target database and
// the query pipeline.
type Config struct {
	DBDialect         string // mysql, postgres, sqlite3 or duckdb
	DBDSN             string
	DBMaxOpenConns    int
	AuditDBPath       string // path to the SQLite query run history
	ListenAddr        string // HTTP listen address (default ":8080")
	TLSCertFile       string // TLS certificate file path (optional)
	TLSKeyFile        string // TLS private key file path (optional)
	AllowInsecureHTTP bool   // allow non-TLS listener in production (for trusted TLS termination)
	LogLevel          string // log level: debug, info, warn, error (default "info")
	LogFile           string // rotate logs into this file when set
	Env               string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 5)
	RateLimitBurst int     // burst capacity (default 10)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	Auth  AuthConfig
	Query QueryConfig
	LLM   LLMConfig
	SMTP  SMTPConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// environment is the flat variable layout LoadFromEnv decodes before it is
// folded into Config.
type environment struct {
	DBDialect      string   `env:"DB_DIALECT" envDefault:"sqlite3"`
	DBDSN          string   `env:"DB_DSN"`
	DBMaxOpenConns int      `env:"DB_MAX_OPEN_CONNS" envDefault:"8"`
	AuditDBPath    string   `env:"AUDIT_DB_PATH" envDefault:"dynaquery_audit.sqlite"`
	ListenAddr     string   `env:"LISTEN_ADDR" envDefault:":8080"`
	TLSCertFile    string   `env:"TLS_CERT_FILE"`
	TLSKeyFile     string   `env:"TLS_KEY_FILE"`
	AllowInsecure  bool     `env:"ALLOW_INSECURE_HTTP"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFile        string   `env:"LOG_FILE"`
	Env            string   `env:"ENV"`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"10"`
	CORSOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	IssuerURL   string `env:"AUTH_ISSUER_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	Audience    string `env:"AUTH_AUDIENCE"`
	TenantClaim string `env:"AUTH_TENANT_CLAIM" envDefault:"store_id"`

	AllowedTables  []string `env:"ALLOWED_TABLES"`
	TenantColumn   string   `env:"TENANT_COLUMN" envDefault:"store_id"`
	MaxRows        int      `env:"MAX_ROWS" envDefault:"1000"`
	QueryTimeout   seconds  `env:"QUERY_TIMEOUT_SECONDS" envDefault:"10"`
	SchemaCacheTTL seconds  `env:"SCHEMA_CACHE_TTL_SECONDS" envDefault:"3600"`
	PolicyFile     string   `env:"QUERY_POLICY_FILE"`

	LLMBaseURL     string  `env:"LLM_BASE_URL"`
	LLMAPIKey      string  `env:"LLM_API_KEY"`
	LLMModel       string  `env:"LLM_MODEL"`
	LLMTemperature float64 `env:"LLM_TEMPERATURE"`
	LLMTimeout     seconds `env:"LLM_TIMEOUT_SECONDS" envDefault:"30"`

	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername    string `env:"SMTP_USERNAME"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	SMTPFrom        string `env:"SMTP_FROM"`
	SMTPStartTLS    bool   `env:"SMTP_STARTTLS" envDefault:"true"`
	SMTPImplicitTLS bool   `env:"SMTP_IMPLICIT_TLS"`
}

// seconds is a duration written as a (possibly fractional) number of seconds.
type seconds time.Duration

var parsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(seconds(0)): func(v string) (interface{}, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seconds value %q", v)
		}
		return seconds(f * float64(time.Second)), nil
	},
}

// LoadFromEnv loads configuration from environment variables and, when
// QUERY_POLICY_FILE is set, the YAML policy file.
func LoadFromEnv() (*Config, error) {
	var e environment
	if err := env.ParseWithFuncs(&e, parsers); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg := &Config{
		DBDialect:          strings.ToLower(e.DBDialect),
		DBDSN:              e.DBDSN,
		DBMaxOpenConns:     e.DBMaxOpenConns,
		AuditDBPath:        e.AuditDBPath,
		ListenAddr:         e.ListenAddr,
		TLSCertFile:        e.TLSCertFile,
		TLSKeyFile:         e.TLSKeyFile,
		AllowInsecureHTTP:  e.AllowInsecure,
		LogLevel:           e.LogLevel,
		LogFile:            e.LogFile,
		Env:                e.Env,
		RateLimitRPS:       e.RateLimitRPS,
		RateLimitBurst:     e.RateLimitBurst,
		CORSAllowedOrigins: cleanList(e.CORSOrigins),
		Auth: AuthConfig{
			IssuerURL:   e.IssuerURL,
			JWTSecret:   e.JWTSecret,
			Audience:    e.Audience,
			TenantClaim: e.TenantClaim,
		},
		Query: QueryConfig{
			AllowedTables:  cleanList(e.AllowedTables),
			BlockedColumns: DefaultBlockedColumns,
			TenantColumn:   e.TenantColumn,
			MaxRows:        e.MaxRows,
			Timeout:        time.Duration(e.QueryTimeout),
			SchemaCacheTTL: time.Duration(e.SchemaCacheTTL),
			PolicyFile:     e.PolicyFile,
		},
		LLM: LLMConfig{
			BaseURL:     e.LLMBaseURL,
			APIKey:      e.LLMAPIKey,
			Model:       e.LLMModel,
			Temperature: e.LLMTemperature,
			Timeout:     time.Duration(e.LLMTimeout),
		},
		SMTP: SMTPConfig{
			Host:        e.SMTPHost,
			Port:        e.SMTPPort,
			Username:    e.SMTPUsername,
			Password:    e.SMTPPassword,
			From:        e.SMTPFrom,
			StartTLS:    e.SMTPStartTLS,
			ImplicitTLS: e.SMTPImplicitTLS,
		},
	}
	// An explicitly empty BLOCKED_COLUMNS disables the defaults.
	if v, ok := os.LookupEnv("BLOCKED_COLUMNS"); ok {
		cfg.Query.BlockedColumns = cleanList(strings.Split(v, ","))
	}

	if cfg.Query.PolicyFile != "" {
		p, err := LoadPolicyFile(cfg.Query.PolicyFile)
		if err != nil {
			return nil, err
		}
		p.Apply(&cfg.Query)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.collectWarnings()
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Query.MaxRows <= 0:
		return errors.New("MAX_ROWS must be positive")
	case c.Query.Timeout <= 0:
		return errors.New("QUERY_TIMEOUT_SECONDS must be positive")
	case (c.TLSCertFile == "") != (c.TLSKeyFile == ""):
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	case c.SMTP.Enabled() && c.SMTP.From == "":
		return errors.New("SMTP_FROM is required when SMTP_HOST is set")
	}
	if !c.IsProduction() {
		return nil
	}
	switch {
	case !c.Auth.Enabled():
		return errors.New("authentication must be configured in production (set AUTH_ISSUER_URL or JWT_SECRET)")
	case c.Auth.OIDCEnabled() && c.Auth.Audience == "":
		return errors.New("AUTH_AUDIENCE is required when AUTH_ISSUER_URL is set")
	case len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*":
		return errors.New("CORS wildcard (*) is not allowed in production")
	case c.TLSCertFile == "" && !c.AllowInsecureHTTP:
		return errors.New("TLS_CERT_FILE/TLS_KEY_FILE must be set in production unless ALLOW_INSECURE_HTTP=true")
	}
	return nil
}

func (c *Config) collectWarnings() {
	if len(c.Query.AllowedTables) == 0 {
		c.Warnings = append(c.Warnings, "ALLOWED_TABLES is empty: every query will be rejected")
	}
	if !c.Auth.Enabled() {
		c.Warnings = append(c.Warnings, "authentication is not configured: set AUTH_ISSUER_URL or JWT_SECRET")
	}
	if c.LLM.APIKey == "" {
		c.Warnings = append(c.Warnings, "LLM_API_KEY not set: generation requests will fail")
	}
}

// cleanList trims entries and drops blanks.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv loads variables from a .env file without overriding ones that
// are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
