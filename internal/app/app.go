// Package app provides application-level wiring and dependency injection
// for the dynaquery server and CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"dynaquery/internal/api"
	"dynaquery/internal/config"
	"dynaquery/internal/db/repository"
	"dynaquery/internal/delivery"
	"dynaquery/internal/domain"
	"dynaquery/internal/engine"
	"dynaquery/internal/generator"
	"dynaquery/internal/middleware"
	"dynaquery/internal/report"
	"dynaquery/internal/schema"
	"dynaquery/internal/service/query"
	"dynaquery/internal/sqlrewrite"
)

// DevTenantHeader carries the tenant id when no token verification is
// configured outside production.
const DevTenantHeader = "X-Tenant-ID"

// Deps holds the external dependencies that main() must provide.
// These are things the app package cannot (or should not) create itself:
// database handles, config, and the logger.
type Deps struct {
	Cfg      *config.Config
	TargetDB *sql.DB
	// AuditDB holds query run history. Nil disables history.
	AuditDB *sql.DB
	// LLM overrides the OpenAI-compatible client built from Cfg.LLM.
	LLM    domain.TextGenerator
	Logger *slog.Logger
}

// App holds the fully-wired pipeline.
type App struct {
	Service   *query.Service
	Schema    *schema.Provider
	Validator *sqlrewrite.Validator
	Executor  *engine.Executor
	// SchemaChanges feeds the schema watcher; it is drained until the
	// context passed to New is done.
	SchemaChanges chan domain.SchemaChange

	cfg    *config.Config
	target *sql.DB
	logger *slog.Logger
}

// New wires the schema provider, generator, validator, executor, formatter
// and optional mailer and audit store into a query service.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	q := cfg.Query

	// === Schema ===
	introspector := schema.NewIntrospector(deps.TargetDB, cfg.DBDialect)
	provider := schema.NewProvider(introspector, schema.Config{
		AllowedTables:  q.AllowedTables,
		BlockedColumns: q.BlockedColumns,
		TTL:            q.SchemaCacheTTL,
	}, logger.With("component", "schema"))

	changes := make(chan domain.SchemaChange, 16)
	go provider.Watch(ctx, changes)

	// === Generation ===
	llm := deps.LLM
	if llm == nil {
		llm = generator.NewOpenAIClient(generator.OpenAIConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
		})
	}
	gen := generator.NewGenerator(provider, llm, generator.Config{
		TenantColumn: q.TenantColumn,
		Timeout:      cfg.LLM.Timeout,
	}, logger.With("component", "generator"))

	// === Validation + execution ===
	validator := sqlrewrite.NewValidator(sqlrewrite.Config{
		AllowedTables:  q.AllowedTables,
		BlockedColumns: q.BlockedColumns,
		TenantColumn:   q.TenantColumn,
		MaxRows:        q.MaxRows,
		Dialect:        cfg.DBDialect,
	}, logger.With("component", "validator"))
	executor := engine.NewExecutor(deps.TargetDB, engine.Config{
		Dialect:        cfg.DBDialect,
		MaxRows:        q.MaxRows,
		Timeout:        q.Timeout,
		BlockedColumns: q.BlockedColumns,
	}, logger.With("component", "executor"))

	// === Service ===
	svc := query.NewService(gen, validator, executor, report.NewFormatter(), logger.With("component", "query"))

	if cfg.SMTP.Enabled() {
		mailer, err := delivery.NewSMTPMailer(delivery.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			From:        cfg.SMTP.From,
			StartTLS:    cfg.SMTP.StartTLS,
			ImplicitTLS: cfg.SMTP.ImplicitTLS,
		}, logger.With("component", "mailer"))
		if err != nil {
			return nil, fmt.Errorf("smtp mailer: %w", err)
		}
		svc.SetMailer(mailer)
		logger.Info("email delivery enabled", "host", cfg.SMTP.Host)
	}

	if deps.AuditDB != nil {
		svc.SetRunRepository(repository.NewQueryRunRepo(deps.AuditDB))
	}

	return &App{
		Service:       svc,
		Schema:        provider,
		Validator:     validator,
		Executor:      executor,
		SchemaChanges: changes,
		cfg:           cfg,
		target:        deps.TargetDB,
		logger:        logger,
	}, nil
}

// Router builds the HTTP API. ctx bounds background middleware work.
func (a *App) Router(ctx context.Context) (http.Handler, error) {
	auth, err := a.authConfig(ctx)
	if err != nil {
		return nil, err
	}
	h := api.NewHandler(a.Service, a.Validator, a.Schema, a.SchemaChanges, a.target, a.logger)
	return api.NewRouter(ctx, h, api.RouterConfig{
		Auth: auth,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			Burst:             a.cfg.RateLimitBurst,
		},
		AllowedOrigins: a.cfg.CORSAllowedOrigins,
		Logger:         a.logger.With("component", "http"),
	}), nil
}

func (a *App) authConfig(ctx context.Context) (middleware.AuthConfig, error) {
	auth := middleware.AuthConfig{
		TenantClaim: a.cfg.Auth.TenantClaim,
		Logger:      a.logger.With("component", "auth"),
	}
	if a.cfg.Auth.OIDCEnabled() {
		v, err := middleware.NewOIDCValidator(ctx, a.cfg.Auth.IssuerURL, a.cfg.Auth.Audience)
		if err != nil {
			return auth, fmt.Errorf("oidc: %w", err)
		}
		auth.Validators = append(auth.Validators, v)
	}
	if a.cfg.Auth.JWTSecret != "" {
		v, err := middleware.NewHS256Validator(a.cfg.Auth.JWTSecret, a.cfg.Auth.Audience)
		if err != nil {
			return auth, err
		}
		auth.Validators = append(auth.Validators, v)
	}
	if len(auth.Validators) == 0 {
		if a.cfg.IsProduction() {
			return auth, fmt.Errorf("authentication must be configured in production")
		}
		a.logger.Warn("no token verification configured; tenants are read from the " + DevTenantHeader + " header")
		auth.DevTenantHeader = DevTenantHeader
	}
	return auth, nil
}
