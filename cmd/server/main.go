// Command server runs the dynaquery HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"dynaquery/internal/app"
	"dynaquery/internal/config"
	"dynaquery/internal/db"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "Load environment variables from this file when it exists")
	listen := flags.String("listen", "", "Listen address (overrides LISTEN_ADDR)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	logger, closer := cfg.NewLogger()
	defer func() { _ = closer.Close() }()
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	target, err := db.OpenTarget(ctx, db.TargetConfig{
		Dialect:      cfg.DBDialect,
		DSN:          cfg.DBDSN,
		MaxOpenConns: cfg.DBMaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("target database: %w", err)
	}
	defer func() { _ = target.Close() }()

	deps := app.Deps{Cfg: cfg, TargetDB: target, Logger: logger}
	if cfg.AuditDBPath != "" {
		audit, err := db.OpenAuditStore(ctx, cfg.AuditDBPath)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		defer func() { _ = audit.Close() }()
		deps.AuditDB = audit
	}

	a, err := app.New(ctx, deps)
	if err != nil {
		return err
	}
	router, err := a.Router(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Generation plus execution can take a while.
		WriteTimeout: cfg.LLM.Timeout + cfg.Query.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("HTTP API listening",
		"addr", cfg.ListenAddr,
		"dialect", cfg.DBDialect,
		"tables", len(cfg.Query.AllowedTables),
		"history", deps.AuditDB != nil,
		"base_url", baseURL(cfg.ListenAddr, cfg.TLSCertFile != ""),
	)

	if cfg.TLSCertFile != "" {
		err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// baseURL turns a listen address into the URL clients should dial.
// Wildcard hosts become localhost.
func baseURL(listenAddr string, tls bool) string {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		addr = ":8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return scheme + "://" + addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}
