// Package main initializes and starts the POSVault HTTPS server, setting up
// configuration, logging, state storage, the engine, metrics, background
// jobs and TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/phessophissy/POSVault/internal/certgen"
	"github.com/phessophissy/POSVault/internal/clock"
	"github.com/phessophissy/POSVault/internal/config"
	"github.com/phessophissy/POSVault/internal/db"
	"github.com/phessophissy/POSVault/internal/logger"
	"github.com/phessophissy/POSVault/internal/metrics"
	"github.com/phessophissy/POSVault/internal/repository"
	"github.com/phessophissy/POSVault/internal/server/handler/http"
	"github.com/phessophissy/POSVault/internal/service"
	"github.com/phessophissy/POSVault/internal/state"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	if _, err := maxprocs.Set(maxprocs.Logger(zapLogger.Sugar().Infof)); err != nil {
		zapLogger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	if err := run(options, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func run(options *config.Options, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// State store: PostgreSQL when a DSN is configured, memory otherwise.
	var (
		store  *state.Store
		events service.EventSource
	)
	if options.DatabaseDSN != "" {
		postgresDB, err := db.InitPostgres(ctx, options.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("cannot init database: %w", err)
		}
		defer postgresDB.Close()

		db.StartEventPruner(ctx, postgresDB, options.PruneInterval, options.EventRetention, zapLogger)
		store = state.New(repository.NewPostgresStateRepository(postgresDB))
		events = repository.NewPostgresEventRepository(postgresDB)
	} else {
		zapLogger.Warn("no database configured, state is kept in memory")
		journal := service.NewMemoryJournal(0)
		store = state.New(nil)
		store.OnCommit(journal.Commit)
		events = journal
	}
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	zapLogger.Info("state loaded", zap.Uint64("seq", store.Seq()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	store.OnCommit(m.Commit)

	engine, err := service.NewEngine(store, clock.NewTicks(options.Tick), options.EngineOptions(), zapLogger, m)
	if err != nil {
		return err
	}
	if err := engine.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if vs, err := engine.VaultState(ctx); err == nil {
		m.VaultState(vs)
	}
	service.StartReconciler(ctx, engine, options.ReconcileInterval, zapLogger)

	// Load server TLS certificate and the CA used for client verification
	// and registration.
	cert, err := tls.LoadX509KeyPair(options.ServerCert, options.ServerKey)
	if err != nil {
		return fmt.Errorf("failed to load server TLS cert/key: %w", err)
	}
	issuer, err := certgen.NewIssuer(options.CACert, options.CAKey)
	if err != nil {
		return fmt.Errorf("failed to load CA: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    issuer.Pool(),
		MinVersion:   tls.VersionTLS12,
	}

	router := http.NewRouter(http.Handlers{
		Register:   &http.RegisterHandler{Registry: engine, Issuer: issuer},
		Vault:      &http.VaultHandler{Vault: engine},
		Ledger:     &http.LedgerHandler{Ledger: engine},
		Governance: &http.GovernanceHandler{Governance: engine},
		Events:     &http.EventsHandler{Events: events},
	}, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers := []*nethttp.Server{server}

	errCh := make(chan error, 2)
	go func() {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Addr))
		if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTPS server: %w", err)
		}
	}()

	if options.MetricsAddr != "" {
		mux := nethttp.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer := &nethttp.Server{
			Addr:              options.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, metricsServer)
		go func() {
			zapLogger.Info("serving prometheus metrics", zap.String("addr", options.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		zapLogger.Info("signal received, initiating graceful shutdown")
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), options.ShutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("server shutdown error", zap.String("addr", s.Addr), zap.Error(err))
		}
	}
	return runErr
}
