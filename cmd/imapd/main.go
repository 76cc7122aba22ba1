package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/archiveopteryx/imapd/internal/authbackend"
	"github.com/archiveopteryx/imapd/internal/config"
	"github.com/archiveopteryx/imapd/internal/imap"
	"github.com/archiveopteryx/imapd/internal/imap/handlers"
	"github.com/archiveopteryx/imapd/internal/logging"
	"github.com/archiveopteryx/imapd/internal/memstore"
	"github.com/archiveopteryx/imapd/internal/metrics"
	"github.com/archiveopteryx/imapd/internal/server"
)

func main() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	var tlsConfig *tls.Config
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading TLS certificate: %v\n", err)
			os.Exit(1)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   cfg.TLS.MinTLSVersion(),
		}
		logger.Info("TLS configured",
			slog.String("cert", cfg.TLS.CertFile),
			slog.String("min_version", cfg.TLS.MinVersion))
	}

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	store := memstore.New()
	auth := authbackend.NewMemoryBackend()
	if err := seedDevUser(auth); err != nil {
		fmt.Fprintf(os.Stderr, "error seeding dev user: %v\n", err)
		os.Exit(1)
	}

	dispatcher := imap.NewDispatcher(handlers.Registry())

	srv, err := server.New(server.Config{
		Cfg:       &cfg,
		TLSConfig: tlsConfig,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating server: %v\n", err)
		os.Exit(1)
	}

	srv.SetHandler(func(ctx context.Context, raw *server.Connection) {
		conn := imap.NewConnection(raw, imap.ConnectionDeps{
			Config:     &cfg,
			Dispatcher: dispatcher,
			Storage:    store,
			Auth:       auth,
			Metrics:    collector,
			Logger:     raw.Logger(),
		})
		conn.Run(ctx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path)
		go func() {
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics server started", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	logger.Info("starting imapd", "hostname", cfg.Hostname, "listeners", len(cfg.Listeners))

	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("IMAP server stopped")
}

// seedDevUser registers a single full-rights account so the server is
// immediately reachable without an external provisioning step. Real
// deployments are expected to replace authbackend.MemoryBackend with a
// Backend backed by their own user directory.
func seedDevUser(auth *authbackend.MemoryBackend) error {
	full := authbackend.Rights{
		authbackend.RightLookup:         true,
		authbackend.RightRead:           true,
		authbackend.RightKeepSeen:       true,
		authbackend.RightWrite:          true,
		authbackend.RightInsert:         true,
		authbackend.RightPost:           true,
		authbackend.RightCreateMailbox:  true,
		authbackend.RightDeleteMailbox:  true,
		authbackend.RightDeleteMessages: true,
		authbackend.RightExpunge:        true,
		authbackend.RightAdmin:          true,
	}
	return auth.AddUser("testuser", "testpass", 1, "INBOX", full)
}
