package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.io/infrasutra/portfolio/internal/api"
	"github.io/infrasutra/portfolio/internal/config"
	"github.io/infrasutra/portfolio/internal/content"
	"github.io/infrasutra/portfolio/internal/mailer"
	"github.io/infrasutra/portfolio/internal/relay"
	"github.io/infrasutra/portfolio/internal/smtpserver"
	"github.io/infrasutra/portfolio/internal/sse"
	"github.io/infrasutra/portfolio/internal/store"
	webassets "github.io/infrasutra/portfolio/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the site, the contact relay and (optionally) the capture sink",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	logger := newLogger(cfg)

	site, err := content.Load(cfg.ContentPath)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink *api.Sink
	var smtpSrv *smtpserver.Server
	if cfg.Sink.Enabled {
		db, err := store.Open(ctx, cfg.Sink.DBPath)
		if err != nil {
			return fmt.Errorf("open sink database: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure sink schema: %w", err)
		}

		hub := sse.NewHub()
		sink = &api.Sink{Store: db, Hub: hub}

		authCfg := smtpserver.AuthConfig{
			Enabled:  cfg.Sink.AuthEnabled(),
			Username: cfg.Sink.Username,
			Password: cfg.Sink.Password,
		}
		if authCfg.Enabled {
			logger.Info("sink smtp auth enabled", "username", authCfg.Username)
		} else {
			logger.Warn("sink smtp auth disabled; sink accepts unauthenticated connections")
		}
		smtpSrv = smtpserver.New(db, hub, logger, fmt.Sprintf(":%d", cfg.Sink.Port), authCfg)
		if cfg.Sink.TLSEnabled() {
			cert, err := tls.LoadX509KeyPair(cfg.Sink.TLSCertFile, cfg.Sink.TLSKeyFile)
			if err != nil {
				return fmt.Errorf("load sink tls keypair: %w", err)
			}
			smtpSrv.SetTLSConfig(&tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12})
			logger.Info("sink smtp offers STARTTLS", "cert", cfg.Sink.TLSCertFile)
		}
		go func() {
			if err := smtpSrv.ListenAndServe(); err != nil {
				logger.Error("sink smtp stopped", "error", err)
			}
		}()

		if !cfg.Mail.Configured() {
			cfg.Mail = cfg.SinkMail()
			logger.Info("contact mail routed to capture sink", "to", cfg.Mail.To)
		}
	}
	if !cfg.Mail.Configured() {
		logger.Warn("SMTP settings incomplete; contact relay will answer 500")
	}

	handler := api.NewServer(site, relay.NewHandler(cfg.Mail, mailer.New, logger), sink, staticAssets(logger), logger)
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
	if smtpSrv != nil {
		if err := smtpSrv.Close(); err != nil {
			logger.Error("shutdown sink smtp", "error", err)
		}
	}
	return nil
}

func staticAssets(logger *slog.Logger) fs.FS {
	dist, err := webassets.Dist()
	if err != nil {
		logger.Warn("site assets unavailable", "error", err)
		return nil
	}
	if _, err := fs.Stat(dist, "index.html"); err != nil {
		logger.Warn("site assets missing index.html", "error", err)
		return nil
	}
	return dist
}
