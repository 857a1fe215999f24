package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/botrelay/internal/api"
	"github.com/JakeFAU/botrelay/internal/clock/system"
	"github.com/JakeFAU/botrelay/internal/config"
	"github.com/JakeFAU/botrelay/internal/id/uuid"
	"github.com/JakeFAU/botrelay/internal/logging"
	"github.com/JakeFAU/botrelay/internal/relay"
	"github.com/JakeFAU/botrelay/internal/storage/memory"
	"github.com/JakeFAU/botrelay/internal/upstream"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *cfgFile)
		},
	}
}

func runServe(parent context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := buildServer(cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
		close(errCh)
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// buildServer assembles the relay stack from cfg.
func buildServer(cfg config.Config, logger *zap.Logger) *http.Server {
	transport := upstream.NewCollyTransport(upstream.CollyConfig{
		UserAgent: cfg.Upstream.UserAgent,
		Timeout:   cfg.UpstreamTimeout(),
	})
	fetcher := upstream.NewFetcher(transport, upstream.FetcherConfig{
		MaxRetries:        cfg.Upstream.MaxRetries,
		DefaultRetryAfter: cfg.DefaultRetryAfter(),
		MaxRetryAfter:     cfg.MaxRetryAfter(),
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             cfg.Upstream.Burst,
	}, logger.Named("fetcher"))
	client := upstream.NewClient(fetcher, upstream.ClientConfig{
		BaseURL:      cfg.Upstream.BaseURL,
		Token:        cfg.Upstream.Token,
		AuthScheme:   cfg.Upstream.AuthScheme,
		FetchTimeout: cfg.RequestTimeout(),
	}, logger.Named("upstream"))

	if budget := cfg.RetryBudget(); cfg.RequestTimeout() < budget {
		logger.Warn("request timeout is shorter than the upstream retry budget; slow retries surface as timeouts",
			zap.Duration("request_timeout", cfg.RequestTimeout()),
			zap.Duration("retry_budget", budget),
		)
	}
	if !cfg.HasCredential() {
		logger.Warn("upstream token not set; upstream-backed endpoints will fail until it is configured")
	}

	svc := relay.NewService(client, memory.NewRegistrationStore(), system.New(), relay.Settings{
		PublicBotPrefix:      cfg.Relay.PublicBotPrefix,
		PublicCategoryID:     cfg.Relay.PublicCategoryID,
		AllowedCategories:    cfg.Relay.AllowedCategories,
		CredentialConfigured: cfg.HasCredential(),
	}, logger.Named("relay"))

	apiServer := api.NewServer(svc, uuid.NewUUIDGenerator(), cfg, logger.Named("api"))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
