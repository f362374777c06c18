package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/desk-reservations/internal/application"
	"github.com/example/desk-reservations/internal/config"
	httptransport "github.com/example/desk-reservations/internal/http"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.bootstrap()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func newMailer(cfg config.Config, logger *slog.Logger) application.Mailer {
	if cfg.SMTP.Host == "" {
		logger.Warn("smtp host not configured, login codes are written to the log")
		return application.NewLogMailer(logger)
	}
	return application.NewSMTPMailer(application.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close store", "error", cerr)
		}
	}()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	now := time.Now
	directory := application.NewDirectoryServiceWithLogger(store, nil, now, logger)
	reservations := application.NewReservationServiceWithLogger(store, nil, now, logger)
	admin := application.NewAdminServiceWithLogger(store, nil, now, logger)
	auth := application.NewAuthServiceWithLogger(application.AuthConfig{
		AllowedDomain: cfg.AllowedEmailDomain,
		CodeTTL:       cfg.OTPTTL,
		MaxAttempts:   cfg.OTPMaxAttempts,
		CodeLength:    cfg.OTPLength,
		SessionTTL:    cfg.SessionTTL,
	}, directory, newMailer(cfg, logger), nil, now, logger)
	defer auth.Close()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:         httptransport.NewAuthHandler(auth, logger),
		Reservations: httptransport.NewReservationHandler(reservations, logger),
		Directory:    httptransport.NewDirectoryHandler(directory, logger),
		Admin:        httptransport.NewAdminHandler(admin, logger),
		Sessions:     auth,
		Users:        directory,
		OTPLimiter:   httptransport.PerMinute(cfg.OTPRatePerMinute),
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("desk reservation API listening", "addr", server.Addr, "data_file", store.DataFile())
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
