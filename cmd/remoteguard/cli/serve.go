// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/paduck86/claude-remote-guard/internal/store"
	"github.com/paduck86/claude-remote-guard/internal/webhook"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	var metrics bool
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook callback server",
		Long: `Hosts the provider callback endpoints that resolve approval
requests: /webhooks/slack, /webhooks/telegram, /webhooks/twilio.

Secrets come from the environment (optionally via a .env file):
SLACK_SIGNING_SECRET, TELEGRAM_BOT_TOKEN, TELEGRAM_WEBHOOK_SECRET,
TWILIO_AUTH_TOKEN, MACHINE_ID_SECRET, PUBLIC_URL, plus STORE_URL and
STORE_SERVICE_KEY for the row store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(opts, slog.LevelInfo)

			// A missing .env is fine; the environment may already be set.
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("serve: load env file %s: %w", envFile, err)
				}
			} else if err := godotenv.Load(); err == nil {
				logger.Debug("serve: loaded .env")
			}

			storeURL := os.Getenv("STORE_URL")
			serviceKey := os.Getenv("STORE_SERVICE_KEY")
			if storeURL == "" || serviceKey == "" {
				return fmt.Errorf("serve: STORE_URL and STORE_SERVICE_KEY are required")
			}

			st := store.NewClient(storeURL, serviceKey, store.WithLogger(logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := webhook.New(webhook.ConfigFromEnv(), st,
				webhook.WithLogger(logger),
				webhook.WithMetrics(metrics),
			)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8787", "Listen address")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Expose Prometheus metrics on /metrics")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")

	return cmd
}
