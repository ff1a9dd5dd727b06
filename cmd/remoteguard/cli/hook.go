// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/paduck86/claude-remote-guard/internal/approval"
	"github.com/paduck86/claude-remote-guard/internal/config"
	"github.com/paduck86/claude-remote-guard/internal/identity"
	"github.com/paduck86/claude-remote-guard/internal/notify"
	"github.com/paduck86/claude-remote-guard/internal/store"
)

func newHookCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "PreToolUse hook — reads JSON from stdin, returns allow/deny",
		Long: `Gates shell commands issued by an AI coding assistant.

Reads one PreToolUse event from stdin, classifies the command, and for
dangerous commands blocks until the request is approved remotely, at
the local terminal, or times out.

Setup (add to ~/.claude/settings.json):
{
  "hooks": {
    "PreToolUse": [
      {
        "matcher": "Bash",
        "hooks": [{ "type": "command", "command": "remoteguard hook" }]
      }
    ]
  }
}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Logger goes to stderr — stdout carries the decision.
			logger := newLogger(opts, slog.LevelWarn)

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				// No config means no rules and no default action to fall
				// back on. Fail closed, but still emit a decision.
				logger.Error("hook: config unavailable", "error", err)
				return writeHookDeny(cmd, "configuration unavailable")
			}
			cfg.ApplyEnvOverrides(logger)

			machineID, err := signedIdentity(cfg.MachineIDSecret)
			if err != nil {
				// The store's row policy rejects inserts without an
				// identity, but the decision path must still run.
				logger.Warn("hook: machine identity unavailable", "error", err)
			}

			notifier, err := notify.New(cfg.Messenger)
			if err != nil {
				logger.Error("hook: notifier unavailable", "error", err)
				return writeHookDeny(cmd, "notifier unavailable")
			}

			st := store.NewClient(cfg.Store.URL, cfg.Store.AnonKey,
				store.WithIdentity(machineID),
				store.WithLogger(logger),
			)

			coord := approval.New(cfg, storeAdapter{st}, notifier, machineID,
				approval.WithLogger(logger))
			return coord.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	return cmd
}

// storeAdapter narrows *store.Client's Subscribe to the coordinator's
// ChangeStream interface.
type storeAdapter struct {
	*store.Client
}

func (a storeAdapter) Subscribe(ctx context.Context, id string) (approval.ChangeStream, error) {
	return a.Client.Subscribe(ctx, id)
}

// signedIdentity computes the machine fingerprint and, when a shared
// secret is configured, wraps it in the signed identity format.
func signedIdentity(secret string) (string, error) {
	fingerprint, err := identity.Fingerprint()
	if err != nil {
		return "", err
	}
	if secret == "" {
		return fingerprint, nil
	}
	return identity.NewSigner(secret).Sign(fingerprint, time.Now()), nil
}

func writeHookDeny(cmd *cobra.Command, reason string) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(approval.Decision{
		Decision: approval.DecisionDeny,
		Reason:   reason,
	})
}
