// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/paduck86/claude-remote-guard/internal/config"
	"github.com/paduck86/claude-remote-guard/internal/store"
)

func newPendingCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending approval requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(opts, slog.LevelWarn)

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			machineID, err := signedIdentity(cfg.MachineIDSecret)
			if err != nil {
				logger.Warn("pending: machine identity unavailable", "error", err)
			}

			st := store.NewClient(cfg.Store.URL, cfg.Store.AnonKey,
				store.WithIdentity(machineID),
				store.WithLogger(logger),
			)

			// Rows older than an hour can no longer be resolved, so they
			// are not worth listing.
			rows, err := st.ListPending(cmd.Context(), time.Now().Add(-time.Hour))
			if err != nil {
				return fmt.Errorf("pending: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No pending approval requests.")
				return nil
			}

			fmt.Fprintf(out, "%-10s %-10s %-10s %s\n", "ID", "SEVERITY", "AGE", "COMMAND")
			now := time.Now()
			for _, row := range rows {
				id := row.ID
				if len(id) > 8 {
					id = id[:8]
				}
				age := now.Sub(row.CreatedAt).Round(time.Second)
				fmt.Fprintf(out, "%-10s %-10s %-10s %s\n", id, row.Severity, age, row.Command)
			}
			return nil
		},
	}

	return cmd
}
