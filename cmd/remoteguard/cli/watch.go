// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/paduck86/claude-remote-guard/internal/config"
	"github.com/paduck86/claude-remote-guard/internal/store"
	"github.com/paduck86/claude-remote-guard/internal/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of pending approval requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(opts, slog.LevelWarn)

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			machineID, err := signedIdentity(cfg.MachineIDSecret)
			if err != nil {
				logger.Warn("watch: machine identity unavailable", "error", err)
			}

			st := store.NewClient(cfg.Store.URL, cfg.Store.AnonKey,
				store.WithIdentity(machineID),
				store.WithLogger(logger),
			)

			return watch.Run(cmd.Context(), watch.Config{
				Store:      st,
				ConfigPath: opts.configPath,
			})
		},
	}

	return cmd
}
