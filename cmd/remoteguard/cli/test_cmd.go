// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paduck86/claude-remote-guard/internal/config"
	"github.com/paduck86/claude-remote-guard/internal/notify"
)

func newTestCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Verify messenger credentials and send a test notification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			notifier, err := notify.New(cfg.Messenger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			channel := notify.ChannelName(cfg.Messenger.Type)

			if err := notifier.Validate(); err != nil {
				return fmt.Errorf("test: %s credentials invalid: %w", channel, err)
			}
			fmt.Fprintf(out, "✅ %s credentials look valid\n", channel)

			who, err := notifier.Probe(cmd.Context())
			if err != nil {
				return fmt.Errorf("test: %s probe failed: %w", channel, err)
			}
			fmt.Fprintf(out, "✅ %s reachable: %s\n", channel, who)

			if err := notifier.SendTest(cmd.Context()); err != nil {
				return fmt.Errorf("test: %s send failed: %w", channel, err)
			}
			fmt.Fprintf(out, "✅ Test notification sent via %s\n", channel)
			return nil
		},
	}

	return cmd
}
