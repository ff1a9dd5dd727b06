// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paduck86/claude-remote-guard/internal/config"
	"github.com/paduck86/claude-remote-guard/internal/rules"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <command>",
		Short: "Classify a command without gating it",
		Long: `Runs the classifier against a command and prints the verdict.
Exits non-zero when the command would require approval.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")

			// Custom patterns and the whitelist apply when a config is
			// present; without one the built-in rules still answer.
			var custom []rules.CustomPattern
			var whitelist []string
			if cfg, err := config.Load(opts.configPath); err == nil {
				custom = cfg.Rules.CustomPatterns
				whitelist = cfg.Rules.Whitelist
			}

			result := rules.NewClassifier(custom, whitelist).Classify(command)
			out := cmd.OutOrStdout()

			if result.Safe {
				fmt.Fprintf(out, "✅ allowed: %s\n", result.Reason)
				return nil
			}

			fmt.Fprintf(out, "🚧 approval required [%s]: %s\n", result.Severity, result.Reason)
			if result.Pattern != "" {
				fmt.Fprintf(out, "   matched: %s\n", result.Pattern)
			}
			return &exitError{code: 1, message: "check: command requires approval"}
		},
	}

	return cmd
}
