// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/paduck86/claude-remote-guard/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// Execute runs the remoteguard CLI command tree.
func Execute() error {
	cmd := NewRootCmd(context.Background(), os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		var ec interface{ ExitCode() int }
		if !errors.As(err, &ec) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return err
	}
	return nil
}

// ExitCode returns the process exit code implied by err.
// Non-nil errors default to exit code 1 unless they expose ExitCode().
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		code := ec.ExitCode()
		if code > 0 {
			return code
		}
	}

	return 1
}

// exitError carries an explicit exit code without Execute re-printing
// the message.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func (e *exitError) ExitCode() int { return e.code }

// NewRootCmd builds the remoteguard root command.
func NewRootCmd(ctx context.Context, outWriter, errWriter io.Writer) *cobra.Command {
	opts := &rootOptions{}
	var showVersion bool
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := &cobra.Command{
		Use:           "remoteguard",
		Short:         "Remote approval gate for AI coding assistant commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				return writeVersion(cmd.OutOrStdout())
			}
			return cmd.Help()
		},
	}
	cmd.SetContext(ctx)
	cmd.SetOut(outWriter)
	cmd.SetErr(errWriter)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to config file")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&showVersion, "version", false, "Print version information and exit")

	const (
		groupHooks     = "hooks"
		groupRuntime   = "runtime"
		groupApprovals = "approvals"
		groupDiag      = "diagnostics"
	)
	cmd.AddGroup(
		&cobra.Group{ID: groupHooks, Title: "Hooks"},
		&cobra.Group{ID: groupRuntime, Title: "Runtime"},
		&cobra.Group{ID: groupApprovals, Title: "Approvals"},
		&cobra.Group{ID: groupDiag, Title: "Diagnostics"},
	)

	hookCmd := newHookCmd(opts)
	serveCmd := newServeCmd(opts)
	checkCmd := newCheckCmd(opts)
	testCmd := newTestCmd(opts)
	pendingCmd := newPendingCmd(opts)
	watchCmd := newWatchCmd(opts)
	versionCmd := newVersionCmd()

	hookCmd.GroupID = groupHooks

	serveCmd.GroupID = groupRuntime
	watchCmd.GroupID = groupRuntime

	pendingCmd.GroupID = groupApprovals

	checkCmd.GroupID = groupDiag
	testCmd.GroupID = groupDiag

	cmd.AddCommand(hookCmd)
	cmd.AddCommand(serveCmd)
	cmd.AddCommand(checkCmd)
	cmd.AddCommand(testCmd)
	cmd.AddCommand(pendingCmd)
	cmd.AddCommand(watchCmd)
	cmd.AddCommand(versionCmd)

	return cmd
}

// newLogger builds the CLI logger. Diagnostics always go to stderr —
// stdout belongs to command output (and, for hook, the decision).
func newLogger(opts *rootOptions, quietLevel slog.Level) *slog.Logger {
	level := quietLevel
	if opts.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
