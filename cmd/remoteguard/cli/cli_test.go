// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cli

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd(context.Background(), &out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckSafeCommand(t *testing.T) {
	out, err := runCLI(t, "check", "git", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "✅ allowed")
}

func TestCheckDangerousCommandExitsNonZero(t *testing.T) {
	out, err := runCLI(t, "check", "sudo", "reboot")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, out, "🚧 approval required [high]")
	assert.Contains(t, out, "matched:")
}

func TestCheckRequiresArgument(t *testing.T) {
	_, err := runCLI(t, "check")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "remoteguard")
	assert.Contains(t, out, "Go go")
}

func TestVersionFlag(t *testing.T) {
	out, err := runCLI(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "remoteguard")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(fmt.Errorf("plain")))
	assert.Equal(t, 2, ExitCode(&exitError{code: 2, message: "boom"}))
	assert.Equal(t, 1, ExitCode(&exitError{code: 0, message: "zero defaults up"}))
}
