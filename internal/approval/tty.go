// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package approval

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// openDevTTY opens the process-controlling terminal directly. Stdin is
// already consumed by the hook event, so the local prompt must bypass
// it. Failure is expected when the hook runs detached from a terminal.
func openDevTTY() (*os.File, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}

// promptTTY asks the human at the terminal for a verdict. Accepts
// y/yes and n/no; anything else re-prompts. Returns silently when the
// terminal is closed, which is how the coordinator aborts this wait.
func promptTTY(tty *os.File, command string, verdicts chan<- verdict) {
	fmt.Fprintf(tty, "\n🚧 Approval required for: %s\n", command)
	fmt.Fprint(tty, "Approve? [y/n]: ")

	scanner := bufio.NewScanner(tty)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			verdicts <- verdict{source: sourceLocal, approved: true}
			return
		case "n", "no":
			verdicts <- verdict{source: sourceLocal, approved: false}
			return
		default:
			fmt.Fprint(tty, "Please answer y or n. Approve? [y/n]: ")
		}
	}
}
