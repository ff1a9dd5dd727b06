// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package rules

import "regexp"

// safeAllowlist matches read-only commands that never need approval.
// Patterns are anchored so a safe prefix cannot smuggle a dangerous
// suffix through a separator.
var safeAllowlist = []*regexp.Regexp{
	regexp.MustCompile(`^git\s+(status|log|diff|branch|show|remote\s+-v)(\s+[^;&|<>]*)?$`),
	regexp.MustCompile(`^ls(\s+-[A-Za-z]+)*(\s+[^;&|<>]*)?$`),
	regexp.MustCompile(`^pwd$`),
	regexp.MustCompile(`^whoami$`),
	regexp.MustCompile(`^id$`),
	regexp.MustCompile(`^date(\s+[^;&|<>]*)?$`),
	regexp.MustCompile(`^uptime$`),
	regexp.MustCompile(`^uname(\s+-[A-Za-z]+)*$`),
	regexp.MustCompile(`^df(\s+-[A-Za-z]+)*(\s+[^;&|<>]*)?$`),
	regexp.MustCompile(`^which\s+[\w./-]+$`),
	regexp.MustCompile(`^printenv\s+\w+$`), // single variable, no assignment
	regexp.MustCompile(`^wc(\s+-[A-Za-z]+)*(\s+[^;&|<>]*)?$`),
}

// builtinRules is the ordered built-in danger list. Critical patterns
// come first; within a tier the order is the match order.
var builtinRules = []compiledRule{
	// critical
	{
		re:       regexp.MustCompile(`(curl|wget)[^|;&]*\|\s*(sudo\s+)?(ba|z|da|fi)?sh\b`),
		severity: SeverityCritical,
		reason:   "Pipes a network download into a shell",
	},
	{
		re:       regexp.MustCompile(`base64\s+(-d|-D|--decode)[^|;&]*\|\s*(sudo\s+)?(ba|z|da)?sh\b`),
		severity: SeverityCritical,
		reason:   "Decodes an encoded payload into a shell",
	},
	{
		re:       regexp.MustCompile(`rm\s+(-[A-Za-z]*[rR][A-Za-z]*f[A-Za-z]*|-[A-Za-z]*f[A-Za-z]*[rR][A-Za-z]*)\s+(--no-preserve-root\s+)?(/|/\*)(\s|$)`),
		severity: SeverityCritical,
		reason:   "Recursive force delete from root directory",
	},
	{
		re:       regexp.MustCompile(`rm\s+(-[A-Za-z]*[rR][A-Za-z]*f[A-Za-z]*|-[A-Za-z]*f[A-Za-z]*[rR][A-Za-z]*)\s+(~/?|\$HOME/?)(\s|$)`),
		severity: SeverityCritical,
		reason:   "Recursive force delete of home directory",
	},
	{
		re:       regexp.MustCompile(`:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;?\s*:`),
		severity: SeverityCritical,
		reason:   "Fork bomb",
	},
	{
		re:       regexp.MustCompile(`\bdd\s+[^;|&]*of=/dev/(sd|hd|vd|nvme|disk|mmcblk)`),
		severity: SeverityCritical,
		reason:   "Writes directly to a raw disk device",
	},
	{
		re:       regexp.MustCompile(`\bmkfs(\.\w+)?\s`),
		severity: SeverityCritical,
		reason:   "Creates a filesystem, destroying existing data",
	},

	// high
	{
		re:       regexp.MustCompile(`git\s+push\s+[^;|&]*(--force(-with-lease)?|-f)(\s|$)`),
		severity: SeverityHigh,
		reason:   "Force push rewrites remote history",
	},
	{
		re:       regexp.MustCompile(`git\s+reset\s+--hard\b`),
		severity: SeverityHigh,
		reason:   "Hard reset discards uncommitted work",
	},
	{
		re:       regexp.MustCompile(`(^|[;&|]\s*)sudo\s`),
		severity: SeverityHigh,
		reason:   "Runs with elevated privileges",
	},
	{
		re:       regexp.MustCompile(`chmod\s+(-[A-Za-z]+\s+)*(a\+rwx|0?777)\b`),
		severity: SeverityHigh,
		reason:   "Makes files world-writable",
	},
	{
		re:       regexp.MustCompile(`\b(npm|pnpm|yarn)\s+publish\b|\bcargo\s+publish\b|\btwine\s+upload\b|\bgem\s+push\b`),
		severity: SeverityHigh,
		reason:   "Publishes to a package registry",
	},

	// medium
	{
		re:       regexp.MustCompile(`\b(npm|pnpm)\s+(install|i|add)\s+\S|\byarn\s+add\s+\S|\bpip3?\s+install\b|\bgem\s+install\b|\bcargo\s+install\b|\bbrew\s+install\b|\bapt(-get)?\s+install\b|\bgo\s+install\s+\S+@`),
		severity: SeverityMedium,
		reason:   "Installs packages",
	},
	{
		re:       regexp.MustCompile(`\b(docker|podman)\s+(run|exec)\b`),
		severity: SeverityMedium,
		reason:   "Runs code inside a container",
	},

	// low
	{
		re:       regexp.MustCompile(`^(env|printenv)\s*$`),
		severity: SeverityLow,
		reason:   "Prints the entire environment",
	},
}
