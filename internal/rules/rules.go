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

// Package rules classifies shell commands as safe or dangerous.
//
// Classification is ordered: the safe allowlist is checked first, then
// the user whitelist, then user-supplied danger patterns, then the
// built-in danger patterns grouped by severity. The first match wins.
// Classification is pure — same input, same result.
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity ranks how dangerous a command is.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity name used in stored rows
// and notification payloads.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity converts a severity name to a Severity.
// Unknown names default to medium so user patterns with a typo'd
// severity still gate the command instead of silently passing it.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// Result is the outcome of classifying one command.
type Result struct {
	// Safe is true when the command may run without approval.
	Safe bool

	// Severity applies when Safe is false.
	Severity Severity

	// Reason is a human-readable explanation of the classification.
	Reason string

	// Pattern is the source pattern that matched, for diagnostics.
	Pattern string
}

// CustomPattern is a user-supplied danger pattern from the config file.
type CustomPattern struct {
	Pattern  string `yaml:"pattern"`
	Severity string `yaml:"severity"`
	Reason   string `yaml:"reason"`
}

// compiledRule is a compiled danger pattern with its verdict.
type compiledRule struct {
	re       *regexp.Regexp
	severity Severity
	reason   string
}

// Classifier evaluates commands against the allowlist, the user
// whitelist, user danger patterns, and the built-in danger patterns.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	whitelist []*regexp.Regexp
	custom    []compiledRule
}

// NewClassifier compiles user extensions into a classifier.
// Invalid user patterns are skipped — a broken pattern must never
// block a safe command or hide a dangerous one behind an error.
func NewClassifier(custom []CustomPattern, whitelist []string) *Classifier {
	c := &Classifier{}

	for _, pat := range whitelist {
		re, err := regexp.Compile(pat)
		if err != nil {
			continue
		}
		c.whitelist = append(c.whitelist, re)
	}

	for _, cp := range custom {
		re, err := regexp.Compile(cp.Pattern)
		if err != nil {
			continue
		}
		reason := cp.Reason
		if reason == "" {
			reason = "Matched custom danger pattern"
		}
		c.custom = append(c.custom, compiledRule{
			re:       re,
			severity: ParseSeverity(cp.Severity),
			reason:   reason,
		})
	}

	return c
}

// Classify evaluates one command string. First match wins:
// safe allowlist, user whitelist, user danger patterns, built-in
// danger patterns (critical tier first), then safe by default.
func (c *Classifier) Classify(command string) Result {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Result{Safe: true, Reason: "safe command"}
	}

	for _, re := range safeAllowlist {
		if re.MatchString(trimmed) {
			return Result{Safe: true, Reason: "safe command", Pattern: re.String()}
		}
	}

	for _, re := range c.whitelist {
		if re.MatchString(trimmed) {
			return Result{Safe: true, Reason: "whitelisted", Pattern: re.String()}
		}
	}

	for _, rule := range c.custom {
		if rule.re.MatchString(trimmed) {
			return Result{
				Severity: rule.severity,
				Reason:   rule.reason,
				Pattern:  rule.re.String(),
			}
		}
	}

	for _, rule := range builtinRules {
		if rule.re.MatchString(trimmed) {
			return Result{
				Severity: rule.severity,
				Reason:   rule.reason,
				Pattern:  rule.re.String(),
			}
		}
	}

	return Result{Safe: true, Reason: "no dangerous patterns detected"}
}
