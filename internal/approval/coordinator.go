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

// Package approval runs the hook-side approval pipeline.
//
// One Coordinator handles one hook invocation: it classifies the
// command, and for dangerous commands persists an approval request,
// notifies the configured channel, and races three cancelable waits —
// the remote change feed, the local TTY, and the deadline. The first
// to resolve wins; the losers are cancelled before the decision is
// written. The coordinator fails closed on anything it cannot parse.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/paduck86/claude-remote-guard/internal/config"
	"github.com/paduck86/claude-remote-guard/internal/mask"
	"github.com/paduck86/claude-remote-guard/internal/notify"
	"github.com/paduck86/claude-remote-guard/internal/rules"
	"github.com/paduck86/claude-remote-guard/internal/store"
)

// shellTool is the host assistant's shell tool name. Hook events for
// any other tool pass through untouched.
const shellTool = "Bash"

// HookInput is the JSON the host assistant writes to stdin.
type HookInput struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// Command extracts the shell command from the tool input.
func (h HookInput) Command() string {
	cmd, _ := h.ToolInput["command"].(string)
	return cmd
}

// Decision is the JSON written to stdout. It is the hook's only output
// on that stream; diagnostics go to the logger (stderr).
type Decision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// ChangeStream is an open row-change subscription for one request.
type ChangeStream interface {
	Updates() <-chan store.Request
	Close() error
}

// Store is the slice of the row store the coordinator needs.
type Store interface {
	InsertRequest(ctx context.Context, req store.Request) error
	ResolvePending(ctx context.Context, id string, status store.Status, resolvedBy string, at time.Time) (int, error)
	Subscribe(ctx context.Context, id string) (ChangeStream, error)
}

// verdictSource identifies which wait resolved first.
type verdictSource int

const (
	sourceRemote verdictSource = iota
	sourceLocal
)

type verdict struct {
	source   verdictSource
	status   store.Status
	approved bool // for local verdicts
}

// Coordinator drives one hook invocation.
type Coordinator struct {
	cfg        *config.Config
	store      Store
	notifier   notify.Notifier
	classifier *rules.Classifier
	machineID  string
	logger     *slog.Logger

	openTTY func() (*os.File, error)
	newID   func() string
	getwd   func() (string, error)
	now     func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTTYOpener replaces how the controlling terminal is opened.
func WithTTYOpener(open func() (*os.File, error)) Option {
	return func(c *Coordinator) {
		c.openTTY = open
	}
}

// WithIDGenerator replaces request id generation.
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		c.newID = gen
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a coordinator. machineID is the signed machine identity
// already attached to the store connection.
func New(cfg *config.Config, st Store, notifier notify.Notifier, machineID string, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:        cfg,
		store:      st,
		notifier:   notifier,
		classifier: rules.NewClassifier(cfg.Rules.CustomPatterns, cfg.Rules.Whitelist),
		machineID:  machineID,
		logger:     slog.Default(),
		openTTY:    openDevTTY,
		newID:      uuid.NewString,
		getwd:      os.Getwd,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads one hook event from stdin and writes exactly one decision
// to stdout. All error paths still produce a decision; the returned
// error only signals that the decision could not be written.
func (c *Coordinator) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		c.logger.Warn("hook input unparseable", "error", err)
		return writeDecision(stdout, Decision{
			Decision: DecisionDeny,
			Reason:   "invalid hook input",
		})
	}

	if input.ToolName != shellTool {
		return writeDecision(stdout, Decision{Decision: DecisionAllow})
	}
	command := input.Command()
	if command == "" {
		return writeDecision(stdout, Decision{Decision: DecisionAllow})
	}

	result := c.classifier.Classify(command)
	if result.Safe {
		c.logger.Debug("command classified safe", "reason", result.Reason)
		return writeDecision(stdout, Decision{Decision: DecisionAllow})
	}

	c.logger.Info("command requires approval",
		"severity", result.Severity.String(),
		"reason", result.Reason,
	)
	return writeDecision(stdout, c.gate(ctx, command, result))
}

// gate persists the request, notifies, and awaits the verdict.
func (c *Coordinator) gate(ctx context.Context, command string, result rules.Result) Decision {
	id := c.newID()
	cwd, err := c.getwd()
	if err != nil {
		cwd = ""
	}
	masked := mask.Mask(command)

	row := store.Request{
		ID:           id,
		Command:      masked,
		DangerReason: result.Reason,
		Severity:     result.Severity.String(),
		CWD:          cwd,
		Status:       store.StatusPending,
		MachineID:    c.machineID,
	}
	if err := c.store.InsertRequest(ctx, row); err != nil {
		c.logger.Error("persist approval request failed", "error", mask.Mask(err.Error()))
		return c.defaultDecision("approval request could not be stored")
	}

	prompt := notify.Approval{
		RequestID: id,
		Severity:  result.Severity.String(),
		Reason:    result.Reason,
		Command:   masked,
		CWD:       cwd,
		Timestamp: c.now(),
	}
	if err := c.notifier.SendApproval(ctx, prompt); err != nil {
		c.logger.Error("approval notification failed", "error", mask.Mask(err.Error()))
		return c.defaultDecision("notification failed")
	}

	return c.awaitVerdict(ctx, id, masked)
}

// awaitVerdict races the remote change feed, the local TTY, and the
// deadline. Every wait is released before this function returns.
func (c *Coordinator) awaitVerdict(ctx context.Context, id, command string) Decision {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so a losing wait can report without blocking after the
	// race is decided.
	verdicts := make(chan verdict, 3)

	sub, err := c.store.Subscribe(ctx, id)
	if err != nil {
		// No reconnect: remote resolution is simply absent from the
		// race and the TTY and deadline carry the request.
		c.logger.Warn("remote subscription unavailable", "error", mask.Mask(err.Error()))
	} else {
		defer sub.Close()
		go watchRemote(ctx, sub, verdicts)
	}

	tty, err := c.openTTY()
	if err != nil {
		c.logger.Debug("local TTY unavailable; waiting on remote approval only", "error", err)
	} else {
		defer tty.Close()
		go promptTTY(tty, command, verdicts)
	}

	timer := time.NewTimer(c.cfg.Timeout())
	defer timer.Stop()

	select {
	case v := <-verdicts:
		return c.decisionFor(v)
	case <-timer.C:
		c.markTimeout(ctx, id)
		return c.defaultDecision("Approval timed out")
	case <-ctx.Done():
		return Decision{Decision: DecisionDeny, Reason: "hook cancelled"}
	}
}

// watchRemote forwards the first terminal status seen on the change
// feed. Later transitions are ignored for this invocation.
func watchRemote(ctx context.Context, sub ChangeStream, verdicts chan<- verdict) {
	for {
		select {
		case row, ok := <-sub.Updates():
			if !ok {
				return
			}
			if row.Status.Terminal() {
				verdicts <- verdict{source: sourceRemote, status: row.Status}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// markTimeout best-effort marks the row timed out. The webhook holds
// the service credential, so under the store's row policy this may be
// refused; the verdict is unaffected either way.
func (c *Coordinator) markTimeout(ctx context.Context, id string) {
	markCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.store.ResolvePending(markCtx, id, store.StatusTimeout, "timeout", c.now()); err != nil {
		c.logger.Warn("could not mark request timed out", "id", id, "error", mask.Mask(err.Error()))
	}
}

func (c *Coordinator) decisionFor(v verdict) Decision {
	channel := notify.ChannelName(c.cfg.Messenger.Type)

	switch v.source {
	case sourceLocal:
		if v.approved {
			return Decision{Decision: DecisionAllow, Reason: "Approved via Local TTY"}
		}
		return Decision{Decision: DecisionDeny, Reason: "Rejected via Local TTY"}
	default:
		switch v.status {
		case store.StatusApproved:
			return Decision{Decision: DecisionAllow, Reason: "Approved via " + channel}
		case store.StatusRejected:
			return Decision{Decision: DecisionDeny, Reason: "Rejected via " + channel}
		default: // timeout marked by another reader
			return c.defaultDecision("Approval timed out")
		}
	}
}

// defaultDecision applies the configured fail-open/fail-closed policy.
func (c *Coordinator) defaultDecision(reason string) Decision {
	if c.cfg.Rules.DefaultAction == config.ActionAllow {
		return Decision{Decision: DecisionAllow, Reason: reason}
	}
	return Decision{Decision: DecisionDeny, Reason: reason}
}

func writeDecision(w io.Writer, d Decision) error {
	if err := json.NewEncoder(w).Encode(d); err != nil {
		return fmt.Errorf("approval: write decision: %w", err)
	}
	return nil
}
