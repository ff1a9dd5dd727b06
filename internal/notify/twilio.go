// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/paduck86/claude-remote-guard/internal/config"
)

// twilioAPIBase is the Twilio REST root. Overridden in tests.
const twilioAPIBase = "https://api.twilio.com"

// TwilioNotifier sends approval prompts as SMS. SMS has no buttons, so
// the prompt instructs the approver to reply "APPROVE <id>" or
// "REJECT <id>"; the inbound-SMS webhook parses the reply.
type TwilioNotifier struct {
	accountSID string
	authToken  string
	from       string
	to         string
	baseURL    string
	client     *http.Client
}

// NewTwilioNotifier creates a Twilio SMS notifier.
func NewTwilioNotifier(cfg config.TwilioConfig) *TwilioNotifier {
	return &TwilioNotifier{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		to:         cfg.ToNumber,
		baseURL:    twilioAPIBase,
		client:     newHTTPClient(),
	}
}

// SendApproval sends the prompt SMS with reply instructions.
func (n *TwilioNotifier) SendApproval(ctx context.Context, a Approval) error {
	body := fmt.Sprintf(
		"🚧 Command approval required [%s]\nReason: %s\nCommand: %s\nDir: %s\n\nReply APPROVE %s or REJECT %s",
		severityLabel(a.Severity), a.Reason, a.Command, a.CWD,
		a.RequestID, a.RequestID,
	)
	return n.sendSMS(ctx, body)
}

// SendTest sends a plain test SMS.
func (n *TwilioNotifier) SendTest(ctx context.Context) error {
	return n.sendSMS(ctx, "🚧 Remote Guard test message — your Twilio number is wired up.")
}

// Probe fetches the account resource and returns its friendly name.
func (n *TwilioNotifier) Probe(ctx context.Context) (string, error) {
	u := n.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(n.accountSID) + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("notify: twilio request: %w", err)
	}
	req.SetBasicAuth(n.accountSID, n.authToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("notify: twilio probe (token %s): connection failed", maskToken(n.authToken))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("notify: twilio probe returned %d", resp.StatusCode)
	}

	var account struct {
		FriendlyName string `json:"friendly_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return "", fmt.Errorf("notify: decode twilio account: %w", err)
	}
	return account.FriendlyName, nil
}

// Validate checks the credentials structurally.
func (n *TwilioNotifier) Validate() error {
	if n.accountSID == "" || n.authToken == "" {
		return fmt.Errorf("notify: twilio account sid and auth token are required")
	}
	if !strings.HasPrefix(n.accountSID, "AC") {
		return fmt.Errorf("notify: twilio account sid %s is malformed", maskToken(n.accountSID))
	}
	if n.from == "" || n.to == "" {
		return fmt.Errorf("notify: twilio from and to numbers are required")
	}
	return nil
}

func (n *TwilioNotifier) sendSMS(ctx context.Context, body string) error {
	form := url.Values{}
	form.Set("From", n.from)
	form.Set("To", n.to)
	form.Set("Body", body)

	u := n.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(n.accountSID) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(n.accountSID, n.authToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: twilio send (token %s): connection failed", maskToken(n.authToken))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("notify: twilio send returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
