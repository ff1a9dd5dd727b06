// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Action ids carried by the approve/reject buttons. The webhook's
// Slack handler matches on these exact values.
const (
	SlackActionApprove = "approve_command"
	SlackActionReject  = "reject_command"
)

// SlackNotifier posts Block Kit approval prompts to a Slack incoming
// webhook. Button callbacks arrive at the Slack app's interactivity
// URL, which is the gate's webhook server.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Slack notifier for the webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     newHTTPClient(),
	}
}

type slackBlock struct {
	Type     string           `json:"type"`
	Text     *slackText       `json:"text,omitempty"`
	Fields   []slackText      `json:"fields,omitempty"`
	Elements []map[string]any `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendApproval posts the prompt with approve/reject buttons whose
// values carry the request id.
func (n *SlackNotifier) SendApproval(ctx context.Context, a Approval) error {
	blocks := []slackBlock{
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*🚧 Command approval required*"},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Severity:*\n" + severityLabel(a.Severity)},
				{Type: "mrkdwn", Text: "*Reason:*\n" + a.Reason},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Command:*\n```%s```", a.Command)},
				{Type: "mrkdwn", Text: "*Directory:*\n`" + a.CWD + "`"},
			},
		},
		{
			Type: "actions",
			Elements: []map[string]any{
				{
					"type":      "button",
					"style":     "primary",
					"action_id": SlackActionApprove,
					"value":     a.RequestID,
					"text":      slackText{Type: "plain_text", Text: "✅ Approve"},
				},
				{
					"type":      "button",
					"style":     "danger",
					"action_id": SlackActionReject,
					"value":     a.RequestID,
					"text":      slackText{Type: "plain_text", Text: "❌ Reject"},
				},
			},
		},
		{
			Type: "context",
			Elements: []map[string]any{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("Request %s | %s", a.RequestID, a.Timestamp.UTC().Format(time.RFC3339)),
				},
			},
		},
	}

	return n.post(ctx, map[string]any{"blocks": blocks})
}

// SendTest posts a plain test message.
func (n *SlackNotifier) SendTest(ctx context.Context) error {
	return n.post(ctx, map[string]any{
		"text": "🚧 Remote Guard test message — your Slack channel is wired up.",
	})
}

// Probe validates the webhook URL shape. Slack incoming webhooks have
// no identity endpoint, so this is the closest non-destructive check.
func (n *SlackNotifier) Probe(ctx context.Context) (string, error) {
	if err := n.Validate(); err != nil {
		return "", err
	}
	return "Slack incoming webhook", nil
}

// Validate checks the webhook URL structurally.
func (n *SlackNotifier) Validate() error {
	if n.webhookURL == "" {
		return fmt.Errorf("notify: slack webhook URL is empty")
	}
	u, err := url.Parse(n.webhookURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("notify: slack webhook URL must be a valid https URL")
	}
	return nil
}

func (n *SlackNotifier) post(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notify: slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// The webhook URL is itself a credential; never echo it.
		return fmt.Errorf("notify: post to slack webhook (%s): connection failed", hostOnly(n.webhookURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("notify: slack webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// hostOnly strips the secret path from a webhook URL for error strings.
func hostOnly(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Host
}
