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
	"strings"
	"time"
)

// telegramAPIBase is the Bot API root. Overridden in tests.
const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends approval prompts through the Telegram Bot API
// with an inline keyboard. Callback data is "approve:<id>" or
// "reject:<id>", which the webhook's Telegram handler parses.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPIBase,
		client:   newHTTPClient(),
	}
}

// SendApproval sends the prompt with an approve/reject inline keyboard.
func (n *TelegramNotifier) SendApproval(ctx context.Context, a Approval) error {
	text := fmt.Sprintf(
		"🚧 *Command approval required*\n\n*Severity:* %s\n*Reason:* %s\n*Command:*\n```\n%s\n```\n*Directory:* `%s`\n_%s_",
		severityLabel(a.Severity), a.Reason, a.Command, a.CWD,
		a.Timestamp.UTC().Format(time.RFC3339),
	)

	payload := map[string]any{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "Markdown",
		"reply_markup": map[string]any{
			"inline_keyboard": [][]map[string]string{{
				{"text": "✅ Approve", "callback_data": "approve:" + a.RequestID},
				{"text": "❌ Reject", "callback_data": "reject:" + a.RequestID},
			}},
		},
	}
	return n.call(ctx, "sendMessage", payload, nil)
}

// SendTest sends a plain test message.
func (n *TelegramNotifier) SendTest(ctx context.Context) error {
	payload := map[string]any{
		"chat_id": n.chatID,
		"text":    "🚧 Remote Guard test message — your Telegram chat is wired up.",
	}
	return n.call(ctx, "sendMessage", payload, nil)
}

// Probe calls getMe and returns the bot's username.
func (n *TelegramNotifier) Probe(ctx context.Context) (string, error) {
	var result struct {
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
	}
	if err := n.call(ctx, "getMe", map[string]any{}, &result); err != nil {
		return "", err
	}
	if result.Username != "" {
		return "@" + result.Username, nil
	}
	return result.FirstName, nil
}

// Validate checks the credentials structurally. Bot tokens have the
// form "<digits>:<opaque>".
func (n *TelegramNotifier) Validate() error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("notify: telegram bot token and chat id are required")
	}
	if !strings.Contains(n.botToken, ":") {
		return fmt.Errorf("notify: telegram bot token %s is malformed", maskToken(n.botToken))
	}
	return nil
}

// call invokes one Bot API method and optionally decodes the result.
// The bot token appears in the request URL and must never be echoed in
// an error string.
func (n *TelegramNotifier) call(ctx context.Context, method string, payload map[string]any, result any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal telegram payload: %w", err)
	}

	u := n.baseURL + "/bot" + n.botToken + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notify: telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: telegram %s (bot %s): connection failed", method, maskToken(n.botToken))
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("notify: telegram %s returned %d with unparseable body", method, resp.StatusCode)
	}
	if !envelope.OK {
		return fmt.Errorf("notify: telegram %s failed: %s", method, envelope.Description)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("notify: decode telegram %s result: %w", method, err)
		}
	}
	return nil
}
