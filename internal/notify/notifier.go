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

// Package notify delivers approval prompts to the configured chat
// channel. Each implementation carries two affordances meaning approve
// and reject, bound to the request id: inline buttons for Slack and
// Telegram, reply keywords for SMS.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paduck86/claude-remote-guard/internal/config"
)

// Approval is the data carried by an approval prompt. Command must
// already be masked by the caller.
type Approval struct {
	RequestID string
	Severity  string
	Reason    string
	Command   string
	CWD       string
	Timestamp time.Time
}

// Notifier is the behaviour shared by all messenger variants.
type Notifier interface {
	// SendApproval delivers the approval prompt with approve/reject
	// affordances bound to the request id.
	SendApproval(ctx context.Context, a Approval) error

	// SendTest delivers a no-op-effect test message.
	SendTest(ctx context.Context) error

	// Probe authenticates the credentials against the provider and
	// returns a display handle for the authenticated identity.
	Probe(ctx context.Context) (string, error)

	// Validate is a purely structural credential check.
	Validate() error
}

// New constructs the notifier selected by messenger.type.
func New(m config.Messenger) (Notifier, error) {
	switch m.Type {
	case config.MessengerSlack:
		return NewSlackNotifier(m.Slack.WebhookURL), nil
	case config.MessengerTelegram:
		return NewTelegramNotifier(m.Telegram.BotToken, m.Telegram.ChatID), nil
	case config.MessengerTwilio:
		return NewTwilioNotifier(m.Twilio), nil
	default:
		return nil, fmt.Errorf("notify: unknown messenger type %q", m.Type)
	}
}

// ChannelName returns the human-readable channel name used in verdict
// reasons ("Approved via Slack").
func ChannelName(messengerType string) string {
	switch messengerType {
	case config.MessengerSlack:
		return "Slack"
	case config.MessengerTelegram:
		return "Telegram"
	case config.MessengerTwilio:
		return "Twilio"
	default:
		return messengerType
	}
}

// newHTTPClient returns the outbound client used for provider calls.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// maskToken redacts a credential for use in error strings, keeping a
// short prefix so operators can tell which credential failed.
func maskToken(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:4] + "***"
}

// severityLabel renders a severity with an attention marker for the
// higher tiers.
func severityLabel(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return "🚨 CRITICAL"
	case "high":
		return "⚠️ HIGH"
	case "medium":
		return "⚠ MEDIUM"
	default:
		return "LOW"
	}
}
