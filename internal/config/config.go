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

// Package config loads the gate's YAML configuration document.
//
// The document lives at ~/.remote-guard/config.yaml by default. Values
// may be overridden per environment, but overrides can only harden the
// gate: the timeout floor rises from 10 to 60 seconds and the default
// action may not be weakened from deny to allow.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/paduck86/claude-remote-guard/internal/rules"
)

const (
	// minTimeoutSeconds is the floor applied at config load.
	minTimeoutSeconds = 10

	// minEnvTimeoutSeconds is the floor for environment overrides, so
	// an attacker-controlled environment cannot shrink the window.
	minEnvTimeoutSeconds = 60

	defaultTimeoutSeconds = 300

	// EnvTimeoutSeconds overrides rules.timeoutSeconds.
	EnvTimeoutSeconds = "REMOTE_GUARD_TIMEOUT_SECONDS"

	// EnvDefaultAction overrides rules.defaultAction. Weakening from
	// deny to allow is refused.
	EnvDefaultAction = "REMOTE_GUARD_DEFAULT_ACTION"
)

// Messenger types accepted in messenger.type.
const (
	MessengerSlack    = "slack"
	MessengerTelegram = "telegram"
	MessengerTwilio   = "twilio"
)

// Default actions accepted in rules.defaultAction.
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// Config is the on-disk configuration document.
type Config struct {
	Messenger       Messenger `yaml:"messenger"`
	Store           Store     `yaml:"store"`
	Rules           Rules     `yaml:"rules"`
	MachineIDSecret string    `yaml:"machineIdSecret"`
}

// Messenger selects and configures the notification channel.
type Messenger struct {
	Type     string         `yaml:"type"`
	Slack    SlackConfig    `yaml:"slack"`
	Telegram TelegramConfig `yaml:"telegram"`
	Twilio   TwilioConfig   `yaml:"twilio"`
}

// SlackConfig holds Slack incoming-webhook credentials.
type SlackConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// TelegramConfig holds Telegram bot credentials.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// TwilioConfig holds Twilio SMS credentials.
type TwilioConfig struct {
	AccountSID string `yaml:"accountSid"`
	AuthToken  string `yaml:"authToken"`
	FromNumber string `yaml:"fromNumber"`
	ToNumber   string `yaml:"toNumber"`
}

// Store points at the shared row store.
type Store struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anonKey"`
}

// Rules configures classification and the approval deadline.
type Rules struct {
	TimeoutSeconds int                   `yaml:"timeoutSeconds"`
	DefaultAction  string                `yaml:"defaultAction"`
	CustomPatterns []rules.CustomPattern `yaml:"customPatterns"`
	Whitelist      []string              `yaml:"whitelist"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".remote-guard", "config.yaml")
}

// Load reads and validates the configuration document, applying
// defaults and the load-time timeout floor.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Rules.TimeoutSeconds == 0 {
		c.Rules.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Rules.TimeoutSeconds < minTimeoutSeconds {
		c.Rules.TimeoutSeconds = minTimeoutSeconds
	}
	if c.Rules.DefaultAction == "" {
		c.Rules.DefaultAction = ActionDeny
	}
}

// Validate checks structural requirements: a known messenger type with
// its credentials present, and a reachable store endpoint.
func (c *Config) Validate() error {
	switch c.Messenger.Type {
	case MessengerSlack:
		if c.Messenger.Slack.WebhookURL == "" {
			return fmt.Errorf("config: messenger.slack.webhookUrl is required")
		}
	case MessengerTelegram:
		if c.Messenger.Telegram.BotToken == "" || c.Messenger.Telegram.ChatID == "" {
			return fmt.Errorf("config: messenger.telegram.botToken and chatId are required")
		}
	case MessengerTwilio:
		t := c.Messenger.Twilio
		if t.AccountSID == "" || t.AuthToken == "" || t.FromNumber == "" || t.ToNumber == "" {
			return fmt.Errorf("config: messenger.twilio requires accountSid, authToken, fromNumber, toNumber")
		}
	default:
		return fmt.Errorf("config: unknown messenger.type %q (must be slack, telegram, or twilio)", c.Messenger.Type)
	}

	if c.Store.URL == "" || c.Store.AnonKey == "" {
		return fmt.Errorf("config: store.url and store.anonKey are required")
	}

	if c.Rules.DefaultAction != ActionAllow && c.Rules.DefaultAction != ActionDeny {
		return fmt.Errorf("config: rules.defaultAction must be allow or deny, got %q", c.Rules.DefaultAction)
	}
	return nil
}

// ApplyEnvOverrides applies environment overrides. Overrides may only
// harden the gate: the timeout floor is 60 seconds and a deny default
// cannot be weakened to allow.
func (c *Config) ApplyEnvOverrides(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if v := os.Getenv(EnvTimeoutSeconds); v != "" {
		secs, err := strconv.Atoi(v)
		switch {
		case err != nil:
			logger.Warn("config: ignoring non-numeric timeout override", "value", v)
		case secs < minEnvTimeoutSeconds:
			logger.Warn("config: clamping timeout override",
				"requested", secs, "floor", minEnvTimeoutSeconds)
			c.Rules.TimeoutSeconds = minEnvTimeoutSeconds
		default:
			c.Rules.TimeoutSeconds = secs
		}
	}

	if v := os.Getenv(EnvDefaultAction); v != "" {
		switch {
		case v == ActionDeny:
			c.Rules.DefaultAction = ActionDeny
		case v == ActionAllow && c.Rules.DefaultAction == ActionDeny:
			logger.Warn("config: refusing to weaken default action via environment",
				"requested", v, "kept", c.Rules.DefaultAction)
		case v == ActionAllow:
			c.Rules.DefaultAction = ActionAllow
		default:
			logger.Warn("config: ignoring unknown default action override", "value", v)
		}
	}
}

// Timeout returns the approval deadline as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Rules.TimeoutSeconds) * time.Second
}
