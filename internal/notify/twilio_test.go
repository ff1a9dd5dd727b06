// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paduck86/claude-remote-guard/internal/config"
)

func twilioTestConfig() config.TwilioConfig {
	return config.TwilioConfig{
		AccountSID: "AC0123456789abcdef",
		AuthToken:  "auth-token-value",
		FromNumber: "+15551110000",
		ToNumber:   "+15552220000",
	}
}

func TestTwilioSendApproval(t *testing.T) {
	var path, user, pass string
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		user, pass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"sid":"SM123"}`)
	}))
	defer srv.Close()

	n := NewTwilioNotifier(twilioTestConfig())
	n.baseURL = srv.URL

	err := n.SendApproval(context.Background(), Approval{
		RequestID: "11111111-2222-4333-8444-555555555555",
		Severity:  "medium",
		Reason:    "Installs packages",
		Command:   "npm install leftpad",
	})
	require.NoError(t, err)

	assert.Equal(t, "/2010-04-01/Accounts/AC0123456789abcdef/Messages.json", path)
	assert.Equal(t, "AC0123456789abcdef", user)
	assert.Equal(t, "auth-token-value", pass)
	assert.Equal(t, "+15551110000", form["From"][0])
	assert.Equal(t, "+15552220000", form["To"][0])
	assert.Contains(t, form["Body"][0], "Reply APPROVE 11111111-2222-4333-8444-555555555555")
	assert.Contains(t, form["Body"][0], "REJECT 11111111-2222-4333-8444-555555555555")
}

func TestTwilioProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC0123456789abcdef.json", r.URL.Path)
		io.WriteString(w, `{"friendly_name":"Dev Account"}`)
	}))
	defer srv.Close()

	n := NewTwilioNotifier(twilioTestConfig())
	n.baseURL = srv.URL

	who, err := n.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Dev Account", who)
}

func TestTwilioSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"Authenticate"}`)
	}))
	defer srv.Close()

	n := NewTwilioNotifier(twilioTestConfig())
	n.baseURL = srv.URL

	err := n.SendTest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTwilioErrorNeverLeaksAuthToken(t *testing.T) {
	n := NewTwilioNotifier(twilioTestConfig())
	n.baseURL = "http://127.0.0.1:1"

	err := n.SendTest(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "auth-token-value")
}

func TestTwilioValidate(t *testing.T) {
	assert.NoError(t, NewTwilioNotifier(twilioTestConfig()).Validate())

	cfg := twilioTestConfig()
	cfg.AccountSID = "XX123"
	assert.Error(t, NewTwilioNotifier(cfg).Validate())

	cfg = twilioTestConfig()
	cfg.AuthToken = ""
	assert.Error(t, NewTwilioNotifier(cfg).Validate())

	cfg = twilioTestConfig()
	cfg.ToNumber = ""
	assert.Error(t, NewTwilioNotifier(cfg).Validate())
}

func TestNewNotifierFactory(t *testing.T) {
	n, err := New(config.Messenger{Type: config.MessengerSlack, Slack: config.SlackConfig{WebhookURL: "https://hooks.slack.com/x"}})
	require.NoError(t, err)
	assert.IsType(t, &SlackNotifier{}, n)

	n, err = New(config.Messenger{Type: config.MessengerTelegram, Telegram: config.TelegramConfig{BotToken: "1:a", ChatID: "9"}})
	require.NoError(t, err)
	assert.IsType(t, &TelegramNotifier{}, n)

	n, err = New(config.Messenger{Type: config.MessengerTwilio, Twilio: twilioTestConfig()})
	require.NoError(t, err)
	assert.IsType(t, &TwilioNotifier{}, n)

	_, err = New(config.Messenger{Type: "pager"})
	assert.Error(t, err)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "Slack", ChannelName(config.MessengerSlack))
	assert.Equal(t, "Telegram", ChannelName(config.MessengerTelegram))
	assert.Equal(t, "Twilio", ChannelName(config.MessengerTwilio))
	assert.Equal(t, "pager", ChannelName("pager"))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "***", maskToken("short"))
	assert.Equal(t, "1234***", maskToken("1234567890"))
}
