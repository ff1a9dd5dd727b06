// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSendApproval(t *testing.T) {
	var path string
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		captured, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("123:abc", "99")
	n.baseURL = srv.URL

	err := n.SendApproval(context.Background(), Approval{
		RequestID: "11111111-2222-4333-8444-555555555555",
		Severity:  "high",
		Reason:    "Runs with elevated privileges",
		Command:   "sudo systemctl restart nginx",
	})
	require.NoError(t, err)
	assert.Equal(t, "/bot123:abc/sendMessage", path)

	var payload struct {
		ChatID      string `json:"chat_id"`
		ReplyMarkup struct {
			InlineKeyboard [][]struct {
				Text         string `json:"text"`
				CallbackData string `json:"callback_data"`
			} `json:"inline_keyboard"`
		} `json:"reply_markup"`
	}
	require.NoError(t, json.Unmarshal(captured, &payload))
	assert.Equal(t, "99", payload.ChatID)
	require.Len(t, payload.ReplyMarkup.InlineKeyboard, 1)
	require.Len(t, payload.ReplyMarkup.InlineKeyboard[0], 2)
	assert.Equal(t, "approve:11111111-2222-4333-8444-555555555555", payload.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "reject:11111111-2222-4333-8444-555555555555", payload.ReplyMarkup.InlineKeyboard[0][1].CallbackData)
}

func TestTelegramProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/getMe", r.URL.Path)
		io.WriteString(w, `{"ok":true,"result":{"username":"guard_bot","first_name":"Guard"}}`)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("123:abc", "99")
	n.baseURL = srv.URL

	who, err := n.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "@guard_bot", who)
}

func TestTelegramAPIErrorSurfacesDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("123:wrong", "99")
	n.baseURL = srv.URL

	err := n.SendTest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestTelegramErrorNeverLeaksToken(t *testing.T) {
	n := NewTelegramNotifier("123456789:AAH-secret-token-value", "99")
	n.baseURL = "http://127.0.0.1:1"

	err := n.SendTest(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AAH-secret-token-value")
}

func TestTelegramValidate(t *testing.T) {
	assert.Error(t, NewTelegramNotifier("", "99").Validate())
	assert.Error(t, NewTelegramNotifier("123:abc", "").Validate())
	assert.Error(t, NewTelegramNotifier("no-colon", "99").Validate())
	assert.NoError(t, NewTelegramNotifier("123:abc", "99").Validate())
}
