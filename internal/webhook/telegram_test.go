// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paduck86/claude-remote-guard/internal/store"
)

const (
	telegramToken  = "123:abc"
	telegramSecret = "telegram-webhook-secret"
)

func telegramConfig() Config {
	return Config{
		TelegramBotToken:      telegramToken,
		TelegramWebhookSecret: telegramSecret,
		MachineIDSecret:       testSecret,
	}
}

// telegramAPI records the bot-API methods the handler calls back into.
type telegramAPI struct {
	mu    sync.Mutex
	srv   *httptest.Server
	paths []string
	edits []map[string]any
}

func newTelegramAPI(t *testing.T) *telegramAPI {
	t.Helper()
	api := &telegramAPI{}
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		api.paths = append(api.paths, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/editMessageText") {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			api.edits = append(api.edits, body)
		}
		writeTelegramOK(w)
	}))
	t.Cleanup(api.srv.Close)
	return api
}

func (a *telegramAPI) calledPaths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paths...)
}

func telegramCallback(t *testing.T, data string) string {
	t.Helper()
	update, err := json.Marshal(map[string]any{
		"update_id": 7,
		"callback_query": map[string]any{
			"id":   "cbq-1",
			"from": map[string]any{"username": "alice", "id": 42},
			"message": map[string]any{
				"message_id": 1001,
				"chat":       map[string]any{"id": 555},
			},
			"data": data,
		},
	})
	require.NoError(t, err)
	return string(update)
}

func telegramRequest(body, secret string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if secret != "" {
		r.Header.Set(telegramSecretHeader, secret)
	}
	return r
}

func TestTelegramCallbackApproves(t *testing.T) {
	api := newTelegramAPI(t)
	st := &stubStore{row: pendingRow(t), affected: 1}
	srv := newTestServer(telegramConfig(), st)
	srv.telegramBase = api.srv.URL

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, telegramRequest(telegramCallback(t, "approve:"+testRequestID), telegramSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	calls := st.resolveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, testRequestID, calls[0].id)
	assert.Equal(t, store.StatusApproved, calls[0].status)
	assert.Equal(t, "alice", calls[0].resolvedBy)

	// The spinner is answered and the original message rewritten.
	paths := api.calledPaths()
	assert.Contains(t, paths, "/bot123:abc/answerCallbackQuery")
	assert.Contains(t, paths, "/bot123:abc/editMessageText")
	require.Len(t, api.edits, 1)
	assert.Contains(t, api.edits[0]["text"], "alice")
	assert.Equal(t, float64(555), api.edits[0]["chat_id"])
}

func TestTelegramCallbackRejects(t *testing.T) {
	api := newTelegramAPI(t)
	st := &stubStore{row: pendingRow(t), affected: 1}
	srv := newTestServer(telegramConfig(), st)
	srv.telegramBase = api.srv.URL

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, telegramRequest(telegramCallback(t, "reject:"+testRequestID), telegramSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	calls := st.resolveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, store.StatusRejected, calls[0].status)
}

func TestTelegramSecretTokenRejected(t *testing.T) {
	st := &stubStore{row: pendingRow(t), affected: 1}
	srv := newTestServer(telegramConfig(), st)

	for _, secret := range []string{"", "wrong-secret"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, telegramRequest(telegramCallback(t, "approve:"+testRequestID), secret))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "secret %q", secret)
	}
	assert.Empty(t, st.resolveCalls())
}

func TestTelegramMissingConfig(t *testing.T) {
	srv := newTestServer(Config{TelegramBotToken: telegramToken}, &stubStore{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, telegramRequest(telegramCallback(t, "approve:"+testRequestID), telegramSecret))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTelegramNonCallbackUpdateAcknowledged(t *testing.T) {
	st := &stubStore{}
	srv := newTestServer(telegramConfig(), st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, telegramRequest(`{"update_id":8,"message":{"text":"hello"}}`, telegramSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Empty(t, st.resolveCalls())
}

func TestTelegramBadCallbackData(t *testing.T) {
	api := newTelegramAPI(t)
	srv := newTestServer(telegramConfig(), &stubStore{row: pendingRow(t), affected: 1})
	srv.telegramBase = api.srv.URL

	tests := []struct {
		name string
		data string
	}{
		{"no separator", "approve " + testRequestID},
		{"unknown action", "snooze:" + testRequestID},
		{"invalid uuid", "approve:not-a-uuid"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, telegramRequest(telegramCallback(t, tt.data), telegramSecret))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestTelegramMalformedUpdate(t *testing.T) {
	srv := newTestServer(telegramConfig(), &stubStore{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, telegramRequest("{not json", telegramSecret))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelegramOutcomeStatuses(t *testing.T) {
	api := newTelegramAPI(t)

	approvedRow := pendingRow(t)
	approvedRow.Status = store.StatusApproved

	tests := []struct {
		name       string
		store      *stubStore
		wantStatus int
	}{
		{"already resolved is idempotent", &stubStore{row: approvedRow}, http.StatusOK},
		{"not found", &stubStore{getErr: store.ErrNotFound}, http.StatusNotFound},
		{"race lost", &stubStore{row: pendingRow(t), affected: 0}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(telegramConfig(), tt.store)
			srv.telegramBase = api.srv.URL

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, telegramRequest(telegramCallback(t, "approve:"+testRequestID), telegramSecret))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
