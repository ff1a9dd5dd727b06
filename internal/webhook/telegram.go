// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	telegramAPIBase      = "https://api.telegram.org"
)

// telegramUpdate is the bot-API update envelope. Only callback queries
// from the inline keyboard are of interest.
type telegramUpdate struct {
	UpdateID      int64 `json:"update_id"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		From struct {
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
			ID        int64  `json:"id"`
		} `json:"from"`
		Message *struct {
			MessageID int64 `json:"message_id"`
			Chat      struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	if s.cfg.TelegramWebhookSecret == "" || s.cfg.TelegramBotToken == "" {
		logger.Error("telegram webhook not configured")
		http.Error(w, "webhook not configured", http.StatusInternalServerError)
		return
	}

	// setWebhook registered this secret; the header is the only proof
	// the caller is Telegram.
	token := r.Header.Get(telegramSecretHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.TelegramWebhookSecret)) != 1 {
		logger.Warn("telegram secret token rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}

	// Non-callback updates (messages, edits) are acknowledged and
	// ignored so Telegram stops redelivering them.
	if update.CallbackQuery == nil {
		writeTelegramOK(w)
		return
	}
	cq := update.CallbackQuery

	action, requestID, ok := strings.Cut(cq.Data, ":")
	if !ok || (action != actionApprove && action != actionReject) {
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	if !validRequestID(requestID) {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	resolvedBy := cq.From.Username
	if resolvedBy == "" {
		resolvedBy = cq.From.FirstName
	}
	if resolvedBy == "" {
		resolvedBy = fmt.Sprintf("%d", cq.From.ID)
	}

	outcome := s.resolve(r.Context(), action, requestID, resolvedBy, logger)

	s.ackTelegram(r, cq.ID, outcome.userMessage(action), logger)
	if outcome == outcomeResolved && cq.Message != nil {
		s.editTelegramMessage(r, cq.Message.Chat.ID, cq.Message.MessageID,
			outcome.userMessage(action)+" by @"+resolvedBy, logger)
	}

	if outcome == outcomeResolved || outcome == outcomeAlreadyResolved {
		writeTelegramOK(w)
		return
	}
	http.Error(w, outcome.userMessage(action), outcome.httpStatus())
}

func writeTelegramOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"ok":true}`)
}

// ackTelegram answers the callback query so the client stops showing
// its spinner. Best-effort.
func (s *Server) ackTelegram(r *http.Request, callbackID, text string, logger *slog.Logger) {
	s.telegramCall(r, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
	}, logger)
}

// editTelegramMessage rewrites the original approval message, removing
// the inline keyboard and recording the verdict. Best-effort.
func (s *Server) editTelegramMessage(r *http.Request, chatID, messageID int64, text string, logger *slog.Logger) {
	s.telegramCall(r, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, logger)
}

func (s *Server) telegramCall(r *http.Request, method string, payload map[string]any, logger *slog.Logger) {
	base := s.telegramBase
	if base == "" {
		base = telegramAPIBase
	}
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("%s/bot%s/%s", base, s.cfg.TelegramBotToken, method)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		logger.Warn("telegram ack build failed", "method", method, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Never echo the URL; it embeds the bot token.
		logger.Warn("telegram ack failed", "method", method, "error", "request error")
		return
	}
	resp.Body.Close()
}
