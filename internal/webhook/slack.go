// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// Slack interactivity callback headers.
const (
	slackSignatureHeader = "X-Slack-Signature"
	slackTimestampHeader = "X-Slack-Request-Timestamp"

	// slackTimestampSkew is the maximum accepted clock skew for the
	// signed timestamp, per Slack's request-verification contract.
	slackTimestampSkew = 300
)

// slackPayload is the interactivity payload carried in the "payload"
// form field.
type slackPayload struct {
	Type string `json:"type"`
	User struct {
		Username string `json:"username"`
		Name     string `json:"name"`
		ID       string `json:"id"`
	} `json:"user"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
	ResponseURL string `json:"response_url"`
}

func (s *Server) handleSlack(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	if s.cfg.SlackSigningSecret == "" {
		logger.Error("slack signing secret not configured")
		http.Error(w, "webhook not configured", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if !s.verifySlackSignature(r.Header.Get(slackTimestampHeader), r.Header.Get(slackSignatureHeader), body) {
		logger.Warn("slack signature rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	var payload slackPayload
	if err := json.Unmarshal([]byte(form.Get("payload")), &payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if payload.Type != "block_actions" || len(payload.Actions) == 0 {
		http.Error(w, "unsupported payload", http.StatusBadRequest)
		return
	}

	var action string
	switch payload.Actions[0].ActionID {
	case "approve_command":
		action = actionApprove
	case "reject_command":
		action = actionReject
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	requestID := payload.Actions[0].Value
	if !validRequestID(requestID) {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	resolvedBy := payload.User.Username
	if resolvedBy == "" {
		resolvedBy = payload.User.Name
	}
	if resolvedBy == "" {
		resolvedBy = payload.User.ID
	}

	outcome := s.resolve(r.Context(), action, requestID, resolvedBy, logger)

	if outcome == outcomeResolved && payload.ResponseURL != "" {
		s.ackSlack(r, payload.ResponseURL, outcome.userMessage(action)+" by @"+resolvedBy, logger)
	}

	w.WriteHeader(outcome.httpStatus())
	fmt.Fprintln(w, outcome.userMessage(action))
}

// verifySlackSignature checks the v0 signed-body scheme: reject a
// missing header or a timestamp more than 300 s from now, then compare
// v0=hex(HMAC-SHA256(secret, "v0:ts:body")) in constant time.
func (s *Server) verifySlackSignature(timestamp, signature string, body []byte) bool {
	if timestamp == "" || signature == "" {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	skew := s.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > slackTimestampSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.SlackSigningSecret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

// ackSlack replaces the original message via the response_url,
// stripping the action buttons and appending the verdict. Best-effort;
// the transition already happened.
func (s *Server) ackSlack(r *http.Request, responseURL, text string, logger *slog.Logger) {
	payload, _ := json.Marshal(map[string]any{
		"replace_original": true,
		"text":             text,
	})
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, responseURL, bytes.NewReader(payload))
	if err != nil {
		logger.Warn("slack ack build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Warn("slack ack failed", "error", err)
		return
	}
	resp.Body.Close()
}
