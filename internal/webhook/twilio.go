// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
)

const twilioSignatureHeader = "X-Twilio-Signature"

// twilioReplyPattern matches "APPROVE <id>" / "REJECT <id>" replies,
// case-insensitively, with nothing else around them.
var twilioReplyPattern = regexp.MustCompile(`(?i)^\s*(approve|reject)\s+(\S+)\s*$`)

func (s *Server) handleTwilio(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	if s.cfg.TwilioAuthToken == "" {
		logger.Error("twilio auth token not configured")
		http.Error(w, "webhook not configured", http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	if !s.verifyTwilioSignature(r) {
		logger.Warn("twilio signature rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	match := twilioReplyPattern.FindStringSubmatch(r.PostFormValue("Body"))
	if match == nil {
		writeTwiML(w, http.StatusBadRequest, "Reply APPROVE <id> or REJECT <id>")
		return
	}

	action := actionReject
	if strings.EqualFold(match[1], "approve") {
		action = actionApprove
	}
	requestID := strings.ToLower(match[2])
	if !validRequestID(requestID) {
		writeTwiML(w, http.StatusBadRequest, "Invalid request id")
		return
	}

	resolvedBy := r.PostFormValue("From")
	if resolvedBy == "" {
		resolvedBy = "sms"
	}

	outcome := s.resolve(r.Context(), action, requestID, resolvedBy, logger)
	writeTwiML(w, outcome.httpStatus(), outcome.userMessage(action))
}

// verifyTwilioSignature recomputes base64(HMAC-SHA1(authToken, url +
// concat(sorted key+value))) over the callback URL and the POST
// parameters and compares it in constant time.
//
// Twilio signs the URL it was configured with, so PublicURL must match
// it when the server sits behind a proxy that rewrites Host.
func (s *Server) verifyTwilioSignature(r *http.Request) bool {
	signature := r.Header.Get(twilioSignatureHeader)
	if signature == "" {
		return false
	}

	url := s.cfg.PublicURL + r.URL.RequestURI()
	if s.cfg.PublicURL == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		url = scheme + "://" + r.Host + r.URL.RequestURI()
	}

	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(s.cfg.TwilioAuthToken))
	mac.Write([]byte(url))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(r.PostFormValue(k)))
	}
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

// writeTwiML responds with a <Message> TwiML document, which Twilio
// relays back to the sender as an SMS.
func writeTwiML(w http.ResponseWriter, status int, message string) {
	var escaped bytes.Buffer
	xml.EscapeText(&escaped, []byte(message))

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?><Response><Message>%s</Message></Response>", escaped.String())
}
