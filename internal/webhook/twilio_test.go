// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paduck86/claude-remote-guard/internal/store"
)

const twilioToken = "twilio-auth-token"

func twilioSign(authToken, callbackURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(callbackURL))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(form.Get(k)))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func twilioRequest(form url.Values, signature string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		r.Header.Set(twilioSignatureHeader, signature)
	}
	return r
}

func signedTwilioRequest(form url.Values) *http.Request {
	// httptest requests carry Host example.com and no TLS, so the
	// handler reconstructs this exact URL.
	sig := twilioSign(twilioToken, "http://example.com/webhooks/twilio", form)
	return twilioRequest(form, sig)
}

func smsForm(body string) url.Values {
	form := url.Values{}
	form.Set("From", "+15552220000")
	form.Set("Body", body)
	form.Set("MessageSid", "SM123")
	return form
}

func TestTwilioReplyApproves(t *testing.T) {
	st := &stubStore{row: pendingRow(t), affected: 1}
	srv := newTestServer(Config{TwilioAuthToken: twilioToken, MachineIDSecret: testSecret}, st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedTwilioRequest(smsForm("APPROVE "+testRequestID)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Response><Message>✅ Command approved</Message></Response>")

	calls := st.resolveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, testRequestID, calls[0].id)
	assert.Equal(t, store.StatusApproved, calls[0].status)
	assert.Equal(t, "+15552220000", calls[0].resolvedBy)
}

func TestTwilioReplyRejects(t *testing.T) {
	st := &stubStore{row: pendingRow(t), affected: 1}
	srv := newTestServer(Config{TwilioAuthToken: twilioToken, MachineIDSecret: testSecret}, st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedTwilioRequest(smsForm("reject "+testRequestID)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "❌ Command rejected")

	calls := st.resolveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, store.StatusRejected, calls[0].status)
}

func TestTwilioReplyUppercaseIDNormalized(t *testing.T) {
	st := &stubStore{row: pendingRow(t), affected: 1}
	srv := newTestServer(Config{TwilioAuthToken: twilioToken, MachineIDSecret: testSecret}, st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedTwilioRequest(smsForm("APPROVE "+strings.ToUpper(testRequestID))))

	assert.Equal(t, http.StatusOK, rec.Code)
	calls := st.resolveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, testRequestID, calls[0].id)
}

func TestTwilioSignatureRejected(t *testing.T) {
	st := &stubStore{row: pendingRow(t), affected: 1}
	srv := newTestServer(Config{TwilioAuthToken: twilioToken}, st)
	form := smsForm("APPROVE " + testRequestID)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing signature", twilioRequest(form, "")},
		{"wrong token", twilioRequest(form, twilioSign("other-token", "http://example.com/webhooks/twilio", form))},
		{"wrong url", twilioRequest(form, twilioSign(twilioToken, "https://elsewhere.test/webhooks/twilio", form))},
		{"tampered params", func() *http.Request {
			signed := twilioSign(twilioToken, "http://example.com/webhooks/twilio", form)
			tampered := smsForm("APPROVE " + testRequestID)
			tampered.Set("From", "+19998887777")
			return twilioRequest(tampered, signed)
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, tt.req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
	assert.Empty(t, st.resolveCalls())
}

func TestTwilioSignatureUsesPublicURL(t *testing.T) {
	// Behind a proxy the Host header is rewritten; the configured public
	// URL is what Twilio actually signed.
	st := &stubStore{row: pendingRow(t), affected: 1}
	srv := newTestServer(Config{
		TwilioAuthToken: twilioToken,
		MachineIDSecret: testSecret,
		PublicURL:       "https://guard.example.net",
	}, st)

	form := smsForm("APPROVE " + testRequestID)
	sig := twilioSign(twilioToken, "https://guard.example.net/webhooks/twilio", form)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, twilioRequest(form, sig))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A signature over the rewritten host no longer verifies.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedTwilioRequest(form))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTwilioUnrecognizedReplyGetsInstructions(t *testing.T) {
	st := &stubStore{}
	srv := newTestServer(Config{TwilioAuthToken: twilioToken}, st)

	for _, body := range []string{"hello?", "APPROVE", "APPROVE id extra words", ""} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, signedTwilioRequest(smsForm(body)))

		// Malformed payload is a client error, but the reply still tells
		// the sender how to answer.
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Contains(t, rec.Body.String(), "Reply APPROVE &lt;id&gt; or REJECT &lt;id&gt;", "body %q", body)
	}
	assert.Empty(t, st.resolveCalls())
}

func TestTwilioInvalidRequestID(t *testing.T) {
	srv := newTestServer(Config{TwilioAuthToken: twilioToken}, &stubStore{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedTwilioRequest(smsForm("APPROVE not-a-uuid")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request id")
}

func TestTwilioMissingConfig(t *testing.T) {
	srv := newTestServer(Config{}, &stubStore{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedTwilioRequest(smsForm("APPROVE "+testRequestID)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
