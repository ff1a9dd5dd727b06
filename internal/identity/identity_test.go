// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintStable(t *testing.T) {
	first, err := Fingerprint()
	require.NoError(t, err)
	require.Len(t, first, 32)
	assert.Regexp(t, `^[0-9a-f]{32}$`, first)

	second, err := Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := NewSigner("shared-secret")
	now := time.Unix(1700000000, 0)
	fingerprint := strings.Repeat("ab", 16)

	signed := signer.Sign(fingerprint, now)
	parts := strings.Split(signed, ":")
	require.Len(t, parts, 3)
	assert.Equal(t, fingerprint, parts[0])
	assert.Equal(t, "1700000000", parts[1])
	assert.Len(t, parts[2], 16)

	got, err := signer.Verify(signed, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, fingerprint, got)
}

func TestVerifyRejectsMutations(t *testing.T) {
	signer := NewSigner("shared-secret")
	now := time.Unix(1700000000, 0)
	fingerprint := strings.Repeat("cd", 16)
	signed := signer.Sign(fingerprint, now)

	flipped := byte('0')
	if signed[len(signed)-1] == flipped {
		flipped = '1'
	}
	tamperedTag := signed[:len(signed)-1] + string(flipped)

	tests := []struct {
		name    string
		signed  string
		at      time.Time
		wantErr error
	}{
		{"tampered tag", tamperedTag, now, ErrBadSignature},
		{"tampered timestamp", fingerprint + ":1700000001:" + strings.Split(signed, ":")[2], now, ErrBadSignature},
		{"foreign secret", NewSigner("other-secret").Sign(fingerprint, now), now, ErrBadSignature},
		{"stale", signed, now.Add(11 * time.Minute), ErrStale},
		{"future", signed, now.Add(-11 * time.Minute), ErrStale},
		{"two parts", fingerprint + ":1700000000", now, ErrMalformed},
		{"bad fingerprint", "XYZ:1700000000:deadbeefdeadbeef", now, ErrMalformed},
		{"bad timestamp", fingerprint + ":soon:deadbeefdeadbeef", now, ErrMalformed},
		{"empty", "", now, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.Verify(tt.signed, tt.at)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyWithinFreshnessWindow(t *testing.T) {
	signer := NewSigner("s")
	now := time.Unix(1700000000, 0)
	fingerprint := strings.Repeat("01", 16)
	signed := signer.Sign(fingerprint, now)

	_, err := signer.Verify(signed, now.Add(FreshnessWindow))
	assert.NoError(t, err, "exactly at the window edge is still fresh")

	_, err = signer.Verify(signed, now.Add(FreshnessWindow+time.Second))
	assert.ErrorIs(t, err, ErrStale)
}

func TestCheckFormat(t *testing.T) {
	fingerprint := strings.Repeat("ef", 16)

	got, err := CheckFormat(fingerprint)
	require.NoError(t, err)
	assert.Equal(t, fingerprint, got)

	got, err = CheckFormat(fingerprint + ":1700000000:deadbeefdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, fingerprint, got)

	_, err = CheckFormat("not-a-fingerprint")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = CheckFormat("")
	assert.ErrorIs(t, err, ErrMalformed)
}
