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

// Package identity derives a stable machine fingerprint and signs it
// with a shared HMAC secret so the webhook can bind an approval row to
// the machine that created it.
//
// The signed form is "fingerprint:unixSeconds:tag" where tag is the
// first 16 hex characters of HMAC-SHA256(secret, "fingerprint:unix").
// Verification is constant-time and fails closed.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"os/user"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// FreshnessWindow is how long a signed identifier stays valid.
const FreshnessWindow = 600 * time.Second

// tagLen is the truncated HMAC length in hex characters.
const tagLen = 16

var (
	ErrMalformed    = fmt.Errorf("identity: malformed identifier")
	ErrStale        = fmt.Errorf("identity: identifier outside freshness window")
	ErrBadSignature = fmt.Errorf("identity: signature mismatch")
)

// machineIDPaths are OS machine-id files folded into the fingerprint
// when readable.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

var fingerprintRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Fingerprint derives the stable 32-hex machine fingerprint from
// hostname, username, platform, OS machine id, hardware UUID, and the
// home directory. Missing inputs are skipped; the result is stable
// across invocations on the same machine and user.
func Fingerprint() (string, error) {
	var parts []string

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("identity: hostname: %w", err)
	}
	parts = append(parts, hostname)

	if u, err := user.Current(); err == nil {
		parts = append(parts, u.Username)
	}

	parts = append(parts, runtime.GOOS+"/"+runtime.GOARCH)

	for _, path := range machineIDPaths {
		if data, err := os.ReadFile(path); err == nil {
			parts = append(parts, strings.TrimSpace(string(data)))
			break
		}
	}

	// HostID is the platform hardware UUID where the OS exposes one
	// (IOPlatformUUID on darwin, machine-id on linux, registry on windows).
	if info, err := host.Info(); err == nil && info.HostID != "" {
		parts = append(parts, info.HostID)
	}

	if home, err := os.UserHomeDir(); err == nil {
		parts = append(parts, home)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:32], nil
}

// Signer signs and verifies machine identifiers with a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner returns a signer for the shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign produces "fingerprint:unix:tag" for the given time.
func (s *Signer) Sign(fingerprint string, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	return fingerprint + ":" + ts + ":" + s.tag(fingerprint, ts)
}

// Verify checks a signed identifier and returns the fingerprint.
// It requires exactly three parts, a timestamp within the freshness
// window of now, and a matching tag under constant-time comparison.
func (s *Signer) Verify(signed string, now time.Time) (string, error) {
	parts := strings.Split(signed, ":")
	if len(parts) != 3 {
		return "", ErrMalformed
	}
	fingerprint, ts, tag := parts[0], parts[1], parts[2]

	if !fingerprintRe.MatchString(fingerprint) {
		return "", ErrMalformed
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", ErrMalformed
	}
	age := now.Unix() - unix
	if age < 0 {
		age = -age
	}
	if age > int64(FreshnessWindow/time.Second) {
		return "", ErrStale
	}

	expected := s.tag(fingerprint, ts)
	if subtle.ConstantTimeCompare([]byte(tag), []byte(expected)) != 1 {
		return "", ErrBadSignature
	}
	return fingerprint, nil
}

// CheckFormat validates the fingerprint portion of an identifier
// without verifying its signature. This is the compatibility fallback
// for webhooks that have no machine-identity secret provisioned; it
// accepts either a bare 32-hex fingerprint or a full signed triple.
func CheckFormat(identifier string) (string, error) {
	fingerprint := identifier
	if idx := strings.IndexByte(identifier, ':'); idx >= 0 {
		fingerprint = identifier[:idx]
	}
	if !fingerprintRe.MatchString(fingerprint) {
		return "", ErrMalformed
	}
	return fingerprint, nil
}

func (s *Signer) tag(fingerprint, ts string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(fingerprint + ":" + ts))
	return hex.EncodeToString(mac.Sum(nil))[:tagLen]
}
