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

// Package mask redacts credential-looking substrings from command text.
//
// Every command string leaving the hook — to chat, to the store, to a
// log line — passes through Mask first. The surrounding context is kept
// so a human can still read the command. Mask is idempotent: the
// replacement never matches its own pattern again.
package mask

import "regexp"

const redacted = "***"

// replacement pairs a pattern with its rewrite. Patterns keep the
// credential's anchor text (parameter name, header name, scheme) and
// replace only the secret itself.
type replacement struct {
	re   *regexp.Regexp
	repl string
}

var replacements = []replacement{
	// Query-string credentials: ?api_key=..., &token=..., etc.
	{
		re:   regexp.MustCompile(`(?i)([?&](?:api_key|apikey|access_token|token|secret|password|auth|key)=)[^&\s'"]+`),
		repl: `${1}` + redacted,
	},
	// Basic auth with a base64 payload. Checked before the generic
	// Authorization rule so the scheme survives.
	{
		re:   regexp.MustCompile(`(?i)\b(basic\s+)[A-Za-z0-9+/=]{8,}`),
		repl: `${1}` + redacted,
	},
	// Authorization headers, with or without a scheme prefix.
	{
		re:   regexp.MustCompile(`(?i)(authorization:\s*)((?:bearer|token|basic)\s+)?[^\s'"]+`),
		repl: `${1}${2}` + redacted,
	},
	// Assignments to credential-shaped environment variables.
	{
		re:   regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:API_KEY|APIKEY|TOKEN|SECRET|PASSWORD|PASSWD|CREDENTIAL|PRIVATE_KEY|AUTH)[A-Z0-9_]*=)(["']?)[^\s"']+`),
		repl: `${1}${2}` + redacted,
	},
	// Userinfo passwords in URLs: scheme://user:pw@host.
	{
		re:   regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://[^:/@\s]+:)[^@/\s]+(@)`),
		repl: `${1}` + redacted + `${2}`,
	},
}

// Mask replaces the secret portion of credential-looking substrings
// with "***", preserving the surrounding command text.
func Mask(s string) string {
	for _, r := range replacements {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}
