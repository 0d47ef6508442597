// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"net/url"
	"strings"

	"github.com/mattn/go-runewidth"
)

// TruncateRunes truncates s to maxRunes characters, appending "..." when cut.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateDisplay truncates s to a terminal display width, counting wide
// characters as two columns. Newlines are folded to spaces so previews stay
// on one log line.
func TruncateDisplay(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "...")
}

// RedactSecret keeps the first four characters of a secret and masks the rest.
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", 8)
}

// RedactQuery masks the named query parameters of rawURL. Unparseable input
// is returned fully masked.
func RedactQuery(rawURL string, params ...string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "****"
	}
	q := u.Query()
	changed := false
	for _, p := range params {
		if v := q.Get(p); v != "" {
			q.Set(p, RedactSecret(v))
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
