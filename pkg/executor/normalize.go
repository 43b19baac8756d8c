package executor

import (
	"regexp"
	"strings"
)

// ansiCSI matches ESC [ ... <final byte> control sequences emitted by CLIs
// that colorize or reposition output.
var ansiCSI = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// Normalize canonicalizes raw adapter output: ANSI CSI sequences stripped,
// CRLF collapsed to LF, surrounding whitespace trimmed. Normalize is
// idempotent.
func Normalize(raw string) string {
	out := ansiCSI.ReplaceAllString(raw, "")
	out = strings.ReplaceAll(out, "\r\n", "\n")
	return strings.TrimSpace(out)
}

// globalRejectSubstrings mark an adapter response as an auth failure rather
// than real output. Matched case-insensitively against normalized output.
var globalRejectSubstrings = []string{
	"authorization failed",
	"check your login status",
	"authentication required",
	"not authenticated",
	"not logged in",
	"please log in",
	"please login",
	"unauthorized",
}

// rejectionMatch returns the first reject substring found in the output, or
// "" when the output is acceptable.
func rejectionMatch(normalized string, adapterSubstrings []string) string {
	lower := strings.ToLower(normalized)
	for _, s := range globalRejectSubstrings {
		if strings.Contains(lower, s) {
			return s
		}
	}
	for _, s := range adapterSubstrings {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return s
		}
	}
	return ""
}
