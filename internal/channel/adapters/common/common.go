// Package common holds helpers shared by the channel adapters.
package common

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/franchiseos/leadhub/internal/channel"
)

const summaryMaxRunes = 80

// SummarizeText collapses whitespace and truncates text for log lines.
func SummarizeText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= summaryMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:summaryMaxRunes]) + "..."
}

// NormalizePhone keeps digits only and prefixes "+". Values with fewer than
// five digits are dropped.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) && r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 5 {
		return ""
	}
	return "+" + digits
}

// HubSignatureHeader carries the Meta platform payload signature.
const HubSignatureHeader = "X-Hub-Signature-256"

// VerifyHubSignature checks an "sha256=<hex>" HMAC of payload keyed with
// appSecret. An empty appSecret disables the check.
func VerifyHubSignature(header http.Header, payload []byte, appSecret string) error {
	appSecret = strings.TrimSpace(appSecret)
	if appSecret == "" {
		return nil
	}
	raw := strings.TrimSpace(header.Get(HubSignatureHeader))
	sig, ok := strings.CutPrefix(raw, "sha256=")
	if !ok || sig == "" {
		return channel.ErrInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return channel.ErrInvalidSignature
	}
	if !hmac.Equal(got, SignHub(payload, appSecret)) {
		return channel.ErrInvalidSignature
	}
	return nil
}

// SignHub computes the raw HMAC-SHA256 used by VerifyHubSignature.
func SignHub(payload []byte, appSecret string) []byte {
	mac := hmac.New(sha256.New, []byte(appSecret))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

// SecretEqual compares two shared secrets in constant time.
func SecretEqual(got, want string) bool {
	return hmac.Equal([]byte(got), []byte(want))
}
