package channel

import (
	"crypto/subtle"
	"errors"
	"net/url"
	"strings"
)

// ErrVerificationFailed is returned when a subscription handshake is rejected.
// Callers must not echo anything from the request.
var ErrVerificationFailed = errors.New("webhook verification failed")

const verifyModeSubscribe = "subscribe"

// VerifyRequest carries the handshake parameters of a GET request.
type VerifyRequest struct {
	Mode      string
	Token     string
	Challenge string
}

// VerifyRequestFromQuery reads hub.mode, hub.verify_token and hub.challenge,
// accepting the unprefixed names as well.
func VerifyRequestFromQuery(q url.Values) VerifyRequest {
	pick := func(names ...string) string {
		for _, name := range names {
			if v := q.Get(name); v != "" {
				return v
			}
		}
		return ""
	}
	return VerifyRequest{
		Mode:      pick("hub.mode", "mode"),
		Token:     pick("hub.verify_token", "verify_token"),
		Challenge: pick("hub.challenge", "challenge"),
	}
}

// Verify runs the handshake for a channel. Channels without a handshake
// always answer "ok". Challenge channels echo the challenge only when the
// mode is subscribe and the token equals secret.
func Verify(desc Descriptor, secret string, req VerifyRequest) (string, error) {
	if desc.Verification != VerificationChallenge {
		return "ok", nil
	}
	if !strings.EqualFold(strings.TrimSpace(req.Mode), verifyModeSubscribe) {
		return "", ErrVerificationFailed
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", ErrVerificationFailed
	}
	if subtle.ConstantTimeCompare([]byte(req.Token), []byte(secret)) != 1 {
		return "", ErrVerificationFailed
	}
	return req.Challenge, nil
}
