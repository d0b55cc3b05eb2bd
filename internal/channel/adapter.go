package channel

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrMalformedPayload is returned when a payload cannot be decoded into
	// the channel's shape.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrInvalidSignature is returned when a delivery fails the channel's
	// authenticity check.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// VerificationMode describes how a channel subscribes its webhook.
type VerificationMode string

const (
	// VerificationNone channels answer any GET with ok.
	VerificationNone VerificationMode = "none"
	// VerificationChallenge channels send mode, verify_token and challenge
	// query parameters and expect the challenge echoed back.
	VerificationChallenge VerificationMode = "challenge"
)

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
	// Parse extracts zero or more messages from a raw webhook body. Service
	// events without a user message yield an empty slice and no error.
	Parse(payload []byte) ([]InboundMessage, error)
}

// Descriptor holds read-only metadata for a registered channel type.
// It contains no behavior; all behavior is expressed through optional interfaces.
type Descriptor struct {
	Type          ChannelType      `json:"type"`
	DisplayName   string           `json:"display_name"`
	Verification  VerificationMode `json:"verification"`
	ProvidesPhone bool             `json:"provides_phone"`
	// CredentialKeys lists the credential fields the adapter reads.
	CredentialKeys []string `json:"credential_keys,omitempty"`
	// Ack is the literal body the platform requires on success. Empty means
	// the JSON envelope.
	Ack string `json:"ack,omitempty"`
}

// SignatureVerifier checks that a delivery was sent by the platform. A nil
// error is returned when the integration has no secret configured.
type SignatureVerifier interface {
	VerifySignature(header http.Header, payload []byte, credentials map[string]any) error
}

// ConfirmationResponder answers in-band subscription handshakes that arrive
// as POST bodies. ok is false for ordinary deliveries.
type ConfirmationResponder interface {
	Confirmation(payload []byte, credentials map[string]any) (response string, ok bool, err error)
}

// TextSender delivers a plain-text message to a chat on the platform.
type TextSender interface {
	SendText(ctx context.Context, credentials map[string]any, target, text string) error
}
