// Package channel provides the closed set of inbound messaging channels, the
// canonical message envelope they normalize into, and the registry that
// dispatches raw webhook payloads to per-channel adapters.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g., "telegram", "whatsapp").
type ChannelType string

const (
	Telegram  ChannelType = "telegram"
	Instagram ChannelType = "instagram"
	VK        ChannelType = "vk"
	WhatsApp  ChannelType = "whatsapp"
	Avito     ChannelType = "avito"
	Max       ChannelType = "max"
)

// ErrUnsupportedChannel is returned for channel names outside the closed set.
var ErrUnsupportedChannel = errors.New("unsupported channel")

// All returns every supported channel in a stable order.
func All() []ChannelType {
	return []ChannelType{Telegram, Instagram, VK, WhatsApp, Avito, Max}
}

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// Valid reports whether c belongs to the closed channel set.
func (c ChannelType) Valid() bool {
	for _, known := range All() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseChannelType normalizes raw and checks it against the closed set.
func ParseChannelType(raw string) (ChannelType, error) {
	ct := normalizeChannelType(raw)
	if !ct.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChannel, strings.TrimSpace(raw))
	}
	return ct, nil
}

// Identity represents a sender's identity on a channel.
type Identity struct {
	SubjectID   string
	Username    string
	Phone       string
	DisplayName string
	Attributes  map[string]string
}

// Attribute returns the trimmed value for the given key, or empty string if absent.
func (i Identity) Attribute(key string) string {
	if i.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(i.Attributes[key])
}

// AttachmentType classifies the kind of binary attachment.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentVideo    AttachmentType = "video"
	AttachmentVoice    AttachmentType = "voice"
	AttachmentFile     AttachmentType = "file"
	AttachmentGIF      AttachmentType = "gif"
	AttachmentSticker  AttachmentType = "sticker"
	AttachmentLocation AttachmentType = "location"
	AttachmentContact  AttachmentType = "contact"
	AttachmentLink     AttachmentType = "link"
)

// Attachment is one entry of a message's ordered attachment list. Only
// references are kept; the bytes stay on the platform.
type Attachment struct {
	Type        AttachmentType `json:"type"`
	URL         string         `json:"url,omitempty"`
	PlatformKey string         `json:"platform_key,omitempty"`
	Name        string         `json:"name,omitempty"`
	Size        int64          `json:"size,omitempty"`
	Mime        string         `json:"mime,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
	Width       int            `json:"width,omitempty"`
	Height      int            `json:"height,omitempty"`
	Caption     string         `json:"caption,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Reference returns the URL when present, otherwise the platform key.
func (a Attachment) Reference() string {
	if url := strings.TrimSpace(a.URL); url != "" {
		return url
	}
	return strings.TrimSpace(a.PlatformKey)
}

// HasReference reports whether the attachment can be located later.
func (a Attachment) HasReference() bool {
	return a.Reference() != ""
}

// InboundMessage is the canonical envelope of one external event.
//
// Adapters fill Channel, ExternalMessageID, Sender, Text and Attachments.
// The normalizer adds IntegrationID, RawPayload and ReceivedAt, and the store
// assigns ID. Once stored a message is never updated.
type InboundMessage struct {
	ID                string
	IntegrationID     string
	Channel           ChannelType
	ExternalMessageID string
	Sender            Identity
	Text              string
	Attachments       []Attachment
	ReceivedAt        time.Time
	RawPayload        json.RawMessage
	// Replayed is set when the store already held this external message id.
	Replayed bool
}

// IsEmpty reports whether the message has neither text nor attachments.
func (m InboundMessage) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}

// ContactKey returns the open-lead slot this message competes for.
func (m InboundMessage) ContactKey() ContactKey {
	return ContactKey{
		IntegrationID:  m.IntegrationID,
		Channel:        m.Channel,
		ExternalUserID: strings.TrimSpace(m.Sender.SubjectID),
	}
}

// ContactKey identifies one external contact within one integration.
type ContactKey struct {
	IntegrationID  string
	Channel        ChannelType
	ExternalUserID string
}

func (k ContactKey) String() string {
	return strings.Join([]string{k.IntegrationID, k.Channel.String(), k.ExternalUserID}, ":")
}
