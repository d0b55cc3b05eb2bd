// Package vk parses VK Callback API events.
package vk

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/common"
)

// Type is the registry key of the VK adapter.
const Type = channel.VK

const (
	eventConfirmation = "confirmation"
	eventMessageNew   = "message_new"
)

type callbackEvent struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	GroupID int64           `json:"group_id"`
	Secret  string          `json:"secret"`
	Object  json.RawMessage `json:"object"`
}

type messageObject struct {
	Message *message `json:"message"`
}

type message struct {
	ID          int64        `json:"id"`
	Date        int64        `json:"date"`
	PeerID      int64        `json:"peer_id"`
	FromID      int64        `json:"from_id"`
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Type  string `json:"type"`
	Photo *struct {
		ID      int64 `json:"id"`
		OwnerID int64 `json:"owner_id"`
		Sizes   []struct {
			Type   string `json:"type"`
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"sizes"`
	} `json:"photo"`
	Doc *struct {
		ID      int64  `json:"id"`
		OwnerID int64  `json:"owner_id"`
		Title   string `json:"title"`
		Size    int64  `json:"size"`
		URL     string `json:"url"`
	} `json:"doc"`
	AudioMessage *struct {
		Duration int64  `json:"duration"`
		LinkOGG  string `json:"link_ogg"`
		LinkMP3  string `json:"link_mp3"`
	} `json:"audio_message"`
	Link *struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"link"`
}

// VKAdapter implements channel.Adapter, channel.SignatureVerifier and
// channel.ConfirmationResponder.
type VKAdapter struct {
	logger *slog.Logger
}

func NewVKAdapter(log *slog.Logger) *VKAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &VKAdapter{logger: log.With(slog.String("adapter", "vk"))}
}

func (a *VKAdapter) Type() channel.ChannelType {
	return Type
}

func (a *VKAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:           Type,
		DisplayName:    "VK",
		Verification:   channel.VerificationNone,
		CredentialKeys: []string{"secret", "confirmation_code", "access_token"},
		Ack:            "ok",
	}
}

// Parse handles message_new events. Other event types are acknowledged
// without producing a message.
func (a *VKAdapter) Parse(payload []byte) ([]channel.InboundMessage, error) {
	event, err := decodeEvent(payload)
	if err != nil {
		return nil, err
	}
	if event.Type != eventMessageNew {
		a.logger.Debug("vk event ignored", slog.String("type", event.Type))
		return nil, nil
	}
	msg, err := decodeMessage(event.Object)
	if err != nil {
		return nil, err
	}
	if msg.FromID == 0 {
		return nil, channel.Malformed("vk message without from_id")
	}
	// Negative ids are communities; only users open leads.
	if msg.FromID < 0 {
		return nil, nil
	}
	externalID := strings.TrimSpace(event.EventID)
	if msg.ID > 0 {
		externalID = strconv.FormatInt(msg.ID, 10)
	}
	return []channel.InboundMessage{{
		Channel:           Type,
		ExternalMessageID: externalID,
		Sender: channel.Identity{
			SubjectID: strconv.FormatInt(msg.FromID, 10),
			Attributes: map[string]string{
				"peer_id":  strconv.FormatInt(msg.PeerID, 10),
				"group_id": strconv.FormatInt(event.GroupID, 10),
			},
		},
		Text:        strings.TrimSpace(msg.Text),
		Attachments: convertAttachments(msg.Attachments),
	}}, nil
}

// VerifySignature compares the body "secret" with credentials.secret.
func (a *VKAdapter) VerifySignature(_ http.Header, payload []byte, credentials map[string]any) error {
	want := channel.ReadString(credentials, "secret", "secret_key")
	if want == "" {
		return nil
	}
	event, err := decodeEvent(payload)
	if err != nil {
		return err
	}
	if !common.SecretEqual(strings.TrimSpace(event.Secret), want) {
		return channel.ErrInvalidSignature
	}
	return nil
}

// Confirmation answers the Callback API server confirmation request with
// credentials.confirmation_code.
func (a *VKAdapter) Confirmation(payload []byte, credentials map[string]any) (string, bool, error) {
	event, err := decodeEvent(payload)
	if err != nil {
		return "", false, err
	}
	if event.Type != eventConfirmation {
		return "", false, nil
	}
	code := channel.ReadString(credentials, "confirmation_code", "confirmationCode")
	if code == "" {
		return "", true, fmt.Errorf("vk confirmation code is not configured")
	}
	return code, true, nil
}

func decodeEvent(payload []byte) (callbackEvent, error) {
	var event callbackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return callbackEvent{}, channel.Malformed("decode vk event: %v", err)
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return callbackEvent{}, channel.Malformed("vk event without type")
	}
	return event, nil
}

// decodeMessage accepts both the current object.message layout and the
// legacy layout where object is the message itself.
func decodeMessage(raw json.RawMessage) (message, error) {
	if len(raw) == 0 {
		return message{}, channel.Malformed("vk message_new without object")
	}
	var wrapped messageObject
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return message{}, channel.Malformed("decode vk object: %v", err)
	}
	if wrapped.Message != nil {
		return *wrapped.Message, nil
	}
	var legacy message
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return message{}, channel.Malformed("decode vk message: %v", err)
	}
	return legacy, nil
}

func convertAttachments(items []attachment) []channel.Attachment {
	if len(items) == 0 {
		return nil
	}
	out := make([]channel.Attachment, 0, len(items))
	for _, item := range items {
		switch {
		case item.Photo != nil:
			att := channel.Attachment{
				Type:        channel.AttachmentImage,
				PlatformKey: fmt.Sprintf("photo%d_%d", item.Photo.OwnerID, item.Photo.ID),
			}
			// Sizes are listed smallest first; keep the widest.
			for _, size := range item.Photo.Sizes {
				if size.Width >= att.Width {
					att.URL, att.Width, att.Height = size.URL, size.Width, size.Height
				}
			}
			out = append(out, att)
		case item.Doc != nil:
			out = append(out, channel.Attachment{
				Type:        channel.AttachmentFile,
				PlatformKey: fmt.Sprintf("doc%d_%d", item.Doc.OwnerID, item.Doc.ID),
				URL:         item.Doc.URL,
				Name:        item.Doc.Title,
				Size:        item.Doc.Size,
			})
		case item.AudioMessage != nil:
			out = append(out, channel.Attachment{
				Type:       channel.AttachmentVoice,
				URL:        channel.FirstNonEmpty(item.AudioMessage.LinkMP3, item.AudioMessage.LinkOGG),
				DurationMs: item.AudioMessage.Duration * 1000,
			})
		case item.Link != nil:
			out = append(out, channel.Attachment{
				Type: channel.AttachmentLink,
				URL:  item.Link.URL,
				Name: item.Link.Title,
			})
		default:
			out = append(out, channel.Attachment{
				Type:     channel.AttachmentFile,
				Metadata: map[string]any{"vk_type": item.Type},
			})
		}
	}
	return out
}
