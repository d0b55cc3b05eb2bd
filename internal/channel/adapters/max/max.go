// Package max parses MAX messenger bot webhook updates.
package max

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/common"
)

// Type is the registry key of the MAX adapter.
const Type = channel.Max

const updateMessageCreated = "message_created"

type update struct {
	UpdateType string   `json:"update_type"`
	Timestamp  int64    `json:"timestamp"`
	Message    *message `json:"message"`
}

type message struct {
	Sender *struct {
		UserID   int64  `json:"user_id"`
		Name     string `json:"name"`
		Username string `json:"username"`
		IsBot    bool   `json:"is_bot"`
	} `json:"sender"`
	Recipient struct {
		ChatID   int64  `json:"chat_id"`
		ChatType string `json:"chat_type"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Body      struct {
		MID         string       `json:"mid"`
		Seq         int64        `json:"seq"`
		Text        string       `json:"text"`
		Attachments []attachment `json:"attachments"`
	} `json:"body"`
}

type attachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL     string `json:"url"`
		Token   string `json:"token"`
		VCFInfo string `json:"vcf_info"`
		MaxInfo *struct {
			UserID int64  `json:"user_id"`
			Name   string `json:"name"`
		} `json:"max_info"`
	} `json:"payload"`
	Filename  string  `json:"filename"`
	Size      int64   `json:"size"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MaxAdapter implements channel.Adapter.
type MaxAdapter struct {
	logger *slog.Logger
}

func NewMaxAdapter(log *slog.Logger) *MaxAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &MaxAdapter{logger: log.With(slog.String("adapter", "max"))}
}

func (a *MaxAdapter) Type() channel.ChannelType {
	return Type
}

func (a *MaxAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:           Type,
		DisplayName:    "MAX",
		Verification:   channel.VerificationNone,
		ProvidesPhone:  true,
		CredentialKeys: []string{"bot_token"},
	}
}

// Parse extracts message_created updates. Other update types and messages
// from bots yield no message.
func (a *MaxAdapter) Parse(payload []byte) ([]channel.InboundMessage, error) {
	var u update
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil, channel.Malformed("decode max update: %v", err)
	}
	kind := strings.TrimSpace(u.UpdateType)
	if kind == "" {
		return nil, channel.Malformed("max update without update_type")
	}
	if kind != updateMessageCreated {
		a.logger.Debug("max update ignored", slog.String("update_type", kind))
		return nil, nil
	}
	if u.Message == nil || u.Message.Sender == nil || u.Message.Sender.UserID == 0 {
		return nil, channel.Malformed("max message without sender")
	}
	if u.Message.Sender.IsBot {
		return nil, nil
	}
	sender := u.Message.Sender
	subjectID := strconv.FormatInt(sender.UserID, 10)
	return []channel.InboundMessage{{
		Channel:           Type,
		ExternalMessageID: strings.TrimSpace(u.Message.Body.MID),
		Sender: channel.Identity{
			SubjectID:   subjectID,
			Username:    strings.TrimSpace(sender.Username),
			DisplayName: strings.TrimSpace(sender.Name),
			Phone:       sharedPhone(u.Message.Body.Attachments, sender.UserID),
			Attributes: map[string]string{
				"chat_id": strconv.FormatInt(u.Message.Recipient.ChatID, 10),
			},
		},
		Text:        strings.TrimSpace(u.Message.Body.Text),
		Attachments: convertAttachments(u.Message.Body.Attachments),
	}}, nil
}

// sharedPhone returns the phone of a contact card the sender shared about
// themselves.
func sharedPhone(items []attachment, senderID int64) string {
	for _, item := range items {
		if item.Type != "contact" {
			continue
		}
		if info := item.Payload.MaxInfo; info != nil && info.UserID != 0 && info.UserID != senderID {
			continue
		}
		if phone := phoneFromVCard(item.Payload.VCFInfo); phone != "" {
			return phone
		}
	}
	return ""
}

func phoneFromVCard(vcf string) string {
	scanner := bufio.NewScanner(strings.NewReader(vcf))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(name), "TEL") {
			if phone := common.NormalizePhone(value); phone != "" {
				return phone
			}
		}
	}
	return ""
}

func convertAttachments(items []attachment) []channel.Attachment {
	if len(items) == 0 {
		return nil
	}
	out := make([]channel.Attachment, 0, len(items))
	for _, item := range items {
		att := channel.Attachment{
			Type:        attachmentType(item.Type),
			URL:         strings.TrimSpace(item.Payload.URL),
			PlatformKey: strings.TrimSpace(item.Payload.Token),
			Name:        strings.TrimSpace(item.Filename),
			Size:        item.Size,
		}
		if att.Type == channel.AttachmentLocation {
			att.Metadata = map[string]any{"latitude": item.Latitude, "longitude": item.Longitude}
		}
		out = append(out, att)
	}
	return out
}

func attachmentType(raw string) channel.AttachmentType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "image":
		return channel.AttachmentImage
	case "video":
		return channel.AttachmentVideo
	case "audio":
		return channel.AttachmentAudio
	case "sticker":
		return channel.AttachmentSticker
	case "contact":
		return channel.AttachmentContact
	case "location":
		return channel.AttachmentLocation
	case "share":
		return channel.AttachmentLink
	default:
		return channel.AttachmentFile
	}
}
