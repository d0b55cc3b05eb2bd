// Package whatsapp parses WhatsApp Cloud API webhooks.
package whatsapp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/common"
)

// Type is the registry key of the WhatsApp adapter.
const Type = channel.WhatsApp

type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         metadata        `json:"metadata"`
	Contacts         []contact       `json:"contacts"`
	Messages         []message       `json:"messages"`
	Statuses         json.RawMessage `json:"statuses"`
}

type metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *media `json:"image"`
	Document *media `json:"document"`
	Audio    *media `json:"audio"`
	Video    *media `json:"video"`
	Sticker  *media `json:"sticker"`
	Button   *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *reply `json:"button_reply"`
		ListReply   *reply `json:"list_reply"`
	} `json:"interactive"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Name      string  `json:"name"`
		Address   string  `json:"address"`
	} `json:"location"`
}

type media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
	Voice    bool   `json:"voice"`
}

type reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// WhatsAppAdapter implements channel.Adapter and channel.SignatureVerifier.
type WhatsAppAdapter struct {
	logger *slog.Logger
}

func NewWhatsAppAdapter(log *slog.Logger) *WhatsAppAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &WhatsAppAdapter{logger: log.With(slog.String("adapter", "whatsapp"))}
}

func (a *WhatsAppAdapter) Type() channel.ChannelType {
	return Type
}

func (a *WhatsAppAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:           Type,
		DisplayName:    "WhatsApp",
		Verification:   channel.VerificationChallenge,
		ProvidesPhone:  true,
		CredentialKeys: []string{"app_secret", "access_token", "phone_number_id"},
	}
}

// Parse flattens entry[].changes[].value.messages[]. Status callbacks carry
// no messages and produce an empty result.
func (a *WhatsAppAdapter) Parse(payload []byte) ([]channel.InboundMessage, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, channel.Malformed("decode whatsapp webhook: %v", err)
	}
	if body.Entry == nil {
		return nil, channel.Malformed("whatsapp webhook has no entry list")
	}
	var out []channel.InboundMessage
	for _, e := range body.Entry {
		for _, ch := range e.Changes {
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[strings.TrimSpace(c.WaID)] = strings.TrimSpace(c.Profile.Name)
			}
			for _, msg := range ch.Value.Messages {
				from := strings.TrimSpace(msg.From)
				if from == "" {
					return nil, channel.Malformed("whatsapp message %q without sender", msg.ID)
				}
				out = append(out, channel.InboundMessage{
					Channel:           Type,
					ExternalMessageID: strings.TrimSpace(msg.ID),
					Sender: channel.Identity{
						SubjectID:   from,
						Phone:       common.NormalizePhone(from),
						DisplayName: names[from],
						Attributes: map[string]string{
							"phone_number_id": strings.TrimSpace(ch.Value.Metadata.PhoneNumberID),
						},
					},
					Text:        messageText(msg),
					Attachments: messageAttachments(msg),
				})
			}
		}
	}
	a.logger.Debug("whatsapp webhook parsed", slog.Int("messages", len(out)))
	return out, nil
}

// VerifySignature checks X-Hub-Signature-256 with credentials.app_secret.
func (a *WhatsAppAdapter) VerifySignature(header http.Header, payload []byte, credentials map[string]any) error {
	return common.VerifyHubSignature(header, payload, channel.ReadString(credentials, "app_secret", "appSecret"))
}

func messageText(msg message) string {
	switch {
	case msg.Text != nil:
		return strings.TrimSpace(msg.Text.Body)
	case msg.Button != nil:
		return strings.TrimSpace(channel.FirstNonEmpty(msg.Button.Text, msg.Button.Payload))
	case msg.Interactive != nil:
		if r := msg.Interactive.ButtonReply; r != nil {
			return strings.TrimSpace(r.Title)
		}
		if r := msg.Interactive.ListReply; r != nil {
			return strings.TrimSpace(r.Title)
		}
	}
	for _, m := range []*media{msg.Image, msg.Video, msg.Document} {
		if m != nil && strings.TrimSpace(m.Caption) != "" {
			return strings.TrimSpace(m.Caption)
		}
	}
	return ""
}

func messageAttachments(msg message) []channel.Attachment {
	var out []channel.Attachment
	add := func(t channel.AttachmentType, m *media) {
		if m == nil {
			return
		}
		out = append(out, channel.Attachment{
			Type:        t,
			PlatformKey: strings.TrimSpace(m.ID),
			Mime:        strings.TrimSpace(m.MimeType),
			Name:        strings.TrimSpace(m.Filename),
			Caption:     strings.TrimSpace(m.Caption),
		})
	}
	add(channel.AttachmentImage, msg.Image)
	add(channel.AttachmentVideo, msg.Video)
	add(channel.AttachmentFile, msg.Document)
	add(channel.AttachmentSticker, msg.Sticker)
	if msg.Audio != nil {
		if msg.Audio.Voice {
			add(channel.AttachmentVoice, msg.Audio)
		} else {
			add(channel.AttachmentAudio, msg.Audio)
		}
	}
	if loc := msg.Location; loc != nil {
		out = append(out, channel.Attachment{
			Type: channel.AttachmentLocation,
			Name: channel.FirstNonEmpty(loc.Name, loc.Address),
			Metadata: map[string]any{
				"latitude":  loc.Latitude,
				"longitude": loc.Longitude,
			},
		})
	}
	return out
}
