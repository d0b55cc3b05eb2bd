// Package avito parses Avito Messenger webhook notifications.
package avito

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/franchiseos/leadhub/internal/channel"
)

// Type is the registry key of the Avito adapter.
const Type = channel.Avito

const payloadTypeMessage = "message"

type notification struct {
	ID        string  `json:"id"`
	Version   string  `json:"version"`
	Timestamp int64   `json:"timestamp"`
	Payload   payload `json:"payload"`
}

type payload struct {
	Type  string        `json:"type"`
	Value *messageValue `json:"value"`
}

type messageValue struct {
	ID       string  `json:"id"`
	ChatID   string  `json:"chat_id"`
	UserID   int64   `json:"user_id"`
	AuthorID int64   `json:"author_id"`
	Created  int64   `json:"created"`
	Type     string  `json:"type"`
	ChatType string  `json:"chat_type"`
	ItemID   int64   `json:"item_id"`
	Content  content `json:"content"`
}

type content struct {
	Text  string `json:"text"`
	Image *struct {
		Sizes map[string]string `json:"sizes"`
	} `json:"image"`
	Link *struct {
		Text string `json:"text"`
		URL  string `json:"url"`
	} `json:"link"`
	Voice *struct {
		VoiceID string `json:"voice_id"`
	} `json:"voice"`
	Location *struct {
		Lat   float64 `json:"lat"`
		Lon   float64 `json:"lon"`
		Title string  `json:"title"`
	} `json:"location"`
}

// AvitoAdapter implements channel.Adapter.
type AvitoAdapter struct {
	logger *slog.Logger
}

func NewAvitoAdapter(log *slog.Logger) *AvitoAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &AvitoAdapter{logger: log.With(slog.String("adapter", "avito"))}
}

func (a *AvitoAdapter) Type() channel.ChannelType {
	return Type
}

func (a *AvitoAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:           Type,
		DisplayName:    "Avito",
		Verification:   channel.VerificationNone,
		CredentialKeys: []string{"client_id", "client_secret", "user_id"},
	}
}

// Parse extracts the customer message of a "message" notification. Messages
// written by the account itself (author_id equal to user_id) and system
// messages (author_id 0) are skipped.
func (a *AvitoAdapter) Parse(raw []byte) ([]channel.InboundMessage, error) {
	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, channel.Malformed("decode avito notification: %v", err)
	}
	kind := strings.TrimSpace(n.Payload.Type)
	if kind == "" {
		return nil, channel.Malformed("avito notification without payload type")
	}
	if kind != payloadTypeMessage {
		return nil, nil
	}
	v := n.Payload.Value
	if v == nil {
		return nil, channel.Malformed("avito message notification without value")
	}
	if v.AuthorID == 0 || v.AuthorID == v.UserID {
		a.logger.Debug("avito message skipped", slog.String("chat_id", v.ChatID), slog.Int64("author_id", v.AuthorID))
		return nil, nil
	}
	attrs := map[string]string{"chat_id": strings.TrimSpace(v.ChatID)}
	if v.ItemID != 0 {
		attrs["item_id"] = strconv.FormatInt(v.ItemID, 10)
	}
	return []channel.InboundMessage{{
		Channel:           Type,
		ExternalMessageID: channel.FirstNonEmpty(v.ID, n.ID),
		Sender: channel.Identity{
			SubjectID:  strconv.FormatInt(v.AuthorID, 10),
			Attributes: attrs,
		},
		Text:        messageText(v.Content),
		Attachments: convertContent(v.Content),
	}}, nil
}

func messageText(c content) string {
	if text := strings.TrimSpace(c.Text); text != "" {
		return text
	}
	if c.Link != nil {
		return strings.TrimSpace(c.Link.Text)
	}
	return ""
}

func convertContent(c content) []channel.Attachment {
	var out []channel.Attachment
	if c.Image != nil {
		out = append(out, channel.Attachment{
			Type: channel.AttachmentImage,
			URL:  largestImage(c.Image.Sizes),
		})
	}
	if c.Link != nil && strings.TrimSpace(c.Link.URL) != "" {
		out = append(out, channel.Attachment{
			Type: channel.AttachmentLink,
			URL:  strings.TrimSpace(c.Link.URL),
		})
	}
	if c.Voice != nil {
		out = append(out, channel.Attachment{
			Type:        channel.AttachmentVoice,
			PlatformKey: strings.TrimSpace(c.Voice.VoiceID),
		})
	}
	if c.Location != nil {
		out = append(out, channel.Attachment{
			Type: channel.AttachmentLocation,
			Name: c.Location.Title,
			Metadata: map[string]any{
				"latitude":  c.Location.Lat,
				"longitude": c.Location.Lon,
			},
		})
	}
	return out
}

// largestImage picks the widest "WxH" key of Avito's size map.
func largestImage(sizes map[string]string) string {
	var best string
	bestWidth := -1
	for key, url := range sizes {
		w, _, _ := strings.Cut(key, "x")
		width, err := strconv.Atoi(w)
		if err != nil {
			width = 0
		}
		if width > bestWidth || (width == bestWidth && url < best) {
			best, bestWidth = url, width
		}
	}
	return best
}
