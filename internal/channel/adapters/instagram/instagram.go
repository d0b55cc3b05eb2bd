// Package instagram parses Instagram Messaging webhooks delivered through
// the Meta platform.
package instagram

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/common"
)

// Type is the registry key of the Instagram adapter.
const Type = channel.Instagram

type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []messagingEvent `json:"messaging"`
}

type messagingEvent struct {
	Sender    participant     `json:"sender"`
	Recipient participant     `json:"recipient"`
	Timestamp int64           `json:"timestamp"`
	Message   *messagePayload `json:"message"`
}

type participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type messagePayload struct {
	MID         string              `json:"mid"`
	Text        string              `json:"text"`
	IsEcho      bool                `json:"is_echo"`
	IsDeleted   bool                `json:"is_deleted"`
	Attachments []messageAttachment `json:"attachments"`
}

type messageAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

// InstagramAdapter implements channel.Adapter and channel.SignatureVerifier.
type InstagramAdapter struct {
	logger *slog.Logger
}

func NewInstagramAdapter(log *slog.Logger) *InstagramAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &InstagramAdapter{logger: log.With(slog.String("adapter", "instagram"))}
}

func (a *InstagramAdapter) Type() channel.ChannelType {
	return Type
}

func (a *InstagramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:           Type,
		DisplayName:    "Instagram",
		Verification:   channel.VerificationChallenge,
		CredentialKeys: []string{"app_secret", "page_access_token"},
	}
}

// Parse flattens every entry's messaging events into messages. Echoes of the
// account's own replies, deletions and read receipts are skipped.
func (a *InstagramAdapter) Parse(payload []byte) ([]channel.InboundMessage, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, channel.Malformed("decode instagram webhook: %v", err)
	}
	if body.Entry == nil {
		return nil, channel.Malformed("instagram webhook has no entry list")
	}
	var out []channel.InboundMessage
	for _, e := range body.Entry {
		for _, event := range e.Messaging {
			if event.Message == nil || event.Message.IsEcho || event.Message.IsDeleted {
				continue
			}
			senderID := strings.TrimSpace(event.Sender.ID)
			if senderID == "" {
				return nil, channel.Malformed("instagram message without sender id")
			}
			out = append(out, channel.InboundMessage{
				Channel:           Type,
				ExternalMessageID: strings.TrimSpace(event.Message.MID),
				Sender: channel.Identity{
					SubjectID: senderID,
					Username:  strings.TrimSpace(event.Sender.Username),
					Attributes: map[string]string{
						"recipient_id": strings.TrimSpace(event.Recipient.ID),
					},
				},
				Text:        strings.TrimSpace(event.Message.Text),
				Attachments: convertAttachments(event.Message.Attachments),
			})
		}
	}
	a.logger.Debug("instagram webhook parsed", slog.Int("entries", len(body.Entry)), slog.Int("messages", len(out)))
	return out, nil
}

// VerifySignature checks X-Hub-Signature-256 with credentials.app_secret.
func (a *InstagramAdapter) VerifySignature(header http.Header, payload []byte, credentials map[string]any) error {
	return common.VerifyHubSignature(header, payload, channel.ReadString(credentials, "app_secret", "appSecret"))
}

func convertAttachments(items []messageAttachment) []channel.Attachment {
	if len(items) == 0 {
		return nil
	}
	out := make([]channel.Attachment, 0, len(items))
	for _, item := range items {
		out = append(out, channel.Attachment{
			Type: attachmentType(item.Type),
			URL:  strings.TrimSpace(item.Payload.URL),
		})
	}
	return out
}

func attachmentType(raw string) channel.AttachmentType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "image":
		return channel.AttachmentImage
	case "video", "ig_reel", "reel":
		return channel.AttachmentVideo
	case "audio":
		return channel.AttachmentAudio
	case "share", "story_mention", "ig_post":
		return channel.AttachmentLink
	default:
		return channel.AttachmentFile
	}
}
