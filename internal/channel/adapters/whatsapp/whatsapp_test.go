package whatsapp

import (
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/common"
)

const textPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "1029384756",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "79990000000", "phone_number_id": "555"},
				"contacts": [{"profile": {"name": "Анна"}, "wa_id": "79161234567"}],
				"messages": [
					{"from": "79161234567", "id": "wamid.A", "timestamp": "1760000000", "type": "text", "text": {"body": "Хочу бронь на субботу"}},
					{"from": "79161234567", "id": "wamid.B", "timestamp": "1760000001", "type": "image", "image": {"id": "media-1", "mime_type": "image/jpeg", "caption": "вот чек"}}
				]
			}
		}]
	}]
}`

const statusPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
		"messaging_product": "whatsapp",
		"metadata": {"phone_number_id": "555"},
		"statuses": [{"id": "wamid.X", "status": "delivered"}]
	}}]}]
}`

func TestParseMessages(t *testing.T) {
	t.Parallel()

	msgs, err := NewWhatsAppAdapter(nil).Parse([]byte(textPayload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	first := msgs[0]
	if first.Sender.SubjectID != "79161234567" || first.Sender.Phone != "+79161234567" {
		t.Fatalf("unexpected sender: %+v", first.Sender)
	}
	if first.Sender.DisplayName != "Анна" {
		t.Fatalf("display name = %q", first.Sender.DisplayName)
	}
	if first.Text != "Хочу бронь на субботу" || first.ExternalMessageID != "wamid.A" {
		t.Fatalf("unexpected first message: %+v", first)
	}
	second := msgs[1]
	if second.Text != "вот чек" {
		t.Fatalf("caption not used as text: %q", second.Text)
	}
	if len(second.Attachments) != 1 || second.Attachments[0].PlatformKey != "media-1" {
		t.Fatalf("unexpected attachments: %+v", second.Attachments)
	}
}

func TestParseStatusOnlyYieldsNothing(t *testing.T) {
	t.Parallel()

	msgs, err := NewWhatsAppAdapter(nil).Parse([]byte(statusPayload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestParseInteractiveReply(t *testing.T) {
	t.Parallel()

	payload := `{"entry":[{"changes":[{"value":{"messages":[
		{"from":"4915112345678","id":"wamid.I","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"b1","title":"Записаться"}}}
	]}}]}]}`
	msgs, err := NewWhatsAppAdapter(nil).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "Записаться" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	adapter := NewWhatsAppAdapter(nil)
	for _, payload := range []string{
		`not json`,
		`{"object":"whatsapp_business_account"}`,
		`{"entry":[{"changes":[{"value":{"messages":[{"id":"wamid.Z","type":"text","text":{"body":"hi"}}]}}]}]}`,
	} {
		if _, err := adapter.Parse([]byte(payload)); !errors.Is(err, channel.ErrMalformedPayload) {
			t.Fatalf("Parse(%s) error = %v, want ErrMalformedPayload", payload, err)
		}
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	adapter := NewWhatsAppAdapter(nil)
	payload := []byte(textPayload)
	creds := map[string]any{"app_secret": "wa-app"}

	if err := adapter.VerifySignature(http.Header{}, payload, map[string]any{}); err != nil {
		t.Fatalf("check must be skipped without app_secret: %v", err)
	}
	header := http.Header{}
	header.Set(common.HubSignatureHeader, "sha256="+hex.EncodeToString(common.SignHub(payload, "other")))
	if err := adapter.VerifySignature(header, payload, creds); !errors.Is(err, channel.ErrInvalidSignature) {
		t.Fatalf("wrong signature accepted: %v", err)
	}
	header.Set(common.HubSignatureHeader, "sha256="+hex.EncodeToString(common.SignHub(payload, "wa-app")))
	if err := adapter.VerifySignature(header, payload, creds); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}
