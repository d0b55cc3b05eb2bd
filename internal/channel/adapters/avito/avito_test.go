package avito

import (
	"errors"
	"testing"

	"github.com/franchiseos/leadhub/internal/channel"
)

func TestParseCustomerMessage(t *testing.T) {
	t.Parallel()

	payload := `{
		"id": "notif-1",
		"version": "v3.0.0",
		"timestamp": 1760000000,
		"payload": {
			"type": "message",
			"value": {
				"id": "msg-77",
				"chat_id": "u2i-abc",
				"user_id": 1000,
				"author_id": 2024,
				"created": 1760000000,
				"type": "text",
				"chat_type": "u2i",
				"item_id": 4455,
				"content": {"text": "Здравствуйте, объявление актуально?"}
			}
		}
	}`
	msgs, err := NewAvitoAdapter(nil).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Sender.SubjectID != "2024" || msg.ExternalMessageID != "msg-77" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Sender.Attribute("chat_id") != "u2i-abc" || msg.Sender.Attribute("item_id") != "4455" {
		t.Fatalf("unexpected attributes: %+v", msg.Sender.Attributes)
	}
}

func TestParseSkipsOwnAndSystemMessages(t *testing.T) {
	t.Parallel()

	adapter := NewAvitoAdapter(nil)
	for _, payload := range []string{
		`{"payload":{"type":"message","value":{"id":"m1","user_id":1000,"author_id":1000,"content":{"text":"our reply"}}}}`,
		`{"payload":{"type":"message","value":{"id":"m2","user_id":1000,"author_id":0,"type":"system","content":{"text":"chat archived"}}}}`,
		`{"payload":{"type":"chat_read","value":{"chat_id":"c"}}}`,
	} {
		msgs, err := adapter.Parse([]byte(payload))
		if err != nil {
			t.Fatalf("Parse(%s): %v", payload, err)
		}
		if len(msgs) != 0 {
			t.Fatalf("Parse(%s) produced %d messages", payload, len(msgs))
		}
	}
}

func TestParseImagePicksLargest(t *testing.T) {
	t.Parallel()

	payload := `{"payload":{"type":"message","value":{"id":"m3","user_id":1,"author_id":2,"type":"image",
		"content":{"image":{"sizes":{"140x105":"https://avito.example/s.jpg","1280x960":"https://avito.example/l.jpg","640x480":"https://avito.example/m.jpg"}}}}}}`
	msgs, err := NewAvitoAdapter(nil).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msgs) != 1 || len(msgs[0].Attachments) != 1 {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if got := msgs[0].Attachments[0].URL; got != "https://avito.example/l.jpg" {
		t.Fatalf("picked %q", got)
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	adapter := NewAvitoAdapter(nil)
	for _, payload := range []string{
		`"string"`,
		`{"id":"n"}`,
		`{"payload":{"type":"message"}}`,
	} {
		if _, err := adapter.Parse([]byte(payload)); !errors.Is(err, channel.ErrMalformedPayload) {
			t.Fatalf("Parse(%s) error = %v, want ErrMalformedPayload", payload, err)
		}
	}
}
