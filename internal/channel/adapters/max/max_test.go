package max

import (
	"errors"
	"testing"

	"github.com/franchiseos/leadhub/internal/channel"
)

func TestParseMessageCreated(t *testing.T) {
	t.Parallel()

	payload := `{
		"update_type": "message_created",
		"timestamp": 1760000000000,
		"message": {
			"sender": {"user_id": 5001, "name": "Ольга", "username": "olga"},
			"recipient": {"chat_id": 9001, "chat_type": "dialog"},
			"timestamp": 1760000000000,
			"body": {"mid": "mid.max.1", "seq": 1, "text": "бронь на завтра"}
		}
	}`
	msgs, err := NewMaxAdapter(nil).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Sender.SubjectID != "5001" || msg.Sender.DisplayName != "Ольга" || msg.ExternalMessageID != "mid.max.1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Sender.Phone != "" {
		t.Fatalf("phone without contact card: %q", msg.Sender.Phone)
	}
}

func TestParseSharedContactPhone(t *testing.T) {
	t.Parallel()

	payload := `{
		"update_type": "message_created",
		"message": {
			"sender": {"user_id": 5001, "name": "Ольга"},
			"recipient": {"chat_id": 9001},
			"body": {"mid": "mid.max.2", "attachments": [
				{"type": "contact", "payload": {"vcf_info": "BEGIN:VCARD\nVERSION:3.0\nTEL;TYPE=cell:+7 (916) 123-45-67\nEND:VCARD", "max_info": {"user_id": 5001}}}
			]}
		}
	}`
	msgs, err := NewMaxAdapter(nil).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := msgs[0].Sender.Phone; got != "+79161234567" {
		t.Fatalf("phone = %q", got)
	}
	if len(msgs[0].Attachments) != 1 || msgs[0].Attachments[0].Type != channel.AttachmentContact {
		t.Fatalf("unexpected attachments: %+v", msgs[0].Attachments)
	}
}

func TestParseForeignContactHasNoPhone(t *testing.T) {
	t.Parallel()

	payload := `{"update_type":"message_created","message":{"sender":{"user_id":1},"body":{"mid":"m","attachments":[
		{"type":"contact","payload":{"vcf_info":"TEL:+79990001122","max_info":{"user_id":2}}}
	]}}}`
	msgs, err := NewMaxAdapter(nil).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msgs[0].Sender.Phone != "" {
		t.Fatalf("foreign contact phone leaked: %q", msgs[0].Sender.Phone)
	}
}

func TestParseIgnoresServiceUpdatesAndBots(t *testing.T) {
	t.Parallel()

	adapter := NewMaxAdapter(nil)
	for _, payload := range []string{
		`{"update_type":"bot_started","chat_id":1,"user":{"user_id":3}}`,
		`{"update_type":"message_created","message":{"sender":{"user_id":7,"is_bot":true},"body":{"mid":"b","text":"hi"}}}`,
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

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	adapter := NewMaxAdapter(nil)
	for _, payload := range []string{
		`[1,2]`,
		`{"timestamp":1}`,
		`{"update_type":"message_created","message":{"body":{"text":"x"}}}`,
	} {
		if _, err := adapter.Parse([]byte(payload)); !errors.Is(err, channel.ErrMalformedPayload) {
			t.Fatalf("Parse(%s) error = %v, want ErrMalformedPayload", payload, err)
		}
	}
}
