package instagram

import (
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/common"
)

const batchPayload = `{
	"object": "instagram",
	"entry": [{
		"id": "17841400000000000",
		"time": 1760000000,
		"messaging": [
			{
				"sender": {"id": "ig-user-1"},
				"recipient": {"id": "17841400000000000"},
				"timestamp": 1760000000000,
				"message": {"mid": "mid.1", "text": "Сколько стоит абонемент?"}
			},
			{
				"sender": {"id": "17841400000000000"},
				"recipient": {"id": "ig-user-1"},
				"timestamp": 1760000000500,
				"message": {"mid": "mid.echo", "text": "auto reply", "is_echo": true}
			},
			{
				"sender": {"id": "ig-user-2"},
				"recipient": {"id": "17841400000000000"},
				"timestamp": 1760000001000,
				"message": {"mid": "mid.2", "attachments": [{"type": "image", "payload": {"url": "https://cdn.example/p.jpg"}}]}
			},
			{
				"sender": {"id": "ig-user-3"},
				"recipient": {"id": "17841400000000000"},
				"timestamp": 1760000002000,
				"read": {"mid": "mid.1"}
			}
		]
	}]
}`

func TestParseBatch(t *testing.T) {
	t.Parallel()

	msgs, err := NewInstagramAdapter(nil).Parse([]byte(batchPayload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages (echo and read skipped), got %d", len(msgs))
	}
	if msgs[0].ExternalMessageID != "mid.1" || msgs[0].Sender.SubjectID != "ig-user-1" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[0].Sender.Phone != "" {
		t.Fatal("instagram never provides a phone")
	}
	if len(msgs[1].Attachments) != 1 || msgs[1].Attachments[0].Type != channel.AttachmentImage {
		t.Fatalf("unexpected attachments: %+v", msgs[1].Attachments)
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	adapter := NewInstagramAdapter(nil)
	cases := []string{
		`[]`,
		`{"object":"instagram"}`,
		`{"object":"instagram","entry":[{"messaging":[{"sender":{},"message":{"mid":"m","text":"x"}}]}]}`,
	}
	for _, payload := range cases {
		if _, err := adapter.Parse([]byte(payload)); !errors.Is(err, channel.ErrMalformedPayload) {
			t.Fatalf("Parse(%s) error = %v, want ErrMalformedPayload", payload, err)
		}
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	adapter := NewInstagramAdapter(nil)
	payload := []byte(batchPayload)
	header := http.Header{}
	header.Set(common.HubSignatureHeader, "sha256="+hex.EncodeToString(common.SignHub(payload, "meta-secret")))
	creds := map[string]any{"app_secret": "meta-secret"}
	if err := adapter.VerifySignature(header, payload, creds); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := adapter.VerifySignature(http.Header{}, payload, creds); !errors.Is(err, channel.ErrInvalidSignature) {
		t.Fatalf("missing signature accepted: %v", err)
	}
}

func TestDescriptorRequiresChallenge(t *testing.T) {
	t.Parallel()

	if NewInstagramAdapter(nil).Descriptor().Verification != channel.VerificationChallenge {
		t.Fatal("instagram must use challenge verification")
	}
}
