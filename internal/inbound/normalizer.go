// Package inbound turns webhook deliveries into stored InboundMessages and
// drives each one through rule matching, routing and lead creation.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/common"
	"github.com/franchiseos/leadhub/internal/integration"
)

// ErrChannelMismatch is returned when the path channel differs from the
// integration's channel.
var ErrChannelMismatch = errors.New("channel does not match integration")

// Delivery is one raw webhook request.
type Delivery struct {
	Channel       string
	IntegrationID string
	Header        http.Header
	Body          []byte
	ReceivedAt    time.Time
}

// IntegrationSource resolves integrations by id. integration.Service
// satisfies it.
type IntegrationSource interface {
	Get(ctx context.Context, integrationID string) (integration.Integration, error)
}

// MessageStore persists inbound messages. Save assigns ID and sets Replayed
// when the integration already holds the external message id.
type MessageStore interface {
	Save(ctx context.Context, msg channel.InboundMessage) (channel.InboundMessage, error)
}

// Normalized is the result of normalizing one delivery. A confirmation
// handshake carries no messages.
type Normalized struct {
	Integration  integration.Integration
	Messages     []channel.InboundMessage
	Confirmation string
	Confirmed    bool
}

type Normalizer struct {
	registry     *channel.Registry
	integrations IntegrationSource
	store        MessageStore
	logger       *slog.Logger
	now          func() time.Time
}

func NewNormalizer(log *slog.Logger, registry *channel.Registry, integrations IntegrationSource, store MessageStore) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{
		registry:     registry,
		integrations: integrations,
		store:        store,
		logger:       log.With(slog.String("component", "normalizer")),
		now:          time.Now,
	}
}

// Normalize validates the delivery, extracts its messages and stores every
// one of them. Inactive integrations still get their messages recorded.
func (n *Normalizer) Normalize(ctx context.Context, d Delivery) (Normalized, error) {
	ct, err := n.registry.ParseChannelType(d.Channel)
	if err != nil {
		return Normalized{}, err
	}
	integ, err := n.integrations.Get(ctx, strings.TrimSpace(d.IntegrationID))
	if err != nil {
		return Normalized{}, err
	}
	if integ.Channel != ct {
		return Normalized{}, fmt.Errorf("%w: path %s, integration %s", ErrChannelMismatch, ct, integ.Channel)
	}
	if err := n.registry.VerifySignature(ct, d.Header, d.Body, integ.Credentials); err != nil {
		return Normalized{}, err
	}
	if response, ok, err := n.registry.Confirmation(ct, d.Body, integ.Credentials); err != nil {
		return Normalized{}, err
	} else if ok {
		return Normalized{Integration: integ, Confirmation: response, Confirmed: true}, nil
	}

	msgs, err := n.registry.Parse(ct, d.Body)
	if err != nil {
		return Normalized{}, err
	}
	receivedAt := d.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = n.now()
	}
	raw := json.RawMessage(d.Body)
	stored := make([]channel.InboundMessage, 0, len(msgs))
	for _, msg := range msgs {
		msg.IntegrationID = integ.ID
		msg.ReceivedAt = receivedAt.UTC()
		msg.RawPayload = raw
		saved, err := n.store.Save(ctx, msg)
		if err != nil {
			return Normalized{}, fmt.Errorf("store inbound message: %w", err)
		}
		n.logger.Debug("inbound message stored",
			slog.String("message_id", saved.ID),
			slog.String("integration_id", integ.ID),
			slog.String("channel", ct.String()),
			slog.Bool("replayed", saved.Replayed),
			slog.String("text", common.SummarizeText(saved.Text)),
		)
		stored = append(stored, saved)
	}
	return Normalized{Integration: integ, Messages: stored}, nil
}
