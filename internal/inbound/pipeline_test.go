package inbound_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/instagram"
	"github.com/franchiseos/leadhub/internal/channel/adapters/telegram"
	"github.com/franchiseos/leadhub/internal/channel/adapters/vk"
	"github.com/franchiseos/leadhub/internal/inbound"
	"github.com/franchiseos/leadhub/internal/inbound/inboundtest"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/leads"
	"github.com/franchiseos/leadhub/internal/leads/leadstest"
	"github.com/franchiseos/leadhub/internal/logger"
	"github.com/franchiseos/leadhub/internal/routing"
	"github.com/franchiseos/leadhub/internal/trigger"
)

const (
	tgIntegrationID = "5f0c6a52-6f57-4d43-9a43-2b1f0e0d9a01"
	assigneeID      = "8a3c1d7e-1f2b-4c5d-8e9f-0a1b2c3d4e5f"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingNotifier) Notify(_ context.Context, assignee string, summary leads.LeadSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, assignee+"/"+summary.LeadID)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type harness struct {
	pipeline     *inbound.Pipeline
	integrations *inboundtest.Integrations
	messages     *inboundtest.Messages
	leads        *leadstest.Store
	notifier     *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Discard()
	registry := channel.NewRegistry()
	registry.MustRegister(telegram.NewTelegramAdapter(log))
	registry.MustRegister(instagram.NewInstagramAdapter(log))
	registry.MustRegister(vk.NewVKAdapter(log))

	h := &harness{
		integrations: inboundtest.NewIntegrations(),
		messages:     inboundtest.NewMessages(),
		leads: leadstest.New(leads.User{
			ID:        assigneeID,
			Role:      "admin",
			Active:    true,
			CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}),
		notifier: &recordingNotifier{},
	}
	creator := leads.NewCreator(log, h.leads, leads.NewAssigner(log, h.leads), h.notifier, nil)
	normalizer := inbound.NewNormalizer(log, registry, h.integrations, h.messages)
	h.pipeline = inbound.NewPipeline(log, normalizer, h.integrations, routing.NewEngine(log, h.leads), creator, 5*time.Second)

	h.integrations.Put(integration.Integration{
		ID:                 tgIntegrationID,
		OwnerType:          integration.OwnerPlatform,
		Channel:            channel.Telegram,
		Active:             true,
		AssignmentStrategy: integration.StrategyFixed,
		DefaultAssigneeID:  assigneeID,
		RequireRuleMatch:   true,
	}, trigger.Rule{ID: 1, IntegrationID: tgIntegrationID, Keywords: []string{"бронь"}, MatchType: trigger.MatchAny, Active: true, Priority: 10})
	return h
}

func tgUpdate(updateID int, userID int64, text string) []byte {
	return []byte(fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":1760000000,"chat":{"id":%d,"type":"private"},"from":{"id":%d,"is_bot":false,"first_name":"Ivan","username":"ivan"},"text":%q}}`,
		updateID, updateID, userID, userID, text))
}

func tgDelivery(body []byte) inbound.Delivery {
	return inbound.Delivery{Channel: "telegram", IntegrationID: tgIntegrationID, Header: http.Header{}, Body: body}
}

func TestPipelineBookingScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.pipeline.Handle(ctx, tgDelivery(tgUpdate(100, 555, "хочу бронь на субботу")))
	require.NoError(t, err)
	assert.Equal(t, string(routing.ActionCreate), first.Routing)
	require.NotEmpty(t, first.LeadID)
	require.NotEmpty(t, first.MessageID)
	require.Len(t, first.Results, 1)
	assert.Equal(t, assigneeID, first.Results[0].AssigneeID)
	assert.EqualValues(t, 1, first.Results[0].RuleID)

	second, err := h.pipeline.Handle(ctx, tgDelivery(tgUpdate(101, 555, "Бронь на воскресенье")))
	require.NoError(t, err)
	assert.Equal(t, string(routing.ActionAttach), second.Routing)
	assert.Equal(t, first.LeadID, second.LeadID)

	stat, err := h.leads.DuplicateStat(ctx, tgIntegrationID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stat.Count)
	assert.Equal(t, 1, h.notifier.count())
	assert.Len(t, h.leads.Leads(), 1)
	assert.Len(t, h.messages.All(), 2)
}

func TestPipelineNoRuleMatchDiscardsButRecords(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.pipeline.Handle(context.Background(), tgDelivery(tgUpdate(7, 42, "просто привет")))
	require.NoError(t, err)
	assert.Equal(t, string(routing.ActionDiscard), out.Routing)
	assert.Equal(t, routing.ReasonNoRuleMatch, out.Results[0].Reason)
	assert.Empty(t, out.LeadID)
	assert.Len(t, h.messages.All(), 1)
	assert.Empty(t, h.leads.Leads())
}

func TestPipelineInactiveIntegrationRecordsMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	integ, _ := h.integrations.Get(context.Background(), tgIntegrationID)
	integ.Active = false
	h.integrations.Put(integ)

	out, err := h.pipeline.Handle(context.Background(), tgDelivery(tgUpdate(8, 42, "бронь")))
	require.NoError(t, err)
	assert.Equal(t, string(routing.ActionDiscard), out.Routing)
	assert.Equal(t, routing.ReasonIntegrationInactive, out.Results[0].Reason)
	assert.Len(t, h.messages.All(), 1)
	assert.Empty(t, h.leads.Leads())
}

func TestPipelineReplayNeverCreatesSecondLead(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	body := tgUpdate(300, 77, "нужна бронь")

	first, err := h.pipeline.Handle(context.Background(), tgDelivery(body))
	require.NoError(t, err)
	require.Equal(t, string(routing.ActionCreate), first.Routing)

	replay, err := h.pipeline.Handle(context.Background(), tgDelivery(body))
	require.NoError(t, err)
	assert.Equal(t, string(routing.ActionAttach), replay.Routing)
	assert.Equal(t, first.MessageID, replay.MessageID)
	assert.True(t, replay.Results[0].Replayed)
	assert.Len(t, h.leads.Leads(), 1)
	assert.Len(t, h.messages.All(), 1)
}

func TestPipelineConcurrentDeliveriesOpenOneLead(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	const n = 20

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		creates  int
		attaches int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.pipeline.Handle(context.Background(), tgDelivery(tgUpdate(1000+i, 999, "бронь столика")))
			if err != nil {
				t.Errorf("Handle: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch routing.Action(out.Routing) {
			case routing.ActionCreate:
				creates++
			case routing.ActionAttach:
				attaches++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, creates)
	assert.Equal(t, n-1, attaches)
	stat, err := h.leads.DuplicateStat(context.Background(), tgIntegrationID)
	require.NoError(t, err)
	assert.EqualValues(t, n-1, stat.Count)
	assert.Equal(t, 1, h.notifier.count())
}

func TestPipelineSkipsServiceEvents(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	body := []byte(`{"update_id":5,"edited_message":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"},"text":"x"}}`)
	out, err := h.pipeline.Handle(context.Background(), tgDelivery(body))
	require.NoError(t, err)
	assert.Equal(t, inbound.RoutingSkipped, out.Routing)
	assert.Empty(t, h.messages.All())
}

func TestPipelineRejections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.pipeline.Handle(ctx, inbound.Delivery{Channel: "icq", IntegrationID: tgIntegrationID, Body: []byte(`{}`)})
	assert.ErrorIs(t, err, channel.ErrUnsupportedChannel)

	_, err = h.pipeline.Handle(ctx, inbound.Delivery{Channel: "telegram", IntegrationID: "missing", Body: []byte(`{}`)})
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)

	_, err = h.pipeline.Handle(ctx, inbound.Delivery{Channel: "vk", IntegrationID: tgIntegrationID, Body: []byte(`{}`)})
	assert.ErrorIs(t, err, inbound.ErrChannelMismatch)

	_, err = h.pipeline.Handle(ctx, tgDelivery([]byte(`{"update_id":`)))
	assert.ErrorIs(t, err, channel.ErrMalformedPayload)

	assert.Empty(t, h.messages.All())
}

func TestPipelineSignatureCheck(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	integ, _ := h.integrations.Get(context.Background(), tgIntegrationID)
	integ.Credentials = map[string]any{"secret_token": "s3cret"}
	h.integrations.Put(integ)

	d := tgDelivery(tgUpdate(1, 2, "бронь"))
	_, err := h.pipeline.Handle(context.Background(), d)
	assert.ErrorIs(t, err, channel.ErrInvalidSignature)

	d.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	out, err := h.pipeline.Handle(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, string(routing.ActionCreate), out.Routing)
}

func TestPipelineVKConfirmation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	const vkID = "0b7e3c2a-9d1f-4e6a-8b5c-3d2e1f0a9b8c"
	h.integrations.Put(integration.Integration{
		ID:          vkID,
		OwnerType:   integration.OwnerPlatform,
		Channel:     channel.VK,
		Active:      true,
		Credentials: map[string]any{"confirmation_code": "abc123"},
	})

	out, err := h.pipeline.Handle(context.Background(), inbound.Delivery{
		Channel:       "vk",
		IntegrationID: vkID,
		Body:          []byte(`{"type":"confirmation","group_id":1}`),
	})
	require.NoError(t, err)
	assert.True(t, out.Confirmed)
	assert.Equal(t, "abc123", out.Confirmation)
	assert.Empty(t, h.messages.All())
}

func TestPipelineStorageFailureSurfaces(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.messages.FailSave = errors.New("disk full")

	_, err := h.pipeline.Handle(context.Background(), tgDelivery(tgUpdate(1, 2, "бронь")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
