package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/config"
	"github.com/franchiseos/leadhub/internal/leads"
	"github.com/franchiseos/leadhub/internal/logger"
)

type fakeUsers map[string]leads.User

func (f fakeUsers) GetUser(_ context.Context, id string) (leads.User, error) {
	u, ok := f[id]
	if !ok {
		return leads.User{}, leads.ErrUserNotFound
	}
	return u, nil
}

type fakeSender struct {
	name  string
	reach func(leads.User) bool
	err   error

	mu   sync.Mutex
	sent []Message
}

func (s *fakeSender) Name() string { return s.name }

func (s *fakeSender) Reachable(u leads.User) bool { return s.reach(u) }

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) Send(_ context.Context, _ leads.User, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func byChat(u leads.User) bool  { return u.TelegramChatID != "" }
func byEmail(u leads.User) bool { return u.Email != "" }

var summary = leads.LeadSummary{
	LeadID:         "lead-1",
	Channel:        channel.Telegram,
	ExternalUserID: "42",
	Username:       "ivan",
	DisplayName:    "Ivan",
	Text:           "хочу бронь на субботу",
}

func TestServiceNotifySendsOverReachableTransports(t *testing.T) {
	t.Parallel()

	tg := &fakeSender{name: "telegram", reach: byChat}
	mail := &fakeSender{name: "smtp", reach: byEmail}
	users := fakeUsers{"u-1": {ID: "u-1", Active: true, TelegramChatID: "100"}}
	svc := NewService(logger.Discard(), users, tg, nil, mail)

	require.NoError(t, svc.Notify(context.Background(), "u-1", summary))
	assert.Equal(t, 1, tg.count())
	assert.Equal(t, 0, mail.count())
	assert.Equal(t, []string{"telegram", "smtp"}, svc.Senders())
}

func TestServiceNotifyErrors(t *testing.T) {
	t.Parallel()

	users := fakeUsers{
		"u-1": {ID: "u-1", Active: true},
		"u-2": {ID: "u-2", Active: false, Email: "a@b.c"},
		"u-3": {ID: "u-3", Active: true, Email: "a@b.c"},
	}
	failing := &fakeSender{name: "smtp", reach: byEmail, err: errors.New("dial failed")}
	svc := NewService(logger.Discard(), users, failing)

	assert.ErrorIs(t, svc.Notify(context.Background(), "", summary), ErrUnreachable)
	assert.ErrorIs(t, svc.Notify(context.Background(), "u-1", summary), ErrUnreachable)
	assert.ErrorIs(t, svc.Notify(context.Background(), "u-2", summary), ErrInactiveAssignee)
	assert.ErrorIs(t, svc.Notify(context.Background(), "missing", summary), leads.ErrUserNotFound)

	err := svc.Notify(context.Background(), "u-3", summary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial failed")
}

func TestServiceNotifyPartialFailureSucceeds(t *testing.T) {
	t.Parallel()

	users := fakeUsers{"u-1": {ID: "u-1", Active: true, TelegramChatID: "100", Email: "a@b.c"}}
	tg := &fakeSender{name: "telegram", reach: byChat, err: errors.New("blocked by user")}
	mail := &fakeSender{name: "smtp", reach: byEmail}
	svc := NewService(logger.Discard(), users, tg, mail)

	require.NoError(t, svc.Notify(context.Background(), "u-1", summary))
	assert.Equal(t, 1, mail.count())
}

func TestCompose(t *testing.T) {
	t.Parallel()

	msg := Compose(summary)
	assert.Equal(t, "New telegram lead", msg.Subject)
	assert.Contains(t, msg.Body, "Contact: Ivan @ivan")
	assert.Contains(t, msg.Body, "хочу бронь")
	assert.True(t, strings.HasSuffix(msg.Body, "Lead: lead-1"))
	assert.NotContains(t, msg.Body, "Phone:")

	bare := Compose(leads.LeadSummary{LeadID: "l", Channel: channel.VK, ExternalUserID: "7", Phone: "+79990001122"})
	assert.Contains(t, bare.Body, "Contact: 7")
	assert.Contains(t, bare.Body, "Phone: +79990001122")
}

type recordingTextSender struct {
	credentials map[string]any
	target      string
	text        string
}

func (r *recordingTextSender) SendText(_ context.Context, credentials map[string]any, target, text string) error {
	r.credentials, r.target, r.text = credentials, target, text
	return nil
}

func TestTelegramSender(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewTelegramSender(&recordingTextSender{}, " "))

	rec := &recordingTextSender{}
	sender := NewTelegramSender(rec, "123:abc")
	require.NotNil(t, sender)
	assert.False(t, sender.Reachable(leads.User{}))
	require.NoError(t, sender.Send(context.Background(), leads.User{TelegramChatID: " 555 "}, Message{Body: "hi"}))
	assert.Equal(t, "555", rec.target)
	assert.Equal(t, "hi", rec.text)
	assert.Equal(t, "123:abc", rec.credentials["bot_token"])
}

func TestEmailSendersRequireConfig(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewMailgunSender(config.MailgunNotifyConfig{Domain: "mg.example.com"}))
	assert.Nil(t, NewSMTPSender(config.SMTPNotifyConfig{Host: "smtp.example.com"}))

	mg := NewMailgunSender(config.MailgunNotifyConfig{Domain: "mg.example.com", APIKey: "key", Region: "EU"})
	require.NotNil(t, mg)
	assert.Equal(t, "noreply@mg.example.com", mg.(*MailgunSender).from)
	assert.True(t, mg.Reachable(leads.User{Email: "a@b.c"}))

	smtp := NewSMTPSender(config.SMTPNotifyConfig{Host: "smtp.example.com", From: "hub@example.com"})
	require.NotNil(t, smtp)
	assert.Equal(t, 587, smtp.(*SMTPSender).cfg.Port)
}

func TestSMTPBuildMessage(t *testing.T) {
	t.Parallel()

	sender := &SMTPSender{cfg: config.SMTPNotifyConfig{Host: "smtp.example.com", From: "hub@example.com", Port: 25}}
	m, err := sender.buildMessage(leads.User{Email: "admin@example.com"}, Message{Subject: "New lead", Body: "body"})
	require.NoError(t, err)
	require.Len(t, m.GetTo(), 1)
	assert.Equal(t, "admin@example.com", m.GetTo()[0].Address)

	_, err = sender.buildMessage(leads.User{Email: "not an address"}, Message{})
	assert.Error(t, err)
	assert.Len(t, sender.clientOptions(), 2)
}
