// Package notify tells responsible users about new leads over Telegram and
// e-mail. Delivery runs off the request path through Dispatcher.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/franchiseos/leadhub/internal/leads"
)

var (
	// ErrUnreachable is returned when the assignee has no usable contact for
	// any configured sender.
	ErrUnreachable = errors.New("assignee is not reachable")
	// ErrInactiveAssignee is returned when the assignee was deactivated after
	// the lead was assigned.
	ErrInactiveAssignee = errors.New("assignee is inactive")
)

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Sender delivers a Message to a user over one transport.
type Sender interface {
	Name() string
	Reachable(user leads.User) bool
	Send(ctx context.Context, user leads.User, msg Message) error
}

// UserLookup resolves assignee ids. leads.DBStore satisfies it.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (leads.User, error)
}

// Service fans a lead summary out to every sender that can reach the assignee.
type Service struct {
	users   UserLookup
	senders []Sender
	logger  *slog.Logger
}

func NewService(log *slog.Logger, users UserLookup, senders ...Sender) *Service {
	if log == nil {
		log = slog.Default()
	}
	active := make([]Sender, 0, len(senders))
	for _, s := range senders {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Service{
		users:   users,
		senders: active,
		logger:  log.With(slog.String("service", "notify")),
	}
}

// Senders returns the names of the configured transports.
func (s *Service) Senders() []string {
	names := make([]string, 0, len(s.senders))
	for _, sender := range s.senders {
		names = append(names, sender.Name())
	}
	return names
}

// Notify implements leads.Notifier. Every reachable transport is tried; the
// call fails only when none of them delivered.
func (s *Service) Notify(ctx context.Context, assigneeID string, summary leads.LeadSummary) error {
	if strings.TrimSpace(assigneeID) == "" {
		return ErrUnreachable
	}
	user, err := s.users.GetUser(ctx, assigneeID)
	if err != nil {
		return fmt.Errorf("resolve assignee: %w", err)
	}
	if !user.Active {
		return ErrInactiveAssignee
	}
	msg := Compose(summary)

	var (
		attempted int
		errs      []error
	)
	for _, sender := range s.senders {
		if !sender.Reachable(user) {
			continue
		}
		attempted++
		if err := sender.Send(ctx, user, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sender.Name(), err))
			continue
		}
		s.logger.Debug("lead notification sent",
			slog.String("sender", sender.Name()),
			slog.String("lead_id", summary.LeadID),
			slog.String("user_id", user.ID),
		)
	}
	if attempted == 0 {
		return ErrUnreachable
	}
	if len(errs) == attempted {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		s.logger.Warn("lead notification partially failed", slog.String("lead_id", summary.LeadID), slog.Any("error", err))
	}
	return nil
}

// Compose renders the notification text for a new lead.
func Compose(summary leads.LeadSummary) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "New lead from %s\n", summary.Channel)
	contact := summary.DisplayName
	if summary.Username != "" {
		if contact != "" {
			contact += " "
		}
		contact += "@" + strings.TrimPrefix(summary.Username, "@")
	}
	if contact == "" {
		contact = summary.ExternalUserID
	}
	fmt.Fprintf(&b, "Contact: %s\n", contact)
	if summary.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", summary.Phone)
	}
	if text := strings.TrimSpace(summary.Text); text != "" {
		fmt.Fprintf(&b, "Message: %s\n", text)
	}
	fmt.Fprintf(&b, "Lead: %s", summary.LeadID)
	return Message{
		Subject: fmt.Sprintf("New %s lead", summary.Channel),
		Body:    b.String(),
	}
}
