package notify

import (
	"context"
	"fmt"
	"strings"

	mg "github.com/mailgun/mailgun-go/v5"
	"github.com/wneessen/go-mail"

	"github.com/franchiseos/leadhub/internal/config"
	"github.com/franchiseos/leadhub/internal/leads"
)

// MailgunSender delivers notifications through the Mailgun HTTP API.
type MailgunSender struct {
	client *mg.Client
	domain string
	from   string
}

// NewMailgunSender returns nil unless domain and api key are configured.
func NewMailgunSender(cfg config.MailgunNotifyConfig) Sender {
	domain := strings.TrimSpace(cfg.Domain)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if domain == "" || apiKey == "" {
		return nil
	}
	client := mg.NewMailgun(apiKey)
	if strings.EqualFold(strings.TrimSpace(cfg.Region), "eu") {
		client.SetAPIBase(mg.APIBaseEU)
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = fmt.Sprintf("noreply@%s", domain)
	}
	return &MailgunSender{client: client, domain: domain, from: from}
}

func (s *MailgunSender) Name() string { return "mailgun" }

func (s *MailgunSender) Reachable(user leads.User) bool {
	return strings.TrimSpace(user.Email) != ""
}

func (s *MailgunSender) Send(ctx context.Context, user leads.User, msg Message) error {
	m := mg.NewMessage(s.domain, s.from, msg.Subject, msg.Body, strings.TrimSpace(user.Email))
	if _, err := s.client.Send(ctx, m); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}

// SMTPSender delivers notifications over SMTP.
type SMTPSender struct {
	cfg config.SMTPNotifyConfig
}

// NewSMTPSender returns nil unless host and sender address are configured.
func NewSMTPSender(cfg config.SMTPNotifyConfig) Sender {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Reachable(user leads.User) bool {
	return strings.TrimSpace(user.Email) != ""
}

func (s *SMTPSender) Send(ctx context.Context, user leads.User, msg Message) error {
	m, err := s.buildMessage(user, msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(user leads.User, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := m.To(strings.TrimSpace(user.Email)); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	m.SetMessageID()
	return m, nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	if s.cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	return opts
}
