package mailer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

const (
	defaultSMTPHost  = "smtp.sendgrid.net"
	defaultSMTPPort  = 587
	sendgridSMTPUser = "apikey"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Message is a single outbound HTML e-mail.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// InvitationEmail carries the values rendered into the invitation template.
type InvitationEmail struct {
	To               string
	OrganizationName string
	Role             string
	InviterEmail     string
	AcceptURL        string
	ExpiresAt        time.Time
}

// Mailer renders templates and hands them to a Sender.
type Mailer struct {
	sender Sender
}

func New(sender Sender) (*Mailer, error) {
	if sender == nil {
		return nil, errors.New("mail sender is required")
	}
	return &Mailer{sender: sender}, nil
}

// NewFromConfig picks SendGrid when an API key is configured, otherwise a sender
// that only logs.
func NewFromConfig(cfg config.SendgridConfig, logg *logger.Logger) *Mailer {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &Mailer{sender: &LogSender{logg: logg}}
	}
	return &Mailer{sender: NewSendgridSender(cfg)}
}

// SendInvitation renders and sends the invitation e-mail.
func (m *Mailer) SendInvitation(ctx context.Context, invite InvitationEmail) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, "invitation.html", invite); err != nil {
		return fmt.Errorf("render invitation: %w", err)
	}
	return m.sender.Send(ctx, Message{
		To:       invite.To,
		Subject:  fmt.Sprintf("You're invited to join %s on Pharo", invite.OrganizationName),
		HTMLBody: body.String(),
	})
}

// dialer is the part of gomail.Dialer the sender uses.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SendgridSender relays messages through SendGrid's SMTP endpoint, which
// authenticates with the literal user "apikey" and the API key as password.
type SendgridSender struct {
	from     string
	fromName string
	dialer   dialer
}

func NewSendgridSender(cfg config.SendgridConfig) *SendgridSender {
	host := strings.TrimSpace(cfg.SMTPHost)
	if host == "" {
		host = defaultSMTPHost
	}
	port := cfg.SMTPPort
	if port <= 0 {
		port = defaultSMTPPort
	}
	return &SendgridSender{
		from:     cfg.DefaultFrom,
		fromName: cfg.FromName,
		dialer:   gomail.NewDialer(host, port, sendgridSMTPUser, cfg.APIKey),
	}
}

func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.from, s.fromName))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("sendgrid smtp: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used in dev.
type LogSender struct {
	logg *logger.Logger
}

func (l *LogSender) Send(ctx context.Context, msg Message) error {
	if l.logg != nil {
		ctx = l.logg.WithFields(ctx, map[string]any{"to": msg.To, "subject": msg.Subject})
		l.logg.Info(ctx, "mailer.log_only")
	}
	return nil
}
