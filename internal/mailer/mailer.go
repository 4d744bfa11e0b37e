package mailer

import (
	"context"
	"fmt"
	"time"

	"medstore/internal/util"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a whole SMTP exchange when Config.Timeout is unset
const DefaultTimeout = 10 * time.Second

// Config holds SMTP settings. An empty Host selects the log-only mailer.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Sender delivers a single message
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// New returns an SMTP mailer, or a log-only one when no host is set
func New(cfg Config) Sender {
	if cfg.Host == "" {
		util.GetLogger().Warn("SMTP host not configured, emails will only be logged")
		return NewLogMailer()
	}
	return NewSMTPMailer(cfg)
}

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPMailer sends plain text mail through an SMTP relay
type SMTPMailer struct {
	cfg    Config
	send   sendFunc
	logger *zap.Logger
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	m := &SMTPMailer{cfg: cfg, logger: util.GetLogger()}
	m.send = m.dialAndSend
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	ctx, span := util.StartSpan(ctx, "Mailer.Send")
	defer span.End()

	msg, err := m.message(to, subject, body)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to build email: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := m.send(ctx, msg); err != nil {
		util.RecordError(span, err)
		m.logger.Error("Failed to send email", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// message builds a UTF-8 plain text message. Addresses are parsed, so a
// value carrying extra header lines is rejected.
func (m *SMTPMailer) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// dialAndSend opens a fresh connection per message; go-mail clients are not
// safe for concurrent use.
func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{logger: util.GetLogger()}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Info("Email (not sent)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
