package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/textproto"
	"strings"
)

// ErrPermanent marks failures that will not succeed on retry.
var ErrPermanent = errors.New("mailer: permanent failure")

// Sender delivers messages and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTPConfig configures the SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender implements Sender using net/smtp.
type SMTPSender struct {
	cfg  SMTPConfig
	auth smtp.Auth
	addr string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSender returns an SMTP sender, or a logging sender when no host is configured.
func NewSender(cfg SMTPConfig, logger *slog.Logger) Sender {
	if cfg.Host == "" {
		if logger != nil {
			logger.Warn("smtp host not configured, using logging email sender")
		}
		return &LoggingSender{From: cfg.From, Logger: logger}
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		cfg:  cfg,
		auth: auth,
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		send: smtp.SendMail,
	}
}

// Send delivers msg through the configured relay.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if msg.From == "" {
		msg.From = s.cfg.From
	}
	raw, messageID, err := Build(msg, domainOf(msg.From))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if err := s.send(s.addr, s.auth, addressOf(msg.From), msg.To, raw); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return "", fmt.Errorf("%w: smtp %d %s", ErrPermanent, tpErr.Code, tpErr.Msg)
		}
		return "", fmt.Errorf("smtp error: %w", err)
	}
	return messageID, nil
}

// LoggingSender logs messages instead of sending them.
type LoggingSender struct {
	From   string
	Logger *slog.Logger
}

// Send logs the message envelope.
func (s *LoggingSender) Send(_ context.Context, msg Message) (string, error) {
	if msg.From == "" {
		msg.From = s.From
	}
	_, messageID, err := Build(msg, domainOf(msg.From))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if s.Logger != nil {
		s.Logger.Info("email logged",
			slog.String("message_id", messageID),
			slog.Any("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.Int("attachments", len(msg.Attachments)),
		)
	}
	return messageID, nil
}

func addressOf(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

func domainOf(from string) string {
	addr := addressOf(from)
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return ""
}
