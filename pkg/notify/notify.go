package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/pkg/config"
)

// Delivery channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "phone"
)

// Message is a single outbound text.
type Message struct {
	Channel string
	To      string
	Subject string
	Body    string
}

// Sender delivers a message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Router picks a sender per channel. Channels without a configured provider
// are written to the log instead.
type Router struct {
	email    Sender
	sms      Sender
	fallback Sender
}

// NewRouter wires providers from configuration.
func NewRouter(cfg config.NotifyConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := NewLogSender(logger)
	r := &Router{email: fallback, sms: fallback, fallback: fallback}
	if cfg.SMTPHost != "" && cfg.SMTPUser != "" && cfg.SMTPPass != "" {
		r.email = NewSMTPSender(cfg)
	}
	if cfg.SMSAccountID != "" && cfg.SMSAuthToken != "" && cfg.SMSFrom != "" {
		r.sms = NewSMSSender(cfg, nil)
	}
	return r
}

// NewRouterWith builds a router from explicit senders; nil entries use fallback.
func NewRouterWith(email, sms, fallback Sender) *Router {
	if email == nil {
		email = fallback
	}
	if sms == nil {
		sms = fallback
	}
	return &Router{email: email, sms: sms, fallback: fallback}
}

// Send dispatches msg to the sender owning its channel.
func (r *Router) Send(ctx context.Context, msg Message) error {
	switch msg.Channel {
	case ChannelEmail:
		return r.email.Send(ctx, msg)
	case ChannelSMS:
		return r.sms.Send(ctx, msg)
	default:
		if r.fallback == nil {
			return fmt.Errorf("unsupported channel %q", msg.Channel)
		}
		return r.fallback.Send(ctx, msg)
	}
}

// LogSender writes messages to the structured log. Used in development.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a log-backed sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("outbound message",
		zap.String("channel", msg.Channel),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
