package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/noah-isme/civic-tracker-api/pkg/config"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers email through an authenticated SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	user     string
	pass     string
	from     string
	sendMail sendMailFunc
}

// NewSMTPSender builds a sender from notify configuration.
func NewSMTPSender(cfg config.NotifyConfig) *SMTPSender {
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	from := cfg.FromEmail
	if from == "" {
		from = "no-reply@example.com"
	}
	return &SMTPSender{
		host:     cfg.SMTPHost,
		port:     port,
		user:     cfg.SMTPUser,
		pass:     cfg.SMTPPass,
		from:     from,
		sendMail: smtp.SendMail,
	}
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}
	body := "From: " + s.from + "\r\n" +
		"To: " + msg.To + "\r\n" +
		"Subject: " + msg.Subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		msg.Body

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	if err := s.sendMail(addr, auth, s.from, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To, err)
	}
	return nil
}
