package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/civic-tracker-api/pkg/config"
)

const defaultSMSEndpoint = "https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json"

// SMSSender posts messages to a Twilio-compatible REST endpoint.
type SMSSender struct {
	endpoint  string
	accountID string
	token     string
	from      string
	client    *http.Client
}

// NewSMSSender builds a sender. A nil client gets one with the configured timeout.
func NewSMSSender(cfg config.NotifyConfig, client *http.Client) *SMSSender {
	endpoint := cfg.SMSEndpoint
	if endpoint == "" {
		endpoint = defaultSMSEndpoint
	}
	if strings.Contains(endpoint, "%s") {
		endpoint = fmt.Sprintf(endpoint, cfg.SMSAccountID)
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &SMSSender{
		endpoint:  endpoint,
		accountID: cfg.SMSAccountID,
		token:     cfg.SMSAuthToken,
		from:      cfg.SMSFrom,
		client:    client,
	}
}

// Send implements Sender.
func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("From", s.from)
	form.Set("To", msg.To)
	form.Set("Body", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountID, s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sms provider error: status %d", resp.StatusCode)
	}
	return nil
}
