package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	"github.com/noah-isme/civic-tracker-api/pkg/config"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
	"github.com/noah-isme/civic-tracker-api/pkg/jobs"
	"github.com/noah-isme/civic-tracker-api/pkg/notify"
)

// OTPDeliveryJobType is the queue job type that carries a notify.Message.
const OTPDeliveryJobType = "otp.deliver"

const defaultOTPTTL = 10 * time.Minute

// OTPService issues, verifies and consumes one-time codes.
type OTPService struct {
	uow     UnitOfWork
	sender  notify.Sender
	queue   repository.Enqueuer
	metrics *MetricsService
	logger  *zap.Logger
	now     Clock

	ttl    time.Duration
	expose bool
}

// NewOTPService constructs the service. Without a queue codes are delivered inline.
func NewOTPService(uow UnitOfWork, sender notify.Sender, cfg config.OTPConfig, metrics *MetricsService, logger *zap.Logger, clock Clock) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	return &OTPService{
		uow:     uow,
		sender:  sender,
		metrics: metrics,
		logger:  logger,
		now:     orClock(clock),
		ttl:     ttl,
		expose:  cfg.ExposeInResponse,
	}
}

// AttachQueue routes deliveries through q, which retries failed sends.
func (s *OTPService) AttachQueue(q *jobs.Queue) {
	q.Handle(OTPDeliveryJobType, func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(notify.Message)
		if !ok {
			return fmt.Errorf("unexpected otp payload %T", job.Payload)
		}
		return s.deliver(ctx, msg)
	})
	s.queue = q
}

// Issue creates a code for identifier and dispatches it. Delivery problems are
// logged, never returned.
func (s *OTPService) Issue(ctx context.Context, identifier string, channel models.OTPChannel, purpose models.OTPPurpose) (*models.OTPChallenge, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Phone or email is required")
	}
	if !purpose.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid OTP purpose")
	}
	code, err := generateOTPCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate OTP")
	}

	now := s.now()
	err = s.uow.WithinTx(ctx, func(r repository.Repos) error {
		return r.OTPs.Create(ctx, &models.OTPRecord{
			Identifier: identifier,
			Channel:    channel,
			Code:       code,
			Purpose:    purpose,
			ExpiresAt:  now.Add(s.ttl),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, mapError(err, "OTP not found", "failed to store OTP")
	}
	s.metrics.RecordOTPIssued(string(channel), string(purpose))
	s.dispatch(ctx, notify.Message{
		Channel: string(channel),
		To:      identifier,
		Subject: "Your OTP Code",
		Body:    fmt.Sprintf("Your OTP for %s is %s. It expires in %d minutes.", purpose, code, int(s.ttl.Minutes())),
	})

	challenge := &models.OTPChallenge{
		RequiresOTP: true,
		Identifier:  identifier,
		Channel:     channel,
		Purpose:     purpose,
		Message:     fmt.Sprintf("OTP sent to %s", channel),
	}
	if s.expose {
		challenge.Code = code
	}
	return challenge, nil
}

// Verify checks code against the latest record for (identifier, purpose) and
// marks it verified.
func (s *OTPService) Verify(ctx context.Context, identifier string, purpose models.OTPPurpose, code string) error {
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		record, err := r.OTPs.Latest(ctx, identifier, purpose)
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrValidation, "No OTP found")
		}
		if err != nil {
			return err
		}
		if record.Expired(s.now()) {
			return appErrors.Clone(appErrors.ErrValidation, "OTP expired")
		}
		if record.Code != strings.TrimSpace(code) {
			return appErrors.Clone(appErrors.ErrValidation, "Invalid OTP")
		}
		if record.Verified {
			return nil
		}
		record.Verified = true
		return r.OTPs.Update(ctx, record)
	})
	return mapError(err, "No OTP found", "failed to verify OTP")
}

// consume spends the latest verified record inside the caller's unit of work.
// A record can be spent once.
func (s *OTPService) consume(ctx context.Context, r repository.Repos, identifier string, purpose models.OTPPurpose, failure string) error {
	record, err := r.OTPs.Latest(ctx, identifier, purpose)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if record == nil || !record.Verified || record.Consumed {
		return appErrors.Clone(appErrors.ErrUnauthorized, failure)
	}
	record.Consumed = true
	return r.OTPs.Update(ctx, record)
}

func (s *OTPService) dispatch(ctx context.Context, msg notify.Message) {
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{Type: OTPDeliveryJobType, Payload: msg})
		if err == nil {
			return
		}
		s.logger.Warn("otp delivery not queued, sending inline", zap.Error(err))
	}
	if err := s.deliver(ctx, msg); err != nil {
		s.logger.Error("otp delivery failed", zap.String("channel", msg.Channel), zap.Error(err))
	}
}

func (s *OTPService) deliver(ctx context.Context, msg notify.Message) error {
	if s.sender == nil {
		s.metrics.RecordOTPDelivery(msg.Channel, "skipped")
		return nil
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.RecordOTPDelivery(msg.Channel, "failed")
		return err
	}
	s.metrics.RecordOTPDelivery(msg.Channel, "sent")
	return nil
}

// generateOTPCode returns a uniformly random six digit code without a leading zero.
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
