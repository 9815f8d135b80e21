package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

// StatusService applies lifecycle transitions.
type StatusService struct {
	uow     UnitOfWork
	metrics *MetricsService
	logger  *zap.Logger
	now     Clock
}

// NewStatusService constructs the state machine service.
func NewStatusService(uow UnitOfWork, metrics *MetricsService, logger *zap.Logger, clock Clock) *StatusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusService{uow: uow, metrics: metrics, logger: logger, now: orClock(clock)}
}

// Transition moves the application to rawStatus on behalf of actorID. An
// official driven approval notifies the citizen after commit.
func (s *StatusService) Transition(ctx context.Context, applicationID, rawStatus, actorID string, comment *string) (*models.Application, error) {
	to, err := models.ParseStatus(rawStatus)
	if err != nil {
		return nil, appErrors.Validation(err)
	}

	var updated *models.Application
	err = s.uow.WithinApplicationTx(ctx, applicationID, func(r repository.Repos, app *models.Application) error {
		if err := applyTransition(ctx, r, app, to, actorID, comment, s.now()); err != nil {
			return err
		}
		if to == models.StatusApproved && actorID != models.SystemActor {
			if _, err := pushNotification(ctx, r, s.now(), app.CitizenID, models.NotificationApproval,
				"Application Approved",
				fmt.Sprintf("Your application %s has been approved.", app.TrackingID),
				&app.ID); err != nil {
				return err
			}
		}
		updated = app
		return nil
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to update application status")
	}

	s.metrics.RecordTransition(string(to))
	s.logger.Info("application status changed",
		zap.String("application_id", applicationID),
		zap.String("status", string(to)),
		zap.String("actor", actorID),
	)
	return updated, nil
}

// applyTransition validates and applies one edge inside the caller's unit of work.
func applyTransition(ctx context.Context, r repository.Repos, app *models.Application, to models.ApplicationStatus, actorID string, comment *string, now time.Time) error {
	if !app.Status.CanTransition(to) {
		return appErrors.Transition(string(app.Status), string(to))
	}

	app.Status = to
	app.LastUpdatedAt = now
	if to.IsDecision() {
		app.ApprovedAt = ptrTime(now)
	}
	if err := r.Applications.Update(ctx, app); err != nil {
		return err
	}
	if err := r.History.Append(ctx, &models.ApplicationHistory{
		ApplicationID: app.ID,
		Status:        to,
		UpdatedBy:     actorID,
		Comment:       comment,
		UpdatedAt:     now,
	}); err != nil {
		return err
	}
	if to.Approves() {
		return recordHash(ctx, r, app.ID, now)
	}
	return nil
}

// recordHash stores the approval digest. An application keeps its first hash.
func recordHash(ctx context.Context, r repository.Repos, applicationID string, now time.Time) error {
	if _, err := r.Hashes.FindByApplication(ctx, applicationID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	count, err := r.Hashes.Count(ctx)
	if err != nil {
		return err
	}
	return r.Hashes.Create(ctx, &models.BlockchainHash{
		ApplicationID: applicationID,
		DocumentHash:  documentHash(applicationID, now),
		BlockNumber:   count + 1,
		Timestamp:     now,
	})
}

// documentHash is the hex SHA-256 of the application id followed by unix millis.
func documentHash(applicationID string, at time.Time) string {
	sum := sha256.Sum256([]byte(applicationID + strconv.FormatInt(at.UnixMilli(), 10)))
	return hex.EncodeToString(sum[:])
}
