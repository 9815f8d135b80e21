package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

const autoApprovalWindowDays = 30

type autoAssigner interface {
	AutoAssign(ctx context.Context, applicationID, department string, escalationLevel int) (*models.User, error)
}

type statusTransitioner interface {
	Transition(ctx context.Context, applicationID, rawStatus, actorID string, comment *string) (*models.Application, error)
}

// ApplicationService covers submission, lookups and bookkeeping edits.
type ApplicationService struct {
	uow       UnitOfWork
	assigner  autoAssigner
	status    statusTransitioner
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       Clock
}

// NewApplicationService constructs the service.
func NewApplicationService(uow UnitOfWork, assigner autoAssigner, status statusTransitioner, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, clock Clock) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApplicationService{
		uow:       uow,
		assigner:  assigner,
		status:    status,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       orClock(clock),
	}
}

// Submit creates an application for citizenID and routes it to an official.
// A failed routing attempt leaves the application Submitted.
func (s *ApplicationService) Submit(ctx context.Context, citizenID string, req dto.CreateApplicationRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	now := s.now()
	app := &models.Application{
		ApplicationType:  req.ApplicationType,
		Department:       NormalizeDepartment(req.ApplicationType),
		Status:           models.StatusSubmitted,
		CitizenID:        citizenID,
		SubmittedAt:      now,
		LastUpdatedAt:    now,
		AutoApprovalDate: now.AddDate(0, 0, autoApprovalWindowDays),
		Priority:         priority,
		Remarks:          models.StringPtr(req.Remarks),
		Data:             req.Data,
		Image:            models.StringPtr(req.Image),
	}

	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		seq, err := r.Applications.NextTrackingSequence(ctx, now.Year())
		if err != nil {
			return err
		}
		app.TrackingID = trackingIDFor(now.Year(), seq)
		if err := r.Applications.Create(ctx, app); err != nil {
			return err
		}
		comment := "Application submitted"
		return r.History.Append(ctx, &models.ApplicationHistory{
			ApplicationID: app.ID,
			Status:        models.StatusSubmitted,
			UpdatedBy:     citizenID,
			Comment:       &comment,
			UpdatedAt:     now,
		})
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to create application")
	}
	s.metrics.RecordSubmission()

	if app.Department != "" {
		if _, err := s.assigner.AutoAssign(ctx, app.ID, app.Department, 0); err != nil {
			s.logger.Warn("auto-assignment failed", zap.String("application_id", app.ID), zap.Error(err))
		}
	}
	return s.load(ctx, app.ID)
}

// Get returns an application visible to the caller.
func (s *ApplicationService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(claims, app); err != nil {
		return nil, err
	}
	return app, nil
}

// Track looks up an application by its public tracking id.
func (s *ApplicationService) Track(ctx context.Context, trackingID string) (*models.Application, error) {
	var app *models.Application
	err := s.uow.View(ctx, func(r repository.Repos) error {
		var err error
		app, err = r.Applications.FindByTrackingID(ctx, trackingID)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Application not found", "failed to load application")
	}
	return app, nil
}

// ListMine returns the citizen's own applications.
func (s *ApplicationService) ListMine(ctx context.Context, citizenID string) ([]models.Application, error) {
	return s.list(ctx, models.ApplicationFilter{CitizenID: citizenID})
}

// List returns what the caller may work on: an official sees their own and the
// unassigned applications of their department, an admin sees everything.
func (s *ApplicationService) List(ctx context.Context, claims *models.JWTClaims, status string) ([]models.Application, error) {
	filter := models.ApplicationFilter{}
	if status != "" {
		parsed, err := models.ParseStatus(status)
		if err != nil {
			return nil, appErrors.Validation(err)
		}
		filter.Status = parsed
	}
	switch claims.Role {
	case models.RoleAdmin:
	case models.RoleOfficial:
		var official *models.User
		err := s.uow.View(ctx, func(r repository.Repos) error {
			var err error
			official, err = r.Users.Get(ctx, claims.UserID)
			return err
		})
		if err != nil {
			return nil, mapError(err, "user not found", "failed to load user")
		}
		filter.OfficialID = official.ID
		filter.Department = NormalizeDepartment(models.Deref(official.Department))
		filter.IncludeUnassigned = filter.Department != ""
	default:
		filter.CitizenID = claims.UserID
	}
	return s.list(ctx, filter)
}

// History returns the ordered audit trail of an application.
func (s *ApplicationService) History(ctx context.Context, claims *models.JWTClaims, id string) ([]models.ApplicationHistory, error) {
	if _, err := s.Get(ctx, claims, id); err != nil {
		return nil, err
	}
	var entries []models.ApplicationHistory
	err := s.uow.View(ctx, func(r repository.Repos) error {
		var err error
		entries, err = r.History.List(ctx, id)
		return err
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to load history")
	}
	return entries, nil
}

// UpdateStatus applies a transition requested by an official or admin.
// Officials may only move applications assigned to them.
func (s *ApplicationService) UpdateStatus(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateStatusRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if claims.Role == models.RoleOfficial && (app.OfficialID == nil || *app.OfficialID != claims.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application is not assigned to you")
	}
	return s.status.Transition(ctx, id, req.Status, claims.UserID, models.StringPtr(req.Comment))
}

// Update edits priority and remarks.
func (s *ApplicationService) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateApplicationRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	var updated *models.Application
	err := s.uow.WithinApplicationTx(ctx, id, func(r repository.Repos, app *models.Application) error {
		if claims.Role == models.RoleOfficial && app.HasOfficial() && *app.OfficialID != claims.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "application is not assigned to you")
		}
		if req.Priority != nil {
			app.Priority = *req.Priority
		}
		if req.Remarks != nil {
			app.Remarks = models.StringPtr(*req.Remarks)
		}
		updated = app
		return r.Applications.Update(ctx, app)
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to update application")
	}
	return updated, nil
}

// BlockchainHash returns the approval audit record of an application, or nil
// while the application has not been approved yet.
func (s *ApplicationService) BlockchainHash(ctx context.Context, id string) (*models.BlockchainHash, error) {
	var hash *models.BlockchainHash
	err := s.uow.View(ctx, func(r repository.Repos) error {
		if _, err := r.Applications.Get(ctx, id); err != nil {
			return err
		}
		found, err := r.Hashes.FindByApplication(ctx, id)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		hash = found
		return nil
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to load blockchain hash")
	}
	return hash, nil
}

func (s *ApplicationService) load(ctx context.Context, id string) (*models.Application, error) {
	var app *models.Application
	err := s.uow.View(ctx, func(r repository.Repos) error {
		var err error
		app, err = r.Applications.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Application not found", "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) list(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	var apps []models.Application
	err := s.uow.View(ctx, func(r repository.Repos) error {
		var err error
		apps, err = r.Applications.List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to list applications")
	}
	return apps, nil
}

// trackingIDFor formats the public identifier APP-<year>-<6 digit sequence>.
func trackingIDFor(year, seq int) string {
	return fmt.Sprintf("APP-%d-%06d", year, seq)
}

func canView(claims *models.JWTClaims, app *models.Application) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	switch claims.Role {
	case models.RoleAdmin, models.RoleOfficial:
		return nil
	}
	if app.CitizenID != claims.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "Unauthorized")
	}
	return nil
}
