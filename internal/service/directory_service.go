package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

// DirectoryService manages departments, official warnings and user lookups.
type DirectoryService struct {
	uow       UnitOfWork
	validator *validator.Validate
	logger    *zap.Logger
	now       Clock
}

// NewDirectoryService constructs the service.
func NewDirectoryService(uow UnitOfWork, validate *validator.Validate, logger *zap.Logger, clock Clock) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DirectoryService{uow: uow, validator: validate, logger: logger, now: orClock(clock)}
}

// Departments lists every department by name.
func (s *DirectoryService) Departments(ctx context.Context) ([]models.Department, error) {
	var out []models.Department
	err := s.uow.View(ctx, func(r repository.Repos) error {
		var err error
		out, err = r.Departments.List(ctx)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Department not found", "failed to list departments")
	}
	return out, nil
}

// CreateDepartment adds a department. Names are unique, ignoring case.
func (s *DirectoryService) CreateDepartment(ctx context.Context, req dto.DepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	dept := &models.Department{
		Name:        strings.TrimSpace(req.Name),
		Description: models.StringPtr(strings.TrimSpace(req.Description)),
		Image:       models.StringPtr(req.Image),
		CreatedAt:   s.now(),
	}
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		if _, err := r.Departments.FindByName(ctx, dept.Name); err == nil {
			return appErrors.Clone(appErrors.ErrConflict, "Department already exists")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return r.Departments.Create(ctx, dept)
	})
	if err != nil {
		return nil, mapError(err, "Department not found", "failed to create department")
	}
	return dept, nil
}

// DepartmentOfficials returns the officials whose normalized department matches.
func (s *DirectoryService) DepartmentOfficials(ctx context.Context, departmentID string) ([]models.PublicUser, error) {
	var out []models.PublicUser
	err := s.uow.View(ctx, func(r repository.Repos) error {
		dept, err := r.Departments.Get(ctx, departmentID)
		if err != nil {
			return err
		}
		officials, err := r.Users.List(ctx, repository.UserFilter{Role: models.RoleOfficial})
		if err != nil {
			return err
		}
		target := NormalizeDepartment(dept.Name)
		out = make([]models.PublicUser, 0)
		for _, u := range officials {
			if u.Department != nil && NormalizeDepartment(*u.Department) == target {
				out = append(out, u.Public())
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, "Department not found", "failed to list officials")
	}
	return out, nil
}

// SendWarning records a warning and mirrors it into the official's notifications.
func (s *DirectoryService) SendWarning(ctx context.Context, adminID string, req dto.WarningRequest) (*models.Warning, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	now := s.now()
	warning := &models.Warning{
		OfficialID: req.OfficialID,
		AdminID:    adminID,
		Message:    strings.TrimSpace(req.Message),
		SentAt:     now,
	}
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		official, err := r.Users.Get(ctx, req.OfficialID)
		if err != nil {
			return err
		}
		if official.Role != models.RoleOfficial {
			return appErrors.Clone(appErrors.ErrValidation, "user is not an official")
		}
		if err := r.Warnings.Create(ctx, warning); err != nil {
			return err
		}
		_, err = pushNotification(ctx, r, now, official.ID, models.NotificationWarning, "Performance Warning", warning.Message, nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Official not found", "failed to send warning")
	}
	s.logger.Info("warning sent", zap.String("official_id", req.OfficialID), zap.String("admin_id", adminID))
	return warning, nil
}

// Warnings lists the warnings addressed to an official, newest first.
func (s *DirectoryService) Warnings(ctx context.Context, officialID string) ([]models.Warning, error) {
	var out []models.Warning
	err := s.uow.View(ctx, func(r repository.Repos) error {
		var err error
		out, err = r.Warnings.ListByOfficial(ctx, officialID)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Official not found", "failed to list warnings")
	}
	return out, nil
}

// User returns a user without credentials.
func (s *DirectoryService) User(ctx context.Context, id string) (*models.PublicUser, error) {
	var out models.PublicUser
	err := s.uow.View(ctx, func(r repository.Repos) error {
		u, err := r.Users.Get(ctx, id)
		if err != nil {
			return err
		}
		out = u.Public()
		return nil
	})
	if err != nil {
		return nil, mapError(err, "User not found", "failed to load user")
	}
	return &out, nil
}

// Officials lists every official.
func (s *DirectoryService) Officials(ctx context.Context) ([]models.PublicUser, error) {
	var out []models.PublicUser
	err := s.uow.View(ctx, func(r repository.Repos) error {
		officials, err := r.Users.List(ctx, repository.UserFilter{Role: models.RoleOfficial})
		if err != nil {
			return err
		}
		out = make([]models.PublicUser, 0, len(officials))
		for _, u := range officials {
			out = append(out, u.Public())
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, "User not found", "failed to list officials")
	}
	return out, nil
}
