package service

import (
	"context"
	"errors"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

type escalator interface {
	Escalate(ctx context.Context, applicationID string) (*EscalationResult, error)
}

// ResolutionService handles citizen confirmation, rejection and rating of a resolution.
type ResolutionService struct {
	uow       UnitOfWork
	escalator escalator
	validator *validator.Validate
	logger    *zap.Logger
	now       Clock
}

// NewResolutionService constructs the service.
func NewResolutionService(uow UnitOfWork, escalator escalator, validate *validator.Validate, logger *zap.Logger, clock Clock) *ResolutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ResolutionService{uow: uow, escalator: escalator, validator: validate, logger: logger, now: orClock(clock)}
}

// Solve records the citizen's verdict. A confirmed resolution may carry the
// first rating of the application; a rejected one escalates it.
func (s *ResolutionService) Solve(ctx context.Context, citizenID, applicationID string, req dto.SolveRequest) (*dto.SolveResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	if *req.IsSolved {
		return s.confirm(ctx, citizenID, applicationID, req)
	}

	if err := s.uow.View(ctx, func(r repository.Repos) error {
		app, err := r.Applications.Get(ctx, applicationID)
		if err != nil {
			return err
		}
		return requireOwner(app, citizenID)
	}); err != nil {
		return nil, mapError(err, "Application not found", "failed to load application")
	}

	res, err := s.escalator.Escalate(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	out := &dto.SolveResult{
		Escalated:       true,
		EscalationLevel: res.Level,
		Application:     res.Application,
	}
	if res.Official != nil {
		public := res.Official.Public()
		out.Official = &public
		out.Message = "Application escalated and reassigned"
	} else {
		out.Message = "Application escalated but no new official found. Pending assignment."
	}
	return out, nil
}

func (s *ResolutionService) confirm(ctx context.Context, citizenID, applicationID string, req dto.SolveRequest) (*dto.SolveResult, error) {
	out := &dto.SolveResult{Message: "Application marked as solved"}
	err := s.uow.WithinApplicationTx(ctx, applicationID, func(r repository.Repos, app *models.Application) error {
		if err := requireOwner(app, citizenID); err != nil {
			return err
		}
		app.IsSolved = true
		if err := r.Applications.Update(ctx, app); err != nil {
			return err
		}
		out.Application = app
		out.EscalationLevel = app.EscalationLevel

		if req.Rating == nil || !app.HasOfficial() {
			return nil
		}
		if _, err := r.Feedback.FindByApplication(ctx, app.ID); err == nil {
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		fb, err := s.createFeedback(ctx, r, app, citizenID, *req.Rating, req.Comment)
		if err != nil {
			return err
		}
		out.Feedback = fb
		return s.rateOfficial(ctx, r, *app.OfficialID, true)
	})
	if err != nil {
		return nil, mapError(err, "Application not found", "failed to resolve application")
	}
	return out, nil
}

// SubmitFeedback stores the single rating of an application. It does not count
// as a solved case for the official.
func (s *ResolutionService) SubmitFeedback(ctx context.Context, citizenID, applicationID string, req dto.FeedbackRequest) (*models.Feedback, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	var created *models.Feedback
	err := s.uow.WithinApplicationTx(ctx, applicationID, func(r repository.Repos, app *models.Application) error {
		if err := requireOwner(app, citizenID); err != nil {
			return err
		}
		if _, err := r.Feedback.FindByApplication(ctx, app.ID); err == nil {
			return appErrors.Clone(appErrors.ErrConflict, "Feedback already submitted for this application")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		fb, err := s.createFeedback(ctx, r, app, citizenID, req.Rating, req.Comment)
		if err != nil {
			return err
		}
		created = fb
		if !app.HasOfficial() {
			return nil
		}
		return s.rateOfficial(ctx, r, *app.OfficialID, false)
	})
	if err != nil {
		return nil, mapError(err, "Application not found", "failed to submit feedback")
	}
	return created, nil
}

// Feedback returns the feedback of an application.
func (s *ResolutionService) Feedback(ctx context.Context, claims *models.JWTClaims, applicationID string) (*models.Feedback, error) {
	var fb *models.Feedback
	err := s.uow.View(ctx, func(r repository.Repos) error {
		app, err := r.Applications.Get(ctx, applicationID)
		if err != nil {
			return err
		}
		if err := canView(claims, app); err != nil {
			return err
		}
		fb, err = r.Feedback.FindByApplication(ctx, applicationID)
		if err != nil {
			return appErrors.Clone(appErrors.ErrNotFound, "Feedback not found")
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, "Application not found", "failed to load feedback")
	}
	return fb, nil
}

// OfficialRating summarises the feedback of an official, rounded to one decimal.
func (s *ResolutionService) OfficialRating(ctx context.Context, officialID string) (*models.OfficialRating, error) {
	out := &models.OfficialRating{OfficialID: officialID}
	err := s.uow.View(ctx, func(r repository.Repos) error {
		official, err := r.Users.Get(ctx, officialID)
		if err != nil {
			return err
		}
		if official.Role != models.RoleOfficial {
			return appErrors.Clone(appErrors.ErrNotFound, "Official not found")
		}
		all, err := r.Feedback.ListByOfficial(ctx, officialID)
		if err != nil {
			return err
		}
		out.TotalRatings = len(all)
		out.AverageRating = math.Round(meanRating(all)*10) / 10
		return nil
	})
	if err != nil {
		return nil, mapError(err, "Official not found", "failed to load rating")
	}
	return out, nil
}

func (s *ResolutionService) createFeedback(ctx context.Context, r repository.Repos, app *models.Application, citizenID string, rating int, comment string) (*models.Feedback, error) {
	fb := &models.Feedback{
		ApplicationID: app.ID,
		CitizenID:     citizenID,
		OfficialID:    app.OfficialID,
		Rating:        rating,
		Comment:       models.StringPtr(comment),
		CreatedAt:     s.now(),
	}
	if err := r.Feedback.Create(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

// rateOfficial recomputes the official's rating as the mean of all their feedback.
func (s *ResolutionService) rateOfficial(ctx context.Context, r repository.Repos, officialID string, solved bool) error {
	official, err := r.Users.Get(ctx, officialID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("rated official no longer exists", zap.String("official_id", officialID))
		return nil
	}
	if err != nil {
		return err
	}
	all, err := r.Feedback.ListByOfficial(ctx, officialID)
	if err != nil {
		return err
	}
	official.Rating = meanRating(all)
	if solved {
		official.SolvedCount++
	}
	return r.Users.Update(ctx, official)
}

func meanRating(all []models.Feedback) float64 {
	if len(all) == 0 {
		return 0
	}
	total := 0
	for _, fb := range all {
		total += fb.Rating
	}
	return float64(total) / float64(len(all))
}

func requireOwner(app *models.Application, citizenID string) error {
	if app.CitizenID != citizenID {
		return appErrors.Clone(appErrors.ErrForbidden, "Unauthorized")
	}
	return nil
}
