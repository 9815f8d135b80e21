package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

// Assignment triggers, used as metric labels.
const (
	TriggerSubmit     = "submit"
	TriggerEscalation = "escalation"
	TriggerAccept     = "accept"
	TriggerForce      = "force"
)

const departmentSeparator = "–"

// RatingTier is the inclusive rating band preferred at an escalation level.
type RatingTier struct {
	Min float64
	Max float64
}

// Contains reports whether rating falls inside the band.
func (t RatingTier) Contains(rating float64) bool {
	return rating >= t.Min && rating <= t.Max
}

// TierFor maps an escalation level to its rating band. Bands overlap at the edges.
func TierFor(level int) RatingTier {
	switch {
	case level <= 0:
		return RatingTier{Min: 0, Max: 2.9}
	case level == 1:
		return RatingTier{Min: 2.0, Max: 3.9}
	default:
		return RatingTier{Min: 3.0, Max: 5.0}
	}
}

// NormalizeDepartment keeps the text before the first en dash, trimmed.
// "Health – Ministry of Health" becomes "Health".
func NormalizeDepartment(name string) string {
	if idx := strings.Index(name, departmentSeparator); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}

// SelectOfficial picks the least loaded official of department for level.
// Officials outside the tier are used only when the tier is empty. Ties on
// assignedCount go to the earliest account, then the lowest id.
func SelectOfficial(users []models.User, department string, level int) *models.User {
	target := NormalizeDepartment(department)
	if target == "" {
		return nil
	}
	pool := make([]models.User, 0)
	for _, u := range users {
		if u.Role != models.RoleOfficial || u.Department == nil {
			continue
		}
		if NormalizeDepartment(*u.Department) == target {
			pool = append(pool, u)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	tier := TierFor(level)
	eligible := make([]models.User, 0, len(pool))
	for _, u := range pool {
		if tier.Contains(u.Rating) {
			eligible = append(eligible, u)
		}
	}
	if len(eligible) == 0 {
		eligible = pool
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.AssignedCount != b.AssignedCount {
			return a.AssignedCount < b.AssignedCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	chosen := eligible[0]
	return &chosen
}

// EscalationResult describes the outcome of a rejected resolution.
type EscalationResult struct {
	Application *models.Application
	Level       int
	Official    *models.User
}

// AssignmentService routes applications to officials.
type AssignmentService struct {
	uow     UnitOfWork
	metrics *MetricsService
	logger  *zap.Logger
	now     Clock
}

// NewAssignmentService constructs the assignment engine.
func NewAssignmentService(uow UnitOfWork, metrics *MetricsService, logger *zap.Logger, clock Clock) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{uow: uow, metrics: metrics, logger: logger, now: orClock(clock)}
}

// AutoAssign assigns the application to the best official of department at
// escalationLevel. It returns nil without touching the application when the
// department has no officials.
func (s *AssignmentService) AutoAssign(ctx context.Context, applicationID, department string, escalationLevel int) (*models.User, error) {
	var chosen *models.User
	err := s.uow.WithinApplicationTx(ctx, applicationID, func(r repository.Repos, app *models.Application) error {
		if app.Status == models.StatusAutoApproved {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "auto-approved applications cannot be reassigned")
		}
		var err error
		chosen, err = s.assignBest(ctx, r, app, department, escalationLevel, "Application assigned to official")
		return err
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to assign application")
	}
	s.recordAssignment(TriggerSubmit, applicationID, escalationLevel, chosen)
	return chosen, nil
}

// Escalate handles a citizen rejecting the resolution: the escalation level is
// raised and the application is reassigned within the stricter tier. The new
// level is kept even when no official is available.
func (s *AssignmentService) Escalate(ctx context.Context, applicationID string) (*EscalationResult, error) {
	result := &EscalationResult{}
	err := s.uow.WithinApplicationTx(ctx, applicationID, func(r repository.Repos, app *models.Application) error {
		if app.Status == models.StatusAutoApproved {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "auto-approved applications cannot be escalated")
		}
		if app.Department == "" {
			return appErrors.Clone(appErrors.ErrValidation, "Application has no department")
		}

		app.EscalationLevel++
		app.IsSolved = false
		result.Level = app.EscalationLevel

		chosen, err := s.assignBest(ctx, r, app, app.Department, app.EscalationLevel,
			fmt.Sprintf("Escalated to level %d and reassigned", app.EscalationLevel))
		if err != nil {
			return err
		}
		if chosen == nil {
			if err := r.Applications.Update(ctx, app); err != nil {
				return err
			}
		}
		result.Official = chosen
		result.Application = app
		return nil
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to escalate application")
	}
	s.metrics.RecordEscalation()
	s.recordAssignment(TriggerEscalation, applicationID, result.Level, result.Official)
	return result, nil
}

// Accept lets an official take ownership of an application.
func (s *AssignmentService) Accept(ctx context.Context, applicationID, officialID string) (*models.Application, error) {
	var updated *models.Application
	err := s.uow.WithinApplicationTx(ctx, applicationID, func(r repository.Repos, app *models.Application) error {
		official, err := r.Users.Get(ctx, officialID)
		if err != nil {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		now := s.now()
		if err := assignTo(ctx, r, app, official, app.EscalationLevel, officialID, "Application accepted by official", false, now); err != nil {
			return err
		}
		if _, err := pushNotification(ctx, r, now, app.CitizenID, models.NotificationAssignment,
			"Application Assigned",
			fmt.Sprintf("Your application %s has been assigned to an official and is now being processed.", app.TrackingID),
			&app.ID); err != nil {
			return err
		}
		updated = app
		return nil
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to accept application")
	}
	s.recordAssignment(TriggerAccept, applicationID, updated.EscalationLevel, &models.User{ID: officialID})
	return updated, nil
}

// ForceAssign assigns the application to a specific official regardless of tier.
func (s *AssignmentService) ForceAssign(ctx context.Context, applicationID, officialID, adminID string) (*models.Application, error) {
	var updated *models.Application
	err := s.uow.WithinApplicationTx(ctx, applicationID, func(r repository.Repos, app *models.Application) error {
		official, err := r.Users.Get(ctx, officialID)
		if err != nil {
			return appErrors.Clone(appErrors.ErrNotFound, "official not found")
		}
		if official.Role != models.RoleOfficial {
			return appErrors.Clone(appErrors.ErrValidation, "user is not an official")
		}
		now := s.now()
		if err := assignTo(ctx, r, app, official, app.EscalationLevel, adminID, "Application assigned by admin", false, now); err != nil {
			return err
		}
		if err := notifyAssignedOfficial(ctx, r, app, official.ID, now); err != nil {
			return err
		}
		updated = app
		return nil
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to assign application")
	}
	s.recordAssignment(TriggerForce, applicationID, updated.EscalationLevel, &models.User{ID: officialID})
	return updated, nil
}

// assignBest runs selection and applies the assignment inside the caller's unit of work.
func (s *AssignmentService) assignBest(ctx context.Context, r repository.Repos, app *models.Application, department string, level int, comment string) (*models.User, error) {
	officials, err := r.Users.List(ctx, repository.UserFilter{Role: models.RoleOfficial})
	if err != nil {
		return nil, err
	}
	chosen := SelectOfficial(officials, department, level)
	if chosen == nil {
		return nil, nil
	}
	now := s.now()
	if err := assignTo(ctx, r, app, chosen, level, chosen.ID, comment, true, now); err != nil {
		return nil, err
	}
	if err := notifyAssignedOfficial(ctx, r, app, chosen.ID, now); err != nil {
		return nil, err
	}
	return chosen, nil
}

// assignTo records official as the owner of app. Engine selections may reopen
// an Approved or Rejected application (escalation) and are the only path that
// counts toward the official's assignedCount; accept and forced assignment
// leave the counter alone.
func assignTo(ctx context.Context, r repository.Repos, app *models.Application, official *models.User, level int, actorID, comment string, engine bool, now time.Time) error {
	reopening := engine && (app.Status == models.StatusApproved || app.Status == models.StatusRejected)
	if !reopening && !app.Status.CanTransition(models.StatusAssigned) {
		return appErrors.Clonef(appErrors.ErrInvalidTransition, "cannot assign an application in status %s", app.Status).
			With("from", string(app.Status)).
			With("to", string(models.StatusAssigned))
	}

	app.OfficialID = &official.ID
	app.Status = models.StatusAssigned
	app.AssignedAt = ptrTime(now)
	app.LastUpdatedAt = now
	app.EscalationLevel = level
	if reopening {
		app.ApprovedAt = nil
	}
	if err := r.Applications.Update(ctx, app); err != nil {
		return err
	}

	if engine {
		official.AssignedCount++
		if err := r.Users.Update(ctx, official); err != nil {
			return err
		}
	}

	c := comment
	return r.History.Append(ctx, &models.ApplicationHistory{
		ApplicationID: app.ID,
		Status:        models.StatusAssigned,
		UpdatedBy:     actorID,
		Comment:       &c,
		UpdatedAt:     now,
	})
}

func notifyAssignedOfficial(ctx context.Context, r repository.Repos, app *models.Application, officialID string, now time.Time) error {
	_, err := pushNotification(ctx, r, now, officialID, models.NotificationAssignment,
		"New Application Assigned",
		fmt.Sprintf("Application %s (%s) has been assigned to you.", app.TrackingID, app.ApplicationType),
		&app.ID)
	return err
}

func (s *AssignmentService) recordAssignment(trigger, applicationID string, level int, official *models.User) {
	if official == nil {
		s.metrics.RecordAssignment(trigger, "no_candidate")
		s.logger.Info("no official available for application",
			zap.String("application_id", applicationID),
			zap.Int("escalation_level", level),
			zap.String("trigger", trigger),
		)
		return
	}
	s.metrics.RecordAssignment(trigger, "assigned")
	s.logger.Info("application assigned",
		zap.String("application_id", applicationID),
		zap.String("official_id", official.ID),
		zap.Int("escalation_level", level),
		zap.String("trigger", trigger),
	)
}
