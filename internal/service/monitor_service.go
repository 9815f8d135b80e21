package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	"github.com/noah-isme/civic-tracker-api/pkg/config"
)

// MonitorService sweeps open applications for delays and auto-approval.
type MonitorService struct {
	uow      UnitOfWork
	cooldown repository.AlertCooldown
	metrics  *MetricsService
	logger   *zap.Logger
	now      Clock

	schedule        string
	delayDays       int
	autoApproveDays int

	mu   sync.Mutex
	cron *cron.Cron
}

// NewMonitorService constructs the monitor. A nil cooldown sends every alert.
func NewMonitorService(uow UnitOfWork, cooldown repository.AlertCooldown, cfg config.MonitorConfig, metrics *MetricsService, logger *zap.Logger, clock Clock) *MonitorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@every 1h"
	}
	delay := int(cfg.DelayThreshold / (24 * time.Hour))
	if delay <= 0 {
		delay = 7
	}
	autoApprove := int(cfg.AutoApproveAfter / (24 * time.Hour))
	if autoApprove <= 0 {
		autoApprove = autoApprovalWindowDays
	}
	return &MonitorService{
		uow:             uow,
		cooldown:        cooldown,
		metrics:         metrics,
		logger:          logger,
		now:             orClock(clock),
		schedule:        schedule,
		delayDays:       delay,
		autoApproveDays: autoApprove,
	}
}

// Start schedules the sweep. Overlapping runs are skipped.
func (s *MonitorService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("monitor sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule monitor %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("delay monitor started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *MonitorService) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("delay monitor stopped")
}

// RunOnce performs one sweep. Each application is handled in its own unit of
// work; a failure is counted and the sweep moves on.
func (s *MonitorService) RunOnce(ctx context.Context) (dto.MonitorReport, error) {
	report := dto.MonitorReport{StartedAt: s.now()}

	var apps []models.Application
	err := s.uow.View(ctx, func(r repository.Repos) error {
		var err error
		apps, err = r.Applications.List(ctx, models.ApplicationFilter{})
		return err
	})
	if err != nil {
		return report, mapError(err, "application not found", "failed to list applications")
	}

	for i := range apps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		app := &apps[i]
		if app.Status.IsTerminal() {
			continue
		}
		report.Scanned++
		if err := s.sweepApplication(ctx, app, &report); err != nil {
			report.Errors++
			s.logger.Error("monitor failed on application",
				zap.String("application_id", app.ID),
				zap.String("tracking_id", app.TrackingID),
				zap.Error(err),
			)
		}
	}

	report.Duration = s.now().Sub(report.StartedAt)
	s.metrics.ObserveSweep(report)
	s.logger.Info("monitor sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("delayed", report.Delayed),
		zap.Int("alerts_sent", report.AlertsSent),
		zap.Int("suppressed", report.Suppressed),
		zap.Int("auto_approved", report.AutoApproved),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

func (s *MonitorService) sweepApplication(ctx context.Context, app *models.Application, report *dto.MonitorReport) error {
	now := s.now()
	sinceUpdate := daysBetween(app.LastUpdatedAt, now)
	sinceSubmission := daysBetween(app.SubmittedAt, now)

	if sinceUpdate > s.delayDays && app.Status != models.StatusSubmitted {
		report.Delayed++
		if err := s.alert(ctx, app, models.AlertRecipientCitizen, app.CitizenID,
			"Application Delayed",
			fmt.Sprintf("Your application %s has been pending for %d days.", app.TrackingID, sinceUpdate),
			now, report); err != nil {
			return err
		}
		if app.HasOfficial() {
			if err := s.alert(ctx, app, models.AlertRecipientOfficial, *app.OfficialID,
				"Delayed Application Alert",
				fmt.Sprintf("Application %s requires attention. %d days since last update.", app.TrackingID, sinceUpdate),
				now, report); err != nil {
				return err
			}
		}
	}

	if sinceSubmission >= s.autoApproveDays {
		approved, err := s.autoApprove(ctx, app.ID, now)
		if err != nil {
			return err
		}
		if approved {
			report.AutoApproved++
		}
	}
	return nil
}

// alert sends one delay notification unless the cooldown suppresses it.
func (s *MonitorService) alert(ctx context.Context, app *models.Application, kind, userID, title, message string, now time.Time, report *dto.MonitorReport) error {
	if s.cooldown != nil {
		allowed, err := s.cooldown.Allow(ctx, app.ID, kind, now)
		if err != nil {
			return err
		}
		if !allowed {
			report.Suppressed++
			s.metrics.RecordDelayAlert(kind, "suppressed")
			return nil
		}
	}
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		if _, err := r.Users.Get(ctx, userID); err != nil {
			return err
		}
		_, err := pushNotification(ctx, r, now, userID, models.NotificationDelay, title, message, &app.ID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("delay alert recipient missing",
			zap.String("application_id", app.ID),
			zap.String("user_id", userID),
		)
		return nil
	}
	if err != nil {
		return err
	}
	report.AlertsSent++
	s.metrics.RecordDelayAlert(kind, "sent")
	return nil
}

func (s *MonitorService) autoApprove(ctx context.Context, applicationID string, now time.Time) (bool, error) {
	approved := false
	err := s.uow.WithinApplicationTx(ctx, applicationID, func(r repository.Repos, app *models.Application) error {
		if app.Status.IsTerminal() {
			return nil
		}
		comment := fmt.Sprintf("Auto-approved after %d days", s.autoApproveDays)
		if err := applyTransition(ctx, r, app, models.StatusAutoApproved, models.SystemActor, &comment, now); err != nil {
			return err
		}
		approved = true
		if _, err := r.Users.Get(ctx, app.CitizenID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		_, err := pushNotification(ctx, r, now, app.CitizenID, models.NotificationApproval,
			"Application Auto-Approved",
			fmt.Sprintf("Your application %s has been automatically approved after %d days.", app.TrackingID, s.autoApproveDays),
			&app.ID)
		return err
	})
	if err != nil {
		return false, err
	}
	if approved {
		s.metrics.RecordTransition(string(models.StatusAutoApproved))
		s.logger.Info("application auto-approved", zap.String("application_id", applicationID))
	}
	return approved, nil
}
