package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	"github.com/noah-isme/civic-tracker-api/pkg/config"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

const day = 24 * time.Hour

type flakyCooldown struct {
	failFor string
	inner   repository.AlertCooldown
}

func (f *flakyCooldown) Allow(ctx context.Context, applicationID, kind string, now time.Time) (bool, error) {
	if applicationID == f.failFor {
		return false, errors.New("ledger unavailable")
	}
	if f.inner == nil {
		return true, nil
	}
	return f.inner.Allow(ctx, applicationID, kind, now)
}

func defaultMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		Schedule:         "@every 1h",
		DelayThreshold:   7 * day,
		AutoApproveAfter: 30 * day,
		DelayCooldown:    day,
	}
}

func TestMonitorAutoApprovesAfterThirtyDays(t *testing.T) {
	store := newMemoryStore()
	clock := newTestClock(baseTime.Add(31 * day))
	monitor := NewMonitorService(store, repository.NewStoreAlertCooldown(store, day), defaultMonitorConfig(), nil, nil, clock.Now)
	ctx := context.Background()

	citizen := seedCitizen(t, store, "citizen")
	official := seedOfficial(t, store, "official", "Health", 2.0, 1, baseTime)
	app := seedApplication(t, store, models.Application{
		ApplicationType: "Health",
		Status:          models.StatusInProgress,
		CitizenID:       citizen.ID,
		OfficialID:      &official.ID,
		SubmittedAt:     baseTime,
		LastUpdatedAt:   clock.Now().Add(-2 * day),
	})

	report, err := monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.AutoApproved)
	assert.Equal(t, 0, report.Delayed)

	got := loadApplication(t, store, app.ID)
	assert.Equal(t, models.StatusAutoApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.Len(t, notificationsOf(t, store, citizen.ID, models.NotificationApproval), 1)

	var history []models.ApplicationHistory
	var hashes int
	require.NoError(t, store.View(ctx, func(r repository.Repos) error {
		var err error
		if history, err = r.History.List(ctx, app.ID); err != nil {
			return err
		}
		hashes, err = r.Hashes.Count(ctx)
		return err
	}))
	require.Len(t, history, 1)
	assert.Equal(t, models.SystemActor, history[0].UpdatedBy)
	assert.Equal(t, "Auto-approved after 30 days", *history[0].Comment)
	assert.Equal(t, 1, hashes)

	clock.Advance(time.Hour)
	report, err = monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Len(t, notificationsOf(t, store, citizen.ID, models.NotificationApproval), 1)
}

func TestMonitorDelayAlertsRespectCooldown(t *testing.T) {
	store := newMemoryStore()
	clock := newTestClock(baseTime.Add(10 * day))
	monitor := NewMonitorService(store, repository.NewStoreAlertCooldown(store, day), defaultMonitorConfig(), nil, nil, clock.Now)
	ctx := context.Background()

	citizen := seedCitizen(t, store, "citizen")
	official := seedOfficial(t, store, "official", "Health", 2.0, 1, baseTime)
	seedApplication(t, store, models.Application{
		ApplicationType: "Health",
		Status:          models.StatusAssigned,
		CitizenID:       citizen.ID,
		OfficialID:      &official.ID,
		SubmittedAt:     baseTime,
		LastUpdatedAt:   baseTime.Add(day),
	})

	report, err := monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delayed)
	assert.Equal(t, 2, report.AlertsSent)
	assert.Len(t, notificationsOf(t, store, citizen.ID, models.NotificationDelay), 1)
	assert.Len(t, notificationsOf(t, store, official.ID, models.NotificationDelay), 1)
	delay := notificationsOf(t, store, citizen.ID, models.NotificationDelay)[0]
	assert.Equal(t, "Application Delayed", delay.Title)
	assert.Contains(t, delay.Message, "pending for 9 days")

	clock.Advance(time.Hour)
	report, err = monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.AlertsSent)
	assert.Equal(t, 2, report.Suppressed)
	assert.Len(t, notificationsOf(t, store, citizen.ID, models.NotificationDelay), 1)

	clock.Advance(day)
	report, err = monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.AlertsSent)
	assert.Len(t, notificationsOf(t, store, citizen.ID, models.NotificationDelay), 2)
}

func TestMonitorIgnoresSubmittedAndFreshApplications(t *testing.T) {
	store := newMemoryStore()
	clock := newTestClock(baseTime.Add(10 * day))
	monitor := NewMonitorService(store, nil, defaultMonitorConfig(), nil, nil, clock.Now)
	citizen := seedCitizen(t, store, "citizen")

	seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: citizen.ID, SubmittedAt: baseTime})
	seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: citizen.ID, Status: models.StatusInProgress, SubmittedAt: baseTime, LastUpdatedAt: clock.Now().Add(-7 * day)})
	seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: citizen.ID, Status: models.StatusRejected, SubmittedAt: baseTime})

	report, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 0, report.Delayed)
	assert.Empty(t, notificationsOf(t, store, citizen.ID, ""))
}

func TestMonitorContinuesAfterFailure(t *testing.T) {
	store := newMemoryStore()
	clock := newTestClock(baseTime.Add(40 * day))
	citizen := seedCitizen(t, store, "citizen")
	broken := seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: citizen.ID, Status: models.StatusAssigned, SubmittedAt: baseTime})
	healthy := seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: citizen.ID, Status: models.StatusAssigned, SubmittedAt: baseTime.Add(time.Hour)})

	monitor := NewMonitorService(store, &flakyCooldown{failFor: broken.ID}, defaultMonitorConfig(), nil, nil, clock.Now)
	report, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.AutoApproved)

	assert.Equal(t, models.StatusAssigned, loadApplication(t, store, broken.ID).Status)
	assert.Equal(t, models.StatusAutoApproved, loadApplication(t, store, healthy.ID).Status)
}

func TestMonitorStartRejectsBadSchedule(t *testing.T) {
	cfg := defaultMonitorConfig()
	cfg.Schedule = "every now and then"
	monitor := NewMonitorService(newMemoryStore(), nil, cfg, nil, nil, nil)
	require.Error(t, monitor.Start(context.Background()))
	monitor.Stop()

	good := NewMonitorService(newMemoryStore(), nil, defaultMonitorConfig(), nil, nil, nil)
	require.NoError(t, good.Start(context.Background()))
	require.NoError(t, good.Start(context.Background()))
	good.Stop()
}

func TestMonitorRunOnceHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	monitor := NewMonitorService(newMemoryStore(), nil, defaultMonitorConfig(), nil, nil, nil)
	_, err := monitor.RunOnce(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
