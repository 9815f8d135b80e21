package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	"github.com/noah-isme/civic-tracker-api/pkg/config"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var baseTime = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func newMemoryStore() *repository.Store {
	return repository.NewStore(config.SnapshotOff)
}

func seedOfficial(t *testing.T, store *repository.Store, username, department string, rating float64, assigned int, createdAt time.Time) models.User {
	t.Helper()
	return seedUser(t, store, models.User{
		Username:      username,
		FullName:      username,
		Role:          models.RoleOfficial,
		Department:    models.StringPtr(department),
		Rating:        rating,
		AssignedCount: assigned,
		CreatedAt:     createdAt,
	})
}

func seedCitizen(t *testing.T, store *repository.Store, username string) models.User {
	t.Helper()
	return seedUser(t, store, models.User{
		Username:  username,
		FullName:  username,
		Role:      models.RoleCitizen,
		CreatedAt: baseTime,
	})
}

func seedUser(t *testing.T, store *repository.Store, user models.User) models.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(r repository.Repos) error {
		return r.Users.Create(ctx, &user)
	}))
	return user
}

func seedApplication(t *testing.T, store *repository.Store, app models.Application) models.Application {
	t.Helper()
	ctx := context.Background()
	if app.Status == "" {
		app.Status = models.StatusSubmitted
	}
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = baseTime
	}
	if app.LastUpdatedAt.IsZero() {
		app.LastUpdatedAt = app.SubmittedAt
	}
	if app.Department == "" {
		app.Department = NormalizeDepartment(app.ApplicationType)
	}
	require.NoError(t, store.WithinTx(ctx, func(r repository.Repos) error {
		if app.TrackingID == "" {
			seq, err := r.Applications.NextTrackingSequence(ctx, app.SubmittedAt.Year())
			if err != nil {
				return err
			}
			app.TrackingID = trackingIDFor(app.SubmittedAt.Year(), seq)
		}
		return r.Applications.Create(ctx, &app)
	}))
	return app
}

func loadApplication(t *testing.T, store *repository.Store, id string) *models.Application {
	t.Helper()
	ctx := context.Background()
	var app *models.Application
	require.NoError(t, store.View(ctx, func(r repository.Repos) error {
		var err error
		app, err = r.Applications.Get(ctx, id)
		return err
	}))
	return app
}

func loadUser(t *testing.T, store *repository.Store, id string) *models.User {
	t.Helper()
	ctx := context.Background()
	var user *models.User
	require.NoError(t, store.View(ctx, func(r repository.Repos) error {
		var err error
		user, err = r.Users.Get(ctx, id)
		return err
	}))
	return user
}

func notificationsOf(t *testing.T, store *repository.Store, userID string, kind models.NotificationType) []models.Notification {
	t.Helper()
	ctx := context.Background()
	var out []models.Notification
	require.NoError(t, store.View(ctx, func(r repository.Repos) error {
		all, err := r.Notifications.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, n := range all {
			if kind == "" || n.Type == kind {
				out = append(out, n)
			}
		}
		return nil
	}))
	return out
}

func citizenClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleCitizen}
}
