package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/pkg/config"
	"github.com/noah-isme/civic-tracker-api/pkg/jobs"
	"github.com/noah-isme/civic-tracker-api/pkg/storage"
)

func newFileStore(t *testing.T, dir, policy string) *Store {
	t.Helper()
	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	return NewStore(policy, WithSnapshotFiles(files))
}

func seedApplication(t *testing.T, s *Store, app models.Application) models.Application {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithinTx(ctx, func(r Repos) error {
		return r.Applications.Create(ctx, &app)
	}))
	return app
}

func TestWithinTxCommit(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	ctx := context.Background()
	now := time.Now().UTC()

	var appID string
	err := s.WithinTx(ctx, func(r Repos) error {
		app := &models.Application{TrackingID: "APP-2024-000001", Status: models.StatusSubmitted, SubmittedAt: now}
		if err := r.Applications.Create(ctx, app); err != nil {
			return err
		}
		appID = app.ID
		return r.History.Append(ctx, &models.ApplicationHistory{ApplicationID: app.ID, Status: models.StatusSubmitted, UpdatedAt: now})
	})
	require.NoError(t, err)
	require.NotEmpty(t, appID)

	require.NoError(t, s.View(ctx, func(r Repos) error {
		app, err := r.Applications.Get(ctx, appID)
		require.NoError(t, err)
		assert.Equal(t, "APP-2024-000001", app.TrackingID)
		entries, err := r.History.List(ctx, appID)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		return nil
	}))
}

func TestWithinTxRollbackLeavesNoPartialState(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	ctx := context.Background()
	official := models.User{Username: "off", Role: models.RoleOfficial, AssignedCount: 2}
	require.NoError(t, s.WithinTx(ctx, func(r Repos) error { return r.Users.Create(ctx, &official) }))
	app := seedApplication(t, s, models.Application{TrackingID: "APP-2024-000001", Status: models.StatusSubmitted})

	sentinel := errors.New("boom")
	err := s.WithinTx(ctx, func(r Repos) error {
		a, err := r.Applications.Get(ctx, app.ID)
		if err != nil {
			return err
		}
		a.Status = models.StatusAssigned
		a.OfficialID = &official.ID
		if err := r.Applications.Update(ctx, a); err != nil {
			return err
		}
		u, _ := r.Users.Get(ctx, official.ID)
		u.AssignedCount++
		if err := r.Users.Update(ctx, u); err != nil {
			return err
		}
		if err := r.History.Append(ctx, &models.ApplicationHistory{ApplicationID: app.ID, Status: models.StatusAssigned}); err != nil {
			return err
		}
		if err := r.OTPs.Create(ctx, &models.OTPRecord{Identifier: "x", Purpose: models.OTPPurposeLogin}); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	require.NoError(t, s.View(ctx, func(r Repos) error {
		a, _ := r.Applications.Get(ctx, app.ID)
		assert.Equal(t, models.StatusSubmitted, a.Status)
		assert.Nil(t, a.OfficialID)
		u, _ := r.Users.Get(ctx, official.ID)
		assert.Equal(t, 2, u.AssignedCount)
		entries, _ := r.History.List(ctx, app.ID)
		assert.Empty(t, entries)
		_, err := r.OTPs.Latest(ctx, "x", models.OTPPurposeLogin)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestWithinTxRecoversPanic(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	ctx := context.Background()
	err := s.WithinTx(ctx, func(r Repos) error {
		_ = r.Departments.Create(ctx, &models.Department{Name: "Health"})
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Equal(t, 0, s.Counts()["departments"])
}

func TestViewIsReadOnly(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	ctx := context.Background()
	err := s.View(ctx, func(r Repos) error {
		return r.Departments.Create(ctx, &models.Department{Name: "Health"})
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestWithinApplicationTxNotFound(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	err := s.WithinApplicationTx(context.Background(), "missing", func(r Repos, app *models.Application) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	ctx := context.Background()
	app := seedApplication(t, s, models.Application{TrackingID: "APP-2024-000001", Data: map[string]interface{}{"k": "v"}})

	require.NoError(t, s.View(ctx, func(r Repos) error {
		a, _ := r.Applications.Get(ctx, app.ID)
		a.Data["k"] = "changed"
		a.TrackingID = "mutated"
		return nil
	}))
	require.NoError(t, s.View(ctx, func(r Repos) error {
		a, _ := r.Applications.Get(ctx, app.ID)
		assert.Equal(t, "APP-2024-000001", a.TrackingID)
		assert.Equal(t, "v", a.Data["k"])
		return nil
	}))
}

func TestNextTrackingSequencePerYear(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	ctx := context.Background()
	seedApplication(t, s, models.Application{TrackingID: "APP-2023-000009"})
	seedApplication(t, s, models.Application{TrackingID: "APP-2024-000001"})
	seedApplication(t, s, models.Application{TrackingID: "APP-2024-000004"})

	require.NoError(t, s.View(ctx, func(r Repos) error {
		next, err := r.Applications.NextTrackingSequence(ctx, 2024)
		require.NoError(t, err)
		assert.Equal(t, 5, next)
		next, err = r.Applications.NextTrackingSequence(ctx, 2025)
		require.NoError(t, err)
		assert.Equal(t, 1, next)
		return nil
	}))
}

func TestListOfficialIncludesUnassignedInDepartment(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	ctx := context.Background()
	officialID := "off-1"
	seedApplication(t, s, models.Application{TrackingID: "APP-2024-000001", Department: "Health", Status: models.StatusSubmitted})
	seedApplication(t, s, models.Application{TrackingID: "APP-2024-000002", Department: "Revenue", Status: models.StatusSubmitted})
	seedApplication(t, s, models.Application{TrackingID: "APP-2024-000003", Department: "Revenue", Status: models.StatusAssigned, OfficialID: &officialID})

	require.NoError(t, s.View(ctx, func(r Repos) error {
		apps, err := r.Applications.List(ctx, models.ApplicationFilter{OfficialID: officialID, Department: "Health", IncludeUnassigned: true})
		require.NoError(t, err)
		ids := []string{}
		for _, a := range apps {
			ids = append(ids, a.TrackingID)
		}
		assert.ElementsMatch(t, []string{"APP-2024-000001", "APP-2024-000003"}, ids)
		return nil
	}))
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := newFileStore(t, dir, config.SnapshotSync)

	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	email := "c@example.com"
	citizen := models.User{Username: "citizen", Password: "hash", Email: &email, Role: models.RoleCitizen, CreatedAt: now}
	require.NoError(t, s.WithinTx(ctx, func(r Repos) error {
		if err := r.Users.Create(ctx, &citizen); err != nil {
			return err
		}
		app := &models.Application{TrackingID: "APP-2024-000001", CitizenID: citizen.ID, Status: models.StatusApproved, SubmittedAt: now}
		if err := r.Applications.Create(ctx, app); err != nil {
			return err
		}
		if err := r.History.Append(ctx, &models.ApplicationHistory{ApplicationID: app.ID, Status: models.StatusSubmitted, UpdatedAt: now}); err != nil {
			return err
		}
		if err := r.History.Append(ctx, &models.ApplicationHistory{ApplicationID: app.ID, Status: models.StatusApproved, UpdatedAt: now.Add(time.Hour)}); err != nil {
			return err
		}
		if err := r.Hashes.Create(ctx, &models.BlockchainHash{ApplicationID: app.ID, DocumentHash: "abc", BlockNumber: 1, Timestamp: now}); err != nil {
			return err
		}
		if err := r.DelayAlerts.Upsert(ctx, &models.DelayAlert{ApplicationID: app.ID, Kind: models.AlertRecipientCitizen, LastNotifiedAt: now}); err != nil {
			return err
		}
		return r.OTPs.Create(ctx, &models.OTPRecord{Identifier: email, Purpose: models.OTPPurposeLogin, Code: "123456"})
	}))

	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	assert.True(t, files.Exists("users.json"))
	assert.True(t, files.Exists("applicationHistory.json"))
	names, err := files.List(".json")
	require.NoError(t, err)
	assert.Len(t, names, 9)

	reloaded := newFileStore(t, dir, config.SnapshotSync)
	require.NoError(t, reloaded.Load(ctx))
	counts := reloaded.Counts()
	assert.Equal(t, 1, counts["users"])
	assert.Equal(t, 1, counts["applications"])
	assert.Equal(t, 2, counts["history"])
	assert.Equal(t, 1, counts["blockchainHashes"])
	assert.Equal(t, 1, counts["delayAlerts"])
	assert.Equal(t, 0, counts["otps"], "otp records are never persisted")

	require.NoError(t, reloaded.View(ctx, func(r Repos) error {
		u, err := r.Users.FindByEmail(ctx, "C@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash", u.Password)
		app, err := r.Applications.FindByTrackingID(ctx, "APP-2024-000001")
		require.NoError(t, err)
		entries, _ := r.History.List(ctx, app.ID)
		require.Len(t, entries, 2)
		assert.Equal(t, models.StatusSubmitted, entries[0].Status)
		assert.Equal(t, models.StatusApproved, entries[1].Status)
		return nil
	}))
}

func TestLoadMissingDirectoryIsFreshStart(t *testing.T) {
	s := newFileStore(t, t.TempDir(), config.SnapshotSync)
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 0, s.Counts()["users"])
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	_, err = files.Save("applications.json", []byte("{not json"))
	require.NoError(t, err)

	s := NewStore(config.SnapshotSync, WithSnapshotFiles(files))
	assert.Error(t, s.Load(context.Background()))
}

func TestAsyncSnapshotThroughQueue(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := newFileStore(t, dir, config.SnapshotAsync)
	q := jobs.NewQueue("snapshots", jobs.QueueConfig{Workers: 1})
	s.AttachQueue(q)
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, s.WithinTx(ctx, func(r Repos) error {
		return r.Departments.Create(ctx, &models.Department{Name: "Health"})
	}))

	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return files.Exists("departments.json") }, 2*time.Second, 10*time.Millisecond)
}

func TestOffPolicyWithoutFiles(t *testing.T) {
	s := NewStore(config.SnapshotSync)
	assert.Equal(t, config.SnapshotOff, s.Policy())
	assert.NoError(t, s.Snapshot(context.Background()))
}

func TestOTPCreatePrunesUnreachableRecords(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	issue := func(identifier string, at time.Time) {
		require.NoError(t, s.WithinTx(ctx, func(r Repos) error {
			return r.OTPs.Create(ctx, &models.OTPRecord{
				Identifier: identifier,
				Purpose:    models.OTPPurposeLogin,
				Code:       "123456",
				CreatedAt:  at,
				ExpiresAt:  at.Add(10 * time.Minute),
			})
		}))
	}

	issue("a@example.com", t0)
	issue("b@example.com", t0)
	issue("a@example.com", t0.Add(time.Minute))
	assert.Len(t, s.otps, 2, "superseded record dropped")

	issue("c@example.com", t0.Add(2*time.Hour))
	require.Len(t, s.otps, 1, "long-expired records dropped")
	assert.Equal(t, "c@example.com", s.otps[0].Identifier)

	sentinel := errors.New("abort")
	err := s.WithinTx(ctx, func(r Repos) error {
		if err := r.OTPs.Create(ctx, &models.OTPRecord{Identifier: "d@example.com", Purpose: models.OTPPurposeLogin, CreatedAt: t0.Add(5 * time.Hour)}); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	require.Len(t, s.otps, 1, "rollback restores pruned records")
	assert.Equal(t, "c@example.com", s.otps[0].Identifier)
}
