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
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

func TestNormalizeDepartment(t *testing.T) {
	cases := map[string]string{
		"Health – Ministry of Health": "Health",
		"Health – X":                  "Health",
		"  Revenue  ":                 "Revenue",
		"Transport – Roads – North":   "Transport",
		"":                            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDepartment(in), in)
	}
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, RatingTier{Min: 0, Max: 2.9}, TierFor(0))
	assert.Equal(t, RatingTier{Min: 2.0, Max: 3.9}, TierFor(1))
	assert.Equal(t, RatingTier{Min: 3.0, Max: 5.0}, TierFor(2))
	assert.Equal(t, RatingTier{Min: 3.0, Max: 5.0}, TierFor(7))
	assert.True(t, TierFor(1).Contains(2.0))
	assert.True(t, TierFor(1).Contains(3.9))
	assert.False(t, TierFor(1).Contains(4.0))
}

func TestSelectOfficialPrefersLeastLoadedInTier(t *testing.T) {
	dept := "Health"
	users := []models.User{
		{ID: "a", Role: models.RoleOfficial, Department: &dept, Rating: 1.0, AssignedCount: 5, CreatedAt: baseTime},
		{ID: "b", Role: models.RoleOfficial, Department: &dept, Rating: 2.0, AssignedCount: 2, CreatedAt: baseTime},
	}
	chosen := SelectOfficial(users, "Health – Ministry of Health", 0)
	require.NotNil(t, chosen)
	assert.Equal(t, "b", chosen.ID)
}

func TestSelectOfficialFallsBackToWholePool(t *testing.T) {
	dept := "Revenue – Land Records"
	users := []models.User{
		{ID: "high", Role: models.RoleOfficial, Department: &dept, Rating: 4.8, AssignedCount: 3, CreatedAt: baseTime},
		{ID: "higher", Role: models.RoleOfficial, Department: &dept, Rating: 4.9, AssignedCount: 1, CreatedAt: baseTime},
	}
	chosen := SelectOfficial(users, "Revenue", 0)
	require.NotNil(t, chosen)
	assert.Equal(t, "higher", chosen.ID)
}

func TestSelectOfficialTieBreak(t *testing.T) {
	dept := "Health"
	users := []models.User{
		{ID: "z", Role: models.RoleOfficial, Department: &dept, CreatedAt: baseTime},
		{ID: "y", Role: models.RoleOfficial, Department: &dept, CreatedAt: baseTime.Add(time.Hour)},
		{ID: "x", Role: models.RoleOfficial, Department: &dept, CreatedAt: baseTime},
	}
	chosen := SelectOfficial(users, "Health", 0)
	require.NotNil(t, chosen)
	assert.Equal(t, "x", chosen.ID)
}

func TestSelectOfficialIgnoresOfficialsWithoutDepartment(t *testing.T) {
	users := []models.User{
		{ID: "a", Role: models.RoleOfficial},
		{ID: "b", Role: models.RoleCitizen, Department: models.StringPtr("Health")},
	}
	assert.Nil(t, SelectOfficial(users, "Health", 0))
	assert.Nil(t, SelectOfficial(users, "", 0))
}

func TestAutoAssignAssignsAndRecords(t *testing.T) {
	store := newMemoryStore()
	clock := newTestClock(baseTime)
	svc := NewAssignmentService(store, nil, nil, clock.Now)
	ctx := context.Background()

	citizen := seedCitizen(t, store, "citizen")
	busy := seedOfficial(t, store, "busy", "Health – X", 1.0, 5, baseTime)
	idle := seedOfficial(t, store, "idle", "Health – Y", 2.0, 2, baseTime)
	app := seedApplication(t, store, models.Application{ApplicationType: "Health – Ministry of Health", CitizenID: citizen.ID})

	chosen, err := svc.AutoAssign(ctx, app.ID, app.Department, 0)
	require.NoError(t, err)
	require.NotNil(t, chosen)
	assert.Equal(t, idle.ID, chosen.ID)

	got := loadApplication(t, store, app.ID)
	assert.Equal(t, models.StatusAssigned, got.Status)
	require.NotNil(t, got.OfficialID)
	assert.Equal(t, idle.ID, *got.OfficialID)
	require.NotNil(t, got.AssignedAt)
	assert.Equal(t, baseTime, *got.AssignedAt)
	assert.Equal(t, 3, loadUser(t, store, idle.ID).AssignedCount)
	assert.Equal(t, 5, loadUser(t, store, busy.ID).AssignedCount)

	var history []models.ApplicationHistory
	require.NoError(t, store.View(ctx, func(r repository.Repos) error {
		var err error
		history, err = r.History.List(ctx, app.ID)
		return err
	}))
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusAssigned, history[0].Status)
	assert.Equal(t, idle.ID, history[0].UpdatedBy)
	assert.Equal(t, "Application assigned to official", *history[0].Comment)

	assert.Len(t, notificationsOf(t, store, idle.ID, models.NotificationAssignment), 1)
}

func TestAutoAssignWithoutCandidatesLeavesApplication(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	ctx := context.Background()

	seedOfficial(t, store, "other", "Revenue", 1.0, 0, baseTime)
	app := seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: "c1"})

	chosen, err := svc.AutoAssign(ctx, app.ID, app.Department, 0)
	require.NoError(t, err)
	assert.Nil(t, chosen)

	got := loadApplication(t, store, app.ID)
	assert.Equal(t, models.StatusSubmitted, got.Status)
	assert.Nil(t, got.OfficialID)
}

func TestAutoAssignRefusesAutoApproved(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	seedOfficial(t, store, "o", "Health", 1.0, 0, baseTime)
	app := seedApplication(t, store, models.Application{ApplicationType: "Health", Status: models.StatusAutoApproved})

	_, err := svc.AutoAssign(context.Background(), app.ID, app.Department, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestEscalateUsesNextTier(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	ctx := context.Background()

	low := seedOfficial(t, store, "low", "Health", 1.0, 1, baseTime)
	mid := seedOfficial(t, store, "mid", "Health", 3.5, 10, baseTime)
	app := seedApplication(t, store, models.Application{
		ApplicationType: "Health",
		Status:          models.StatusAssigned,
		OfficialID:      &low.ID,
		CitizenID:       "c1",
	})

	res, err := svc.Escalate(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Level)
	require.NotNil(t, res.Official)
	assert.Equal(t, mid.ID, res.Official.ID)

	got := loadApplication(t, store, app.ID)
	assert.Equal(t, 1, got.EscalationLevel)
	assert.Equal(t, mid.ID, *got.OfficialID)
	assert.Equal(t, models.StatusAssigned, got.Status)
	assert.False(t, got.IsSolved)
}

func TestEscalateReopensDecidedApplication(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	official := seedOfficial(t, store, "o", "Health", 2.5, 0, baseTime)
	approvedAt := baseTime
	app := seedApplication(t, store, models.Application{
		ApplicationType: "Health",
		Status:          models.StatusApproved,
		OfficialID:      &official.ID,
		ApprovedAt:      &approvedAt,
		IsSolved:        true,
	})

	res, err := svc.Escalate(context.Background(), app.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Official)

	got := loadApplication(t, store, app.ID)
	assert.Equal(t, models.StatusAssigned, got.Status)
	assert.Nil(t, got.ApprovedAt)
	assert.False(t, got.IsSolved)
}

func TestEscalateWithoutCandidateKeepsLevel(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	owner := "gone"
	app := seedApplication(t, store, models.Application{
		ApplicationType: "Health",
		Status:          models.StatusInProgress,
		OfficialID:      &owner,
	})

	res, err := svc.Escalate(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Official)
	assert.Equal(t, 1, res.Level)

	got := loadApplication(t, store, app.ID)
	assert.Equal(t, 1, got.EscalationLevel)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, owner, *got.OfficialID)
}

func TestEscalateRejectsAutoApprovedAndMissingDepartment(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	auto := seedApplication(t, store, models.Application{ApplicationType: "Health", Status: models.StatusAutoApproved})
	_, err := svc.Escalate(context.Background(), auto.ID)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	noDept := seedApplication(t, store, models.Application{Status: models.StatusAssigned})
	_, err = svc.Escalate(context.Background(), noDept.ID)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Escalate(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAcceptNotifiesCitizen(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	citizen := seedCitizen(t, store, "citizen")
	official := seedOfficial(t, store, "o", "Health", 2.5, 0, baseTime)
	app := seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: citizen.ID})

	updated, err := svc.Accept(context.Background(), app.ID, official.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, updated.Status)
	assert.Equal(t, official.ID, *updated.OfficialID)
	assert.Len(t, notificationsOf(t, store, citizen.ID, models.NotificationAssignment), 1)
	// only engine selections count toward the workload
	assert.Equal(t, 0, loadUser(t, store, official.ID).AssignedCount)

	_, err = svc.Accept(context.Background(), app.ID, official.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, loadUser(t, store, official.ID).AssignedCount)
}

func TestAcceptRejectsTerminalApplication(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	official := seedOfficial(t, store, "o", "Health", 2.5, 0, baseTime)
	app := seedApplication(t, store, models.Application{ApplicationType: "Health", Status: models.StatusRejected})

	_, err := svc.Accept(context.Background(), app.ID, official.ID)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Equal(t, 0, loadUser(t, store, official.ID).AssignedCount)
}

func TestForceAssignRequiresOfficial(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	citizen := seedCitizen(t, store, "citizen")
	official := seedOfficial(t, store, "o", "Revenue", 4.9, 0, baseTime)
	app := seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: citizen.ID})

	_, err := svc.ForceAssign(context.Background(), app.ID, citizen.ID, "admin")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.ForceAssign(context.Background(), app.ID, "nobody", "admin")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	updated, err := svc.ForceAssign(context.Background(), app.ID, official.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, official.ID, *updated.OfficialID)
	assert.Len(t, notificationsOf(t, store, official.ID, models.NotificationAssignment), 1)
	assert.Equal(t, 0, loadUser(t, store, official.ID).AssignedCount)
}

func TestAssignedApplicationsNeverStaySubmitted(t *testing.T) {
	store := newMemoryStore()
	svc := NewAssignmentService(store, nil, nil, nil)
	ctx := context.Background()
	seedOfficial(t, store, "o1", "Health", 1.0, 0, baseTime)
	seedOfficial(t, store, "o2", "Health", 3.2, 0, baseTime)

	for i := 0; i < 5; i++ {
		app := seedApplication(t, store, models.Application{ApplicationType: "Health"})
		_, err := svc.AutoAssign(ctx, app.ID, app.Department, 0)
		require.NoError(t, err)
		_, err = svc.Escalate(ctx, app.ID)
		require.NoError(t, err)
	}

	require.NoError(t, store.View(ctx, func(r repository.Repos) error {
		apps, err := r.Applications.List(ctx, models.ApplicationFilter{})
		require.NoError(t, err)
		for _, app := range apps {
			if app.OfficialID != nil {
				assert.NotEqual(t, models.StatusSubmitted, app.Status)
			}
		}
		return nil
	}))
}
