package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

func newResolutionFixture(t *testing.T) (*ResolutionService, *repository.Store) {
	t.Helper()
	store := newMemoryStore()
	clock := newTestClock(baseTime)
	engine := NewAssignmentService(store, nil, nil, clock.Now)
	return NewResolutionService(store, engine, nil, nil, clock.Now), store
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func seedFeedback(t *testing.T, store *repository.Store, fb models.Feedback) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(r repository.Repos) error {
		return r.Feedback.Create(ctx, &fb)
	}))
}

func feedbackCount(t *testing.T, store *repository.Store, officialID string) int {
	t.Helper()
	ctx := context.Background()
	var n int
	require.NoError(t, store.View(ctx, func(r repository.Repos) error {
		all, err := r.Feedback.ListByOfficial(ctx, officialID)
		n = len(all)
		return err
	}))
	return n
}

func TestSolveRecordsSingleFeedback(t *testing.T) {
	svc, store := newResolutionFixture(t)
	ctx := context.Background()
	citizen := seedCitizen(t, store, "citizen")
	official := seedOfficial(t, store, "official", "Health", 4.0, 3, baseTime)
	seedFeedback(t, store, models.Feedback{ApplicationID: "older", CitizenID: "x", OfficialID: &official.ID, Rating: 4})
	app := seedApplication(t, store, models.Application{
		ApplicationType: "Health",
		Status:          models.StatusApproved,
		CitizenID:       citizen.ID,
		OfficialID:      &official.ID,
	})

	req := dto.SolveRequest{IsSolved: boolPtr(true), Rating: intPtr(2), Comment: "ok"}
	res, err := svc.Solve(ctx, citizen.ID, app.ID, req)
	require.NoError(t, err)
	assert.False(t, res.Escalated)
	require.NotNil(t, res.Feedback)

	_, err = svc.Solve(ctx, citizen.ID, app.ID, dto.SolveRequest{IsSolved: boolPtr(true), Rating: intPtr(5)})
	require.NoError(t, err)

	assert.Equal(t, 2, feedbackCount(t, store, official.ID))
	updated := loadUser(t, store, official.ID)
	assert.InDelta(t, 3.0, updated.Rating, 0.0001)
	assert.Equal(t, 1, updated.SolvedCount)
	assert.True(t, loadApplication(t, store, app.ID).IsSolved)
}

func TestSolveWithoutOfficialSkipsFeedback(t *testing.T) {
	svc, store := newResolutionFixture(t)
	citizen := seedCitizen(t, store, "citizen")
	app := seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: citizen.ID})

	res, err := svc.Solve(context.Background(), citizen.ID, app.ID, dto.SolveRequest{IsSolved: boolPtr(true), Rating: intPtr(5)})
	require.NoError(t, err)
	assert.Nil(t, res.Feedback)
	assert.True(t, loadApplication(t, store, app.ID).IsSolved)
}

func TestSolveRejectedEscalates(t *testing.T) {
	svc, store := newResolutionFixture(t)
	citizen := seedCitizen(t, store, "citizen")
	first := seedOfficial(t, store, "first", "Health", 1.0, 1, baseTime)
	second := seedOfficial(t, store, "second", "Health", 3.0, 4, baseTime)
	app := seedApplication(t, store, models.Application{
		ApplicationType: "Health",
		Status:          models.StatusAssigned,
		CitizenID:       citizen.ID,
		OfficialID:      &first.ID,
	})

	res, err := svc.Solve(context.Background(), citizen.ID, app.ID, dto.SolveRequest{IsSolved: boolPtr(false)})
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Equal(t, 1, res.EscalationLevel)
	require.NotNil(t, res.Official)
	assert.Equal(t, second.ID, res.Official.ID)
	assert.Equal(t, "Application escalated and reassigned", res.Message)
}

func TestSolveRejectedWithoutCandidate(t *testing.T) {
	svc, store := newResolutionFixture(t)
	citizen := seedCitizen(t, store, "citizen")
	app := seedApplication(t, store, models.Application{ApplicationType: "Health", Status: models.StatusInProgress, CitizenID: citizen.ID})

	res, err := svc.Solve(context.Background(), citizen.ID, app.ID, dto.SolveRequest{IsSolved: boolPtr(false)})
	require.NoError(t, err)
	assert.Nil(t, res.Official)
	assert.Equal(t, "Application escalated but no new official found. Pending assignment.", res.Message)
	assert.Equal(t, 1, loadApplication(t, store, app.ID).EscalationLevel)
}

func TestSolveRequiresOwnerAndVerdict(t *testing.T) {
	svc, store := newResolutionFixture(t)
	app := seedApplication(t, store, models.Application{ApplicationType: "Health", CitizenID: "owner"})

	_, err := svc.Solve(context.Background(), "stranger", app.ID, dto.SolveRequest{IsSolved: boolPtr(false)})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Equal(t, 0, loadApplication(t, store, app.ID).EscalationLevel)

	_, err = svc.Solve(context.Background(), "owner", app.ID, dto.SolveRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Solve(context.Background(), "owner", app.ID, dto.SolveRequest{IsSolved: boolPtr(true), Rating: intPtr(9)})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSubmitFeedbackRejectsDuplicate(t *testing.T) {
	svc, store := newResolutionFixture(t)
	ctx := context.Background()
	citizen := seedCitizen(t, store, "citizen")
	official := seedOfficial(t, store, "official", "Health", 0, 0, baseTime)
	app := seedApplication(t, store, models.Application{
		ApplicationType: "Health",
		Status:          models.StatusApproved,
		CitizenID:       citizen.ID,
		OfficialID:      &official.ID,
	})

	fb, err := svc.SubmitFeedback(ctx, citizen.ID, app.ID, dto.FeedbackRequest{Rating: 4, Comment: "quick"})
	require.NoError(t, err)
	assert.Equal(t, official.ID, *fb.OfficialID)

	_, err = svc.SubmitFeedback(ctx, citizen.ID, app.ID, dto.FeedbackRequest{Rating: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	updated := loadUser(t, store, official.ID)
	assert.InDelta(t, 4.0, updated.Rating, 0.0001)
	assert.Equal(t, 0, updated.SolvedCount)

	got, err := svc.Feedback(ctx, citizenClaims(citizen.ID), app.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)

	_, err = svc.SubmitFeedback(ctx, "stranger", app.ID, dto.FeedbackRequest{Rating: 3})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestOfficialRatingRoundsToOneDecimal(t *testing.T) {
	svc, store := newResolutionFixture(t)
	official := seedOfficial(t, store, "official", "Health", 0, 0, baseTime)
	for i, rating := range []int{5, 4, 4} {
		seedFeedback(t, store, models.Feedback{ApplicationID: string(rune('a' + i)), OfficialID: &official.ID, Rating: rating})
	}

	rating, err := svc.OfficialRating(context.Background(), official.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rating.TotalRatings)
	assert.Equal(t, 4.3, rating.AverageRating)

	citizen := seedCitizen(t, store, "citizen")
	_, err = svc.OfficialRating(context.Background(), citizen.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
