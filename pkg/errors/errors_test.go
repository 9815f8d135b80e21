package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesOriginal(t *testing.T) {
	err := Clone(ErrNotFound, "application not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, "application not found", err.Error())
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("disk full"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	wrapped := fmt.Errorf("outer: %w", ErrInvalidTransition)
	assert.Equal(t, ErrInvalidTransition.Code, FromError(wrapped).Code)
	assert.Nil(t, FromError(nil))
}

func TestValidationPassesMessageThrough(t *testing.T) {
	appErr := Validation(errors.New("rating must be between 1 and 5"))
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Equal(t, "rating must be between 1 and 5", appErr.Message)
	assert.Equal(t, http.StatusBadRequest, ErrConflict.Status)
}

func TestTransitionCarriesStates(t *testing.T) {
	err := Transition("Submitted", "Approved")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "cannot move application from Submitted to Approved", err.Message)
	assert.Equal(t, map[string]string{"from": "Submitted", "to": "Approved"}, err.Details)
	assert.Nil(t, ErrInvalidTransition.Details)
}

func TestWithDoesNotMutateReceiver(t *testing.T) {
	base := Clonef(ErrValidation, "field %s is required", "applicationType").With("field", "applicationType")
	other := base.With("hint", "see docs")
	assert.Len(t, base.Details, 1)
	assert.Len(t, other.Details, 2)
	assert.Equal(t, "field applicationType is required", other.Message)
}
