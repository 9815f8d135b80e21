package service

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

// UnitOfWork runs repository work atomically. *repository.Store satisfies it.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r repository.Repos) error) error
	WithinApplicationTx(ctx context.Context, applicationID string, fn func(r repository.Repos, app *models.Application) error) error
	View(ctx context.Context, fn func(r repository.Repos) error) error
}

// Clock returns the current time. Tests replace it to control elapsed days.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func orClock(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}

// mapError converts repository failures into typed errors. Typed errors pass through.
func mapError(err error, notFound string, internal string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "request cancelled")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}

func ptrTime(t time.Time) *time.Time { return &t }
