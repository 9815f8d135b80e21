package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
	"github.com/noah-isme/civic-tracker-api/pkg/export"
)

const statsCacheKey = "admin:stats"

// delayThresholdDays mirrors the monitor's default delay rule for the overdue count.
const delayThresholdDays = 7

type tabularRenderer interface {
	ContentType() string
	Render(data export.Dataset, title string) ([]byte, error)
}

type certificateRenderer interface {
	Render(cert export.Certificate) ([]byte, error)
}

// AdminService builds dashboard statistics and rendered documents.
type AdminService struct {
	uow         UnitOfWork
	cache       *CacheService
	csv         tabularRenderer
	pdf         tabularRenderer
	certificate certificateRenderer
	logger      *zap.Logger
	now         Clock
}

// NewAdminService constructs an AdminService. Nil renderers use the defaults.
func NewAdminService(uow UnitOfWork, cache *CacheService, csv, pdf tabularRenderer, certificate certificateRenderer, logger *zap.Logger, clock Clock) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if certificate == nil {
		certificate = export.NewCertificateRenderer()
	}
	return &AdminService{
		uow:         uow,
		cache:       cache,
		csv:         csv,
		pdf:         pdf,
		certificate: certificate,
		logger:      logger,
		now:         orClock(clock),
	}
}

// Stats returns the dashboard summary, served from cache when enabled.
// refresh drops the cached copy first. The boolean reports a cache hit.
func (s *AdminService) Stats(ctx context.Context, refresh bool) (*dto.AdminStats, bool, error) {
	if refresh {
		if err := s.cache.Forget(ctx, statsCacheKey); err != nil {
			s.logger.Debug("stats cache not cleared", zap.Error(err))
		}
	}
	return Remember(ctx, s.cache, statsCacheKey, s.computeStats)
}

func (s *AdminService) computeStats(ctx context.Context) (*dto.AdminStats, error) {
	now := s.now()
	stats := &dto.AdminStats{
		ByStatus:     make(map[string]int, len(models.AllStatuses)),
		ByDepartment: make(map[string]int),
		Users:        make(map[string]int),
		GeneratedAt:  now,
	}
	for _, st := range models.AllStatuses {
		stats.ByStatus[string(st)] = 0
	}

	err := s.uow.View(ctx, func(r repository.Repos) error {
		apps, err := r.Applications.List(ctx, models.ApplicationFilter{})
		if err != nil {
			return err
		}
		for _, app := range apps {
			stats.TotalApplications++
			stats.ByStatus[string(app.Status)]++
			if app.Department != "" {
				stats.ByDepartment[app.Department]++
			}
			if app.EscalationLevel > 0 {
				stats.Escalated++
			}
			if app.IsSolved {
				stats.Solved++
			}
			if !app.Status.IsTerminal() && app.Status != models.StatusSubmitted &&
				daysBetween(app.LastUpdatedAt, now) > delayThresholdDays {
				stats.Overdue++
			}
		}

		users, err := r.Users.List(ctx, repository.UserFilter{})
		if err != nil {
			return err
		}
		stats.Officials = make([]dto.OfficialStat, 0)
		for _, u := range users {
			stats.Users[string(u.Role)]++
			if u.Role != models.RoleOfficial {
				continue
			}
			stats.Officials = append(stats.Officials, dto.OfficialStat{
				ID:            u.ID,
				Username:      u.Username,
				FullName:      u.FullName,
				Department:    models.Deref(u.Department),
				Rating:        u.Rating,
				AssignedCount: u.AssignedCount,
				SolvedCount:   u.SolvedCount,
			})
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to compute stats")
	}

	sort.SliceStable(stats.Officials, func(i, j int) bool {
		a, b := stats.Officials[i], stats.Officials[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.SolvedCount != b.SolvedCount {
			return a.SolvedCount > b.SolvedCount
		}
		return a.Username < b.Username
	})
	return stats, nil
}

// ExportApplications renders every application as CSV or PDF.
func (s *AdminService) ExportApplications(ctx context.Context, format dto.ExportFormat) (*dto.ExportResult, error) {
	var renderer tabularRenderer
	switch format {
	case dto.ExportCSV, "":
		format = dto.ExportCSV
		renderer = s.csv
	case dto.ExportPDF:
		renderer = s.pdf
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}

	data := export.Dataset{Headers: []string{
		"Tracking ID", "Type", "Department", "Status", "Priority", "Escalation", "Solved", "Official", "Submitted", "Last Updated",
	}}
	err := s.uow.View(ctx, func(r repository.Repos) error {
		apps, err := r.Applications.List(ctx, models.ApplicationFilter{})
		if err != nil {
			return err
		}
		names := make(map[string]string)
		users, err := r.Users.List(ctx, repository.UserFilter{Role: models.RoleOfficial})
		if err != nil {
			return err
		}
		for _, u := range users {
			names[u.ID] = u.FullName
		}
		for _, app := range apps {
			data.Append(
				app.TrackingID,
				app.ApplicationType,
				app.Department,
				string(app.Status),
				string(app.Priority),
				strconv.Itoa(app.EscalationLevel),
				strconv.FormatBool(app.IsSolved),
				names[models.Deref(app.OfficialID)],
				app.SubmittedAt.Format(time.RFC3339),
				app.LastUpdatedAt.Format(time.RFC3339),
			)
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, "application not found", "failed to load applications")
	}

	payload, err := renderer.Render(data, "Applications Report")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &dto.ExportResult{
		Filename:    fmt.Sprintf("applications-%s.%s", s.now().Format("20060102-150405"), format),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

// Certificate renders the approval certificate of an approved application.
func (s *AdminService) Certificate(ctx context.Context, claims *models.JWTClaims, applicationID string) (*dto.ExportResult, error) {
	var cert export.Certificate
	err := s.uow.View(ctx, func(r repository.Repos) error {
		app, err := r.Applications.Get(ctx, applicationID)
		if err != nil {
			return err
		}
		if err := canView(claims, app); err != nil {
			return err
		}
		hash, err := r.Hashes.FindByApplication(ctx, app.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "Blockchain hash not found")
		}
		if err != nil {
			return err
		}
		citizenName := ""
		if citizen, err := r.Users.Get(ctx, app.CitizenID); err == nil {
			citizenName = citizen.FullName
		}
		approvedAt := hash.Timestamp
		if app.ApprovedAt != nil {
			approvedAt = *app.ApprovedAt
		}
		cert = export.Certificate{
			TrackingID:      app.TrackingID,
			ApplicationType: app.ApplicationType,
			Department:      app.Department,
			CitizenName:     citizenName,
			Status:          string(app.Status),
			ApprovedAt:      approvedAt,
			DocumentHash:    hash.DocumentHash,
			BlockNumber:     hash.BlockNumber,
			IssuedAt:        s.now(),
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, "Application not found", "failed to load certificate data")
	}

	payload, err := s.certificate.Render(cert)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	return &dto.ExportResult{
		Filename:    fmt.Sprintf("certificate-%s.pdf", cert.TrackingID),
		ContentType: "application/pdf",
		Payload:     payload,
	}, nil
}
