package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/middleware"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
	"github.com/noah-isme/civic-tracker-api/pkg/response"
)

var errMonitorDisabled = appErrors.Clone(appErrors.ErrValidation, "delay monitor is disabled")

type adminService interface {
	Stats(ctx context.Context, refresh bool) (*dto.AdminStats, bool, error)
	ExportApplications(ctx context.Context, format dto.ExportFormat) (*dto.ExportResult, error)
	Certificate(ctx context.Context, claims *models.JWTClaims, applicationID string) (*dto.ExportResult, error)
}

type monitorRunner interface {
	RunOnce(ctx context.Context) (dto.MonitorReport, error)
}

// AdminHandler exposes dashboard statistics and generated documents.
type AdminHandler struct {
	service adminService
	monitor monitorRunner
}

// NewAdminHandler constructs the handler. monitor may be nil.
func NewAdminHandler(svc adminService, monitor monitorRunner) *AdminHandler {
	return &AdminHandler{service: svc, monitor: monitor}
}

// Stats godoc
// @Summary Dashboard statistics
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param refresh query bool false "bypass the cached copy"
// @Success 200 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	stats, hit, err := h.service.Stats(c.Request.Context(), refresh)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export every application
// @Tags Admin
// @Security BearerAuth
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/applications/export [get]
func (h *AdminHandler) Export(c *gin.Context) {
	format := dto.ExportFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
	out, err := h.service.ExportApplications(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Binary(c, out.ContentType, out.Filename, out.Payload)
}

// Certificate godoc
// @Summary Approval certificate
// @Tags Applications
// @Security BearerAuth
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /applications/{id}/certificate [get]
func (h *AdminHandler) Certificate(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	out, err := h.service.Certificate(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Binary(c, out.ContentType, out.Filename, out.Payload)
}

// RunMonitor godoc
// @Summary Run one delay monitor sweep now
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/monitor/run [post]
func (h *AdminHandler) RunMonitor(c *gin.Context) {
	if h.monitor == nil {
		response.Error(c, errMonitorDisabled)
		return
	}
	report, err := h.monitor.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}
