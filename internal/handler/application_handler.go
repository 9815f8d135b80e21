package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/pkg/response"
)

type applicationService interface {
	Submit(ctx context.Context, citizenID string, req dto.CreateApplicationRequest) (*models.Application, error)
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Application, error)
	Track(ctx context.Context, trackingID string) (*models.Application, error)
	ListMine(ctx context.Context, citizenID string) ([]models.Application, error)
	List(ctx context.Context, claims *models.JWTClaims, status string) ([]models.Application, error)
	History(ctx context.Context, claims *models.JWTClaims, id string) ([]models.ApplicationHistory, error)
	UpdateStatus(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateStatusRequest) (*models.Application, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateApplicationRequest) (*models.Application, error)
	BlockchainHash(ctx context.Context, id string) (*models.BlockchainHash, error)
}

type assignmentService interface {
	Accept(ctx context.Context, applicationID, officialID string) (*models.Application, error)
	ForceAssign(ctx context.Context, applicationID, officialID, adminID string) (*models.Application, error)
}

// ApplicationHandler exposes the application lifecycle.
type ApplicationHandler struct {
	applications applicationService
	assignments  assignmentService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(applications applicationService, assignments assignmentService) *ApplicationHandler {
	return &ApplicationHandler{applications: applications, assignments: assignments}
}

// Submit godoc
// @Summary Submit an application
// @Description Creates the application and routes it to the least loaded official of its department
// @Tags Applications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateApplicationRequest
	if !bindJSON(c, &req, "invalid application payload") {
		return
	}
	app, err := h.applications.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Mine godoc
// @Summary List the caller's applications
// @Tags Applications
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /applications/my [get]
func (h *ApplicationHandler) Mine(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	apps, err := h.applications.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, apps)
}

// Track godoc
// @Summary Public tracking lookup
// @Tags Applications
// @Produce json
// @Param trackingId path string true "Tracking ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/track/{trackingId} [get]
func (h *ApplicationHandler) Track(c *gin.Context) {
	app, err := h.applications.Track(c.Request.Context(), strings.TrimSpace(c.Param("trackingId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// Get godoc
// @Summary Get an application
// @Tags Applications
// @Security BearerAuth
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	app, err := h.applications.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// History godoc
// @Summary Status history of an application
// @Tags Applications
// @Security BearerAuth
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/history [get]
func (h *ApplicationHandler) History(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	history, err := h.applications.History(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, history)
}

// List godoc
// @Summary List applications visible to an official or admin
// @Tags Applications
// @Security BearerAuth
// @Produce json
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	apps, err := h.applications.List(c.Request.Context(), claims, strings.TrimSpace(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, apps)
}

// UpdateStatus godoc
// @Summary Move an application through the status state machine
// @Tags Applications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.UpdateStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/status [patch]
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	app, err := h.applications.UpdateStatus(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// Update godoc
// @Summary Edit priority or remarks
// @Tags Applications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.UpdateApplicationRequest true "Fields"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [patch]
func (h *ApplicationHandler) Update(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.UpdateApplicationRequest
	if !bindJSON(c, &req, "invalid update payload") {
		return
	}
	app, err := h.applications.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// Assign godoc
// @Summary Force-assign an application to an official
// @Tags Applications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.AssignRequest true "Official"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/assign [post]
func (h *ApplicationHandler) Assign(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.AssignRequest
	if !bindJSON(c, &req, "officialId is required") {
		return
	}
	app, err := h.assignments.ForceAssign(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.OfficialID), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// Accept godoc
// @Summary Accept an application as the calling official
// @Tags Applications
// @Security BearerAuth
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/accept [post]
func (h *ApplicationHandler) Accept(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	app, err := h.assignments.Accept(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// Blockchain godoc
// @Summary Approval hash of an application
// @Tags Applications
// @Security BearerAuth
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope "data is null until the application is approved"
// @Failure 404 {object} response.Envelope "application not found"
// @Router /applications/{id}/blockchain [get]
func (h *ApplicationHandler) Blockchain(c *gin.Context) {
	hash, err := h.applications.BlockchainHash(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, hash)
}
