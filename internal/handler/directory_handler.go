package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/pkg/response"
)

type directoryService interface {
	Departments(ctx context.Context) ([]models.Department, error)
	CreateDepartment(ctx context.Context, req dto.DepartmentRequest) (*models.Department, error)
	DepartmentOfficials(ctx context.Context, departmentID string) ([]models.PublicUser, error)
	SendWarning(ctx context.Context, adminID string, req dto.WarningRequest) (*models.Warning, error)
	Warnings(ctx context.Context, officialID string) ([]models.Warning, error)
	User(ctx context.Context, id string) (*models.PublicUser, error)
	Officials(ctx context.Context) ([]models.PublicUser, error)
}

// DirectoryHandler serves departments, warnings and user lookups.
type DirectoryHandler struct {
	service directoryService
}

// NewDirectoryHandler constructs the handler.
func NewDirectoryHandler(svc directoryService) *DirectoryHandler {
	return &DirectoryHandler{service: svc}
}

// Departments godoc
// @Summary List departments
// @Tags Directory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DirectoryHandler) Departments(c *gin.Context) {
	items, err := h.service.Departments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// CreateDepartment godoc
// @Summary Create a department
// @Tags Directory
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.DepartmentRequest true "Department"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /departments [post]
func (h *DirectoryHandler) CreateDepartment(c *gin.Context) {
	var req dto.DepartmentRequest
	if !bindJSON(c, &req, "invalid department payload") {
		return
	}
	dept, err := h.service.CreateDepartment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dept)
}

// DepartmentOfficials godoc
// @Summary Officials serving a department
// @Tags Directory
// @Security BearerAuth
// @Produce json
// @Param id path string true "Department ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /departments/{id}/officials [get]
func (h *DirectoryHandler) DepartmentOfficials(c *gin.Context) {
	items, err := h.service.DepartmentOfficials(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// SendWarning godoc
// @Summary Warn an official
// @Tags Directory
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.WarningRequest true "Warning"
// @Success 201 {object} response.Envelope
// @Router /warnings [post]
func (h *DirectoryHandler) SendWarning(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.WarningRequest
	if !bindJSON(c, &req, "invalid warning payload") {
		return
	}
	warning, err := h.service.SendWarning(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, warning)
}

// Warnings godoc
// @Summary Warnings addressed to the calling official
// @Tags Directory
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /warnings [get]
func (h *DirectoryHandler) Warnings(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	items, err := h.service.Warnings(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// User godoc
// @Summary Look up a user
// @Tags Directory
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *DirectoryHandler) User(c *gin.Context) {
	user, err := h.service.User(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user)
}

// Officials godoc
// @Summary List every official
// @Tags Directory
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /users/officials [get]
func (h *DirectoryHandler) Officials(c *gin.Context) {
	items, err := h.service.Officials(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}
