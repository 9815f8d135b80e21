package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
	"github.com/noah-isme/civic-tracker-api/pkg/response"
)

type resolutionService interface {
	Solve(ctx context.Context, citizenID, applicationID string, req dto.SolveRequest) (*dto.SolveResult, error)
	SubmitFeedback(ctx context.Context, citizenID, applicationID string, req dto.FeedbackRequest) (*models.Feedback, error)
	Feedback(ctx context.Context, claims *models.JWTClaims, applicationID string) (*models.Feedback, error)
	OfficialRating(ctx context.Context, officialID string) (*models.OfficialRating, error)
}

// ResolutionHandler handles citizen verdicts, feedback and ratings.
type ResolutionHandler struct {
	service resolutionService
}

// NewResolutionHandler constructs the handler.
func NewResolutionHandler(svc resolutionService) *ResolutionHandler {
	return &ResolutionHandler{service: svc}
}

// Solve godoc
// @Summary Confirm or reject a resolution
// @Description A rejected resolution escalates the application to the next tier
// @Tags Resolution
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.SolveRequest true "Verdict"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /applications/{id}/solve [post]
func (h *ResolutionHandler) Solve(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.SolveRequest
	if !bindJSON(c, &req, "invalid solve payload") {
		return
	}
	res, err := h.service.Solve(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// SubmitFeedback godoc
// @Summary Rate the official who handled an application
// @Tags Resolution
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.FeedbackRequest true "Rating"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/feedback [post]
func (h *ResolutionHandler) SubmitFeedback(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.FeedbackRequest
	if !bindJSON(c, &req, "invalid feedback payload") {
		return
	}
	h.submit(c, claims.UserID, c.Param("id"), req)
}

// SubmitFeedbackByBody godoc
// @Summary Rate an official, naming the application in the body
// @Tags Resolution
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.LegacyFeedbackRequest true "Rating"
// @Success 201 {object} response.Envelope
// @Router /feedback [post]
func (h *ResolutionHandler) SubmitFeedbackByBody(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.LegacyFeedbackRequest
	if !bindJSON(c, &req, "invalid feedback payload") {
		return
	}
	appID := strings.TrimSpace(req.ApplicationID)
	if appID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "applicationId is required"))
		return
	}
	h.submit(c, claims.UserID, appID, dto.FeedbackRequest{Rating: req.Rating, Comment: req.Comment})
}

func (h *ResolutionHandler) submit(c *gin.Context, citizenID, appID string, req dto.FeedbackRequest) {
	fb, err := h.service.SubmitFeedback(c.Request.Context(), citizenID, appID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fb)
}

// Feedback godoc
// @Summary Feedback left on an application
// @Tags Resolution
// @Security BearerAuth
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id}/feedback [get]
func (h *ResolutionHandler) Feedback(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	fb, err := h.service.Feedback(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fb)
}

// OfficialRating godoc
// @Summary Average rating of an official
// @Tags Resolution
// @Security BearerAuth
// @Produce json
// @Param id path string true "Official ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /officials/{id}/rating [get]
func (h *ResolutionHandler) OfficialRating(c *gin.Context) {
	rating, err := h.service.OfficialRating(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rating)
}
