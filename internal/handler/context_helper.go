package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-tracker-api/internal/middleware"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
	"github.com/noah-isme/civic-tracker-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// requireClaims writes 401 and returns false when the request is anonymous.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

// bindJSON decodes the body into dest, answering 400 with message on failure.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
