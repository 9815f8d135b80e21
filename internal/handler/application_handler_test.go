package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/middleware"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Meta  map[string]interface{} `json:"meta"`
	Error string                 `json:"error"`
	Code  string                 `json:"code"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func newTestContext(method, target string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		payload, _ = json.Marshal(b)
	}
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

type fakeApplicationSrv struct {
	app         *models.Application
	apps        []models.Application
	err         error
	lastCitizen string
	lastStatus  string
	lastRequest dto.UpdateStatusRequest
}

func (f *fakeApplicationSrv) Submit(_ context.Context, citizenID string, req dto.CreateApplicationRequest) (*models.Application, error) {
	f.lastCitizen = citizenID
	return f.app, f.err
}

func (f *fakeApplicationSrv) Get(context.Context, *models.JWTClaims, string) (*models.Application, error) {
	return f.app, f.err
}

func (f *fakeApplicationSrv) Track(context.Context, string) (*models.Application, error) {
	return f.app, f.err
}

func (f *fakeApplicationSrv) ListMine(_ context.Context, citizenID string) ([]models.Application, error) {
	f.lastCitizen = citizenID
	return f.apps, f.err
}

func (f *fakeApplicationSrv) List(_ context.Context, _ *models.JWTClaims, status string) ([]models.Application, error) {
	f.lastStatus = status
	return f.apps, f.err
}

func (f *fakeApplicationSrv) History(context.Context, *models.JWTClaims, string) ([]models.ApplicationHistory, error) {
	return nil, f.err
}

func (f *fakeApplicationSrv) UpdateStatus(_ context.Context, _ *models.JWTClaims, _ string, req dto.UpdateStatusRequest) (*models.Application, error) {
	f.lastRequest = req
	return f.app, f.err
}

func (f *fakeApplicationSrv) Update(context.Context, *models.JWTClaims, string, dto.UpdateApplicationRequest) (*models.Application, error) {
	return f.app, f.err
}

func (f *fakeApplicationSrv) BlockchainHash(context.Context, string) (*models.BlockchainHash, error) {
	return nil, f.err
}

type fakeAssignmentSrv struct {
	lastOfficial string
	lastAdmin    string
	err          error
}

func (f *fakeAssignmentSrv) Accept(_ context.Context, _ string, officialID string) (*models.Application, error) {
	f.lastOfficial = officialID
	return &models.Application{ID: "app-1", Status: models.StatusAssigned}, f.err
}

func (f *fakeAssignmentSrv) ForceAssign(_ context.Context, _ string, officialID, adminID string) (*models.Application, error) {
	f.lastOfficial = officialID
	f.lastAdmin = adminID
	return &models.Application{ID: "app-1", Status: models.StatusAssigned}, f.err
}

func TestApplicationHandlerSubmitRequiresClaims(t *testing.T) {
	handler := NewApplicationHandler(&fakeApplicationSrv{}, &fakeAssignmentSrv{})
	c, rec := newTestContext(http.MethodPost, "/applications", map[string]string{"applicationType": "Health"}, nil)

	handler.Submit(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApplicationHandlerSubmitRejectsMalformedBody(t *testing.T) {
	handler := NewApplicationHandler(&fakeApplicationSrv{}, &fakeAssignmentSrv{})
	c, rec := newTestContext(http.MethodPost, "/applications", "{not json", &models.JWTClaims{UserID: "c1"})

	handler.Submit(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, rec).Code)
}

func TestApplicationHandlerSubmitSuccess(t *testing.T) {
	srv := &fakeApplicationSrv{app: &models.Application{ID: "app-1", TrackingID: "APP-2024-000001", Status: models.StatusAssigned}}
	handler := NewApplicationHandler(srv, &fakeAssignmentSrv{})
	c, rec := newTestContext(http.MethodPost, "/applications", map[string]string{"applicationType": "Health"}, &models.JWTClaims{UserID: "c1", Role: models.RoleCitizen})

	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "c1", srv.lastCitizen)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "APP-2024-000001", envelope.Data["trackingId"])
	assert.Equal(t, "Assigned", envelope.Data["status"])
}

func TestApplicationHandlerUpdateStatusMapsInvalidTransition(t *testing.T) {
	srv := &fakeApplicationSrv{err: appErrors.Transition("Submitted", "Approved")}
	handler := NewApplicationHandler(srv, &fakeAssignmentSrv{})
	c, rec := newTestContext(http.MethodPatch, "/applications/app-1/status", map[string]string{"status": "Approved", "comment": "ok"}, &models.JWTClaims{UserID: "o1", Role: models.RoleOfficial})
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}

	handler.UpdateStatus(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Approved", srv.lastRequest.Status)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "INVALID_TRANSITION", envelope.Code)
	assert.Equal(t, "cannot move application from Submitted to Approved", envelope.Error)
	assert.Equal(t, "Submitted", envelope.Meta["from"])
	assert.Equal(t, "Approved", envelope.Meta["to"])
}

func TestApplicationHandlerListPassesStatusFilter(t *testing.T) {
	srv := &fakeApplicationSrv{apps: []models.Application{{ID: "a"}}}
	handler := NewApplicationHandler(srv, &fakeAssignmentSrv{})
	c, rec := newTestContext(http.MethodGet, "/applications?status=In%20Progress", nil, &models.JWTClaims{UserID: "o1", Role: models.RoleOfficial})

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "In Progress", srv.lastStatus)
}

func TestApplicationHandlerAssignAndAccept(t *testing.T) {
	assignments := &fakeAssignmentSrv{}
	handler := NewApplicationHandler(&fakeApplicationSrv{}, assignments)

	c, rec := newTestContext(http.MethodPost, "/applications/app-1/assign", map[string]string{"officialId": " o9 "}, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	handler.Assign(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "o9", assignments.lastOfficial)
	assert.Equal(t, "admin-1", assignments.lastAdmin)

	c, rec = newTestContext(http.MethodPost, "/applications/app-1/accept", nil, &models.JWTClaims{UserID: "o2", Role: models.RoleOfficial})
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	handler.Accept(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "o2", assignments.lastOfficial)
}

func TestApplicationHandlerTrackNotFound(t *testing.T) {
	handler := NewApplicationHandler(&fakeApplicationSrv{err: appErrors.Clone(appErrors.ErrNotFound, "Application not found")}, &fakeAssignmentSrv{})
	c, rec := newTestContext(http.MethodGet, "/applications/track/APP-1999-000001", nil, nil)
	c.Params = gin.Params{{Key: "trackingId", Value: "APP-1999-000001"}}

	handler.Track(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Application not found", decodeEnvelope(t, rec).Error)
}

func TestApplicationHandlerBlockchainBeforeApproval(t *testing.T) {
	handler := NewApplicationHandler(&fakeApplicationSrv{}, &fakeAssignmentSrv{})
	c, rec := newTestContext(http.MethodGet, "/applications/app-1/blockchain", nil, &models.JWTClaims{UserID: "c1", Role: models.RoleCitizen})
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}

	handler.Blockchain(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":null}`, rec.Body.String())
}
