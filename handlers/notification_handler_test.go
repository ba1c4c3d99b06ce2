package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CampusLink/notify-sync-backend/middleware"
	"github.com/CampusLink/notify-sync-backend/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMutationService struct {
	mock.Mock
}

func (m *mockMutationService) UpdateOne(ctx context.Context, audience types.Audience, id string, patch types.Patch) types.MutationResult {
	args := m.Called(ctx, audience, id, patch)
	return args.Get(0).(types.MutationResult)
}

func (m *mockMutationService) DeleteOne(ctx context.Context, audience types.Audience, id string) types.MutationResult {
	args := m.Called(ctx, audience, id)
	return args.Get(0).(types.MutationResult)
}

func (m *mockMutationService) MarkRead(ctx context.Context, audience types.Audience, actorID, id string) types.MarkReadResult {
	args := m.Called(ctx, audience, actorID, id)
	return args.Get(0).(types.MarkReadResult)
}

func (m *mockMutationService) MarkAllRead(ctx context.Context, audience types.Audience, actorID string, records []types.NotificationRecord) types.BatchResult {
	args := m.Called(ctx, audience, actorID, records)
	return args.Get(0).(types.BatchResult)
}

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListByAudience(ctx context.Context, audience types.Audience) ([]types.NotificationRecord, error) {
	args := m.Called(ctx, audience)
	if recs := args.Get(0); recs != nil {
		return recs.([]types.NotificationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func setupNotificationRouter(mutations *mockMutationService, lister *mockLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())

	h := NewNotificationHandler(mutations, lister)
	r.GET("/v1/notifications", h.ListNotifications)
	r.POST("/v1/notifications/:id/read", h.MarkRead)
	r.POST("/v1/notifications/read-all", h.MarkAllRead)
	r.PATCH("/v1/notifications/:id", h.UpdateNotification)
	r.DELETE("/v1/notifications/:id", h.DeleteNotification)
	return r
}

func TestMarkReadEndpoint_Success(t *testing.T) {
	mutations := new(mockMutationService)
	lister := new(mockLister)
	r := setupNotificationRouter(mutations, lister)

	mutations.On("MarkRead", mock.Anything, types.AudienceStudent, "actor-1", "n1").
		Return(types.MarkReadResult{Success: true, Local: true, Remote: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/n1/read?audience=student&actorId=actor-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result types.MarkReadResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	mutations.AssertExpectations(t)
}

func TestMarkReadEndpoint_InvalidAudience(t *testing.T) {
	mutations := new(mockMutationService)
	r := setupNotificationRouter(mutations, new(mockLister))

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/n1/read?audience=faculty&actorId=actor-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mutations.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkReadEndpoint_MissingActor(t *testing.T) {
	r := setupNotificationRouter(new(mockMutationService), new(mockLister))

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/n1/read?audience=student", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkReadEndpoint_BothPathsFailed(t *testing.T) {
	mutations := new(mockMutationService)
	r := setupNotificationRouter(mutations, new(mockLister))

	mutations.On("MarkRead", mock.Anything, types.AudienceStudent, "actor-1", "n1").
		Return(types.MarkReadResult{Success: false, Error: "both paths failed"})

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/n1/read?audience=student&actorId=actor-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDeleteEndpoint_AbsentStillSucceeds(t *testing.T) {
	mutations := new(mockMutationService)
	r := setupNotificationRouter(mutations, new(mockLister))

	mutations.On("DeleteOne", mock.Anything, types.AudienceClub, "gone").
		Return(types.MutationResult{Success: true, NotFound: true})

	req := httptest.NewRequest(http.MethodDelete, "/v1/notifications/gone?audience=club", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result types.MutationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.True(t, result.NotFound)
}

func TestUpdateEndpoint_NotFound(t *testing.T) {
	mutations := new(mockMutationService)
	r := setupNotificationRouter(mutations, new(mockLister))

	mutations.On("UpdateOne", mock.Anything, types.AudienceStudent, "ghost", mock.Anything).
		Return(types.MutationResult{Success: false, NotFound: true})

	body := strings.NewReader(`{"read": true}`)
	req := httptest.NewRequest(http.MethodPatch, "/v1/notifications/ghost?audience=student", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateEndpoint_EmptyPatchRejected(t *testing.T) {
	mutations := new(mockMutationService)
	r := setupNotificationRouter(mutations, new(mockLister))

	body := strings.NewReader(`{}`)
	req := httptest.NewRequest(http.MethodPatch, "/v1/notifications/n1?audience=student", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mutations.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkAllReadEndpoint(t *testing.T) {
	mutations := new(mockMutationService)
	lister := new(mockLister)
	r := setupNotificationRouter(mutations, lister)

	records := []types.NotificationRecord{{ID: "a"}, {ID: "b", Read: true}}
	lister.On("ListByAudience", mock.Anything, types.AudienceStudent).Return(records, nil)
	mutations.On("MarkAllRead", mock.Anything, types.AudienceStudent, "actor-1", records).
		Return(types.BatchResult{SuccessCount: 1})

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/read-all?audience=student&actorId=actor-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result types.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.SuccessCount)
}

func TestListEndpoint(t *testing.T) {
	lister := new(mockLister)
	r := setupNotificationRouter(new(mockMutationService), lister)

	lister.On("ListByAudience", mock.Anything, types.AudienceClub).
		Return([]types.NotificationRecord{{ID: "a"}, {ID: "b"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications?audience=club", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}
