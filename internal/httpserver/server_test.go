package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/revflow"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
)

func newTestService(t *testing.T) *revflow.Service {
	t.Helper()
	srv, err := revflow.New()
	require.NoError(t, err)
	require.NoError(t, srv.RegisterWorkflow(&model.WorkflowConfig{
		ID:                "memo",
		DocumentTypes:     []string{"memo"},
		RequiredRoles:     []string{"editor"},
		MinimumReviewers:  1,
		RequiredApprovals: 1,
		Stages:            []*model.Stage{{Number: 1, RequiredRole: "editor"}},
		Automation:        model.Automation{AutoAssignment: true},
		IsActive:          true,
	}))
	require.NoError(t, srv.Directory().Replace([]*model.ReviewerProfile{
		{ID: "ed-1", Roles: []string{"editor"}, IsActive: true},
	}))
	return srv
}

type call struct {
	method string
	path   string
	body   interface{}
	actor  string
	token  string
}

func do(t *testing.T, handler http.Handler, c call) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, bytes.NewReader(body.Bytes()))
	if c.actor != "" {
		req.Header.Set(ActorHeader, c.actor)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	result := map[string]interface{}{}
	_ = json.Unmarshal(w.Body.Bytes(), &result)
	return w, result
}

func TestServer_SessionLifecycle(t *testing.T) {
	handler := New(newTestService(t), "").Router()

	w, _ := do(t, handler, call{method: http.MethodPost, path: "/sessions", body: map[string]string{"documentId": "d1", "documentType": "memo", "workflowId": "memo"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, created := do(t, handler, call{method: http.MethodPost, path: "/sessions", actor: "author", body: map[string]string{"documentId": "d1", "documentType": "memo", "workflowId": "memo"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := created["id"].(string)
	assert.Equal(t, string(model.StatusAssigned), created["status"])

	w, _ = do(t, handler, call{method: http.MethodGet, path: "/sessions/missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, round := do(t, handler, call{method: http.MethodPost, path: "/sessions/" + id + "/rounds", actor: "ed-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 1, round["roundNumber"])

	testCases := []struct {
		name   string
		body   map[string]interface{}
		status int
	}{
		{name: "score out of range", body: map[string]interface{}{"decision": "approve", "qualityScore": 120, "complianceScore": 90}, status: http.StatusUnprocessableEntity},
		{name: "approve", body: map[string]interface{}{"decision": "approve", "qualityScore": 90, "complianceScore": 90}, status: http.StatusOK},
		{name: "retry", body: map[string]interface{}{"decision": "approve", "qualityScore": 90, "complianceScore": 90}, status: http.StatusOK},
		{name: "conflicting decision", body: map[string]interface{}{"decision": "reject", "qualityScore": 90, "complianceScore": 90}, status: http.StatusConflict},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, _ := do(t, handler, call{method: http.MethodPost, path: "/sessions/" + id + "/rounds/1/close", actor: "ed-1", body: tc.body})
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}

	w, summary := do(t, handler, call{method: http.MethodGet, path: "/sessions/" + id + "/summary"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(model.StatusCompleted), summary["status"])

	w, _ = do(t, handler, call{method: http.MethodGet, path: "/sessions?status=completed"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_JWT(t *testing.T) {
	handler := New(newTestService(t), "s3cret").Router()
	sign := func(secret, subject string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject}).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	body := map[string]string{"documentId": "d1", "documentType": "memo", "workflowId": "memo"}

	testCases := []struct {
		name   string
		call   call
		status int
	}{
		{name: "valid token", call: call{token: sign("s3cret", "author")}, status: http.StatusCreated},
		{name: "wrong secret", call: call{token: sign("other", "author")}, status: http.StatusUnauthorized},
		{name: "no subject", call: call{token: sign("s3cret", "")}, status: http.StatusUnauthorized},
		{name: "header is ignored", call: call{actor: "author"}, status: http.StatusUnauthorized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.call.method = http.MethodPost
			tc.call.path = "/sessions"
			tc.call.body = body
			w, created := do(t, handler, tc.call)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			if tc.status == http.StatusCreated {
				assert.Equal(t, "author", created["createdBy"])
			}
		})
	}
}

func TestServer_Workflows(t *testing.T) {
	handler := New(newTestService(t), "").Router()

	w, _ := do(t, handler, call{method: http.MethodGet, path: "/workflows/memo"})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, handler, call{method: http.MethodGet, path: "/workflows/memo?version=7"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, result := do(t, handler, call{method: http.MethodPost, path: "/workflows/validate", body: map[string]interface{}{"id": "broken"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, result["isValid"])

	w, _ = do(t, handler, call{method: http.MethodPost, path: "/workflows/", actor: "admin", body: map[string]interface{}{"id": "broken"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = do(t, handler, call{method: http.MethodGet, path: "/reviewers/ed-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, handler, call{method: http.MethodGet, path: "/reviewers/nobody"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusOf(t *testing.T) {
	testCases := []struct {
		err    error
		status int
	}{
		{err: fmt.Errorf("%w: s1", types.ErrSessionNotFound), status: http.StatusNotFound},
		{err: &types.ConflictError{SessionID: "s1"}, status: http.StatusConflict},
		{err: types.NewInvalidTransition("s1", "completed", "beginRound", "closed"), status: http.StatusConflict},
		{err: &types.NoEligibleReviewerError{SessionID: "s1", Stage: 1, Role: "legal"}, status: http.StatusUnprocessableEntity},
		{err: types.ErrActorRequired, status: http.StatusUnauthorized},
		{err: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
		{err: fmt.Errorf("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			status, _ := statusOf(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}
