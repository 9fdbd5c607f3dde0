package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowstudio/backend/internal/auth"
	"flowstudio/backend/internal/repository"
	"flowstudio/backend/internal/services"
	"flowstudio/backend/pkg/models"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

var alice = auth.Principal{ID: "owner-1", Name: "alice", Email: "alice@example.com"}
var mallory = auth.Principal{ID: "intruder", Name: "mallory", Email: "mallory@example.com"}

func newTestServer() (*Server, repository.WorkflowStore) {
	store := repository.NewMemoryWorkflowStore()
	svc := services.NewWorkflowService(store, nil, noopLogger{})
	return NewServer(svc), store
}

// call invokes an echo handler directly with an optional authenticated
// principal and returns the recorder.
func call(t *testing.T, handler echo.HandlerFunc, method, path, body string, principal *auth.Principal, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if principal != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *principal))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for name, value := range params {
		c.SetParamNames(name)
		c.SetParamValues(value)
	}

	require.NoError(t, handler(c))
	return rec
}

func createWorkflow(t *testing.T, s *Server, body string) models.Workflow {
	t.Helper()
	rec := call(t, s.CreateWorkflow, http.MethodPost, "/api/v1/workflows", body, &alice, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var wf models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	return wf
}

func TestCreateWorkflow(t *testing.T) {
	s, _ := newTestServer()

	wf := createWorkflow(t, s, `{"name":"A","description":"first","nodes":[{"id":"n1","type":"trigger","label":"Start"}]}`)
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, "owner-1", wf.OwnerID)
	assert.Equal(t, 1, wf.Version)
	require.Len(t, wf.UpdateLog, 1)
	assert.Equal(t, "alice", wf.UpdateLog[0].Who)
}

func TestCreateWorkflow_Unauthenticated(t *testing.T) {
	s, _ := newTestServer()
	rec := call(t, s.CreateWorkflow, http.MethodPost, "/api/v1/workflows", `{"name":"A"}`, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetWorkflow(t *testing.T) {
	s, _ := newTestServer()
	wf := createWorkflow(t, s, `{"name":"A"}`)

	rec := call(t, s.GetWorkflow, http.MethodGet, "/api/v1/workflows/"+wf.ID, "", &alice,
		map[string]string{"id": wf.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	var got models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, wf.ID, got.ID)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	s, _ := newTestServer()
	rec := call(t, s.GetWorkflow, http.MethodGet, "/api/v1/workflows/missing", "", &alice,
		map[string]string{"id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/problem+json")
}

func TestListWorkflows(t *testing.T) {
	s, _ := newTestServer()
	createWorkflow(t, s, `{"name":"A"}`)
	createWorkflow(t, s, `{"name":"B"}`)

	rec := call(t, s.ListWorkflows, http.MethodGet, "/api/v1/workflows", "", &alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got []models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestListWorkflows_EmptyIsArray(t *testing.T) {
	s, _ := newTestServer()
	rec := call(t, s.ListWorkflows, http.MethodGet, "/api/v1/workflows", "", &alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestUpdateWorkflow(t *testing.T) {
	s, _ := newTestServer()
	wf := createWorkflow(t, s, `{"name":"A","description":"keep me"}`)

	rec := call(t, s.UpdateWorkflow, http.MethodPut, "/api/v1/workflows/"+wf.ID,
		`{"name":"A renamed","version":1}`, &alice, map[string]string{"id": wf.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	var got models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "A renamed", got.Name)
	assert.Equal(t, "keep me", got.Description)
	assert.Len(t, got.UpdateLog, 2)
}

func TestUpdateWorkflow_Conflict(t *testing.T) {
	s, _ := newTestServer()
	wf := createWorkflow(t, s, `{"name":"A"}`)

	rec := call(t, s.UpdateWorkflow, http.MethodPut, "/api/v1/workflows/"+wf.ID,
		`{"name":"from X","version":1}`, &alice, map[string]string{"id": wf.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, s.UpdateWorkflow, http.MethodPut, "/api/v1/workflows/"+wf.ID,
		`{"name":"from Y","version":1}`, &alice, map[string]string{"id": wf.ID})
	require.Equal(t, http.StatusConflict, rec.Code)

	var conflict conflictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, 2, conflict.CurrentVersion)
	assert.Equal(t, 1, conflict.SubmittedVersion)
	assert.Equal(t, "alice", conflict.LastModifiedBy)
	require.NotNil(t, conflict.CurrentWorkflow)
	assert.Equal(t, "from X", conflict.CurrentWorkflow.Name)
}

func TestUpdateWorkflow_EmptyPatchNoOp(t *testing.T) {
	s, _ := newTestServer()
	wf := createWorkflow(t, s, `{"name":"A"}`)

	rec := call(t, s.UpdateWorkflow, http.MethodPut, "/api/v1/workflows/"+wf.ID,
		`{"version":1}`, &alice, map[string]string{"id": wf.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	var got models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Version)
	assert.Len(t, got.UpdateLog, 1)
}

func TestUpdateWorkflow_NotFound(t *testing.T) {
	s, _ := newTestServer()
	rec := call(t, s.UpdateWorkflow, http.MethodPut, "/api/v1/workflows/missing",
		`{"name":"x"}`, &alice, map[string]string{"id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteWorkflow(t *testing.T) {
	s, _ := newTestServer()
	wf := createWorkflow(t, s, `{"name":"A"}`)

	rec := call(t, s.DeleteWorkflow, http.MethodDelete, "/api/v1/workflows/"+wf.ID, "", &alice,
		map[string]string{"id": wf.ID})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deleted successfully")

	rec = call(t, s.DeleteWorkflow, http.MethodDelete, "/api/v1/workflows/"+wf.ID, "", &alice,
		map[string]string{"id": wf.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShareWorkflow(t *testing.T) {
	s, _ := newTestServer()
	wf := createWorkflow(t, s, `{"name":"A"}`)

	rec := call(t, s.ShareWorkflow, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/share", "", &alice,
		map[string]string{"id": wf.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	var first services.ShareResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.NotEmpty(t, first.ShareToken)
	assert.True(t, first.IsPublic)

	// Sharing again returns the identical token.
	rec = call(t, s.ShareWorkflow, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/share", "", &alice,
		map[string]string{"id": wf.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	var second services.ShareResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.ShareToken, second.ShareToken)
}

func TestShareWorkflow_NotOwner(t *testing.T) {
	s, _ := newTestServer()
	wf := createWorkflow(t, s, `{"name":"A"}`)

	rec := call(t, s.ShareWorkflow, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/share", "", &mallory,
		map[string]string{"id": wf.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetSharedWorkflow(t *testing.T) {
	s, store := newTestServer()
	wf := createWorkflow(t, s, `{"name":"A"}`)

	token, err := store.EnsureShareToken(context.Background(), wf.ID, alice.ID)
	require.NoError(t, err)

	// No principal: the shared read is public.
	rec := call(t, s.GetSharedWorkflow, http.MethodGet,
		fmt.Sprintf("/api/v1/workflows/shared/%s", token), "", nil,
		map[string]string{"token": token})
	assert.Equal(t, http.StatusOK, rec.Code)

	var got models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, wf.ID, got.ID)

	rec = call(t, s.GetSharedWorkflow, http.MethodGet,
		"/api/v1/workflows/shared/bogus", "", nil,
		map[string]string{"token": "bogus"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportWorkflow(t *testing.T) {
	s, _ := newTestServer()
	wf := createWorkflow(t, s, `{"name":"A","description":"exportable","metadata":{"category":"demo"}}`)

	rec := call(t, s.ExportWorkflow, http.MethodGet, "/api/v1/workflows/"+wf.ID+"/export", "", &alice,
		map[string]string{"id": wf.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	var exported map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	assert.Equal(t, "A", exported["name"])
	assert.Equal(t, "exportable", exported["description"])
	assert.NotContains(t, exported, "id")
	assert.NotContains(t, exported, "owner_id")
	assert.NotContains(t, exported, "created_at")
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer()
	rec := call(t, s.HandleHealth, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
