package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"flowstudio/backend/internal/auth"
	"flowstudio/backend/internal/repository"
	"flowstudio/backend/internal/services"
	"flowstudio/backend/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Service services.Workflows
}

// NewServer creates a new Server.
func NewServer(service services.Workflows) *Server {
	return &Server{Service: service}
}

// RegisterRoutes mounts the authenticated workflow routes on g and the
// public shared-workflow route on public.
func (s *Server) RegisterRoutes(g *echo.Group, public *echo.Group) {
	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PUT("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)
	g.POST("/workflows/:id/share", s.ShareWorkflow)
	g.GET("/workflows/:id/export", s.ExportWorkflow)

	// Share-token reads need no authentication by design.
	public.GET("/workflows/shared/:token", s.GetSharedWorkflow)
}

// updateWorkflowRequest is the PUT body: the sparse patch plus the version
// the caller based its edit on. Omitting version skips the logical check but
// the store's conditional write still guards against racing writers.
type updateWorkflowRequest struct {
	models.WorkflowPatch
	Version *int `json:"version,omitempty"`
}

// conflictResponse is the 409 payload. It carries everything a client needs
// to offer "reload and reapply" instead of treating the rejection as data
// loss: both versions, the last editor, and the full fresh record.
type conflictResponse struct {
	Detail           string           `json:"detail"`
	CurrentVersion   int              `json:"current_version"`
	SubmittedVersion int              `json:"submitted_version"`
	LastModifiedBy   string           `json:"last_modified_by"`
	CurrentWorkflow  *models.Workflow `json:"current_workflow"`
}

// ListWorkflows returns all workflows, newest first (team collaboration
// mode: every authenticated user sees every workflow).
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", 100)

	workflows, err := s.Service.ListWorkflows(ctx, skip, limit)
	if err != nil {
		return problem(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
	if workflows == nil {
		workflows = []*models.Workflow{}
	}
	return c.JSON(http.StatusOK, workflows)
}

// CreateWorkflow creates a new workflow owned by the caller.
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no authenticated principal")
	}

	var content models.WorkflowContent
	if err := c.Bind(&content); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}

	wf, err := s.Service.CreateWorkflow(ctx, &content, principal.ID, principal.Name)
	if err != nil {
		return problem(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
	return c.JSON(http.StatusCreated, wf)
}

// GetWorkflow returns a workflow by ID.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	wf, err := s.Service.GetWorkflow(ctx, c.Param("id"))
	if err != nil {
		return s.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// UpdateWorkflow applies a sparse patch under optimistic locking. A version
// mismatch yields 409 with the conflict payload; the caller decides whether
// to reload and resubmit.
// (PUT /api/v1/workflows/:id)
func (s *Server) UpdateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no authenticated principal")
	}

	var req updateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}

	wf, err := s.Service.UpdateWorkflow(ctx, c.Param("id"), &req.WorkflowPatch, req.Version, principal.Name)
	if err != nil {
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) {
			return c.JSON(http.StatusConflict, conflictResponse{
				Detail:           "Workflow has been modified by another user",
				CurrentVersion:   conflict.CurrentVersion,
				SubmittedVersion: conflict.SubmittedVersion,
				LastModifiedBy:   conflict.LastModifiedBy,
				CurrentWorkflow:  conflict.Current,
			})
		}
		return s.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// DeleteWorkflow removes a workflow. Deletion is unconditional; it does not
// take part in the optimistic-lock protocol.
// (DELETE /api/v1/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	deleted, err := s.Service.DeleteWorkflow(ctx, c.Param("id"))
	if err != nil {
		return problem(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
	if !deleted {
		return problem(c, http.StatusNotFound, "Not Found", "Workflow not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Workflow deleted successfully"})
}

// ShareWorkflow mints (or returns the existing) share token. Owner-only.
// (POST /api/v1/workflows/:id/share)
func (s *Server) ShareWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no authenticated principal")
	}

	result, err := s.Service.ShareWorkflow(ctx, c.Param("id"), principal.ID)
	if err != nil {
		return s.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetSharedWorkflow returns a public workflow by its share token. No auth.
// (GET /api/v1/workflows/shared/:token)
func (s *Server) GetSharedWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	wf, err := s.Service.GetSharedWorkflow(ctx, c.Param("token"))
	if err != nil {
		return s.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// ExportWorkflow returns the portable workflow content as JSON.
// (GET /api/v1/workflows/:id/export)
func (s *Server) ExportWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	content, err := s.Service.ExportWorkflow(ctx, c.Param("id"))
	if err != nil {
		return s.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, content)
}

func (s *Server) workflowError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return problem(c, http.StatusNotFound, "Not Found", "Workflow not found")
	case errors.Is(err, repository.ErrDenied):
		return problem(c, http.StatusForbidden, "Forbidden", "Only the owner may share this workflow")
	default:
		return problem(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
