// Package services holds the application logic between the HTTP/MCP layers
// and the workflow store.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"flowstudio/backend/internal/cache"
	"flowstudio/backend/internal/repository"
	"flowstudio/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// ShareResult is returned when a share token is minted or re-read.
type ShareResult struct {
	ShareToken string `json:"share_token"`
	IsPublic   bool   `json:"is_public"`
}

// WorkflowService coordinates the workflow store, the shared-lookup cache
// and conflict metrics. It adds no locking of its own; all write-write
// coordination lives in the store's conditional update.
type WorkflowService struct {
	store     repository.WorkflowStore
	shared    *cache.SharedWorkflowCache
	logger    Logger
	conflicts metric.Int64Counter
}

// NewWorkflowService creates a new WorkflowService. The cache may be nil
// when Redis is not configured.
func NewWorkflowService(store repository.WorkflowStore, shared *cache.SharedWorkflowCache, logger Logger) *WorkflowService {
	meter := otel.Meter("flowstudio/backend/services")
	conflicts, _ := meter.Int64Counter("workflow_update_conflicts_total",
		metric.WithDescription("Number of workflow updates rejected by the optimistic lock"))

	return &WorkflowService{
		store:     store,
		shared:    shared,
		logger:    logger,
		conflicts: conflicts,
	}
}

// CreateWorkflow creates a new workflow owned by ownerID.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, content *models.WorkflowContent, ownerID, author string) (*models.Workflow, error) {
	wf, err := s.store.Create(ctx, content, ownerID, author)
	if err != nil {
		return nil, err
	}
	s.logger.Info("workflow created", "id", wf.ID, "owner", ownerID)
	return wf, nil
}

// GetWorkflow returns the workflow's current state.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return s.store.Get(ctx, id)
}

// ListWorkflows returns workflows newest first. All authenticated users see
// all workflows (team collaboration mode).
func (s *WorkflowService) ListWorkflows(ctx context.Context, skip, limit int) ([]*models.Workflow, error) {
	return s.store.List(ctx, skip, limit)
}

// UpdateWorkflow applies a versioned update. Conflicts are counted and
// passed through untouched so the HTTP layer can build its 409 payload.
func (s *WorkflowService) UpdateWorkflow(ctx context.Context, id string, patch *models.WorkflowPatch, baseVersion *int, author string) (*models.Workflow, error) {
	wf, err := s.store.Update(ctx, id, patch, baseVersion, author)
	if err != nil {
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) {
			s.conflicts.Add(ctx, 1)
			s.logger.Info("workflow update conflict",
				"id", id,
				"current_version", conflict.CurrentVersion,
				"submitted_version", conflict.SubmittedVersion,
				"last_modified_by", conflict.LastModifiedBy)
		}
		return nil, err
	}

	if wf.ShareToken != nil {
		if err := s.shared.Invalidate(ctx, *wf.ShareToken); err != nil {
			s.logger.Error("failed to invalidate shared cache", "id", id, "error", err)
		}
	}
	return wf, nil
}

// DeleteWorkflow removes a workflow, reporting whether it existed.
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, id string) (bool, error) {
	wf, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted && wf.ShareToken != nil {
		if err := s.shared.Invalidate(ctx, *wf.ShareToken); err != nil {
			s.logger.Error("failed to invalidate shared cache", "id", id, "error", err)
		}
	}
	return deleted, nil
}

// ShareWorkflow mints (or re-reads) the workflow's share token. Only the
// owner may share.
func (s *WorkflowService) ShareWorkflow(ctx context.Context, id, ownerID string) (*ShareResult, error) {
	token, err := s.store.EnsureShareToken(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return &ShareResult{ShareToken: token, IsPublic: true}, nil
}

// GetSharedWorkflow resolves a public workflow by share token, reading
// through the cache when one is configured.
func (s *WorkflowService) GetSharedWorkflow(ctx context.Context, token string) (*models.Workflow, error) {
	if wf, err := s.shared.Get(ctx, token); err != nil {
		s.logger.Error("shared cache read failed", "error", err)
	} else if wf != nil {
		return wf, nil
	}

	wf, err := s.store.GetByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.shared.Set(ctx, token, wf); err != nil {
		s.logger.Error("shared cache write failed", "error", err)
	}
	return wf, nil
}

// ExportWorkflow returns the portable content of a workflow, stripped of
// identity, ownership and timestamps.
func (s *WorkflowService) ExportWorkflow(ctx context.Context, id string) (*models.WorkflowContent, error) {
	wf, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.WorkflowContent{
		Name:        wf.Name,
		Description: wf.Description,
		Nodes:       wf.Nodes,
		Edges:       wf.Edges,
		Metadata:    wf.Metadata,
	}, nil
}
