package services

import (
	"context"

	"flowstudio/backend/pkg/models"
)

// Workflows is the application-facing contract consumed by the HTTP and MCP
// layers.
type Workflows interface {
	CreateWorkflow(ctx context.Context, content *models.WorkflowContent, ownerID, author string) (*models.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, skip, limit int) ([]*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, patch *models.WorkflowPatch, baseVersion *int, author string) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) (bool, error)
	ShareWorkflow(ctx context.Context, id, ownerID string) (*ShareResult, error)
	GetSharedWorkflow(ctx context.Context, token string) (*models.Workflow, error)
	ExportWorkflow(ctx context.Context, id string) (*models.WorkflowContent, error)
}
