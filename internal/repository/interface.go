package repository

import (
	"context"

	"flowstudio/backend/pkg/models"
)

// WorkflowStore is the persistence contract for workflow documents. The only
// concurrency-safety mechanism any implementation may rely on is a
// per-document atomic conditional write ("update iff version still equals
// X"); there is no process-wide lock shared between request handlers.
type WorkflowStore interface {
	// Create allocates a new workflow at version 1 with a single audit
	// entry. The author label falls back to ownerID when empty.
	Create(ctx context.Context, content *models.WorkflowContent, ownerID, author string) (*models.Workflow, error)

	// Get returns the current state at the time of the read. It takes no
	// lock; a caller intending to update must submit the version it read
	// and be prepared for a conflict.
	Get(ctx context.Context, id string) (*models.Workflow, error)

	// List returns workflows ordered by creation time, newest first.
	List(ctx context.Context, skip, limit int) ([]*models.Workflow, error)

	// Update applies a sparse patch under optimistic locking. When
	// baseVersion is non-nil and differs from the stored version, or when
	// the conditional write loses a race to a concurrent writer, a
	// *ConflictError is returned carrying the fresh record. An empty patch
	// is a no-op: the current record is returned without a version bump or
	// audit entry. The store never retries a failed write on the caller's
	// behalf.
	Update(ctx context.Context, id string, patch *models.WorkflowPatch, baseVersion *int, author string) (*models.Workflow, error)

	// Delete removes the workflow unconditionally, reporting whether it
	// existed. Deletion is not subject to the version check.
	Delete(ctx context.Context, id string) (bool, error)

	// EnsureShareToken returns the workflow's share token, minting one and
	// marking the workflow public on first use. Only the owner may mint.
	EnsureShareToken(ctx context.Context, id, ownerID string) (string, error)

	// GetByShareToken resolves a public workflow by its share token.
	GetByShareToken(ctx context.Context, token string) (*models.Workflow, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
