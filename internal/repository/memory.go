package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowstudio/backend/pkg/models"
)

// MemoryWorkflowStore is an in-memory WorkflowStore used by tests and dev
// mode. A single mutex stands in for the database's conditional write; the
// version check and the mutation happen inside one critical section, so the
// CAS semantics match the Postgres implementation.
type MemoryWorkflowStore struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow
}

// NewMemoryWorkflowStore creates an empty MemoryWorkflowStore.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{workflows: make(map[string]*models.Workflow)}
}

// Create allocates a new workflow at version 1 with a single audit entry.
func (s *MemoryWorkflowStore) Create(ctx context.Context, content *models.WorkflowContent, ownerID, author string) (*models.Workflow, error) {
	if content == nil {
		content = &models.WorkflowContent{}
	}
	if author == "" {
		author = ownerID
	}

	now := time.Now().UTC()
	wf := &models.Workflow{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Name:           content.Name,
		Description:    content.Description,
		Nodes:          content.Nodes,
		Edges:          content.Edges,
		Metadata:       content.Metadata,
		Version:        1,
		LastModifiedBy: author,
		UpdateLog:      []models.UpdateEntry{{Who: author, When: now, ResultingVersion: 1}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if wf.Nodes == nil {
		wf.Nodes = []models.Node{}
	}
	if wf.Edges == nil {
		wf.Edges = []models.Edge{}
	}
	if wf.Metadata == nil {
		wf.Metadata = map[string]any{}
	}

	s.mu.Lock()
	s.workflows[wf.ID] = wf
	s.mu.Unlock()
	return cloneWorkflow(wf), nil
}

// Get retrieves a workflow by its ID.
func (s *MemoryWorkflowStore) Get(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWorkflow(wf), nil
}

// List returns workflows ordered by creation time, newest first.
func (s *MemoryWorkflowStore) List(ctx context.Context, skip, limit int) ([]*models.Workflow, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	s.mu.Lock()
	all := make([]*models.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		all = append(all, cloneWorkflow(wf))
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if skip >= len(all) {
		return nil, nil
	}
	all = all[skip:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Update applies a sparse patch under optimistic locking.
func (s *MemoryWorkflowStore) Update(ctx context.Context, id string, patch *models.WorkflowPatch, baseVersion *int, author string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}

	if baseVersion != nil && *baseVersion != current.Version {
		return nil, &ConflictError{
			CurrentVersion:   current.Version,
			SubmittedVersion: *baseVersion,
			LastModifiedBy:   current.LastModifiedBy,
			Current:          cloneWorkflow(current),
		}
	}

	if patch.IsEmpty() {
		return cloneWorkflow(current), nil
	}

	now := time.Now().UTC()
	next := cloneWorkflow(current)
	patch.Apply(next)
	next.Version = current.Version + 1
	next.UpdatedAt = now
	next.LastModifiedBy = author
	next.UpdateLog = appendEntry(current.UpdateLog, models.UpdateEntry{
		Who:              author,
		When:             now,
		ResultingVersion: next.Version,
	})

	s.workflows[id] = next
	return cloneWorkflow(next), nil
}

// Delete removes a workflow, reporting whether it existed.
func (s *MemoryWorkflowStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return false, nil
	}
	delete(s.workflows, id)
	return true, nil
}

// EnsureShareToken returns the existing share token or mints a new one.
func (s *MemoryWorkflowStore) EnsureShareToken(ctx context.Context, id, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return "", ErrNotFound
	}
	if wf.OwnerID != ownerID {
		return "", ErrDenied
	}
	if wf.ShareToken != nil {
		wf.IsPublic = true
		return *wf.ShareToken, nil
	}

	token := uuid.New().String()
	wf.ShareToken = &token
	wf.IsPublic = true
	return token, nil
}

// GetByShareToken resolves a public workflow by its share token.
func (s *MemoryWorkflowStore) GetByShareToken(ctx context.Context, token string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wf := range s.workflows {
		if wf.IsPublic && wf.ShareToken != nil && *wf.ShareToken == token {
			return cloneWorkflow(wf), nil
		}
	}
	return nil, ErrNotFound
}

// Ping always succeeds for the in-memory store.
func (s *MemoryWorkflowStore) Ping(ctx context.Context) error {
	return nil
}

func cloneWorkflow(wf *models.Workflow) *models.Workflow {
	out := *wf
	out.Nodes = append([]models.Node(nil), wf.Nodes...)
	out.Edges = append([]models.Edge(nil), wf.Edges...)
	out.UpdateLog = append([]models.UpdateEntry(nil), wf.UpdateLog...)
	if wf.Metadata != nil {
		out.Metadata = make(map[string]any, len(wf.Metadata))
		for k, v := range wf.Metadata {
			out.Metadata[k] = v
		}
	}
	if wf.ShareToken != nil {
		token := *wf.ShareToken
		out.ShareToken = &token
	}
	return &out
}
