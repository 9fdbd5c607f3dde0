package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowstudio/backend/pkg/models"
)

const workflowColumns = `id, owner_id, name, description, nodes, edges, metadata,
	version, is_public, share_token, last_modified_by, update_log, created_at, updated_at`

// PostgresWorkflowStore is a PostgreSQL implementation of the WorkflowStore
// interface. Correctness under concurrent writers rests entirely on the
// conditional UPDATE in Update: the version check and the write are one
// atomic statement, never a check followed by an unconditional write.
type PostgresWorkflowStore struct {
	db *pgxpool.Pool
}

// NewPostgresWorkflowStore creates a new PostgresWorkflowStore.
func NewPostgresWorkflowStore(db *pgxpool.Pool) *PostgresWorkflowStore {
	return &PostgresWorkflowStore{db: db}
}

// Create inserts a new workflow at version 1 with a single audit entry.
func (s *PostgresWorkflowStore) Create(ctx context.Context, content *models.WorkflowContent, ownerID, author string) (*models.Workflow, error) {
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

	_, err := s.db.Exec(ctx, `INSERT INTO workflows
		(id, owner_id, name, description, nodes, edges, metadata, version,
		 is_public, share_token, last_modified_by, update_log, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		wf.ID, wf.OwnerID, wf.Name, wf.Description, wf.Nodes, wf.Edges, wf.Metadata,
		wf.Version, wf.IsPublic, wf.ShareToken, wf.LastModifiedBy, wf.UpdateLog,
		wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert workflow: %w", err)
	}
	return wf, nil
}

// Get retrieves a workflow by its ID.
func (s *PostgresWorkflowStore) Get(ctx context.Context, id string) (*models.Workflow, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	return scanWorkflow(row)
}

// List returns workflows ordered by creation time, newest first.
func (s *PostgresWorkflowStore) List(ctx context.Context, skip, limit int) ([]*models.Workflow, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+workflowColumns+` FROM workflows ORDER BY created_at DESC OFFSET $1 LIMIT $2`,
		skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// Update applies a sparse patch under optimistic locking. The version bump,
// the content merge and the audit append ride on one conditional UPDATE whose
// WHERE clause re-verifies the version read in the load step; losing that
// race yields a ConflictError built from a fresh reload, never from the
// stale row.
func (s *PostgresWorkflowStore) Update(ctx context.Context, id string, patch *models.WorkflowPatch, baseVersion *int, author string) (*models.Workflow, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if baseVersion != nil && *baseVersion != current.Version {
		return nil, &ConflictError{
			CurrentVersion:   current.Version,
			SubmittedVersion: *baseVersion,
			LastModifiedBy:   current.LastModifiedBy,
			Current:          current,
		}
	}

	if patch.IsEmpty() {
		return current, nil
	}

	observed := current.Version
	now := time.Now().UTC()

	next := *current
	patch.Apply(&next)
	next.Version = observed + 1
	next.UpdatedAt = now
	next.LastModifiedBy = author
	next.UpdateLog = appendEntry(current.UpdateLog, models.UpdateEntry{
		Who:              author,
		When:             now,
		ResultingVersion: next.Version,
	})

	tag, err := s.db.Exec(ctx, `UPDATE workflows SET
			name = $1, description = $2, nodes = $3, edges = $4, metadata = $5,
			version = $6, last_modified_by = $7, update_log = $8, updated_at = $9
		WHERE id = $10 AND version = $11`,
		next.Name, next.Description, next.Nodes, next.Edges, next.Metadata,
		next.Version, next.LastModifiedBy, next.UpdateLog, next.UpdatedAt,
		id, observed)
	if err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// A concurrent writer got in between the load and the
		// conditional write. Report the state it left behind.
		fresh, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		submitted := observed
		if baseVersion != nil {
			submitted = *baseVersion
		}
		return nil, &ConflictError{
			CurrentVersion:   fresh.Version,
			SubmittedVersion: submitted,
			LastModifiedBy:   fresh.LastModifiedBy,
			Current:          fresh,
		}
	}

	return &next, nil
}

// Delete removes a workflow, reporting whether it existed.
func (s *PostgresWorkflowStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete workflow: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// EnsureShareToken returns the existing share token or mints a new one,
// marking the workflow public. Minting is guarded by `share_token IS NULL`
// so two concurrent callers converge on a single token.
func (s *PostgresWorkflowStore) EnsureShareToken(ctx context.Context, id, ownerID string) (string, error) {
	var (
		owner    string
		token    *string
		isPublic bool
	)
	err := s.db.QueryRow(ctx,
		`SELECT owner_id, share_token, is_public FROM workflows WHERE id = $1`, id).
		Scan(&owner, &token, &isPublic)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load share state: %w", err)
	}
	if owner != ownerID {
		return "", ErrDenied
	}

	if token != nil {
		if !isPublic {
			if _, err := s.db.Exec(ctx,
				`UPDATE workflows SET is_public = TRUE WHERE id = $1`, id); err != nil {
				return "", fmt.Errorf("mark workflow public: %w", err)
			}
		}
		return *token, nil
	}

	minted := uuid.New().String()
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET share_token = $2, is_public = TRUE
		 WHERE id = $1 AND share_token IS NULL`, id, minted)
	if err != nil {
		return "", fmt.Errorf("mint share token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the mint race; the winner's token is authoritative.
		err := s.db.QueryRow(ctx,
			`SELECT share_token FROM workflows WHERE id = $1`, id).Scan(&token)
		if errors.Is(err, pgx.ErrNoRows) || token == nil {
			return "", ErrNotFound
		}
		if err != nil {
			return "", fmt.Errorf("reload share token: %w", err)
		}
		return *token, nil
	}
	return minted, nil
}

// GetByShareToken resolves a public workflow by its share token.
func (s *PostgresWorkflowStore) GetByShareToken(ctx context.Context, token string) (*models.Workflow, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE share_token = $1 AND is_public = TRUE`,
		token)
	return scanWorkflow(row)
}

// Ping verifies the database is reachable.
func (s *PostgresWorkflowStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var wf models.Workflow
	err := row.Scan(
		&wf.ID,
		&wf.OwnerID,
		&wf.Name,
		&wf.Description,
		&wf.Nodes,
		&wf.Edges,
		&wf.Metadata,
		&wf.Version,
		&wf.IsPublic,
		&wf.ShareToken,
		&wf.LastModifiedBy,
		&wf.UpdateLog,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	return &wf, nil
}

// appendEntry appends an audit entry and trims the log to the most recent
// UpdateLogLimit entries, evicting from the head.
func appendEntry(log []models.UpdateEntry, entry models.UpdateEntry) []models.UpdateEntry {
	out := make([]models.UpdateEntry, 0, len(log)+1)
	out = append(out, log...)
	out = append(out, entry)
	if len(out) > models.UpdateLogLimit {
		out = out[len(out)-models.UpdateLogLimit:]
	}
	return out
}
