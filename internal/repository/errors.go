package repository

import (
	"errors"
	"fmt"

	"flowstudio/backend/pkg/models"
)

var (
	// ErrNotFound is returned when the referenced workflow does not exist.
	ErrNotFound = errors.New("workflow not found")
	// ErrDenied is returned when the caller is not allowed to perform the
	// operation, e.g. minting a share token for someone else's workflow.
	ErrDenied = errors.New("operation not permitted")
)

// ConflictError is returned when an update loses the optimistic-lock race.
// Current always holds the freshly loaded record so the caller can present a
// diff or reload, never the stale state the failed writer started from.
type ConflictError struct {
	CurrentVersion   int
	SubmittedVersion int
	LastModifiedBy   string
	Current          *models.Workflow
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("workflow version conflict: current=%d submitted=%d last_modified_by=%s",
		e.CurrentVersion, e.SubmittedVersion, e.LastModifiedBy)
}
