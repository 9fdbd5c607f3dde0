// Package models defines the domain models for the workflow service
package models

import (
	"time"
)

// UpdateLogLimit bounds the per-workflow audit trail. When a successful
// update would push the log past this size, the oldest entries are evicted.
const UpdateLogLimit = 50

// Node is a single step on the design canvas.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
	PositionX  *float64       `json:"position_x,omitempty"`
	PositionY  *float64       `json:"position_y,omitempty"`
}

// Edge connects two nodes on the canvas.
type Edge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	Label        *string        `json:"label,omitempty"`
	SourceHandle *string        `json:"source_handle,omitempty"`
	TargetHandle *string        `json:"target_handle,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// UpdateEntry records one successful write to a workflow.
type UpdateEntry struct {
	Who              string    `json:"who"`
	When             time.Time `json:"when"`
	ResultingVersion int       `json:"resulting_version"`
}

// Workflow is the stored document for a designed workflow. Version starts at
// 1 and increases by exactly one per successful update; writers must present
// the version they based their edit on so conflicting edits are rejected
// instead of silently overwritten.
type Workflow struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Nodes          []Node         `json:"nodes"`
	Edges          []Edge         `json:"edges"`
	Metadata       map[string]any `json:"metadata"`
	Version        int            `json:"version"`
	IsPublic       bool           `json:"is_public"`
	ShareToken     *string        `json:"share_token,omitempty"`
	LastModifiedBy string         `json:"last_modified_by,omitempty"`
	UpdateLog      []UpdateEntry  `json:"update_log,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// WorkflowContent carries the caller-supplied fields at creation time.
type WorkflowContent struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	Metadata    map[string]any `json:"metadata"`
}

// WorkflowPatch is a sparse update. A nil field is absent and leaves the
// stored value untouched; a pointer to a zero value explicitly clears it.
type WorkflowPatch struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Nodes       *[]Node         `json:"nodes,omitempty"`
	Edges       *[]Edge         `json:"edges,omitempty"`
	Metadata    *map[string]any `json:"metadata,omitempty"`
}

// IsEmpty reports whether the patch touches no fields at all.
func (p *WorkflowPatch) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Name == nil && p.Description == nil && p.Nodes == nil &&
		p.Edges == nil && p.Metadata == nil
}

// Apply copies the set fields of the patch onto the workflow content.
func (p *WorkflowPatch) Apply(w *Workflow) {
	if p == nil {
		return
	}
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.Description != nil {
		w.Description = *p.Description
	}
	if p.Nodes != nil {
		w.Nodes = *p.Nodes
	}
	if p.Edges != nil {
		w.Edges = *p.Edges
	}
	if p.Metadata != nil {
		w.Metadata = *p.Metadata
	}
}
