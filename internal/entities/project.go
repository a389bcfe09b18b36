package entities

import "time"

type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
	RoleSystem    MessageRole = "SYSTEM"
)

// Message is one turn of a project conversation. Rows are append-only and
// ordered by creation time.
type Message struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Requirement is a versioned requirements document for a project. Approved
// versions are immutable; edits after approval create a new version.
type Requirement struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	VersionInt int        `json:"version_int"`
	ContentMd  string     `json:"content_md"`
	ApprovedAt *time.Time `json:"approved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (r *Requirement) Approved() bool {
	return r != nil && r.ApprovedAt != nil
}

// Plan is the implementation plan derived from an approved requirement.
// One per project, mutable in place.
type Plan struct {
	ProjectID string    `json:"project_id"`
	ContentMd string    `json:"content_md"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
