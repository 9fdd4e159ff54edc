package domain

import "time"

// Category groups memos. Categories are owned by exactly one user.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCategory is the row written on insert; the service assigns id and
// created_at.
type NewCategory struct {
	Name    string `json:"name"`
	OwnerID string `json:"user_id"`
}

// CategoryPatch carries the fields of a category update. Only name can
// change.
type CategoryPatch struct {
	Name *string `json:"name,omitempty"`
}
