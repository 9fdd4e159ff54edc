package domain

import (
	"io"
	"time"
)

// Memo is a short titled note filed under a category.
type Memo struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CategoryID string    `json:"category_id"`
	OwnerID    string    `json:"user_id"`
	ImageURL   *string   `json:"image_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewMemo is the row written on insert.
type NewMemo struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	CategoryID string  `json:"category_id"`
	OwnerID    string  `json:"user_id"`
	ImageURL   *string `json:"image_url,omitempty"`
}

// MemoPatch carries the fields of a memo update. Nil fields are left as
// they are.
type MemoPatch struct {
	Title      *string `json:"title,omitempty"`
	Content    *string `json:"content,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
	ImageURL   *string `json:"image_url,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p MemoPatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.CategoryID == nil && p.ImageURL == nil
}

// ImageFile is an uploaded image attached to a memo.
type ImageFile struct {
	Name string
	Body io.Reader
	Size int64
}
