// Package storage keeps prescription drafts in memory and persists saved
// prescriptions to SQLite.
package storage

import "errors"

var (
	ErrDraftNotFound   = errors.New("draft not found")
	ErrVersionConflict = errors.New("draft was modified concurrently")
	ErrRecordNotFound  = errors.New("record not found")
)
