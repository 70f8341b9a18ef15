// Package repository stores session records for lookup after analysis.
package repository

import (
	"context"

	"github.com/okian/neurobloom/internal/domain/model"
)

// Store provides read/write access to session records.
type Store interface {
	// Put inserts or replaces the record for rec.SessionID.
	Put(ctx context.Context, rec model.Record) error

	// Get returns the record for a session.
	// Returns ErrNotFound if the session is unknown.
	Get(ctx context.Context, sessionID string) (model.Record, error)

	// Recent returns up to n records, most recently submitted first.
	Recent(ctx context.Context, n int) ([]model.Record, error)

	// Count returns the number of sessions held.
	Count(ctx context.Context) int
}
