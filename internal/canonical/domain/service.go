package domain

import (
	"context"
	"errors"
)

// MergeStats reports what happened to one batch of raw rows.
type MergeStats struct {
	Upserted int
	Rejected int
}

// CategoryLookup resolves a (service code, provider) pair to a business
// category. Implemented by the service-type cache.
type CategoryLookup interface {
	Lookup(code string, provider Provider) (string, bool)
}

// Service merges raw provider rows into the canonical ledger.
type Service interface {
	Merge(ctx context.Context, provider Provider, rows []RawRow) (MergeStats, error)
}

var (
	ErrInvalidProvider = errors.New("invalid_provider")
)
