// Package servicetype provides the (service code, provider) → category
// reference lookup used during merging.
package servicetype

import (
	"context"
	"sync/atomic"
	"time"

	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
	"go.uber.org/zap"
)

// ServiceType is a reference-data row mapping a provider service code to a
// business category.
type ServiceType struct {
	ID             int64                    `gorm:"primaryKey;autoIncrement"`
	Code           string                   `gorm:"type:text;not null;uniqueIndex:idx_service_types_code,priority:1"`
	CloudProvider  canonicaldomain.Provider `gorm:"type:text;not null;uniqueIndex:idx_service_types_code,priority:2"`
	ParentCategory string                   `gorm:"type:text;not null"`
	CreatedAt      time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ServiceType) TableName() string { return "service_types" }

// Repository loads the full reference set.
type Repository interface {
	ListAll(ctx context.Context) ([]ServiceType, error)
}

type cacheKey struct {
	code     string
	provider canonicaldomain.Provider
}

// Cache is a refresh-then-swap snapshot of the service-type table. Refresh
// replaces the whole map atomically; concurrent readers keep the previous
// snapshot until the swap completes, so a partial view is never observable.
type Cache struct {
	repo     Repository
	log      *zap.Logger
	snapshot atomic.Pointer[map[cacheKey]string]
}

func NewCache(repo Repository, log *zap.Logger) *Cache {
	c := &Cache{
		repo: repo,
		log:  log.Named("servicetype"),
	}
	empty := map[cacheKey]string{}
	c.snapshot.Store(&empty)
	return c
}

// Refresh loads the full reference set and swaps it into place.
func (c *Cache) Refresh(ctx context.Context) error {
	entries, err := c.repo.ListAll(ctx)
	if err != nil {
		return err
	}

	next := make(map[cacheKey]string, len(entries))
	for _, entry := range entries {
		next[cacheKey{code: entry.Code, provider: entry.CloudProvider}] = entry.ParentCategory
	}
	c.snapshot.Store(&next)

	c.log.Info("service type cache refreshed", zap.Int("entries", len(next)))
	return nil
}

// Lookup resolves a (code, provider) pair against the current snapshot.
func (c *Cache) Lookup(code string, provider canonicaldomain.Provider) (string, bool) {
	snapshot := *c.snapshot.Load()
	category, ok := snapshot[cacheKey{code: code, provider: provider}]
	return category, ok
}

// Size returns the entry count of the current snapshot.
func (c *Cache) Size() int {
	return len(*c.snapshot.Load())
}
