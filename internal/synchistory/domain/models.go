// Package domain contains persistence models for per-unit sync outcomes.
package domain

import (
	"context"
	"time"

	"github.com/azerion/cloudledger/internal/partition"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SyncStatus is the terminal outcome of one work-unit execution.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusFail    SyncStatus = "FAIL"
)

// SyncRecord tracks the outcome history of one (job, resource key, window)
// unit. The natural key is upserted, never duplicated; fail_count is
// monotonic unless the job opts into reset-on-success.
type SyncRecord struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	JobName     string            `gorm:"type:text;not null;uniqueIndex:idx_sync_records_unit,priority:1"`
	ResourceKey string            `gorm:"type:text;not null;uniqueIndex:idx_sync_records_unit,priority:2"`
	StartDate   time.Time         `gorm:"not null;uniqueIndex:idx_sync_records_unit,priority:3"`
	EndDate     time.Time         `gorm:"not null;uniqueIndex:idx_sync_records_unit,priority:4"`
	Status      SyncStatus        `gorm:"type:text;not null"`
	FailCount   int               `gorm:"not null;default:0"`
	LastError   *string           `gorm:"type:text"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SyncRecord) TableName() string { return "sync_records" }

// Window reconstructs the date window of the record.
func (r SyncRecord) Window() partition.Window {
	return partition.Window{
		Start: r.StartDate,
		End:   r.EndDate,
		Year:  r.EndDate.Year(),
		Month: r.EndDate.Month(),
	}
}

// Outcome is one work-unit result to be recorded.
type Outcome struct {
	JobName     string
	ResourceKey string
	Window      partition.Window
	Success     bool
	Err         error
	// ResetFailCountOnSuccess clears the failure counter when a unit finally
	// succeeds. Off by default: the counter is treated as a lifetime tally.
	ResetFailCountOnSuccess bool
}

// Repository owns the SyncRecord lifecycle.
type Repository interface {
	HasEverSucceeded(ctx context.Context, jobName, resourceKey string) (bool, error)
	FindRetryCandidates(ctx context.Context, jobName string, resourceKeys []string, maxFailCount int) ([]SyncRecord, error)
	RecordOutcome(ctx context.Context, outcome Outcome) error
}
