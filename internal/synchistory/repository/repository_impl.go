// Package repository persists sync outcome records.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/azerion/cloudledger/internal/synchistory/domain"
	"github.com/azerion/cloudledger/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewRepository(conn *gorm.DB, genID *snowflake.Node) domain.Repository {
	return &repository{db: conn, genID: genID}
}

func (r *repository) HasEverSucceeded(ctx context.Context, jobName, resourceKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM sync_records
		 WHERE job_name = ? AND resource_key = ? AND status = ?`,
		jobName,
		resourceKey,
		domain.SyncStatusSuccess,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) FindRetryCandidates(ctx context.Context, jobName string, resourceKeys []string, maxFailCount int) ([]domain.SyncRecord, error) {
	if len(resourceKeys) == 0 {
		return nil, nil
	}

	var records []domain.SyncRecord
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, job_name, resource_key, start_date, end_date, status,
		        fail_count, last_error, metadata, created_at, updated_at
		 FROM sync_records
		 WHERE job_name = ?
		   AND resource_key IN ?
		   AND status = ?
		   AND fail_count < ?
		 ORDER BY end_date DESC, resource_key ASC`,
		jobName,
		resourceKeys,
		domain.SyncStatusFail,
		maxFailCount,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) RecordOutcome(ctx context.Context, outcome domain.Outcome) error {
	if outcome.JobName == "" || outcome.ResourceKey == "" {
		return errors.New("sync outcome requires job name and resource key")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.recordOutcomeTx(ctx, tx, outcome)
	})
	// A concurrent first outcome for the same unit can race the insert; the
	// losing writer retries once and lands on the update path.
	if db.IsDuplicateKeyErr(err) {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return r.recordOutcomeTx(ctx, tx, outcome)
		})
	}
	return err
}

func (r *repository) recordOutcomeTx(ctx context.Context, tx *gorm.DB, outcome domain.Outcome) error {
	now := time.Now().UTC()

	var existing domain.SyncRecord
	res := tx.WithContext(ctx).Raw(
		`SELECT id, job_name, resource_key, start_date, end_date, status,
		        fail_count, last_error, metadata, created_at, updated_at
		 FROM sync_records
		 WHERE job_name = ? AND resource_key = ? AND start_date = ? AND end_date = ?
		 LIMIT 1`,
		outcome.JobName,
		outcome.ResourceKey,
		outcome.Window.Start,
		outcome.Window.End,
	).Scan(&existing)
	if res.Error != nil {
		return res.Error
	}

	status := domain.SyncStatusSuccess
	var lastError *string
	if !outcome.Success {
		status = domain.SyncStatusFail
		if outcome.Err != nil {
			message := outcome.Err.Error()
			lastError = &message
		}
	}

	if existing.ID == 0 {
		failCount := 0
		if !outcome.Success {
			failCount = 1
		}
		record := domain.SyncRecord{
			ID:          r.genID.Generate(),
			JobName:     outcome.JobName,
			ResourceKey: outcome.ResourceKey,
			StartDate:   outcome.Window.Start,
			EndDate:     outcome.Window.End,
			Status:      status,
			FailCount:   failCount,
			LastError:   lastError,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.WithContext(ctx).Create(&record).Error
	}

	failCount := existing.FailCount
	if outcome.Success {
		if outcome.ResetFailCountOnSuccess {
			failCount = 0
		}
	} else {
		failCount++
	}

	return tx.WithContext(ctx).Exec(
		`UPDATE sync_records
		 SET status = ?, fail_count = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		failCount,
		lastError,
		now,
		existing.ID,
	).Error
}
