// Package repository reads canonical aggregates and pricing data and writes
// customer daily costs.
package repository

import (
	"context"
	"time"

	"github.com/azerion/cloudledger/internal/allocation/domain"
	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewRepository(conn *gorm.DB, genID *snowflake.Node) domain.Repository {
	return &repository{db: conn, genID: genID}
}

func (r *repository) LinkedAccounts(ctx context.Context, productID string) ([]domain.ProductAccount, error) {
	var accounts []domain.ProductAccount
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, product_id, cloud_provider, usage_account_id, created_at, updated_at
		 FROM product_accounts
		 WHERE product_id = ?
		 ORDER BY cloud_provider, usage_account_id`,
		productID,
	).Scan(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) DailyCosts(ctx context.Context, provider canonicaldomain.Provider, usageAccountIDs []string, start, end time.Time) ([]domain.DailyCost, error) {
	if len(usageAccountIDs) == 0 {
		return nil, nil
	}

	var costs []domain.DailyCost
	err := r.db.WithContext(ctx).Raw(
		`SELECT usage_date AS day,
		        outside_of_month,
		        SUM(internal_cost) AS internal_cost,
		        SUM(external_cost) AS external_cost
		 FROM canonical_billing_rows
		 WHERE cloud_provider = ?
		   AND usage_account_id IN ?
		   AND usage_date >= ?
		   AND usage_date <= ?
		 GROUP BY usage_date, outside_of_month
		 ORDER BY usage_date`,
		provider,
		usageAccountIDs,
		start,
		end,
	).Scan(&costs).Error
	if err != nil {
		return nil, err
	}
	return costs, nil
}

// SchedulesInEffect returns the organization's schedules ordered by effective
// start date. Everything starting on or before the range end is returned so
// the schedule already in force when the range begins is included; per-day
// selection happens in the service.
func (r *repository) SchedulesInEffect(ctx context.Context, organizationID string, provider canonicaldomain.Provider, _, end time.Time) ([]domain.PricingSchedule, error) {
	var schedules []domain.PricingSchedule
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, organization_id, cloud_provider, effective_start_date,
		        discount_pct, handling_fee_pct, support_fee_pct, created_at, updated_at
		 FROM pricing_schedules
		 WHERE organization_id = ?
		   AND cloud_provider = ?
		   AND effective_start_date <= ?
		 ORDER BY effective_start_date ASC`,
		organizationID,
		provider,
		end,
	).Scan(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *repository) UpsertDailyCosts(ctx context.Context, rows []domain.CustomerDailyCost) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == 0 {
			rows[i].ID = r.genID.Generate()
		}
		rows[i].CreatedAt = now
		rows[i].UpdatedAt = now
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "day"},
				{Name: "organization_id"},
				{Name: "customer_name"},
				{Name: "cloud_provider"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"organization_name",
				"azerion_cost",
				"customer_cost",
				"is_external",
				"updated_at",
			}),
		}).CreateInBatches(rows, 500).Error
	})
}

func (r *repository) ListEnabledTargets(ctx context.Context) ([]domain.AllocationTarget, error) {
	var targets []domain.AllocationTarget
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, product_id, organization_id, organization_name, customer_name,
		        is_internal, is_exceptional, enabled, created_at, updated_at
		 FROM allocation_targets
		 WHERE enabled = ?
		 ORDER BY customer_name`,
		true,
	).Scan(&targets).Error
	if err != nil {
		return nil, err
	}
	return targets, nil
}
