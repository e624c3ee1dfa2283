// Package service implements the canonical merger.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/azerion/cloudledger/internal/canonical/domain"
	obsmetrics "github.com/azerion/cloudledger/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Categories domain.CategoryLookup
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	categories domain.CategoryLookup
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("merger"),
		genID:      p.GenID,
		categories: p.Categories,
	}
}

// naturalKeyColumns identify a canonical row; the upsert conflicts on these
// and overwrites only the non-key fields.
var naturalKeyColumns = []clause.Column{
	{Name: "usage_date"},
	{Name: "cloud_provider"},
	{Name: "billing_account_id"},
	{Name: "usage_account_id"},
	{Name: "service_code"},
	{Name: "billing_type"},
	{Name: "outside_of_month"},
}

func (s *service) Merge(ctx context.Context, provider domain.Provider, rows []domain.RawRow) (domain.MergeStats, error) {
	stats := domain.MergeStats{}
	if provider == "" {
		return stats, domain.ErrInvalidProvider
	}
	if len(rows) == 0 {
		return stats, nil
	}

	// Collapsing unmodeled codes into the Unknown bucket can map several raw
	// rows onto one natural key; fold them before the upsert so a single
	// statement never touches the same row twice.
	drafts := make([]domain.CanonicalBillingRow, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i := range rows {
		draft, ok := s.normalize(provider, rows[i])
		if !ok {
			stats.Rejected++
			continue
		}
		key := naturalKey(draft)
		if at, seen := index[key]; seen {
			if draft.ServiceCode == domain.UnknownCategory {
				drafts[at].InternalCost = drafts[at].InternalCost.Add(draft.InternalCost)
				drafts[at].ExternalCost = drafts[at].ExternalCost.Add(draft.ExternalCost)
			} else {
				draft.ID = drafts[at].ID
				drafts[at] = draft
			}
			continue
		}
		index[key] = len(drafts)
		drafts = append(drafts, draft)
	}
	if stats.Rejected > 0 {
		s.log.Warn("rejected malformed rows",
			zap.String("provider", string(provider)),
			zap.Int("rejected", stats.Rejected),
			zap.Int("total", len(rows)),
		)
	}
	obsmetrics.Sync().AddRowsRejected(string(provider), stats.Rejected)
	if len(drafts) == 0 {
		return stats, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: naturalKeyColumns,
			DoUpdates: clause.AssignmentColumns([]string{
				"usage_account_name",
				"service_name",
				"parent_category",
				"internal_cost",
				"external_cost",
				"updated_at",
			}),
		}).CreateInBatches(drafts, 500).Error
	})
	if err != nil {
		return stats, err
	}

	stats.Upserted = len(drafts)
	obsmetrics.Sync().AddRowsMerged(string(provider), stats.Upserted)
	return stats, nil
}

// normalize maps a raw row onto the canonical schema, applying category
// lookup and the Unknown fallback. A row missing any natural-key field is
// rejected individually so one malformed export line cannot block the batch.
func (s *service) normalize(provider domain.Provider, row domain.RawRow) (domain.CanonicalBillingRow, bool) {
	if row.UsageDate.IsZero() ||
		row.BillingAccountID == "" ||
		row.UsageAccountID == "" ||
		row.ServiceCode == "" ||
		row.BillingType == "" {
		s.log.Debug("dropping raw row with missing natural-key field",
			zap.String("provider", string(provider)),
			zap.String("billing_account_id", row.BillingAccountID),
			zap.String("usage_account_id", row.UsageAccountID),
			zap.String("service_code", row.ServiceCode),
			zap.String("billing_type", row.BillingType),
		)
		return domain.CanonicalBillingRow{}, false
	}

	usageDate := row.UsageDate.UTC()
	usageDate = time.Date(usageDate.Year(), usageDate.Month(), usageDate.Day(), 0, 0, 0, 0, time.UTC)

	draft := domain.CanonicalBillingRow{
		ID:               s.genID.Generate(),
		UsageDate:        usageDate,
		CloudProvider:    provider,
		BillingAccountID: row.BillingAccountID,
		UsageAccountID:   row.UsageAccountID,
		UsageAccountName: row.UsageAccountName,
		ServiceCode:      row.ServiceCode,
		ServiceName:      row.ServiceName,
		BillingType:      row.BillingType,
		OutsideOfMonth:   row.OutsideOfMonth,
		InternalCost:     row.InternalCost,
		ExternalCost:     row.ExternalCost,
	}

	category, found := s.categories.Lookup(row.ServiceCode, provider)
	switch {
	case found:
		draft.ParentCategory = category
	case row.BillingType == domain.BillingTypeUsage:
		// Unmodeled usage stays visible under the sentinel bucket.
		draft.ServiceCode = domain.UnknownCategory
		draft.ParentCategory = domain.UnknownCategory
	default:
		// Fee/discount/tax lines keep their code; category stays unset.
	}

	return draft, true
}

func naturalKey(row domain.CanonicalBillingRow) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%t",
		row.UsageDate.Format(time.DateOnly),
		row.CloudProvider,
		row.BillingAccountID,
		row.UsageAccountID,
		row.ServiceCode,
		row.BillingType,
		row.OutsideOfMonth,
	)
}
