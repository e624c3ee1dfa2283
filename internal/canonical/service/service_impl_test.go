package service

import (
	"context"
	"testing"
	"time"

	"github.com/azerion/cloudledger/internal/canonical/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type staticLookup map[string]string

func (l staticLookup) Lookup(code string, _ domain.Provider) (string, bool) {
	category, ok := l[code]
	return category, ok
}

func newMerger(t *testing.T, categories staticLookup) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.CanonicalBillingRow{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Categories: categories,
	}), db
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func usageRow(day int, account, code string, internal, external string) domain.RawRow {
	return domain.RawRow{
		UsageDate:        time.Date(2025, time.March, day, 0, 0, 0, 0, time.UTC),
		BillingAccountID: "payer-1",
		UsageAccountID:   account,
		ServiceCode:      code,
		BillingType:      domain.BillingTypeUsage,
		InternalCost:     dec(internal),
		ExternalCost:     dec(external),
	}
}

func allRows(t *testing.T, db *gorm.DB) []domain.CanonicalBillingRow {
	t.Helper()
	var rows []domain.CanonicalBillingRow
	require.NoError(t, db.Order("usage_date, service_code").Find(&rows).Error)
	return rows
}

func TestMergeCategorizesAndUpserts(t *testing.T) {
	merger, db := newMerger(t, staticLookup{"AmazonEC2": "Compute"})

	stats, err := merger.Merge(context.Background(), domain.ProviderAWS, []domain.RawRow{
		usageRow(5, "acct-1", "AmazonEC2", "60.00", "80.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Upserted)
	assert.Zero(t, stats.Rejected)

	rows := allRows(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, "Compute", rows[0].ParentCategory)
	assert.Equal(t, "AmazonEC2", rows[0].ServiceCode)
	assert.True(t, rows[0].InternalCost.Equal(dec("60.00")))
}

func TestMergeIsIdempotent(t *testing.T) {
	merger, db := newMerger(t, staticLookup{"AmazonEC2": "Compute"})
	input := []domain.RawRow{
		usageRow(5, "acct-1", "AmazonEC2", "60.00", "80.00"),
		usageRow(6, "acct-1", "AmazonEC2", "61.00", "81.00"),
	}

	for i := 0; i < 3; i++ {
		_, err := merger.Merge(context.Background(), domain.ProviderAWS, input)
		require.NoError(t, err)
	}

	rows := allRows(t, db)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].ExternalCost.Equal(dec("80.00")))
	assert.True(t, rows[1].ExternalCost.Equal(dec("81.00")))
}

func TestMergeOverwritesCostsOnRerun(t *testing.T) {
	merger, db := newMerger(t, staticLookup{"AmazonEC2": "Compute"})

	_, err := merger.Merge(context.Background(), domain.ProviderAWS, []domain.RawRow{
		usageRow(5, "acct-1", "AmazonEC2", "60.00", "80.00"),
	})
	require.NoError(t, err)

	// A later re-fetch of the same window carries corrected amounts.
	_, err = merger.Merge(context.Background(), domain.ProviderAWS, []domain.RawRow{
		usageRow(5, "acct-1", "AmazonEC2", "65.00", "85.00"),
	})
	require.NoError(t, err)

	rows := allRows(t, db)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].InternalCost.Equal(dec("65.00")))
	assert.True(t, rows[0].ExternalCost.Equal(dec("85.00")))
}

func TestMergeUnknownBucketCollapsesUnmodeledUsage(t *testing.T) {
	merger, db := newMerger(t, staticLookup{})

	stats, err := merger.Merge(context.Background(), domain.ProviderGCP, []domain.RawRow{
		usageRow(5, "proj-1", "some-new-sku", "10.00", "12.00"),
		usageRow(5, "proj-1", "another-sku", "5.00", "6.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Upserted)

	rows := allRows(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.UnknownCategory, rows[0].ServiceCode)
	assert.Equal(t, domain.UnknownCategory, rows[0].ParentCategory)
	assert.True(t, rows[0].InternalCost.Equal(dec("15.00")), "got %s", rows[0].InternalCost)
	assert.True(t, rows[0].ExternalCost.Equal(dec("18.00")), "got %s", rows[0].ExternalCost)
}

func TestMergeUncategorizedNonUsageKeepsCode(t *testing.T) {
	merger, db := newMerger(t, staticLookup{})

	row := usageRow(5, "acct-1", "SupportFee", "3.00", "3.00")
	row.BillingType = domain.BillingTypeFee
	_, err := merger.Merge(context.Background(), domain.ProviderAWS, []domain.RawRow{row})
	require.NoError(t, err)

	rows := allRows(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, "SupportFee", rows[0].ServiceCode)
	assert.Empty(t, rows[0].ParentCategory)
}

func TestMergeRejectsRowsMissingNaturalKeyFields(t *testing.T) {
	merger, db := newMerger(t, staticLookup{"AmazonEC2": "Compute"})

	bad := usageRow(5, "", "AmazonEC2", "1.00", "1.00")
	good := usageRow(5, "acct-1", "AmazonEC2", "2.00", "2.00")

	stats, err := merger.Merge(context.Background(), domain.ProviderAWS, []domain.RawRow{bad, good})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Upserted)

	rows := allRows(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, "acct-1", rows[0].UsageAccountID)
}

func TestMergeSpilloverRowsAreSeparate(t *testing.T) {
	merger, db := newMerger(t, staticLookup{"AmazonEC2": "Compute"})

	spill := usageRow(5, "acct-1", "AmazonEC2", "4.00", "5.00")
	spill.OutsideOfMonth = true
	_, err := merger.Merge(context.Background(), domain.ProviderAWS, []domain.RawRow{
		usageRow(5, "acct-1", "AmazonEC2", "60.00", "80.00"),
		spill,
	})
	require.NoError(t, err)

	rows := allRows(t, db)
	require.Len(t, rows, 2)
}

func TestMergeValidatesProvider(t *testing.T) {
	merger, _ := newMerger(t, staticLookup{})

	_, err := merger.Merge(context.Background(), "", []domain.RawRow{usageRow(5, "acct", "code", "1", "1")})
	assert.ErrorIs(t, err, domain.ErrInvalidProvider)
}
