// Package domain holds the provider-agnostic billing schema.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Provider identifies a cloud vendor in the canonical ledger.
type Provider string

const (
	ProviderAWS    Provider = "AWS"
	ProviderGCP    Provider = "GCP"
	ProviderHuawei Provider = "HUAWEI"
)

// Billing line types as reported by the provider exports.
const (
	BillingTypeUsage    = "Usage"
	BillingTypeFee      = "Fee"
	BillingTypeDiscount = "Discount"
	BillingTypeTax      = "Tax"
	BillingTypeCredit   = "Credit"
)

// UnknownCategory is the sentinel bucket for usage lines whose service code
// is not modeled, so unmapped spend stays visible in aggregates.
const UnknownCategory = "Unknown"

// CanonicalBillingRow is one day of spend for one service on one account,
// normalized across providers.
type CanonicalBillingRow struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	UsageDate        time.Time       `gorm:"not null;uniqueIndex:idx_canonical_rows_natural,priority:1"`
	CloudProvider    Provider        `gorm:"type:text;not null;uniqueIndex:idx_canonical_rows_natural,priority:2"`
	BillingAccountID string          `gorm:"type:text;not null;uniqueIndex:idx_canonical_rows_natural,priority:3"`
	UsageAccountID   string          `gorm:"type:text;not null;uniqueIndex:idx_canonical_rows_natural,priority:4"`
	ServiceCode      string          `gorm:"type:text;not null;uniqueIndex:idx_canonical_rows_natural,priority:5"`
	BillingType      string          `gorm:"type:text;not null;uniqueIndex:idx_canonical_rows_natural,priority:6"`
	OutsideOfMonth   bool            `gorm:"not null;uniqueIndex:idx_canonical_rows_natural,priority:7"`
	UsageAccountName string          `gorm:"type:text"`
	ServiceName      string          `gorm:"type:text"`
	ParentCategory   string          `gorm:"type:text"`
	InternalCost     decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	ExternalCost     decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CanonicalBillingRow) TableName() string { return "canonical_billing_rows" }

// RawRow is a provider export line before normalization.
type RawRow struct {
	UsageDate        time.Time
	BillingAccountID string
	UsageAccountID   string
	UsageAccountName string
	ServiceCode      string
	ServiceName      string
	BillingType      string
	InternalCost     decimal.Decimal
	ExternalCost     decimal.Decimal
	// OutsideOfMonth marks spillover: usage incurred in one month but posted
	// to a later billing month.
	OutsideOfMonth bool
}
