// Package domain holds the pricing and customer-cost models for cost
// allocation.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PricingSchedule is one effective-dated commercial agreement for an
// organization on one provider. The schedule applicable to day D is the one
// with the latest effective start date not after D.
type PricingSchedule struct {
	ID                 snowflake.ID             `gorm:"primaryKey"`
	OrganizationID     string                   `gorm:"type:text;not null;index:idx_pricing_schedules_org"`
	CloudProvider      canonicaldomain.Provider `gorm:"type:text;not null;index:idx_pricing_schedules_org"`
	EffectiveStartDate time.Time                `gorm:"not null"`
	DiscountPct        decimal.Decimal          `gorm:"type:numeric(8,4);not null"`
	HandlingFeePct     decimal.Decimal          `gorm:"type:numeric(8,4);not null"`
	SupportFeePct      decimal.Decimal          `gorm:"type:numeric(8,4);not null"`
	CreatedAt          time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PricingSchedule) TableName() string { return "pricing_schedules" }

// CustomerDailyCost is one day of attributed spend for one customer on one
// provider: what it costs us and what we charge.
type CustomerDailyCost struct {
	ID               snowflake.ID             `gorm:"primaryKey"`
	Day              time.Time                `gorm:"not null;uniqueIndex:idx_customer_daily_costs_natural,priority:1"`
	OrganizationID   string                   `gorm:"type:text;not null;uniqueIndex:idx_customer_daily_costs_natural,priority:2"`
	CustomerName     string                   `gorm:"type:text;not null;uniqueIndex:idx_customer_daily_costs_natural,priority:3"`
	CloudProvider    canonicaldomain.Provider `gorm:"type:text;not null;uniqueIndex:idx_customer_daily_costs_natural,priority:4"`
	OrganizationName string                   `gorm:"type:text"`
	AzerionCost      decimal.Decimal          `gorm:"type:numeric(20,6);not null"`
	CustomerCost     decimal.Decimal          `gorm:"type:numeric(20,6);not null"`
	IsExternal       bool                     `gorm:"not null"`
	CreatedAt        time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CustomerDailyCost) TableName() string { return "customer_daily_costs" }

// ProductAccount links a product to one provider usage account whose spend it
// owns.
type ProductAccount struct {
	ID             snowflake.ID             `gorm:"primaryKey"`
	ProductID      string                   `gorm:"type:text;not null;uniqueIndex:idx_product_accounts_natural,priority:1"`
	CloudProvider  canonicaldomain.Provider `gorm:"type:text;not null;uniqueIndex:idx_product_accounts_natural,priority:2"`
	UsageAccountID string                   `gorm:"type:text;not null;uniqueIndex:idx_product_accounts_natural,priority:3"`
	CreatedAt      time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProductAccount) TableName() string { return "product_accounts" }

// AllocationTarget drives the scheduled allocation job: one row per customer
// organization to allocate each run.
type AllocationTarget struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	ProductID        string       `gorm:"type:text;not null"`
	OrganizationID   string       `gorm:"type:text;not null"`
	OrganizationName string       `gorm:"type:text"`
	CustomerName     string       `gorm:"type:text;not null"`
	IsInternal       bool         `gorm:"not null"`
	IsExceptional    bool         `gorm:"not null"`
	Enabled          bool         `gorm:"not null;default:true"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AllocationTarget) TableName() string { return "allocation_targets" }

// DailyCost is one day of aggregated canonical spend for a set of accounts on
// one provider, split by the spillover flag.
type DailyCost struct {
	Day            time.Time
	OutsideOfMonth bool
	InternalCost   decimal.Decimal
	ExternalCost   decimal.Decimal
}

// AllocateRequest describes one allocation invocation.
type AllocateRequest struct {
	ProductID        string
	OrganizationID   string
	OrganizationName string
	CustomerName     string
	IsInternalOrg    bool
	IsExceptionalOrg bool
	Start            time.Time
	End              time.Time
}

var ErrInvalidRequest = errors.New("invalid_allocation_request")

// Validate fails fast on missing identifiers or a malformed range.
func (r AllocateRequest) Validate() error {
	switch {
	case r.ProductID == "":
		return fmt.Errorf("%w: product id is required", ErrInvalidRequest)
	case r.OrganizationID == "":
		return fmt.Errorf("%w: organization id is required", ErrInvalidRequest)
	case r.CustomerName == "":
		return fmt.Errorf("%w: customer name is required", ErrInvalidRequest)
	case r.Start.IsZero() || r.End.IsZero():
		return fmt.Errorf("%w: start and end are required", ErrInvalidRequest)
	case r.End.Before(r.Start):
		return fmt.Errorf("%w: end precedes start", ErrInvalidRequest)
	}
	return nil
}

// Repository reads canonical aggregates and pricing data and persists
// customer daily costs.
type Repository interface {
	LinkedAccounts(ctx context.Context, productID string) ([]ProductAccount, error)
	DailyCosts(ctx context.Context, provider canonicaldomain.Provider, usageAccountIDs []string, start, end time.Time) ([]DailyCost, error)
	SchedulesInEffect(ctx context.Context, organizationID string, provider canonicaldomain.Provider, start, end time.Time) ([]PricingSchedule, error)
	UpsertDailyCosts(ctx context.Context, rows []CustomerDailyCost) error
	ListEnabledTargets(ctx context.Context) ([]AllocationTarget, error)
}

// Service allocates canonical spend to a customer over a date range.
type Service interface {
	Allocate(ctx context.Context, req AllocateRequest) ([]CustomerDailyCost, error)
}
