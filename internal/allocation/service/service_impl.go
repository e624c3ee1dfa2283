// Package service implements cost allocation: canonical spend plus
// effective-dated pricing schedules in, per-day customer costs out.
package service

import (
	"context"
	"sort"
	"time"

	"github.com/azerion/cloudledger/internal/allocation/domain"
	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	hundred = decimal.NewFromInt(100)
	// huaweiWholesaleRate is the fixed internal rate for Huawei spend,
	// applied irrespective of the exceptional flag.
	huaweiWholesaleRate = decimal.RequireFromString("0.45")
)

// moneyScale matches the numeric(20,6) cost columns.
const moneyScale = 6

type service struct {
	repo domain.Repository
	log  *zap.Logger
}

func NewService(repo domain.Repository, log *zap.Logger) domain.Service {
	return &service{
		repo: repo,
		log:  log.Named("allocation"),
	}
}

// dayCost accumulates one usage day of spend for one provider, keeping the
// same-month and spillover internal series separate for the AWS branch.
type dayCost struct {
	base              decimal.Decimal
	sameMonthInternal decimal.Decimal
	spilloverInternal decimal.Decimal
}

func (s *service) Allocate(ctx context.Context, req domain.AllocateRequest) ([]domain.CustomerDailyCost, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	accounts, err := s.repo.LinkedAccounts(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		s.log.Info("product has no linked accounts, nothing to allocate",
			zap.String("product_id", req.ProductID),
			zap.String("organization_id", req.OrganizationID),
		)
		return nil, nil
	}

	accountsByProvider := make(map[canonicaldomain.Provider][]string)
	for _, account := range accounts {
		accountsByProvider[account.CloudProvider] = append(accountsByProvider[account.CloudProvider], account.UsageAccountID)
	}

	var results []domain.CustomerDailyCost
	for provider, accountIDs := range accountsByProvider {
		rows, err := s.allocateProvider(ctx, req, provider, accountIDs)
		if err != nil {
			return nil, err
		}
		results = append(results, rows...)
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].Day.Equal(results[j].Day) {
			return results[i].Day.Before(results[j].Day)
		}
		return results[i].CloudProvider < results[j].CloudProvider
	})

	if err := s.repo.UpsertDailyCosts(ctx, results); err != nil {
		return nil, err
	}

	s.log.Info("allocated customer costs",
		zap.String("product_id", req.ProductID),
		zap.String("organization_id", req.OrganizationID),
		zap.String("customer", req.CustomerName),
		zap.Int("days", len(results)),
	)
	return results, nil
}

func (s *service) allocateProvider(ctx context.Context, req domain.AllocateRequest, provider canonicaldomain.Provider, accountIDs []string) ([]domain.CustomerDailyCost, error) {
	costs, err := s.repo.DailyCosts(ctx, provider, accountIDs, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if len(costs) == 0 {
		return nil, nil
	}

	schedules, err := s.repo.SchedulesInEffect(ctx, req.OrganizationID, provider, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	days := make(map[time.Time]*dayCost)
	for _, c := range costs {
		day := truncateDay(c.Day)
		acc, ok := days[day]
		if !ok {
			acc = &dayCost{}
			days[day] = acc
		}

		// The customer-facing base covers all spend posted against the usage
		// day, spillover included.
		if req.IsInternalOrg {
			acc.base = acc.base.Add(c.InternalCost)
		} else {
			acc.base = acc.base.Add(c.ExternalCost)
		}
		if c.OutsideOfMonth {
			acc.spilloverInternal = acc.spilloverInternal.Add(c.InternalCost)
		} else {
			acc.sameMonthInternal = acc.sameMonthInternal.Add(c.InternalCost)
		}
	}

	rows := make([]domain.CustomerDailyCost, 0, len(days))
	for day, acc := range days {
		schedule := scheduleFor(schedules, day)

		afterDiscount := acc.base.Sub(acc.base.Mul(schedule.DiscountPct).Div(hundred))
		handlingFee := afterDiscount.Mul(schedule.HandlingFeePct).Div(hundred)
		supportFee := afterDiscount.Mul(schedule.SupportFeePct).Div(hundred)
		customerCost := afterDiscount.Add(handlingFee).Add(supportFee)

		var azerionCost decimal.Decimal
		switch {
		case provider == canonicaldomain.ProviderHuawei:
			azerionCost = acc.base.Mul(huaweiWholesaleRate)
		case req.IsExceptionalOrg:
			azerionCost = afterDiscount
		case provider == canonicaldomain.ProviderAWS:
			azerionCost = acc.sameMonthInternal.Add(acc.spilloverInternal)
		default:
			azerionCost = afterDiscount
		}

		rows = append(rows, domain.CustomerDailyCost{
			Day:              day,
			OrganizationID:   req.OrganizationID,
			OrganizationName: req.OrganizationName,
			CustomerName:     req.CustomerName,
			CloudProvider:    provider,
			AzerionCost:      azerionCost.Round(moneyScale),
			CustomerCost:     customerCost.Round(moneyScale),
			IsExternal:       !req.IsInternalOrg,
		})
	}
	return rows, nil
}

// scheduleFor picks the schedule with the latest effective start date not
// after day. No applicable schedule means zero percentages.
func scheduleFor(schedules []domain.PricingSchedule, day time.Time) domain.PricingSchedule {
	var applicable domain.PricingSchedule
	for _, schedule := range schedules {
		if schedule.EffectiveStartDate.After(day) {
			break
		}
		applicable = schedule
	}
	return applicable
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
