package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"gorm.io/gorm"
)

const DefaultWindow = 30 * 24 * time.Hour

var (
	ErrInvalidCompany    = errors.New("invalid_company")
	ErrInvalidExternalID = errors.New("invalid_external_customer_id")
	ErrUsageFetch        = errors.New("usage_fetch_failed")
)

// UsageSummary reports what one usage sync wrote.
type UsageSummary struct {
	CompanyID    snowflake.ID
	TotalQueries int64
	TotalCostUSD decimal.Decimal
	Days         int
	Entries      int
	WindowStart  time.Time
	WindowEnd    time.Time
	SyncedAt     time.Time
}

// Source fetches daily usage buckets for one billing customer.
type Source interface {
	GetCustomerUsage(ctx context.Context, customerID string, start, end time.Time) (orb.CustomerUsage, error)
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, rows []UsageMetric) error
	ListByCompany(ctx context.Context, db *gorm.DB, companyID snowflake.ID, from, to time.Time) ([]UsageMetric, error)
}

// Aggregator pulls usage for a company's billing customer and persists the
// window total and the per-day rollup. A zero window uses the configured one.
type Aggregator interface {
	SyncUsage(ctx context.Context, companyID snowflake.ID, externalCustomerID string, window time.Duration) (UsageSummary, error)
}
