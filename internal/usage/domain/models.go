// Package domain contains the persisted daily usage rollup.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// UsageMetric is one company's matching usage for one UTC calendar day.
// (company_id, date) is unique; a later sync replaces the earlier values.
type UsageMetric struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	CompanyID  snowflake.ID    `gorm:"not null"`
	Date       datatypes.Date  `gorm:"not null"`
	QueryCount int64           `gorm:"not null;default:0"`
	CostUSD    decimal.Decimal `gorm:"column:cost_usd;type:numeric(14,4);not null;default:0"`
	CreatedAt  time.Time       `gorm:"not null"`
	UpdatedAt  time.Time       `gorm:"not null"`
}

func (UsageMetric) TableName() string { return "usage_metrics" }

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
