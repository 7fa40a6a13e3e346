package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Company is the internal identity entity that external billing customers and
// wallet mappings are reconciled against.
type Company struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name                 string          `gorm:"not null" json:"name"`
	Domain               *string         `json:"domain,omitempty"`
	Industry             *string         `json:"industry,omitempty"`
	EmployeeCount        *int            `json:"employee_count,omitempty"`
	WalletAddress        *string         `json:"wallet_address,omitempty"`
	MonthlyQueryVolume   int64           `gorm:"not null;default:0" json:"monthly_query_volume"`
	MRRUSD               decimal.Decimal `gorm:"column:mrr_usd;type:numeric(14,2);not null;default:0" json:"mrr_usd"`
	WithorbCustomerID    *string         `gorm:"column:withorb_customer_id" json:"withorb_customer_id,omitempty"`
	WithorbSyncDate      *time.Time      `gorm:"column:withorb_sync_date" json:"withorb_sync_date,omitempty"`
	WithorbLastUsageSync *time.Time      `gorm:"column:withorb_last_usage_sync" json:"withorb_last_usage_sync,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (Company) TableName() string { return "companies" }

// HasWallet reports whether the primary wallet has already been set.
func (c Company) HasWallet() bool {
	return c.WalletAddress != nil && strings.TrimSpace(*c.WalletAddress) != ""
}

// CompanyWallet links a wallet address to a company. Addresses are stored lowercased.
type CompanyWallet struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID     snowflake.ID `gorm:"not null" json:"company_id"`
	WalletAddress string       `gorm:"not null" json:"wallet_address"`
	IsPrimary     bool         `gorm:"not null;default:false" json:"is_primary"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (CompanyWallet) TableName() string { return "company_wallets" }

// Columns written by reconciliation.
const (
	ColumnWalletAddress        = "wallet_address"
	ColumnMonthlyQueryVolume   = "monthly_query_volume"
	ColumnMRRUSD               = "mrr_usd"
	ColumnWithorbCustomerID    = "withorb_customer_id"
	ColumnWithorbSyncDate      = "withorb_sync_date"
	ColumnWithorbLastUsageSync = "withorb_last_usage_sync"
	ColumnUpdatedAt            = "updated_at"
)

// Update is a partial write against one company row. Set columns are
// overwritten; SetIfAbsent columns are only written while the stored value is
// NULL or empty.
type Update struct {
	Set         map[string]any
	SetIfAbsent map[string]any
}

func (u Update) Empty() bool {
	return len(u.Set) == 0 && len(u.SetIfAbsent) == 0
}

// NormalizeWallet case-folds a wallet address for storage and comparison.
func NormalizeWallet(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
