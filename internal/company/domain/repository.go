package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the narrow company store used by reconciliation. Lookups
// return nil without error when nothing matches.
type Repository interface {
	Ping(ctx context.Context, db *gorm.DB) error
	Insert(ctx context.Context, db *gorm.DB, company *Company) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
	FindByWallet(ctx context.Context, db *gorm.DB, wallet string) (*Company, error)
	FindByDomain(ctx context.Context, db *gorm.DB, domains []string) (*Company, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Company, error)
	FindByBillingID(ctx context.Context, db *gorm.DB, externalID string) (*Company, error)
	ListWithBillingID(ctx context.Context, db *gorm.DB, limit int) ([]Company, error)
	Apply(ctx context.Context, db *gorm.DB, id snowflake.ID, update Update) error
	ReleaseBillingID(ctx context.Context, db *gorm.DB, externalID string, keep snowflake.ID) (int64, error)

	ReleaseWallet(ctx context.Context, db *gorm.DB, wallet string, keep snowflake.ID) (int64, error)
	ListWalletLinks(ctx context.Context, db *gorm.DB, wallet string) ([]CompanyWallet, error)
	InsertWallet(ctx context.Context, db *gorm.DB, wallet *CompanyWallet) (bool, error)
	ReassignWallet(ctx context.Context, db *gorm.DB, walletID, companyID snowflake.ID, isPrimary bool) error
	ListWallets(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]CompanyWallet, error)
}
