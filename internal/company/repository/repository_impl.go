package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmsync/internal/company/domain"
	pkgdb "github.com/smallbiznis/crmsync/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const companyColumns = `id, name, domain, industry, employee_count, wallet_address,
	monthly_query_volume, mrr_usd, withorb_customer_id, withorb_sync_date,
	withorb_last_usage_sync, created_at, updated_at`

var writableColumns = map[string]struct{}{
	domain.ColumnWalletAddress:        {},
	domain.ColumnMonthlyQueryVolume:   {},
	domain.ColumnMRRUSD:               {},
	domain.ColumnWithorbCustomerID:    {},
	domain.ColumnWithorbSyncDate:      {},
	domain.ColumnWithorbLastUsageSync: {},
	domain.ColumnUpdatedAt:            {},
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, company *domain.Company) error {
	if company == nil || company.ID == 0 {
		return domain.ErrInvalidID
	}
	if strings.TrimSpace(company.Name) == "" {
		return domain.ErrInvalidName
	}
	err := db.WithContext(ctx).Exec(
		`INSERT INTO companies (id, name, domain, industry, employee_count, wallet_address,
			monthly_query_volume, mrr_usd, withorb_customer_id, withorb_sync_date,
			withorb_last_usage_sync, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		company.ID,
		company.Name,
		company.Domain,
		company.Industry,
		company.EmployeeCount,
		company.WalletAddress,
		company.MonthlyQueryVolume,
		company.MRRUSD,
		company.WithorbCustomerID,
		company.WithorbSyncDate,
		company.WithorbLastUsageSync,
		company.CreatedAt,
		company.UpdatedAt,
	).Error
	if pkgdb.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %w", domain.ErrDuplicateCompany, err)
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Company, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

// FindByWallet resolves a wallet to its owner. The company_wallets link wins
// over the wallet_address column, which only covers companies never imported.
func (r *repo) FindByWallet(ctx context.Context, db *gorm.DB, wallet string) (*domain.Company, error) {
	wallet = domain.NormalizeWallet(wallet)
	if wallet == "" {
		return nil, nil
	}
	company, err := r.findOne(ctx, db,
		`id IN (SELECT company_id FROM company_wallets WHERE LOWER(wallet_address) = ?)`,
		wallet,
	)
	if err != nil || company != nil {
		return company, err
	}
	return r.findOne(ctx, db, `LOWER(wallet_address) = ?`, wallet)
}

func (r *repo) FindByDomain(ctx context.Context, db *gorm.DB, domains []string) (*domain.Company, error) {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			normalized = append(normalized, d)
		}
	}
	if len(normalized) == 0 {
		return nil, nil
	}
	return r.findOne(ctx, db, `LOWER(domain) IN ?`, normalized)
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Company, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, `LOWER(name) = ?`, name)
}

func (r *repo) FindByBillingID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Company, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, `withorb_customer_id = ?`, externalID)
}

func (r *repo) ListWithBillingID(ctx context.Context, db *gorm.DB, limit int) ([]domain.Company, error) {
	if limit <= 0 {
		limit = 50
	}
	var companies []domain.Company
	err := db.WithContext(ctx).Raw(
		`SELECT `+companyColumns+`
		 FROM companies
		 WHERE withorb_customer_id IS NOT NULL AND withorb_customer_id <> ''
		 ORDER BY id
		 LIMIT ?`,
		limit,
	).Scan(&companies).Error
	if err != nil {
		return nil, err
	}
	return companies, nil
}

// Apply writes a partial update. SetIfAbsent columns go through COALESCE so a
// value written by a concurrent run is never replaced.
func (r *repo) Apply(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.Update) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	if update.Empty() {
		return nil
	}

	values := make(map[string]any, len(update.Set)+len(update.SetIfAbsent))
	for column, value := range update.Set {
		if _, ok := writableColumns[column]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownColumn, column)
		}
		values[column] = value
	}
	for column, value := range update.SetIfAbsent {
		if _, ok := writableColumns[column]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownColumn, column)
		}
		values[column] = gorm.Expr("COALESCE(NULLIF("+column+", ''), ?)", value)
	}

	res := db.WithContext(ctx).
		Model(&domain.Company{}).
		Where("id = ?", id).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrCompanyMissing, id)
	}
	return nil
}

// ReleaseBillingID detaches externalID from every company except keep, so the
// id stays unique before it is assigned.
func (r *repo) ReleaseBillingID(ctx context.Context, db *gorm.DB, externalID string, keep snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE companies SET withorb_customer_id = NULL
		 WHERE withorb_customer_id = ? AND id <> ?`,
		externalID,
		keep,
	)
	return res.RowsAffected, res.Error
}

// ReleaseWallet clears wallet from the wallet_address column of every company
// except keep.
func (r *repo) ReleaseWallet(ctx context.Context, db *gorm.DB, wallet string, keep snowflake.ID) (int64, error) {
	wallet = domain.NormalizeWallet(wallet)
	if wallet == "" {
		return 0, domain.ErrInvalidWallet
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE companies SET wallet_address = NULL
		 WHERE LOWER(wallet_address) = ? AND id <> ?`,
		wallet,
		keep,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListWalletLinks(ctx context.Context, db *gorm.DB, wallet string) ([]domain.CompanyWallet, error) {
	wallet = domain.NormalizeWallet(wallet)
	if wallet == "" {
		return nil, nil
	}
	var links []domain.CompanyWallet
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, wallet_address, is_primary, created_at
		 FROM company_wallets
		 WHERE LOWER(wallet_address) = ?
		 ORDER BY id`,
		wallet,
	).Scan(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

// InsertWallet links a wallet and reports whether a new row was written.
func (r *repo) InsertWallet(ctx context.Context, db *gorm.DB, wallet *domain.CompanyWallet) (bool, error) {
	if wallet == nil || wallet.CompanyID == 0 {
		return false, domain.ErrInvalidID
	}
	wallet.WalletAddress = domain.NormalizeWallet(wallet.WalletAddress)
	if wallet.WalletAddress == "" {
		return false, domain.ErrInvalidWallet
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}, {Name: "wallet_address"}},
			DoNothing: true,
		}).
		Create(wallet)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ReassignWallet(ctx context.Context, db *gorm.DB, walletID, companyID snowflake.ID, isPrimary bool) error {
	if walletID == 0 || companyID == 0 {
		return domain.ErrInvalidID
	}
	return db.WithContext(ctx).Exec(
		`UPDATE company_wallets SET company_id = ?, is_primary = ? WHERE id = ?`,
		companyID,
		isPrimary,
		walletID,
	).Error
}

func (r *repo) ListWallets(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]domain.CompanyWallet, error) {
	var wallets []domain.CompanyWallet
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, wallet_address, is_primary, created_at
		 FROM company_wallets
		 WHERE company_id = ?
		 ORDER BY id`,
		companyID,
	).Scan(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Company, error) {
	var company domain.Company
	err := db.WithContext(ctx).Raw(
		`SELECT `+companyColumns+` FROM companies WHERE `+where+` ORDER BY id LIMIT 1`,
		args...,
	).Scan(&company).Error
	if err != nil {
		return nil, err
	}
	if company.ID == 0 {
		return nil, nil
	}
	return &company, nil
}
