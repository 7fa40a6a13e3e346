package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmsync/internal/company/domain"
	"github.com/smallbiznis/crmsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(v string) *string { return &v }

func seedCompany(t *testing.T, db *gorm.DB, r domain.Repository, c domain.Company) domain.Company {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.CreatedAt = now
	c.UpdatedAt = now
	require.NoError(t, r.Insert(context.Background(), db, &c))
	return c
}

func TestFindByWalletMatchesPrimaryAndLinkedCaseInsensitive(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()

	primary := seedCompany(t, db, r, domain.Company{ID: 1, Name: "Primary", WalletAddress: strPtr("0xabc")})
	linked := seedCompany(t, db, r, domain.Company{ID: 2, Name: "Linked"})
	_, err := r.InsertWallet(ctx, db, &domain.CompanyWallet{ID: 10, CompanyID: linked.ID, WalletAddress: "0xDEF"})
	require.NoError(t, err)

	got, err := r.FindByWallet(ctx, db, "0xABC")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, primary.ID, got.ID)

	got, err = r.FindByWallet(ctx, db, "0xdef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, linked.ID, got.ID)

	got, err = r.FindByWallet(ctx, db, "0x999")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindByWalletPrefersLinkedOwner(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()

	seedCompany(t, db, r, domain.Company{ID: 1, Name: "Stale", WalletAddress: strPtr("0xaaa")})
	seedCompany(t, db, r, domain.Company{ID: 2, Name: "Owner"})
	_, err := r.InsertWallet(ctx, db, &domain.CompanyWallet{ID: 10, CompanyID: 2, WalletAddress: "0xAAA"})
	require.NoError(t, err)

	got, err := r.FindByWallet(ctx, db, "0xAaA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Owner", got.Name)
}

func TestReleaseWalletKeepsOwner(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()
	seedCompany(t, db, r, domain.Company{ID: 1, Name: "Old", WalletAddress: strPtr("0xABC")})
	seedCompany(t, db, r, domain.Company{ID: 2, Name: "New", WalletAddress: strPtr("0xabc")})

	released, err := r.ReleaseWallet(ctx, db, "0xAbc", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	old, err := r.FindByID(ctx, db, 1)
	require.NoError(t, err)
	assert.Nil(t, old.WalletAddress)
	kept, err := r.FindByID(ctx, db, 2)
	require.NoError(t, err)
	require.NotNil(t, kept.WalletAddress)

	_, err = r.ReleaseWallet(ctx, db, " ", 2)
	assert.ErrorIs(t, err, domain.ErrInvalidWallet)
}

func TestInsertValidatesAndReportsDuplicates(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()

	err := r.Insert(ctx, db, &domain.Company{Name: "No id"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	err = r.Insert(ctx, db, &domain.Company{ID: 1, Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	seedCompany(t, db, r, domain.Company{ID: 1, Name: "Acme", WithorbCustomerID: strPtr("cus_1")})
	err = r.Insert(ctx, db, &domain.Company{ID: 2, Name: "Acme Copy", WithorbCustomerID: strPtr("cus_1")})
	assert.ErrorIs(t, err, domain.ErrDuplicateCompany)

	err = r.Insert(ctx, db, &domain.Company{ID: 1, Name: "Same id"})
	assert.ErrorIs(t, err, domain.ErrDuplicateCompany)
}

func TestFindByBillingID(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()
	seedCompany(t, db, r, domain.Company{ID: 1, Name: "Acme", WithorbCustomerID: strPtr("cus_1")})

	got, err := r.FindByBillingID(ctx, db, " cus_1 ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme", got.Name)

	got, err = r.FindByBillingID(ctx, db, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindByDomainAndName(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()

	seedCompany(t, db, r, domain.Company{ID: 1, Name: "Example Inc", Domain: strPtr("www.example.com")})

	got, err := r.FindByDomain(ctx, db, []string{"Example.com", "www.example.com"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Example Inc", got.Name)

	got, err = r.FindByName(ctx, db, "EXAMPLE inc")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = r.FindByDomain(ctx, db, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApplyPreservesExistingWallet(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()

	seedCompany(t, db, r, domain.Company{ID: 1, Name: "Acme", WalletAddress: strPtr("0xw1")})
	seedCompany(t, db, r, domain.Company{ID: 2, Name: "Blank"})

	for _, id := range []int64{1, 2} {
		err := r.Apply(ctx, db, snowflakeID(id), domain.Update{
			Set:         map[string]any{domain.ColumnMRRUSD: decimal.NewFromInt(120)},
			SetIfAbsent: map[string]any{domain.ColumnWalletAddress: "0xw2"},
		})
		require.NoError(t, err)
	}

	first, err := r.FindByID(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, "0xw1", *first.WalletAddress)
	assert.True(t, first.MRRUSD.Equal(decimal.NewFromInt(120)))

	second, err := r.FindByID(ctx, db, 2)
	require.NoError(t, err)
	require.NotNil(t, second.WalletAddress)
	assert.Equal(t, "0xw2", *second.WalletAddress)
}

func TestApplyRejectsUnknownColumn(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()

	err := r.Apply(context.Background(), db, 1, domain.Update{Set: map[string]any{"name": "x"}})
	assert.ErrorIs(t, err, domain.ErrUnknownColumn)
}

func TestApplyReportsMissingCompany(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()

	err := r.Apply(context.Background(), db, 404, domain.Update{
		Set: map[string]any{domain.ColumnMRRUSD: decimal.NewFromInt(1)},
	})
	assert.ErrorIs(t, err, domain.ErrCompanyMissing)
}

func TestInsertWalletIsIdempotent(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()
	seedCompany(t, db, r, domain.Company{ID: 1, Name: "Acme"})

	inserted, err := r.InsertWallet(ctx, db, &domain.CompanyWallet{ID: 10, CompanyID: 1, WalletAddress: "0xABC", IsPrimary: true})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.InsertWallet(ctx, db, &domain.CompanyWallet{ID: 11, CompanyID: 1, WalletAddress: "0xabc"})
	require.NoError(t, err)
	assert.False(t, inserted)

	wallets, err := r.ListWallets(ctx, db, 1)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, "0xabc", wallets[0].WalletAddress)
	assert.True(t, wallets[0].IsPrimary)
}

func TestReleaseBillingIDKeepsOwner(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()
	seedCompany(t, db, r, domain.Company{ID: 1, Name: "Old", WithorbCustomerID: strPtr("cus_1")})
	seedCompany(t, db, r, domain.Company{ID: 2, Name: "New"})

	released, err := r.ReleaseBillingID(ctx, db, "cus_1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	old, err := r.FindByID(ctx, db, 1)
	require.NoError(t, err)
	assert.Nil(t, old.WithorbCustomerID)
}

func TestListWithBillingIDRespectsLimit(t *testing.T) {
	db := testutil.OpenSQLite(t)
	r := Provide()
	ctx := context.Background()
	seedCompany(t, db, r, domain.Company{ID: 1, Name: "A", WithorbCustomerID: strPtr("cus_a")})
	seedCompany(t, db, r, domain.Company{ID: 2, Name: "B"})
	seedCompany(t, db, r, domain.Company{ID: 3, Name: "C", WithorbCustomerID: strPtr("cus_c")})
	seedCompany(t, db, r, domain.Company{ID: 4, Name: "D", WithorbCustomerID: strPtr("cus_d")})

	companies, err := r.ListWithBillingID(ctx, db, 2)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, "A", companies[0].Name)
	assert.Equal(t, "C", companies[1].Name)
}

func snowflakeID(v int64) snowflake.ID { return snowflake.ID(v) }
