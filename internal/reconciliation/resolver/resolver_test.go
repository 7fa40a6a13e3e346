package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/crmsync/internal/company/domain"
	companyrepo "github.com/smallbiznis/crmsync/internal/company/repository"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(v string) *string { return &v }

func setup(t *testing.T) (*gorm.DB, companydomain.Repository, *Resolver) {
	t.Helper()
	db := testutil.OpenSQLite(t)
	repo := companyrepo.Provide()
	return db, repo, New(repo, config.NewStaticMatchingRulesHolder(config.DefaultMatchingRules()))
}

func insert(t *testing.T, db *gorm.DB, repo companydomain.Repository, id int64, name string, mutate func(*companydomain.Company)) {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := companydomain.Company{ID: snowflake.ID(id), Name: name, CreatedAt: now, UpdatedAt: now}
	if mutate != nil {
		mutate(&c)
	}
	require.NoError(t, repo.Insert(context.Background(), db, &c))
}

func TestWalletBeatsName(t *testing.T) {
	db, repo, r := setup(t)
	insert(t, db, repo, 1, "0xAAA", nil)
	insert(t, db, repo, 2, "Walleted", func(c *companydomain.Company) { c.WalletAddress = strPtr("0xaaa") })

	m, err := r.Resolve(context.Background(), db, Candidate{Identifier: "0xAAA"})
	require.NoError(t, err)
	require.True(t, m.Found())
	assert.Equal(t, domain.StrategyWallet, m.Strategy)
	assert.Equal(t, snowflake.ID(2), m.Company.ID)
}

func TestDomainBeatsName(t *testing.T) {
	db, repo, r := setup(t)
	insert(t, db, repo, 1, "Acme", nil)
	insert(t, db, repo, 2, "Acme Corporation", func(c *companydomain.Company) { c.Domain = strPtr("www.acme.io") })

	m, err := r.Resolve(context.Background(), db, Candidate{Identifier: "Acme", Email: "Billing@ACME.io"})
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyDomain, m.Strategy)
	assert.Equal(t, snowflake.ID(2), m.Company.ID)
}

func TestNameIsCaseInsensitive(t *testing.T) {
	db, repo, r := setup(t)
	insert(t, db, repo, 5, "acme", nil)

	m, err := r.Resolve(context.Background(), db, Candidate{Identifier: "ACME", Email: "ops@unknown.dev"})
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyName, m.Strategy)
	assert.Equal(t, snowflake.ID(5), m.Company.ID)
}

func TestTiesResolveToLowestID(t *testing.T) {
	db, repo, r := setup(t)
	insert(t, db, repo, 9, "Twin", nil)
	insert(t, db, repo, 3, "twin", nil)

	m, err := r.Resolve(context.Background(), db, Candidate{Identifier: "Twin"})
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(3), m.Company.ID)
}

func TestNoMatch(t *testing.T) {
	db, _, r := setup(t)

	m, err := r.Resolve(context.Background(), db, Candidate{Identifier: "Ghost", Email: "x@ghost.dev"})
	require.NoError(t, err)
	assert.False(t, m.Found())
	assert.Equal(t, domain.StrategyNone, m.Strategy)
}

func TestDomainFromEmail(t *testing.T) {
	assert.Equal(t, "acme.io", DomainFromEmail(" a@b@Acme.IO "))
	assert.Equal(t, "", DomainFromEmail("no-at-sign"))
	assert.Equal(t, "", DomainFromEmail("trailing@"))
}
