package service

import (
	"context"
	"errors"
	"testing"

	companydomain "github.com/smallbiznis/crmsync/internal/company/domain"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/reconciliation/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFeed struct {
	pairs []domain.WalletPair
	err   error
}

func (f staticFeed) Pairs(context.Context) ([]domain.WalletPair, error) {
	return f.pairs, f.err
}

func TestImportWalletsGroupsByName(t *testing.T) {
	e := newEngine(t, nil)
	e.seed(t, companydomain.Company{ID: 1, Name: "Acme"})
	e.seed(t, companydomain.Company{ID: 2, Name: "Keeper", WalletAddress: strPtr("0xexisting")})

	feed := staticFeed{pairs: []domain.WalletPair{
		{WalletAddress: "0xAAA", CompanyName: "acme"},
		{WalletAddress: "0xBBB", CompanyName: "ACME"},
		{WalletAddress: "0xaaa", CompanyName: "Acme"},
		{WalletAddress: "0xCCC", CompanyName: "Keeper"},
		{WalletAddress: "0xDDD", CompanyName: "Newco"},
		{WalletAddress: "", CompanyName: "Skipped"},
	}}

	result, err := e.svc.ImportWallets(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Fetched)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 4, result.WalletsAdded)
	assert.Zero(t, result.WalletConflicts)

	ctx := context.Background()
	acme, err := e.repo.FindByID(ctx, e.db, 1)
	require.NoError(t, err)
	assert.Equal(t, "0xaaa", *acme.WalletAddress)
	wallets, err := e.repo.ListWallets(ctx, e.db, 1)
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "0xaaa", wallets[0].WalletAddress)
	assert.True(t, wallets[0].IsPrimary)
	assert.Equal(t, "0xbbb", wallets[1].WalletAddress)
	assert.False(t, wallets[1].IsPrimary)

	keeper, err := e.repo.FindByID(ctx, e.db, 2)
	require.NoError(t, err)
	assert.Equal(t, "0xexisting", *keeper.WalletAddress)

	newco, err := e.repo.FindByName(ctx, e.db, "newco")
	require.NoError(t, err)
	require.NotNil(t, newco)
	assert.Equal(t, "0xddd", *newco.WalletAddress)
}

func TestImportWalletsIsIdempotent(t *testing.T) {
	e := newEngine(t, nil)
	feed := staticFeed{pairs: []domain.WalletPair{
		{WalletAddress: "0x1", CompanyName: "One"},
		{WalletAddress: "0x2", CompanyName: "One"},
	}}

	_, err := e.svc.ImportWallets(context.Background(), feed)
	require.NoError(t, err)
	second, err := e.svc.ImportWallets(context.Background(), feed)
	require.NoError(t, err)

	assert.Zero(t, second.Created)
	assert.Equal(t, 1, second.Updated)
	assert.Zero(t, second.WalletsAdded)
	assert.Len(t, e.companies(t), 1)
}

func TestImportWalletsMovesSharedWallet(t *testing.T) {
	e := newEngine(t, nil)
	e.seed(t, companydomain.Company{ID: 1, Name: "First"})
	e.seed(t, companydomain.Company{ID: 2, Name: "Second"})
	ctx := context.Background()
	_, err := e.repo.InsertWallet(ctx, e.db, &companydomain.CompanyWallet{ID: 100, CompanyID: 1, WalletAddress: "0xshared", IsPrimary: true})
	require.NoError(t, err)

	result, err := e.svc.ImportWallets(ctx, staticFeed{pairs: []domain.WalletPair{
		{WalletAddress: "0xSHARED", CompanyName: "Second"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.WalletConflicts)
	assert.Zero(t, result.WalletsAdded)

	links, err := e.repo.ListWalletLinks(ctx, e.db, "0xshared")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(2), links[0].CompanyID.Int64())
}

func TestImportWalletsLastWriterOwnsWallet(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	_, err := e.svc.ImportWallets(ctx, staticFeed{pairs: []domain.WalletPair{
		{WalletAddress: "0xAAA", CompanyName: "First"},
	}})
	require.NoError(t, err)
	result, err := e.svc.ImportWallets(ctx, staticFeed{pairs: []domain.WalletPair{
		{WalletAddress: "0xaaa", CompanyName: "Second"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.WalletConflicts)

	first, err := e.repo.FindByName(ctx, e.db, "First")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Nil(t, first.WalletAddress)

	owner, err := e.repo.FindByWallet(ctx, e.db, "0xAAA")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "Second", owner.Name)

	match, err := resolver.New(e.repo, config.NewStaticMatchingRulesHolder(config.DefaultMatchingRules())).
		Resolve(ctx, e.db, resolver.Candidate{Identifier: "0xAAA"})
	require.NoError(t, err)
	require.True(t, match.Found())
	assert.Equal(t, domain.StrategyWallet, match.Strategy)
	assert.Equal(t, "Second", match.Company.Name)
}

func TestImportWalletsClearsWalletColumnOfPreviousOwner(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	e.seed(t, companydomain.Company{ID: 1, Name: "Legacy", WalletAddress: strPtr("0xLegacy")})

	result, err := e.svc.ImportWallets(ctx, staticFeed{pairs: []domain.WalletPair{
		{WalletAddress: "0xlegacy", CompanyName: "Current"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.WalletConflicts)
	assert.Equal(t, 1, result.WalletsAdded)

	legacy, err := e.repo.FindByID(ctx, e.db, 1)
	require.NoError(t, err)
	assert.Nil(t, legacy.WalletAddress)

	owner, err := e.repo.FindByWallet(ctx, e.db, "0xLEGACY")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "Current", owner.Name)
}

func TestImportWalletsFeedFailureIsFatal(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.svc.ImportWallets(context.Background(), staticFeed{err: errors.New("dial tcp: refused")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.Empty(t, e.companies(t))
}

func TestGroupPairsKeepsFirstDisplayName(t *testing.T) {
	groups := groupPairs([]domain.WalletPair{
		{WalletAddress: "0x1", CompanyName: " Beta "},
		{WalletAddress: "0x2", CompanyName: "alpha"},
		{WalletAddress: "0x3", CompanyName: "BETA"},
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "Beta", groups[0].name)
	assert.Equal(t, []string{"0x1", "0x3"}, groups[0].wallets)
	assert.Equal(t, "alpha", groups[1].name)
}
