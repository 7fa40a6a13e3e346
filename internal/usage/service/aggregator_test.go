package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmsync/internal/clock"
	companydomain "github.com/smallbiznis/crmsync/internal/company/domain"
	companyrepo "github.com/smallbiznis/crmsync/internal/company/repository"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"github.com/smallbiznis/crmsync/internal/testutil"
	usagedomain "github.com/smallbiznis/crmsync/internal/usage/domain"
	"github.com/smallbiznis/crmsync/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var syncNow = time.Date(2026, 10, 1, 2, 0, 0, 0, time.UTC)

type stubSource struct {
	usage orb.CustomerUsage
	err   error
	start time.Time
	end   time.Time
}

func (s *stubSource) GetCustomerUsage(_ context.Context, _ string, start, end time.Time) (orb.CustomerUsage, error) {
	s.start, s.end = start, end
	return s.usage, s.err
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	source  *stubSource
	clock   *clock.FakeClock
	repo    usagedomain.Repository
	company companydomain.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenSQLite(t)
	src := &stubSource{}
	clk := clock.NewFakeClock(syncNow)
	repo := repository.Provide()
	companies := companyrepo.Provide()

	require.NoError(t, companies.Insert(context.Background(), db, &companydomain.Company{
		ID: 1, Name: "Acme", MonthlyQueryVolume: 999, CreatedAt: syncNow, UpdatedAt: syncNow,
	}))

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       testutil.MustNode(t),
		Clock:       clk,
		Source:      src,
		Repo:        repo,
		CompanyRepo: companies,
		Rules:       config.NewStaticMatchingRulesHolder(config.DefaultMatchingRules()),
		Config:      config.Config{Sync: config.SyncConfig{UsageWindowDays: 30}},
	})
	return fixture{db: db, svc: svc, source: src, clock: clk, repo: repo, company: companies}
}

func entry(metric string, day time.Time, usage, costCents int64) orb.UsageEntry {
	return orb.UsageEntry{
		MetricName:     metric,
		Usage:          decimal.NewFromInt(usage),
		Cost:           decimal.NewFromInt(costCents),
		TimeframeStart: day,
	}
}

func (f fixture) rows(t *testing.T) map[string]usagedomain.UsageMetric {
	t.Helper()
	rows, err := f.repo.ListByCompany(context.Background(), f.db, 1, syncNow.AddDate(0, -2, 0), syncNow)
	require.NoError(t, err)
	out := map[string]usagedomain.UsageMetric{}
	for _, row := range rows {
		out[time.Time(row.Date).UTC().Format(time.DateOnly)] = row
	}
	return out
}

func TestSyncUsageFiltersAndSums(t *testing.T) {
	f := newFixture(t)
	d1 := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 9, 21, 0, 0, 0, 0, time.UTC)
	f.source.usage = orb.CustomerUsage{UsageData: []orb.UsageEntry{
		entry("API Query Count", d1, 40, 400),
		entry("archive_query_count", d1, 10, 150),
		entry("storage_gb", d1, 1000, 9999),
		entry("Query Count", d2, 25, 250),
	}}

	summary, err := f.svc.SyncUsage(context.Background(), 1, "cus_1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(75), summary.TotalQueries)
	assert.Equal(t, 2, summary.Days)
	assert.Equal(t, 3, summary.Entries)
	assert.Equal(t, syncNow.AddDate(0, 0, -30), f.source.start)
	assert.Equal(t, syncNow, f.source.end)

	company, err := f.company.FindByID(context.Background(), f.db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(75), company.MonthlyQueryVolume)
	require.NotNil(t, company.WithorbLastUsageSync)
	assert.True(t, company.WithorbLastUsageSync.Equal(syncNow))

	rows := f.rows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(50), rows["2026-09-20"].QueryCount)
	assert.True(t, rows["2026-09-20"].CostUSD.Equal(decimal.RequireFromString("5.5")), "got %s", rows["2026-09-20"].CostUSD)
	assert.Equal(t, int64(25), rows["2026-09-21"].QueryCount)
}

func TestSyncUsageOverwritesDayWithoutZeroingOthers(t *testing.T) {
	f := newFixture(t)
	d1 := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 9, 21, 0, 0, 0, 0, time.UTC)

	f.source.usage = orb.CustomerUsage{UsageData: []orb.UsageEntry{
		entry("query", d1, 50, 0),
		entry("query", d2, 7, 0),
	}}
	_, err := f.svc.SyncUsage(context.Background(), 1, "cus_1", 0)
	require.NoError(t, err)

	f.clock.Advance(6 * time.Hour)
	f.source.usage = orb.CustomerUsage{UsageData: []orb.UsageEntry{
		entry("query", d1, 30, 0),
	}}
	_, err = f.svc.SyncUsage(context.Background(), 1, "cus_1", 0)
	require.NoError(t, err)

	rows := f.rows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(30), rows["2026-09-20"].QueryCount)
	assert.Equal(t, int64(7), rows["2026-09-21"].QueryCount)

	var count int64
	require.NoError(t, f.db.Model(&usagedomain.UsageMetric{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSyncUsageFetchErrorWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.source.err = orb.ErrUnavailable

	_, err := f.svc.SyncUsage(context.Background(), 1, "cus_1", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, usagedomain.ErrUsageFetch))
	assert.True(t, errors.Is(err, orb.ErrUnavailable))

	company, err := f.company.FindByID(context.Background(), f.db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(999), company.MonthlyQueryVolume)
	assert.Nil(t, company.WithorbLastUsageSync)
}

func TestSyncUsageRejectsMissingIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SyncUsage(context.Background(), 0, "cus_1", 0)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidCompany)

	_, err = f.svc.SyncUsage(context.Background(), snowflake.ID(1), " ", 0)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidExternalID)
}

func TestDayTruncatesToUTC(t *testing.T) {
	loc := time.FixedZone("plus7", 7*3600)
	got := usagedomain.Day(time.Date(2026, 9, 21, 3, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, datatypes.Date(got), datatypes.Date(time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)))
}
