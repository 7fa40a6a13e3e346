package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmsync/internal/clock"
	companydomain "github.com/smallbiznis/crmsync/internal/company/domain"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"github.com/smallbiznis/crmsync/internal/reconciliation/merge"
	usagedomain "github.com/smallbiznis/crmsync/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Source      usagedomain.Source
	Repo        usagedomain.Repository
	CompanyRepo companydomain.Repository
	Rules       *config.MatchingRulesHolder
	Config      config.Config
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	source      usagedomain.Source
	repo        usagedomain.Repository
	companyRepo companydomain.Repository
	rules       *config.MatchingRulesHolder
	window      time.Duration
}

func NewService(p Params) *Service {
	window := time.Duration(p.Config.Sync.UsageWindowDays) * 24 * time.Hour
	if window <= 0 {
		window = usagedomain.DefaultWindow
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("usage.aggregator"),
		genID:       p.GenID,
		clock:       p.Clock,
		source:      p.Source,
		repo:        p.Repo,
		companyRepo: p.CompanyRepo,
		rules:       p.Rules,
		window:      window,
	}
}

type dayTotal struct {
	queries decimal.Decimal
	cost    decimal.Decimal
}

// SyncUsage overwrites monthly_query_volume with the window total and
// upserts one row per day present in the response. Days the provider did
// not return are left as they are.
func (s *Service) SyncUsage(ctx context.Context, companyID snowflake.ID, externalCustomerID string, window time.Duration) (usagedomain.UsageSummary, error) {
	if companyID == 0 {
		return usagedomain.UsageSummary{}, usagedomain.ErrInvalidCompany
	}
	externalCustomerID = strings.TrimSpace(externalCustomerID)
	if externalCustomerID == "" {
		return usagedomain.UsageSummary{}, usagedomain.ErrInvalidExternalID
	}
	if window <= 0 {
		window = s.window
	}

	now := s.clock.Now().UTC()
	start := now.Add(-window)

	usage, err := s.source.GetCustomerUsage(ctx, externalCustomerID, start, now)
	if err != nil {
		return usagedomain.UsageSummary{}, fmt.Errorf("%w: %w", usagedomain.ErrUsageFetch, err)
	}

	substring := s.rules.Get().UsageMetricSubstring
	total := decimal.Zero
	totalCost := decimal.Zero
	days := map[time.Time]*dayTotal{}
	kept := 0
	for _, entry := range usage.UsageData {
		if !strings.Contains(strings.ToLower(entry.MetricName), substring) {
			continue
		}
		kept++
		cost := orb.FromCents(entry.Cost)
		total = total.Add(entry.Usage)
		totalCost = totalCost.Add(cost)

		day := usagedomain.Day(entry.TimeframeStart)
		bucket, ok := days[day]
		if !ok {
			bucket = &dayTotal{queries: decimal.Zero, cost: decimal.Zero}
			days[day] = bucket
		}
		bucket.queries = bucket.queries.Add(entry.Usage)
		bucket.cost = bucket.cost.Add(cost)
	}

	rows := make([]usagedomain.UsageMetric, 0, len(days))
	for day, bucket := range days {
		rows = append(rows, usagedomain.UsageMetric{
			ID:         s.genID.Generate(),
			CompanyID:  companyID,
			Date:       datatypes.Date(day),
			QueryCount: bucket.queries.IntPart(),
			CostUSD:    bucket.cost,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return time.Time(rows[i].Date).Before(time.Time(rows[j].Date))
	})

	volume := total.IntPart()
	update := merge.Plan(companydomain.Company{ID: companyID}, merge.Fields{
		MonthlyQueryVolume:   &volume,
		WithorbLastUsageSync: &now,
	}, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.companyRepo.Apply(ctx, tx, companyID, update); err != nil {
			return err
		}
		return s.repo.Upsert(ctx, tx, rows)
	})
	if err != nil {
		return usagedomain.UsageSummary{}, err
	}

	s.log.Debug("usage.sync.done",
		zap.String("company_id", companyID.String()),
		zap.String("withorb_customer_id", externalCustomerID),
		zap.Int64("monthly_query_volume", volume),
		zap.Int("days", len(rows)),
	)

	return usagedomain.UsageSummary{
		CompanyID:    companyID,
		TotalQueries: volume,
		TotalCostUSD: totalCost,
		Days:         len(rows),
		Entries:      kept,
		WindowStart:  start,
		WindowEnd:    now,
		SyncedAt:     now,
	}, nil
}
