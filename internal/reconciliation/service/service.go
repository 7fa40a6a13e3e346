// Package service orchestrates reconciliation runs against the billing
// provider and the wallet mapping feed.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmsync/internal/clock"
	companydomain "github.com/smallbiznis/crmsync/internal/company/domain"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/reconciliation/resolver"
	"github.com/smallbiznis/crmsync/internal/reconciliation/source"
	usagedomain "github.com/smallbiznis/crmsync/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultUsageBatchSize = 50

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	CompanyRepo companydomain.Repository
	Billing     domain.BillingProvider
	Usage       usagedomain.Aggregator
	Rules       *config.MatchingRulesHolder
	Config      config.Config
	Observers   []domain.Observer `group:"reconciliation.observers"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	companyRepo companydomain.Repository
	billing     domain.BillingProvider
	usage       usagedomain.Aggregator
	rules       *config.MatchingRulesHolder
	resolver    *resolver.Resolver
	observers   []domain.Observer

	pageSize       int
	maxRecords     int
	usageBatchSize int
	usageWindow    time.Duration
	createOnMiss   bool
}

func NewService(p Params) *Service {
	usageBatch := p.Config.Sync.UsageBatchSize
	if usageBatch <= 0 {
		usageBatch = defaultUsageBatchSize
	}
	observers := make([]domain.Observer, 0, len(p.Observers))
	for _, o := range p.Observers {
		if o != nil {
			observers = append(observers, o)
		}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconciliation"),
		genID:       p.GenID,
		clock:       p.Clock,
		companyRepo: p.CompanyRepo,
		billing:     p.Billing,
		usage:       p.Usage,
		rules:       p.Rules,
		resolver:    resolver.New(p.CompanyRepo, p.Rules),
		observers:   observers,

		pageSize:       p.Config.Withorb.PageSize,
		maxRecords:     p.Config.Withorb.MaxRecords,
		usageBatchSize: usageBatch,
		usageWindow:    time.Duration(p.Config.Sync.UsageWindowDays) * 24 * time.Hour,
		createOnMiss:   p.Config.Sync.CreateOnMiss,
	}
}

var _ domain.Engine = (*Service)(nil)

// RunFullSync pulls every billing customer, then reconciles them one at a
// time. Fetch and store-connection failures abort the run; anything else
// is counted against the record and the loop moves on.
func (s *Service) RunFullSync(ctx context.Context) (domain.SyncRunResult, error) {
	run := s.startRun(domain.RunKindFull)
	ctx = run.ctx(ctx)

	if err := s.ping(ctx); err != nil {
		return s.finishRun(ctx, run, err)
	}

	pager := source.NewPager(s.fetchCustomers, s.pageSize, s.maxRecords, run.log)
	customers, truncated, err := pager.FetchAll(ctx)
	if err != nil {
		return s.finishRun(ctx, run, err)
	}
	run.result.Fetched = len(customers)
	run.result.Truncated = truncated

	for _, customer := range customers {
		if err := s.reconcileCustomer(ctx, run, customer); err != nil {
			return s.finishRun(ctx, run, err)
		}
	}

	return s.finishRun(ctx, run, nil)
}

// RunUsageOnlySync refreshes usage for the first batch of companies that
// already carry a billing id.
func (s *Service) RunUsageOnlySync(ctx context.Context) (domain.SyncRunResult, error) {
	run := s.startRun(domain.RunKindUsage)
	ctx = run.ctx(ctx)

	if err := s.ping(ctx); err != nil {
		return s.finishRun(ctx, run, err)
	}

	companies, err := s.companyRepo.ListWithBillingID(ctx, s.db, s.usageBatchSize)
	if err != nil {
		return s.finishRun(ctx, run, s.storeError(err))
	}
	run.result.Fetched = len(companies)

	for _, company := range companies {
		externalID := strings.TrimSpace(deref(company.WithorbCustomerID))
		if _, err := s.usage.SyncUsage(ctx, company.ID, externalID, s.usageWindow); err != nil {
			if domain.IsStoreUnavailable(err) {
				return s.finishRun(ctx, run, s.storeError(err))
			}
			run.result.UsageErrored++
			s.notifyProcessed(ctx, run.result.Kind, domain.OutcomeUsageErrored, domain.StrategyNone)
			run.log.Warn("reconciliation.usage.failed",
				zap.String("company_id", company.ID.String()),
				zap.String("withorb_customer_id", externalID),
				zap.Error(err),
			)
			continue
		}
		run.result.UsageSynced++
		s.notifyProcessed(ctx, run.result.Kind, domain.OutcomeUsageSynced, domain.StrategyNone)
	}

	return s.finishRun(ctx, run, nil)
}

// SyncCustomer reconciles a single billing customer by id.
func (s *Service) SyncCustomer(ctx context.Context, externalID string) (domain.SyncRunResult, error) {
	run := s.startRun(domain.RunKindCustomer)
	ctx = run.ctx(ctx)

	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return s.finishRun(ctx, run, usagedomain.ErrInvalidExternalID)
	}
	if err := s.ping(ctx); err != nil {
		return s.finishRun(ctx, run, err)
	}

	customer, err := s.billing.GetCustomer(ctx, externalID)
	if err != nil {
		return s.finishRun(ctx, run, fmt.Errorf("%w: %w", source.ErrSourceFetch, err))
	}
	run.result.Fetched = 1

	if err := s.reconcileCustomer(ctx, run, customer); err != nil {
		return s.finishRun(ctx, run, err)
	}
	return s.finishRun(ctx, run, nil)
}

func (s *Service) fetchCustomers(ctx context.Context, cursor string, limit int) (source.Page[orb.Customer], error) {
	list, err := s.billing.ListCustomers(ctx, cursor, limit)
	if err != nil {
		return source.Page[orb.Customer]{}, err
	}
	return source.Page[orb.Customer]{
		Items:      list.Data,
		HasMore:    list.PaginationMetadata.HasMore,
		NextCursor: list.Cursor(),
	}, nil
}

func (s *Service) ping(ctx context.Context) error {
	if err := s.companyRepo.Ping(ctx, s.db); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Service) storeError(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsStoreUnavailable(err) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}

func (s *Service) notifyProcessed(ctx context.Context, kind domain.RunKind, outcome domain.RecordOutcome, strategy domain.MatchStrategy) {
	for _, o := range s.observers {
		o.RecordProcessed(ctx, kind, outcome, strategy)
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
