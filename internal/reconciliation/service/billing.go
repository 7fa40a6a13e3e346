package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	companydomain "github.com/smallbiznis/crmsync/internal/company/domain"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/reconciliation/merge"
	"github.com/smallbiznis/crmsync/internal/reconciliation/resolver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type customerDetail struct {
	customer      orb.Customer
	mrr           decimal.Decimal
	subscriptions int
}

// reconcileCustomer applies one billing customer. Only store-connection
// failures are returned; every other failure is counted on the run.
func (s *Service) reconcileCustomer(ctx context.Context, r *run, listed orb.Customer) error {
	log := r.log.With(zap.String("withorb_customer_id", listed.ID))

	company, strategy, outcome, err := s.applyCustomer(ctx, listed)
	if err != nil {
		if domain.IsStoreUnavailable(err) {
			return s.storeError(err)
		}
		r.result.Errored++
		s.notifyProcessed(ctx, r.result.Kind, domain.OutcomeErrored, strategy)
		log.Warn("reconciliation.record.failed", zap.Error(err))
		return nil
	}

	switch outcome {
	case domain.OutcomeUnmatched:
		r.result.Unmatched++
		s.notifyProcessed(ctx, r.result.Kind, outcome, strategy)
		log.Debug("reconciliation.record.unmatched")
		return nil
	case domain.OutcomeCreated:
		r.result.Created++
		r.result.Updated++
	default:
		r.result.Updated++
	}
	s.notifyProcessed(ctx, r.result.Kind, outcome, strategy)

	if _, err := s.usage.SyncUsage(ctx, company.ID, listed.ID, s.usageWindow); err != nil {
		if domain.IsStoreUnavailable(err) {
			return s.storeError(err)
		}
		r.result.UsageErrored++
		s.notifyProcessed(ctx, r.result.Kind, domain.OutcomeUsageErrored, strategy)
		log.Warn("reconciliation.usage.failed",
			zap.String("company_id", company.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	r.result.UsageSynced++
	s.notifyProcessed(ctx, r.result.Kind, domain.OutcomeUsageSynced, strategy)
	return nil
}

func (s *Service) applyCustomer(ctx context.Context, listed orb.Customer) (*companydomain.Company, domain.MatchStrategy, domain.RecordOutcome, error) {
	detail, err := s.fetchDetail(ctx, listed)
	if err != nil {
		return nil, domain.StrategyNone, domain.OutcomeErrored, err
	}

	match, err := s.resolver.Resolve(ctx, s.db, resolver.Candidate{
		Identifier: detail.customer.Name,
		Email:      detail.customer.Email,
	})
	if err != nil {
		return nil, domain.StrategyNone, domain.OutcomeErrored, fmt.Errorf("resolve: %w", err)
	}

	now := s.clock.Now().UTC()
	externalID := strings.TrimSpace(listed.ID)

	// A customer renamed upstream still belongs to the company it was linked to.
	if !match.Found() {
		holder, err := s.companyRepo.FindByBillingID(ctx, s.db, externalID)
		if err != nil {
			return nil, domain.StrategyNone, domain.OutcomeErrored, fmt.Errorf("find billing owner: %w", err)
		}
		if holder != nil {
			match = resolver.Match{Company: holder, Strategy: domain.StrategyBillingID}
		}
	}

	if match.Found() {
		company := match.Company
		update := merge.Plan(*company, merge.Fields{
			MRRUSD:            &detail.mrr,
			WithorbCustomerID: &externalID,
			WithorbSyncDate:   &now,
		}, now)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := s.companyRepo.ReleaseBillingID(ctx, tx, externalID, company.ID); err != nil {
				return err
			}
			return s.companyRepo.Apply(ctx, tx, company.ID, update)
		})
		if err != nil {
			return nil, match.Strategy, domain.OutcomeErrored, fmt.Errorf("merge company %s: %w", company.ID, err)
		}
		return company, match.Strategy, domain.OutcomeUpdated, nil
	}

	if !s.createOnMiss {
		return nil, domain.StrategyNone, domain.OutcomeUnmatched, nil
	}

	company := s.newCompanyFromCustomer(detail, externalID, now)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.companyRepo.ReleaseBillingID(ctx, tx, externalID, company.ID); err != nil {
			return err
		}
		return s.companyRepo.Insert(ctx, tx, company)
	})
	if err != nil {
		return nil, domain.StrategyNone, domain.OutcomeErrored, fmt.Errorf("create company: %w", err)
	}
	return company, domain.StrategyNone, domain.OutcomeCreated, nil
}

// fetchDetail reads the customer and its subscriptions concurrently. The
// listed record fills in fields the detail call left blank.
func (s *Service) fetchDetail(ctx context.Context, listed orb.Customer) (customerDetail, error) {
	var (
		customer      orb.Customer
		subscriptions []orb.Subscription
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customer, err = s.billing.GetCustomer(gctx, listed.ID)
		if err != nil {
			return fmt.Errorf("get customer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		subscriptions, err = s.billing.ListSubscriptions(gctx, listed.ID)
		if err != nil {
			return fmt.Errorf("list subscriptions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return customerDetail{}, err
	}

	if strings.TrimSpace(customer.ID) == "" {
		customer.ID = listed.ID
	}
	if strings.TrimSpace(customer.Name) == "" {
		customer.Name = listed.Name
	}
	if strings.TrimSpace(customer.Email) == "" {
		customer.Email = listed.Email
	}

	mrr, active := orb.MonthlyRecurringRevenue(subscriptions)
	return customerDetail{customer: customer, mrr: mrr, subscriptions: active}, nil
}

func (s *Service) newCompanyFromCustomer(detail customerDetail, externalID string, now time.Time) *companydomain.Company {
	name := strings.TrimSpace(detail.customer.Name)
	if name == "" {
		name = "Unnamed customer " + externalID
	}
	syncDate := now
	company := &companydomain.Company{
		ID:                s.genID.Generate(),
		Name:              name,
		MRRUSD:            detail.mrr.Round(2),
		WithorbCustomerID: &externalID,
		WithorbSyncDate:   &syncDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if s.rules.Get().LooksLikeWallet(name) {
		wallet := companydomain.NormalizeWallet(name)
		company.WalletAddress = &wallet
	}
	return company
}
