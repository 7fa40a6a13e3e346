package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/crmsync/internal/company/domain"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/reconciliation/merge"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type walletGroup struct {
	name    string
	wallets []string
	seen    map[string]struct{}
}

type groupStats struct {
	created   bool
	added     int
	conflicts int
}

// ImportWallets links wallet addresses from feed to companies by name,
// creating companies that do not exist yet. The first wallet of a group
// becomes the primary one.
func (s *Service) ImportWallets(ctx context.Context, feed domain.WalletFeed) (domain.SyncRunResult, error) {
	run := s.startRun(domain.RunKindWalletImport)
	ctx = run.ctx(ctx)

	if err := s.ping(ctx); err != nil {
		return s.finishRun(ctx, run, err)
	}

	pairs, err := feed.Pairs(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrFeedUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
		}
		return s.finishRun(ctx, run, err)
	}
	run.result.Fetched = len(pairs)

	for _, group := range groupPairs(pairs) {
		stats, err := s.importGroup(ctx, run, group)
		if err != nil {
			if domain.IsStoreUnavailable(err) {
				return s.finishRun(ctx, run, s.storeError(err))
			}
			run.result.Errored++
			s.notifyProcessed(ctx, run.result.Kind, domain.OutcomeErrored, domain.StrategyName)
			run.log.Warn("reconciliation.record.failed",
				zap.String("company_name", group.name),
				zap.Error(err),
			)
			continue
		}

		outcome := domain.OutcomeUpdated
		if stats.created {
			outcome = domain.OutcomeCreated
			run.result.Created++
		} else {
			run.result.Updated++
		}
		run.result.WalletsAdded += stats.added
		run.result.WalletConflicts += stats.conflicts
		s.notifyProcessed(ctx, run.result.Kind, outcome, domain.StrategyName)
	}

	return s.finishRun(ctx, run, nil)
}

// groupPairs folds pairs by case-insensitive company name, keeping the
// first display name, first-seen order and unique lowercased wallets.
func groupPairs(pairs []domain.WalletPair) []*walletGroup {
	var order []*walletGroup
	byKey := map[string]*walletGroup{}
	for _, pair := range pairs {
		name := strings.TrimSpace(pair.CompanyName)
		wallet := companydomain.NormalizeWallet(pair.WalletAddress)
		if name == "" || wallet == "" {
			continue
		}
		key := strings.ToLower(name)
		group, ok := byKey[key]
		if !ok {
			group = &walletGroup{name: name, seen: map[string]struct{}{}}
			byKey[key] = group
			order = append(order, group)
		}
		if _, dup := group.seen[wallet]; dup {
			continue
		}
		group.seen[wallet] = struct{}{}
		group.wallets = append(group.wallets, wallet)
	}
	return order
}

func (s *Service) importGroup(ctx context.Context, r *run, group *walletGroup) (groupStats, error) {
	var stats groupStats
	now := s.clock.Now().UTC()
	primary := group.wallets[0]

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stats = groupStats{}

		company, err := s.companyRepo.FindByName(ctx, tx, group.name)
		if err != nil {
			return fmt.Errorf("find company: %w", err)
		}
		if company == nil {
			company = &companydomain.Company{
				ID:            s.genID.Generate(),
				Name:          group.name,
				WalletAddress: &primary,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.companyRepo.Insert(ctx, tx, company); err != nil {
				return fmt.Errorf("create company: %w", err)
			}
			stats.created = true
		} else {
			update := merge.Plan(*company, merge.Fields{WalletAddress: &primary}, now)
			if err := s.companyRepo.Apply(ctx, tx, company.ID, update); err != nil {
				return fmt.Errorf("set primary wallet: %w", err)
			}
		}

		for i, wallet := range group.wallets {
			added, conflict, err := s.linkWallet(ctx, tx, r, company.ID, wallet, i == 0, now)
			if err != nil {
				return fmt.Errorf("link wallet %s: %w", wallet, err)
			}
			if added {
				stats.added++
			}
			if conflict {
				stats.conflicts++
			}
		}
		return nil
	})
	return stats, err
}

// linkWallet makes wallet belong to companyID. A wallet linked to or stored
// on another company is moved over, so each address ends up with a single
// owner.
func (s *Service) linkWallet(ctx context.Context, tx *gorm.DB, r *run, companyID snowflake.ID, wallet string, primary bool, now time.Time) (bool, bool, error) {
	released, err := s.companyRepo.ReleaseWallet(ctx, tx, wallet, companyID)
	if err != nil {
		return false, false, err
	}

	links, err := s.companyRepo.ListWalletLinks(ctx, tx, wallet)
	if err != nil {
		return false, false, err
	}

	var foreign *companydomain.CompanyWallet
	owned := false
	for i := range links {
		if links[i].CompanyID == companyID {
			owned = true
			break
		}
		if foreign == nil {
			foreign = &links[i]
		}
	}

	var added bool
	switch {
	case owned:
	case foreign != nil:
		if err := s.companyRepo.ReassignWallet(ctx, tx, foreign.ID, companyID, primary); err != nil {
			return false, false, err
		}
	default:
		added, err = s.companyRepo.InsertWallet(ctx, tx, &companydomain.CompanyWallet{
			ID:            s.genID.Generate(),
			CompanyID:     companyID,
			WalletAddress: wallet,
			IsPrimary:     primary,
			CreatedAt:     now,
		})
		if err != nil {
			return false, false, err
		}
	}

	conflict := (foreign != nil && !owned) || released > 0
	if conflict {
		previous := ""
		if foreign != nil {
			previous = foreign.CompanyID.String()
		}
		r.log.Warn("reconciliation.wallet.conflict",
			zap.String("wallet_address", wallet),
			zap.String("previous_company_id", previous),
			zap.Int64("released_columns", released),
			zap.String("company_id", companyID.String()),
		)
	}
	return added, conflict, nil
}
