// Package resolver maps external customer records onto internal companies.
package resolver

import (
	"context"
	"strings"

	companydomain "github.com/smallbiznis/crmsync/internal/company/domain"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"gorm.io/gorm"
)

// Candidate is what an external record offers for matching. Identifier is
// the display name, which may carry a wallet address instead of a name.
type Candidate struct {
	Identifier string
	Email      string
}

type Match struct {
	Company  *companydomain.Company
	Strategy domain.MatchStrategy
}

func (m Match) Found() bool {
	return m.Company != nil
}

type Resolver struct {
	repo  companydomain.Repository
	rules *config.MatchingRulesHolder
}

func New(repo companydomain.Repository, rules *config.MatchingRulesHolder) *Resolver {
	return &Resolver{repo: repo, rules: rules}
}

// Resolve tries wallet, then email domain, then exact name. The first rule
// that finds a company wins; within a rule the lowest company id wins, except
// that a linked wallet beats one stored on the company row.
func (r *Resolver) Resolve(ctx context.Context, db *gorm.DB, c Candidate) (Match, error) {
	identifier := strings.TrimSpace(c.Identifier)

	if r.rules.Get().LooksLikeWallet(identifier) {
		company, err := r.repo.FindByWallet(ctx, db, identifier)
		if err != nil {
			return Match{}, err
		}
		if company != nil {
			return Match{Company: company, Strategy: domain.StrategyWallet}, nil
		}
	}

	if d := DomainFromEmail(c.Email); d != "" {
		company, err := r.repo.FindByDomain(ctx, db, []string{d, "www." + d})
		if err != nil {
			return Match{}, err
		}
		if company != nil {
			return Match{Company: company, Strategy: domain.StrategyDomain}, nil
		}
	}

	if identifier != "" {
		company, err := r.repo.FindByName(ctx, db, identifier)
		if err != nil {
			return Match{}, err
		}
		if company != nil {
			return Match{Company: company, Strategy: domain.StrategyName}, nil
		}
	}

	return Match{Strategy: domain.StrategyNone}, nil
}

// DomainFromEmail returns the lowercased text after the last '@', or "".
func DomainFromEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
