package domain

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
)

type RunKind string

const (
	RunKindFull         RunKind = "full"
	RunKindUsage        RunKind = "usage"
	RunKindWalletImport RunKind = "wallet_import"
	RunKindCustomer     RunKind = "customer"
)

// MatchStrategy names the rule that resolved an external record.
type MatchStrategy string

const (
	StrategyWallet    MatchStrategy = "wallet"
	StrategyDomain    MatchStrategy = "domain"
	StrategyName      MatchStrategy = "name"
	StrategyBillingID MatchStrategy = "billing_id"
	StrategyNone      MatchStrategy = "none"
)

type RecordOutcome string

const (
	OutcomeUpdated      RecordOutcome = "updated"
	OutcomeCreated      RecordOutcome = "created"
	OutcomeUnmatched    RecordOutcome = "unmatched"
	OutcomeErrored      RecordOutcome = "errored"
	OutcomeUsageSynced  RecordOutcome = "usage_synced"
	OutcomeUsageErrored RecordOutcome = "usage_errored"
)

// SyncRunResult summarizes one run. Updated includes creations; Created is
// the creation share.
type SyncRunResult struct {
	RunID           string
	Kind            RunKind
	Fetched         int
	Updated         int
	Created         int
	Unmatched       int
	Errored         int
	UsageSynced     int
	UsageErrored    int
	WalletsAdded    int
	WalletConflicts int
	Truncated       bool
	StartedAt       time.Time
	FinishedAt      time.Time
}

func NewRunResult(kind RunKind, now time.Time) SyncRunResult {
	return SyncRunResult{
		RunID:     ulid.Make().String(),
		Kind:      kind,
		StartedAt: now,
	}
}

func (r SyncRunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Observer receives progress of a run as it happens. Implementations must
// not block.
type Observer interface {
	RecordProcessed(ctx context.Context, kind RunKind, outcome RecordOutcome, strategy MatchStrategy)
	RunFinished(ctx context.Context, result SyncRunResult)
}

// BillingProvider is the subset of the billing API a sync run reads.
type BillingProvider interface {
	ListCustomers(ctx context.Context, cursor string, limit int) (orb.CustomerList, error)
	GetCustomer(ctx context.Context, customerID string) (orb.Customer, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]orb.Subscription, error)
}

// Engine runs reconciliation passes.
type Engine interface {
	RunFullSync(ctx context.Context) (SyncRunResult, error)
	RunUsageOnlySync(ctx context.Context) (SyncRunResult, error)
	ImportWallets(ctx context.Context, feed WalletFeed) (SyncRunResult, error)
	SyncCustomer(ctx context.Context, externalID string) (SyncRunResult, error)
}

// WalletPair links one wallet address to a company display name.
type WalletPair struct {
	WalletAddress string
	CompanyName   string
}

type WalletFeed interface {
	Pairs(ctx context.Context) ([]WalletPair, error)
}
