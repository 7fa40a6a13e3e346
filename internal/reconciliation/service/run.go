package service

import (
	"context"

	obscontext "github.com/smallbiznis/crmsync/internal/observability/context"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"go.uber.org/zap"
)

type run struct {
	result domain.SyncRunResult
	log    *zap.Logger
}

func (r *run) ctx(ctx context.Context) context.Context {
	return obscontext.WithRunID(ctx, r.result.RunID)
}

func (s *Service) startRun(kind domain.RunKind) *run {
	result := domain.NewRunResult(kind, s.clock.Now().UTC())
	log := s.log.With(
		zap.String("run_id", result.RunID),
		zap.String("kind", string(kind)),
	)
	log.Info("reconciliation.run.start")
	return &run{result: result, log: log}
}

func (s *Service) finishRun(ctx context.Context, r *run, err error) (domain.SyncRunResult, error) {
	r.result.FinishedAt = s.clock.Now().UTC()

	fields := []zap.Field{
		zap.Int("fetched", r.result.Fetched),
		zap.Int("updated", r.result.Updated),
		zap.Int("created", r.result.Created),
		zap.Int("unmatched", r.result.Unmatched),
		zap.Int("errored", r.result.Errored),
		zap.Int("usage_synced", r.result.UsageSynced),
		zap.Int("usage_errored", r.result.UsageErrored),
		zap.Bool("truncated", r.result.Truncated),
		zap.Int64("duration_ms", r.result.Duration().Milliseconds()),
	}
	if r.result.Kind == domain.RunKindWalletImport {
		fields = append(fields,
			zap.Int("wallets_added", r.result.WalletsAdded),
			zap.Int("wallet_conflicts", r.result.WalletConflicts),
		)
	}
	if err != nil {
		r.log.Error("reconciliation.run.finish", append(fields, zap.Error(err))...)
	} else {
		r.log.Info("reconciliation.run.finish", fields...)
	}

	for _, o := range s.observers {
		o.RunFinished(ctx, r.result)
	}
	return r.result, err
}

// LogObserver writes one debug line per processed record.
type LogObserver struct {
	log *zap.Logger
}

func NewLogObserver(log *zap.Logger) *LogObserver {
	return &LogObserver{log: log.Named("reconciliation.observer")}
}

func (o *LogObserver) RecordProcessed(ctx context.Context, kind domain.RunKind, outcome domain.RecordOutcome, strategy domain.MatchStrategy) {
	o.log.Debug("reconciliation.record.processed",
		zap.String("run_id", obscontext.RunIDFromContext(ctx)),
		zap.String("kind", string(kind)),
		zap.String("outcome", string(outcome)),
		zap.String("strategy", string(strategy)),
	)
}

func (o *LogObserver) RunFinished(_ context.Context, result domain.SyncRunResult) {
	if result.Truncated {
		o.log.Warn("reconciliation.run.truncated",
			zap.String("run_id", result.RunID),
			zap.Int("fetched", result.Fetched),
		)
	}
}
