package walletfeed

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"go.uber.org/zap"
)

const walletMappingQuery = `SELECT DISTINCT wallet_address, company_name
FROM prod_hubspot_dimensions
WHERE wallet_address IS NOT NULL AND wallet_address <> ''
  AND company_name IS NOT NULL AND company_name <> ''`

// PostgresFeed reads pairs straight from the analytics database.
type PostgresFeed struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewPostgresFeed(ctx context.Context, cfg config.MetabaseConfig, log *zap.Logger) (*PostgresFeed, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to analytics db: %w", err)
	}
	return &PostgresFeed{pool: pool, log: log.Named("walletfeed.postgres")}, nil
}

func (f *PostgresFeed) Pairs(ctx context.Context) ([]domain.WalletPair, error) {
	rows, err := f.pool.Query(ctx, walletMappingQuery)
	if err != nil {
		return nil, fmt.Errorf("query wallet mappings: %w", err)
	}
	defer rows.Close()

	var pairs []domain.WalletPair
	for rows.Next() {
		var wallet, company string
		if err := rows.Scan(&wallet, &company); err != nil {
			return nil, fmt.Errorf("scan wallet mapping: %w", err)
		}
		if pair, ok := pairFrom([]string{wallet, company}, 0, 1); ok {
			pairs = append(pairs, pair)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read wallet mappings: %w", err)
	}

	f.log.Info("walletfeed.postgres.loaded", zap.Int("pairs", len(pairs)))
	return pairs, nil
}

func (f *PostgresFeed) Close() {
	if f != nil && f.pool != nil {
		f.pool.Close()
	}
}

// connString builds a postgres URL; credentials are escaped so passwords
// with reserved characters survive.
func connString(cfg config.MetabaseConfig) string {
	sslMode := "disable"
	if cfg.SSL {
		sslMode = "require"
	}
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, port),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}
