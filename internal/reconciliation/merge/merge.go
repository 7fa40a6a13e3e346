// Package merge decides which company columns an incoming record may write.
package merge

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	companydomain "github.com/smallbiznis/crmsync/internal/company/domain"
)

// Fields carries what one source supplied. Nil means "not supplied" and is
// never written.
type Fields struct {
	WalletAddress        *string
	MonthlyQueryVolume   *int64
	MRRUSD               *decimal.Decimal
	WithorbCustomerID    *string
	WithorbSyncDate      *time.Time
	WithorbLastUsageSync *time.Time
}

// Plan builds the update for existing. Metric and billing columns are
// overwritten. The wallet is written only while the row has none; the
// repository repeats that check in SQL.
func Plan(existing companydomain.Company, in Fields, now time.Time) companydomain.Update {
	update := companydomain.Update{
		Set:         map[string]any{},
		SetIfAbsent: map[string]any{},
	}

	if in.WalletAddress != nil && !existing.HasWallet() {
		if wallet := companydomain.NormalizeWallet(*in.WalletAddress); wallet != "" {
			update.SetIfAbsent[companydomain.ColumnWalletAddress] = wallet
		}
	}
	if in.MonthlyQueryVolume != nil {
		update.Set[companydomain.ColumnMonthlyQueryVolume] = *in.MonthlyQueryVolume
	}
	if in.MRRUSD != nil {
		update.Set[companydomain.ColumnMRRUSD] = in.MRRUSD.Round(2)
	}
	if in.WithorbCustomerID != nil && strings.TrimSpace(*in.WithorbCustomerID) != "" {
		update.Set[companydomain.ColumnWithorbCustomerID] = strings.TrimSpace(*in.WithorbCustomerID)
	}
	if in.WithorbSyncDate != nil {
		update.Set[companydomain.ColumnWithorbSyncDate] = in.WithorbSyncDate.UTC()
	}
	if in.WithorbLastUsageSync != nil {
		update.Set[companydomain.ColumnWithorbLastUsageSync] = in.WithorbLastUsageSync.UTC()
	}

	if !update.Empty() {
		update.Set[companydomain.ColumnUpdatedAt] = now.UTC()
	}
	return update
}
