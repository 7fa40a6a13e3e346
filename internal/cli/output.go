package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
)

type resultView struct {
	RunID           string `json:"run_id"`
	Kind            string `json:"kind"`
	Fetched         int    `json:"fetched"`
	Updated         int    `json:"updated"`
	Created         int    `json:"created"`
	Unmatched       int    `json:"unmatched"`
	Errored         int    `json:"errored"`
	UsageSynced     int    `json:"usage_synced"`
	UsageErrored    int    `json:"usage_errored"`
	WalletsAdded    int    `json:"wallets_added"`
	WalletConflicts int    `json:"wallet_conflicts"`
	Truncated       bool   `json:"truncated"`
	Duration        string `json:"duration"`
}

func newResultView(r domain.SyncRunResult) resultView {
	return resultView{
		RunID:           r.RunID,
		Kind:            string(r.Kind),
		Fetched:         r.Fetched,
		Updated:         r.Updated,
		Created:         r.Created,
		Unmatched:       r.Unmatched,
		Errored:         r.Errored,
		UsageSynced:     r.UsageSynced,
		UsageErrored:    r.UsageErrored,
		WalletsAdded:    r.WalletsAdded,
		WalletConflicts: r.WalletConflicts,
		Truncated:       r.Truncated,
		Duration:        r.Duration().Round(time.Millisecond).String(),
	}
}

func writeResult(w io.Writer, format string, result domain.SyncRunResult) error {
	view := newResultView(result)
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		label string
		value any
	}{
		{"run", view.RunID},
		{"kind", view.Kind},
		{"fetched", view.Fetched},
		{"updated", view.Updated},
		{"created", view.Created},
		{"unmatched", view.Unmatched},
		{"errored", view.Errored},
		{"usage synced", view.UsageSynced},
		{"usage errored", view.UsageErrored},
		{"wallets added", view.WalletsAdded},
		{"wallet conflicts", view.WalletConflicts},
		{"truncated", view.Truncated},
		{"duration", view.Duration},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%v\n", row.label, row.value); err != nil {
			return err
		}
	}
	return tw.Flush()
}
