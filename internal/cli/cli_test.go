package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/providers/walletfeed"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEngine struct {
	calls      []string
	customerID string
	pairs      []domain.WalletPair
	err        error
}

func (f *fakeEngine) RunFullSync(context.Context) (domain.SyncRunResult, error) {
	f.calls = append(f.calls, "full")
	return domain.SyncRunResult{RunID: "r1", Kind: domain.RunKindFull, Fetched: 2, Created: 1, Updated: 1}, f.err
}

func (f *fakeEngine) RunUsageOnlySync(context.Context) (domain.SyncRunResult, error) {
	f.calls = append(f.calls, "usage")
	return domain.SyncRunResult{RunID: "r2", Kind: domain.RunKindUsage, UsageSynced: 4}, f.err
}

func (f *fakeEngine) ImportWallets(ctx context.Context, feed domain.WalletFeed) (domain.SyncRunResult, error) {
	f.calls = append(f.calls, "wallets")
	pairs, err := feed.Pairs(ctx)
	if err != nil {
		return domain.SyncRunResult{}, err
	}
	f.pairs = pairs
	return domain.SyncRunResult{RunID: "r3", Kind: domain.RunKindWalletImport, WalletsAdded: len(pairs)}, f.err
}

func (f *fakeEngine) SyncCustomer(_ context.Context, externalID string) (domain.SyncRunResult, error) {
	f.calls = append(f.calls, "customer")
	f.customerID = externalID
	return domain.SyncRunResult{RunID: "r4", Kind: domain.RunKindCustomer, Updated: 1}, f.err
}

type fakePusher struct{ pushes int }

func (p *fakePusher) Push(context.Context, prometheus.Gatherer) error {
	p.pushes++
	return nil
}

type harness struct {
	engine  *fakeEngine
	pusher  *fakePusher
	out     *bytes.Buffer
	cfg     config.Config
	stopped bool
	booted  bool
}

func newHarness() *harness {
	return &harness{
		engine: &fakeEngine{},
		pusher: &fakePusher{},
		out:    &bytes.Buffer{},
		cfg: config.Config{
			Withorb: config.WithorbConfig{APIKey: "test-key"},
		},
	}
}

func (h *harness) run(args ...string) error {
	opts := &RootOptions{
		Out:        h.out,
		LoadConfig: func() config.Config { return h.cfg },
		Bootstrap: func(context.Context) (*Runtime, func(context.Context) error, error) {
			h.booted = true
			rt := &Runtime{
				Engine:   h.engine,
				Feeds:    walletfeed.NewFactory(h.cfg, zap.NewNop()),
				Pusher:   h.pusher,
				Gatherer: prometheus.NewRegistry(),
				Log:      zap.NewNop(),
			}
			return rt, func(context.Context) error { h.stopped = true; return nil }, nil
		},
	}
	cmd := NewRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(h.out)
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)
	for _, path := range [][]string{{"sync", "full"}, {"sync", "usage"}, {"sync", "customer"}, {"import", "wallets"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestSyncFullPrintsJSONAndPushesMetrics(t *testing.T) {
	h := newHarness()

	require.NoError(t, h.run("sync", "full", "--format", "json"))

	assert.Equal(t, []string{"full"}, h.engine.calls)
	assert.Equal(t, 1, h.pusher.pushes)
	assert.True(t, h.stopped)

	var view resultView
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &view))
	assert.Equal(t, "r1", view.RunID)
	assert.Equal(t, "full", view.Kind)
	assert.Equal(t, 1, view.Created)
}

func TestSyncUsagePrintsText(t *testing.T) {
	h := newHarness()

	require.NoError(t, h.run("sync", "usage"))

	assert.Equal(t, []string{"usage"}, h.engine.calls)
	assert.Contains(t, h.out.String(), "usage synced")
	assert.Contains(t, h.out.String(), "4")
}

func TestSyncCustomer(t *testing.T) {
	h := newHarness()

	require.NoError(t, h.run("sync", "customer", "cus_42"))

	assert.Equal(t, "cus_42", h.engine.customerID)
}

func TestSyncWithoutAPIKeyExitsWithConfigError(t *testing.T) {
	h := newHarness()
	h.cfg.Withorb.APIKey = ""

	err := h.run("sync", "full")

	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.False(t, h.booted)
}

func TestSyncFailureExitsWithFailure(t *testing.T) {
	h := newHarness()
	h.engine.err = domain.ErrStoreUnavailable

	err := h.run("sync", "full")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 1, h.pusher.pushes)
}

func TestImportWalletsFromFile(t *testing.T) {
	h := newHarness()
	path := filepath.Join(t.TempDir(), "wallets.csv")
	require.NoError(t, os.WriteFile(path, []byte("0xAAA,Acme\n0xBBB,Acme\n"), 0o600))

	require.NoError(t, h.run("import", "wallets", "--file", path))

	require.Len(t, h.engine.pairs, 2)
	assert.Equal(t, "Acme", h.engine.pairs[1].CompanyName)
}

func TestImportWalletsQueryWithoutCredentials(t *testing.T) {
	h := newHarness()

	err := h.run("import", "wallets", "--query")

	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
	assert.False(t, h.booted)
}

func TestImportWalletsRequiresSource(t *testing.T) {
	h := newHarness()

	err := h.run("import", "wallets")

	require.Error(t, err)
	assert.Empty(t, h.engine.calls)
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness()

	err := h.run("sync", "full", "--format", "yaml")

	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitConfigError, GetExitCode(config.ErrMissingCredentials))
	assert.Equal(t, 7, GetExitCode(WrapExitError(7, "x", errors.New("y"))))
}
