package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"github.com/smallbiznis/crmsync/internal/providers/walletfeed"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/reconciliation/source"
	"github.com/smallbiznis/crmsync/internal/scheduler"
	"github.com/smallbiznis/crmsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	jobs []string
	err  error
}

func (f *fakeRunner) RunJob(ctx context.Context, name string) (domain.SyncRunResult, error) {
	f.jobs = append(f.jobs, name)
	if f.err != nil {
		return domain.SyncRunResult{}, f.err
	}
	return domain.SyncRunResult{RunID: "run-1", Kind: domain.RunKindFull, Fetched: 3, Updated: 2, Created: 1}, nil
}

type fakeEngine struct {
	customerID string
	pairs      []domain.WalletPair
	err        error
}

func (f *fakeEngine) RunFullSync(ctx context.Context) (domain.SyncRunResult, error) {
	return domain.SyncRunResult{Kind: domain.RunKindFull}, f.err
}

func (f *fakeEngine) RunUsageOnlySync(ctx context.Context) (domain.SyncRunResult, error) {
	return domain.SyncRunResult{Kind: domain.RunKindUsage}, f.err
}

func (f *fakeEngine) ImportWallets(ctx context.Context, feed domain.WalletFeed) (domain.SyncRunResult, error) {
	if f.err != nil {
		return domain.SyncRunResult{}, f.err
	}
	pairs, err := feed.Pairs(ctx)
	if err != nil {
		return domain.SyncRunResult{}, err
	}
	f.pairs = pairs
	return domain.SyncRunResult{Kind: domain.RunKindWalletImport, WalletsAdded: len(pairs)}, nil
}

func (f *fakeEngine) SyncCustomer(ctx context.Context, externalID string) (domain.SyncRunResult, error) {
	f.customerID = externalID
	if f.err != nil {
		return domain.SyncRunResult{}, f.err
	}
	return domain.SyncRunResult{Kind: domain.RunKindCustomer, Updated: 1}, nil
}

func newTestServer(t *testing.T, runner *fakeRunner, engine *fakeEngine) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:    r,
		DB:     testutil.OpenSQLite(t),
		Log:    zap.NewNop(),
		Jobs:   runner,
		Engine: engine,
		Feeds:  walletfeed.NewFactory(config.Config{}, zap.NewNop()),
	})
	return srv.Engine()
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) runResponse {
	t.Helper()
	var body struct {
		Data runResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestHealthReportsDatabase(t *testing.T) {
	r := newTestServer(t, &fakeRunner{}, &fakeEngine{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"up"`)
}

func TestRunFullSyncUsesScheduledJob(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestServer(t, runner, &fakeEngine{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sync/full", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{scheduler.JobFullSync}, runner.jobs)
	data := decodeData(t, w)
	assert.Equal(t, "run-1", data.RunID)
	assert.Equal(t, 3, data.Fetched)
	assert.Equal(t, 1, data.Created)
}

func TestRunUsageSyncUsesScheduledJob(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestServer(t, runner, &fakeEngine{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sync/usage", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{scheduler.JobUsageSync}, runner.jobs)
}

func TestSyncCustomerPassesExternalID(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestServer(t, &fakeRunner{}, engine)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sync/customers/cus_123", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cus_123", engine.customerID)
	assert.Equal(t, string(domain.RunKindCustomer), decodeData(t, w).Kind)
}

func TestImportWalletsFromUpload(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestServer(t, &fakeRunner{}, engine)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "wallets.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("wallet_address,company_name\n0xabc,Acme\n0xdef,Globex\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/import/wallets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, engine.pairs, 2)
	assert.Equal(t, "0xabc", engine.pairs[0].WalletAddress)
	assert.Equal(t, 2, decodeData(t, w).WalletsAdded)
}

func TestImportWalletsQueryWithoutCredentials(t *testing.T) {
	r := newTestServer(t, &fakeRunner{}, &fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/import/wallets", bytes.NewBufferString(`{"source":"query"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "missing_credentials", decodeError(t, w).Type)
}

func TestImportWalletsRejectsUnknownSource(t *testing.T) {
	r := newTestServer(t, &fakeRunner{}, &fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/import/wallets", bytes.NewBufferString(`{"source":"s3"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "source", payload.Errors[0].Field)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	r := newTestServer(t, &fakeRunner{}, &fakeEngine{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"unknown job", fmt.Errorf("run: %w", domain.ErrUnknownJob), http.StatusNotFound, "not_found"},
		{"orb not found", orb.ErrNotFound, http.StatusNotFound, "not_found"},
		{"missing credentials", config.ErrMissingCredentials, http.StatusServiceUnavailable, "missing_credentials"},
		{"store down", domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"source fetch", fmt.Errorf("page 2: %w", source.ErrSourceFetch), http.StatusBadGateway, "upstream_error"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, payload.Type)
		})
	}
}

func TestRunResponseDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	resp := toRunResponse(domain.SyncRunResult{StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)})
	assert.Equal(t, int64(1500), resp.DurationMS)
}
