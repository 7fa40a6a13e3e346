package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/scheduler"
	"go.uber.org/zap"
)

const maxUploadBytes = 32 << 20

type runResponse struct {
	RunID           string    `json:"run_id"`
	Kind            string    `json:"kind"`
	Fetched         int       `json:"fetched"`
	Updated         int       `json:"updated"`
	Created         int       `json:"created"`
	Unmatched       int       `json:"unmatched"`
	Errored         int       `json:"errored"`
	UsageSynced     int       `json:"usage_synced"`
	UsageErrored    int       `json:"usage_errored"`
	WalletsAdded    int       `json:"wallets_added"`
	WalletConflicts int       `json:"wallet_conflicts"`
	Truncated       bool      `json:"truncated"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationMS      int64     `json:"duration_ms"`
}

func toRunResponse(r domain.SyncRunResult) runResponse {
	return runResponse{
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
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DurationMS:      r.Duration().Milliseconds(),
	}
}

type importWalletsRequest struct {
	Source string `json:"source"`
}

// Runs are detached from the request so a dropped client never stops a
// sync halfway.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (s *Server) RunFullSync(c *gin.Context) {
	s.runJob(c, scheduler.JobFullSync)
}

func (s *Server) RunUsageSync(c *gin.Context) {
	s.runJob(c, scheduler.JobUsageSync)
}

func (s *Server) runJob(c *gin.Context, job string) {
	result, err := s.jobs.RunJob(detached(c), job)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toRunResponse(result)})
}

func (s *Server) SyncCustomer(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("id"))
	if externalID == "" {
		AbortWithError(c, newValidationError("id", "required", "customer id is required"))
		return
	}

	result, err := s.sync.SyncCustomer(detached(c), externalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toRunResponse(result)})
}

// ImportWallets accepts either a multipart CSV upload in field "file" or a
// JSON body {"source":"query"} that reads the analytics database.
func (s *Server) ImportWallets(c *gin.Context) {
	ctx := detached(c)

	var feed domain.WalletFeed
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			AbortWithError(c, newValidationError("file", "required", "csv file is required"))
			return
		}
		if header.Size > maxUploadBytes {
			AbortWithError(c, newValidationError("file", "too_large", "csv file is too large"))
			return
		}
		file, err := header.Open()
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		defer file.Close()
		feed = s.feeds.Reader(header.Filename, io.LimitReader(file, maxUploadBytes))
	} else {
		var req importWalletsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		if !strings.EqualFold(strings.TrimSpace(req.Source), "query") {
			AbortWithError(c, newValidationError("source", "invalid_source", "source must be query"))
			return
		}
		queryFeed, err := s.feeds.Query(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		defer queryFeed.Close()
		feed = queryFeed
	}

	result, err := s.sync.ImportWallets(ctx, feed)
	if err != nil {
		s.log.Warn("server.import.failed", zap.Error(err))
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toRunResponse(result)})
}
