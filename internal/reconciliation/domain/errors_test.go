package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsStoreUnavailable(t *testing.T) {
	assert.True(t, IsStoreUnavailable(fmt.Errorf("ping: %w", driver.ErrBadConn)))
	assert.True(t, IsStoreUnavailable(&pgconn.PgError{Code: "08006"}))
	assert.False(t, IsStoreUnavailable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsStoreUnavailable(errors.New("boom")))
	assert.False(t, IsStoreUnavailable(nil))
}

func TestRunResultDuration(t *testing.T) {
	r := SyncRunResult{}
	assert.Zero(t, r.Duration())
}
