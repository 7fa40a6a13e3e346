package domain

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrStoreUnavailable = errors.New("store_unavailable")
	ErrFeedUnavailable  = errors.New("feed_unavailable")
	ErrUnknownJob       = errors.New("unknown_job")
)

// IsStoreUnavailable reports whether err means the store connection itself
// is gone, as opposed to a single statement failing.
func IsStoreUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, gorm.ErrInvalidDB) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}
