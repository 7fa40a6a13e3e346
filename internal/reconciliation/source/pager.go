// Package source reads cursor-paginated collections with a hard record cap.
package source

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	DefaultPageSize   = 100
	DefaultMaxRecords = 10000
)

var ErrSourceFetch = errors.New("source_fetch_failed")

type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor string
}

// FetchFunc returns the page starting at cursor. An empty cursor asks for
// the first page.
type FetchFunc[T any] func(ctx context.Context, cursor string, limit int) (Page[T], error)

type Pager[T any] struct {
	fetch      FetchFunc[T]
	pageSize   int
	maxRecords int
	log        *zap.Logger
}

func NewPager[T any](fetch FetchFunc[T], pageSize, maxRecords int, log *zap.Logger) *Pager[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pager[T]{
		fetch:      fetch,
		pageSize:   pageSize,
		maxRecords: maxRecords,
		log:        log.Named("source.pager"),
	}
}

// FetchAll walks every page until the source reports no more data or the
// record cap is hit. Hitting the cap is not an error; truncated reports it.
func (p *Pager[T]) FetchAll(ctx context.Context) ([]T, bool, error) {
	var (
		records []T
		cursor  string
		pages   int
	)
	for {
		page, err := p.fetch(ctx, cursor, p.pageSize)
		if err != nil {
			return nil, false, fmt.Errorf("%w: page %d: %w", ErrSourceFetch, pages+1, err)
		}
		pages++

		remaining := p.maxRecords - len(records)
		if len(page.Items) >= remaining {
			records = append(records, page.Items[:remaining]...)
			truncated := len(page.Items) > remaining || page.HasMore
			if truncated {
				p.log.Warn("source.pager.truncated",
					zap.Int("max_records", p.maxRecords),
					zap.Int("pages", pages),
				)
			}
			return records, truncated, nil
		}
		records = append(records, page.Items...)

		if !page.HasMore {
			break
		}
		if page.NextCursor == "" {
			p.log.Warn("source.pager.missing_cursor", zap.Int("pages", pages))
			break
		}
		cursor = page.NextCursor
	}

	p.log.Debug("source.pager.done",
		zap.Int("records", len(records)),
		zap.Int("pages", pages),
	)
	return records, false, nil
}
