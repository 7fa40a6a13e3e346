package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	total   int
	failAt  int
	cursors []string
}

func (f *fakeSource) fetch(_ context.Context, cursor string, limit int) (Page[int], error) {
	f.cursors = append(f.cursors, cursor)
	page := len(f.cursors)
	if f.failAt > 0 && page == f.failAt {
		return Page[int]{}, errors.New("connection reset")
	}
	start := (page - 1) * limit
	var items []int
	for i := start; i < start+limit && i < f.total; i++ {
		items = append(items, i)
	}
	more := start+limit < f.total
	next := ""
	if more {
		next = fmt.Sprintf("c%d", page)
	}
	return Page[int]{Items: items, HasMore: more, NextCursor: next}, nil
}

func TestFetchAllFollowsCursor(t *testing.T) {
	src := &fakeSource{total: 250}
	records, truncated, err := NewPager(src.fetch, 100, 0, nil).FetchAll(context.Background())

	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, records, 250)
	assert.Equal(t, []string{"", "c1", "c2"}, src.cursors)
}

func TestFetchAllStopsAtCeiling(t *testing.T) {
	src := &fakeSource{total: 25000}
	records, truncated, err := NewPager(src.fetch, 100, 10000, nil).FetchAll(context.Background())

	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, records, 10000)
	assert.Len(t, src.cursors, 100)
}

func TestFetchAllExactlyAtCeilingIsNotTruncated(t *testing.T) {
	src := &fakeSource{total: 200}
	records, truncated, err := NewPager(src.fetch, 100, 200, nil).FetchAll(context.Background())

	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, records, 200)
}

func TestFetchAllPageErrorIsFatal(t *testing.T) {
	src := &fakeSource{total: 500, failAt: 3}
	records, _, err := NewPager(src.fetch, 100, 0, nil).FetchAll(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceFetch)
	assert.Nil(t, records)
}

func TestFetchAllStopsWhenCursorMissing(t *testing.T) {
	calls := 0
	fetch := func(context.Context, string, int) (Page[int], error) {
		calls++
		return Page[int]{Items: []int{1, 2}, HasMore: true}, nil
	}
	records, truncated, err := NewPager(fetch, 2, 0, nil).FetchAll(context.Background())

	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, []int{1, 2}, records)
	assert.Equal(t, 1, calls)
}
