package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadboard/models"
	"leadboard/utils"
)

// pagedSource serves a fixed number of pages per account and can fail on a chosen page.
type pagedSource struct {
	pages      int
	perPage    int
	reported   int
	failOnPage int
	empty      map[int]bool
	calls      []int
}

func (s *pagedSource) FetchPage(ctx context.Context, req PageRequest) (*models.Page, error) {
	s.calls = append(s.calls, req.Page)
	if req.Page == s.failOnPage {
		return nil, errors.New("503 service unavailable")
	}
	p := &models.Page{}
	if req.Page <= s.pages && !s.empty[req.Page] {
		for i := 0; i < s.perPage; i++ {
			p.Items = append(p.Items, models.RawRecord{ID: fmt.Sprintf("%d-%d", req.Page, i)})
		}
	}
	p.Pagination.TotalPages = s.reported
	return p, nil
}

func newTestFetcher(src Source, maxPages int) *Fetcher {
	return NewFetcher(src, 2, maxPages, 0, utils.NewNopLogger())
}

func TestFetchAllWalksEveryPage(t *testing.T) {
	src := &pagedSource{pages: 3, perPage: 2, reported: 3}
	records, err := newTestFetcher(src, 10).FetchAll(context.Background(), "acct_1", models.KindCall)

	require.NoError(t, err)
	assert.Len(t, records, 6)
	assert.Equal(t, []int{1, 2, 3}, src.calls)
	for _, r := range records {
		assert.Equal(t, "acct_1", r.AccountID)
		assert.Equal(t, models.KindCall, r.Kind)
	}
}

func TestFetchAllStopsAtPageCeiling(t *testing.T) {
	src := &pagedSource{pages: 1000, perPage: 1, reported: 1000}
	records, err := newTestFetcher(src, 10).FetchAll(context.Background(), "acct_1", models.KindLead)

	require.NoError(t, err)
	assert.Len(t, records, 10)
	assert.Len(t, src.calls, 10)
}

func TestFetchAllDefaultsMissingTotalPagesToOne(t *testing.T) {
	src := &pagedSource{pages: 5, perPage: 1, reported: 0}
	records, err := newTestFetcher(src, 10).FetchAll(context.Background(), "acct_1", models.KindLead)

	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFetchAllContinuesPastEmptyPage(t *testing.T) {
	src := &pagedSource{pages: 3, perPage: 1, reported: 3, empty: map[int]bool{2: true}}
	records, err := newTestFetcher(src, 10).FetchAll(context.Background(), "acct_1", models.KindLead)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1-0", records[0].ID)
	assert.Equal(t, "3-0", records[1].ID)
	assert.Equal(t, []int{1, 2, 3}, src.calls)
}

func TestFetchAllWalksReportedPagesEvenWhenEmpty(t *testing.T) {
	src := &pagedSource{pages: 2, perPage: 1, reported: 9}
	records, err := newTestFetcher(src, 5).FetchAll(context.Background(), "acct_1", models.KindLead)

	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, src.calls, "trailing empty pages are walked up to the ceiling")
}

func TestFetchAllKeepsPagesBeforeFailure(t *testing.T) {
	src := &pagedSource{pages: 4, perPage: 2, reported: 4, failOnPage: 3}
	records, err := newTestFetcher(src, 10).FetchAll(context.Background(), "acct_1", models.KindConversation)

	require.Error(t, err)
	var pageErr *PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, 3, pageErr.Page)
	assert.Len(t, records, 4, "pages 1 and 2 survive the failure on page 3")
	assert.Equal(t, []int{1, 2, 3}, src.calls, "no retry after a failed page")
}

func TestPagesSupportsEarlyStop(t *testing.T) {
	src := &pagedSource{pages: 5, perPage: 1, reported: 5}
	f := newTestFetcher(src, 10)

	for items, err := range f.Pages(context.Background(), "acct_1", models.KindCall) {
		require.NoError(t, err)
		require.Len(t, items, 1)
		break
	}
	assert.Equal(t, []int{1}, src.calls)
}

func TestPagesHonoursCancelledContext(t *testing.T) {
	src := &pagedSource{pages: 5, perPage: 1, reported: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := newTestFetcher(src, 10).FetchAll(ctx, "acct_1", models.KindCall)
	require.Error(t, err)
	assert.Empty(t, records)
	assert.Empty(t, src.calls)
}
