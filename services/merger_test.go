package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadboard/models"
	"leadboard/source"
	"leadboard/utils"
)

// memSource serves canned pages per "account/kind" and can fail or panic per source.
type memSource struct {
	mu     sync.Mutex
	pages  map[string][][]models.RawRecord
	fail   map[string]int
	panics map[string]bool
	calls  int
}

func newMemSource() *memSource {
	return &memSource{
		pages:  make(map[string][][]models.RawRecord),
		fail:   make(map[string]int),
		panics: make(map[string]bool),
	}
}

func (s *memSource) add(account string, kind models.RecordKind, pages ...[]models.RawRecord) {
	s.pages[account+"/"+string(kind)] = pages
}

func (s *memSource) FetchPage(ctx context.Context, req source.PageRequest) (*models.Page, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	key := req.AccountID + "/" + string(req.Kind)
	if s.panics[key] {
		panic("malformed payload")
	}
	if page, ok := s.fail[key]; ok && req.Page >= page {
		return nil, errors.New("connection refused")
	}
	pages := s.pages[key]
	p := &models.Page{}
	p.Pagination.TotalPages = len(pages)
	if req.Page <= len(pages) {
		p.Items = pages[req.Page-1]
	}
	return p, nil
}

func recs(prefix string, n int) []models.RawRecord {
	out := make([]models.RawRecord, n)
	for i := range out {
		out[i] = models.RawRecord{ID: fmt.Sprintf("%s%d", prefix, i)}
	}
	return out
}

func ids(records []models.RawRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func newTestMerger(src source.Source, concurrency int) *Merger {
	logger := utils.NewNopLogger()
	return NewMerger(source.NewFetcher(src, 10, 10, 0, logger), concurrency, logger)
}

func TestSourcesAreAccountMajor(t *testing.T) {
	refs := Sources([]models.Account{{ID: "a"}, {ID: "b"}}, models.KindConversation, models.KindCall)
	got := make([]string, len(refs))
	for i, r := range refs {
		got[i] = r.String()
	}
	assert.Equal(t, []string{"a/conversation", "a/call", "b/conversation", "b/call"}, got)
}

func TestMergeAllIsolatesFailures(t *testing.T) {
	src := newMemSource()
	src.add("a", models.KindLead, recs("a", 2), recs("a-p2-", 1))
	src.add("b", models.KindLead, recs("b", 2))
	src.fail["b/lead"] = 1
	src.add("c", models.KindLead, recs("c", 1), recs("c-p2-", 1))
	src.fail["c/lead"] = 2

	refs := Sources([]models.Account{{ID: "a"}, {ID: "b"}, {ID: "c"}}, models.KindLead)
	res := newTestMerger(src, 1).MergeAll(context.Background(), refs)

	assert.Equal(t, []string{"a0", "a1", "a-p2-0", "c0"}, ids(res.Records))
	assert.Equal(t, []string{"b/lead", "c/lead"}, res.FailedNames())
}

func TestMergeAllRecoversPanickingSource(t *testing.T) {
	src := newMemSource()
	src.add("a", models.KindCall, recs("a", 1))
	src.panics["b/call"] = true
	src.add("c", models.KindCall, recs("c", 1))

	refs := Sources([]models.Account{{ID: "a"}, {ID: "b"}, {ID: "c"}}, models.KindCall)
	res := newTestMerger(src, 1).MergeAll(context.Background(), refs)

	assert.Equal(t, []string{"a0", "c0"}, ids(res.Records))
	assert.Equal(t, []string{"b/call"}, res.FailedNames())
}

func TestMergeAllConcurrentKeepsSourceOrder(t *testing.T) {
	src := newMemSource()
	var accounts []models.Account
	var want []string
	for i := range 8 {
		id := fmt.Sprintf("acct%d", i)
		accounts = append(accounts, models.Account{ID: id})
		src.add(id, models.KindLead, recs(id+"-", 3))
		want = append(want, ids(recs(id+"-", 3))...)
	}

	res := newTestMerger(src, 4).MergeAll(context.Background(), Sources(accounts, models.KindLead))
	assert.Equal(t, want, ids(res.Records))
	assert.Empty(t, res.Failed)
}

func TestCollectStopsWhenConsumerStops(t *testing.T) {
	src := newMemSource()
	src.add("a", models.KindLead, recs("a", 1))
	src.add("b", models.KindLead, recs("b", 1))

	refs := Sources([]models.Account{{ID: "a"}, {ID: "b"}}, models.KindLead)
	for res := range newTestMerger(src, 1).Collect(context.Background(), refs) {
		require.Equal(t, "a/lead", res.Source.String())
		break
	}
	assert.Equal(t, 1, src.calls)
}

func TestStreamSkipsFailedSources(t *testing.T) {
	src := newMemSource()
	src.add("a", models.KindCall, recs("a", 2), recs("a-p2-", 1))
	src.fail["a/call"] = 2
	src.add("b", models.KindCall, recs("b", 1))

	var failed []string
	refs := Sources([]models.Account{{ID: "a"}, {ID: "b"}}, models.KindCall)
	stream := newTestMerger(src, 1).Stream(context.Background(), refs, func(s SourceRef, err error) {
		failed = append(failed, s.String())
	})

	assert.Equal(t, []string{"a0", "a1", "b0"}, ids(slices.Collect(stream)))
	assert.Equal(t, []string{"a/call"}, failed)
}
