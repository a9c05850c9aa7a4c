package services

import (
	"context"
	"fmt"
	"iter"

	"leadboard/models"
	"leadboard/source"
	"leadboard/utils"
)

// SourceRef names one account's collection of one kind.
type SourceRef struct {
	AccountID string
	Kind      models.RecordKind
}

func (s SourceRef) String() string {
	return s.AccountID + "/" + string(s.Kind)
}

// SourceResult is what one source contributed. Records holds whatever was
// fetched before Err, if any.
type SourceResult struct {
	Source  SourceRef
	Records []models.RawRecord
	Err     error
}

// MergeResult is the flat working set of one run plus the sources that failed.
type MergeResult struct {
	Records []models.RawRecord
	Failed  []SourceRef
}

// FailedNames returns the failed sources as "account/kind" strings.
func (m MergeResult) FailedNames() []string {
	if len(m.Failed) == 0 {
		return nil
	}
	out := make([]string, len(m.Failed))
	for i, f := range m.Failed {
		out[i] = f.String()
	}
	return out
}

// Merger walks every source through a Fetcher and applies a single failure
// policy: a failed source keeps what it fetched and never aborts the merge.
type Merger struct {
	fetcher     *source.Fetcher
	concurrency int
	logger      *utils.Logger
}

// NewMerger creates a Merger. concurrency 1 walks sources strictly one
// after another.
func NewMerger(fetcher *source.Fetcher, concurrency int, logger *utils.Logger) *Merger {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Merger{fetcher: fetcher, concurrency: concurrency, logger: logger}
}

// Sources expands accounts into source refs, account-major.
func Sources(accounts []models.Account, kinds ...models.RecordKind) []SourceRef {
	refs := make([]SourceRef, 0, len(accounts)*len(kinds))
	for _, a := range accounts {
		for _, k := range kinds {
			refs = append(refs, SourceRef{AccountID: a.ID, Kind: k})
		}
	}
	return refs
}

// Collect yields one SourceResult per source, in source order. With
// concurrency above 1 later sources may be fetched ahead, but results are
// still yielded in order.
func (m *Merger) Collect(ctx context.Context, sources []SourceRef) iter.Seq[SourceResult] {
	return func(yield func(SourceResult) bool) {
		if m.concurrency == 1 {
			for _, s := range sources {
				if !yield(m.fetchOne(ctx, s)) {
					return
				}
			}
			return
		}

		slots := make([]chan SourceResult, len(sources))
		for i := range slots {
			slots[i] = make(chan SourceResult, 1)
		}
		pool := utils.NewWorkerPool(m.concurrency)
		go func() {
			for i, s := range sources {
				pool.Submit(func() { slots[i] <- m.fetchOne(ctx, s) })
			}
			pool.Wait()
			m.logger.Debug("[merger] all %d sources settled", len(sources))
		}()
		for _, slot := range slots {
			if !yield(<-slot) {
				return
			}
		}
	}
}

// MergeAll concatenates every reachable record in source order then page order.
func (m *Merger) MergeAll(ctx context.Context, sources []SourceRef) MergeResult {
	var out MergeResult
	for res := range m.Collect(ctx, sources) {
		if res.Err != nil {
			out.Failed = append(out.Failed, res.Source)
		}
		out.Records = append(out.Records, res.Records...)
	}
	m.logger.Info("[merger] %d sources walked, %d records, %d failed",
		len(sources), len(out.Records), len(out.Failed))
	return out
}

// fetchOne is the per-source failure boundary.
func (m *Merger) fetchOne(ctx context.Context, s SourceRef) (res SourceResult) {
	res.Source = s
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("merger: source %s panicked: %v", s, p)
			m.logger.Warn("[merger] %v", res.Err)
		}
	}()

	records, err := m.fetcher.FetchAll(ctx, s.AccountID, s.Kind)
	res.Records = records
	if err != nil {
		res.Err = err
		if len(records) == 0 {
			m.logger.Warn("[merger] Source %s unreachable, contributing 0 records: %v", s, err)
		} else {
			m.logger.Warn("[merger] Source %s truncated at %d records: %v", s, len(records), err)
		}
	}
	return res
}

// Stream yields records page by page as they arrive, walking sources one
// after another. A failing source ends its own walk; onFailure, when set,
// hears about it and the stream moves on to the next source.
func (m *Merger) Stream(ctx context.Context, sources []SourceRef, onFailure func(SourceRef, error)) iter.Seq[models.RawRecord] {
	return func(yield func(models.RawRecord) bool) {
		for _, s := range sources {
			for items, err := range m.fetcher.Pages(ctx, s.AccountID, s.Kind) {
				if err != nil {
					m.logger.Warn("[merger] Source %s stream stopped: %v", s, err)
					if onFailure != nil {
						onFailure(s, err)
					}
					break
				}
				for _, r := range items {
					if !yield(r) {
						return
					}
				}
			}
		}
	}
}
