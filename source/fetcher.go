package source

import (
	"context"
	"fmt"
	"iter"
	"time"

	"golang.org/x/time/rate"

	"leadboard/metrics"
	"leadboard/models"
	"leadboard/utils"
)

// Fetcher walks one account's paginated collection to exhaustion.
type Fetcher struct {
	src      Source
	pageSize int
	maxPages int
	limiter  *rate.Limiter
	logger   *utils.Logger
	metrics  *metrics.Metrics
}

// NewFetcher creates a Fetcher. maxPages caps the number of upstream calls
// per walk regardless of what the upstream reports. A zero interval
// disables pacing between page requests.
func NewFetcher(src Source, pageSize, maxPages int, interval time.Duration, logger *utils.Logger) *Fetcher {
	if pageSize < 1 {
		pageSize = 1
	}
	if maxPages < 1 {
		maxPages = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Fetcher{
		src:      src,
		pageSize: pageSize,
		maxPages: maxPages,
		limiter:  limiter,
		logger:   logger,
		metrics:  metrics.New(),
	}
}

// PageError reports where a walk stopped.
type PageError struct {
	AccountID string
	Kind      models.RecordKind
	Page      int
	Err       error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("fetch %s/%s page %d: %v", e.AccountID, e.Kind, e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Pages yields each page's items as it arrives. A failed request yields a
// *PageError once and ends the walk; items already yielded stand.
func (f *Fetcher) Pages(ctx context.Context, accountID string, kind models.RecordKind) iter.Seq2[[]models.RawRecord, error] {
	return func(yield func([]models.RawRecord, error) bool) {
		for page := 1; ; page++ {
			if err := f.limiter.Wait(ctx); err != nil {
				yield(nil, &PageError{AccountID: accountID, Kind: kind, Page: page, Err: err})
				return
			}

			resp, err := f.src.FetchPage(ctx, PageRequest{
				AccountID: accountID,
				Kind:      kind,
				Page:      page,
				Limit:     f.pageSize,
			})
			if err != nil {
				stage := "first_page"
				if page > 1 {
					stage = "later_page"
				}
				f.metrics.SourceFailures.WithLabelValues(string(kind), stage).Inc()
				yield(nil, &PageError{AccountID: accountID, Kind: kind, Page: page, Err: err})
				return
			}
			if resp == nil {
				resp = &models.Page{}
			}

			items := stamp(resp.Items, accountID, kind)
			f.metrics.PagesFetched.WithLabelValues(string(kind)).Inc()
			f.metrics.RecordsFetched.WithLabelValues(string(kind)).Add(float64(len(items)))

			totalPages := resp.TotalPages()
			f.logger.Debug("[fetcher] %s/%s page %d/%d: %d items", accountID, kind, page, totalPages, len(items))

			if !yield(items, nil) {
				return
			}

			if page >= totalPages {
				return
			}
			if len(items) == 0 {
				f.logger.Debug("[fetcher] %s/%s page %d is empty, continuing to page %d", accountID, kind, page, totalPages)
			}
			if page >= f.maxPages {
				f.logger.Warn("[fetcher] %s/%s reports %d pages, stopping at ceiling of %d",
					accountID, kind, totalPages, f.maxPages)
				return
			}
		}
	}
}

// FetchAll collects every page of one account's collection. On failure it
// returns the records gathered before the failing page along with the error.
func (f *Fetcher) FetchAll(ctx context.Context, accountID string, kind models.RecordKind) ([]models.RawRecord, error) {
	var out []models.RawRecord
	for items, err := range f.Pages(ctx, accountID, kind) {
		if err != nil {
			return out, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// stamp copies the page items, filling in the account and kind the
// upstream leaves implicit.
func stamp(items []models.RawRecord, accountID string, kind models.RecordKind) []models.RawRecord {
	out := make([]models.RawRecord, len(items))
	for i, r := range items {
		if r.AccountID == "" {
			r.AccountID = accountID
		}
		if r.Kind == "" {
			r.Kind = kind
		}
		out[i] = r
	}
	return out
}
