package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"time"

	"leadboard/metrics"
	"leadboard/models"
	"leadboard/source"
	"leadboard/storage"
	"leadboard/utils"
)

// DefaultPageLimit is the display window size when a query names none.
const DefaultPageLimit = 25

// Pipeline drives fetch, merge, aggregate, filter and window for every
// screen. Each call is a fresh run over the upstream; nothing is cached
// between calls.
type Pipeline struct {
	accounts   source.AccountLister
	merger     *Merger
	aggregator *Aggregator
	insights   *InsightService
	norm       *Normalizer
	format     Formatter
	clock      func() time.Time
	logger     *utils.Logger
	metrics    *metrics.Metrics
}

// Options configures a Pipeline.
type Options struct {
	Accounts    source.AccountLister
	Source      source.Source
	PageSize    int
	MaxPages    int
	Concurrency int
	RateLimit   time.Duration
	Normalizer  *Normalizer
	Location    *time.Location
	TimeLayout  string
	Clock       func() time.Time
	Logger      *utils.Logger
}

// NewPipeline wires the fetcher, merger and aggregator from opts.
func NewPipeline(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = NewNormalizer("")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TimeLayout == "" {
		opts.TimeLayout = "2006-01-02 15:04:05"
	}

	fetcher := source.NewFetcher(opts.Source, opts.PageSize, opts.MaxPages, opts.RateLimit, opts.Logger)
	return &Pipeline{
		accounts:   opts.Accounts,
		merger:     NewMerger(fetcher, opts.Concurrency, opts.Logger),
		aggregator: NewAggregator(opts.Logger, opts.Normalizer),
		insights:   NewInsightService(opts.Logger),
		norm:       opts.Normalizer,
		format:     Formatter{Location: opts.Location, Layout: opts.TimeLayout},
		clock:      opts.Clock,
		logger:     opts.Logger,
		metrics:    metrics.New(),
	}
}

// ListQuery is one dashboard list request.
type ListQuery struct {
	View     View
	Criteria models.FilterCriteria
	Page     int
	Limit    int
}

// List returns one display window of a view. Failures come back as an
// empty result with Error set.
func (p *Pipeline) List(ctx context.Context, q ListQuery) models.ListResult {
	done := p.observe("list")
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}

	entities, failed, err := p.Entities(ctx, q.View, q.Criteria)
	if err != nil {
		done("error")
		p.logger.Warn("[pipeline] List %s failed: %v", q.View, err)
		return models.ListResult{
			Leads:       []*models.AggregatedEntity{},
			CurrentPage: 1,
			Error:       err.Error(),
		}
	}

	items, window := Paginate(entities, q.Page, q.Limit)
	done("ok")
	return models.ListResult{
		Leads:         items,
		Total:         window.Total,
		CurrentPage:   window.Page,
		TotalPages:    window.Pages,
		FailedSources: failed,
	}
}

// Entities runs the whole pipeline without a display window and returns
// the complete filtered, sorted sequence plus the sources that failed.
func (p *Pipeline) Entities(ctx context.Context, v View, c models.FilterCriteria) ([]*models.AggregatedEntity, []string, error) {
	if !v.Aggregated() {
		return nil, nil, fmt.Errorf("%w: %s has no aggregated list", ErrUnknownView, v)
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	accounts, err := p.listAccounts(ctx)
	if err != nil {
		return nil, nil, err
	}

	merged := p.merger.MergeAll(ctx, Sources(accounts, v.RecordKinds()...))
	agg := p.aggregator.Aggregate(merged.Records, utils.NewKeySet())
	return Apply(agg.Entities(), c, p.clock()), merged.FailedNames(), nil
}

// Export re-runs the pipeline with no display window and writes the full
// result to w. Nothing is written when the result is empty; a Warning says so.
func (p *Pipeline) Export(ctx context.Context, v View, c models.FilterCriteria, w io.Writer) models.ExportResult {
	done := p.observe("export")
	res := models.ExportResult{
		FileName: p.ExportFileName(v, c),
		MimeType: storage.MimeTypeCSV,
	}

	var (
		rows int
		err  error
	)
	if v == ViewTranscripts {
		rows, res.FailedSources, err = p.exportTranscripts(ctx, c, w)
	} else {
		var entities []*models.AggregatedEntity
		entities, res.FailedSources, err = p.Entities(ctx, v, c)
		if err == nil {
			rows, err = storage.Serialize(w, slices.Values(entities), p.format.EntityColumns(v))
		}
	}

	switch {
	case errors.Is(err, storage.ErrEmptyExport):
		done("empty")
		res.FileName, res.MimeType = "", ""
		res.Warning = fmt.Sprintf("no %s match the current filters, nothing exported", v)
		p.logger.Warn("[pipeline] Export %s skipped: empty result", v)
	case err != nil:
		done("error")
		res.FileName, res.MimeType = "", ""
		res.Error = err.Error()
		p.logger.Warn("[pipeline] Export %s failed: %v", v, err)
	default:
		done("ok")
		res.Rows = rows
		p.logger.Info("[pipeline] Exported %d %s rows as %s", rows, v, res.FileName)
	}
	return res
}

// exportTranscripts streams raw conversation and call records straight
// from the page walk into the serializer, one page at a time.
func (p *Pipeline) exportTranscripts(ctx context.Context, c models.FilterCriteria, w io.Writer) (int, []string, error) {
	if err := c.Validate(); err != nil {
		return 0, nil, err
	}
	accounts, err := p.listAccounts(ctx)
	if err != nil {
		return 0, nil, err
	}

	var failed []string
	onFailure := func(s SourceRef, err error) { failed = append(failed, s.String()) }
	stream := p.merger.Stream(ctx, Sources(accounts, ViewTranscripts.RecordKinds()...), onFailure)

	keep := RecordFilter(c, p.clock(), p.norm)
	seen := utils.NewKeySet()
	filtered := func(yield func(models.RawRecord) bool) {
		for r := range stream {
			if dk := r.DedupKey(); dk != "" && !seen.Add(dk) {
				continue
			}
			if keep(r) && !yield(r) {
				return
			}
		}
	}

	rows, err := storage.Serialize(w, iter.Seq[models.RawRecord](filtered), p.format.TranscriptColumns(p.norm))
	return rows, failed, err
}

// Report aggregates the customers view and computes the campaign report.
func (p *Pipeline) Report(ctx context.Context, c models.FilterCriteria) models.ReportResult {
	done := p.observe("report")
	entities, failed, err := p.Entities(ctx, ViewCustomers, c)
	if err != nil {
		done("error")
		p.logger.Warn("[pipeline] Report failed: %v", err)
		return models.ReportResult{Report: p.insights.Generate(nil, p.clock()), Error: err.Error()}
	}
	done("ok")
	return models.ReportResult{Report: p.insights.Generate(entities, p.clock()), FailedSources: failed}
}

// ExportFileName is the name Export will report for v under c.
func (p *Pipeline) ExportFileName(v View, c models.FilterCriteria) string {
	return storage.FileName(string(v), ExportScope(c), p.clock().In(p.format.Location))
}

// Location is the display timezone used for export cells and file names.
func (p *Pipeline) Location() *time.Location { return p.format.Location }

// Now returns the pipeline clock's current time.
func (p *Pipeline) Now() time.Time { return p.clock() }

// Insights exposes the report renderer.
func (p *Pipeline) Insights() *InsightService { return p.insights }

func (p *Pipeline) listAccounts(ctx context.Context) ([]models.Account, error) {
	if p.accounts == nil {
		return nil, source.ErrAccountsUnavailable
	}
	accounts, err := p.accounts.ListAccounts(ctx)
	if err != nil {
		if errors.Is(err, source.ErrAccountsUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", source.ErrAccountsUnavailable, err)
	}
	return accounts, nil
}

// observe starts a run timer; the returned func records its outcome.
func (p *Pipeline) observe(op string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		p.metrics.PipelineRuns.WithLabelValues(op, outcome).Inc()
		p.metrics.PipelineDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
