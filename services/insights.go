package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"leadboard/models"
	"leadboard/utils"
)

const topKeywordLimit = 10

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes the campaign report over aggregated entities.
func (s *InsightService) Generate(entities []*models.AggregatedEntity, now time.Time) *models.CampaignReport {
	report := &models.CampaignReport{
		ByStatus:    make(map[string]int),
		ByAccount:   make(map[string]int),
		TopKeywords: []models.KeywordCount{},
	}

	if len(entities) == 0 {
		return report
	}

	report.TotalEntities = len(entities)
	weekAgo := now.AddDate(0, 0, -7)
	keywordCounts := make(map[string]*models.KeywordCount)

	for _, e := range entities {
		report.TotalInteractions += e.MessageCount

		status := strings.ToLower(strings.TrimSpace(e.Status))
		if status == "" {
			status = "unknown"
		}
		report.ByStatus[status]++

		for _, acct := range e.Accounts {
			report.ByAccount[acct]++
		}

		if !e.LastSeen.IsZero() && !e.LastSeen.Before(weekAgo) {
			report.ActiveLast7Days++
		}

		if report.MostActive == nil || e.MessageCount > report.MostActive.MessageCount {
			report.MostActive = e
		}

		for _, kw := range e.MatchedKeywords {
			lower := strings.ToLower(kw)
			if kc, ok := keywordCounts[lower]; ok {
				kc.Count++
				continue
			}
			keywordCounts[lower] = &models.KeywordCount{Keyword: kw, Count: 1}
		}
	}

	for _, kc := range keywordCounts {
		report.TopKeywords = append(report.TopKeywords, *kc)
	}
	sort.Slice(report.TopKeywords, func(i, j int) bool {
		a, b := report.TopKeywords[i], report.TopKeywords[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return strings.ToLower(a.Keyword) < strings.ToLower(b.Keyword)
	})
	if len(report.TopKeywords) > topKeywordLimit {
		report.TopKeywords = report.TopKeywords[:topKeywordLimit]
	}

	s.logger.Debug("[insights] Report over %d entities, %d interactions",
		report.TotalEntities, report.TotalInteractions)
	return report
}

// Print renders the report for a terminal.
func (s *InsightService) Print(w io.Writer, r *models.CampaignReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  CAMPAIGN REPORT\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Customers              : \033[1m%d\033[0m\n", r.TotalEntities)
	fmt.Fprintf(w, "  Interactions           : \033[1m%d\033[0m\n", r.TotalInteractions)
	fmt.Fprintf(w, "  Active in last 7 days  : \033[1m%d\033[0m\n", r.ActiveLast7Days)
	fmt.Fprintln(w)

	if r.MostActive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Active Customer\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostActive.DisplayName, 50))
		fmt.Fprintf(w, "  Phone    : %s\n", r.MostActive.Phone)
		fmt.Fprintf(w, "  Messages : \033[1;32m%d\033[0m\n", r.MostActive.MessageCount)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Top Keywords\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopKeywords) == 0 {
		fmt.Fprintf(w, "  No keyword matches\n")
	} else {
		for i, kc := range r.TopKeywords {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%d\033[0m\n", i+1, truncate(kc.Keyword, 38), kc.Count)
		}
	}
	fmt.Fprintln(w)

	printBars(w, "By Status", r.ByStatus, thin)
	printBars(w, "By Account", r.ByAccount, thin)

	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
}

func printBars(w io.Writer, title string, counts map[string]int, thin string) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No data\n\n")
		return
	}

	type labelCount struct {
		label string
		count int
	}
	rows := make([]labelCount, 0, len(counts))
	for label, n := range counts {
		rows = append(rows, labelCount{label, n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].label < rows[j].label
	})
	for _, lc := range rows {
		bar := strings.Repeat("█", min(lc.count, 40))
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(lc.label, 28), bar, lc.count)
	}
	fmt.Fprintln(w)
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
