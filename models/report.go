package models

// KeywordCount is one row of the top-keywords table.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// CampaignReport holds the computed analytics over the aggregated customers.
type CampaignReport struct {
	TotalEntities     int               `json:"totalEntities"`
	TotalInteractions int               `json:"totalInteractions"`
	ActiveLast7Days   int               `json:"activeLast7Days"`
	ByStatus          map[string]int    `json:"byStatus"`
	ByAccount         map[string]int    `json:"byAccount"`
	TopKeywords       []KeywordCount    `json:"topKeywords"`
	MostActive        *AggregatedEntity `json:"mostActive,omitempty"`
}

// ReportResult wraps a report with the pipeline's failure indicators.
type ReportResult struct {
	Report        *CampaignReport `json:"report"`
	FailedSources []string        `json:"failedSources,omitempty"`
	Error         string          `json:"error,omitempty"`
}
