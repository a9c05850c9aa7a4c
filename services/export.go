package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadboard/models"
	"leadboard/storage"
)

// View is a dashboard screen: which record kinds it folds and how it exports.
type View string

const (
	ViewCustomers   View = "customers"
	ViewLeads       View = "leads"
	ViewFollowUps   View = "followups"
	ViewTranscripts View = "transcripts"
)

var ErrUnknownView = errors.New("unknown view")

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case ViewCustomers, ViewLeads, ViewFollowUps, ViewTranscripts:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, s)
}

// RecordKinds returns the upstream collections a view reads.
func (v View) RecordKinds() []models.RecordKind {
	switch v {
	case ViewLeads:
		return []models.RecordKind{models.KindLead}
	case ViewFollowUps:
		return []models.RecordKind{models.KindFollowUp}
	default:
		return []models.RecordKind{models.KindConversation, models.KindCall}
	}
}

// Aggregated reports whether the view lists entities rather than raw records.
func (v View) Aggregated() bool { return v != ViewTranscripts }

// Formatter renders cells for export.
type Formatter struct {
	Location *time.Location
	Layout   string
}

func (f Formatter) formatTime(t time.Time) string {
	return storage.FormatTime(t, f.Location, f.Layout)
}

type entityColumn = storage.Column[*models.AggregatedEntity]

// EntityColumns returns the fixed column set of an aggregated view. Column
// sets are part of the export contract and must stay stable.
func (f Formatter) EntityColumns(v View) []entityColumn {
	name := entityColumn{Header: "Name", Value: func(e *models.AggregatedEntity) string { return e.DisplayName }}
	phone := entityColumn{Header: "Phone", Value: func(e *models.AggregatedEntity) string { return e.Phone }}
	email := entityColumn{Header: "Email", Value: func(e *models.AggregatedEntity) string { return e.Email }}
	status := entityColumn{Header: "Status", Value: func(e *models.AggregatedEntity) string { return e.Status }}
	keywords := entityColumn{Header: "Matched Keywords", Value: func(e *models.AggregatedEntity) string {
		return strings.Join(e.MatchedKeywords, "; ")
	}}
	count := func(header string) entityColumn {
		return entityColumn{Header: header, Value: func(e *models.AggregatedEntity) string { return strconv.Itoa(e.MessageCount) }}
	}
	first := func(header string) entityColumn {
		return entityColumn{Header: header, Value: func(e *models.AggregatedEntity) string { return f.formatTime(e.FirstSeen) }}
	}
	last := func(header string) entityColumn {
		return entityColumn{Header: header, Value: func(e *models.AggregatedEntity) string { return f.formatTime(e.LastSeen) }}
	}

	switch v {
	case ViewLeads:
		return []entityColumn{
			name, phone, email, status, keywords, count("Interactions"),
			first("First Contact"), last("Last Contact"),
			{Header: "Record IDs", Value: func(e *models.AggregatedEntity) string {
				return strings.Join(e.ContributingRecordIDs, "; ")
			}},
		}
	case ViewFollowUps:
		return []entityColumn{
			name, phone, email, status, keywords, count("Follow-ups"),
			first("First Seen"), last("Last Seen"),
		}
	default:
		return []entityColumn{
			name, phone, email, status, keywords, count("Messages"),
			first("First Seen"), last("Last Seen"),
			{Header: "Accounts", Value: func(e *models.AggregatedEntity) string { return strings.Join(e.Accounts, "; ") }},
		}
	}
}

type recordColumn = storage.Column[models.RawRecord]

// TranscriptColumns returns the fixed column set of the transcript export.
func (f Formatter) TranscriptColumns(norm *Normalizer) []recordColumn {
	return []recordColumn{
		{Header: "Record ID", Value: func(r models.RawRecord) string { return r.ID }},
		{Header: "Account", Value: func(r models.RawRecord) string { return r.AccountID }},
		{Header: "Kind", Value: func(r models.RawRecord) string { return string(r.Kind) }},
		{Header: "Phone", Value: func(r models.RawRecord) string {
			if p, ok := norm.Phone(r.Phone); ok {
				return p
			}
			return r.Phone
		}},
		{Header: "Name", Value: func(r models.RawRecord) string {
			if name := norm.BestName(r); name != "" {
				return name
			}
			return models.GuestName
		}},
		{Header: "Timestamp", Value: func(r models.RawRecord) string { return f.formatTime(r.When()) }},
		{Header: "Status", Value: func(r models.RawRecord) string { return r.Status }},
		{Header: "Matched Keywords", Value: func(r models.RawRecord) string { return strings.Join(r.MatchedKeywords, "; ") }},
		{Header: "Messages", Value: func(r models.RawRecord) string { return strconv.Itoa(r.Interactions()) }},
		{Header: "Transcript", Value: func(r models.RawRecord) string { return transcript(r.Messages) }},
	}
}

func transcript(msgs []models.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		sender := m.Sender
		if sender == "" {
			sender = "unknown"
		}
		lines = append(lines, sender+": "+strings.TrimSpace(m.Text))
	}
	return strings.Join(lines, "\n")
}

// ExportScope names what an export covers, for its file name: "all" with no
// narrowing search or keywords.
func ExportScope(c models.FilterCriteria) string {
	var parts []string
	if s := strings.TrimSpace(c.SearchTerm); s != "" {
		parts = append(parts, s)
	}
	for _, kw := range c.RequiredKeywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			parts = append(parts, kw)
		}
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, "-")
}
