package models

import (
	"errors"
	"fmt"
	"time"
)

// GuestName is the placeholder shown until a record supplies a real name.
const GuestName = "Guest"

// IdentityKind says which hint an identity key was derived from.
type IdentityKind string

const (
	IdentityPhone     IdentityKind = "phone"
	IdentityEmail     IdentityKind = "email"
	IdentitySynthetic IdentityKind = "synthetic"
)

// AggregatedEntity is the canonical customer, lead or follow-up surfaced to callers.
type AggregatedEntity struct {
	Key                   string       `json:"key"`
	IdentityKind          IdentityKind `json:"identityKind"`
	Phone                 string       `json:"phone,omitempty"`
	Email                 string       `json:"email,omitempty"`
	DisplayName           string       `json:"displayName"`
	Status                string       `json:"status,omitempty"`
	MatchedKeywords       []string     `json:"matchedKeywords"`
	FirstSeen             time.Time    `json:"firstSeen"`
	LastSeen              time.Time    `json:"lastSeen"`
	MessageCount          int          `json:"messageCount"`
	Accounts              []string     `json:"accounts"`
	ContributingRecordIDs []string     `json:"contributingRecordIds"`
}

// DateRange selects a preset or custom time window.
type DateRange string

const (
	RangeAll    DateRange = "all"
	Range7Days  DateRange = "7days"
	Range30Days DateRange = "30days"
	Range90Days DateRange = "90days"
	RangeCustom DateRange = "custom"
)

// Days returns the lookback of a preset range, or 0.
func (r DateRange) Days() int {
	switch r {
	case Range7Days:
		return 7
	case Range30Days:
		return 30
	case Range90Days:
		return 90
	}
	return 0
}

// DateField picks which timestamp a custom range is tested against.
type DateField string

const (
	FieldFirstSeen DateField = "firstSeen"
	FieldLastSeen  DateField = "lastSeen"
)

// SortField is the comparator key of the sort stage.
type SortField string

const (
	SortLastSeen     SortField = "lastSeen"
	SortFirstSeen    SortField = "firstSeen"
	SortMessageCount SortField = "messageCount"
	SortName         SortField = "name"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	OrderDesc SortOrder = "desc"
	OrderAsc  SortOrder = "asc"
)

var ErrInvalidCriteria = errors.New("invalid filter criteria")

// FilterCriteria is a value describing which entities a query keeps and in what order.
type FilterCriteria struct {
	SearchTerm       string     `json:"searchTerm,omitempty"`
	DateRange        DateRange  `json:"dateRange"`
	CustomStart      *time.Time `json:"customStart,omitempty"`
	CustomEnd        *time.Time `json:"customEnd,omitempty"`
	DateField        DateField  `json:"dateField,omitempty"`
	Status           string     `json:"status,omitempty"`
	RequiredKeywords []string   `json:"requiredKeywords"`
	SortBy           SortField  `json:"sortBy,omitempty"`
	Order            SortOrder  `json:"order,omitempty"`
}

// Normalized fills defaults and degrades an incomplete custom range to RangeAll.
func (c FilterCriteria) Normalized() FilterCriteria {
	if c.DateRange == "" {
		c.DateRange = RangeAll
	}
	if c.DateRange == RangeCustom && (c.CustomStart == nil || c.CustomEnd == nil) {
		c.DateRange = RangeAll
	}
	if c.DateField == "" {
		c.DateField = FieldFirstSeen
	}
	if c.SortBy == "" {
		c.SortBy = SortLastSeen
	}
	if c.Order == "" {
		c.Order = OrderDesc
	}
	return c
}

// Validate rejects criteria that cannot be evaluated.
func (c FilterCriteria) Validate() error {
	switch c.DateRange {
	case "", RangeAll, Range7Days, Range30Days, Range90Days, RangeCustom:
	default:
		return fmt.Errorf("%w: unknown date range %q", ErrInvalidCriteria, c.DateRange)
	}
	switch c.DateField {
	case "", FieldFirstSeen, FieldLastSeen:
	default:
		return fmt.Errorf("%w: unknown date field %q", ErrInvalidCriteria, c.DateField)
	}
	switch c.SortBy {
	case "", SortLastSeen, SortFirstSeen, SortMessageCount, SortName:
	default:
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidCriteria, c.SortBy)
	}
	switch c.Order {
	case "", OrderAsc, OrderDesc:
	default:
		return fmt.Errorf("%w: unknown sort order %q", ErrInvalidCriteria, c.Order)
	}
	if c.DateRange == RangeCustom && c.CustomStart != nil && c.CustomEnd != nil &&
		c.CustomEnd.Before(*c.CustomStart) {
		return fmt.Errorf("%w: custom range ends before it starts", ErrInvalidCriteria)
	}
	return nil
}

// PageWindow describes the display window over a filtered sequence.
type PageWindow struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ListResult is what a list query returns to the dashboard.
type ListResult struct {
	Leads         []*AggregatedEntity `json:"leads"`
	Total         int                 `json:"total"`
	CurrentPage   int                 `json:"currentPage"`
	TotalPages    int                 `json:"totalPages"`
	FailedSources []string            `json:"failedSources,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// ExportResult describes a finished (or skipped) export.
type ExportResult struct {
	FileName      string   `json:"fileName,omitempty"`
	MimeType      string   `json:"mimeType,omitempty"`
	Rows          int      `json:"rows"`
	FailedSources []string `json:"failedSources,omitempty"`
	Warning       string   `json:"warning,omitempty"`
	Error         string   `json:"error,omitempty"`
}
