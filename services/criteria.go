package services

import (
	"fmt"
	"strings"
	"time"

	"leadboard/models"
)

// CriteriaInput is filter criteria as it arrives from a query string or
// command line flags, before any parsing.
type CriteriaInput struct {
	Search    string
	DateRange string
	Start     string
	End       string
	DateField string
	Status    string
	Keywords  string
	Sort      string
	Order     string
}

// ParseCriteria turns raw input into validated FilterCriteria. Bounds are
// read in loc; a date-only end bound covers that whole day.
func ParseCriteria(in CriteriaInput, loc *time.Location) (models.FilterCriteria, error) {
	c := models.FilterCriteria{
		SearchTerm: strings.TrimSpace(in.Search),
		DateRange:  models.DateRange(strings.ToLower(strings.TrimSpace(in.DateRange))),
		DateField:  models.DateField(strings.TrimSpace(in.DateField)),
		Status:     strings.TrimSpace(in.Status),
		SortBy:     models.SortField(strings.TrimSpace(in.Sort)),
		Order:      models.SortOrder(strings.ToLower(strings.TrimSpace(in.Order))),
	}
	for _, kw := range strings.Split(in.Keywords, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			c.RequiredKeywords = append(c.RequiredKeywords, kw)
		}
	}

	var err error
	if c.CustomStart, err = ParseBound(in.Start, loc, false); err != nil {
		return c, err
	}
	if c.CustomEnd, err = ParseBound(in.End, loc, true); err != nil {
		return c, err
	}
	if c.DateRange == "" && (c.CustomStart != nil || c.CustomEnd != nil) {
		c.DateRange = models.RangeCustom
	}
	return c, c.Validate()
}

// ParseBound parses one custom range bound. Empty input is no bound.
func ParseBound(s string, loc *time.Location, end bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, loc); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", models.ErrInvalidCriteria, s)
	}
	if end {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}
