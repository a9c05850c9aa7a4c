package services

import (
	"sort"
	"strings"
	"time"

	"leadboard/models"
)

// subject is the view the predicates test. Entities and raw records both
// project onto it so the two call sites share one predicate set.
type subject struct {
	phone     string
	name      string
	email     string
	status    string
	keywords  []string
	firstSeen time.Time
	lastSeen  time.Time
}

func entitySubject(e *models.AggregatedEntity) subject {
	return subject{
		phone:     e.Phone,
		name:      e.DisplayName,
		email:     e.Email,
		status:    e.Status,
		keywords:  e.MatchedKeywords,
		firstSeen: e.FirstSeen,
		lastSeen:  e.LastSeen,
	}
}

// Apply returns the entities that satisfy every active predicate in c,
// sorted by the chosen comparator. now anchors the preset date ranges.
// The input slice is not modified.
func Apply(entities []*models.AggregatedEntity, c models.FilterCriteria, now time.Time) []*models.AggregatedEntity {
	c = c.Normalized()
	m := newMatcher(c, now)

	out := make([]*models.AggregatedEntity, 0, len(entities))
	for _, e := range entities {
		if m.match(entitySubject(e)) {
			out = append(out, e)
		}
	}
	SortEntities(out, c.SortBy, c.Order)
	return out
}

// SortEntities sorts in place. Equal keys keep their relative input order.
func SortEntities(entities []*models.AggregatedEntity, by models.SortField, order models.SortOrder) {
	less := func(a, b *models.AggregatedEntity) bool {
		switch by {
		case models.SortFirstSeen:
			return a.FirstSeen.Before(b.FirstSeen)
		case models.SortMessageCount:
			return a.MessageCount < b.MessageCount
		case models.SortName:
			return strings.ToLower(a.DisplayName) < strings.ToLower(b.DisplayName)
		default:
			return a.LastSeen.Before(b.LastSeen)
		}
	}
	if order == models.OrderAsc {
		sort.SliceStable(entities, func(i, j int) bool { return less(entities[i], entities[j]) })
		return
	}
	sort.SliceStable(entities, func(i, j int) bool { return less(entities[j], entities[i]) })
}

type matcher struct {
	search    string
	status    string
	keywords  []string
	since     time.Time
	start     time.Time
	end       time.Time
	custom    bool
	dateField models.DateField
}

func newMatcher(c models.FilterCriteria, now time.Time) *matcher {
	m := &matcher{
		search:    strings.ToLower(strings.TrimSpace(c.SearchTerm)),
		dateField: c.DateField,
	}

	if status := strings.TrimSpace(c.Status); status != "" && !strings.EqualFold(status, "all") {
		m.status = strings.ToLower(status)
	}

	for _, kw := range c.RequiredKeywords {
		if kw = strings.ToLower(normaliseText(kw)); kw != "" {
			m.keywords = append(m.keywords, kw)
		}
	}

	switch {
	case c.DateRange == models.RangeCustom:
		m.custom = true
		m.start, m.end = *c.CustomStart, *c.CustomEnd
	case c.DateRange.Days() > 0:
		m.since = now.AddDate(0, 0, -c.DateRange.Days())
	}
	return m
}

// match ANDs the categories together. Within keywords every required
// keyword must be present.
func (m *matcher) match(s subject) bool {
	return m.matchDate(s) && m.matchSearch(s) && m.matchStatus(s) && m.matchKeywords(s)
}

func (m *matcher) matchDate(s subject) bool {
	if m.custom {
		t := s.firstSeen
		if m.dateField == models.FieldLastSeen {
			t = s.lastSeen
		}
		if t.IsZero() {
			return false
		}
		return !t.Before(m.start) && !t.After(m.end)
	}
	if !m.since.IsZero() {
		return !s.lastSeen.IsZero() && !s.lastSeen.Before(m.since)
	}
	return true
}

func (m *matcher) matchSearch(s subject) bool {
	if m.search == "" {
		return true
	}
	for _, field := range []string{s.phone, s.name, s.email} {
		if strings.Contains(strings.ToLower(field), m.search) {
			return true
		}
	}
	return false
}

func (m *matcher) matchStatus(s subject) bool {
	return m.status == "" || strings.ToLower(strings.TrimSpace(s.status)) == m.status
}

func (m *matcher) matchKeywords(s subject) bool {
	if len(m.keywords) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(s.keywords))
	for _, kw := range s.keywords {
		have[strings.ToLower(normaliseText(kw))] = struct{}{}
	}
	for _, want := range m.keywords {
		if _, ok := have[want]; !ok {
			return false
		}
	}
	return true
}

// RecordFilter returns a predicate applying c to single raw records. Both
// ends of a date predicate test the record's own timestamp.
func RecordFilter(c models.FilterCriteria, now time.Time, norm *Normalizer) func(models.RawRecord) bool {
	m := newMatcher(c.Normalized(), now)
	return func(r models.RawRecord) bool {
		phone, ok := norm.Phone(r.Phone)
		if !ok {
			phone = r.Phone
		}
		email, ok := norm.Email(r.Email)
		if !ok {
			email = r.Email
		}
		at := r.When()
		return m.match(subject{
			phone:     phone,
			name:      norm.BestName(r),
			email:     email,
			status:    r.Status,
			keywords:  r.MatchedKeywords,
			firstSeen: at,
			lastSeen:  at,
		})
	}
}
