package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"leadboard/models"
)

var filterNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func keys(entities []*models.AggregatedEntity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Key
	}
	return out
}

func TestApplyRequiresEveryKeyword(t *testing.T) {
	entities := []*models.AggregatedEntity{
		{Key: "1", MatchedKeywords: []string{"a", "b"}},
		{Key: "2", MatchedKeywords: []string{"a"}},
		{Key: "3", MatchedKeywords: []string{"A", "b", "c"}},
	}
	got := Apply(entities, models.FilterCriteria{RequiredKeywords: []string{"a", " B "}, SortBy: models.SortName}, filterNow)
	assert.ElementsMatch(t, []string{"1", "3"}, keys(got))
}

func TestApplyCustomRangeIsInclusive(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	entities := []*models.AggregatedEntity{
		{Key: "at-start", FirstSeen: start},
		{Key: "at-end", FirstSeen: end},
		{Key: "before", FirstSeen: start.Add(-time.Microsecond)},
		{Key: "after", FirstSeen: end.Add(time.Microsecond)},
		{Key: "unknown"},
	}
	c := models.FilterCriteria{DateRange: models.RangeCustom, CustomStart: &start, CustomEnd: &end}
	assert.ElementsMatch(t, []string{"at-start", "at-end"}, keys(Apply(entities, c, filterNow)))
}

func TestApplyCustomRangeOnLastSeen(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	entities := []*models.AggregatedEntity{
		{Key: "old-but-active", FirstSeen: start.AddDate(0, -1, 0), LastSeen: start.AddDate(0, 0, 2)},
		{Key: "new-only", FirstSeen: start.AddDate(0, 0, 1), LastSeen: end.AddDate(0, 0, 5)},
	}
	c := models.FilterCriteria{DateRange: models.RangeCustom, CustomStart: &start, CustomEnd: &end, DateField: models.FieldLastSeen}
	assert.Equal(t, []string{"old-but-active"}, keys(Apply(entities, c, filterNow)))
}

func TestApplyIncompleteCustomRangeKeepsAll(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entities := []*models.AggregatedEntity{{Key: "1"}, {Key: "2", FirstSeen: start}}
	c := models.FilterCriteria{DateRange: models.RangeCustom, CustomStart: &start}
	assert.Len(t, Apply(entities, c, filterNow), 2)
}

func TestApplyPresetRange(t *testing.T) {
	entities := []*models.AggregatedEntity{
		{Key: "today", LastSeen: filterNow.Add(-time.Hour)},
		{Key: "edge", LastSeen: filterNow.AddDate(0, 0, -7)},
		{Key: "stale", LastSeen: filterNow.AddDate(0, 0, -8)},
		{Key: "never"},
	}
	got := Apply(entities, models.FilterCriteria{DateRange: models.Range7Days}, filterNow)
	assert.Equal(t, []string{"today", "edge"}, keys(got))
}

func TestApplySearchAndStatus(t *testing.T) {
	entities := []*models.AggregatedEntity{
		{Key: "1", Phone: "+919876543210", DisplayName: "Asha", Status: "Hot"},
		{Key: "2", Email: "ravi@example.com", DisplayName: "Ravi", Status: "cold"},
		{Key: "3", DisplayName: "Meera", Status: "hot"},
	}

	assert.Equal(t, []string{"1"}, keys(Apply(entities, models.FilterCriteria{SearchTerm: "98765"}, filterNow)))
	assert.Equal(t, []string{"2"}, keys(Apply(entities, models.FilterCriteria{SearchTerm: "RAVI@"}, filterNow)))
	assert.Equal(t, []string{"3"}, keys(Apply(entities, models.FilterCriteria{SearchTerm: "meer"}, filterNow)))

	hot := Apply(entities, models.FilterCriteria{Status: "HOT", SortBy: models.SortName, Order: models.OrderAsc}, filterNow)
	assert.Equal(t, []string{"1", "3"}, keys(hot))
	assert.Len(t, Apply(entities, models.FilterCriteria{Status: "all"}, filterNow), 3)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	entities := []*models.AggregatedEntity{
		{Key: "1", MessageCount: 1},
		{Key: "2", MessageCount: 2},
	}
	Apply(entities, models.FilterCriteria{SortBy: models.SortMessageCount}, filterNow)
	assert.Equal(t, []string{"1", "2"}, keys(entities))
}

func TestSortEntitiesIsStable(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entities := []*models.AggregatedEntity{
		{Key: "a", LastSeen: day, MessageCount: 5},
		{Key: "b", LastSeen: day.AddDate(0, 0, 1), MessageCount: 5},
		{Key: "c", LastSeen: day, MessageCount: 1},
	}

	desc := append([]*models.AggregatedEntity{}, entities...)
	SortEntities(desc, models.SortLastSeen, models.OrderDesc)
	assert.Equal(t, []string{"b", "a", "c"}, keys(desc))

	asc := append([]*models.AggregatedEntity{}, entities...)
	SortEntities(asc, models.SortMessageCount, models.OrderAsc)
	assert.Equal(t, []string{"c", "a", "b"}, keys(asc))

	byCount := append([]*models.AggregatedEntity{}, entities...)
	SortEntities(byCount, models.SortMessageCount, models.OrderDesc)
	assert.Equal(t, []string{"a", "b", "c"}, keys(byCount))
}

func TestRecordFilter(t *testing.T) {
	norm := NewNormalizer("91")
	keep := RecordFilter(models.FilterCriteria{SearchTerm: "+9198", RequiredKeywords: []string{"pricing"}}, filterNow, norm)

	assert.True(t, keep(models.RawRecord{Phone: "9198765@s.whatsapp.net", MatchedKeywords: []string{"Pricing"}}))
	assert.False(t, keep(models.RawRecord{Phone: "9198765", MatchedKeywords: []string{"demo"}}))
	assert.False(t, keep(models.RawRecord{Phone: "9177765", MatchedKeywords: []string{"pricing"}}))
}
