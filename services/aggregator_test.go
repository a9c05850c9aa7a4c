package services

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadboard/models"
	"leadboard/utils"
)

func ts(day int) models.Timestamp {
	return models.Timestamp{Time: time.Date(2024, 1, day, 9, 0, 0, 0, time.UTC)}
}

func newTestAggregator() *Aggregator {
	return NewAggregator(utils.NewNopLogger(), NewNormalizer("91"))
}

func aggregationFixture() []models.RawRecord {
	return []models.RawRecord{
		{ID: "c1", AccountID: "acct_a", Kind: models.KindConversation, Phone: "919876543210@s.whatsapp.net",
			Name: "Guest", CreatedAt: ts(3), MessageCount: 3, Status: "warm",
			MatchedKeywords: []string{"Pricing"}},
		{ID: "c2", AccountID: "acct_b", Kind: models.KindCall, Phone: "+91 98765 43210",
			Name: "Asha", Email: "ASHA@example.com", CreatedAt: ts(1), Status: "new",
			MatchedKeywords: []string{"pricing", "demo"}},
		{ID: "c3", AccountID: "acct_a", Kind: models.KindConversation, Email: "ravi@example.com",
			Name: "Ravi", CreatedAt: ts(2), Messages: []models.Message{{Text: "hi"}, {Text: "price?"}}},
		{ID: "c4", AccountID: "acct_a", Kind: models.KindCall, Name: "unknown", CreatedAt: ts(5)},
	}
}

func TestAggregateGroupsByIdentity(t *testing.T) {
	entities := newTestAggregator().Aggregate(aggregationFixture(), nil).Entities()
	require.Len(t, entities, 3)

	asha := entities[0]
	assert.Equal(t, "phone:+919876543210", asha.Key)
	assert.Equal(t, "Asha", asha.DisplayName)
	assert.Equal(t, "asha@example.com", asha.Email)
	assert.Equal(t, "warm", asha.Status)
	assert.Equal(t, 4, asha.MessageCount)
	assert.Equal(t, []string{"demo", "pricing"}, asha.MatchedKeywords)
	assert.Equal(t, []string{"acct_a", "acct_b"}, asha.Accounts)
	assert.Equal(t, []string{"c2", "c1"}, asha.ContributingRecordIDs)
	assert.True(t, asha.FirstSeen.Equal(ts(1).Time))
	assert.True(t, asha.LastSeen.Equal(ts(3).Time))

	ravi := entities[1]
	assert.Equal(t, "email:ravi@example.com", ravi.Key)
	assert.Equal(t, models.IdentityEmail, ravi.IdentityKind)
	assert.Equal(t, 2, ravi.MessageCount)

	anon := entities[2]
	assert.Equal(t, models.IdentitySynthetic, anon.IdentityKind)
	assert.Equal(t, models.GuestName, anon.DisplayName)
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	agg := newTestAggregator()
	records := aggregationFixture()
	want := agg.Aggregate(records, nil).Map()

	reversed := make([]models.RawRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	rotated := append(append([]models.RawRecord{}, records[2:]...), records[:2]...)

	for name, perm := range map[string][]models.RawRecord{"reversed": reversed, "rotated": rotated} {
		got := agg.Aggregate(perm, nil).Map()
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s permutation mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestAggregateDriftedCopiesAreOrderIndependent(t *testing.T) {
	agg := newTestAggregator()
	stale := models.RawRecord{ID: "x", AccountID: "a", Kind: models.KindConversation, Phone: "+91000", CreatedAt: ts(1), MessageCount: 2}
	fresh := models.RawRecord{ID: "x", AccountID: "a", Kind: models.KindConversation, Phone: "+91000", CreatedAt: ts(5), MessageCount: 7}
	sameTime := models.RawRecord{ID: "x", AccountID: "a", Kind: models.KindConversation, Phone: "+91000", CreatedAt: ts(5), MessageCount: 7, Status: "hot"}

	orders := map[string][]models.RawRecord{
		"stale first": {stale, fresh, sameTime},
		"fresh first": {fresh, sameTime, stale},
		"tie first":   {sameTime, stale, fresh},
	}
	var want map[string]*models.AggregatedEntity
	for name, records := range orders {
		got := agg.Aggregate(records, nil)
		assert.Equal(t, 2, got.Skipped(), name)
		require.Equal(t, 1, got.Len(), name)

		e := got.Entities()[0]
		assert.Equal(t, ts(5).Time, e.LastSeen, name)
		assert.Equal(t, ts(5).Time, e.FirstSeen, name)
		assert.Equal(t, 7, e.MessageCount, name)
		assert.Equal(t, "hot", e.Status, name)

		if want == nil {
			want = got.Map()
			continue
		}
		if diff := cmp.Diff(want, got.Map()); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	agg := newTestAggregator()
	first := agg.Aggregate(aggregationFixture(), nil).Entities()
	second := agg.Aggregate(aggregationFixture(), nil).Entities()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeat aggregation differs (-first +second):\n%s", diff)
	}
}

func TestAggregateEqualTimestampTieBreak(t *testing.T) {
	agg := newTestAggregator()
	a := models.RawRecord{ID: "x", Phone: "+91000", Name: "Zed", CreatedAt: ts(1), Status: "cold"}
	b := models.RawRecord{ID: "x", AccountID: "other", Phone: "+91000", Name: "Amy", CreatedAt: ts(1), Status: "hot"}

	ab := agg.Aggregate([]models.RawRecord{a, b}, nil).Entities()
	ba := agg.Aggregate([]models.RawRecord{b, a}, nil).Entities()
	require.Len(t, ab, 1)
	require.Len(t, ba, 1)
	assert.Equal(t, "Amy", ab[0].DisplayName)
	assert.Equal(t, ab[0].DisplayName, ba[0].DisplayName)
	assert.Equal(t, "hot", ab[0].Status)
	assert.Equal(t, ab[0].Status, ba[0].Status)
}

func TestAggregateGenericNameUpgrade(t *testing.T) {
	records := []models.RawRecord{
		{ID: "1", Phone: "+91000", Name: "Guest", CreatedAt: ts(1)},
		{ID: "2", Phone: "+91000", ProfileName: "Meera", CreatedAt: ts(2)},
	}
	entities := newTestAggregator().Aggregate(records, nil).Entities()
	require.Len(t, entities, 1)
	assert.Equal(t, "Meera", entities[0].DisplayName)
}

func TestAggregateSkipsDuplicates(t *testing.T) {
	seen := utils.NewKeySet()
	dup := models.RawRecord{ID: "same", AccountID: "acct_a", Kind: models.KindLead, Phone: "+91000", MessageCount: 2}

	agg := newTestAggregator().Aggregate([]models.RawRecord{dup, dup, dup}, seen)
	assert.Equal(t, 2, agg.Skipped())
	require.Equal(t, 1, agg.Len())
	assert.Equal(t, 2, agg.Entities()[0].MessageCount)
	assert.True(t, seen.Contains(dup.DedupKey()))
	assert.Equal(t, 1, seen.Size())

	again := newTestAggregator().Aggregate([]models.RawRecord{dup}, seen)
	assert.Equal(t, 0, again.Len())
}

func TestAggregateFreshContextPerRun(t *testing.T) {
	rec := models.RawRecord{ID: "r", AccountID: "acct_a", Kind: models.KindLead, Phone: "+91000"}
	agg := newTestAggregator()
	assert.Equal(t, 1, agg.Aggregate([]models.RawRecord{rec}, nil).Len())
	assert.Equal(t, 1, agg.Aggregate([]models.RawRecord{rec}, nil).Len())
}

func TestAggregateAnonymousRecordsNeverCollide(t *testing.T) {
	records := []models.RawRecord{
		{AccountID: "acct_a", Kind: models.KindCall, Name: "?", CreatedAt: ts(1)},
		{AccountID: "acct_a", Kind: models.KindCall, Name: "!", CreatedAt: ts(1)},
	}
	assert.Equal(t, 2, newTestAggregator().Aggregate(records, nil).Len())
}
