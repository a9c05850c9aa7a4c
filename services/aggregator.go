package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"leadboard/models"
	"leadboard/utils"
)

// Aggregator folds raw records into entities keyed by normalised identity.
type Aggregator struct {
	logger *utils.Logger
	norm   *Normalizer
}

// NewAggregator creates an Aggregator with the given logger and normaliser.
func NewAggregator(logger *utils.Logger, norm *Normalizer) *Aggregator {
	return &Aggregator{logger: logger, norm: norm}
}

// Aggregate folds records into a fresh Aggregation. seen is the caller's
// dedup context; records already in it are skipped. A nil seen gets a
// private set for this run. When several copies of one record arrive, the
// copy chosen by supersedes is folded regardless of arrival order.
func (a *Aggregator) Aggregate(records []models.RawRecord, seen *utils.KeySet) *Aggregation {
	agg := a.NewAggregation(seen)

	winners := make(map[string]int)
	for i, r := range records {
		dk := r.DedupKey()
		if dk == "" || agg.seen.Contains(dk) {
			continue
		}
		if j, ok := winners[dk]; !ok || supersedes(r, records[j]) {
			winners[dk] = i
		}
	}

	for _, r := range records {
		if dk := r.DedupKey(); dk != "" {
			if j, ok := winners[dk]; ok {
				delete(winners, dk)
				r = records[j]
			}
		}
		agg.Fold(r)
	}
	a.logger.Info("[aggregator] Folded %d records into %d entities (skipped %d duplicates, %d keys seen)",
		len(records), len(agg.order), agg.skipped, agg.seen.Size())
	return agg
}

// supersedes reports whether r should replace other, a copy of the same
// record: the later timestamp wins, then the higher message count, then
// the greater rendering of the content.
func supersedes(r, other models.RawRecord) bool {
	if at, ot := r.When(), other.When(); !at.Equal(ot) {
		return at.After(ot)
	}
	if r.MessageCount != other.MessageCount {
		return r.MessageCount > other.MessageCount
	}
	return fmt.Sprintf("%+v", r) > fmt.Sprintf("%+v", other)
}

// NewAggregation starts an empty run for incremental folding.
func (a *Aggregator) NewAggregation(seen *utils.KeySet) *Aggregation {
	if seen == nil {
		seen = utils.NewKeySet()
	}
	return &Aggregation{
		norm:   a.norm,
		seen:   seen,
		groups: make(map[string]*group),
	}
}

// Aggregation is the state of one aggregation run. It is not safe for
// concurrent use and is discarded after the run.
type Aggregation struct {
	norm    *Normalizer
	seen    *utils.KeySet
	groups  map[string]*group
	order   []string
	skipped int
}

// provenance orders contributions independently of fold order: earlier
// timestamps first, unknown timestamps last, then record id.
type provenance struct {
	at time.Time
	id string
}

func (p provenance) before(q provenance) bool {
	if p.at.IsZero() != q.at.IsZero() {
		return !p.at.IsZero()
	}
	if !p.at.Equal(q.at) {
		return p.at.Before(q.at)
	}
	return p.id < q.id
}

type keywordHit struct {
	text string
	from provenance
}

type group struct {
	key          string
	identityKind models.IdentityKind
	phone        string

	name   string
	nameAt provenance

	email   string
	emailAt provenance

	status   string
	statusAt provenance

	firstSeen    time.Time
	lastSeen     time.Time
	messageCount int

	keywords map[string]keywordHit
	accounts map[string]struct{}
	records  []provenance
}

// Fold merges one record into its entity, creating the entity on first
// sight. It returns false when the record was skipped as a duplicate; the
// first copy folded is the one kept.
func (g *Aggregation) Fold(r models.RawRecord) bool {
	if dk := r.DedupKey(); dk != "" && !g.seen.Add(dk) {
		g.skipped++
		return false
	}

	key, kind, phone, email := g.norm.Identity(r)
	grp, ok := g.groups[key]
	if !ok {
		grp = &group{
			key:          key,
			identityKind: kind,
			phone:        phone,
			keywords:     make(map[string]keywordHit),
			accounts:     make(map[string]struct{}),
		}
		g.groups[key] = grp
		g.order = append(g.order, key)
	}

	at := r.When()
	from := provenance{at: at, id: recordID(r)}

	if !at.IsZero() {
		if grp.firstSeen.IsZero() || at.Before(grp.firstSeen) {
			grp.firstSeen = at
		}
		if at.After(grp.lastSeen) {
			grp.lastSeen = at
		}
	}

	grp.messageCount += r.Interactions()

	if name := g.norm.BestName(r); name != "" {
		if grp.name == "" || from.before(grp.nameAt) || (!grp.nameAt.before(from) && name < grp.name) {
			grp.name, grp.nameAt = name, from
		}
	}

	if email != "" && (grp.email == "" || from.before(grp.emailAt) || (!grp.emailAt.before(from) && email < grp.email)) {
		grp.email, grp.emailAt = email, from
	}

	if status := strings.TrimSpace(r.Status); status != "" {
		if grp.status == "" || grp.statusAt.before(from) || (!from.before(grp.statusAt) && status > grp.status) {
			grp.status, grp.statusAt = status, from
		}
	}

	for _, kw := range r.MatchedKeywords {
		text := normaliseText(kw)
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		hit, exists := grp.keywords[lower]
		if !exists || from.before(hit.from) || (!hit.from.before(from) && text < hit.text) {
			grp.keywords[lower] = keywordHit{text: text, from: from}
		}
	}

	if r.AccountID != "" {
		grp.accounts[r.AccountID] = struct{}{}
	}
	grp.records = append(grp.records, from)
	return true
}

// Len returns the number of entities.
func (g *Aggregation) Len() int { return len(g.order) }

// Skipped returns how many records were dropped as duplicates.
func (g *Aggregation) Skipped() int { return g.skipped }

// Entities returns the entities in order of first appearance.
func (g *Aggregation) Entities() []*models.AggregatedEntity {
	out := make([]*models.AggregatedEntity, 0, len(g.order))
	for _, key := range g.order {
		out = append(out, g.groups[key].materialize())
	}
	return out
}

// Map returns the entities keyed by identity key.
func (g *Aggregation) Map() map[string]*models.AggregatedEntity {
	out := make(map[string]*models.AggregatedEntity, len(g.groups))
	for key, grp := range g.groups {
		out[key] = grp.materialize()
	}
	return out
}

func (grp *group) materialize() *models.AggregatedEntity {
	e := &models.AggregatedEntity{
		Key:          grp.key,
		IdentityKind: grp.identityKind,
		Phone:        grp.phone,
		Email:        grp.email,
		DisplayName:  grp.name,
		Status:       grp.status,
		FirstSeen:    grp.firstSeen,
		LastSeen:     grp.lastSeen,
		MessageCount: grp.messageCount,
	}
	if e.DisplayName == "" {
		e.DisplayName = models.GuestName
	}

	lowers := make([]string, 0, len(grp.keywords))
	for lower := range grp.keywords {
		lowers = append(lowers, lower)
	}
	sort.Strings(lowers)
	e.MatchedKeywords = make([]string, 0, len(lowers))
	for _, lower := range lowers {
		e.MatchedKeywords = append(e.MatchedKeywords, grp.keywords[lower].text)
	}

	e.Accounts = make([]string, 0, len(grp.accounts))
	for acct := range grp.accounts {
		e.Accounts = append(e.Accounts, acct)
	}
	sort.Strings(e.Accounts)

	refs := make([]provenance, len(grp.records))
	copy(refs, grp.records)
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].before(refs[j]) })
	e.ContributingRecordIDs = make([]string, len(refs))
	for i, ref := range refs {
		e.ContributingRecordIDs[i] = ref.id
	}
	return e
}

// recordID is the id exported for drill-down: the upstream id, or the
// synthetic identity for records without one.
func recordID(r models.RawRecord) string {
	if r.ID != "" {
		return r.ID
	}
	return syntheticID(r)
}
