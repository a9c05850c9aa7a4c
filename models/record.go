package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RecordKind names one upstream paginated collection.
type RecordKind string

const (
	KindConversation RecordKind = "conversation"
	KindCall         RecordKind = "call"
	KindLead         RecordKind = "lead"
	KindFollowUp     RecordKind = "followup"
)

// Valid reports whether k is one of the known upstream collections.
func (k RecordKind) Valid() bool {
	switch k {
	case KindConversation, KindCall, KindLead, KindFollowUp:
		return true
	}
	return false
}

// Account is one independently paginated upstream source.
type Account struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Message is a single line of a conversation or call transcript.
type Message struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
}

// RawRecord is one item returned by an upstream page. It is never mutated
// after the fetcher stamps its account and kind.
type RawRecord struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"accountId"`
	Kind            RecordKind `json:"kind"`
	Phone           string     `json:"phone"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	ProfileName     string     `json:"profileName"`
	CreatedAt       Timestamp  `json:"createdAt"`
	LastActivityAt  Timestamp  `json:"lastActivityAt"`
	Status          string     `json:"status"`
	MessageCount    int        `json:"messageCount"`
	Messages        []Message  `json:"messages"`
	MatchedKeywords []string   `json:"matchedKeywords"`
}

// When is the record's own timestamp: last activity when known, creation otherwise.
func (r RawRecord) When() time.Time {
	if !r.LastActivityAt.IsZero() {
		return r.LastActivityAt.Time
	}
	return r.CreatedAt.Time
}

// Interactions is what the record contributes to an entity's message count.
func (r RawRecord) Interactions() int {
	switch {
	case r.MessageCount > 0:
		return r.MessageCount
	case len(r.Messages) > 0:
		return len(r.Messages)
	default:
		return 1
	}
}

// DedupKey identifies the record across pages and sources.
func (r RawRecord) DedupKey() string {
	if r.ID == "" {
		return ""
	}
	return r.AccountID + "/" + string(r.Kind) + "/" + r.ID
}

// Page is one upstream response. Absent fields decode to their defaults.
type Page struct {
	Items      []RawRecord `json:"items"`
	Pagination struct {
		TotalPages int `json:"totalPages"`
		Total      int `json:"total"`
	} `json:"pagination"`
}

// TotalPages returns the reported page count, defaulting to 1.
func (p *Page) TotalPages() int {
	if p == nil || p.Pagination.TotalPages < 1 {
		return 1
	}
	return p.Pagination.TotalPages
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp decodes the handful of time encodings the upstream emits.
type Timestamp struct {
	time.Time
}

// ParseTimestamp accepts RFC3339, "YYYY-MM-DD HH:MM:SS", "YYYY-MM-DD" or
// unix epoch milliseconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("models: unrecognised timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatInt(int64(v), 10)
	default:
		return fmt.Errorf("models: unsupported timestamp %s", string(b))
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		// Unparseable timestamps are treated as unknown rather than failing the page.
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}
