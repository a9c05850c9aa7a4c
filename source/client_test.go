package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadboard/models"
	"leadboard/utils"
)

func TestClientFetchPage(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"id": "c1", "phone": "919876543210@s.whatsapp.net", "name": "Asha",
				 "createdAt": "2024-01-01T10:00:00Z", "lastActivityAt": 1704362400000,
				 "matchedKeywords": ["pricing"], "messages": [{"sender": "user", "text": "hi"}]}
			],
			"pagination": {"totalPages": 4, "total": 31}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", 5*time.Second, 1, utils.NewNopLogger())
	page, err := c.FetchPage(context.Background(), PageRequest{AccountID: "acct 1", Kind: models.KindConversation, Page: 2, Limit: 50})
	require.NoError(t, err)

	assert.Equal(t, "/accounts/acct 1/conversations", gotPath)
	assert.Equal(t, "limit=50&page=2", gotQuery)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, 4, page.TotalPages())
	require.Len(t, page.Items, 1)

	rec := page.Items[0]
	assert.Equal(t, "c1", rec.ID)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), rec.CreatedAt.Time.UTC())
	assert.Equal(t, time.UnixMilli(1704362400000).UTC(), rec.When())
}

func TestClientFetchPageToleratesMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 1, utils.NewNopLogger())
	page, err := c.FetchPage(context.Background(), PageRequest{AccountID: "a", Kind: models.KindLead, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.TotalPages())
}

func TestClientFetchPageStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 1, utils.NewNopLogger())
	_, err := c.FetchPage(context.Background(), PageRequest{AccountID: "a", Kind: models.KindCall, Page: 1, Limit: 10})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
}

func TestClientListAccountsRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 2, utils.NewNopLogger())
	c.retry.BaseDelay = time.Millisecond

	_, err := c.ListAccounts(context.Background())
	require.ErrorIs(t, err, ErrAccountsUnavailable)
	assert.Equal(t, 2, calls)
}

func TestClientListAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts", r.URL.Path)
		_, _ = w.Write([]byte(`{"items":[{"id":"a1","name":"Sales"},{"id":"a2","name":"Support"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 1, utils.NewNopLogger())
	accounts, err := c.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Account{{ID: "a1", Name: "Sales"}, {ID: "a2", Name: "Support"}}, accounts)
}
