// Package source reads the upstream per-account paginated collections.
package source

import (
	"context"
	"errors"

	"leadboard/models"
)

// PageRequest addresses one page of one account's collection.
type PageRequest struct {
	AccountID string
	Kind      models.RecordKind
	Page      int
	Limit     int
}

// Source serves upstream pages. Implementations: Client (HTTP) and
// storage.PostgresSource.
type Source interface {
	FetchPage(ctx context.Context, req PageRequest) (*models.Page, error)
}

// ErrAccountsUnavailable wraps any failure to enumerate accounts. Without
// the account list no source can be walked, so a run fails as a whole.
var ErrAccountsUnavailable = errors.New("account list unavailable")

// AccountLister enumerates the accounts whose collections must be walked.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
}
