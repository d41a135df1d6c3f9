package provisioner

import (
	"context"
	"time"

	"github.com/sykell/igprovision/internal/db"
)

// Status is the tagged lifecycle state of a persisted account. Detail is only
// meaningful for the error kind.
type Status struct {
	Kind   db.StatusKind
	Detail string
}

func StatusNew() Status      { return Status{Kind: db.StatusNew} }
func StatusLoggedIn() Status { return Status{Kind: db.StatusLoggedIn} }

// StatusError carries a free-text diagnostic.
func StatusError(detail string) Status { return Status{Kind: db.StatusError, Detail: detail} }

func (s Status) String() string {
	if s.Detail == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ": " + s.Detail
}

// AccountStore is the subset of the record store the provisioner writes to.
type AccountStore interface {
	InsertAccount(ctx context.Context, acc *db.Account) (bool, error)
	UpdateAccountStatus(ctx context.Context, id uint, kind db.StatusKind, detail string, at time.Time) error
}

// StatusTracker overwrites an account's status; no history is kept.
type StatusTracker struct {
	store AccountStore
}

func NewStatusTracker(store AccountStore) *StatusTracker {
	return &StatusTracker{store: store}
}

// Mark sets the account's status and last activity time.
func (t *StatusTracker) Mark(ctx context.Context, accountID uint, status Status, at time.Time) error {
	return t.store.UpdateAccountStatus(ctx, accountID, status.Kind, status.Detail, at.UTC())
}

// MarkError is Mark with StatusError(detail).
func (t *StatusTracker) MarkError(ctx context.Context, accountID uint, detail string, at time.Time) error {
	return t.Mark(ctx, accountID, StatusError(detail), at)
}
