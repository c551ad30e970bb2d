package store

import (
	"context"
	"errors"
	"time"

	"keeper.share/internal/models"
)

var (
	ErrNotFound       = errors.New("grant not found")
	ErrDuplicateToken = errors.New("grant token already exists")
	ErrRedeemed       = errors.New("grant already redeemed")
	ErrExpired        = errors.New("grant has expired")
	ErrSelfRedeem     = errors.New("grant cannot be redeemed by its owner")

	ErrRecordNotFound = errors.New("record not found")
)

// GrantStore is durable keyed storage for share grants. TryRedeem is the
// one primitive beyond plain CRUD: a single atomic conditional mutation.
type GrantStore interface {
	// Put inserts a new grant, rejecting an existing token with
	// ErrDuplicateToken rather than overwriting.
	Put(ctx context.Context, grant *models.Grant) error

	// Get returns the grant for the token or ErrNotFound.
	Get(ctx context.Context, token string) (*models.Grant, error)

	// TryRedeem atomically sets the grant's RedeemedBy to requesterID iff
	// the grant exists, is unredeemed, is not owned by requesterID, and is
	// not expired at now. Under concurrent attempts on the same token
	// exactly one caller gets the redeemed grant back; the rest get one of
	// ErrNotFound, ErrRedeemed, ErrExpired, ErrSelfRedeem. The returned
	// cause is for internal logging only and must not reach clients.
	TryRedeem(ctx context.Context, token, requesterID string, now time.Time) (*models.Grant, error)

	// DeleteDead removes up to limit grants that are expired or redeemed
	// at now, oldest created first, and returns the number removed. It
	// never removes a live grant.
	DeleteDead(ctx context.Context, limit int, now time.Time) (int, error)
}

// RecordStore is the collaborator contract for secret records.
type RecordStore interface {
	// GetRecord returns the record or ErrRecordNotFound.
	GetRecord(ctx context.Context, id string) (*models.Record, error)

	// SaveRecord persists the record, assigning an identity if it has
	// none, and returns the stored form.
	SaveRecord(ctx context.Context, record *models.Record) (*models.Record, error)
}

// Backend is a single storage engine serving both grants and records, the
// way the application deploys them.
type Backend interface {
	GrantStore
	RecordStore
	Close() error
}
