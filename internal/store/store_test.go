package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"keeper.share/internal/models"
)

// backendsUnderTest returns every backend whose semantics the suite must
// agree on. The redis backend has its own test gated on a live server.
func backendsUnderTest(t *testing.T) map[string]Backend {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	memStore := NewMemoryStore()
	t.Cleanup(func() { memStore.Close() })

	return map[string]Backend{
		"memory": memStore,
		"sqlite": sqliteStore,
	}
}

func newGrant(owner, recordID string, createdAt time.Time, expiresAt *time.Time) *models.Grant {
	return &models.Grant{
		Token:     uuid.NewString(),
		OwnerID:   owner,
		RecordID:  recordID,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
}

func TestPutRejectsDuplicateToken(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			grant := newGrant("alice", "r1", now, nil)
			require.NoError(t, backend.Put(ctx, grant))

			err := backend.Put(ctx, grant.Clone())
			require.ErrorIs(t, err, ErrDuplicateToken)

			stored, err := backend.Get(ctx, grant.Token)
			require.NoError(t, err)
			require.Equal(t, "alice", stored.OwnerID)
		})
	}
}

func TestGetUnknownToken(t *testing.T) {
	ctx := context.Background()

	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := backend.Get(ctx, uuid.NewString())
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestTryRedeem(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("success sets redeemer once", func(t *testing.T) {
				grant := newGrant("alice", "r1", now, &future)
				require.NoError(t, backend.Put(ctx, grant))

				redeemed, err := backend.TryRedeem(ctx, grant.Token, "bob", now)
				require.NoError(t, err)
				require.NotNil(t, redeemed.RedeemedBy)
				require.Equal(t, "bob", *redeemed.RedeemedBy)

				_, err = backend.TryRedeem(ctx, grant.Token, "carol", now)
				require.ErrorIs(t, err, ErrRedeemed)

				stored, err := backend.Get(ctx, grant.Token)
				require.NoError(t, err)
				require.Equal(t, "bob", *stored.RedeemedBy)
			})

			t.Run("owner cannot redeem", func(t *testing.T) {
				grant := newGrant("alice", "r1", now, nil)
				require.NoError(t, backend.Put(ctx, grant))

				_, err := backend.TryRedeem(ctx, grant.Token, "alice", now)
				require.ErrorIs(t, err, ErrSelfRedeem)

				// Still live for anyone else.
				_, err = backend.TryRedeem(ctx, grant.Token, "bob", now)
				require.NoError(t, err)
			})

			t.Run("expired grant refuses redemption", func(t *testing.T) {
				grant := newGrant("alice", "r1", past, &past)
				require.NoError(t, backend.Put(ctx, grant))

				_, err := backend.TryRedeem(ctx, grant.Token, "bob", now)
				require.ErrorIs(t, err, ErrExpired)
			})

			t.Run("no expiry never times out", func(t *testing.T) {
				grant := newGrant("alice", "r1", now.Add(-1000*time.Hour), nil)
				require.NoError(t, backend.Put(ctx, grant))

				_, err := backend.TryRedeem(ctx, grant.Token, "bob", now)
				require.NoError(t, err)
			})

			t.Run("unknown token", func(t *testing.T) {
				_, err := backend.TryRedeem(ctx, uuid.NewString(), "bob", now)
				require.ErrorIs(t, err, ErrNotFound)
			})
		})
	}
}

func TestTryRedeemConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			grant := newGrant("alice", "r1", now, nil)
			require.NoError(t, backend.Put(ctx, grant))

			const attempts = 64
			var wg sync.WaitGroup
			results := make(chan error, attempts)

			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					requester := fmt.Sprintf("principal-%d", i)
					_, err := backend.TryRedeem(ctx, grant.Token, requester, now)
					results <- err
				}(i)
			}
			wg.Wait()
			close(results)

			successes, failures := 0, 0
			for err := range results {
				if err == nil {
					successes++
				} else {
					require.ErrorIs(t, err, ErrRedeemed)
					failures++
				}
			}
			require.Equal(t, 1, successes)
			require.Equal(t, attempts-1, failures)
		})
	}
}

func TestDeleteDead(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			past := now.Add(-time.Minute)

			// Three dead grants with distinct ages, one live.
			oldest := newGrant("alice", "r1", now.Add(-3*time.Hour), &past)
			middle := newGrant("alice", "r2", now.Add(-2*time.Hour), &past)
			newest := newGrant("alice", "r3", now.Add(-1*time.Hour), nil)
			live := newGrant("alice", "r4", now.Add(-4*time.Hour), nil)

			for _, g := range []*models.Grant{oldest, middle, newest, live} {
				require.NoError(t, backend.Put(ctx, g))
			}
			// Redeemed grants are dead even without expiry.
			_, err := backend.TryRedeem(ctx, newest.Token, "bob", now)
			require.NoError(t, err)

			deleted, err := backend.DeleteDead(ctx, 2, now)
			require.NoError(t, err)
			require.Equal(t, 2, deleted)

			// Oldest candidates go first.
			_, err = backend.Get(ctx, oldest.Token)
			require.ErrorIs(t, err, ErrNotFound)
			_, err = backend.Get(ctx, middle.Token)
			require.ErrorIs(t, err, ErrNotFound)
			_, err = backend.Get(ctx, newest.Token)
			require.NoError(t, err)

			// Next run picks up the remainder; the live grant survives
			// every sweep.
			deleted, err = backend.DeleteDead(ctx, 2, now)
			require.NoError(t, err)
			require.Equal(t, 1, deleted)

			_, err = backend.Get(ctx, live.Token)
			require.NoError(t, err)

			deleted, err = backend.DeleteDead(ctx, 2, now)
			require.NoError(t, err)
			require.Equal(t, 0, deleted)
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			record := &models.Record{
				OwnerID: "alice",
				Name:    "bank",
				Login:   "alice@example.com",
				Secret:  "hunter2",
				URL:     "https://bank.example.com",
			}
			saved, err := backend.SaveRecord(ctx, record)
			require.NoError(t, err)
			require.NotEmpty(t, saved.ID)

			// Mutating the returned copy must not touch the stored record.
			saved.Secret = "changed"

			fetched, err := backend.GetRecord(ctx, saved.ID)
			require.NoError(t, err)
			require.Equal(t, "hunter2", fetched.Secret)

			_, err = backend.GetRecord(ctx, uuid.NewString())
			require.ErrorIs(t, err, ErrRecordNotFound)
		})
	}
}
