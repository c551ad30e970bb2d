package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"keeper.share/internal/models"
)

var _ Backend = (*RedisStore)(nil)

const (
	redeemRetries = 3
	sweepPageSize = 100
)

// RedisStore keeps one gob-encoded value per grant and record, plus a
// sorted set indexing grant tokens by creation time so DeleteDead can walk
// candidates oldest first. Grants carry no redis TTL: expiry is evaluated
// by the redemption predicate and reaped only by DeleteDead, the same as
// every other backend.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(options *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// putGrantScript inserts the grant value and its created-at index entry as
// one atomic step, so a grant can never exist without being visible to the
// sweep. Returns 0 without touching the index when the token is taken.
var putGrantScript = redis.NewScript(`
	if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
		return 0
	end
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
	return 1
`)

func (r *RedisStore) Put(ctx context.Context, grant *models.Grant) error {
	data, err := encodeGrant(grant)
	if err != nil {
		return err
	}

	inserted, err := putGrantScript.Run(ctx, r.client,
		[]string{grantKey(grant.Token), grantIndexKey},
		data, grant.CreatedAt.UnixMilli(), grant.Token).Int()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return ErrDuplicateToken
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, token string) (*models.Grant, error) {
	data, err := r.client.Get(ctx, grantKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeGrant(data)
}

// TryRedeem runs the predicate check and the write inside an optimistic
// WATCH transaction: if any other client touches the grant between the read
// and the queued SET, the transaction fails and is retried, so two
// concurrent redeemers can never both pass the unredeemed check.
func (r *RedisStore) TryRedeem(ctx context.Context, token, requesterID string, now time.Time) (*models.Grant, error) {
	key := grantKey(token)
	var redeemed *models.Grant

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		grant, err := decodeGrant(data)
		if err != nil {
			return err
		}

		if grant.RedeemedBy != nil {
			return ErrRedeemed
		}
		if grant.OwnerID == requesterID {
			return ErrSelfRedeem
		}
		if grant.Expired(now) {
			return ErrExpired
		}

		grant.RedeemedBy = &requesterID
		newData, err := encodeGrant(grant)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			return nil
		})
		if err == nil {
			redeemed = grant
		}
		return err
	}

	for i := 0; i < redeemRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return redeemed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	// Every attempt lost its race, so another caller has decided the
	// grant's fate by now; re-read once to report the refusal cause
	// instead of a transient transaction failure.
	grant, err := r.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	switch {
	case grant.RedeemedBy != nil:
		return nil, ErrRedeemed
	case grant.OwnerID == requesterID:
		return nil, ErrSelfRedeem
	case grant.Expired(now):
		return nil, ErrExpired
	default:
		return nil, ErrNotFound
	}
}

func (r *RedisStore) DeleteDead(ctx context.Context, limit int, now time.Time) (int, error) {
	deleted := 0
	offset := int64(0)

	for deleted < limit {
		tokens, err := r.client.ZRange(ctx, grantIndexKey, offset, offset+sweepPageSize-1).Result()
		if err != nil {
			return deleted, err
		}
		if len(tokens) == 0 {
			break
		}

		for _, token := range tokens {
			if deleted >= limit {
				break
			}

			grant, err := r.Get(ctx, token)
			if errors.Is(err, ErrNotFound) {
				// Stale index entry; drop it without counting.
				if err := r.client.ZRem(ctx, grantIndexKey, token).Err(); err != nil {
					return deleted, err
				}
				offset--
				continue
			}
			if err != nil {
				return deleted, err
			}

			if !grant.Dead(now) {
				continue
			}

			// The grant can only have moved live -> dead since the read,
			// never back, so deleting here is safe.
			_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, grantKey(token))
				pipe.ZRem(ctx, grantIndexKey, token)
				return nil
			})
			if err != nil {
				return deleted, err
			}
			deleted++
			offset--
		}

		offset += int64(len(tokens))
	}

	return deleted, nil
}

func (r *RedisStore) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	data, err := r.client.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return decodeRecord(data)
}

func (r *RedisStore) SaveRecord(ctx context.Context, record *models.Record) (*models.Record, error) {
	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	data, err := encodeRecord(stored)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, recordKey(stored.ID), data, 0).Err(); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Helpers

const grantIndexKey = "grants:created"

func grantKey(token string) string {
	return "grant:" + token
}

func recordKey(id string) string {
	return "record:" + id
}

func encodeGrant(grant *models.Grant) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(grant); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGrant(data []byte) (*models.Grant, error) {
	var grant models.Grant
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func encodeRecord(record *models.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(record); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*models.Record, error) {
	var record models.Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&record); err != nil {
		return nil, err
	}
	return &record, nil
}
