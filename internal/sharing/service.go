package sharing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"keeper.share/internal/crypto"
	"keeper.share/internal/models"
	"keeper.share/internal/store"
)

var (
	// ErrRecordNotFound rejects issuance against a record the caller
	// cannot share, whether it is absent or owned by someone else.
	ErrRecordNotFound = errors.New("record not found")

	// ErrNotAvailable is the single outcome for every failed redemption.
	// Callers never learn whether the token was unknown, consumed,
	// expired, or their own; that detail stays in logs and counters.
	ErrNotAvailable = errors.New("shared record not available")
)

// Service orchestrates the grant lifecycle: issuance against owned records
// and atomic single-use redemption into an independent copy.
type Service struct {
	grants  store.GrantStore
	records store.RecordStore
	maxTTL  time.Duration
	log     *zap.Logger
	metrics *Metrics

	now func() time.Time
}

// NewService wires the sharing core. maxTTL caps requested grant
// lifetimes; zero means uncapped. metrics may be nil.
func NewService(grants store.GrantStore, records store.RecordStore, maxTTL time.Duration, log *zap.Logger, metrics *Metrics) *Service {
	return &Service{
		grants:  grants,
		records: records,
		maxTTL:  maxTTL,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Issue creates a grant for the record and returns its token. The record
// must exist and belong to ownerID; both failures report ErrRecordNotFound
// so issuance does not reveal which foreign record ids exist. A nil ttl
// produces a grant with no expiry.
func (s *Service) Issue(ctx context.Context, recordID, ownerID string, ttl *time.Duration) (string, error) {
	record, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", ErrRecordNotFound
		}
		return "", fmt.Errorf("loading record: %w", err)
	}
	if record.OwnerID != ownerID {
		s.log.Info("share of foreign record rejected",
			zap.String("record_id", recordID),
			zap.String("caller", ownerID))
		return "", ErrRecordNotFound
	}

	now := s.now()
	grant := &models.Grant{
		Token:     crypto.NewToken(),
		OwnerID:   ownerID,
		RecordID:  recordID,
		CreatedAt: now,
	}
	if ttl != nil {
		d := *ttl
		if s.maxTTL > 0 && d > s.maxTTL {
			d = s.maxTTL
		}
		expiresAt := now.Add(d)
		grant.ExpiresAt = &expiresAt
	}

	if err := s.grants.Put(ctx, grant); err != nil {
		// ErrDuplicateToken included: retrying with a fresh token is the
		// caller's decision, not ours.
		return "", fmt.Errorf("storing grant: %w", err)
	}

	s.metrics.countIssued()
	s.log.Info("grant issued",
		zap.String("record_id", recordID),
		zap.String("owner", ownerID),
		zap.Bool("expires", grant.ExpiresAt != nil))
	return grant.Token, nil
}

// Redeem consumes the grant and returns a fresh copy of the referenced
// record owned by requesterID. Any failure surfaces as ErrNotAvailable.
func (s *Service) Redeem(ctx context.Context, token, requesterID string) (*models.Record, error) {
	now := s.now()

	grant, err := s.grants.TryRedeem(ctx, token, requesterID, now)
	if err != nil {
		if isRedeemRefusal(err) {
			s.metrics.countFailedRedeem()
			s.log.Info("redemption refused",
				zap.String("requester", requesterID),
				zap.String("cause", err.Error()))
			return nil, ErrNotAvailable
		}
		return nil, fmt.Errorf("redeeming grant: %w", err)
	}

	record, err := s.records.GetRecord(ctx, grant.RecordID)
	if err != nil {
		// The grant is consumed but its record is gone; nothing to hand
		// out, and the uniform outcome applies.
		s.metrics.countFailedRedeem()
		s.log.Warn("redeemed grant references missing record",
			zap.String("record_id", grant.RecordID),
			zap.Error(err))
		return nil, ErrNotAvailable
	}

	copied, err := s.records.SaveRecord(ctx, record.CopyFor(requesterID))
	if err != nil {
		return nil, fmt.Errorf("saving redeemed copy: %w", err)
	}

	s.metrics.observeRedeem(now.Sub(grant.CreatedAt))
	s.log.Info("grant redeemed",
		zap.String("record_id", grant.RecordID),
		zap.String("redeemer", requesterID),
		zap.Duration("grant_age", now.Sub(grant.CreatedAt)))
	return copied, nil
}

// isRedeemRefusal separates predicate refusals, which collapse into the
// uniform outcome, from storage failures, which propagate.
func isRedeemRefusal(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrRedeemed) ||
		errors.Is(err, store.ErrExpired) ||
		errors.Is(err, store.ErrSelfRedeem)
}
