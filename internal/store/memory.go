package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"keeper.share/internal/models"
)

// Compile-time interface check
var _ Backend = (*MemoryStore)(nil)

type MemoryStore struct {
	mu      sync.RWMutex
	grants  map[string]*models.Grant
	records map[string]*models.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants:  make(map[string]*models.Grant),
		records: make(map[string]*models.Record),
	}
}

func (s *MemoryStore) Put(ctx context.Context, grant *models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[grant.Token]; ok {
		return ErrDuplicateToken
	}
	s.grants[grant.Token] = grant.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[token]
	if !ok {
		return nil, ErrNotFound
	}
	return grant.Clone(), nil
}

// TryRedeem evaluates the whole predicate and flips RedeemedBy under one
// lock, so concurrent callers serialize and exactly one can win.
func (s *MemoryStore) TryRedeem(ctx context.Context, token, requesterID string, now time.Time) (*models.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[token]
	if !ok {
		return nil, ErrNotFound
	}
	if grant.RedeemedBy != nil {
		return nil, ErrRedeemed
	}
	if grant.OwnerID == requesterID {
		return nil, ErrSelfRedeem
	}
	if grant.Expired(now) {
		return nil, ErrExpired
	}

	grant.RedeemedBy = &requesterID
	return grant.Clone(), nil
}

func (s *MemoryStore) DeleteDead(ctx context.Context, limit int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dead []*models.Grant
	for _, grant := range s.grants {
		if grant.Dead(now) {
			dead = append(dead, grant)
		}
	}
	sort.Slice(dead, func(i, j int) bool {
		return dead[i].CreatedAt.Before(dead[j].CreatedAt)
	})
	if len(dead) > limit {
		dead = dead[:limit]
	}
	for _, grant := range dead {
		delete(s.grants, grant.Token)
	}
	return len(dead), nil
}

func (s *MemoryStore) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return record.Clone(), nil
}

func (s *MemoryStore) SaveRecord(ctx context.Context, record *models.Record) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.records[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants = nil
	s.records = nil
	return nil
}
