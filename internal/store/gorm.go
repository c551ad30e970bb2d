package store

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"keeper.share/internal/models"
)

var _ Backend = (*GormStore)(nil)

// GormStore is the SQL backend. TryRedeem and DeleteDead are each a single
// statement, so the database's own row locking provides the atomicity the
// grant lifecycle depends on.
type GormStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path. Use
// ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*GormStore, error) {
	return NewGormStore(sqlite.Open(path))
}

func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Grant{}, &models.Record{}); err != nil {
		return nil, err
	}

	return &GormStore{db: db}, nil
}

func (s *GormStore) Put(ctx context.Context, grant *models.Grant) error {
	err := s.db.WithContext(ctx).Create(grant).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateToken
	}
	return err
}

func (s *GormStore) Get(ctx context.Context, token string) (*models.Grant, error) {
	var grant models.Grant
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// TryRedeem issues one conditional UPDATE; RowsAffected == 1 means this
// caller won the redemption. The full predicate lives in the statement so
// no check can be raced between a separate read and write.
func (s *GormStore) TryRedeem(ctx context.Context, token, requesterID string, now time.Time) (*models.Grant, error) {
	res := s.db.WithContext(ctx).Model(&models.Grant{}).
		Where("token = ? AND redeemed_by IS NULL AND owner_id <> ? AND (expires_at IS NULL OR expires_at > ?)",
			token, requesterID, now).
		Update("redeemed_by", requesterID)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, s.redeemFailureCause(ctx, token, requesterID, now)
	}
	return s.Get(ctx, token)
}

// redeemFailureCause re-reads the grant to name which clause of the
// predicate failed. Diagnostic only: the UPDATE above has already decided
// the outcome, this read just labels it for logs and counters.
func (s *GormStore) redeemFailureCause(ctx context.Context, token, requesterID string, now time.Time) error {
	grant, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	switch {
	case grant.RedeemedBy != nil:
		return ErrRedeemed
	case grant.OwnerID == requesterID:
		return ErrSelfRedeem
	case grant.Expired(now):
		return ErrExpired
	default:
		// Lost a race that has since resolved; report the generic cause.
		return ErrNotFound
	}
}

func (s *GormStore) DeleteDead(ctx context.Context, limit int, now time.Time) (int, error) {
	dead := s.db.Model(&models.Grant{}).
		Select("token").
		Where("expires_at <= ? OR redeemed_by IS NOT NULL", now).
		Order("created_at").
		Limit(limit)

	res := s.db.WithContext(ctx).Where("token IN (?)", dead).Delete(&models.Grant{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	var record models.Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *GormStore) SaveRecord(ctx context.Context, record *models.Record) (*models.Record, error) {
	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
		if err := s.db.WithContext(ctx).Create(stored).Error; err != nil {
			return nil, err
		}
		return stored, nil
	}
	if err := s.db.WithContext(ctx).Save(stored).Error; err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
