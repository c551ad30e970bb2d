package store

import (
	"context"
	"encoding/base64"

	"keeper.share/internal/crypto"
	"keeper.share/internal/models"
)

var _ RecordStore = (*EncryptedRecords)(nil)

// EncryptedRecords wraps any RecordStore so secret values are sealed with
// AES-GCM before they reach the backend and opened on the way out. Grants
// are unaffected; only the record payload is sensitive at rest.
type EncryptedRecords struct {
	inner RecordStore
	key   string
}

func NewEncryptedRecords(inner RecordStore, key string) *EncryptedRecords {
	return &EncryptedRecords{inner: inner, key: key}
}

func (e *EncryptedRecords) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	record, err := e.inner.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	sealed, err := base64.StdEncoding.DecodeString(record.Secret)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.Decrypt(sealed, e.key)
	if err != nil {
		return nil, err
	}

	record.Secret = string(plain)
	return record, nil
}

func (e *EncryptedRecords) SaveRecord(ctx context.Context, record *models.Record) (*models.Record, error) {
	sealed, err := crypto.Encrypt([]byte(record.Secret), e.key)
	if err != nil {
		return nil, err
	}

	toStore := record.Clone()
	toStore.Secret = base64.StdEncoding.EncodeToString(sealed)

	stored, err := e.inner.SaveRecord(ctx, toStore)
	if err != nil {
		return nil, err
	}

	stored.Secret = record.Secret
	return stored, nil
}
