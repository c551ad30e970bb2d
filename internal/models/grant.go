package models

import "time"

// Grant authorizes exactly one redemption of a record by a principal other
// than its owner. RedeemedBy stays nil until the grant is consumed and is
// never cleared afterwards.
type Grant struct {
	Token      string     `json:"token" gorm:"primaryKey;size:36"`
	OwnerID    string     `json:"owner_id" gorm:"size:64;not null"`
	RecordID   string     `json:"record_id" gorm:"size:36;not null"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index;not null"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RedeemedBy *string    `json:"redeemed_by,omitempty" gorm:"size:64"`
}

// Expired reports whether the grant's expiry, if any, has passed.
func (g *Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Dead reports whether the grant can never be redeemed again and is
// eligible for cleanup.
func (g *Grant) Dead(now time.Time) bool {
	return g.RedeemedBy != nil || g.Expired(now)
}

// Clone returns an independent copy of the grant.
func (g *Grant) Clone() *Grant {
	c := *g
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		c.ExpiresAt = &t
	}
	if g.RedeemedBy != nil {
		s := *g.RedeemedBy
		c.RedeemedBy = &s
	}
	return &c
}
