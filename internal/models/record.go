package models

// Record is a stored secret. The sharing core treats the payload fields as
// opaque; only ID and OwnerID carry meaning here.
type Record struct {
	ID      string `json:"id" gorm:"primaryKey;size:36"`
	OwnerID string `json:"owner_id" gorm:"size:64;not null;index"`
	Name    string `json:"name"`
	Login   string `json:"login"`
	Secret  string `json:"secret"`
	URL     string `json:"url"`
}

// CopyFor builds an independent record with the same payload, no identity
// yet, owned by the given principal. Used on redemption so later edits to
// either record never affect the other.
func (r *Record) CopyFor(ownerID string) *Record {
	return &Record{
		OwnerID: ownerID,
		Name:    r.Name,
		Login:   r.Login,
		Secret:  r.Secret,
		URL:     r.URL,
	}
}

// Clone returns an independent copy of the record, identity included.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}
