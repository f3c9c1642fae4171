package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Listing is the full catalog record. OriginalPath never leaves the server
// except through the access gate; use Public for anything a buyer can read.
type Listing struct {
	ID           string    `db:"id"`
	SellerID     string    `db:"seller_id"`
	Title        string    `db:"title"`
	Price        int64     `db:"price"` // minor units
	Tags         Tags      `db:"tags"`
	PreviewPath  string    `db:"preview_path"`
	OriginalPath string    `db:"original_path"`
	CreatedAt    time.Time `db:"created_at"`
}

// PublicListing is the buyer-facing projection of a Listing.
type PublicListing struct {
	ID          string    `db:"id" json:"id"`
	SellerID    string    `db:"seller_id" json:"sellerId"`
	Title       string    `db:"title" json:"title"`
	Price       int64     `db:"price" json:"price"`
	Tags        Tags      `db:"tags" json:"tags"`
	PreviewPath string    `db:"preview_path" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`

	// Computed fields (not in database)
	PreviewURL string `db:"-" json:"previewUrl"`
}

func (l *Listing) Public() *PublicListing {
	return &PublicListing{
		ID:          l.ID,
		SellerID:    l.SellerID,
		Title:       l.Title,
		Price:       l.Price,
		Tags:        l.Tags,
		PreviewPath: l.PreviewPath,
		CreatedAt:   l.CreatedAt,
	}
}

// ListingMeta is what a seller submits when publishing a photo.
type ListingMeta struct {
	SellerID string
	Title    string
	Price    int64
	Tags     []string
}

// Tags is stored as a JSON array in a text column.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("tags: unsupported column type %T", src)
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	*t = out
	return nil
}
