package model

import "time"

type SellerPlan struct {
	SellerID        string    `db:"seller_id" json:"sellerId"`
	PlanID          string    `db:"plan_id" json:"planId"`
	UploadLimit     int       `db:"upload_limit" json:"uploadLimit"`
	MaxPricePerItem int64     `db:"max_price_per_item" json:"maxPricePerItem"`
	ActivatedAt     time.Time `db:"activated_at" json:"activatedAt"`
	ExpiresAt       time.Time `db:"expires_at" json:"expiresAt"`
	UploadsUsed     int       `db:"uploads_used" json:"uploadsUsed"`
	Version         int64     `db:"version" json:"-"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

func (p *SellerPlan) IsActive(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// Remaining returns the number of uploads left in the current period.
func (p *SellerPlan) Remaining() int {
	if p.UploadsUsed >= p.UploadLimit {
		return 0
	}
	return p.UploadLimit - p.UploadsUsed
}

// Renew applies a paid pack: limits follow the pack, the counter resets and
// the period is extended by the pack duration. An expired plan deliberately
// restarts at now rather than extending its past ExpiresAt.
func (p *SellerPlan) Renew(pack Pack, now time.Time) {
	base := p.ExpiresAt
	if !p.IsActive(now) {
		base = now
		p.ActivatedAt = now
	}
	p.PlanID = pack.ID
	p.UploadLimit = pack.UploadLimit
	p.MaxPricePerItem = pack.MaxPricePerItem
	p.ExpiresAt = base.Add(pack.Duration)
	p.UploadsUsed = 0
	p.UpdatedAt = now
}
