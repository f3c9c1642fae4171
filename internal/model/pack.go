package model

import "time"

// Pack is a purchasable seller plan.
type Pack struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Price           int64         `json:"price"` // minor units
	UploadLimit     int           `json:"uploadLimit"`
	MaxPricePerItem int64         `json:"maxPricePerItem"`
	Duration        time.Duration `json:"-"`
	DurationDays    int           `json:"durationDays"`
}

const (
	PackBasic   = "basic"
	PackPro     = "pro"
	PackPremium = "premium"
)

const planDuration = 180 * 24 * time.Hour

var packs = []Pack{
	{ID: PackBasic, Name: "Basic", Price: 10000, UploadLimit: 10, MaxPricePerItem: 19900, Duration: planDuration, DurationDays: 180},
	{ID: PackPro, Name: "Pro", Price: 30000, UploadLimit: 25, MaxPricePerItem: 24900, Duration: planDuration, DurationDays: 180},
	{ID: PackPremium, Name: "Premium", Price: 80000, UploadLimit: 50, MaxPricePerItem: 24900, Duration: planDuration, DurationDays: 180},
}

// Packs returns the plan catalog in display order.
func Packs() []Pack {
	out := make([]Pack, len(packs))
	copy(out, packs)
	return out
}

func PackByID(id string) (Pack, bool) {
	for _, p := range packs {
		if p.ID == id {
			return p, true
		}
	}
	return Pack{}, false
}
