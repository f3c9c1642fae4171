package model

import "time"

// Purchase exists iff a listing order for (BuyerUID, PhotoID) settled.
type Purchase struct {
	ID         string    `db:"id" json:"id"`
	OrderID    string    `db:"order_id" json:"orderId"`
	BuyerUID   string    `db:"buyer_uid" json:"buyerUid"`
	PhotoID    string    `db:"photo_id" json:"photoId"`
	Price      int64     `db:"price" json:"price"`
	Title      string    `db:"title" json:"title"`
	PreviewURL string    `db:"preview_url" json:"previewUrl"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
