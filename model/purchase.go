package model

import "time"

// Purchase currencies.
const (
	CurrencyUSDCents = "usd_cents"
	CurrencyCoins    = "coins"
)

// PurchaseKindPremium marks the one-time Adventure Pass purchase.
const PurchaseKindPremium = "premium"

// Purchase records a completed transaction, real-money or in-game.
type Purchase struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index:idx_user_purchase;size:36;not null" json:"user_id"`
	Kind      string    `gorm:"size:32;not null" json:"kind"`
	Amount    int64     `json:"amount"`
	Currency  string    `gorm:"size:16" json:"currency"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserItem is a cosmetic a user owns.
type UserItem struct {
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	ItemID    string    `gorm:"primaryKey;size:32" json:"item_id"`
	Qty       int       `gorm:"default:1" json:"qty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
