package models

import (
	"time"

	"github.com/stripe/stripe-go/v79"

	"gofalre.io/catalog/models/enum"
)

// Price 代表 SKU 在某段期間內的一種價格，金額以最小貨幣單位（分）儲存
type Price struct {
	ID            uint64          `json:"id"`
	SKUID         uint64          `json:"sku_id"`
	Type          enum.PriceType  `json:"type"`
	Currency      stripe.Currency `json:"currency"`
	Amount        int64           `json:"amount"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// EffectiveAt reports whether the price is effective at the given time.
func (p *Price) EffectiveAt(at time.Time) bool {
	if at.Before(p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && !at.Before(*p.EffectiveTo) {
		return false
	}
	return true
}
