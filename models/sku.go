package models

import (
	"encoding/json"
	"time"

	"gofalre.io/catalog/models/enum"
)

// Sku 代表一個可售的規格（Stock Keeping Unit），庫存以 SKU 為單位追蹤
type Sku struct {
	ID         uint64          `json:"id"`
	SpuID      uint64          `json:"spu_id"`
	Name       string          `json:"name"`
	Unit       string          `json:"unit,omitempty"`
	State      enum.SkuState   `json:"state"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Sellable reports whether the SKU can currently be sold.
func (s *Sku) Sellable() bool {
	return s.State == enum.SkuStateEnabled
}
