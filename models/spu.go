package models

import (
	"time"

	"gofalre.io/catalog/models/enum"
)

// Spu 代表商品概念（Standard Product Unit），一個 SPU 之下可以有多個可售的 SKU
type Spu struct {
	ID        uint64        `json:"id"`
	Title     string        `json:"title"`
	State     enum.SpuState `json:"state"`
	Remark    string        `json:"remark,omitempty"`
	Skus      []*Sku        `json:"skus,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// OnSale reports whether the SPU is currently listed for sale.
func (s *Spu) OnSale() bool {
	return s.State == enum.SpuStateOnSale
}
