package models

import "time"

// Stock 代表單個 SKU 的庫存總帳：可用、鎖定、已售三個計數器
// 三個計數器在任何已提交的狀態下都不為負，且只能透過 stock.Service 修改
type Stock struct {
	ID         uint64    `json:"id"`
	SKUID      uint64    `json:"sku_id"`
	ValidStock int64     `json:"valid_stock"`
	LockStock  int64     `json:"lock_stock"`
	SoldStock  int64     `json:"sold_stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewStock returns a zeroed stock aggregate for the given SKU.
func NewStock(skuID uint64) *Stock {
	return &Stock{
		SKUID:     skuID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// Put 進貨：增加可用庫存，永遠成功
func (s *Stock) Put(quantity int64) {
	s.ValidStock += quantity
}

// Reserve 鎖定：可用轉為鎖定；可用不足時回傳 false 且不做任何修改
func (s *Stock) Reserve(quantity int64) bool {
	if s.ValidStock < quantity {
		return false
	}
	s.ValidStock -= quantity
	s.LockStock += quantity
	return true
}

// Release 解鎖：鎖定轉回可用。回傳值是鎖定計數被夾到零的溢出量，
// 正常配對的 Lock/Unlock 之下應該永遠是 0。
func (s *Stock) Release(quantity int64) int64 {
	s.ValidStock += quantity
	s.LockStock -= quantity
	return s.clampLock()
}

// Commit 扣減：付款成功，可用與鎖定各減去數量，已售增加。
// 可用不足時回傳 (false, 0) 且不做任何修改；成功時回傳鎖定計數被夾掉的溢出量。
func (s *Stock) Commit(quantity int64) (bool, int64) {
	if s.ValidStock < quantity {
		return false, 0
	}
	s.ValidStock -= quantity
	s.LockStock -= quantity
	s.SoldStock += quantity
	return true, s.clampLock()
}

// Return 退貨：已售轉回可用。回傳值是已售計數被夾到零的溢出量。
func (s *Stock) Return(quantity int64) int64 {
	s.ValidStock += quantity
	s.SoldStock -= quantity
	if s.SoldStock < 0 {
		overshoot := -s.SoldStock
		s.SoldStock = 0
		return overshoot
	}
	return 0
}

func (s *Stock) clampLock() int64 {
	if s.LockStock < 0 {
		overshoot := -s.LockStock
		s.LockStock = 0
		return overshoot
	}
	return 0
}
