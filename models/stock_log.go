package models

import (
	"time"

	"gofalre.io/catalog/models/enum"
)

// StockLog 代表一筆庫存異動紀錄，只追加不修改
// ValidStock/LockStock/SoldStock 是引擎套用異動後的快照，由引擎寫入，呼叫端不可設置
type StockLog struct {
	ID         uint64           `json:"id"`
	SKUID      uint64           `json:"sku_id"`
	SKUName    string           `json:"sku_name"`
	Type       enum.StockChange `json:"type"`
	Quantity   int64            `json:"quantity"`
	ValidStock int64            `json:"valid_stock"`
	LockStock  int64            `json:"lock_stock"`
	SoldStock  int64            `json:"sold_stock"`
	CreatedAt  time.Time        `json:"created_at"`
}

// NewStockLog builds a stock change request for the given SKU.
func NewStockLog(skuID uint64, changeType enum.StockChange, quantity int64) *StockLog {
	return &StockLog{
		SKUID:     skuID,
		Type:      changeType,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}
}

// Snapshot 將套用異動後的庫存計數寫回異動紀錄
func (l *StockLog) Snapshot(stock *Stock) {
	l.ValidStock = stock.ValidStock
	l.LockStock = stock.LockStock
	l.SoldStock = stock.SoldStock
}
