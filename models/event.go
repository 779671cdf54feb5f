package models

import (
	"time"

	"gofalre.io/catalog/models/enum"
)

// OrderEvent 是訂單工作流透過 NATS 發佈的事件
type OrderEvent struct {
	ID        string              `json:"id"`
	Type      enum.OrderEventType `json:"type"`
	OrderID   string              `json:"order_id"`
	Items     []*OrderEventItem   `json:"items"`
	CreatedAt time.Time           `json:"created_at"`
}

// OrderEventItem 是事件中的單個品項
type OrderEventItem struct {
	SKUID    uint64 `json:"sku_id"`
	Quantity int64  `json:"quantity"`
}

// Event 是已接收事件的處理紀錄，用於事件去重
type Event struct {
	ID        string              `json:"id"`
	Type      enum.OrderEventType `json:"type"`
	Processed bool                `json:"processed"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}
