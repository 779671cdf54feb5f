package enum

// OrderEventType 表示訂單工作流發出的事件類型
type OrderEventType string

const (
	OrderEventTypePlaced    OrderEventType = "order.placed"    // 下單，鎖定庫存
	OrderEventTypeCancelled OrderEventType = "order.cancelled" // 取消訂單，釋放鎖定
	OrderEventTypePaid      OrderEventType = "order.paid"      // 付款成功，扣減庫存
	OrderEventTypeRefunded  OrderEventType = "order.refunded"  // 退款，回補庫存
)
