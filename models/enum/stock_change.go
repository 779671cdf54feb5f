package enum

// StockChange 表示一次庫存異動的操作類型
type StockChange string

const (
	StockChangePut    StockChange = "put"    // 進貨入庫
	StockChangeLock   StockChange = "lock"   // 下單鎖定
	StockChangeUnlock StockChange = "unlock" // 取消訂單釋放鎖定
	StockChangeDeduct StockChange = "deduct" // 付款成功扣減
	StockChangeReturn StockChange = "return" // 退貨回補
)

var stockChangeLabels = map[StockChange]string{
	StockChangePut:    "進貨",
	StockChangeLock:   "鎖定",
	StockChangeUnlock: "解鎖",
	StockChangeDeduct: "扣減",
	StockChangeReturn: "退還",
}

// Valid reports whether c is one of the five known stock change types.
func (c StockChange) Valid() bool {
	_, ok := stockChangeLabels[c]
	return ok
}

// Label returns the display label for the stock change type.
func (c StockChange) Label() string {
	if label, ok := stockChangeLabels[c]; ok {
		return label
	}
	return string(c)
}
