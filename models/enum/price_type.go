package enum

// PriceType 表示價格的種類
type PriceType string

const (
	PriceTypeSale   PriceType = "sale"   // 售價
	PriceTypeCost   PriceType = "cost"   // 成本價
	PriceTypeMarket PriceType = "market" // 市場參考價
)
