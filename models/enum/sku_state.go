package enum

// SkuState 表示單個 SKU 是否可售
type SkuState string

const (
	SkuStateEnabled  SkuState = "enabled"
	SkuStateDisabled SkuState = "disabled"
)
