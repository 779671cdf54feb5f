package enum

// SpuState 表示商品（SPU）的上下架狀態
type SpuState string

const (
	SpuStateDraft   SpuState = "draft"    // 草稿，尚未上架
	SpuStateOnSale  SpuState = "on_sale"  // 上架販售中
	SpuStateOffSale SpuState = "off_sale" // 已下架
)

// AllowChangeState reports whether the transition to the target state is valid.
func (s SpuState) AllowChangeState(target SpuState) bool {
	switch s {
	case SpuStateDraft:
		return target == SpuStateOnSale
	case SpuStateOnSale:
		return target == SpuStateOffSale
	case SpuStateOffSale:
		return target == SpuStateOnSale
	}
	return false
}
