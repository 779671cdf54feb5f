package stock

import (
	"errors"
	"fmt"
)

// ErrLockTimeout 表示在允許的等待時間內沒有取得該 SKU 的庫存鎖
// 呼叫端可以重試；它與庫存不足是兩種不同的失敗
var ErrLockTimeout = errors.New("stock lock acquisition timed out")

// StockOverloadError 表示鎖定或扣減的數量超過目前的可用庫存
// 發生時庫存計數完全不會被修改
type StockOverloadError struct {
	SKUID     uint64
	Requested int64
	Available int64
}

func (e *StockOverloadError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %d: requested %d, available %d",
		e.SKUID, e.Requested, e.Available)
}

// IsOverload reports whether err is a stock overload failure.
func IsOverload(err error) bool {
	var overload *StockOverloadError
	return errors.As(err, &overload)
}
