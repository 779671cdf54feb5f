package stock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/catalog/models"
	"gofalre.io/catalog/models/enum"
)

// TxRunner 是引擎需要的交易原語，由 driver.TransactionManager 實作
type TxRunner interface {
	ExecuteTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Service 是庫存總帳引擎：在單一 SKU 的互斥鎖與資料庫交易之下，
// 將一筆或一批 StockLog 套用到對應的 Stock 聚合上
type Service interface {
	// Process applies one stock change. On LOCK/DEDUCT with insufficient valid
	// stock it returns a *StockOverloadError and leaves the aggregate untouched.
	Process(ctx context.Context, log *models.StockLog) error

	// BatchProcess applies the logs strictly in order inside one transaction.
	// Any failure rolls back the whole batch.
	BatchProcess(ctx context.Context, logs []*models.StockLog) error

	// GetValidStock returns the available quantity, honouring the fixed stock
	// override when one is configured.
	GetValidStock(stock *models.Stock) int64

	// FixedStock reports the fixed stock override, if configured. Callers can
	// use it to answer availability without touching storage at all.
	FixedStock() (int64, bool)

	// CreateStock persists a fresh aggregate, typically zeroed, alongside its
	// SKU within the caller's transaction.
	CreateStock(ctx context.Context, tx pgx.Tx, stock *models.Stock) error

	GetStock(ctx context.Context, skuID uint64) (*models.Stock, error)
	ListStockLogs(ctx context.Context, skuID uint64, limit, offset uint64) ([]*models.StockLog, error)
}

type service struct {
	repo   Repository
	tm     TxRunner
	locker EntityLocker

	// fixedStock 是測試環境的庫存固定值，設定後引擎不做任何實際異動
	fixedStock *int64

	logger *zap.Logger
}

func NewService(repo Repository, tm TxRunner, locker EntityLocker, fixedStock *int64, logger *zap.Logger) Service {
	return &service{
		repo:       repo,
		tm:         tm,
		locker:     locker,
		fixedStock: fixedStock,
		logger:     logger,
	}
}

func (s *service) Process(ctx context.Context, log *models.StockLog) error {
	if s.fixedStock != nil {
		return nil
	}

	release, err := s.locker.Acquire(ctx, lockKey(log.SKUID))
	if err != nil {
		return err
	}
	defer release()

	return s.tm.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.apply(ctx, tx, log)
	})
}

func (s *service) BatchProcess(ctx context.Context, logs []*models.StockLog) error {
	if s.fixedStock != nil || len(logs) == 0 {
		return nil
	}

	// 批次內嚴格依序處理：後面的異動可能依賴前面對同一個 SKU 的效果。
	// 注意鎖的順序與 Process 相反：這裡先開交易、再逐筆取鎖，
	// 所以批次不會替還沒輪到的 SKU 持鎖；代價是與 Process 交錯時
	// 可能互相等待，靠 Acquire 的等待上限（ErrLockTimeout）解開
	return s.tm.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		for _, log := range logs {
			release, err := s.locker.Acquire(ctx, lockKey(log.SKUID))
			if err != nil {
				return err
			}
			err = s.apply(ctx, tx, log)
			release()
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// apply 在鎖與交易都成立的前提下執行 讀取-驗證-修改-快照-落盤
func (s *service) apply(ctx context.Context, tx pgx.Tx, log *models.StockLog) error {
	if !log.Type.Valid() {
		return fmt.Errorf("unknown stock change type %q", log.Type)
	}
	if log.Quantity <= 0 {
		return fmt.Errorf("stock change quantity must be positive, got %d", log.Quantity)
	}

	stockModel, err := s.repo.GetStockForUpdate(ctx, tx, log.SKUID)
	if err != nil {
		return fmt.Errorf("failed to get stock for sku %d: %w", log.SKUID, err)
	}

	// 補上冗餘的 SKU 名稱，方便直接讀異動紀錄
	if log.SKUName == "" {
		name, err := s.repo.GetSKUName(ctx, tx, log.SKUID)
		if err != nil {
			s.logger.Warn("failed to backfill sku name",
				zap.Uint64("sku_id", log.SKUID), zap.Error(err))
		} else {
			log.SKUName = name
		}
	}

	switch log.Type {
	case enum.StockChangePut:
		stockModel.Put(log.Quantity)

	case enum.StockChangeLock:
		if !stockModel.Reserve(log.Quantity) {
			return &StockOverloadError{
				SKUID:     log.SKUID,
				Requested: log.Quantity,
				Available: stockModel.ValidStock,
			}
		}

	case enum.StockChangeUnlock:
		if overshoot := stockModel.Release(log.Quantity); overshoot > 0 {
			s.logClamp(log, "lock_stock", overshoot)
		}

	case enum.StockChangeDeduct:
		ok, overshoot := stockModel.Commit(log.Quantity)
		if !ok {
			return &StockOverloadError{
				SKUID:     log.SKUID,
				Requested: log.Quantity,
				Available: stockModel.ValidStock,
			}
		}
		if overshoot > 0 {
			s.logClamp(log, "lock_stock", overshoot)
		}

	case enum.StockChangeReturn:
		if overshoot := stockModel.Return(log.Quantity); overshoot > 0 {
			s.logClamp(log, "sold_stock", overshoot)
		}
	}

	stockModel.UpdatedAt = time.Now()
	log.Snapshot(stockModel)

	if err = s.repo.UpdateStock(ctx, tx, stockModel); err != nil {
		return fmt.Errorf("failed to update stock for sku %d: %w", log.SKUID, err)
	}
	if err = s.repo.CreateStockLog(ctx, tx, log); err != nil {
		return fmt.Errorf("failed to create stock log for sku %d: %w", log.SKUID, err)
	}

	return nil
}

func (s *service) GetValidStock(stock *models.Stock) int64 {
	if s.fixedStock != nil {
		return *s.fixedStock
	}
	if stock == nil {
		return 0
	}
	return stock.ValidStock
}

func (s *service) FixedStock() (int64, bool) {
	if s.fixedStock == nil {
		return 0, false
	}
	return *s.fixedStock, true
}

func (s *service) CreateStock(ctx context.Context, tx pgx.Tx, stock *models.Stock) error {
	return s.repo.CreateStock(ctx, tx, stock)
}

func (s *service) GetStock(ctx context.Context, skuID uint64) (*models.Stock, error) {
	return s.repo.GetStock(ctx, nil, skuID)
}

func (s *service) ListStockLogs(ctx context.Context, skuID uint64, limit, offset uint64) ([]*models.StockLog, error) {
	return s.repo.ListStockLogs(ctx, nil, skuID, limit, offset)
}

// logClamp 記錄被夾到零的溢出量。正常配對的操作不會走到這裡，
// 出現就代表上游的解鎖或退貨超過了當初鎖定或售出的量。
func (s *service) logClamp(log *models.StockLog, counter string, overshoot int64) {
	s.logger.Warn("stock counter clamped to zero",
		zap.Uint64("sku_id", log.SKUID),
		zap.String("type", string(log.Type)),
		zap.String("counter", counter),
		zap.Int64("quantity", log.Quantity),
		zap.Int64("overshoot", overshoot))
}

func lockKey(skuID uint64) string {
	return strconv.FormatUint(skuID, 10)
}
