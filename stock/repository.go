package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
	"goflare.io/ember"

	"gofalre.io/catalog/driver"
	"gofalre.io/catalog/models"
	"gofalre.io/catalog/models/enum"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	CreateStock(ctx context.Context, tx pgx.Tx, stock *models.Stock) error
	GetStock(ctx context.Context, tx pgx.Tx, skuID uint64) (*models.Stock, error)
	GetStockForUpdate(ctx context.Context, tx pgx.Tx, skuID uint64) (*models.Stock, error)
	UpdateStock(ctx context.Context, tx pgx.Tx, stock *models.Stock) error
	GetSKUName(ctx context.Context, tx pgx.Tx, skuID uint64) (string, error)
	CreateStockLog(ctx context.Context, tx pgx.Tx, log *models.StockLog) error
	ListStockLogs(ctx context.Context, tx pgx.Tx, skuID uint64, limit, offset uint64) ([]*models.StockLog, error)
}

type repository struct {
	conn   driver.PostgresPool
	cache  *ember.Ember
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, cache *ember.Ember, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		cache:  cache,
		logger: logger,
	}
}

const stockColumns = `id, sku_id, valid_stock, lock_stock, sold_stock, created_at, updated_at`

func (r *repository) CreateStock(ctx context.Context, tx pgx.Tx, stock *models.Stock) error {
	err := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`INSERT INTO stocks (sku_id, valid_stock, lock_stock, sold_stock, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		stock.SKUID, stock.ValidStock, stock.LockStock, stock.SoldStock,
		pgtype.Timestamptz{Time: stock.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: stock.UpdatedAt, Valid: true},
	).Scan(&stock.ID)
	if err != nil {
		r.logger.Error("failed to create stock", zap.Uint64("sku_id", stock.SKUID), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) GetStock(ctx context.Context, tx pgx.Tx, skuID uint64) (*models.Stock, error) {
	cacheKey := fmt.Sprintf("stock:sku:%d", skuID)
	var stock models.Stock

	// 嘗試從快取中獲取，交易內的讀取不走快取
	if tx == nil {
		found, err := r.cache.Get(ctx, cacheKey, &stock)
		if err != nil {
			r.logger.Warn("failed to get stock from cache", zap.Uint64("sku_id", skuID), zap.Error(err))
		}
		if found {
			return &stock, nil
		}
	}

	row := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stocks WHERE sku_id = $1`, skuID)
	if err := scanStock(row, &stock); err != nil {
		return nil, err
	}

	if tx == nil {
		if err := r.cache.Set(ctx, cacheKey, stock, 5*time.Minute); err != nil {
			r.logger.Warn("failed to cache stock", zap.Uint64("sku_id", skuID), zap.Error(err))
		}
	}

	return &stock, nil
}

// GetStockForUpdate 以 FOR UPDATE 讀取庫存列，必須在交易內呼叫
func (r *repository) GetStockForUpdate(ctx context.Context, tx pgx.Tx, skuID uint64) (*models.Stock, error) {
	if tx == nil {
		return nil, fmt.Errorf("stock row lock requires a transaction")
	}

	var stock models.Stock
	row := tx.QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stocks WHERE sku_id = $1 FOR UPDATE`, skuID)
	if err := scanStock(row, &stock); err != nil {
		return nil, err
	}
	return &stock, nil
}

func (r *repository) UpdateStock(ctx context.Context, tx pgx.Tx, stock *models.Stock) error {
	_, err := driver.WithTx(r.conn, tx).Exec(ctx,
		`UPDATE stocks SET valid_stock = $1, lock_stock = $2, sold_stock = $3, updated_at = $4
		 WHERE id = $5`,
		stock.ValidStock, stock.LockStock, stock.SoldStock,
		pgtype.Timestamptz{Time: stock.UpdatedAt, Valid: true},
		stock.ID,
	)
	if err != nil {
		r.logger.Error("failed to update stock", zap.Uint64("sku_id", stock.SKUID), zap.Error(err))
		return err
	}

	// 讓快取失效，下次讀取時重建
	cacheKey := fmt.Sprintf("stock:sku:%d", stock.SKUID)
	if err := r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warn("failed to invalidate stock cache", zap.Uint64("sku_id", stock.SKUID), zap.Error(err))
	}

	return nil
}

func (r *repository) GetSKUName(ctx context.Context, tx pgx.Tx, skuID uint64) (string, error) {
	var name string
	err := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`SELECT name FROM skus WHERE id = $1`, skuID).Scan(&name)
	if err != nil {
		return "", err
	}
	return name, nil
}

func (r *repository) CreateStockLog(ctx context.Context, tx pgx.Tx, log *models.StockLog) error {
	err := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`INSERT INTO stock_logs (sku_id, sku_name, type, quantity, valid_stock, lock_stock, sold_stock, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		log.SKUID, log.SKUName, string(log.Type), log.Quantity,
		log.ValidStock, log.LockStock, log.SoldStock,
		pgtype.Timestamptz{Time: log.CreatedAt, Valid: true},
	).Scan(&log.ID)
	if err != nil {
		r.logger.Error("failed to create stock log", zap.Uint64("sku_id", log.SKUID), zap.Error(err))
		return err
	}
	return nil
}

// ListStockLogs 依寫入順序列出異動紀錄，依序重放可以重建目前的庫存狀態
func (r *repository) ListStockLogs(ctx context.Context, tx pgx.Tx, skuID uint64, limit, offset uint64) ([]*models.StockLog, error) {
	rows, err := driver.WithTx(r.conn, tx).Query(ctx,
		`SELECT id, sku_id, sku_name, type, quantity, valid_stock, lock_stock, sold_stock, created_at
		 FROM stock_logs WHERE sku_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		skuID, int64(limit), int64(offset))
	if err != nil {
		r.logger.Error("failed to list stock logs", zap.Uint64("sku_id", skuID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	logs := make([]*models.StockLog, 0)
	for rows.Next() {
		var log models.StockLog
		var changeType string
		var createdAt pgtype.Timestamptz
		if err = rows.Scan(&log.ID, &log.SKUID, &log.SKUName, &changeType, &log.Quantity,
			&log.ValidStock, &log.LockStock, &log.SoldStock, &createdAt); err != nil {
			return nil, err
		}
		log.Type = enum.StockChange(changeType)
		log.CreatedAt = createdAt.Time
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

func scanStock(row pgx.Row, stock *models.Stock) error {
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&stock.ID, &stock.SKUID, &stock.ValidStock, &stock.LockStock,
		&stock.SoldStock, &createdAt, &updatedAt); err != nil {
		return err
	}
	stock.CreatedAt = createdAt.Time
	stock.UpdatedAt = updatedAt.Time
	return nil
}
