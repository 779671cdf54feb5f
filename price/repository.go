package price

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
	"goflare.io/ember"

	"gofalre.io/catalog/driver"
	"gofalre.io/catalog/models"
	"gofalre.io/catalog/models/enum"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, price *models.Price) error
	// GetEffective returns the price of the given type effective at the given
	// time, preferring the most recently started window.
	GetEffective(ctx context.Context, tx pgx.Tx, skuID uint64, priceType enum.PriceType, at time.Time) (*models.Price, error)
	ListBySku(ctx context.Context, tx pgx.Tx, skuID uint64) ([]*models.Price, error)
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

func (r *repository) Create(ctx context.Context, tx pgx.Tx, price *models.Price) error {
	var effectiveTo pgtype.Timestamptz
	if price.EffectiveTo != nil {
		effectiveTo = pgtype.Timestamptz{Time: *price.EffectiveTo, Valid: true}
	}

	err := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`INSERT INTO prices (sku_id, type, currency, amount, effective_from, effective_to, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		price.SKUID, string(price.Type), string(price.Currency), price.Amount,
		pgtype.Timestamptz{Time: price.EffectiveFrom, Valid: true},
		effectiveTo,
		pgtype.Timestamptz{Time: price.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: price.UpdatedAt, Valid: true},
	).Scan(&price.ID)
	if err != nil {
		r.logger.Error("failed to create price", zap.Uint64("sku_id", price.SKUID), zap.Error(err))
		return err
	}

	// 新價格生效，讓有效價快取失效
	cacheKey := fmt.Sprintf("price:%d:%s", price.SKUID, price.Type)
	if err = r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warn("failed to invalidate price cache", zap.Uint64("sku_id", price.SKUID), zap.Error(err))
	}

	return nil
}

func (r *repository) GetEffective(ctx context.Context, tx pgx.Tx, skuID uint64, priceType enum.PriceType, at time.Time) (*models.Price, error) {
	cacheKey := fmt.Sprintf("price:%d:%s", skuID, priceType)
	var price models.Price

	if tx == nil {
		found, err := r.cache.Get(ctx, cacheKey, &price)
		if err != nil {
			r.logger.Warn("failed to get price from cache", zap.Uint64("sku_id", skuID), zap.Error(err))
		}
		if found && price.EffectiveAt(at) {
			return &price, nil
		}
	}

	row := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`SELECT id, sku_id, type, currency, amount, effective_from, effective_to, created_at, updated_at
		 FROM prices
		 WHERE sku_id = $1 AND type = $2 AND effective_from <= $3
		   AND (effective_to IS NULL OR effective_to > $3)
		 ORDER BY effective_from DESC LIMIT 1`,
		skuID, string(priceType), pgtype.Timestamptz{Time: at, Valid: true})
	if err := scanPrice(row, &price); err != nil {
		return nil, err
	}

	if tx == nil {
		if err := r.cache.Set(ctx, cacheKey, price, 5*time.Minute); err != nil {
			r.logger.Warn("failed to cache price", zap.Uint64("sku_id", skuID), zap.Error(err))
		}
	}

	return &price, nil
}

func (r *repository) ListBySku(ctx context.Context, tx pgx.Tx, skuID uint64) ([]*models.Price, error) {
	rows, err := driver.WithTx(r.conn, tx).Query(ctx,
		`SELECT id, sku_id, type, currency, amount, effective_from, effective_to, created_at, updated_at
		 FROM prices WHERE sku_id = $1 ORDER BY effective_from DESC`, skuID)
	if err != nil {
		r.logger.Error("failed to list prices", zap.Uint64("sku_id", skuID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	prices := make([]*models.Price, 0)
	for rows.Next() {
		var price models.Price
		if err = scanPrice(rows, &price); err != nil {
			return nil, err
		}
		prices = append(prices, &price)
	}

	return prices, rows.Err()
}

func scanPrice(row pgx.Row, price *models.Price) error {
	var priceType, currency string
	var effectiveFrom, effectiveTo, createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&price.ID, &price.SKUID, &priceType, &currency, &price.Amount,
		&effectiveFrom, &effectiveTo, &createdAt, &updatedAt); err != nil {
		return err
	}
	price.Type = enum.PriceType(priceType)
	price.Currency = stripe.Currency(currency)
	price.EffectiveFrom = effectiveFrom.Time
	if effectiveTo.Valid {
		to := effectiveTo.Time
		price.EffectiveTo = &to
	}
	price.CreatedAt = createdAt.Time
	price.UpdatedAt = updatedAt.Time
	return nil
}
