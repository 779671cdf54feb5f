package product

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
	CreateSpu(ctx context.Context, tx pgx.Tx, spu *models.Spu) error
	GetSpu(ctx context.Context, tx pgx.Tx, id uint64) (*models.Spu, error)
	UpdateSpu(ctx context.Context, tx pgx.Tx, spu *models.Spu) error
	ListSpus(ctx context.Context, tx pgx.Tx, limit, offset uint64) ([]*models.Spu, error)

	CreateSku(ctx context.Context, tx pgx.Tx, sku *models.Sku) error
	GetSku(ctx context.Context, tx pgx.Tx, id uint64) (*models.Sku, error)
	ListSkusBySpu(ctx context.Context, tx pgx.Tx, spuID uint64) ([]*models.Sku, error)
	UpdateSkuState(ctx context.Context, tx pgx.Tx, id uint64, state enum.SkuState) error
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

func (r *repository) CreateSpu(ctx context.Context, tx pgx.Tx, spu *models.Spu) error {
	err := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`INSERT INTO spus (title, state, remark, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		spu.Title, string(spu.State), spu.Remark,
		pgtype.Timestamptz{Time: spu.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: spu.UpdatedAt, Valid: true},
	).Scan(&spu.ID)
	if err != nil {
		r.logger.Error("failed to create spu", zap.String("title", spu.Title), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) GetSpu(ctx context.Context, tx pgx.Tx, id uint64) (*models.Spu, error) {
	cacheKey := fmt.Sprintf("spu:%d", id)
	var spu models.Spu

	// 嘗試從快取中獲取
	if tx == nil {
		found, err := r.cache.Get(ctx, cacheKey, &spu)
		if err != nil {
			r.logger.Warn("failed to get spu from cache", zap.Uint64("spu_id", id), zap.Error(err))
		}
		if found {
			return &spu, nil
		}
	}

	var state string
	var createdAt, updatedAt pgtype.Timestamptz
	err := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`SELECT id, title, state, remark, created_at, updated_at FROM spus WHERE id = $1`, id,
	).Scan(&spu.ID, &spu.Title, &state, &spu.Remark, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	spu.State = enum.SpuState(state)
	spu.CreatedAt = createdAt.Time
	spu.UpdatedAt = updatedAt.Time

	if tx == nil {
		if err = r.cache.Set(ctx, cacheKey, spu, 30*time.Minute); err != nil {
			r.logger.Warn("failed to cache spu", zap.Uint64("spu_id", id), zap.Error(err))
		}
	}

	return &spu, nil
}

func (r *repository) UpdateSpu(ctx context.Context, tx pgx.Tx, spu *models.Spu) error {
	_, err := driver.WithTx(r.conn, tx).Exec(ctx,
		`UPDATE spus SET title = $1, state = $2, remark = $3, updated_at = $4 WHERE id = $5`,
		spu.Title, string(spu.State), spu.Remark,
		pgtype.Timestamptz{Time: spu.UpdatedAt, Valid: true},
		spu.ID,
	)
	if err != nil {
		r.logger.Error("failed to update spu", zap.Uint64("spu_id", spu.ID), zap.Error(err))
		return err
	}

	cacheKey := fmt.Sprintf("spu:%d", spu.ID)
	if err = r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warn("failed to invalidate spu cache", zap.Uint64("spu_id", spu.ID), zap.Error(err))
	}

	return nil
}

func (r *repository) ListSpus(ctx context.Context, tx pgx.Tx, limit, offset uint64) ([]*models.Spu, error) {
	rows, err := driver.WithTx(r.conn, tx).Query(ctx,
		`SELECT id, title, state, remark, created_at, updated_at
		 FROM spus ORDER BY id LIMIT $1 OFFSET $2`, int64(limit), int64(offset))
	if err != nil {
		r.logger.Error("failed to list spus", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	spus := make([]*models.Spu, 0)
	for rows.Next() {
		var spu models.Spu
		var state string
		var createdAt, updatedAt pgtype.Timestamptz
		if err = rows.Scan(&spu.ID, &spu.Title, &state, &spu.Remark, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		spu.State = enum.SpuState(state)
		spu.CreatedAt = createdAt.Time
		spu.UpdatedAt = updatedAt.Time
		spus = append(spus, &spu)
	}

	return spus, rows.Err()
}

func (r *repository) CreateSku(ctx context.Context, tx pgx.Tx, sku *models.Sku) error {
	err := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`INSERT INTO skus (spu_id, name, unit, state, attributes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sku.SpuID, sku.Name, sku.Unit, string(sku.State), sku.Attributes,
		pgtype.Timestamptz{Time: sku.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: sku.UpdatedAt, Valid: true},
	).Scan(&sku.ID)
	if err != nil {
		r.logger.Error("failed to create sku", zap.Uint64("spu_id", sku.SpuID), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) GetSku(ctx context.Context, tx pgx.Tx, id uint64) (*models.Sku, error) {
	cacheKey := fmt.Sprintf("sku:%d", id)
	var sku models.Sku

	if tx == nil {
		found, err := r.cache.Get(ctx, cacheKey, &sku)
		if err != nil {
			r.logger.Warn("failed to get sku from cache", zap.Uint64("sku_id", id), zap.Error(err))
		}
		if found {
			return &sku, nil
		}
	}

	row := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`SELECT id, spu_id, name, unit, state, attributes, created_at, updated_at FROM skus WHERE id = $1`, id)
	if err := scanSku(row, &sku); err != nil {
		return nil, err
	}

	if tx == nil {
		if err := r.cache.Set(ctx, cacheKey, sku, 30*time.Minute); err != nil {
			r.logger.Warn("failed to cache sku", zap.Uint64("sku_id", id), zap.Error(err))
		}
	}

	return &sku, nil
}

func (r *repository) ListSkusBySpu(ctx context.Context, tx pgx.Tx, spuID uint64) ([]*models.Sku, error) {
	rows, err := driver.WithTx(r.conn, tx).Query(ctx,
		`SELECT id, spu_id, name, unit, state, attributes, created_at, updated_at
		 FROM skus WHERE spu_id = $1 ORDER BY id`, spuID)
	if err != nil {
		r.logger.Error("failed to list skus", zap.Uint64("spu_id", spuID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	skus := make([]*models.Sku, 0)
	for rows.Next() {
		var sku models.Sku
		if err = scanSku(rows, &sku); err != nil {
			return nil, err
		}
		skus = append(skus, &sku)
	}

	return skus, rows.Err()
}

func (r *repository) UpdateSkuState(ctx context.Context, tx pgx.Tx, id uint64, state enum.SkuState) error {
	_, err := driver.WithTx(r.conn, tx).Exec(ctx,
		`UPDATE skus SET state = $1, updated_at = $2 WHERE id = $3`,
		string(state), pgtype.Timestamptz{Time: time.Now(), Valid: true}, id)
	if err != nil {
		r.logger.Error("failed to update sku state", zap.Uint64("sku_id", id), zap.Error(err))
		return err
	}

	cacheKey := fmt.Sprintf("sku:%d", id)
	if err = r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warn("failed to invalidate sku cache", zap.Uint64("sku_id", id), zap.Error(err))
	}

	return nil
}

func scanSku(row pgx.Row, sku *models.Sku) error {
	var state string
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&sku.ID, &sku.SpuID, &sku.Name, &sku.Unit, &state,
		&sku.Attributes, &createdAt, &updatedAt); err != nil {
		return err
	}
	sku.State = enum.SkuState(state)
	sku.CreatedAt = createdAt.Time
	sku.UpdatedAt = updatedAt.Time
	return nil
}
