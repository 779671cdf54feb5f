package category

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
)

var _ Repository = (*repository)(nil)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, category *models.Category) error
	GetByID(ctx context.Context, tx pgx.Tx, id uint64) (*models.Category, error)
	Update(ctx context.Context, tx pgx.Tx, category *models.Category) error
	Delete(ctx context.Context, tx pgx.Tx, id uint64) error
	List(ctx context.Context, tx pgx.Tx, limit, offset uint64) ([]*models.Category, error)
	ListSubcategories(ctx context.Context, tx pgx.Tx, parentID uint64) ([]*models.Category, error)
	AssignSpuToCategory(ctx context.Context, tx pgx.Tx, spuID, categoryID uint64) error
	RemoveSpuFromCategory(ctx context.Context, tx pgx.Tx, spuID, categoryID uint64) error
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

func (r *repository) Create(ctx context.Context, tx pgx.Tx, category *models.Category) error {
	err := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`INSERT INTO categories (name, description, parent_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		category.Name, category.Description, category.ParentID,
		pgtype.Timestamptz{Time: category.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: category.UpdatedAt, Valid: true},
	).Scan(&category.ID)
	if err != nil {
		r.logger.Error("failed to create category", zap.String("name", category.Name), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id uint64) (*models.Category, error) {
	cacheKey := fmt.Sprintf("category:%d", id)
	var category models.Category

	// 嘗試從快取中獲取
	if tx == nil {
		found, err := r.cache.Get(ctx, cacheKey, &category)
		if err != nil {
			r.logger.Warn("failed to get category from cache", zap.Uint64("category_id", id), zap.Error(err))
		}
		if found {
			return &category, nil
		}
	}

	row := driver.WithTx(r.conn, tx).QueryRow(ctx,
		`SELECT id, name, description, parent_id, created_at, updated_at FROM categories WHERE id = $1`, id)
	if err := scanCategory(row, &category); err != nil {
		return nil, err
	}

	if tx == nil {
		if err := r.cache.Set(ctx, cacheKey, category, 30*time.Minute); err != nil {
			r.logger.Warn("failed to cache category", zap.Uint64("category_id", id), zap.Error(err))
		}
	}

	return &category, nil
}

func (r *repository) Update(ctx context.Context, tx pgx.Tx, category *models.Category) error {
	_, err := driver.WithTx(r.conn, tx).Exec(ctx,
		`UPDATE categories SET name = $1, description = $2, parent_id = $3, updated_at = $4 WHERE id = $5`,
		category.Name, category.Description, category.ParentID,
		pgtype.Timestamptz{Time: category.UpdatedAt, Valid: true},
		category.ID,
	)
	if err != nil {
		r.logger.Error("failed to update category", zap.Uint64("category_id", category.ID), zap.Error(err))
		return err
	}

	cacheKey := fmt.Sprintf("category:%d", category.ID)
	if err = r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warn("failed to invalidate category cache", zap.Uint64("category_id", category.ID), zap.Error(err))
	}

	return nil
}

func (r *repository) Delete(ctx context.Context, tx pgx.Tx, id uint64) error {
	_, err := driver.WithTx(r.conn, tx).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("failed to delete category", zap.Uint64("category_id", id), zap.Error(err))
		return err
	}

	cacheKey := fmt.Sprintf("category:%d", id)
	if err = r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warn("failed to delete category from cache", zap.Uint64("category_id", id), zap.Error(err))
	}

	return nil
}

func (r *repository) List(ctx context.Context, tx pgx.Tx, limit, offset uint64) ([]*models.Category, error) {
	query := `SELECT id, name, description, parent_id, created_at, updated_at FROM categories ORDER BY id`
	args := make([]any, 0, 2)
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, int64(limit), int64(offset))
	}

	rows, err := driver.WithTx(r.conn, tx).Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list categories", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return collectCategories(rows)
}

func (r *repository) ListSubcategories(ctx context.Context, tx pgx.Tx, parentID uint64) ([]*models.Category, error) {
	rows, err := driver.WithTx(r.conn, tx).Query(ctx,
		`SELECT id, name, description, parent_id, created_at, updated_at
		 FROM categories WHERE parent_id = $1 ORDER BY id`, parentID)
	if err != nil {
		r.logger.Error("failed to list subcategories", zap.Uint64("parent_id", parentID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return collectCategories(rows)
}

func (r *repository) AssignSpuToCategory(ctx context.Context, tx pgx.Tx, spuID, categoryID uint64) error {
	_, err := driver.WithTx(r.conn, tx).Exec(ctx,
		`INSERT INTO spu_categories (spu_id, category_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		spuID, categoryID)
	if err != nil {
		r.logger.Error("failed to assign spu to category",
			zap.Uint64("spu_id", spuID), zap.Uint64("category_id", categoryID), zap.Error(err))
	}
	return err
}

func (r *repository) RemoveSpuFromCategory(ctx context.Context, tx pgx.Tx, spuID, categoryID uint64) error {
	_, err := driver.WithTx(r.conn, tx).Exec(ctx,
		`DELETE FROM spu_categories WHERE spu_id = $1 AND category_id = $2`,
		spuID, categoryID)
	if err != nil {
		r.logger.Error("failed to remove spu from category",
			zap.Uint64("spu_id", spuID), zap.Uint64("category_id", categoryID), zap.Error(err))
	}
	return err
}

func scanCategory(row pgx.Row, category *models.Category) error {
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&category.ID, &category.Name, &category.Description,
		&category.ParentID, &createdAt, &updatedAt); err != nil {
		return err
	}
	category.CreatedAt = createdAt.Time
	category.UpdatedAt = updatedAt.Time
	return nil
}

func collectCategories(rows pgx.Rows) ([]*models.Category, error) {
	categories := make([]*models.Category, 0)
	for rows.Next() {
		var category models.Category
		if err := scanCategory(rows, &category); err != nil {
			return nil, err
		}
		categories = append(categories, &category)
	}
	return categories, rows.Err()
}
