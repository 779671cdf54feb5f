package event

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"gofalre.io/catalog/driver"
	"gofalre.io/catalog/models"
	"gofalre.io/catalog/models/enum"
)

var _ Repository = (*repository)(nil)

// Repository 是已處理事件的紀錄，用來對訂單事件去重
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	MarkAsProcessed(ctx context.Context, id string) error
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) (Repository, error) {
	return &repository{
		conn:   conn,
		logger: logger,
	}, nil
}

func (r *repository) Create(ctx context.Context, event *models.Event) error {
	_, err := r.conn.Exec(ctx,
		`INSERT INTO events (id, type, processed, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, string(event.Type), event.Processed,
		pgtype.Timestamptz{Time: event.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: event.UpdatedAt, Valid: true},
	)
	if err != nil {
		r.logger.Error("failed to create event record", zap.String("event_id", event.ID), zap.Error(err))
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	var eventType string
	var createdAt, updatedAt pgtype.Timestamptz
	err := r.conn.QueryRow(ctx,
		`SELECT id, type, processed, created_at, updated_at FROM events WHERE id = $1`, id,
	).Scan(&event.ID, &eventType, &event.Processed, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	event.Type = enum.OrderEventType(eventType)
	event.CreatedAt = createdAt.Time
	event.UpdatedAt = updatedAt.Time
	return &event, nil
}

func (r *repository) MarkAsProcessed(ctx context.Context, id string) error {
	_, err := r.conn.Exec(ctx,
		`UPDATE events SET processed = TRUE, updated_at = $1 WHERE id = $2`,
		pgtype.Timestamptz{Time: time.Now(), Valid: true}, id)
	return err
}
