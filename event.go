package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gofalre.io/catalog/models"
	"gofalre.io/catalog/models/enum"
)

const (
	orderEventSubject   = "order.service.event.>"
	stockChangedSubject = "catalog.stock.changed"
)

type EventHandler func(context.Context, *models.OrderEvent) error

type EventManager struct {
	natsConn *nats.Conn
	handlers map[enum.OrderEventType]EventHandler
	logger   *zap.Logger
}

func NewEventManager(natsConn *nats.Conn, logger *zap.Logger) *EventManager {
	return &EventManager{
		natsConn: natsConn,
		handlers: make(map[enum.OrderEventType]EventHandler),
		logger:   logger,
	}
}

func (em *EventManager) RegisterHandler(eventType enum.OrderEventType, handler EventHandler) {
	em.handlers[eventType] = handler
}

func (em *EventManager) GetHandler(eventType enum.OrderEventType) (EventHandler, bool) {
	handler, exists := em.handlers[eventType]
	return handler, exists
}

func (em *EventManager) SubscribeToEvents(wp *WorkerPool) error {
	// 訊息匯流排是可選的，宿主沒接 NATS 時仍可使用同步 API
	if em.natsConn == nil {
		return nil
	}

	_, err := em.natsConn.Subscribe(orderEventSubject, func(msg *nats.Msg) {
		var orderEvent models.OrderEvent
		if err := json.Unmarshal(msg.Data, &orderEvent); err != nil {
			em.logger.Error("Failed to unmarshal order event", zap.Error(err))
			return
		}

		wp.Submit(context.Background(), &orderEvent)
	})

	return err
}

// StockChangedMessage 是庫存異動後對外發佈的訊息，帶有異動後的快照
type StockChangedMessage struct {
	ID         string           `json:"id"`
	SKUID      uint64           `json:"sku_id"`
	Type       enum.StockChange `json:"type"`
	Quantity   int64            `json:"quantity"`
	ValidStock int64            `json:"valid_stock"`
	LockStock  int64            `json:"lock_stock"`
	SoldStock  int64            `json:"sold_stock"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// PublishStockChanged 發佈庫存異動訊息；發佈失敗只記錄，不影響已提交的異動
func (em *EventManager) PublishStockChanged(log *models.StockLog) {
	if em.natsConn == nil {
		return
	}

	message := StockChangedMessage{
		ID:         uuid.NewString(),
		SKUID:      log.SKUID,
		Type:       log.Type,
		Quantity:   log.Quantity,
		ValidStock: log.ValidStock,
		LockStock:  log.LockStock,
		SoldStock:  log.SoldStock,
		OccurredAt: time.Now(),
	}

	data, err := json.Marshal(message)
	if err != nil {
		em.logger.Error("Failed to marshal stock changed message", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%d", stockChangedSubject, log.SKUID)
	if err = em.natsConn.Publish(subject, data); err != nil {
		em.logger.Error("Failed to publish stock changed message",
			zap.Uint64("sku_id", log.SKUID), zap.Error(err))
	}
}

func (s *service) registerEventHandlers() {
	eventHandlers := map[enum.OrderEventType]EventHandler{
		enum.OrderEventTypePlaced:    s.handleOrderPlaced,
		enum.OrderEventTypeCancelled: s.handleOrderCancelled,
		enum.OrderEventTypePaid:      s.handleOrderPaid,
		enum.OrderEventTypeRefunded:  s.handleOrderRefunded,
	}

	for eventType, handler := range eventHandlers {
		s.eventManager.RegisterHandler(eventType, handler)
	}
}

// handleOrderPlaced 下單：逐項鎖定庫存，任何一項不足就整批回滾
func (s *service) handleOrderPlaced(ctx context.Context, orderEvent *models.OrderEvent) error {
	return s.applyOrderEvent(ctx, orderEvent, enum.StockChangeLock)
}

// handleOrderCancelled 取消訂單：釋放先前鎖定的庫存
func (s *service) handleOrderCancelled(ctx context.Context, orderEvent *models.OrderEvent) error {
	return s.applyOrderEvent(ctx, orderEvent, enum.StockChangeUnlock)
}

// handleOrderPaid 付款成功：扣減庫存
func (s *service) handleOrderPaid(ctx context.Context, orderEvent *models.OrderEvent) error {
	return s.applyOrderEvent(ctx, orderEvent, enum.StockChangeDeduct)
}

// handleOrderRefunded 退款：回補庫存
func (s *service) handleOrderRefunded(ctx context.Context, orderEvent *models.OrderEvent) error {
	return s.applyOrderEvent(ctx, orderEvent, enum.StockChangeReturn)
}

func (s *service) applyOrderEvent(ctx context.Context, orderEvent *models.OrderEvent, changeType enum.StockChange) error {
	logs := make([]*models.StockLog, 0, len(orderEvent.Items))
	for _, item := range orderEvent.Items {
		logs = append(logs, models.NewStockLog(item.SKUID, changeType, item.Quantity))
	}

	if err := s.stock.BatchProcess(ctx, logs); err != nil {
		return fmt.Errorf("failed to apply stock changes for order %s: %w", orderEvent.OrderID, err)
	}

	for _, log := range logs {
		s.eventManager.PublishStockChanged(log)
	}

	return nil
}

func (s *service) ProcessEvent(ctx context.Context, orderEvent *models.OrderEvent) error {

	// 只有標記為已處理的事件才略過；先前處理失敗的事件會留下
	// 未標記的紀錄，重送時必須重試
	record, getErr := s.event.GetByID(ctx, orderEvent.ID)
	if getErr == nil && record.Processed {
		s.logger.Info("Event already processed", zap.String("event_id", orderEvent.ID))
		return nil
	}

	handler, exists := s.eventManager.GetHandler(orderEvent.Type)
	if !exists {
		return fmt.Errorf("no handler registered for event type: %s", orderEvent.Type)
	}

	if getErr != nil {
		if err := s.event.Create(ctx, &models.Event{
			ID:        orderEvent.ID,
			Type:      orderEvent.Type,
			Processed: false,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}); err != nil {
			s.logger.Error("Failed to create event record", zap.Error(err))
			return err
		}
	}

	if err := handler(ctx, orderEvent); err != nil {
		s.logger.Error("處理訂單事件時出錯",
			zap.String("event_id", orderEvent.ID),
			zap.String("event_type", string(orderEvent.Type)),
			zap.Error(err),
		)
		return err
	}

	if err := s.event.MarkAsProcessed(ctx, orderEvent.ID); err != nil {
		s.logger.Warn("Failed to mark event as processed", zap.String("event_id", orderEvent.ID), zap.Error(err))
	}

	s.logger.Info("Order event processed", zap.String("event_id", orderEvent.ID))

	return nil
}
