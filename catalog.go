package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gofalre.io/catalog/category"
	"gofalre.io/catalog/driver"
	"gofalre.io/catalog/event"
	"gofalre.io/catalog/models"
	"gofalre.io/catalog/models/enum"
	"gofalre.io/catalog/price"
	"gofalre.io/catalog/product"
	"gofalre.io/catalog/stock"
)

type Service interface {
	CreateSpu(ctx context.Context, spu *models.Spu) error
	GetSpu(ctx context.Context, id uint64) (*models.Spu, error)
	ChangeSpuState(ctx context.Context, id uint64, state enum.SpuState) error
	ListSpus(ctx context.Context, limit, offset uint64) ([]*models.Spu, error)
	CreateSku(ctx context.Context, sku *models.Sku) error
	GetSku(ctx context.Context, id uint64) (*models.Sku, error)
	DisableSku(ctx context.Context, id uint64) error

	CreateCategory(ctx context.Context, category *models.Category) error
	GetCategoryByID(ctx context.Context, id uint64) (*models.Category, error)
	UpdateCategory(ctx context.Context, category *models.Category) error
	DeleteCategory(ctx context.Context, id uint64) error
	ListCategory(ctx context.Context, limit, offset uint64) ([]*models.Category, error)
	ListSubcategories(ctx context.Context, parentID uint64) ([]*models.Category, error)
	GetCategoryTree(ctx context.Context) ([]*models.CategoryTree, error)
	AssignSpuToCategory(ctx context.Context, spuID, categoryID uint64) error
	RemoveSpuFromCategory(ctx context.Context, spuID, categoryID uint64) error

	SetPrice(ctx context.Context, price *models.Price) error
	GetEffectivePrice(ctx context.Context, skuID uint64, priceType enum.PriceType) (*models.Price, error)
	ListPrices(ctx context.Context, skuID uint64) ([]*models.Price, error)

	ReceiveStock(ctx context.Context, skuID uint64, quantity int64) error
	ReserveStock(ctx context.Context, skuID uint64, quantity int64) error
	ReleaseStock(ctx context.Context, skuID uint64, quantity int64) error
	CommitStock(ctx context.Context, skuID uint64, quantity int64) error
	ReturnStock(ctx context.Context, skuID uint64, quantity int64) error
	GetValidStock(ctx context.Context, skuID uint64) (int64, error)
	ListStockLogs(ctx context.Context, skuID uint64, limit, offset uint64) ([]*models.StockLog, error)

	ProcessEvent(ctx context.Context, orderEvent *models.OrderEvent) error
}

type service struct {
	product  product.Repository
	category category.Repository
	price    price.Repository
	event    event.Repository
	stock    stock.Service

	transactionManager *driver.TransactionManager
	eventManager       *EventManager
	workerPool         *WorkerPool

	natsConn *nats.Conn
	logger   *zap.Logger
}

func NewService(
	product product.Repository, category category.Repository, price price.Repository,
	event event.Repository, stockService stock.Service, tm *driver.TransactionManager,
	natsConn *nats.Conn,
	logger *zap.Logger) Service {
	s := &service{
		product:            product,
		category:           category,
		price:              price,
		event:              event,
		stock:              stockService,
		transactionManager: tm,
		natsConn:           natsConn,
		logger:             logger,
	}
	s.eventManager = NewEventManager(natsConn, logger)
	s.workerPool = NewWorkerPool(10, s, logger)
	s.registerEventHandlers()

	// 訂閱訂單事件
	if err := s.eventManager.SubscribeToEvents(s.workerPool); err != nil {
		logger.Error("Failed to subscribe to order events", zap.Error(err))
	}

	return s
}

func (s *service) CreateSpu(ctx context.Context, spu *models.Spu) error {
	if spu.State == "" {
		spu.State = enum.SpuStateDraft
	}
	spu.CreatedAt = time.Now()
	spu.UpdatedAt = time.Now()

	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.product.CreateSpu(ctx, tx, spu)
	})
}

// GetSpu 取得 SPU 以及其下所有 SKU
func (s *service) GetSpu(ctx context.Context, id uint64) (*models.Spu, error) {
	spu, err := s.product.GetSpu(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get spu: %w", err)
	}

	skus, err := s.product.ListSkusBySpu(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list skus: %w", err)
	}

	spu.Skus = skus
	return spu, nil
}

func (s *service) ChangeSpuState(ctx context.Context, id uint64, state enum.SpuState) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		spu, err := s.product.GetSpu(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to get spu: %w", err)
		}

		if !spu.State.AllowChangeState(state) {
			return fmt.Errorf("invalid state transition from %s to %s", spu.State, state)
		}

		spu.State = state
		spu.UpdatedAt = time.Now()
		return s.product.UpdateSpu(ctx, tx, spu)
	})
}

func (s *service) ListSpus(ctx context.Context, limit, offset uint64) ([]*models.Spu, error) {
	return s.product.ListSpus(ctx, nil, limit, offset)
}

// CreateSku 建立 SKU，同時建立歸零的庫存列；庫存與 SKU 同生命週期
func (s *service) CreateSku(ctx context.Context, sku *models.Sku) error {
	if sku.State == "" {
		sku.State = enum.SkuStateEnabled
	}
	sku.CreatedAt = time.Now()
	sku.UpdatedAt = time.Now()

	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := s.product.GetSpu(ctx, tx, sku.SpuID); err != nil {
			return fmt.Errorf("failed to get spu %d: %w", sku.SpuID, err)
		}

		if err := s.product.CreateSku(ctx, tx, sku); err != nil {
			return fmt.Errorf("failed to create sku: %w", err)
		}

		return s.stock.CreateStock(ctx, tx, models.NewStock(sku.ID))
	})
}

func (s *service) GetSku(ctx context.Context, id uint64) (*models.Sku, error) {
	return s.product.GetSku(ctx, nil, id)
}

func (s *service) DisableSku(ctx context.Context, id uint64) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.product.UpdateSkuState(ctx, tx, id, enum.SkuStateDisabled)
	})
}

func (s *service) CreateCategory(ctx context.Context, category *models.Category) error {
	category.CreatedAt = time.Now()
	category.UpdatedAt = time.Now()
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.category.Create(ctx, tx, category)
	})
}

func (s *service) GetCategoryByID(ctx context.Context, id uint64) (*models.Category, error) {
	return s.category.GetByID(ctx, nil, id)
}

func (s *service) UpdateCategory(ctx context.Context, category *models.Category) error {
	category.UpdatedAt = time.Now()
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.category.Update(ctx, tx, category)
	})
}

func (s *service) DeleteCategory(ctx context.Context, id uint64) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.category.Delete(ctx, tx, id)
	})
}

func (s *service) ListCategory(ctx context.Context, limit, offset uint64) ([]*models.Category, error) {
	return s.category.List(ctx, nil, limit, offset)
}

func (s *service) ListSubcategories(ctx context.Context, parentID uint64) ([]*models.Category, error) {
	return s.category.ListSubcategories(ctx, nil, parentID)
}

func (s *service) GetCategoryTree(ctx context.Context) ([]*models.CategoryTree, error) {
	categories, err := s.category.List(ctx, nil, 0, 0) // Get all categories
	if err != nil {
		return nil, err
	}
	return buildCategoryTree(categories), nil
}

func (s *service) AssignSpuToCategory(ctx context.Context, spuID, categoryID uint64) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.category.AssignSpuToCategory(ctx, tx, spuID, categoryID)
	})
}

func (s *service) RemoveSpuFromCategory(ctx context.Context, spuID, categoryID uint64) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.category.RemoveSpuFromCategory(ctx, tx, spuID, categoryID)
	})
}

func (s *service) SetPrice(ctx context.Context, priceModel *models.Price) error {
	if priceModel.Amount < 0 {
		return fmt.Errorf("price amount cannot be negative")
	}
	if priceModel.EffectiveFrom.IsZero() {
		priceModel.EffectiveFrom = time.Now()
	}
	priceModel.CreatedAt = time.Now()
	priceModel.UpdatedAt = time.Now()

	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.price.Create(ctx, tx, priceModel)
	})
}

func (s *service) GetEffectivePrice(ctx context.Context, skuID uint64, priceType enum.PriceType) (*models.Price, error) {
	return s.price.GetEffective(ctx, nil, skuID, priceType, time.Now())
}

func (s *service) ListPrices(ctx context.Context, skuID uint64) ([]*models.Price, error) {
	return s.price.ListBySku(ctx, nil, skuID)
}

// ReceiveStock 進貨入庫
func (s *service) ReceiveStock(ctx context.Context, skuID uint64, quantity int64) error {
	return s.processStockChange(ctx, skuID, enum.StockChangePut, quantity)
}

// ReserveStock 下單鎖定庫存，可用不足時回傳 *stock.StockOverloadError
func (s *service) ReserveStock(ctx context.Context, skuID uint64, quantity int64) error {
	return s.processStockChange(ctx, skuID, enum.StockChangeLock, quantity)
}

// ReleaseStock 取消訂單，釋放先前鎖定的庫存
func (s *service) ReleaseStock(ctx context.Context, skuID uint64, quantity int64) error {
	return s.processStockChange(ctx, skuID, enum.StockChangeUnlock, quantity)
}

// CommitStock 付款成功，扣減庫存
func (s *service) CommitStock(ctx context.Context, skuID uint64, quantity int64) error {
	return s.processStockChange(ctx, skuID, enum.StockChangeDeduct, quantity)
}

// ReturnStock 退貨，回補庫存
func (s *service) ReturnStock(ctx context.Context, skuID uint64, quantity int64) error {
	return s.processStockChange(ctx, skuID, enum.StockChangeReturn, quantity)
}

func (s *service) processStockChange(ctx context.Context, skuID uint64, changeType enum.StockChange, quantity int64) error {
	log := models.NewStockLog(skuID, changeType, quantity)
	if err := s.stock.Process(ctx, log); err != nil {
		return err
	}

	s.eventManager.PublishStockChanged(log)
	return nil
}

func (s *service) GetValidStock(ctx context.Context, skuID uint64) (int64, error) {
	// 固定庫存模式下不查庫存列，連庫存列不存在也照樣回傳固定值
	if fixed, ok := s.stock.FixedStock(); ok {
		return fixed, nil
	}

	stockModel, err := s.stock.GetStock(ctx, skuID)
	if err != nil {
		return 0, fmt.Errorf("failed to get stock for sku %d: %w", skuID, err)
	}
	return s.stock.GetValidStock(stockModel), nil
}

func (s *service) ListStockLogs(ctx context.Context, skuID uint64, limit, offset uint64) ([]*models.StockLog, error) {
	return s.stock.ListStockLogs(ctx, skuID, limit, offset)
}

func buildCategoryTree(categories []*models.Category) []*models.CategoryTree {
	categoryMap := make(map[uint64]*models.CategoryTree)
	var roots []*models.CategoryTree

	for _, cat := range categories {
		node := &models.CategoryTree{Category: cat}
		categoryMap[cat.ID] = node
		if cat.ParentID == nil {
			roots = append(roots, node)
		}
	}

	for _, cat := range categories {
		if cat.ParentID != nil {
			parent, exists := categoryMap[*cat.ParentID]
			if exists {
				parent.Children = append(parent.Children, categoryMap[cat.ID])
			}
		}
	}

	return roots
}
