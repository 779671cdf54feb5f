package stock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/catalog/models"
	"gofalre.io/catalog/models/enum"
)

// fakeRepository 以記憶體狀態模擬庫存表與異動紀錄表
type fakeRepository struct {
	mu       sync.Mutex
	stocks   map[uint64]*models.Stock
	logs     []*models.StockLog
	skuNames map[uint64]string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		stocks:   make(map[uint64]*models.Stock),
		skuNames: make(map[uint64]string),
	}
}

func (f *fakeRepository) CreateStock(_ context.Context, _ pgx.Tx, stock *models.Stock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stock.ID = uint64(len(f.stocks) + 1)
	f.stocks[stock.SKUID] = stock
	return nil
}

func (f *fakeRepository) GetStock(_ context.Context, _ pgx.Tx, skuID uint64) (*models.Stock, error) {
	return f.getCopy(skuID)
}

func (f *fakeRepository) GetStockForUpdate(_ context.Context, _ pgx.Tx, skuID uint64) (*models.Stock, error) {
	return f.getCopy(skuID)
}

func (f *fakeRepository) getCopy(skuID uint64) (*models.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stock, ok := f.stocks[skuID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stock
	return &clone, nil
}

func (f *fakeRepository) UpdateStock(_ context.Context, _ pgx.Tx, stock *models.Stock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *stock
	f.stocks[stock.SKUID] = &clone
	return nil
}

func (f *fakeRepository) GetSKUName(_ context.Context, _ pgx.Tx, skuID uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.skuNames[skuID]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return name, nil
}

func (f *fakeRepository) CreateStockLog(_ context.Context, _ pgx.Tx, log *models.StockLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log.ID = uint64(len(f.logs) + 1)
	clone := *log
	f.logs = append(f.logs, &clone)
	return nil
}

func (f *fakeRepository) ListStockLogs(_ context.Context, _ pgx.Tx, skuID uint64, _, _ uint64) ([]*models.StockLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logs := make([]*models.StockLog, 0)
	for _, log := range f.logs {
		if log.SKUID == skuID {
			logs = append(logs, log)
		}
	}
	return logs, nil
}

func (f *fakeRepository) snapshot() map[uint64]models.Stock {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := make(map[uint64]models.Stock, len(f.stocks))
	for skuID, stock := range f.stocks {
		state[skuID] = *stock
	}
	return state
}

func (f *fakeRepository) restore(state map[uint64]models.Stock, logCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stocks = make(map[uint64]*models.Stock, len(state))
	for skuID, stock := range state {
		clone := stock
		f.stocks[skuID] = &clone
	}
	f.logs = f.logs[:logCount]
}

// fakeTxRunner 以快照與還原模擬交易的回滾
type fakeTxRunner struct {
	repo *fakeRepository
}

func (r *fakeTxRunner) ExecuteTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	state := r.repo.snapshot()
	logCount := len(r.repo.logs)
	if err := fn(nil); err != nil {
		r.repo.restore(state, logCount)
		return err
	}
	return nil
}

func newTestService(t *testing.T, fixedStock *int64) (Service, *fakeRepository) {
	t.Helper()
	repo := newFakeRepository()
	svc := NewService(repo, &fakeTxRunner{repo: repo}, NewKeyedLock(time.Second), fixedStock, zap.NewNop())
	return svc, repo
}

func seedStock(repo *fakeRepository, skuID uint64, valid, lock, sold int64) {
	repo.stocks[skuID] = &models.Stock{ID: skuID, SKUID: skuID, ValidStock: valid, LockStock: lock, SoldStock: sold}
}

func TestProcessPut(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 100, 0, 0)

	if err := svc.Process(context.Background(), models.NewStockLog(1, enum.StockChangePut, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stock := repo.stocks[1]
	if stock.ValidStock != 120 || stock.LockStock != 0 || stock.SoldStock != 0 {
		t.Errorf("expected (120, 0, 0), got (%d, %d, %d)",
			stock.ValidStock, stock.LockStock, stock.SoldStock)
	}
}

func TestProcessLockInsufficient(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 10, 2, 3)

	err := svc.Process(context.Background(), models.NewStockLog(1, enum.StockChangeLock, 11))

	if !IsOverload(err) {
		t.Fatalf("expected overload error, got %v", err)
	}

	var overload *StockOverloadError
	errors.As(err, &overload)
	if overload.SKUID != 1 || overload.Requested != 11 || overload.Available != 10 {
		t.Errorf("unexpected overload details: %+v", overload)
	}

	stock := repo.stocks[1]
	if stock.ValidStock != 10 || stock.LockStock != 2 || stock.SoldStock != 3 {
		t.Errorf("counters changed on failed lock: (%d, %d, %d)",
			stock.ValidStock, stock.LockStock, stock.SoldStock)
	}
	if len(repo.logs) != 0 {
		t.Errorf("expected no stock log, got %d", len(repo.logs))
	}
}

func TestProcessDeductInsufficient(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 5, 5, 0)

	err := svc.Process(context.Background(), models.NewStockLog(1, enum.StockChangeDeduct, 6))

	if !IsOverload(err) {
		t.Fatalf("expected overload error, got %v", err)
	}
	stock := repo.stocks[1]
	if stock.ValidStock != 5 || stock.LockStock != 5 || stock.SoldStock != 0 {
		t.Errorf("counters changed on failed deduct: (%d, %d, %d)",
			stock.ValidStock, stock.LockStock, stock.SoldStock)
	}
}

func TestProcessSnapshotFidelity(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 100, 0, 0)

	log := models.NewStockLog(1, enum.StockChangeLock, 40)
	if err := svc.Process(context.Background(), log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stock := repo.stocks[1]
	if log.ValidStock != stock.ValidStock || log.LockStock != stock.LockStock || log.SoldStock != stock.SoldStock {
		t.Errorf("snapshot (%d, %d, %d) does not match stock (%d, %d, %d)",
			log.ValidStock, log.LockStock, log.SoldStock,
			stock.ValidStock, stock.LockStock, stock.SoldStock)
	}
	if len(repo.logs) != 1 {
		t.Fatalf("expected one persisted log, got %d", len(repo.logs))
	}
}

func TestProcessBackfillsSKUName(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 10, 0, 0)
	repo.skuNames[1] = "黑色 42 碼"

	log := models.NewStockLog(1, enum.StockChangePut, 1)
	if err := svc.Process(context.Background(), log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if log.SKUName != "黑色 42 碼" {
		t.Errorf("expected sku name backfilled, got %q", log.SKUName)
	}
}

func TestProcessRejectsInvalidInput(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 10, 0, 0)

	if err := svc.Process(context.Background(), models.NewStockLog(1, "melt", 1)); err == nil {
		t.Error("expected error for unknown change type")
	}
	if err := svc.Process(context.Background(), models.NewStockLog(1, enum.StockChangePut, 0)); err == nil {
		t.Error("expected error for zero quantity")
	}
	if err := svc.Process(context.Background(), models.NewStockLog(1, enum.StockChangePut, -5)); err == nil {
		t.Error("expected error for negative quantity")
	}
}

func TestProcessFixedStockBypass(t *testing.T) {
	fixed := int64(25)
	svc, repo := newTestService(t, &fixed)
	seedStock(repo, 1, 10, 0, 0)

	if err := svc.Process(context.Background(), models.NewStockLog(1, enum.StockChangeDeduct, 1000)); err != nil {
		t.Fatalf("expected bypass, got %v", err)
	}

	stock := repo.stocks[1]
	if stock.ValidStock != 10 {
		t.Errorf("expected untouched stock, got %d", stock.ValidStock)
	}
	if len(repo.logs) != 0 {
		t.Errorf("expected no logs under fixed stock, got %d", len(repo.logs))
	}

	if got := svc.GetValidStock(stock); got != 25 {
		t.Errorf("expected fixed valid stock 25, got %d", got)
	}
	if got, ok := svc.FixedStock(); !ok || got != 25 {
		t.Errorf("expected fixed stock (25, true), got (%d, %t)", got, ok)
	}
}

func TestGetValidStock(t *testing.T) {
	svc, _ := newTestService(t, nil)

	stock := &models.Stock{SKUID: 1, ValidStock: 42}
	if got := svc.GetValidStock(stock); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if _, ok := svc.FixedStock(); ok {
		t.Error("expected no fixed stock override")
	}
}

// 完整流程：進貨、鎖定、扣減、退貨，逐步驗證三個計數器
func TestProcessLifecycle(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 100, 0, 0)
	ctx := context.Background()

	steps := []struct {
		change              enum.StockChange
		quantity            int64
		valid, locked, sold int64
	}{
		{enum.StockChangePut, 20, 120, 0, 0},
		{enum.StockChangeLock, 50, 70, 50, 0},
		{enum.StockChangeDeduct, 50, 20, 0, 50},
		{enum.StockChangeReturn, 10, 30, 0, 40},
	}

	for _, step := range steps {
		if err := svc.Process(ctx, models.NewStockLog(1, step.change, step.quantity)); err != nil {
			t.Fatalf("%s(%d): unexpected error: %v", step.change, step.quantity, err)
		}
		stock := repo.stocks[1]
		if stock.ValidStock != step.valid || stock.LockStock != step.locked || stock.SoldStock != step.sold {
			t.Fatalf("%s(%d): expected (%d, %d, %d), got (%d, %d, %d)",
				step.change, step.quantity, step.valid, step.locked, step.sold,
				stock.ValidStock, stock.LockStock, stock.SoldStock)
		}
	}

	// 依序重放異動紀錄應該得到相同的最終狀態
	logs, err := svc.ListStockLogs(ctx, 1, 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	replayed := &models.Stock{SKUID: 1, ValidStock: 100}
	for _, log := range logs {
		switch log.Type {
		case enum.StockChangePut:
			replayed.Put(log.Quantity)
		case enum.StockChangeLock:
			replayed.Reserve(log.Quantity)
		case enum.StockChangeUnlock:
			replayed.Release(log.Quantity)
		case enum.StockChangeDeduct:
			replayed.Commit(log.Quantity)
		case enum.StockChangeReturn:
			replayed.Return(log.Quantity)
		}
	}
	final := repo.stocks[1]
	if replayed.ValidStock != final.ValidStock || replayed.LockStock != final.LockStock || replayed.SoldStock != final.SoldStock {
		t.Errorf("replay mismatch: (%d, %d, %d) vs (%d, %d, %d)",
			replayed.ValidStock, replayed.LockStock, replayed.SoldStock,
			final.ValidStock, final.LockStock, final.SoldStock)
	}
}

func TestProcessUnlockClamps(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 10, 3, 0)

	if err := svc.Process(context.Background(), models.NewStockLog(1, enum.StockChangeUnlock, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stock := repo.stocks[1]
	if stock.ValidStock != 15 || stock.LockStock != 0 {
		t.Errorf("expected (15, 0), got (%d, %d)", stock.ValidStock, stock.LockStock)
	}
}

// 兩個併發的鎖定請求搶同一份剛好夠一次的庫存：恰好一個成功
func TestProcessConcurrentLock(t *testing.T) {
	svc, repo := newTestService(t, nil)
	const quantity = 7
	seedStock(repo, 1, quantity, 0, 0)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Process(context.Background(), models.NewStockLog(1, enum.StockChangeLock, quantity))
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, overloaded int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case IsOverload(err):
			overloaded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if succeeded != 1 || overloaded != 1 {
		t.Errorf("expected exactly one success and one overload, got %d and %d", succeeded, overloaded)
	}

	stock := repo.stocks[1]
	if stock.ValidStock != 0 || stock.LockStock != quantity {
		t.Errorf("expected (0, %d), got (%d, %d)", quantity, stock.ValidStock, stock.LockStock)
	}
}

// 批次中任何一筆失敗，整批回滾，前面已成功的異動也要撤銷
func TestBatchProcessAtomicity(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 10, 0, 0)

	err := svc.BatchProcess(context.Background(), []*models.StockLog{
		models.NewStockLog(1, enum.StockChangeLock, 5),
		models.NewStockLog(1, enum.StockChangeDeduct, 1000),
	})

	if !IsOverload(err) {
		t.Fatalf("expected overload error, got %v", err)
	}

	stock := repo.stocks[1]
	if stock.ValidStock != 10 || stock.LockStock != 0 || stock.SoldStock != 0 {
		t.Errorf("expected rollback to (10, 0, 0), got (%d, %d, %d)",
			stock.ValidStock, stock.LockStock, stock.SoldStock)
	}
	if len(repo.logs) != 0 {
		t.Errorf("expected no logs after rollback, got %d", len(repo.logs))
	}
}

// 批次內後面的異動看得到前面對同一個 SKU 的效果
func TestBatchProcessSequential(t *testing.T) {
	svc, repo := newTestService(t, nil)
	seedStock(repo, 1, 0, 0, 0)
	seedStock(repo, 2, 5, 0, 0)

	err := svc.BatchProcess(context.Background(), []*models.StockLog{
		models.NewStockLog(1, enum.StockChangePut, 8),
		models.NewStockLog(1, enum.StockChangeLock, 8),
		models.NewStockLog(2, enum.StockChangeLock, 5),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := repo.stocks[1]
	if first.ValidStock != 0 || first.LockStock != 8 {
		t.Errorf("sku 1: expected (0, 8), got (%d, %d)", first.ValidStock, first.LockStock)
	}
	second := repo.stocks[2]
	if second.ValidStock != 0 || second.LockStock != 5 {
		t.Errorf("sku 2: expected (0, 5), got (%d, %d)", second.ValidStock, second.LockStock)
	}
	if len(repo.logs) != 3 {
		t.Errorf("expected 3 logs, got %d", len(repo.logs))
	}
}

func TestBatchProcessFixedStockBypass(t *testing.T) {
	fixed := int64(1)
	svc, repo := newTestService(t, &fixed)
	seedStock(repo, 1, 10, 0, 0)

	err := svc.BatchProcess(context.Background(), []*models.StockLog{
		models.NewStockLog(1, enum.StockChangeDeduct, 1000),
	})
	if err != nil {
		t.Fatalf("expected bypass, got %v", err)
	}
	if repo.stocks[1].ValidStock != 10 {
		t.Errorf("expected untouched stock, got %d", repo.stocks[1].ValidStock)
	}
}
