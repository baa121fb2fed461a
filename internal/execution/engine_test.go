package execution

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/tradebot/riskcore/internal/domain"
)

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithSleeper(NopSleeper{}),
		WithRand(rand.New(rand.NewSource(42))),
	}
	return NewEngine(cfg, append(base, opts...)...)
}

func limitOrder(amount float64) *domain.Order {
	return &domain.Order{
		Symbol: "BTC/USDT",
		Side:   domain.SideBuy,
		Amount: amount,
		Type:   domain.OrderTypeLimit,
		Price:  50000,
	}
}

func waitTerminal(t *testing.T, e *Engine, id string) domain.Order {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		order, ok := e.OrderStatus(id)
		if !ok {
			t.Fatalf("order %s not found", id)
		}
		if order.Status.IsTerminal() {
			return order
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("order %s did not reach terminal state", id)
	return domain.Order{}
}

func TestSubmit_TWAPFills(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	order := limitOrder(1000)
	id, err := e.Submit(context.Background(), order, domain.AlgoTWAP, domain.MarketSnapshot{Liquidity: 1_000_000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id == "" {
		t.Fatal("empty order id")
	}

	final := waitTerminal(t, e, id)
	if final.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %v, want filled", final.Status)
	}
	if final.FillRatio() < 0.99 {
		t.Fatalf("fillRatio = %v, want >= 0.99", final.FillRatio())
	}
	if final.AveragePrice <= 0 {
		t.Fatalf("averagePrice = %v", final.AveragePrice)
	}

	e.Wait()
	stats := e.Stats()
	if stats.TotalOrders != 1 || stats.FilledOrders != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.FillRate != 1.0 {
		t.Fatalf("fillRate = %v", stats.FillRate)
	}
	if stats.ActiveOrders != 0 {
		t.Fatalf("activeOrders = %d, want 0", stats.ActiveOrders)
	}
	if stats.AverageFillTime <= 0 {
		t.Fatalf("averageFillTime = %v", stats.AverageFillTime)
	}
}

func TestSubmit_ValidationRejects(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	snap := domain.MarketSnapshot{}

	cases := []struct {
		name  string
		order *domain.Order
	}{
		{"zero amount", &domain.Order{Symbol: "BTC", Side: domain.SideBuy, Amount: 0, Type: domain.OrderTypeLimit, Price: 100}},
		{"negative amount", &domain.Order{Symbol: "BTC", Side: domain.SideBuy, Amount: -5, Type: domain.OrderTypeLimit, Price: 100}},
		{"oversized", &domain.Order{Symbol: "BTC", Side: domain.SideBuy, Amount: 200_000, Type: domain.OrderTypeLimit, Price: 100}},
		{"limit without price", &domain.Order{Symbol: "BTC", Side: domain.SideBuy, Amount: 10, Type: domain.OrderTypeLimit}},
		{"bad side", &domain.Order{Symbol: "BTC", Side: "hold", Amount: 10, Type: domain.OrderTypeLimit, Price: 100}},
	}
	for _, tc := range cases {
		_, err := e.Submit(ctx, tc.order, "", snap)
		if err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		if tc.order.Status != domain.OrderStatusRejected {
			t.Fatalf("%s: status = %v, want rejected", tc.name, tc.order.Status)
		}
	}

	stats := e.Stats()
	if stats.RejectedOrders != int64(len(cases)) {
		t.Fatalf("rejectedOrders = %d, want %d", stats.RejectedOrders, len(cases))
	}
	// 被拒订单不进注册表，也不计入提交总数。
	if stats.TotalOrders != 0 {
		t.Fatalf("totalOrders = %d, want 0", stats.TotalOrders)
	}
}

func TestSubmit_MarketOrderNoPriceOK(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	order := &domain.Order{Symbol: "BTC", Side: domain.SideSell, Amount: 100, Type: domain.OrderTypeMarket}
	id, err := e.Submit(context.Background(), order, domain.AlgoImmediate, domain.MarketSnapshot{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, e, id)
}

// blockSleeper 挂起第一次 Sleep 直到 ctx 取消，用来让订单停在分片间隙。
type blockSleeper struct {
	mu      sync.Mutex
	entered chan struct{}
	once    sync.Once
}

func (b *blockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return ctx.Err()
}

func TestCancel_KeepsPartialFill(t *testing.T) {
	sleeper := &blockSleeper{entered: make(chan struct{})}
	e := newTestEngine(t, DefaultConfig(), WithSleeper(sleeper))

	order := limitOrder(1000)
	id, err := e.Submit(context.Background(), order, domain.AlgoTWAP, domain.MarketSnapshot{Liquidity: 1_000_000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// 等执行 goroutine 进入分片间等待。
	select {
	case <-sleeper.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("executor never reached the first sleep")
	}

	if !e.Cancel(id) {
		t.Fatal("cancel returned false for active order")
	}
	e.Wait()

	final, ok := e.OrderStatus(id)
	if !ok {
		t.Fatal("order missing after cancel")
	}
	if final.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %v, want cancelled", final.Status)
	}
	// 第一片在阻塞前已成交，撤单保留它。
	if final.FilledAmount != 100 {
		t.Fatalf("filledAmount = %v, want 100", final.FilledAmount)
	}

	if len(e.ActiveOrders()) != 0 {
		t.Fatal("cancelled order still active")
	}
	stats := e.Stats()
	if stats.CancelledOrders != 1 {
		t.Fatalf("cancelledOrders = %d", stats.CancelledOrders)
	}

	// 二次取消失败。
	if e.Cancel(id) {
		t.Fatal("cancel succeeded twice")
	}
}

func TestCancel_UnknownOrder(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	if e.Cancel("no-such-order") {
		t.Fatal("cancel of unknown order returned true")
	}
}

func TestCancel_FilledOrderRefused(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	order := limitOrder(500)
	id, err := e.Submit(context.Background(), order, domain.AlgoImmediate, domain.MarketSnapshot{Liquidity: 1_000_000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, e, id)
	e.Wait()

	if e.Cancel(id) {
		t.Fatal("cancel of filled order returned true")
	}
}

func TestActiveOrders_Snapshot(t *testing.T) {
	sleeper := &blockSleeper{entered: make(chan struct{})}
	e := newTestEngine(t, DefaultConfig(), WithSleeper(sleeper))

	order := limitOrder(1000)
	id, err := e.Submit(context.Background(), order, domain.AlgoTWAP, domain.MarketSnapshot{Liquidity: 1_000_000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-sleeper.entered

	active := e.ActiveOrders()
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	if active[0].OrderID != id {
		t.Fatalf("active order id = %s", active[0].OrderID)
	}

	// 快照是副本：改它不影响引擎内部状态。
	active[0].FilledAmount = 99999
	again := e.ActiveOrders()
	if again[0].FilledAmount == 99999 {
		t.Fatal("snapshot aliases engine state")
	}

	e.Cancel(id)
	e.Wait()
}

func TestSubmit_DedupWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupWindow = time.Minute
	e := newTestEngine(t, cfg)

	first := limitOrder(1000)
	if _, err := e.Submit(context.Background(), first, domain.AlgoImmediate, domain.MarketSnapshot{Liquidity: 1_000_000}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	dup := limitOrder(1000)
	if _, err := e.Submit(context.Background(), dup, domain.AlgoImmediate, domain.MarketSnapshot{Liquidity: 1_000_000}); err == nil {
		t.Fatal("duplicate submit within dedup window succeeded")
	}
	e.Wait()
}

func TestContextCancelStopsExecution(t *testing.T) {
	sleeper := &blockSleeper{entered: make(chan struct{})}
	e := newTestEngine(t, DefaultConfig(), WithSleeper(sleeper))

	ctx, cancel := context.WithCancel(context.Background())
	order := limitOrder(1000)
	id, err := e.Submit(ctx, order, domain.AlgoTWAP, domain.MarketSnapshot{Liquidity: 1_000_000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-sleeper.entered

	cancel()
	e.Wait()

	// 上下文取消停掉执行，但状态写入仍以 Cancel 为准：订单留在 partial/submitted。
	got, ok := e.OrderStatus(id)
	if !ok {
		t.Fatal("order missing")
	}
	if got.Status.IsTerminal() && got.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected terminal status %v", got.Status)
	}
}

func TestAbortSlices_PreservesFill(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	order := limitOrder(1000)
	order.OrderID = "abort-test"
	order.Status = domain.OrderStatusPartial
	order.FilledAmount = 300

	task := &orderTask{order: order}
	e.mu.Lock()
	e.orders[order.OrderID] = task
	e.active[order.OrderID] = task
	e.mu.Unlock()

	e.abortSlices(task, 0.02)

	got, ok := e.OrderStatus(order.OrderID)
	if !ok {
		t.Fatal("order missing")
	}
	if got.Status != domain.OrderStatusPartial {
		t.Fatalf("status = %v, want partial", got.Status)
	}
	if got.FilledAmount != 300 {
		t.Fatalf("filledAmount = %v, want 300", got.FilledAmount)
	}
	if len(e.ActiveOrders()) != 0 {
		t.Fatal("aborted order still active")
	}
}

func TestAbortSlices_NoFillRejects(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	order := limitOrder(1000)
	order.OrderID = "abort-empty"
	order.Status = domain.OrderStatusSubmitted

	task := &orderTask{order: order}
	e.mu.Lock()
	e.orders[order.OrderID] = task
	e.active[order.OrderID] = task
	e.mu.Unlock()

	e.abortSlices(task, 0.02)

	got, _ := e.OrderStatus(order.OrderID)
	if got.Status != domain.OrderStatusRejected {
		t.Fatalf("status = %v, want rejected", got.Status)
	}
}

type recordingArchiver struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (a *recordingArchiver) Archive(order domain.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders = append(a.orders, order)
	return nil
}

func TestArchiveOnTerminal(t *testing.T) {
	arch := &recordingArchiver{}
	e := newTestEngine(t, DefaultConfig(), WithArchiver(arch))

	order := limitOrder(500)
	id, err := e.Submit(context.Background(), order, domain.AlgoImmediate, domain.MarketSnapshot{Liquidity: 1_000_000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	e.Wait()

	arch.mu.Lock()
	defer arch.mu.Unlock()
	if len(arch.orders) != 1 {
		t.Fatalf("archived = %d, want 1", len(arch.orders))
	}
	if arch.orders[0].OrderID != id {
		t.Fatalf("archived order id = %s", arch.orders[0].OrderID)
	}
	if arch.orders[0].Status != domain.OrderStatusFilled {
		t.Fatalf("archived status = %v", arch.orders[0].Status)
	}
}

func TestArchiveEvictsFromRegistry(t *testing.T) {
	arch := &recordingArchiver{}
	e := newTestEngine(t, DefaultConfig(), WithArchiver(arch))

	order := limitOrder(500)
	id, err := e.Submit(context.Background(), order, domain.AlgoImmediate, domain.MarketSnapshot{Liquidity: 1_000_000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	e.Wait()

	// 归档成功的终态订单不再留在内存注册表里。
	if _, ok := e.OrderStatus(id); ok {
		t.Fatal("archived terminal order still in registry")
	}
	if len(e.ActiveOrders()) != 0 {
		t.Fatal("archived order still active")
	}
	arch.mu.Lock()
	defer arch.mu.Unlock()
	if len(arch.orders) != 1 || arch.orders[0].OrderID != id {
		t.Fatalf("archive = %+v", arch.orders)
	}
}

func TestResultHookOnTerminal(t *testing.T) {
	var mu sync.Mutex
	var results []bool
	hook := func(filled bool) {
		mu.Lock()
		results = append(results, filled)
		mu.Unlock()
	}
	e := newTestEngine(t, DefaultConfig(), WithResultHook(hook))

	order := limitOrder(500)
	if _, err := e.Submit(context.Background(), order, domain.AlgoImmediate, domain.MarketSnapshot{Liquidity: 1_000_000}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	e.Wait()

	aborted := limitOrder(1000)
	aborted.OrderID = "hook-abort"
	aborted.Status = domain.OrderStatusSubmitted
	task := &orderTask{order: aborted}
	e.mu.Lock()
	e.orders[aborted.OrderID] = task
	e.active[aborted.OrderID] = task
	e.mu.Unlock()
	e.abortSlices(task, 0.02)

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 || !results[0] || results[1] {
		t.Fatalf("results = %v, want [true false]", results)
	}
}

// gatedSource 把执行 goroutine 挂在滑点采样的随机数读取上，
// 放行前订单停在分片成交的临界区之外。
type gatedSource struct {
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
	src     rand.Source
}

func (g *gatedSource) Int63() int64 {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	return g.src.Int63()
}

func (g *gatedSource) Seed(seed int64) { g.src.Seed(seed) }

func TestCancel_InFlightSliceKeepsCancelled(t *testing.T) {
	src := &gatedSource{
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
		src:     rand.NewSource(42),
	}
	e := newTestEngine(t, DefaultConfig(), WithRand(rand.New(src)))

	order := limitOrder(1000)
	id, err := e.Submit(context.Background(), order, domain.AlgoTWAP, domain.MarketSnapshot{Liquidity: 1_000_000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// 执行 goroutine 已过撤单检查、停在首片滑点采样上。
	select {
	case <-src.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("executor never reached the slippage draw")
	}

	if !e.Cancel(id) {
		t.Fatal("cancel returned false for active order")
	}
	got, _ := e.OrderStatus(id)
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %v, want cancelled", got.Status)
	}

	// 放行在途分片：它可以补记成交量，但不得覆盖 cancelled 终态。
	close(src.gate)
	e.Wait()

	final, ok := e.OrderStatus(id)
	if !ok {
		t.Fatal("order missing")
	}
	if final.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %v, want cancelled after late fill", final.Status)
	}

	stats := e.Stats()
	if stats.CancelledOrders != 1 {
		t.Fatalf("cancelledOrders = %d, want 1", stats.CancelledOrders)
	}
	if stats.FilledOrders != 0 {
		t.Fatalf("filledOrders = %d, want 0", stats.FilledOrders)
	}
}
