package execution

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tradebot/riskcore/internal/domain"
)

var log = logrus.WithField("component", "execution")

// Archiver 终态订单归档。写失败只记日志，不影响订单状态。
type Archiver interface {
	Archive(order domain.Order) error
}

// Notifier 订单到达终态时收到一次信号（非阻塞），
// 上层用它触发统计快照等后台动作。pkg/sigchan.Chan 满足该接口。
type Notifier interface {
	Emit()
}

// ResultHook 订单执行结果回调：filled 表示完全成交，false 表示
// 滑点超限中止。撤单不回调。上层用它回灌熔断器的连续错误计数。
type ResultHook func(filled bool)

// Config 执行引擎配置。
type Config struct {
	Limits          Limits
	Slippage        SlippageModel
	FilledThreshold float64       // 成交比例达到该值视为完全成交
	DedupWindow     time.Duration // >0 时启用同特征订单的提交去重
}

// DefaultConfig 默认配置（99% 视为完全成交）。
func DefaultConfig() Config {
	return Config{
		Limits:          DefaultLimits(),
		Slippage:        DefaultSlippageModel(),
		FilledThreshold: 0.99,
	}
}

func (c Config) withDefaults() Config {
	c.Limits = c.Limits.withDefaults()
	c.Slippage = c.Slippage.withDefaults()
	if c.FilledThreshold <= 0 || c.FilledThreshold > 1 {
		c.FilledThreshold = 0.99
	}
	return c
}

// orderTask 订单执行任务。order 的可变字段由 mu 保护；
// cancel 取消任务上下文，唤醒分片间的等待。
type orderTask struct {
	mu     sync.Mutex
	order  *domain.Order
	plan   domain.ExecutionPlan
	cancel context.CancelFunc
}

// snapshot 返回订单副本。
func (t *orderTask) snapshot() domain.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.order
}

// Engine 订单执行引擎：每个订单一个 goroutine 顺序走分片，
// 注册表和统计由互斥锁串行化。Clock/Sleeper/rng 可注入，
// 测试时用零延时 Sleeper 和固定种子让执行确定可复现。
type Engine struct {
	cfg     Config
	planner *Planner
	clock   Clock
	sleeper Sleeper
	archive Archiver
	notify  Notifier
	result  ResultHook
	dedup   *submitDeduper

	rngMu sync.Mutex
	rng   *rand.Rand

	mu     sync.Mutex
	orders map[string]*orderTask // 全部订单（含终态）
	active map[string]*orderTask // 仅活动订单

	stats stats
	wg    sync.WaitGroup
}

// Option 引擎可选项。
type Option func(*Engine)

// WithClock 注入时钟。
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithSleeper 注入延时实现。
func WithSleeper(s Sleeper) Option { return func(e *Engine) { e.sleeper = s } }

// WithRand 注入随机数源（滑点扰动和自适应分片权重）。
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rng = r } }

// WithArchiver 注入终态订单归档。
func WithArchiver(a Archiver) Option { return func(e *Engine) { e.archive = a } }

// WithNotifier 注入终态通知信号。
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notify = n } }

// WithResultHook 注入执行结果回调。
func WithResultHook(h ResultHook) Option { return func(e *Engine) { e.result = h } }

// NewEngine 创建执行引擎。
func NewEngine(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		planner: NewPlanner(cfg.Limits, cfg.Slippage),
		clock:   realClock{},
		sleeper: realSleeper{},
		orders:  make(map[string]*orderTask),
		active:  make(map[string]*orderTask),
	}
	if cfg.DedupWindow > 0 {
		e.dedup = newSubmitDeduper(cfg.DedupWindow)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e
}

// Planner 返回引擎使用的计划生成器。
func (e *Engine) Planner() *Planner { return e.planner }

// validate 提交前校验。违规的订单直接拒绝，不进入调度。
func (e *Engine) validate(order *domain.Order) error {
	if order.Amount <= 0 {
		return errors.Errorf("invalid order amount: %v", order.Amount)
	}
	if order.Amount > e.cfg.Limits.MaxOrderSize {
		return errors.Errorf("order amount %v exceeds max %v", order.Amount, e.cfg.Limits.MaxOrderSize)
	}
	if order.Type != domain.OrderTypeMarket && order.Price <= 0 {
		return errors.Errorf("non-market order requires positive price, got %v", order.Price)
	}
	if order.Side != domain.SideBuy && order.Side != domain.SideSell {
		return errors.Errorf("invalid order side: %q", order.Side)
	}
	return nil
}

// Submit 提交订单。校验失败时订单置为 rejected 并同步返回错误；
// 通过后生成执行计划、登记注册表并启动执行 goroutine，返回订单 ID。
// ctx 约束整个执行过程，取消等价于撤单。
func (e *Engine) Submit(ctx context.Context, order *domain.Order, algo domain.Algorithm, snapshot domain.MarketSnapshot) (string, error) {
	if order.OrderID == "" {
		order.OrderID = uuid.New().String()
	}
	now := e.clock.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Status = domain.OrderStatusPending

	if err := e.validate(order); err != nil {
		order.Status = domain.OrderStatusRejected
		e.stats.orderRejected()
		log.WithField("order_id", order.OrderID).Warnf("order rejected: %v", err)
		return "", errors.Wrap(err, "submit")
	}

	if err := e.dedup.tryAcquire(submitKey(order), now); err != nil {
		order.Status = domain.OrderStatusRejected
		e.stats.orderRejected()
		log.WithField("order_id", order.OrderID).Warn("order rejected: duplicate in dedup window")
		return "", err
	}

	e.rngMu.Lock()
	plan := e.planner.BuildPlan(order, algo, snapshot, e.rng)
	e.rngMu.Unlock()

	taskCtx, cancel := context.WithCancel(ctx)
	task := &orderTask{order: order, plan: plan, cancel: cancel}

	e.mu.Lock()
	if _, exists := e.orders[order.OrderID]; exists {
		e.mu.Unlock()
		cancel()
		e.dedup.release(submitKey(order))
		return "", errors.Errorf("duplicate order id: %s", order.OrderID)
	}
	order.Status = domain.OrderStatusSubmitted
	e.orders[order.OrderID] = task
	e.active[order.OrderID] = task
	e.mu.Unlock()

	e.stats.orderSubmitted()
	log.WithFields(logrus.Fields{
		"order_id":  order.OrderID,
		"symbol":    order.Symbol,
		"algorithm": plan.Algorithm,
		"slices":    len(plan.Slices),
	}).Info("order submitted")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.run(taskCtx, task)
	}()

	return order.OrderID, nil
}

// run 顺序执行分片。每片前等到计划内的起始偏移并检查取消；
// 滑点超出计划上限时停止剩余分片。
func (e *Engine) run(ctx context.Context, task *orderTask) {
	start := e.clock.Now()
	var totalCost float64

	for _, slice := range task.plan.Slices {
		if wait := slice.StartOffset - e.clock.Now().Sub(start); wait > 0 {
			if err := e.sleeper.Sleep(ctx, wait); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		task.mu.Lock()
		if task.order.Status == domain.OrderStatusCancelled {
			task.mu.Unlock()
			return
		}
		task.mu.Unlock()

		slippage := e.sliceSlippage(task.plan)
		if slippage > task.plan.MaxSlippage {
			e.abortSlices(task, slippage)
			return
		}

		price := task.order.Price
		if task.order.Side == domain.SideBuy {
			price *= 1 + slippage
		} else {
			price *= 1 - slippage
		}
		totalCost += slice.Amount * price
		e.stats.addSlippage(slippage)

		task.mu.Lock()
		task.order.FilledAmount += slice.Amount
		if task.order.FilledAmount > 0 {
			task.order.AveragePrice = totalCost / task.order.FilledAmount
		}
		task.order.UpdatedAt = e.clock.Now()

		// Cancel 写入的终态是权威状态：和撤单并发的在途分片只记
		// 成交量，不再改写状态，也不走 finishFilled。
		cancelled := task.order.Status == domain.OrderStatusCancelled
		filled := false
		if !cancelled {
			filled = task.order.FillRatio() >= e.cfg.FilledThreshold
			if filled {
				task.order.Status = domain.OrderStatusFilled
			} else {
				task.order.Status = domain.OrderStatusPartial
			}
		}
		task.mu.Unlock()

		if cancelled {
			return
		}
		if filled {
			e.finishFilled(task, e.clock.Now().Sub(start))
			return
		}
	}
	// 计划走完仍未达到成交阈值：保持 partial，留在注册表里等撤单。
}

// sliceSlippage 分片滑点：以计划上限的一半为基准乘一个 [0.5, 2) 的
// 随机扰动，落在 [上限/4, 上限) 内。超限只可能来自计划被全局上限
// 压缩的边界情况，由 abortSlices 兜底。
func (e *Engine) sliceSlippage(plan domain.ExecutionPlan) float64 {
	e.rngMu.Lock()
	jitter := e.rng.Float64()*1.5 + 0.5
	e.rngMu.Unlock()

	s := plan.MaxSlippage / 2 * jitter
	if s < 0 {
		s = 0
	}
	return s
}

// abortSlices 分片滑点超限：终止剩余分片。有成交保持 partial 终态，
// 没有成交则 rejected，成交量一律保留。
func (e *Engine) abortSlices(task *orderTask, slippage float64) {
	task.mu.Lock()
	if task.order.Status == domain.OrderStatusCancelled {
		task.mu.Unlock()
		return
	}
	if task.order.FilledAmount > 0 {
		task.order.Status = domain.OrderStatusPartial
	} else {
		task.order.Status = domain.OrderStatusRejected
	}
	task.order.UpdatedAt = e.clock.Now()
	snapshot := *task.order
	task.mu.Unlock()

	log.WithFields(logrus.Fields{
		"order_id": snapshot.OrderID,
		"slippage": slippage,
		"filled":   snapshot.FilledAmount,
	}).Warn("slice slippage exceeded plan limit, stopping execution")

	e.mu.Lock()
	delete(e.active, snapshot.OrderID)
	e.mu.Unlock()

	if snapshot.FilledAmount == 0 {
		e.stats.orderRejected()
	}
	if e.result != nil {
		e.result(false)
	}
	e.archiveOrder(snapshot)
}

func (e *Engine) finishFilled(task *orderTask, elapsed time.Duration) {
	snapshot := task.snapshot()

	e.mu.Lock()
	delete(e.active, snapshot.OrderID)
	e.mu.Unlock()

	e.stats.orderFilled(elapsed)
	log.WithFields(logrus.Fields{
		"order_id":  snapshot.OrderID,
		"filled":    snapshot.FilledAmount,
		"avg_price": snapshot.AveragePrice,
		"elapsed":   elapsed,
	}).Info("order filled")

	if e.result != nil {
		e.result(true)
	}
	e.archiveOrder(snapshot)
}

// archiveOrder 终态处理：发终态信号，归档成功后把订单从内存注册表
// 剔除，后续查询走归档。归档失败（或未配置归档）时订单留在注册表。
func (e *Engine) archiveOrder(order domain.Order) {
	if e.notify != nil {
		e.notify.Emit()
	}
	if e.archive == nil {
		return
	}
	if err := e.archive.Archive(order); err != nil {
		log.WithField("order_id", order.OrderID).Warnf("archive failed: %v", err)
		return
	}
	e.mu.Lock()
	delete(e.orders, order.OrderID)
	e.mu.Unlock()
}

// Cancel 撤单。仅 submitted/partial 可撤；撤单保留已成交部分，
// 状态写入以这里为准，执行 goroutine 观察到取消后自行退出。
func (e *Engine) Cancel(orderID string) bool {
	e.mu.Lock()
	task, ok := e.active[orderID]
	if !ok {
		e.mu.Unlock()
		log.WithField("order_id", orderID).Warn("cancel: order not active")
		return false
	}

	task.mu.Lock()
	if !task.order.Status.CanCancel() {
		status := task.order.Status
		task.mu.Unlock()
		e.mu.Unlock()
		log.WithFields(logrus.Fields{"order_id": orderID, "status": status}).Warn("cancel: state not cancellable")
		return false
	}
	task.order.Status = domain.OrderStatusCancelled
	task.order.UpdatedAt = e.clock.Now()
	snapshot := *task.order
	task.mu.Unlock()

	delete(e.active, orderID)
	e.mu.Unlock()

	task.cancel()
	e.dedup.release(submitKey(&snapshot))
	e.stats.orderCancelled()
	log.WithField("order_id", orderID).Info("order cancelled")
	e.archiveOrder(snapshot)
	return true
}

// OrderStatus 按 ID 查订单快照（含终态订单）。
func (e *Engine) OrderStatus(orderID string) (domain.Order, bool) {
	e.mu.Lock()
	task, ok := e.orders[orderID]
	e.mu.Unlock()
	if !ok {
		return domain.Order{}, false
	}
	return task.snapshot(), true
}

// ActiveOrders 活动订单快照，按创建时间排序。
func (e *Engine) ActiveOrders() []domain.Order {
	e.mu.Lock()
	tasks := make([]*orderTask, 0, len(e.active))
	for _, t := range e.active {
		tasks = append(tasks, t)
	}
	e.mu.Unlock()

	out := make([]domain.Order, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stats 执行统计快照。
func (e *Engine) Stats() ExecutionStats {
	e.mu.Lock()
	active := len(e.active)
	e.mu.Unlock()
	return e.stats.snapshot(active)
}

// Wait 等待所有执行 goroutine 退出（配合上层 ctx 取消做优雅停机）。
func (e *Engine) Wait() {
	e.wg.Wait()
}
