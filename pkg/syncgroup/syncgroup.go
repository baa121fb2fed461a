package syncgroup

import (
	"sync"
)

type syncGroupFunc func()

// SyncGroup 批量启动一组后台 goroutine 并统一等待退出，
// Add/Done 由组内代管，调用方不会漏配。riskd 的快照循环等
// 常驻任务都注册在这里，停机时 Wait 保证它们全部退出。
type SyncGroup struct {
	wg sync.WaitGroup

	sgFuncsMu    sync.Mutex
	sgFuncs      []syncGroupFunc
	hasRun       bool
	runningCount int
}

// NewSyncGroup 创建空组。
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 注册一个后台任务。必须在 Run 之前调用；上一批还有任务
// 在运行时丢弃本次注册，先 WaitAndClear 再重新注册。
func (w *SyncGroup) Add(fn syncGroupFunc) {
	if fn == nil {
		return
	}

	w.sgFuncsMu.Lock()
	defer w.sgFuncsMu.Unlock()

	if w.hasRun && w.runningCount > 0 {
		return
	}

	w.sgFuncs = append(w.sgFuncs, fn)
}

// Run 启动已注册的全部任务并清空注册列表。
// 上一批还有任务在运行时本次调用不生效。
func (w *SyncGroup) Run() {
	w.sgFuncsMu.Lock()

	if w.hasRun && w.runningCount > 0 {
		w.sgFuncsMu.Unlock()
		return
	}

	fns := w.sgFuncs
	w.sgFuncs = []syncGroupFunc{}
	w.hasRun = true
	w.runningCount = len(fns)
	w.sgFuncsMu.Unlock()

	for _, fn := range fns {
		if fn == nil {
			continue
		}
		w.wg.Add(1)
		go func(doFunc syncGroupFunc) {
			defer func() {
				w.wg.Done()
				w.sgFuncsMu.Lock()
				w.runningCount--
				w.sgFuncsMu.Unlock()
			}()
			doFunc()
		}(fn)
	}
}

// WaitAndClear 等待全部任务退出并复位，之后可以再次 Add/Run。
func (w *SyncGroup) WaitAndClear() {
	w.wg.Wait()

	w.sgFuncsMu.Lock()
	w.sgFuncs = []syncGroupFunc{}
	w.hasRun = false
	w.runningCount = 0
	w.sgFuncsMu.Unlock()
}

// Wait 等待全部任务退出（不复位）。
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}
