package execution

import (
	"fmt"
	"sync"
	"time"

	"github.com/tradebot/riskcore/internal/domain"
)

// ErrDuplicateSubmit 同一特征的订单在去重窗口内已提交过。
var ErrDuplicateSubmit = fmt.Errorf("duplicate order in flight")

// submitDeduper 短窗口内按订单特征（symbol+side+amount+type）去重，
// 挡掉信号抖动或重复点击造成的重复下单。确定性 map 实现，
// 不用概率结构：误判跳过一笔真实订单的代价太高。
type submitDeduper struct {
	ttl time.Duration

	mu sync.Mutex
	m  map[string]time.Time // key -> expiresAt
}

func newSubmitDeduper(ttl time.Duration) *submitDeduper {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &submitDeduper{ttl: ttl, m: make(map[string]time.Time)}
}

func submitKey(order *domain.Order) string {
	return fmt.Sprintf("%s|%s|%v|%s", order.Symbol, order.Side, order.Amount, order.Type)
}

// tryAcquire 获取 key 的提交令牌；窗口内重复返回 ErrDuplicateSubmit。
// 过期项在访问时惰性清理。
func (d *submitDeduper) tryAcquire(key string, now time.Time) error {
	if d == nil || key == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, exp := range d.m {
		if !exp.After(now) {
			delete(d.m, k)
		}
	}
	if exp, ok := d.m[key]; ok && exp.After(now) {
		return ErrDuplicateSubmit
	}
	d.m[key] = now.Add(d.ttl)
	return nil
}

// release 提前释放 key（校验失败的订单不占用窗口）。
func (d *submitDeduper) release(key string) {
	if d == nil || key == "" {
		return
	}
	d.mu.Lock()
	delete(d.m, key)
	d.mu.Unlock()
}
