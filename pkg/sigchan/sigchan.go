package sigchan

// Chan 非阻塞信号通道：只通知事件发生，不携带数据。
// riskd 用它把订单终态事件送进后台快照循环，满载时直接丢弃，
// 发送方（执行引擎）永远不会被慢消费者阻塞。
type Chan struct {
	c chan struct{}
}

// New 创建信号通道，bufferSize 为可积压的未消费信号数。
func New(bufferSize int) *Chan {
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit 发送一次信号。通道已满时丢弃，不阻塞。
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回底层通道，供消费方 select。
func (c *Chan) C() <-chan struct{} {
	return c.c
}
