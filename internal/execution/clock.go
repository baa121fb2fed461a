package execution

import (
	"context"
	"time"
)

// Clock 时间源，测试时可注入假时钟。
type Clock interface {
	Now() time.Time
}

// Sleeper 可中断的延时，测试时注入零延时实现让执行立即推进。
type Sleeper interface {
	// Sleep 阻塞 d 或直到 ctx 取消，取消时返回 ctx.Err()。
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NopSleeper 不等待的 Sleeper，测试用。
type NopSleeper struct{}

func (NopSleeper) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }
