package routing

import (
	"runtime/debug"
	"sync/atomic"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// resizablePool 带 Resizer 的 Pool 的调整状态
//
// 计数器在每条非管理消息投递时递增；IsTimeForResize 返回 true 且
// inProgress 从 false 切换到 true 成功时，向路由器邮箱投递一次 resize。
// 同一时刻最多只有一次调整在进行。
type resizablePool struct {
	resizer    Resizer
	counter    atomic.Int64
	inProgress atomic.Bool
}

// onMessage 在发送方 goroutine 中调用
func (r *resizablePool) onMessage(p *routedProcess) {
	if !r.resizer.IsTimeForResize(r.counter.Add(1) - 1) {
		return
	}
	if !r.inProgress.CompareAndSwap(false, true) {
		return
	}
	if err := p.inner.SendUserMessage(actor.Envelope{Message: &resize{}}); err != nil {
		// 路由器已停止，没有人会释放标记
		r.inProgress.Store(false)
	}
}

// initial 在路由器接收任何消息之前同步执行一次调整
func (r *resizablePool) initial(p *routedProcess) {
	if !r.resizer.IsTimeForResize(r.counter.Add(1) - 1) {
		return
	}
	if r.inProgress.CompareAndSwap(false, true) {
		r.resize(p)
	}
}

// resize 计算变化量并调整目标；无论成功与否都释放标记
func (r *resizablePool) resize(p *routedProcess) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("resize failed",
				"error", rec,
				"stack", string(debug.Stack()))
		}
		r.inProgress.Store(false)
	}()

	current := p.router.Load().Routees()
	delta := r.resizer.Resize(current)
	switch {
	case delta > 0:
		if err := p.growPool(delta); err != nil {
			p.logger.Error("resize failed", "delta", delta, "error", err)
			return
		}
	case delta < 0:
		p.shrinkPool(-delta)
	default:
		return
	}
	p.logger.Debug("pool resized", "from", len(current), "delta", delta)
}

func (r *resizablePool) resizing() bool {
	return r.inProgress.Load()
}
