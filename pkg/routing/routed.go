package routing

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// Spawn 创建路由器 Actor
//
// 返回的 PID 上，管理消息（GetRoutees、AddRoutee、RemoveRoutee、AdjustPoolSize、
// PoisonPill、Terminated）进入路由器自身的邮箱；其余消息在发送方 goroutine 中
// 直接路由到目标，不经过路由器邮箱。
func Spawn(sys *actor.System, name string, cfg RouterConfig) (*actor.PID, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("router %s: %w", name, err)
	}

	dcfg, err := sys.Dispatchers().Config(cfg.RouterDispatcher())
	if err != nil {
		return nil, fmt.Errorf("router %s: %w", name, err)
	}
	if dcfg.Type == actor.DispatcherBalancing {
		return nil, fmt.Errorf("router %s: %w", name, ErrBalancingRouterDispatcher)
	}

	proc := &routedProcess{system: sys, cfg: cfg, logger: sys.Logger().With("router", name)}
	proc.router.Store(cfg.CreateRouter().WithDeadLetters(sys, nil))

	pool, _ := cfg.(*Pool)
	props := actor.DefaultProps(name).WithDispatcher(cfg.RouterDispatcher())
	props.ProcessDecorator = func(inner actor.Process) actor.Process {
		proc.inner = inner
		return proc
	}
	if pool != nil {
		props.SupervisorStrategy = pool.SupervisorStrategy
		if pool.Resizer != nil {
			proc.resizable = &resizablePool{resizer: pool.Resizer}
		}
	}

	head, err := sys.SpawnWithProps(&routerActor{proc: proc}, props)
	if err != nil {
		return nil, fmt.Errorf("router %s: %w", name, err)
	}
	proc.self = head
	proc.update(func(r *Router) *Router { return r.WithDeadLetters(sys, head) })

	if pool != nil && pool.UsePoolDispatcher {
		if err := sys.Dispatchers().Register(poolDispatcherID(head), pool.PoolDispatcher); err != nil {
			sys.Stop(head)
			return nil, fmt.Errorf("router %s: %w", head.ID, err)
		}
	}

	routees, err := cfg.Routees(sys, head)
	if err != nil {
		sys.Stop(head)
		return nil, fmt.Errorf("router %s: %w", head.ID, err)
	}
	proc.update(func(r *Router) *Router { return r.WithRoutees(routees...) })

	if proc.resizable != nil {
		proc.resizable.initial(proc)
	}

	proc.logger.Debug("router started", "routees", len(routees))
	return head, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// routedProcess
// ═══════════════════════════════════════════════════════════════════════════

// routedProcess 路由器的投递入口
// Router 快照通过 atomic.Pointer 整体替换，发送方总是读到完整的目标集合
type routedProcess struct {
	system *actor.System
	cfg    RouterConfig
	inner  actor.Process
	self   *actor.PID
	logger *slog.Logger

	router    atomic.Pointer[Router]
	resizable *resizablePool
}

func (p *routedProcess) SendUserMessage(env actor.Envelope) error {
	if isManagementMessage(env.Message) {
		return p.inner.SendUserMessage(env)
	}
	if p.inner.Inspect().Status == actor.MailboxClosed {
		return actor.ErrMailboxClosed
	}
	if p.resizable != nil {
		p.resizable.onMessage(p)
	}
	p.router.Load().Route(env.Message, env.Sender)
	return nil
}

func (p *routedProcess) SendSystemMessage(msg actor.SystemMessage) {
	p.inner.SendSystemMessage(msg)
}

func (p *routedProcess) Inspect() actor.MailboxInfo {
	return p.inner.Inspect()
}

// update 以 CAS 方式替换 Router
func (p *routedProcess) update(fn func(*Router) *Router) *Router {
	for {
		cur := p.router.Load()
		next := fn(cur)
		if next == cur || p.router.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func (p *routedProcess) pool() *Pool {
	pool, _ := p.cfg.(*Pool)
	return pool
}

func (p *routedProcess) addRoutees(routees ...Routee) {
	for _, r := range routees {
		if pid := refPID(r); pid != nil {
			p.system.Watch(p.self, pid)
		}
	}
	p.update(func(cur *Router) *Router {
		for _, r := range routees {
			cur = cur.AddRoutee(r)
		}
		return cur
	})
}

// removeRoutees 先请求停止自己创建的目标，再发布不含它们的 Router
func (p *routedProcess) removeRoutees(routees ...Routee) {
	for _, r := range routees {
		pid := refPID(r)
		if pid == nil {
			continue
		}
		p.system.Unwatch(p.self, pid)
		if p.pool() != nil && ownedBy(pid, p.self) {
			pid.Tell(&actor.PoisonPill{})
		}
	}
	p.update(func(cur *Router) *Router {
		for _, r := range routees {
			cur = cur.RemoveRoutee(r)
		}
		return cur
	})
}

// growPool 创建 n 个新目标
func (p *routedProcess) growPool(n int) error {
	pool := p.pool()
	if pool == nil {
		return nil
	}
	added := make([]Routee, 0, n)
	var err error
	for i := 0; i < n; i++ {
		var r Routee
		if r, err = pool.newRoutee(p.system, p.self); err != nil {
			break
		}
		added = append(added, r)
	}
	// newRoutee 已经监控了新目标
	p.update(func(cur *Router) *Router {
		for _, r := range added {
			cur = cur.AddRoutee(r)
		}
		return cur
	})
	return err
}

// shrinkPool 从尾部移除 n 个目标
func (p *routedProcess) shrinkPool(n int) {
	current := p.router.Load().Routees()
	if n > len(current) {
		n = len(current)
	}
	if n <= 0 {
		return
	}
	p.removeRoutees(current[len(current)-n:]...)
}

// ═══════════════════════════════════════════════════════════════════════════
// routerActor
// ═══════════════════════════════════════════════════════════════════════════

// routerActor 路由器自身，只处理管理消息
type routerActor struct {
	proc *routedProcess
}

func (a *routerActor) Receive(ctx *actor.Context, msg actor.Message) {
	p := a.proc

	switch m := msg.(type) {
	case *GetRoutees:
		ctx.Reply(&Routees{Routees: p.router.Load().Routees()})

	case *AddRoutee:
		r := m.Routee
		if sel, ok := r.(ActorSelectionRoutee); ok && sel.System == nil {
			sel.System = p.system
			r = sel
		}
		if r != nil {
			p.addRoutees(r)
		}

	case *RemoveRoutee:
		if m.Routee != nil {
			p.removeRoutees(m.Routee)
			p.stopIfAllRouteesRemoved(ctx)
		}

	case *AdjustPoolSize:
		switch {
		case p.pool() == nil:
			p.logger.Warn("AdjustPoolSize ignored by group router")
		case m.Change > 0:
			if err := p.growPool(m.Change); err != nil {
				p.logger.Error("adjust pool size failed", "change", m.Change, "error", err)
			}
		case m.Change < 0:
			p.shrinkPool(-m.Change)
		}

	case *resize:
		if p.resizable != nil {
			p.resizable.resize(p)
		}

	case *actor.Terminated:
		p.update(func(cur *Router) *Router {
			return cur.RemoveRoutee(ActorRefRoutee{PID: m.Who})
		})
		p.stopIfAllRouteesRemoved(ctx)

	case *actor.Stopping:
		// 目标随后会被停止，不再需要它们的 Terminated
		for _, r := range p.router.Load().Routees() {
			if pid := refPID(r); pid != nil {
				p.system.Unwatch(p.self, pid)
			}
		}

	case *actor.Stopped:
		if pool := p.pool(); pool != nil && pool.UsePoolDispatcher {
			// Shutdown 会等待工作 goroutine，不阻塞路由器的消费线程
			go p.system.Dispatchers().Unregister(poolDispatcherID(p.self))
		}
		p.logger.Debug("router stopped")
	}
}

// stopIfAllRouteesRemoved 固定大小的路由器失去全部目标后停止自己
func (p *routedProcess) stopIfAllRouteesRemoved(ctx *actor.Context) {
	if p.resizable != nil || p.router.Load().Len() > 0 {
		return
	}
	p.logger.Info("all routees removed, stopping router")
	ctx.StopSelf()
}
