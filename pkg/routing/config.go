package routing

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// RouterConfig 路由器配置，只有 Pool 和 Group 两种实现
type RouterConfig interface {
	// CreateRouter 创建不含目标的 Router
	CreateRouter() *Router
	// RouterDispatcher 路由器自身使用的调度器
	RouterDispatcher() string
	// Routees 创建初始目标，head 是路由器自身
	Routees(sys *actor.System, head *actor.PID) ([]Routee, error)

	validate() error
}

func routerOrDefault(logic RoutingLogic) RoutingLogic {
	if logic == nil {
		return NewRoundRobinRoutingLogic()
	}
	return logic
}

// ═══════════════════════════════════════════════════════════════════════════
// Pool
// ═══════════════════════════════════════════════════════════════════════════

// Pool 路由器创建并监督自己的目标
//
// 目标是路由器的子 Actor，名称为 "<路由器名>/$<序号>"；未单独设置监督策略的目标
// 使用 SupervisorStrategy。目标终止后自动从路由器中移除。
type Pool struct {
	// NrOfInstances 初始目标数量
	NrOfInstances int
	// Logic 路由逻辑，默认 RoundRobin
	Logic RoutingLogic
	// Resizer 动态调整目标数量，为空表示固定大小
	Resizer Resizer
	// SupervisorStrategy 目标失败时的监督策略
	SupervisorStrategy actor.SupervisorStrategy
	// Dispatcher 路由器自身的调度器，不能是 balancing 类型
	Dispatcher string
	// UsePoolDispatcher 为目标单独注册一个调度器，随路由器一起关闭
	UsePoolDispatcher bool
	// PoolDispatcher UsePoolDispatcher 时使用的调度器配置
	PoolDispatcher actor.DispatcherConfig
	// RouteeProps 目标的属性模板，Name 会被覆盖
	RouteeProps *actor.Props
	// Producer 创建目标 Actor
	Producer func() actor.Actor

	seq atomic.Int64
}

// NewPool 创建固定大小的 Pool
func NewPool(n int, logic RoutingLogic, producer func() actor.Actor) *Pool {
	return &Pool{NrOfInstances: n, Logic: logic, Producer: producer}
}

// WithResizer 设置 Resizer
func (p *Pool) WithResizer(r Resizer) *Pool {
	p.Resizer = r
	return p
}

// WithSupervisor 设置目标的监督策略
func (p *Pool) WithSupervisor(s actor.SupervisorStrategy) *Pool {
	p.SupervisorStrategy = s
	return p
}

// WithDispatcher 设置路由器自身的调度器
func (p *Pool) WithDispatcher(id string) *Pool {
	p.Dispatcher = id
	return p
}

// WithPoolDispatcher 为目标单独创建调度器
func (p *Pool) WithPoolDispatcher(cfg actor.DispatcherConfig) *Pool {
	p.UsePoolDispatcher = true
	p.PoolDispatcher = cfg
	return p
}

// WithRouteeProps 设置目标属性模板
func (p *Pool) WithRouteeProps(props *actor.Props) *Pool {
	p.RouteeProps = props
	return p
}

// CreateRouter 实现 RouterConfig
func (p *Pool) CreateRouter() *Router {
	return NewRouter(routerOrDefault(p.Logic))
}

// RouterDispatcher 实现 RouterConfig
func (p *Pool) RouterDispatcher() string {
	return p.Dispatcher
}

// Routees 实现 RouterConfig，在 head 下创建 NrOfInstances 个目标
func (p *Pool) Routees(sys *actor.System, head *actor.PID) ([]Routee, error) {
	routees := make([]Routee, 0, p.NrOfInstances)
	for i := 0; i < p.NrOfInstances; i++ {
		r, err := p.newRoutee(sys, head)
		if err != nil {
			return routees, err
		}
		routees = append(routees, r)
	}
	return routees, nil
}

func (p *Pool) validate() error {
	switch {
	case p.Producer == nil:
		return ErrNoProducer
	case p.NrOfInstances < 0:
		return fmt.Errorf("%w: nr-of-instances must be >= 0, got %d", ErrInvalidPool, p.NrOfInstances)
	case p.NrOfInstances == 0 && p.Resizer == nil:
		return fmt.Errorf("%w: nr-of-instances must be > 0 without a resizer", ErrInvalidPool)
	}
	if p.UsePoolDispatcher {
		if err := p.PoolDispatcher.Validate(); err != nil {
			return fmt.Errorf("%w: pool dispatcher: %w", ErrInvalidPool, err)
		}
	}
	return nil
}

// newRoutee 在 head 下创建一个目标并监控它
func (p *Pool) newRoutee(sys *actor.System, head *actor.PID) (Routee, error) {
	props := actor.DefaultProps("")
	if p.RouteeProps != nil {
		cp := *p.RouteeProps
		props = &cp
	}
	props.Name = routeePrefix(head) + strconv.FormatInt(p.seq.Add(1), 10)
	if p.UsePoolDispatcher {
		props.Dispatcher = poolDispatcherID(head)
	}

	pid, err := sys.SpawnChild(head, p.Producer(), props)
	if err != nil {
		return nil, fmt.Errorf("spawn routee: %w", err)
	}
	sys.Watch(head, pid)
	return ActorRefRoutee{PID: pid}, nil
}

func routeePrefix(head *actor.PID) string {
	return head.ID + "/$"
}

// ownedBy 判断 pid 是否是 head 创建的目标
func ownedBy(pid, head *actor.PID) bool {
	return strings.HasPrefix(pid.ID, routeePrefix(head))
}

func poolDispatcherID(head *actor.PID) string {
	return head.ID + "/pool"
}

// ═══════════════════════════════════════════════════════════════════════════
// Group
// ═══════════════════════════════════════════════════════════════════════════

// Group 按名称路由到外部创建的 Actor，不创建也不停止它们
// 目标每次发送时解析，不存在时消息转入死信
type Group struct {
	// Paths 目标 Actor 名称
	Paths []string
	// Logic 路由逻辑，默认 RoundRobin
	Logic RoutingLogic
	// Dispatcher 路由器自身的调度器，不能是 balancing 类型
	Dispatcher string
}

// NewGroup 创建 Group
func NewGroup(logic RoutingLogic, paths ...string) *Group {
	return &Group{Paths: paths, Logic: logic}
}

// WithDispatcher 设置路由器自身的调度器
func (g *Group) WithDispatcher(id string) *Group {
	g.Dispatcher = id
	return g
}

// CreateRouter 实现 RouterConfig
func (g *Group) CreateRouter() *Router {
	return NewRouter(routerOrDefault(g.Logic))
}

// RouterDispatcher 实现 RouterConfig
func (g *Group) RouterDispatcher() string {
	return g.Dispatcher
}

// Routees 实现 RouterConfig
func (g *Group) Routees(sys *actor.System, _ *actor.PID) ([]Routee, error) {
	routees := make([]Routee, 0, len(g.Paths))
	for _, path := range g.Paths {
		routees = append(routees, ActorSelectionRoutee{Path: path, System: sys})
	}
	return routees, nil
}

func (g *Group) validate() error {
	for i, path := range g.Paths {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("%w: empty path at index %d", ErrInvalidGroup, i)
		}
	}
	return nil
}
