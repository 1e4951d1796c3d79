package actor

import (
	"errors"
	"sync"
	"time"
)

// Directive 监督指令
type Directive int

const (
	// DirectiveResume 恢复 Actor，保留状态继续处理后续消息
	DirectiveResume Directive = iota
	// DirectiveRestart 重启 Actor（Restarting → Started），暂存消息放回邮箱头部
	DirectiveRestart
	// DirectiveStop 停止 Actor
	DirectiveStop
	// DirectiveEscalate 通知父 Actor 后停止
	DirectiveEscalate
	// DirectiveRestartAfter 延迟重启 Actor
	DirectiveRestartAfter
)

// DirectiveWithDelay 带延迟的指令，延迟期间邮箱保持挂起
type DirectiveWithDelay struct {
	Directive Directive
	Delay     time.Duration
}

// String 返回指令名称
func (d Directive) String() string {
	switch d {
	case DirectiveResume:
		return "Resume"
	case DirectiveRestart:
		return "Restart"
	case DirectiveStop:
		return "Stop"
	case DirectiveEscalate:
		return "Escalate"
	case DirectiveRestartAfter:
		return "RestartAfter"
	default:
		return "Unknown"
	}
}

// SupervisorStrategy 监督策略接口
// HandleFailure 在失败 Actor 的消费线程中调用，返回 Directive 或 DirectiveWithDelay
type SupervisorStrategy interface {
	HandleFailure(system *System, child *PID, msg Message, err any) any
}

// Decider 决策函数类型
type Decider func(err any) Directive

// restartWindow 滑动时间窗口内的重启计数
type restartWindow struct {
	mu       sync.Mutex
	max      int
	within   time.Duration
	restarts []time.Time
}

// allow 记录一次重启，超过窗口内上限时返回 false
func (w *restartWindow) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.within)
	kept := w.restarts[:0]
	for _, t := range w.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.restarts = kept

	if len(w.restarts) >= w.max {
		return false
	}
	w.restarts = append(w.restarts, now)
	return true
}

// ============== 内置监督策略 ==============

// OneForOneStrategy 一对一策略
// 只重启失败的 Actor，不影响其他子 Actor
type OneForOneStrategy struct {
	Decider Decider
	window  restartWindow
}

// NewOneForOneStrategy 创建一对一策略
func NewOneForOneStrategy(maxRestarts int, within time.Duration, decider Decider) *OneForOneStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &OneForOneStrategy{
		Decider: decider,
		window:  restartWindow{max: maxRestarts, within: within},
	}
}

// HandleFailure 实现 SupervisorStrategy
func (s *OneForOneStrategy) HandleFailure(_ *System, _ *PID, _ Message, err any) any {
	directive := s.Decider(err)
	if directive == DirectiveRestart && !s.window.allow(time.Now()) {
		return DirectiveStop
	}
	return directive
}

// AllForOneStrategy 全部重启策略
// 当一个子 Actor 失败时，同一父 Actor 下的所有子 Actor 一起重启
type AllForOneStrategy struct {
	Decider Decider
	window  restartWindow
}

// NewAllForOneStrategy 创建全部重启策略
func NewAllForOneStrategy(maxRestarts int, within time.Duration, decider Decider) *AllForOneStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &AllForOneStrategy{
		Decider: decider,
		window:  restartWindow{max: maxRestarts, within: within},
	}
}

// HandleFailure 实现 SupervisorStrategy
func (s *AllForOneStrategy) HandleFailure(system *System, child *PID, _ Message, err any) any {
	directive := s.Decider(err)
	if directive != DirectiveRestart {
		return directive
	}
	if !s.window.allow(time.Now()) {
		return DirectiveStop
	}
	system.restartAllSiblings(child)
	return directive
}

// ExponentialBackoffStrategy 指数退避策略
// 重启间隔逐渐增加
type ExponentialBackoffStrategy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxRestarts  int
	Decider      Decider

	mu           sync.Mutex
	currentDelay time.Duration
	restartCount int
}

// NewExponentialBackoffStrategy 创建指数退避策略
func NewExponentialBackoffStrategy(initialDelay, maxDelay time.Duration, maxRestarts int, decider Decider) *ExponentialBackoffStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &ExponentialBackoffStrategy{
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		MaxRestarts:  maxRestarts,
		Decider:      decider,
		currentDelay: initialDelay,
	}
}

// HandleFailure 实现 SupervisorStrategy
func (s *ExponentialBackoffStrategy) HandleFailure(_ *System, _ *PID, _ Message, err any) any {
	directive := s.Decider(err)
	if directive != DirectiveRestart {
		return directive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.restartCount >= s.MaxRestarts {
		return DirectiveStop
	}

	delay := s.currentDelay
	s.currentDelay = min(s.currentDelay*2, s.MaxDelay)
	s.restartCount++

	return DirectiveWithDelay{
		Directive: DirectiveRestart,
		Delay:     delay,
	}
}

// Reset 重置退避状态
func (s *ExponentialBackoffStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDelay = s.InitialDelay
	s.restartCount = 0
}

// ============== 默认策略和决策器 ==============

// DefaultDecider 对所有错误重启
func DefaultDecider(_ any) Directive {
	return DirectiveRestart
}

// StoppingDecider 对所有错误停止
func StoppingDecider(_ any) Directive {
	return DirectiveStop
}

// EscalatingDecider 对所有错误上报
func EscalatingDecider(_ any) Directive {
	return DirectiveEscalate
}

// ResumingDecider 忽略错误继续运行
func ResumingDecider(_ any) Directive {
	return DirectiveResume
}

// DefaultSupervisorStrategy 默认监督策略
// 1 分钟内最多重启 3 次
func DefaultSupervisorStrategy() SupervisorStrategy {
	return NewOneForOneStrategy(3, time.Minute, DefaultDecider)
}

// StrictSupervisorStrategy 任何失败都停止 Actor
func StrictSupervisorStrategy() SupervisorStrategy {
	return NewOneForOneStrategy(0, time.Second, StoppingDecider)
}

// LenientSupervisorStrategy 5 分钟内最多重启 10 次
func LenientSupervisorStrategy() SupervisorStrategy {
	return NewOneForOneStrategy(10, 5*time.Minute, DefaultDecider)
}

// ============== 组合策略 ==============

// CompositeStrategy 组合策略
// 按 panic 的 error 值匹配（errors.Is），都不匹配时使用回退策略
type CompositeStrategy struct {
	mu       sync.RWMutex
	rules    []compositeRule
	fallback SupervisorStrategy
}

type compositeRule struct {
	target   error
	strategy SupervisorStrategy
}

// NewCompositeStrategy 创建组合策略
func NewCompositeStrategy(fallback SupervisorStrategy) *CompositeStrategy {
	if fallback == nil {
		fallback = DefaultSupervisorStrategy()
	}
	return &CompositeStrategy{fallback: fallback}
}

// RegisterStrategy 注册特定错误的策略，先注册的优先
func (s *CompositeStrategy) RegisterStrategy(target error, strategy SupervisorStrategy) {
	s.mu.Lock()
	s.rules = append(s.rules, compositeRule{target: target, strategy: strategy})
	s.mu.Unlock()
}

// HandleFailure 实现 SupervisorStrategy
func (s *CompositeStrategy) HandleFailure(system *System, child *PID, msg Message, err any) any {
	if e, ok := err.(error); ok {
		s.mu.RLock()
		for _, rule := range s.rules {
			if errors.Is(e, rule.target) {
				s.mu.RUnlock()
				return rule.strategy.HandleFailure(system, child, msg, err)
			}
		}
		s.mu.RUnlock()
	}
	return s.fallback.HandleFailure(system, child, msg, err)
}

// ============== 监督树辅助 ==============

// SupervisorConfig 监督配置
type SupervisorConfig struct {
	Strategy SupervisorStrategy
	Children []ChildSpec
}

// ChildSpec 子 Actor 规格
type ChildSpec struct {
	Name    string
	Factory func() Actor
	Props   *Props
}

// SupervisorActor 监督者 Actor，启动时按规格创建子 Actor
// 子 Actor 的状态只在监督者自身的消息处理中读写
type SupervisorActor struct {
	config   *SupervisorConfig
	children map[string]*PID
}

// NewSupervisorActor 创建监督者 Actor
func NewSupervisorActor(config *SupervisorConfig) *SupervisorActor {
	return &SupervisorActor{
		config:   config,
		children: make(map[string]*PID),
	}
}

// Receive 处理消息
func (s *SupervisorActor) Receive(ctx *Context, msg Message) {
	switch m := msg.(type) {
	case *Started:
		for _, spec := range s.config.Children {
			if _, running := s.children[spec.Name]; running {
				continue
			}
			props := DefaultProps(spec.Name)
			if spec.Props != nil {
				props = spec.Props.clone()
				props.Name = spec.Name
			}
			props.SupervisorStrategy = s.config.Strategy
			pid, err := ctx.SpawnWithProps(spec.Factory(), props)
			if err != nil {
				ctx.System().Logger().Error("spawn child failed", "supervisor", ctx.Self.ID, "child", spec.Name, "error", err)
				continue
			}
			ctx.Watch(pid)
			s.children[spec.Name] = pid
		}

	case *Terminated:
		if m.Who != nil {
			delete(s.children, m.Who.ID)
		}
	}
}

// GetChild 获取子 Actor，只能在监督者内部或其停止后调用
func (s *SupervisorActor) GetChild(name string) *PID {
	return s.children[name]
}
