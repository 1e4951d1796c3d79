package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// System Actor 系统
// 管理所有 Actor 的生命周期、调度器和监督
type System struct {
	// 基本信息
	name string

	// Actor 注册表
	actors   map[string]*actorCell
	actorsMu sync.RWMutex

	// 调度器注册表
	dispatchers *Dispatchers

	// 死信队列（无法投递的消息）
	deadLetters chan DeadLetter
	dlDone      chan struct{}

	// 生命周期控制
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning atomic.Bool

	// 配置
	config *SystemConfig

	// 统计信息
	totalActors   atomic.Int64
	totalMessages atomic.Int64
	deadLetterCnt atomic.Int64
	processedMsgs atomic.Int64
	startTime     time.Time

	// 日志
	logger *slog.Logger
}

// SystemConfig 系统配置
type SystemConfig struct {
	// DeadLetterSize 死信队列大小
	DeadLetterSize int
	// DefaultThroughput 调度器未指定时每次激活处理的消息数
	DefaultThroughput int
	// EnableDeadLetterLogging 是否记录死信
	EnableDeadLetterLogging bool
	// PanicHandler panic 处理函数
	PanicHandler func(actor *PID, msg Message, err any)
	// Logger 自定义日志器
	Logger *slog.Logger
	// OnDeadLetter 死信回调，在死信处理 goroutine 中调用
	OnDeadLetter func(dl DeadLetter)
	// DefaultDispatcher 默认调度器配置
	DefaultDispatcher DispatcherConfig
	// Dispatchers 额外注册的调度器
	Dispatchers map[string]DispatcherConfig
}

// DefaultSystemConfig 默认系统配置
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DeadLetterSize:          1000,
		DefaultThroughput:       DefaultThroughput,
		EnableDeadLetterLogging: true,
		PanicHandler:            nil, // 使用默认处理
		Logger:                  nil, // 使用默认 logger
		DefaultDispatcher:       DispatcherConfig{Type: DispatcherShared},
	}
}

// SystemStats 系统统计
type SystemStats struct {
	TotalActors   int64
	TotalMessages int64
	DeadLetters   int64
	ProcessedMsgs int64
	StartTime     time.Time
}

// NewSystem 创建新的 Actor 系统
func NewSystem(name string) *System {
	s, err := NewSystemWithConfig(name, DefaultSystemConfig())
	if err != nil {
		// 默认配置不会失败
		panic(err)
	}
	return s
}

// NewSystemWithConfig 使用配置创建 Actor 系统
func NewSystemWithConfig(name string, config *SystemConfig) (*System, error) {
	if config == nil {
		config = DefaultSystemConfig()
	}
	if config.DeadLetterSize <= 0 {
		config.DeadLetterSize = 1000
	}
	if config.DefaultThroughput <= 0 {
		config.DefaultThroughput = DefaultThroughput
	}
	if config.DefaultDispatcher.Type == "" {
		config.DefaultDispatcher.Type = DispatcherShared
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", name)

	dispatchers := newDispatchers(config.DefaultThroughput, logger)
	if err := dispatchers.Register(DefaultDispatcherID, config.DefaultDispatcher); err != nil {
		return nil, err
	}
	for id, cfg := range config.Dispatchers {
		if id == DefaultDispatcherID {
			continue
		}
		if err := dispatchers.Register(id, cfg); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &System{
		name:        name,
		actors:      make(map[string]*actorCell),
		dispatchers: dispatchers,
		deadLetters: make(chan DeadLetter, config.DeadLetterSize),
		dlDone:      make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		config:      config,
		logger:      logger,
		startTime:   time.Now(),
	}

	s.isRunning.Store(true)

	// 启动死信处理器
	go s.deadLetterHandler()

	s.logger.Info("actor system started", "name", name)
	return s, nil
}

// Name 返回系统名称
func (s *System) Name() string {
	return s.name
}

// Logger 返回系统日志器
func (s *System) Logger() *slog.Logger {
	return s.logger
}

// Dispatchers 返回调度器注册表
func (s *System) Dispatchers() *Dispatchers {
	return s.dispatchers
}

// ═══════════════════════════════════════════════════════════════════════════
// 创建 Actor
// ═══════════════════════════════════════════════════════════════════════════

// Spawn 创建 Actor
func (s *System) Spawn(actor Actor, name string) (*PID, error) {
	return s.spawn(actor, DefaultProps(name), nil)
}

// SpawnWithProps 使用属性创建 Actor
func (s *System) SpawnWithProps(actor Actor, props *Props) (*PID, error) {
	return s.spawn(actor, props, nil)
}

// SpawnChild 创建 parent 的子 Actor
// 父 Actor 停止时子 Actor 随之停止，未设置监督策略的子 Actor 使用父 Actor 的策略
func (s *System) SpawnChild(parent *PID, actor Actor, props *Props) (*PID, error) {
	return s.spawn(actor, props, parent)
}

func (s *System) spawn(actor Actor, props *Props, parent *PID) (*PID, error) {
	if !s.isRunning.Load() {
		return nil, ErrSystemStopped
	}
	if props == nil {
		props = DefaultProps("")
	}
	props = props.clone()
	if props.Name == "" {
		props.Name = "$" + uuid.NewString()
	}

	disp, owned, err := s.dispatchers.Lookup(props.Dispatcher)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", props.Name, err)
	}

	balancing, _ := disp.(*balancingDispatcher)
	var mb *Mailbox
	if balancing != nil {
		mb = balancing.newMailbox()
	} else {
		queue, err := props.Mailbox.NewQueue()
		if err != nil {
			if owned {
				disp.Shutdown()
			}
			return nil, fmt.Errorf("spawn %s: %w", props.Name, err)
		}
		mb = NewMailbox(queue, disp)
	}

	ctx, cancel := context.WithCancel(s.ctx)

	// 创建 PID
	pid := &PID{
		ID:     props.Name,
		system: s,
	}

	// 创建 Actor 单元
	cell := &actorCell{
		system:         s,
		pid:            pid,
		actor:          actor,
		props:          props,
		parent:         parent,
		mailbox:        mb,
		dispatcher:     disp,
		ownsDispatcher: owned,
		children:       make(map[string]*PID),
		watchers:       make(map[string]*PID),
		supervisor:     props.SupervisorStrategy,
		ctx:            ctx,
		cancel:         cancel,
		stats:          NewAtomicStatsCollector(),
		done:           make(chan struct{}),
	}
	mb.RegisterHandlers(cell, cell.deadLetter)
	// Started 总是第一条消息，不占用邮箱容量；注册前写入，此时没有其他生产者
	mb.seed(Envelope{Message: &Started{}})
	cell.state.Store(int32(actorStateRunning))

	pid.process = cell
	if props.ProcessDecorator != nil {
		pid.process = props.ProcessDecorator(cell)
	}

	// 注册
	s.actorsMu.Lock()
	if _, exists := s.actors[props.Name]; exists {
		s.actorsMu.Unlock()
		cancel()
		if owned {
			disp.Shutdown()
		}
		return nil, fmt.Errorf("%w: %s", ErrActorExists, props.Name)
	}
	// 注册后立即可能被停止，计数必须先于 unregister
	s.wg.Add(1)
	s.totalActors.Add(1)
	s.actors[props.Name] = cell
	var parentCell *actorCell
	if parent != nil {
		parentCell = s.actors[parent.ID]
	}
	s.actorsMu.Unlock()

	// 如果有父 Actor，注册为子 Actor
	if parentCell != nil {
		parentCell.addChild(pid)
	}

	if parentCell != nil && parentCell.isStopped() {
		// 父 Actor 已在停止中，可能错过了这个子 Actor
		defer s.Stop(pid)
	}
	if balancing != nil {
		balancing.attach(mb)
	}
	mb.wake()

	s.logger.Debug("spawned actor", "name", props.Name, "parent", parent)
	return pid, nil
}

// unregister 从注册表和父 Actor 中移除
func (s *System) unregister(cell *actorCell) {
	s.actorsMu.Lock()
	if cur, ok := s.actors[cell.pid.ID]; ok && cur == cell {
		delete(s.actors, cell.pid.ID)
	}
	var parentCell *actorCell
	if cell.parent != nil {
		parentCell = s.actors[cell.parent.ID]
	}
	s.actorsMu.Unlock()

	if parentCell != nil {
		parentCell.removeChild(cell.pid.ID)
	}

	s.totalActors.Add(-1)
	s.wg.Done()
}

func (s *System) lookupCell(id string) (*actorCell, bool) {
	s.actorsMu.RLock()
	defer s.actorsMu.RUnlock()
	cell, ok := s.actors[id]
	return cell, ok
}

// ═══════════════════════════════════════════════════════════════════════════
// 消息
// ═══════════════════════════════════════════════════════════════════════════

// Send 发送消息（无发送者）
func (s *System) Send(target *PID, msg Message) {
	target.TellWithSender(msg, nil)
}

// SendWithSender 发送消息（带发送者）
func (s *System) SendWithSender(target *PID, msg Message, sender *PID) {
	target.TellWithSender(msg, sender)
}

// Broadcast 广播消息到所有 Actor
func (s *System) Broadcast(msg Message) {
	s.BroadcastWithFilter(msg, func(*PID) bool { return true })
}

// BroadcastWithFilter 带过滤条件的广播
func (s *System) BroadcastWithFilter(msg Message, filter func(*PID) bool) {
	s.actorsMu.RLock()
	pids := make([]*PID, 0, len(s.actors))
	for _, cell := range s.actors {
		if filter(cell.pid) {
			pids = append(pids, cell.pid)
		}
	}
	s.actorsMu.RUnlock()

	for _, pid := range pids {
		pid.Tell(msg)
	}
}

// Request 同步请求（等待响应）
// 接收方通过 ctx.Reply 回复，只取第一条回复
func (s *System) Request(target *PID, msg Message, timeout time.Duration) (Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := s.RequestContext(ctx, target, msg)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, &ResponseTimeout{Target: target, Timeout: timeout}
	}
	return resp, err
}

// RequestContext 带 context 的同步请求
func (s *System) RequestContext(ctx context.Context, target *PID, msg Message) (Message, error) {
	if !s.isRunning.Load() {
		return nil, ErrSystemStopped
	}

	future := newFutureProcess()
	sender := &PID{ID: "$ask-" + uuid.NewString(), system: s, process: future}
	target.TellWithSender(msg, sender)

	select {
	case resp := <-future.ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishDeadLetter 发布死信，实现 DeadLetterPublisher
func (s *System) PublishDeadLetter(dl DeadLetter) {
	s.deadLetterCnt.Add(1)
	select {
	case s.deadLetters <- dl:
	default:
		kind := ""
		if dl.Envelope.Message != nil {
			kind = dl.Envelope.Message.Kind()
		}
		s.logger.Warn("dead letter queue full, message dropped",
			"kind", kind, "target", dl.Recipient.String())
	}
}

// deadLetterHandler 死信处理器
func (s *System) deadLetterHandler() {
	defer close(s.dlDone)

	for {
		select {
		case <-s.ctx.Done():
			return
		case dl := <-s.deadLetters:
			if s.config.EnableDeadLetterLogging {
				kind := ""
				if dl.Envelope.Message != nil {
					kind = dl.Envelope.Message.Kind()
				}
				s.logger.Warn("dead letter",
					"message", kind,
					"target", dl.Recipient.String(),
					"sender", dl.Envelope.Sender.String(),
					"reason", dl.Reason)
			}
			if s.config.OnDeadLetter != nil {
				s.config.OnDeadLetter(dl)
			}
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 生命周期
// ═══════════════════════════════════════════════════════════════════════════

// Stop 停止 Actor
// 当前消息处理完后停止，队列中剩余消息转入死信；要处理完已排队消息请发送 PoisonPill
func (s *System) Stop(pid *PID) {
	pid.sendSystem(&terminate{})
}

// StopGracefully 停止 Actor 并等待其完全终止
func (s *System) StopGracefully(pid *PID, timeout time.Duration) error {
	cell, exists := s.lookupCell(pid.ID)
	if !exists {
		return nil
	}

	s.Stop(pid)

	select {
	case <-cell.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for actor %s to stop", pid.ID)
	}
}

// Suspend 挂起 Actor 的用户消息处理
func (s *System) Suspend(pid *PID) {
	pid.sendSystem(&suspendMailbox{})
}

// Resume 恢复 Actor 的用户消息处理
func (s *System) Resume(pid *PID) {
	pid.sendSystem(&resumeMailbox{})
}

// Watch 让 watcher 监控 target，target 终止时 watcher 收到 Terminated
// target 已终止时立即收到
func (s *System) Watch(watcher, target *PID) {
	if target == nil || target.process == nil {
		watcher.Tell(&Terminated{Who: target})
		return
	}
	target.sendSystem(&watch{watcher: watcher})
}

// Unwatch 取消监控
func (s *System) Unwatch(watcher, target *PID) {
	target.sendSystem(&unwatch{watcher: watcher})
}

// Shutdown 关闭整个 Actor 系统
func (s *System) Shutdown() {
	s.ShutdownWithTimeout(30 * time.Second)
}

// ShutdownWithTimeout 带超时的关闭
func (s *System) ShutdownWithTimeout(timeout time.Duration) {
	if !s.isRunning.CompareAndSwap(true, false) {
		return
	}
	s.logger.Info("actor system shutting down", "name", s.name)
	deadline := time.Now().Add(timeout)

	// 停止所有 Actor
	for _, pid := range s.ListActors() {
		s.Stop(pid)
	}

	// 等待所有 Actor 终止
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("actor system shutdown complete", "name", s.name)
	case <-time.After(time.Until(deadline)):
		s.logger.Warn("actor system shutdown timeout, forcing exit", "name", s.name)
	}

	// 取消上下文
	s.cancel()
	<-s.dlDone
	// 剩余时间用于等待调度器
	s.dispatchers.shutdown(time.Until(deadline))
}

// IsRunning 检查系统是否运行中
func (s *System) IsRunning() bool {
	return s.isRunning.Load()
}

// ═══════════════════════════════════════════════════════════════════════════
// 监督
// ═══════════════════════════════════════════════════════════════════════════

// handleFailure 处理 Actor 失败，在失败 Actor 的消费线程中调用
func (s *System) handleFailure(cell *actorCell, msg Message, err any) {
	supervisor := cell.supervisor
	if supervisor == nil && cell.parent != nil {
		// 使用父 Actor 的监督策略
		if parentCell, ok := s.lookupCell(cell.parent.ID); ok {
			supervisor = parentCell.supervisor
		}
	}

	if supervisor == nil {
		supervisor = DefaultSupervisorStrategy()
	}

	result := supervisor.HandleFailure(s, cell.pid, msg, err)

	// 处理返回结果
	switch r := result.(type) {
	case DirectiveWithDelay:
		// 延迟重启，期间邮箱保持挂起
		pid := cell.pid
		time.AfterFunc(r.Delay, func() {
			pid.sendSystem(&restartActor{})
		})
	case Directive:
		// 立即执行
		s.applyDirective(cell, r)
	default:
		s.applyDirective(cell, DirectiveRestart)
	}
}

// applyDirective 应用监督指令
func (s *System) applyDirective(cell *actorCell, directive Directive) {
	switch directive {
	case DirectiveResume:
		s.logger.Debug("actor resumed after failure", "actor", cell.pid.ID)
		cell.mailbox.Resume()

	case DirectiveRestart, DirectiveRestartAfter:
		cell.restart()
		cell.mailbox.Resume()

	case DirectiveStop:
		cell.terminate()

	case DirectiveEscalate:
		if cell.parent != nil {
			// 将失败上报给父 Actor
			cell.parent.Tell(&Terminated{Who: cell.pid})
		}
		cell.terminate()
	}
}

// restartAllSiblings 重启所有兄弟 Actor（用于 AllForOne 策略）
// 兄弟 Actor 在各自的消费线程中重启，失败的 Actor 由返回的指令处理
func (s *System) restartAllSiblings(child *PID) {
	cell, exists := s.lookupCell(child.ID)
	if !exists || cell.parent == nil {
		return
	}
	parentCell, ok := s.lookupCell(cell.parent.ID)
	if !ok {
		return
	}

	for _, sibling := range parentCell.childrenPIDs() {
		if sibling.ID == child.ID {
			continue
		}
		sibling.sendSystem(&suspendMailbox{})
		sibling.sendSystem(&restartActor{})
		s.logger.Info("actor restarted by AllForOne strategy", "actor", sibling.ID)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 查询
// ═══════════════════════════════════════════════════════════════════════════

// Stats 获取统计信息
func (s *System) Stats() *SystemStats {
	return &SystemStats{
		TotalActors:   s.totalActors.Load(),
		TotalMessages: s.totalMessages.Load(),
		DeadLetters:   s.deadLetterCnt.Load(),
		ProcessedMsgs: s.processedMsgs.Load(),
		StartTime:     s.startTime,
	}
}

// ActorStats 获取单个 Actor 的统计信息
func (s *System) ActorStats(pid *PID) (*ActorStats, bool) {
	cell, ok := s.lookupCell(pid.ID)
	if !ok {
		return nil, false
	}
	return cell.stats.Stats(), true
}

// Inspect 查看 Actor 邮箱状态，已停止的 Actor 返回 MailboxClosed
func (s *System) Inspect(pid *PID) MailboxInfo {
	return pid.Inspect()
}

// GetActor 获取 Actor
func (s *System) GetActor(name string) (*PID, bool) {
	if cell, ok := s.lookupCell(name); ok {
		return cell.pid, true
	}
	return nil, false
}

// ListActors 列出所有 Actor
func (s *System) ListActors() []*PID {
	s.actorsMu.RLock()
	defer s.actorsMu.RUnlock()

	pids := make([]*PID, 0, len(s.actors))
	for _, cell := range s.actors {
		pids = append(pids, cell.pid)
	}
	return pids
}

// Count 返回 Actor 数量
func (s *System) Count() int {
	s.actorsMu.RLock()
	defer s.actorsMu.RUnlock()
	return len(s.actors)
}
