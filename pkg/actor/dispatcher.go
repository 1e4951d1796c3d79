package actor

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDispatcherID 默认调度器 ID
const DefaultDispatcherID = "default"

// DefaultThroughput 每次激活最多处理的消息数
const DefaultThroughput = 100

// minWorkers 未指定 Workers 时的最少 goroutine 数
const minWorkers = 4

// Dispatcher 调度器
// 邮箱有消息时把自己的处理函数提交给调度器执行
type Dispatcher interface {
	ID() string
	// Schedule 提交一次邮箱处理任务，不能阻塞调用方
	Schedule(fn func())
	// Throughput 每次激活最多处理的消息数，<= 0 表示不限制
	Throughput() int
	// ThroughputDeadline 每次激活的时间预算，0 表示不限制
	ThroughputDeadline() time.Duration
	Shutdown()
}

// DispatcherType 调度器类型
type DispatcherType string

const (
	// DispatcherShared 共享调度器（多个 Actor 共享固定数量的 goroutine）
	DispatcherShared DispatcherType = "shared"
	// DispatcherGoroutine 每次激活启动一个 goroutine，由 Go 运行时调度
	DispatcherGoroutine DispatcherType = "goroutine"
	// DispatcherPinned 每个 Actor 独占一个绑定 OS 线程的 goroutine
	DispatcherPinned DispatcherType = "pinned"
	// DispatcherCallingThread 在调用方 goroutine 中同步执行，主要用于测试
	DispatcherCallingThread DispatcherType = "calling-thread"
	// DispatcherBalancing 同一调度器下的 Actor 共享一个队列，空闲者取活
	// 只能作为路由池 routee 的调度器，不能作为路由器自身的调度器
	DispatcherBalancing DispatcherType = "balancing"
)

// DispatcherConfig 调度器配置
type DispatcherConfig struct {
	Type DispatcherType
	// Workers shared/balancing 调度器的 goroutine 数，默认 GOMAXPROCS，至少 minWorkers
	Workers int
	// Throughput 每次激活最多处理的消息数，默认 DefaultThroughput
	Throughput int
	// ThroughputDeadline 每次激活的时间预算
	ThroughputDeadline time.Duration
}

// Validate 校验配置
func (c DispatcherConfig) Validate() error {
	switch c.Type {
	case DispatcherShared, DispatcherGoroutine, DispatcherPinned, DispatcherCallingThread, DispatcherBalancing:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDispatcherType, c.Type)
	}
	if c.Workers < 0 || c.Throughput < 0 || c.ThroughputDeadline < 0 {
		return fmt.Errorf("dispatcher config must not be negative: %+v", c)
	}
	return nil
}

func (c DispatcherConfig) withDefaults(throughput int) DispatcherConfig {
	if c.Workers == 0 {
		c.Workers = max(runtime.GOMAXPROCS(0), minWorkers)
	}
	if c.Throughput == 0 {
		c.Throughput = throughput
	}
	return c
}

// NewDispatcher 按配置创建调度器
func NewDispatcher(id string, cfg DispatcherConfig, logger *slog.Logger) (Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults(DefaultThroughput)
	base := dispatcherBase{id: id, throughput: cfg.Throughput, deadline: cfg.ThroughputDeadline, logger: logger}

	switch cfg.Type {
	case DispatcherShared:
		return newSharedDispatcher(base, cfg.Workers), nil
	case DispatcherGoroutine:
		return &goroutineDispatcher{dispatcherBase: base}, nil
	case DispatcherPinned:
		return newPinnedDispatcher(base), nil
	case DispatcherCallingThread:
		return &callingThreadDispatcher{dispatcherBase: base}, nil
	case DispatcherBalancing:
		return newBalancingDispatcher(base, cfg.Workers), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDispatcherType, cfg.Type)
}

type dispatcherBase struct {
	id         string
	throughput int
	deadline   time.Duration
	logger     *slog.Logger
}

func (d *dispatcherBase) ID() string                        { return d.id }
func (d *dispatcherBase) Throughput() int                   { return d.throughput }
func (d *dispatcherBase) ThroughputDeadline() time.Duration { return d.deadline }

// safeRun 执行任务，单个任务的 panic 不会影响调度器
func (d *dispatcherBase) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in dispatcher task",
				"dispatcher", d.id,
				"error", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// ============== shared ==============

type sharedDispatcher struct {
	dispatcherBase
	tasks   chan func()
	quit    chan struct{}
	stopped atomic.Bool
	once    sync.Once
	wg      sync.WaitGroup
}

func newSharedDispatcher(base dispatcherBase, workers int) *sharedDispatcher {
	d := &sharedDispatcher{
		dispatcherBase: base,
		tasks:          make(chan func(), workers*64),
		quit:           make(chan struct{}),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *sharedDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			return
		case fn := <-d.tasks:
			d.safeRun(fn)
		}
	}
}

func (d *sharedDispatcher) Schedule(fn func()) {
	if d.stopped.Load() {
		go d.safeRun(fn)
		return
	}
	select {
	case d.tasks <- fn:
		d.recheck()
	default:
		// 任务队列满时不阻塞发送方
		go func() {
			select {
			case d.tasks <- fn:
				d.recheck()
			case <-d.quit:
				d.safeRun(fn)
			}
		}()
	}
}

// recheck 提交与 Shutdown 并发时，任务可能在 drain 之后才进入队列
func (d *sharedDispatcher) recheck() {
	if d.stopped.Load() {
		d.drain()
	}
}

// drain 把队列中剩余的任务交给独立 goroutine，避免邮箱卡在 Scheduled
func (d *sharedDispatcher) drain() {
	for {
		select {
		case fn := <-d.tasks:
			go d.safeRun(fn)
		default:
			return
		}
	}
}

func (d *sharedDispatcher) stop() {
	d.once.Do(func() {
		d.stopped.Store(true)
		close(d.quit)
		d.drain()
	})
}

func (d *sharedDispatcher) Shutdown() {
	d.stop()
	d.wg.Wait()
}

// shutdownWithin 最多等待 timeout，返回工作 goroutine 是否全部退出
// 处理器仍阻塞的 goroutine 不再等待，它们在处理完当前任务后自行退出
func (d *sharedDispatcher) shutdownWithin(timeout time.Duration) bool {
	d.stop()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ============== goroutine ==============

type goroutineDispatcher struct {
	dispatcherBase
}

func (d *goroutineDispatcher) Schedule(fn func()) { go d.safeRun(fn) }
func (d *goroutineDispatcher) Shutdown()          {}

// ============== calling-thread ==============

type callingThreadDispatcher struct {
	dispatcherBase
}

func (d *callingThreadDispatcher) Schedule(fn func()) { d.safeRun(fn) }
func (d *callingThreadDispatcher) Shutdown()          {}

// ============== pinned ==============

type pinnedDispatcher struct {
	dispatcherBase
	tasks chan func()
	quit  chan struct{}
	once  sync.Once
}

func newPinnedDispatcher(base dispatcherBase) *pinnedDispatcher {
	d := &pinnedDispatcher{
		dispatcherBase: base,
		tasks:          make(chan func(), 16),
		quit:           make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *pinnedDispatcher) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		select {
		case <-d.quit:
			return
		case fn := <-d.tasks:
			d.safeRun(fn)
		}
	}
}

func (d *pinnedDispatcher) Schedule(fn func()) {
	select {
	case <-d.quit:
		go d.safeRun(fn)
		return
	default:
	}
	select {
	case d.tasks <- fn:
	default:
		go func() {
			select {
			case d.tasks <- fn:
			case <-d.quit:
				d.safeRun(fn)
			}
		}()
	}
}

// Shutdown 不等待线程退出，Actor 可能正在这个线程上终止自己
func (d *pinnedDispatcher) Shutdown() {
	d.once.Do(func() { close(d.quit) })
}

// ============== balancing ==============

// balancingTeam 共享同一队列的邮箱集合
// 成员列表写时复制，调度时无锁读取
type balancingTeam struct {
	mu      sync.Mutex
	members atomic.Pointer[[]*Mailbox]
}

func (t *balancingTeam) add(m *Mailbox) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var next []*Mailbox
	if cur := t.members.Load(); cur != nil {
		next = append(next, *cur...)
	}
	next = append(next, m)
	t.members.Store(&next)
}

func (t *balancingTeam) remove(m *Mailbox) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.members.Load()
	if cur == nil {
		return
	}
	next := make([]*Mailbox, 0, len(*cur))
	for _, mb := range *cur {
		if mb != m {
			next = append(next, mb)
		}
	}
	t.members.Store(&next)
}

// scheduleOne 优先唤醒 preferred，它忙时找一个空闲成员
func (t *balancingTeam) scheduleOne(preferred *Mailbox) {
	if preferred != nil && !preferred.closed.Load() && preferred.suspended.Load() == 0 && preferred.schedule() {
		return
	}
	cur := t.members.Load()
	if cur == nil {
		return
	}
	for _, mb := range *cur {
		if mb == preferred || mb.closed.Load() || mb.suspended.Load() > 0 {
			continue
		}
		if mb.schedule() {
			return
		}
	}
}

type balancingDispatcher struct {
	*sharedDispatcher
	queue MessageQueue
	team  *balancingTeam
}

func newBalancingDispatcher(base dispatcherBase, workers int) *balancingDispatcher {
	return &balancingDispatcher{
		sharedDispatcher: newSharedDispatcher(base, workers),
		queue:            NewSharedQueue(),
		team:             &balancingTeam{},
	}
}

// newMailbox 创建绑定共享队列的成员邮箱
// 注册消费者之后再 attach，避免在此之前被其他成员唤醒
func (d *balancingDispatcher) newMailbox() *Mailbox {
	m := NewMailbox(d.queue, d)
	m.team = d.team
	return m
}

func (d *balancingDispatcher) attach(m *Mailbox) {
	d.team.add(m)
}

func (d *balancingDispatcher) detach(m *Mailbox) {
	d.team.remove(m)
	// 离开的成员可能错过了唤醒，交给其他成员继续消费
	if d.queue.HasMessages() {
		d.team.scheduleOne(nil)
	}
}

// IsBalancing 判断调度器是否为 balancing 类型
func IsBalancing(d Dispatcher) bool {
	_, ok := d.(*balancingDispatcher)
	return ok
}

// ═══════════════════════════════════════════════════════════════════════════
// 调度器注册表
// ═══════════════════════════════════════════════════════════════════════════

// Dispatchers 调度器注册表
// 按 ID 管理配置和共享实例；pinned 调度器每个 Actor 单独创建
type Dispatchers struct {
	mu         sync.RWMutex
	configs    map[string]DispatcherConfig
	instances  map[string]Dispatcher
	throughput int
	logger     *slog.Logger
}

func newDispatchers(throughput int, logger *slog.Logger) *Dispatchers {
	return &Dispatchers{
		configs:    make(map[string]DispatcherConfig),
		instances:  make(map[string]Dispatcher),
		throughput: throughput,
		logger:     logger,
	}
}

// Register 注册调度器配置，实例在首次使用时创建
func (d *Dispatchers) Register(id string, cfg DispatcherConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("dispatcher %q: %w", id, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.configs[id]; exists {
		return fmt.Errorf("%w: %q", ErrDispatcherExists, id)
	}
	d.configs[id] = cfg
	return nil
}

// Unregister 移除调度器并关闭其实例
func (d *Dispatchers) Unregister(id string) {
	d.mu.Lock()
	inst := d.instances[id]
	delete(d.instances, id)
	delete(d.configs, id)
	d.mu.Unlock()
	if inst != nil {
		inst.Shutdown()
	}
}

// Has 是否已注册
func (d *Dispatchers) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.configs[id]
	return ok
}

// Config 返回调度器配置
func (d *Dispatchers) Config(id string) (DispatcherConfig, error) {
	if id == "" {
		id = DefaultDispatcherID
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.configs[id]
	if !ok {
		return DispatcherConfig{}, fmt.Errorf("%w: %q", ErrUnknownDispatcher, id)
	}
	return cfg, nil
}

// Lookup 获取调度器
// 对 pinned 类型每次返回新实例，owned 为 true，调用方负责关闭
func (d *Dispatchers) Lookup(id string) (disp Dispatcher, owned bool, err error) {
	if id == "" {
		id = DefaultDispatcherID
	}
	cfg, err := d.Config(id)
	if err != nil {
		return nil, false, err
	}
	cfg = cfg.withDefaults(d.throughput)
	if cfg.Type == DispatcherPinned {
		disp, err = NewDispatcher(id, cfg, d.logger)
		return disp, true, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if inst, ok := d.instances[id]; ok {
		return inst, false, nil
	}
	disp, err = NewDispatcher(id, cfg, d.logger)
	if err != nil {
		return nil, false, err
	}
	d.instances[id] = disp
	return disp, false, nil
}

// shutdown 关闭所有实例，等待工作 goroutine 的总时间不超过 timeout
func (d *Dispatchers) shutdown(timeout time.Duration) {
	d.mu.Lock()
	instances := d.instances
	d.instances = make(map[string]Dispatcher)
	d.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for id, inst := range instances {
		bounded, ok := inst.(interface{ shutdownWithin(time.Duration) bool })
		if !ok {
			inst.Shutdown()
			continue
		}
		if !bounded.shutdownWithin(time.Until(deadline)) {
			d.logger.Warn("dispatcher shutdown timeout, workers still busy", "dispatcher", id)
		}
	}
}
