package actor

import (
	"sync/atomic"
	"time"
)

// MailboxStatus 邮箱状态
type MailboxStatus int32

const (
	// MailboxIdle 空闲，等待消息
	MailboxIdle MailboxStatus = iota
	// MailboxScheduled 已提交到调度器，尚未开始执行
	MailboxScheduled
	// MailboxRunning 调度线程正在处理消息
	MailboxRunning
	// MailboxSuspended 已挂起，仍接收消息但不处理用户消息
	MailboxSuspended
	// MailboxClosed 已关闭，新消息转入死信
	MailboxClosed
)

// String 返回状态名称
func (s MailboxStatus) String() string {
	switch s {
	case MailboxIdle:
		return "idle"
	case MailboxScheduled:
		return "scheduled"
	case MailboxRunning:
		return "running"
	case MailboxSuspended:
		return "suspended"
	case MailboxClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MailboxInfo 邮箱状态快照
type MailboxInfo struct {
	Status MailboxStatus
	// Len 队列中等待处理的用户消息数
	Len int
	// Processing 是否正在处理消息
	Processing bool
}

// SystemMessage 系统消息，优先于用户消息处理，挂起状态下也会处理
type SystemMessage interface {
	systemMessage()
}

// MessageInvoker 邮箱的消费者，通常是 Actor 单元
type MessageInvoker interface {
	InvokeSystemMessage(msg SystemMessage)
	InvokeUserMessage(env Envelope)
	// EscalateFailure 处理消息时发生 panic，由调用方决定如何监督
	EscalateFailure(reason any, env Envelope)
}

// Mailbox Actor 邮箱
//
// 状态机：Idle → Scheduled（入队方 CAS 成功）→ Running（调度线程开始执行）
// → Idle（本批处理完）；若仍有消息则重新 CAS 到 Scheduled。
// 只有赢得 CAS 的一方会调用 Dispatcher.Schedule，因此同一时刻最多只有一个
// 调度线程在消费这个邮箱。
type Mailbox struct {
	queue       MessageQueue
	system      *mpscQueue[SystemMessage]
	dispatcher  Dispatcher
	invoker     MessageInvoker
	deadLetters func(Envelope)
	team        *balancingTeam

	status    atomic.Int32
	suspended atomic.Int32
	closed    atomic.Bool

	// front 只由消费者访问，UnstashAll 放回的消息优先于队列
	front []Envelope
}

// NewMailbox 创建邮箱
func NewMailbox(queue MessageQueue, dispatcher Dispatcher) *Mailbox {
	return &Mailbox{
		queue:      queue,
		system:     newMPSCQueue[SystemMessage](),
		dispatcher: dispatcher,
	}
}

// RegisterHandlers 绑定消费者和死信出口
// 必须在第一条消息入队前调用
func (m *Mailbox) RegisterHandlers(invoker MessageInvoker, deadLetters func(Envelope)) {
	m.invoker = invoker
	m.deadLetters = deadLetters
}

// Enqueue 用户消息入队
// 只做一次入队和至多一次调度 CAS，不会阻塞发送方
func (m *Mailbox) Enqueue(env Envelope) error {
	if m.closed.Load() {
		return ErrMailboxClosed
	}
	if err := m.queue.Enqueue(env); err != nil {
		return err
	}
	m.wake()
	return nil
}

// PostSystemMessage 系统消息入队，挂起状态下同样会触发调度
func (m *Mailbox) PostSystemMessage(msg SystemMessage) {
	m.system.push(msg)
	m.schedule()
}

// Suspend 挂起用户消息处理（可重入，需要同样次数的 Resume）
func (m *Mailbox) Suspend() {
	m.suspended.Add(1)
}

// Resume 恢复用户消息处理
func (m *Mailbox) Resume() {
	for {
		n := m.suspended.Load()
		if n <= 0 {
			return
		}
		if m.suspended.CompareAndSwap(n, n-1) {
			if n == 1 && m.queue.HasMessages() {
				m.wake()
			}
			return
		}
	}
}

// Close 关闭邮箱，之后的 Enqueue 返回 ErrMailboxClosed
// 已在队列中的消息会在下一次处理时转入死信
func (m *Mailbox) Close() {
	if m.closed.CompareAndSwap(false, true) {
		m.schedule()
	}
}

// IsClosed 是否已关闭
func (m *Mailbox) IsClosed() bool { return m.closed.Load() }

// IsSuspended 是否已挂起
func (m *Mailbox) IsSuspended() bool { return m.suspended.Load() > 0 }

// Status 返回当前状态
func (m *Mailbox) Status() MailboxStatus {
	if m.closed.Load() {
		return MailboxClosed
	}
	if m.suspended.Load() > 0 {
		return MailboxSuspended
	}
	return MailboxStatus(m.status.Load())
}

// Len 队列中的用户消息数（近似值）
func (m *Mailbox) Len() int { return m.queue.Len() }

// Info 返回邮箱状态快照
func (m *Mailbox) Info() MailboxInfo {
	return MailboxInfo{
		Status:     m.Status(),
		Len:        m.queue.Len(),
		Processing: MailboxStatus(m.status.Load()) == MailboxRunning,
	}
}

// Prepend 把消息放回邮箱头部，保持参数顺序
// 只能在消费者（正在处理消息的 Actor）内部调用
func (m *Mailbox) Prepend(envs []Envelope) {
	if len(envs) == 0 {
		return
	}
	front := make([]Envelope, 0, len(envs)+len(m.front))
	front = append(front, envs...)
	m.front = append(front, m.front...)
}

// seed 在邮箱首次调度前放入第一条消息，不占用队列容量
func (m *Mailbox) seed(env Envelope) {
	m.front = append(m.front, env)
}

func (m *Mailbox) wake() {
	if m.team != nil {
		m.team.scheduleOne(m)
		return
	}
	if m.suspended.Load() == 0 || m.closed.Load() {
		m.schedule()
	}
}

func (m *Mailbox) schedule() bool {
	if m.status.CompareAndSwap(int32(MailboxIdle), int32(MailboxScheduled)) {
		m.dispatcher.Schedule(m.run)
		return true
	}
	return false
}

func (m *Mailbox) run() {
	m.status.Store(int32(MailboxRunning))
	pending := m.process()
	m.status.Store(int32(MailboxIdle))

	if !m.system.empty() {
		m.schedule()
		return
	}
	if pending || m.queue.HasMessages() {
		m.wake()
	}
}

// process 处理一批消息，返回 front 中是否还有消息
func (m *Mailbox) process() bool {
	throughput := m.dispatcher.Throughput()
	deadline := m.dispatcher.ThroughputDeadline()

	var started time.Time
	if deadline > 0 {
		started = time.Now()
	}

	processed := 0
	for {
		if msg, ok := m.system.pop(); ok {
			m.invokeSystem(msg)
			continue
		}
		if m.closed.Load() {
			m.drain()
			return false
		}
		if m.suspended.Load() > 0 {
			break
		}
		if throughput > 0 && processed >= throughput {
			break
		}
		if deadline > 0 && processed > 0 && time.Since(started) >= deadline {
			break
		}
		env, ok := m.dequeue()
		if !ok {
			break
		}
		processed++
		m.invokeUser(env)
	}
	return len(m.front) > 0
}

func (m *Mailbox) dequeue() (Envelope, bool) {
	if len(m.front) > 0 {
		env := m.front[0]
		m.front[0] = Envelope{}
		m.front = m.front[1:]
		return env, true
	}
	return m.queue.Dequeue()
}

// drain 关闭后把剩余消息转入死信
// 共享队列属于整个 balancing 池，只清理自己的 front
func (m *Mailbox) drain() {
	for _, env := range m.front {
		m.deadLetter(env)
	}
	m.front = nil
	if m.team != nil {
		return
	}
	for {
		env, ok := m.queue.Dequeue()
		if !ok {
			return
		}
		m.deadLetter(env)
	}
}

func (m *Mailbox) deadLetter(env Envelope) {
	if m.deadLetters != nil {
		m.deadLetters(env)
	}
}

func (m *Mailbox) invokeUser(env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			m.invoker.EscalateFailure(r, env)
		}
	}()
	m.invoker.InvokeUserMessage(env)
}

func (m *Mailbox) invokeSystem(msg SystemMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.invoker.EscalateFailure(r, Envelope{})
		}
	}()
	m.invoker.InvokeSystemMessage(msg)
}
