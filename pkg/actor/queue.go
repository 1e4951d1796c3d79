package actor

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
)

// MessageQueue 邮箱底层消息队列
//
// 并发约定：Enqueue 可被任意数量的生产者并发调用，且永不无限期阻塞；
// Dequeue 同一时刻只会被一个消费者（当前激活邮箱的调度线程）调用。
// HasMessages / Len 只是尽力而为的快照。
type MessageQueue interface {
	Enqueue(env Envelope) error
	Dequeue() (Envelope, bool)
	HasMessages() bool
	Len() int
}

// MailboxType 邮箱类型
type MailboxType string

const (
	// MailboxUnbounded 无界 FIFO 邮箱（默认）
	MailboxUnbounded MailboxType = "unbounded"
	// MailboxBounded 有界 FIFO 邮箱，满时拒收
	MailboxBounded MailboxType = "bounded"
	// MailboxPriority 优先级邮箱
	MailboxPriority MailboxType = "priority"
)

// PriorityFunc 计算消息优先级，数值越小越先处理
// 只在入队时调用一次
type PriorityFunc func(msg Message) int

// MailboxConfig 邮箱配置
type MailboxConfig struct {
	Type     MailboxType
	Capacity int
	Priority PriorityFunc
}

// NewQueue 按配置创建消息队列
func (c MailboxConfig) NewQueue() (MessageQueue, error) {
	switch c.Type {
	case "", MailboxUnbounded:
		return NewUnboundedQueue(), nil
	case MailboxBounded:
		if c.Capacity <= 0 {
			return nil, fmt.Errorf("%w: bounded mailbox capacity must be positive, got %d", ErrInvalidMailbox, c.Capacity)
		}
		return NewBoundedQueue(c.Capacity), nil
	case MailboxPriority:
		if c.Priority == nil {
			return nil, fmt.Errorf("%w: priority mailbox requires a priority function", ErrInvalidMailbox)
		}
		return NewPriorityQueue(c.Priority), nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMailbox, c.Type)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// MPSC 无锁链表
// ═══════════════════════════════════════════════════════════════════════════

type mpscNode[T any] struct {
	next  atomic.Pointer[mpscNode[T]]
	value T
}

// mpscQueue 多生产者单消费者无锁队列
// 生产者只交换 tail，消费者独占 head；始终保留一个哨兵节点
type mpscQueue[T any] struct {
	head  atomic.Pointer[mpscNode[T]]
	tail  atomic.Pointer[mpscNode[T]]
	count atomic.Int64
}

func newMPSCQueue[T any]() *mpscQueue[T] {
	stub := &mpscNode[T]{}
	q := &mpscQueue[T]{}
	q.head.Store(stub)
	q.tail.Store(stub)
	return q
}

func (q *mpscQueue[T]) push(v T) {
	n := &mpscNode[T]{value: v}
	prev := q.tail.Swap(n)
	// tail 交换与链接之间消费者会暂时看到空队列，消息不会丢失
	prev.next.Store(n)
	q.count.Add(1)
}

func (q *mpscQueue[T]) pop() (T, bool) {
	var zero T
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return zero, false
	}
	q.head.Store(next)
	v := next.value
	next.value = zero
	q.count.Add(-1)
	return v, true
}

func (q *mpscQueue[T]) empty() bool {
	return q.head.Load().next.Load() == nil
}

func (q *mpscQueue[T]) len() int {
	if n := q.count.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// ═══════════════════════════════════════════════════════════════════════════
// 无界 FIFO
// ═══════════════════════════════════════════════════════════════════════════

type unboundedQueue struct {
	q *mpscQueue[Envelope]
}

// NewUnboundedQueue 创建无界 FIFO 队列（无锁 MPSC）
func NewUnboundedQueue() MessageQueue {
	return &unboundedQueue{q: newMPSCQueue[Envelope]()}
}

func (u *unboundedQueue) Enqueue(env Envelope) error {
	u.q.push(env)
	return nil
}

func (u *unboundedQueue) Dequeue() (Envelope, bool) { return u.q.pop() }
func (u *unboundedQueue) HasMessages() bool         { return !u.q.empty() }
func (u *unboundedQueue) Len() int                  { return u.q.len() }

// ═══════════════════════════════════════════════════════════════════════════
// 有界 FIFO
// ═══════════════════════════════════════════════════════════════════════════

type boundedQueue struct {
	ch chan Envelope
}

// NewBoundedQueue 创建有界 FIFO 队列
// 队列满时 Enqueue 立即返回 ErrMailboxFull，不阻塞发送方
func NewBoundedQueue(capacity int) MessageQueue {
	return &boundedQueue{ch: make(chan Envelope, capacity)}
}

func (b *boundedQueue) Enqueue(env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	default:
		return ErrMailboxFull
	}
}

func (b *boundedQueue) Dequeue() (Envelope, bool) {
	select {
	case env := <-b.ch:
		return env, true
	default:
		return Envelope{}, false
	}
}

func (b *boundedQueue) HasMessages() bool { return len(b.ch) > 0 }
func (b *boundedQueue) Len() int          { return len(b.ch) }

// ═══════════════════════════════════════════════════════════════════════════
// 优先级队列
// ═══════════════════════════════════════════════════════════════════════════

type priorityItem struct {
	env      Envelope
	priority int
	seq      uint64
}

type priorityHeap []priorityItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x any)   { *h = append(*h, x.(priorityItem)) }
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = priorityItem{}
	*h = old[:n-1]
	return item
}

type priorityQueue struct {
	mu       sync.Mutex
	items    priorityHeap
	seq      uint64
	priority PriorityFunc
	size     atomic.Int64
}

// NewPriorityQueue 创建优先级队列
// 数值小的先出队，优先级相同时按入队顺序
func NewPriorityQueue(fn PriorityFunc) MessageQueue {
	return &priorityQueue{priority: fn}
}

func (p *priorityQueue) Enqueue(env Envelope) error {
	prio := p.priority(env.Message)
	p.mu.Lock()
	p.seq++
	heap.Push(&p.items, priorityItem{env: env, priority: prio, seq: p.seq})
	p.size.Add(1)
	p.mu.Unlock()
	return nil
}

func (p *priorityQueue) Dequeue() (Envelope, bool) {
	p.mu.Lock()
	if len(p.items) == 0 {
		p.mu.Unlock()
		return Envelope{}, false
	}
	item := heap.Pop(&p.items).(priorityItem)
	p.size.Add(-1)
	p.mu.Unlock()
	return item.env, true
}

func (p *priorityQueue) HasMessages() bool { return p.size.Load() > 0 }
func (p *priorityQueue) Len() int          { return int(max(p.size.Load(), 0)) }

// ═══════════════════════════════════════════════════════════════════════════
// 共享队列（balancing 调度器）
// ═══════════════════════════════════════════════════════════════════════════

type sharedQueue struct {
	mu    sync.Mutex
	items []Envelope
	size  atomic.Int64
}

// NewSharedQueue 创建多消费者安全的 FIFO 队列
// balancing 调度器下同一个池的所有邮箱共用它
func NewSharedQueue() MessageQueue {
	return &sharedQueue{}
}

func (s *sharedQueue) Enqueue(env Envelope) error {
	s.mu.Lock()
	s.items = append(s.items, env)
	s.size.Add(1)
	s.mu.Unlock()
	return nil
}

func (s *sharedQueue) Dequeue() (Envelope, bool) {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return Envelope{}, false
	}
	env := s.items[0]
	s.items[0] = Envelope{}
	s.items = s.items[1:]
	s.size.Add(-1)
	s.mu.Unlock()
	return env, true
}

func (s *sharedQueue) HasMessages() bool { return s.size.Load() > 0 }
func (s *sharedQueue) Len() int          { return int(max(s.size.Load(), 0)) }
