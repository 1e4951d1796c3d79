package actor

import (
	"sync"
	"sync/atomic"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Actor 统计信息
// ═══════════════════════════════════════════════════════════════════════════

// ActorStats Actor 运行时统计信息快照
type ActorStats struct {
	// 消息计数
	MessagesReceived int64 // 出队交给 Actor 的消息数
	MessagesHandled  int64 // 正常返回的消息数
	Errors           int64 // panic 次数

	// 延迟统计
	TotalLatency   time.Duration
	AverageLatency time.Duration
	MaxLatency     time.Duration

	// 时间戳
	StartedAt     time.Time
	LastMessageAt time.Time

	// LastError 最后一次 panic 的值
	LastError error
}

// ═══════════════════════════════════════════════════════════════════════════
// 原子统计收集器
// ═══════════════════════════════════════════════════════════════════════════

// AtomicStatsCollector 使用原子操作的统计收集器
// 由 Actor 的消费线程写入，任意 goroutine 读取快照
type AtomicStatsCollector struct {
	messagesReceived atomic.Int64
	messagesHandled  atomic.Int64
	errors           atomic.Int64
	totalLatencyNs   atomic.Int64
	maxLatencyNs     atomic.Int64
	lastMessageAt    atomic.Int64

	startedAt time.Time

	// lastError 需要锁保护
	mu        sync.RWMutex
	lastError error
}

// NewAtomicStatsCollector 创建原子统计收集器
func NewAtomicStatsCollector() *AtomicStatsCollector {
	return &AtomicStatsCollector{
		startedAt: time.Now(),
	}
}

// RecordReceived 记录接收
func (c *AtomicStatsCollector) RecordReceived() {
	c.messagesReceived.Add(1)
	c.lastMessageAt.Store(time.Now().UnixNano())
}

// RecordHandled 记录处理完成
func (c *AtomicStatsCollector) RecordHandled(latency time.Duration) {
	c.messagesHandled.Add(1)
	c.totalLatencyNs.Add(int64(latency))
	for {
		cur := c.maxLatencyNs.Load()
		if int64(latency) <= cur || c.maxLatencyNs.CompareAndSwap(cur, int64(latency)) {
			return
		}
	}
}

// RecordError 记录错误
func (c *AtomicStatsCollector) RecordError(err error) {
	c.errors.Add(1)
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()
}

// Stats 获取统计快照
func (c *AtomicStatsCollector) Stats() *ActorStats {
	handled := c.messagesHandled.Load()
	totalLatency := time.Duration(c.totalLatencyNs.Load())

	var avgLatency time.Duration
	if handled > 0 {
		avgLatency = totalLatency / time.Duration(handled)
	}

	var lastMessageAt time.Time
	if ns := c.lastMessageAt.Load(); ns > 0 {
		lastMessageAt = time.Unix(0, ns)
	}

	c.mu.RLock()
	lastError := c.lastError
	c.mu.RUnlock()

	return &ActorStats{
		MessagesReceived: c.messagesReceived.Load(),
		MessagesHandled:  handled,
		Errors:           c.errors.Load(),
		TotalLatency:     totalLatency,
		AverageLatency:   avgLatency,
		MaxLatency:       time.Duration(c.maxLatencyNs.Load()),
		StartedAt:        c.startedAt,
		LastMessageAt:    lastMessageAt,
		LastError:        lastError,
	}
}
