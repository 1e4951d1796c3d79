package routing

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// RoutingLogic 路由逻辑
// Select 可能被多个发送方并发调用，routees 是同一次 Route 的快照，不要修改
type RoutingLogic interface {
	Select(msg actor.Message, routees []Routee) Routee
}

// ═══════════════════════════════════════════════════════════════════════════
// Random
// ═══════════════════════════════════════════════════════════════════════════

// RandomRoutingLogic 随机选择
type RandomRoutingLogic struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomRoutingLogic 创建随机路由逻辑
func NewRandomRoutingLogic() *RandomRoutingLogic {
	seed := uint64(time.Now().UnixNano())
	return NewSeededRandomRoutingLogic(seed)
}

// NewSeededRandomRoutingLogic 使用固定种子，便于测试复现
func NewSeededRandomRoutingLogic(seed uint64) *RandomRoutingLogic {
	return &RandomRoutingLogic{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Select 实现 RoutingLogic
func (l *RandomRoutingLogic) Select(_ actor.Message, routees []Routee) Routee {
	if len(routees) == 0 {
		return NoRoutee
	}
	l.mu.Lock()
	i := l.rnd.IntN(len(routees))
	l.mu.Unlock()
	return routees[i]
}

// ═══════════════════════════════════════════════════════════════════════════
// RoundRobin
// ═══════════════════════════════════════════════════════════════════════════

// RoundRobinRoutingLogic 轮询
type RoundRobinRoutingLogic struct {
	next atomic.Uint64
}

// NewRoundRobinRoutingLogic 创建轮询路由逻辑
func NewRoundRobinRoutingLogic() *RoundRobinRoutingLogic {
	return &RoundRobinRoutingLogic{}
}

// Select 实现 RoutingLogic
func (l *RoundRobinRoutingLogic) Select(_ actor.Message, routees []Routee) Routee {
	if len(routees) == 0 {
		return NoRoutee
	}
	n := l.next.Add(1) - 1
	return routees[n%uint64(len(routees))]
}

// ═══════════════════════════════════════════════════════════════════════════
// Broadcast
// ═══════════════════════════════════════════════════════════════════════════

// BroadcastRoutingLogic 发给所有目标
type BroadcastRoutingLogic struct{}

// NewBroadcastRoutingLogic 创建广播路由逻辑
func NewBroadcastRoutingLogic() BroadcastRoutingLogic {
	return BroadcastRoutingLogic{}
}

// Select 实现 RoutingLogic
func (BroadcastRoutingLogic) Select(_ actor.Message, routees []Routee) Routee {
	if len(routees) == 0 {
		return NoRoutee
	}
	return SeveralRoutees(append([]Routee(nil), routees...))
}

// ═══════════════════════════════════════════════════════════════════════════
// SmallestMailbox
// ═══════════════════════════════════════════════════════════════════════════

// SmallestMailboxRoutingLogic 选择最空闲的目标
// 优先空闲且邮箱为空的目标；否则选等待消息最少的，正在处理的目标额外计 1
// 无法检查邮箱的目标（如 ActorSelectionRoutee）排在最后
type SmallestMailboxRoutingLogic struct{}

// NewSmallestMailboxRoutingLogic 创建最小邮箱路由逻辑
func NewSmallestMailboxRoutingLogic() SmallestMailboxRoutingLogic {
	return SmallestMailboxRoutingLogic{}
}

// Select 实现 RoutingLogic
func (SmallestMailboxRoutingLogic) Select(_ actor.Message, routees []Routee) Routee {
	if len(routees) == 0 {
		return NoRoutee
	}

	best := routees[0]
	bestScore := math.MaxInt
	for _, r := range routees {
		pid := refPID(r)
		if pid == nil {
			continue
		}
		info := pid.Inspect()
		if info.Status == actor.MailboxClosed || info.Status == actor.MailboxSuspended {
			continue
		}
		score := info.Len
		if info.Processing {
			score++
		}
		if score == 0 {
			return r
		}
		if score < bestScore {
			best, bestScore = r, score
		}
	}
	return best
}

// ═══════════════════════════════════════════════════════════════════════════
// ConsistentHashing
// ═══════════════════════════════════════════════════════════════════════════

// ConsistentHashMapping 从消息中提取哈希键，ok 为 false 表示没有键
type ConsistentHashMapping func(msg actor.Message) (key any, ok bool)

// ConsistentHashingRoutingLogic 按消息键选择目标，同一个键总是落到同一个目标
//
// 键的来源依次为：ConsistentHashableEnvelope、实现 ConsistentHashable 的消息、
// HashMapping。默认模式为 hash(key) % len(routees)；WithHashRing 启用有界负载哈希环，
// 目标增减时只有少量键迁移。
type ConsistentHashingRoutingLogic struct {
	mapping            ConsistentHashMapping
	ring               bool
	virtualNodesFactor int

	rings atomic.Pointer[hashRing]
}

// ConsistentHashingOption 一致性哈希选项
type ConsistentHashingOption func(*ConsistentHashingRoutingLogic)

// WithHashMapping 设置键提取函数
func WithHashMapping(mapping ConsistentHashMapping) ConsistentHashingOption {
	return func(l *ConsistentHashingRoutingLogic) { l.mapping = mapping }
}

// WithHashRing 启用哈希环模式
func WithHashRing() ConsistentHashingOption {
	return func(l *ConsistentHashingRoutingLogic) { l.ring = true }
}

// WithVirtualNodesFactor 哈希环上每个目标的虚拟节点数
func WithVirtualNodesFactor(n int) ConsistentHashingOption {
	return func(l *ConsistentHashingRoutingLogic) {
		if n > 0 {
			l.virtualNodesFactor = n
		}
	}
}

// NewConsistentHashingRoutingLogic 创建一致性哈希路由逻辑
func NewConsistentHashingRoutingLogic(opts ...ConsistentHashingOption) *ConsistentHashingRoutingLogic {
	l := &ConsistentHashingRoutingLogic{virtualNodesFactor: 10}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Select 实现 RoutingLogic
// 没有可用键时返回 NoRoutee
func (l *ConsistentHashingRoutingLogic) Select(msg actor.Message, routees []Routee) Routee {
	if len(routees) == 0 {
		return NoRoutee
	}
	key, ok := l.hashKey(msg)
	if !ok {
		return NoRoutee
	}
	data := keyBytes(key)
	if l.ring {
		return l.ringFor(routees).locate(data)
	}
	return routees[xxhash.Sum64(data)%uint64(len(routees))]
}

func (l *ConsistentHashingRoutingLogic) hashKey(msg actor.Message) (any, bool) {
	switch m := msg.(type) {
	case *ConsistentHashableEnvelope:
		return m.HashKey, m.HashKey != nil
	case ConsistentHashable:
		key := m.ConsistentHashKey()
		return key, key != nil
	}
	if l.mapping != nil {
		return l.mapping(msg)
	}
	return nil, false
}

func keyBytes(key any) []byte {
	switch k := key.(type) {
	case string:
		return []byte(k)
	case []byte:
		return k
	case fmt.Stringer:
		return []byte(k.String())
	default:
		return []byte(fmt.Sprint(k))
	}
}

// ============== 哈希环 ==============

type xxhasher struct{}

func (xxhasher) Sum64(data []byte) uint64 { return xxhash.Sum64(data) }

type ringMember string

func (m ringMember) String() string { return string(m) }

// hashRing 针对某个目标快照构建的哈希环
type hashRing struct {
	keys    []string
	ring    *consistent.Consistent
	routees map[string]Routee
}

// ringFor 返回与快照匹配的哈希环，目标集合变化时重建
func (l *ConsistentHashingRoutingLogic) ringFor(routees []Routee) *hashRing {
	if cur := l.rings.Load(); cur != nil && cur.matches(routees) {
		return cur
	}

	members := make([]consistent.Member, len(routees))
	h := &hashRing{
		keys:    make([]string, len(routees)),
		routees: make(map[string]Routee, len(routees)),
	}
	for i, r := range routees {
		key := r.String()
		h.keys[i] = key
		h.routees[key] = r
		members[i] = ringMember(key)
	}
	h.ring = consistent.New(members, consistent.Config{
		PartitionCount:    271,
		ReplicationFactor: l.virtualNodesFactor,
		Load:              1.25,
		Hasher:            xxhasher{},
	})
	l.rings.Store(h)
	return h
}

func (h *hashRing) matches(routees []Routee) bool {
	if len(h.keys) != len(routees) {
		return false
	}
	for i, r := range routees {
		if h.keys[i] != r.String() {
			return false
		}
	}
	return true
}

func (h *hashRing) locate(data []byte) Routee {
	m := h.ring.LocateKey(data)
	if m == nil {
		return NoRoutee
	}
	if r, ok := h.routees[m.String()]; ok {
		return r
	}
	return NoRoutee
}
