package routing

import "github.com/lwmacct/251215-go-pkg-actor/pkg/actor"

// ═══════════════════════════════════════════════════════════════════════════
// 路由消息
// ═══════════════════════════════════════════════════════════════════════════

// Broadcast 无论路由逻辑如何，内部消息都发给所有目标
type Broadcast struct {
	Message actor.Message
}

// Kind 实现 Message 接口
func (b *Broadcast) Kind() string { return "routing.broadcast" }

// ConsistentHashable 自带哈希键的消息
type ConsistentHashable interface {
	ConsistentHashKey() any
}

// ConsistentHashableEnvelope 给任意消息附加哈希键，投递时目标收到的是内部消息
type ConsistentHashableEnvelope struct {
	Message actor.Message
	HashKey any
}

// Kind 实现 Message 接口
func (e *ConsistentHashableEnvelope) Kind() string { return "routing.consistent_hashable_envelope" }

// ConsistentHashKey 实现 ConsistentHashable
func (e *ConsistentHashableEnvelope) ConsistentHashKey() any { return e.HashKey }

// ============== 管理消息 ==============
// 以下消息不参与路由，由路由器自身处理

// GetRoutees 查询当前目标，回复 *Routees
type GetRoutees struct{}

// Kind 实现 Message 接口
func (*GetRoutees) Kind() string { return "routing.get_routees" }

// Routees GetRoutees 的回复
type Routees struct {
	Routees []Routee
}

// Kind 实现 Message 接口
func (*Routees) Kind() string { return "routing.routees" }

// AddRoutee 添加目标
type AddRoutee struct {
	Routee Routee
}

// Kind 实现 Message 接口
func (*AddRoutee) Kind() string { return "routing.add_routee" }

// RemoveRoutee 移除目标；Pool 会同时停止被移除的 Actor
type RemoveRoutee struct {
	Routee Routee
}

// Kind 实现 Message 接口
func (*RemoveRoutee) Kind() string { return "routing.remove_routee" }

// AdjustPoolSize 按 Change 增减 Pool 目标数量，只对 Pool 有效
type AdjustPoolSize struct {
	Change int
}

// Kind 实现 Message 接口
func (*AdjustPoolSize) Kind() string { return "routing.adjust_pool_size" }

// resize 触发一次容量调整，只在路由器自身邮箱中处理
type resize struct{}

func (*resize) Kind() string { return "routing.resize" }

// isManagementMessage 管理消息进入路由器自身邮箱，其余消息在发送方直接路由
func isManagementMessage(msg actor.Message) bool {
	switch msg.(type) {
	case *GetRoutees, *AddRoutee, *RemoveRoutee, *AdjustPoolSize, *resize,
		*actor.Terminated, *actor.PoisonPill:
		return true
	}
	return false
}
