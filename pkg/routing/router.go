package routing

import "github.com/lwmacct/251215-go-pkg-actor/pkg/actor"

// Router 路由逻辑 + 目标快照
//
// Router 不可变：AddRoutee、RemoveRoutee、WithRoutees 都返回新实例，
// 并发的 Route 调用总是看到某一个完整的目标集合。
type Router struct {
	logic   RoutingLogic
	routees []Routee

	deadLetters actor.DeadLetterPublisher
	self        *actor.PID
}

// NewRouter 创建 Router
func NewRouter(logic RoutingLogic, routees ...Routee) *Router {
	return &Router{
		logic:   logic,
		routees: append([]Routee(nil), routees...),
	}
}

// WithDeadLetters 设置无目标时的死信出口，self 作为死信的接收方
func (r *Router) WithDeadLetters(pub actor.DeadLetterPublisher, self *actor.PID) *Router {
	cp := *r
	cp.deadLetters = pub
	cp.self = self
	return &cp
}

// Logic 返回路由逻辑
func (r *Router) Logic() RoutingLogic {
	return r.logic
}

// Routees 返回目标快照的副本
func (r *Router) Routees() []Routee {
	return append([]Routee(nil), r.routees...)
}

// Len 返回目标数量
func (r *Router) Len() int {
	return len(r.routees)
}

// WithRoutees 替换全部目标
func (r *Router) WithRoutees(routees ...Routee) *Router {
	cp := *r
	cp.routees = append([]Routee(nil), routees...)
	return &cp
}

// AddRoutee 添加目标，已存在时原样返回
func (r *Router) AddRoutee(routee Routee) *Router {
	if r.contains(routee) {
		return r
	}
	cp := *r
	cp.routees = make([]Routee, 0, len(r.routees)+1)
	cp.routees = append(cp.routees, r.routees...)
	cp.routees = append(cp.routees, routee)
	return &cp
}

// RemoveRoutee 移除目标，按 String() 比较
func (r *Router) RemoveRoutee(routee Routee) *Router {
	if !r.contains(routee) {
		return r
	}
	key := routee.String()
	cp := *r
	cp.routees = make([]Routee, 0, len(r.routees)-1)
	for _, existing := range r.routees {
		if existing.String() != key {
			cp.routees = append(cp.routees, existing)
		}
	}
	return &cp
}

func (r *Router) contains(routee Routee) bool {
	key := routee.String()
	for _, existing := range r.routees {
		if existing.String() == key {
			return true
		}
	}
	return false
}

// Route 选择目标并投递，保留原始发送者
// Broadcast 总是发给所有目标；选不出目标时消息转入死信
func (r *Router) Route(msg actor.Message, sender *actor.PID) {
	if b, ok := msg.(*Broadcast); ok {
		if len(r.routees) == 0 {
			r.noRoutee(b.Message, sender)
			return
		}
		SeveralRoutees(r.routees).Send(b.Message, sender)
		return
	}

	target := r.logic.Select(msg, r.routees)
	if target == NoRoutee {
		r.noRoutee(msg, sender)
		return
	}
	target.Send(unwrap(msg), sender)
}

func (r *Router) noRoutee(msg actor.Message, sender *actor.PID) {
	if r.deadLetters == nil {
		return
	}
	r.deadLetters.PublishDeadLetter(actor.DeadLetter{
		Envelope:  actor.Envelope{Message: msg, Sender: sender},
		Recipient: r.self,
		Reason:    ErrNoRoutee,
	})
}

// unwrap 去掉只用于路由的外层信封
func unwrap(msg actor.Message) actor.Message {
	if env, ok := msg.(*ConsistentHashableEnvelope); ok {
		return env.Message
	}
	return msg
}
