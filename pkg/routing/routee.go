package routing

import (
	"strings"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// Routee 路由目标
type Routee interface {
	// Send 投递消息，保留原始发送者
	Send(msg actor.Message, sender *actor.PID)
	// String 返回唯一标识，用于比较和一致性哈希
	String() string
}

// ============== NoRoutee ==============

type noRoutee struct{}

// NoRoutee 没有可用目标，Router 会把消息转入死信
var NoRoutee Routee = noRoutee{}

func (noRoutee) Send(actor.Message, *actor.PID) {}
func (noRoutee) String() string                 { return "NoRoutee" }

// ============== ActorRefRoutee ==============

// ActorRefRoutee 直接持有 PID 的目标
type ActorRefRoutee struct {
	PID *actor.PID
}

// Send 实现 Routee
func (r ActorRefRoutee) Send(msg actor.Message, sender *actor.PID) {
	r.PID.TellWithSender(msg, sender)
}

func (r ActorRefRoutee) String() string { return "ref:" + r.PID.String() }

// ============== ActorSelectionRoutee ==============

// ActorSelectionRoutee 按名称寻址的目标，每次发送时解析
// 目标不存在时消息转入死信
type ActorSelectionRoutee struct {
	Path   string
	System *actor.System
}

// Send 实现 Routee
func (r ActorSelectionRoutee) Send(msg actor.Message, sender *actor.PID) {
	// 未绑定系统时无法解析，也无处投递死信
	if r.System == nil {
		return
	}
	if pid, ok := r.System.GetActor(r.Path); ok {
		pid.TellWithSender(msg, sender)
		return
	}
	r.System.PublishDeadLetter(actor.DeadLetter{
		Envelope:  actor.Envelope{Message: msg, Sender: sender},
		Recipient: &actor.PID{ID: r.Path},
		Reason:    ErrRouteeNotFound,
	})
}

func (r ActorSelectionRoutee) String() string { return "sel:" + r.Path }

// ============== SeveralRoutees ==============

// SeveralRoutees 一组目标，发送时每个都收到同一条消息
type SeveralRoutees []Routee

// Send 实现 Routee
func (rs SeveralRoutees) Send(msg actor.Message, sender *actor.PID) {
	for _, r := range rs {
		r.Send(msg, sender)
	}
}

func (rs SeveralRoutees) String() string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.String()
	}
	return "several[" + strings.Join(parts, ",") + "]"
}

// refPID 返回目标背后的 PID，非 ActorRefRoutee 返回 nil
func refPID(r Routee) *actor.PID {
	if ref, ok := r.(ActorRefRoutee); ok {
		return ref.PID
	}
	return nil
}
