package actor

import (
	"context"
	"fmt"
	"time"
)

// Message Actor 消息接口
// 所有 Actor 间传递的消息都必须实现此接口
type Message interface {
	// Kind 返回消息类型标识，用于路由和监控
	Kind() string
}

// Envelope 消息信封：消息本体 + 发送者
// 在 Tell 时创建，投递后不可修改，只会被接收方消费一次
type Envelope struct {
	Message Message
	Sender  *PID
}

// PID (Process ID) Actor 进程标识符
// 类似 Erlang 的 PID，是 Actor 的唯一寻址方式
type PID struct {
	// ID Actor 唯一标识（本地）
	ID string
	// Address 网络地址，本地 Actor 为空
	Address string

	system  *System
	process Process
}

// String 返回 PID 的字符串表示
func (p *PID) String() string {
	if p == nil {
		return "<nil>"
	}
	if p.Address != "" {
		return fmt.Sprintf("%s@%s", p.ID, p.Address)
	}
	return p.ID
}

// Tell 发送消息（fire-and-forget）
func (p *PID) Tell(msg Message) {
	p.TellWithSender(msg, nil)
}

// TellWithSender 携带发送者发送消息
// 投递失败（邮箱已关闭、邮箱已满）的消息进入死信，不会返回给发送方
func (p *PID) TellWithSender(msg Message, sender *PID) {
	if p == nil || p.process == nil {
		return
	}
	env := Envelope{Message: msg, Sender: sender}
	if err := p.process.SendUserMessage(env); err != nil && p.system != nil {
		p.system.PublishDeadLetter(DeadLetter{Envelope: env, Recipient: p, Reason: err})
	}
}

// TrySend 尝试发送消息
// 与 Tell 不同，有界邮箱拒收时把错误返回给调用方，消息不进入死信
func (p *PID) TrySend(msg Message) error {
	if p == nil || p.process == nil {
		return ErrNoProcess
	}
	return p.process.SendUserMessage(Envelope{Message: msg})
}

// Request 发送请求并等待响应（同步调用）
func (p *PID) Request(msg Message, timeout time.Duration) (Message, error) {
	if p == nil || p.system == nil {
		return nil, fmt.Errorf("actor system not available")
	}
	return p.system.Request(p, msg, timeout)
}

// Inspect 返回邮箱状态快照（尽力而为）
func (p *PID) Inspect() MailboxInfo {
	if p == nil || p.process == nil {
		return MailboxInfo{Status: MailboxClosed}
	}
	return p.process.Inspect()
}

func (p *PID) sendSystem(msg SystemMessage) {
	if p == nil || p.process == nil {
		return
	}
	p.process.SendSystemMessage(msg)
}

// Actor Actor 接口
// 实现此接口即可成为 Actor
type Actor interface {
	// Receive 处理接收到的消息
	// 同一个 Actor 的 Receive 永远不会被并发调用
	Receive(ctx *Context, msg Message)
}

// ActorFunc 函数式 Actor，便于快速创建简单 Actor
type ActorFunc func(ctx *Context, msg Message)

// Receive 实现 Actor 接口
func (f ActorFunc) Receive(ctx *Context, msg Message) {
	f(ctx, msg)
}

// BaseActor 基础 Actor 实现
// 提供默认的空实现，方便嵌入
type BaseActor struct{}

// Receive 默认实现，不处理任何消息
func (b *BaseActor) Receive(_ *Context, _ Message) {}

// Context Actor 执行上下文
// 只在 Receive 调用期间有效，不要在其他 goroutine 中保存使用
type Context struct {
	// Self 当前 Actor 的 PID
	Self *PID
	// Sender 消息发送者的 PID（如果有）
	Sender *PID
	// Parent 父 Actor 的 PID（如果有）
	Parent *PID

	system  *System
	cell    *actorCell
	ctx     context.Context
	message Message
}

// Reply 回复消息给发送者
func (c *Context) Reply(msg Message) {
	if c.Sender != nil {
		c.Sender.TellWithSender(msg, c.Self)
	}
}

// Forward 转发当前消息到另一个 Actor，保留原始发送者
func (c *Context) Forward(target *PID) {
	if c.message != nil {
		target.TellWithSender(c.message, c.Sender)
	}
}

// Spawn 创建子 Actor
func (c *Context) Spawn(actor Actor, name string) (*PID, error) {
	return c.system.SpawnChild(c.Self, actor, DefaultProps(name))
}

// SpawnWithProps 使用属性创建子 Actor
func (c *Context) SpawnWithProps(actor Actor, props *Props) (*PID, error) {
	return c.system.SpawnChild(c.Self, actor, props)
}

// Children 返回子 Actor 列表
func (c *Context) Children() []*PID {
	if c.cell == nil {
		return nil
	}
	return c.cell.childrenPIDs()
}

// Stop 停止指定 Actor
func (c *Context) Stop(pid *PID) {
	c.system.Stop(pid)
}

// StopSelf 停止当前 Actor
func (c *Context) StopSelf() {
	c.system.Stop(c.Self)
}

// Context 获取 Go context，Actor 停止时取消
func (c *Context) Context() context.Context {
	return c.ctx
}

// Message 获取当前正在处理的消息
func (c *Context) Message() Message {
	return c.message
}

// System 获取 Actor 系统引用
func (c *Context) System() *System {
	return c.system
}

// Watch 监控另一个 Actor
// 当被监控的 Actor 终止时，会收到 Terminated 消息
func (c *Context) Watch(pid *PID) {
	c.system.Watch(c.Self, pid)
}

// Unwatch 取消监控
func (c *Context) Unwatch(pid *PID) {
	c.system.Unwatch(c.Self, pid)
}

// Stash 暂存当前消息，稍后通过 UnstashAll 放回邮箱头部
func (c *Context) Stash() error {
	if c.cell == nil {
		return ErrNoProcess
	}
	return c.cell.stashMessage(Envelope{Message: c.message, Sender: c.Sender})
}

// UnstashAll 把所有暂存消息按原顺序放回邮箱头部
func (c *Context) UnstashAll() {
	if c.cell != nil {
		c.cell.unstashAll()
	}
}

// Props Actor 属性配置
type Props struct {
	// Name Actor 名称，为空时自动生成
	Name string
	// Mailbox 邮箱配置
	Mailbox MailboxConfig
	// Dispatcher 调度器 ID，为空使用默认调度器
	Dispatcher string
	// SupervisorStrategy 监督策略
	SupervisorStrategy SupervisorStrategy
	// StashCapacity 暂存区容量，0 表示不限制
	StashCapacity int
	// ProcessDecorator 包装 Actor 的投递入口（路由器使用）
	ProcessDecorator func(inner Process) Process
}

// DefaultProps 默认属性
func DefaultProps(name string) *Props {
	return &Props{
		Name:    name,
		Mailbox: MailboxConfig{Type: MailboxUnbounded},
	}
}

// WithMailboxSize 设置有界邮箱大小，超出容量的消息被拒收
func (p *Props) WithMailboxSize(size int) *Props {
	p.Mailbox = MailboxConfig{Type: MailboxBounded, Capacity: size}
	return p
}

// WithPriority 使用优先级邮箱，数值越小越先处理
func (p *Props) WithPriority(fn PriorityFunc) *Props {
	p.Mailbox = MailboxConfig{Type: MailboxPriority, Priority: fn}
	return p
}

// WithDispatcher 设置调度器
func (p *Props) WithDispatcher(id string) *Props {
	p.Dispatcher = id
	return p
}

// WithSupervisor 设置监督策略
func (p *Props) WithSupervisor(strategy SupervisorStrategy) *Props {
	p.SupervisorStrategy = strategy
	return p
}

// WithStashCapacity 设置暂存区容量
func (p *Props) WithStashCapacity(n int) *Props {
	p.StashCapacity = n
	return p
}

func (p *Props) clone() *Props {
	cp := *p
	return &cp
}

// ============== 系统消息 ==============

// Started Actor 启动完成消息
type Started struct{}

// Kind 实现 Message 接口
func (s *Started) Kind() string { return "system.started" }

// Stopping Actor 正在停止消息
type Stopping struct{}

// Kind 实现 Message 接口
func (s *Stopping) Kind() string { return "system.stopping" }

// Stopped Actor 已停止消息
type Stopped struct{}

// Kind 实现 Message 接口
func (s *Stopped) Kind() string { return "system.stopped" }

// Restarting Actor 正在重启消息
type Restarting struct{}

// Kind 实现 Message 接口
func (r *Restarting) Kind() string { return "system.restarting" }

// PoisonPill 毒丸消息，排在已有消息之后，处理到它时优雅停止 Actor
type PoisonPill struct{}

// Kind 实现 Message 接口
func (p *PoisonPill) Kind() string { return "system.poison_pill" }

// Terminated Actor 终止通知
type Terminated struct {
	Who *PID
}

// Kind 实现 Message 接口
func (t *Terminated) Kind() string { return "system.terminated" }

// ============== 请求/响应支持 ==============

// ResponseTimeout 响应超时错误
type ResponseTimeout struct {
	Target  *PID
	Timeout time.Duration
}

// Kind 实现 Message 接口
func (r *ResponseTimeout) Kind() string { return "system.response_timeout" }

// Error 实现 error 接口
func (r *ResponseTimeout) Error() string {
	return fmt.Sprintf("request to %s timed out after %v", r.Target, r.Timeout)
}

// ============== 通用消息类型 ==============

// SimpleMessage 简单消息，用于快速创建消息
type SimpleMessage struct {
	kind    string
	Payload any
}

// NewSimpleMessage 创建简单消息
func NewSimpleMessage(kind string, payload any) *SimpleMessage {
	return &SimpleMessage{kind: kind, Payload: payload}
}

// Kind 实现 Message 接口
func (m *SimpleMessage) Kind() string { return m.kind }
