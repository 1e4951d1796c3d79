package actor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

type actorState int32

const (
	actorStateIdle actorState = iota
	actorStateRunning
	actorStateStopping
	actorStateStopped
	actorStateRestarting
)

// actorCell Actor 单元，包含 Actor 及其运行时状态
// 实现 Process（投递入口）和 MessageInvoker（邮箱消费者）
//
// watchers、stash、restarts 只在邮箱的消费线程中访问，无需加锁
type actorCell struct {
	system *System
	pid    *PID
	actor  Actor
	props  *Props
	parent *PID

	mailbox        *Mailbox
	dispatcher     Dispatcher
	ownsDispatcher bool

	childrenMu sync.Mutex
	children   map[string]*PID

	watchers map[string]*PID
	stash    []Envelope
	restarts int

	supervisor SupervisorStrategy

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32
	stats *AtomicStatsCollector
	done  chan struct{}
}

// ============== Process ==============

func (c *actorCell) SendUserMessage(env Envelope) error {
	if err := c.mailbox.Enqueue(env); err != nil {
		return err
	}
	c.system.totalMessages.Add(1)
	return nil
}

func (c *actorCell) SendSystemMessage(msg SystemMessage) {
	if c.mailbox.IsClosed() {
		if w, ok := msg.(*watch); ok {
			w.watcher.Tell(&Terminated{Who: c.pid})
		}
		return
	}
	c.mailbox.PostSystemMessage(msg)
}

func (c *actorCell) Inspect() MailboxInfo {
	return c.mailbox.Info()
}

// ============== MessageInvoker ==============

func (c *actorCell) InvokeUserMessage(env Envelope) {
	c.stats.RecordReceived()

	if _, ok := env.Message.(*PoisonPill); ok {
		c.terminate()
		return
	}

	start := time.Now()
	c.actor.Receive(c.newContext(env), env.Message)
	c.stats.RecordHandled(time.Since(start))
	c.system.processedMsgs.Add(1)
}

func (c *actorCell) InvokeSystemMessage(msg SystemMessage) {
	switch m := msg.(type) {
	case *suspendMailbox:
		c.mailbox.Suspend()
	case *resumeMailbox:
		c.mailbox.Resume()
	case *terminate:
		c.terminate()
	case *restartActor:
		if c.isStopped() {
			return
		}
		c.restart()
		c.mailbox.Resume()
	case *watch:
		if c.isStopped() {
			m.watcher.Tell(&Terminated{Who: c.pid})
			return
		}
		c.watchers[m.watcher.ID] = m.watcher
	case *unwatch:
		delete(c.watchers, m.watcher.ID)
	}
}

func (c *actorCell) EscalateFailure(reason any, env Envelope) {
	if env.Message == nil {
		c.system.logger.Error("panic while handling system message",
			"actor", c.pid.ID,
			"error", reason,
			"stack", string(debug.Stack()))
		return
	}

	c.stats.RecordError(fmt.Errorf("%v", reason))
	if c.system.config.PanicHandler != nil {
		c.system.config.PanicHandler(c.pid, env.Message, reason)
	} else {
		c.system.logger.Error("panic in actor",
			"actor", c.pid.ID,
			"message", env.Message.Kind(),
			"error", reason,
			"stack", string(debug.Stack()))
	}

	// 监督决策完成前不再处理用户消息
	c.mailbox.Suspend()
	c.system.handleFailure(c, env.Message, reason)
}

// ============== 生命周期 ==============

func (c *actorCell) newContext(env Envelope) *Context {
	return &Context{
		Self:    c.pid,
		Sender:  env.Sender,
		Parent:  c.parent,
		system:  c.system,
		cell:    c,
		ctx:     c.ctx,
		message: env.Message,
	}
}

// safeReceive 投递生命周期消息，panic 只记录日志
func (c *actorCell) safeReceive(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.system.logger.Error("panic in lifecycle handler",
				"actor", c.pid.ID,
				"message", msg.Kind(),
				"error", r)
		}
	}()
	c.actor.Receive(c.newContext(Envelope{}), msg)
}

func (c *actorCell) isStopped() bool {
	s := actorState(c.state.Load())
	return s == actorStateStopping || s == actorStateStopped
}

func (c *actorCell) restart() {
	c.restarts++
	c.state.Store(int32(actorStateRestarting))

	c.safeReceive(&Restarting{})
	c.safeReceive(&Started{})

	c.state.Store(int32(actorStateRunning))
	c.unstashAll()

	c.system.logger.Info("actor restarted", "actor", c.pid.ID, "restarts", c.restarts)
}

// terminate 只在消费线程中调用
// 当前消息已处理完；队列中剩余消息在本轮处理结束前转入死信
func (c *actorCell) terminate() {
	if c.isStopped() {
		return
	}
	c.state.Store(int32(actorStateStopping))
	c.mailbox.Close()

	c.safeReceive(&Stopping{})

	for _, child := range c.childrenPIDs() {
		c.system.Stop(child)
	}

	for _, env := range c.stash {
		c.deadLetter(env)
	}
	c.stash = nil

	c.safeReceive(&Stopped{})
	c.state.Store(int32(actorStateStopped))

	for _, w := range c.watchers {
		w.Tell(&Terminated{Who: c.pid})
	}
	c.watchers = nil

	c.system.unregister(c)
	c.cancel()

	if bd, ok := c.dispatcher.(*balancingDispatcher); ok {
		bd.detach(c.mailbox)
	}
	if c.ownsDispatcher {
		c.dispatcher.Shutdown()
	}

	close(c.done)
	c.system.logger.Debug("actor stopped", "actor", c.pid.ID)
}

func (c *actorCell) deadLetter(env Envelope) {
	c.system.PublishDeadLetter(DeadLetter{Envelope: env, Recipient: c.pid, Reason: ErrMailboxClosed})
}

// ============== 暂存 ==============

func (c *actorCell) stashMessage(env Envelope) error {
	if c.props.StashCapacity > 0 && len(c.stash) >= c.props.StashCapacity {
		return ErrStashOverflow
	}
	c.stash = append(c.stash, env)
	return nil
}

func (c *actorCell) unstashAll() {
	if len(c.stash) == 0 {
		return
	}
	c.mailbox.Prepend(c.stash)
	c.stash = nil
}

// ============== 子 Actor ==============

func (c *actorCell) addChild(pid *PID) {
	c.childrenMu.Lock()
	c.children[pid.ID] = pid
	c.childrenMu.Unlock()
}

func (c *actorCell) removeChild(id string) {
	c.childrenMu.Lock()
	delete(c.children, id)
	c.childrenMu.Unlock()
}

func (c *actorCell) childrenPIDs() []*PID {
	c.childrenMu.Lock()
	defer c.childrenMu.Unlock()
	pids := make([]*PID, 0, len(c.children))
	for _, pid := range c.children {
		pids = append(pids, pid)
	}
	return pids
}
