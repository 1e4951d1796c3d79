package actor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============== 测试消息类型 ==============

type PingMessage struct{}

func (p *PingMessage) Kind() string { return "ping" }

type PongMessage struct{}

func (p *PongMessage) Kind() string { return "pong" }

type CountMessage struct {
	Value int
}

func (c *CountMessage) Kind() string { return "count" }

type EchoMessage struct {
	Text string
}

func (e *EchoMessage) Kind() string { return "echo" }

type PanicMessage struct{}

func (p *PanicMessage) Kind() string { return "panic" }

// ============== 测试 Actor ==============

type EchoActor struct {
	BaseActor
	received []Message
	mu       sync.Mutex
}

func (a *EchoActor) Receive(ctx *Context, msg Message) {
	a.mu.Lock()
	a.received = append(a.received, msg)
	a.mu.Unlock()

	// 如果有发送者，回复消息
	if ctx.Sender != nil {
		ctx.Reply(msg)
	}
}

func (a *EchoActor) ReceivedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.received)
}

func (a *EchoActor) Received() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.received...)
}

type CounterActor struct {
	BaseActor
	count int32
}

func (a *CounterActor) Receive(_ *Context, msg Message) {
	switch msg.(type) {
	case *CountMessage:
		atomic.AddInt32(&a.count, 1)
	case *Started:
		// 忽略启动消息
	}
}

func (a *CounterActor) Count() int32 {
	return atomic.LoadInt32(&a.count)
}

type RequestResponseActor struct {
	BaseActor
}

func (a *RequestResponseActor) Receive(ctx *Context, msg Message) {
	switch m := msg.(type) {
	case *PingMessage:
		ctx.Reply(&PongMessage{})
	case *EchoMessage:
		ctx.Reply(&EchoMessage{Text: "Echo: " + m.Text})
	}
}

type PanicActor struct {
	BaseActor
	panicCount int32
	started    int32
	handled    int32
}

func (a *PanicActor) Receive(_ *Context, msg Message) {
	switch msg.(type) {
	case *Started:
		atomic.AddInt32(&a.started, 1)
	case *PanicMessage:
		atomic.AddInt32(&a.panicCount, 1)
		panic("intentional panic")
	case *CountMessage:
		atomic.AddInt32(&a.handled, 1)
	}
}

// ============== 测试辅助 ==============

func quietConfig() *SystemConfig {
	cfg := DefaultSystemConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.EnableDeadLetterLogging = false
	return cfg
}

func newTestSystem(t *testing.T) *System {
	t.Helper()
	sys, err := NewSystemWithConfig("test", quietConfig())
	require.NoError(t, err)
	t.Cleanup(sys.Shutdown)
	return sys
}

func mustSpawn(t *testing.T, sys *System, a Actor, name string) *PID {
	t.Helper()
	pid, err := sys.Spawn(a, name)
	require.NoError(t, err)
	return pid
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// ============== 测试用例 ==============

func TestNewSystem(t *testing.T) {
	sys := NewSystem("test")
	require.NotNil(t, sys)
	assert.Equal(t, "test", sys.Name())
	assert.True(t, sys.IsRunning())
	assert.True(t, sys.Dispatchers().Has(DefaultDispatcherID))

	sys.Shutdown()
	assert.False(t, sys.IsRunning())

	_, err := sys.Spawn(&EchoActor{}, "late")
	assert.ErrorIs(t, err, ErrSystemStopped)
}

func TestNewSystemWithInvalidDispatcher(t *testing.T) {
	cfg := quietConfig()
	cfg.Dispatchers = map[string]DispatcherConfig{"bad": {Type: "fork-join"}}

	_, err := NewSystemWithConfig("test", cfg)
	assert.ErrorIs(t, err, ErrUnknownDispatcherType)
}

func TestSpawnActor(t *testing.T) {
	sys := newTestSystem(t)

	actor := &EchoActor{}
	pid := mustSpawn(t, sys, actor, "echo")
	assert.Equal(t, "echo", pid.ID)

	// Started 是第一条消息
	require.Eventually(t, func() bool { return actor.ReceivedCount() == 1 }, waitFor, tick)
	assert.IsType(t, &Started{}, actor.Received()[0])
}

func TestSpawnGeneratesName(t *testing.T) {
	sys := newTestSystem(t)

	pid := mustSpawn(t, sys, &EchoActor{}, "")
	assert.NotEmpty(t, pid.ID)
	assert.Equal(t, byte('$'), pid.ID[0])
}

func TestSendMessage(t *testing.T) {
	sys := newTestSystem(t)

	actor := &CounterActor{}
	pid := mustSpawn(t, sys, actor, "counter")

	for i := 0; i < 10; i++ {
		pid.Tell(&CountMessage{Value: i})
	}

	require.Eventually(t, func() bool { return actor.Count() == 10 }, waitFor, tick)
}

func TestTrySend(t *testing.T) {
	sys := newTestSystem(t)

	actor := &EchoActor{}
	pid := mustSpawn(t, sys, actor, "echo")

	assert.NoError(t, pid.TrySend(&PingMessage{}))
	require.Eventually(t, func() bool { return actor.ReceivedCount() == 2 }, waitFor, tick)

	require.NoError(t, sys.StopGracefully(pid, time.Second))
	assert.ErrorIs(t, pid.TrySend(&PingMessage{}), ErrMailboxClosed)
}

func TestTrySendNilPID(t *testing.T) {
	var pid *PID
	assert.ErrorIs(t, pid.TrySend(&PingMessage{}), ErrNoProcess)
}

func TestRequestResponse(t *testing.T) {
	sys := newTestSystem(t)
	pid := mustSpawn(t, sys, &RequestResponseActor{}, "responder")

	resp, err := pid.Request(&PingMessage{}, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &PongMessage{}, resp)
}

func TestRequestResponseWithPayload(t *testing.T) {
	sys := newTestSystem(t)
	pid := mustSpawn(t, sys, &RequestResponseActor{}, "responder")

	resp, err := pid.Request(&EchoMessage{Text: "Hello"}, time.Second)
	require.NoError(t, err)

	echoResp, ok := resp.(*EchoMessage)
	require.True(t, ok)
	assert.Equal(t, "Echo: Hello", echoResp.Text)
}

func TestRequestTimeout(t *testing.T) {
	sys := newTestSystem(t)

	// Actor 不回复消息
	pid := mustSpawn(t, sys, &CounterActor{}, "silent")

	_, err := pid.Request(&PingMessage{}, 50*time.Millisecond)
	require.Error(t, err)

	var timeout *ResponseTimeout
	assert.ErrorAs(t, err, &timeout)
}

func TestAsk(t *testing.T) {
	sys := newTestSystem(t)
	pid := mustSpawn(t, sys, &RequestResponseActor{}, "responder")

	pong, err := Ask[*PongMessage](pid, &PingMessage{}, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, pong)

	_, err = Ask[*PongMessage](pid, &EchoMessage{Text: "x"}, time.Second)
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestBroadcast(t *testing.T) {
	sys := newTestSystem(t)

	actors := make([]*CounterActor, 5)
	for i := 0; i < 5; i++ {
		actors[i] = &CounterActor{}
		mustSpawn(t, sys, actors[i], "counter-"+string(rune('a'+i)))
	}

	sys.Broadcast(&CountMessage{Value: 1})

	for i, actor := range actors {
		require.Eventually(t, func() bool { return actor.Count() == 1 }, waitFor, tick, "actor %d should have received message", i)
	}
}

func TestBroadcastWithFilter(t *testing.T) {
	sys := newTestSystem(t)

	actorA := &CounterActor{}
	actorB := &CounterActor{}
	actorC := &CounterActor{}

	mustSpawn(t, sys, actorA, "counter-a")
	mustSpawn(t, sys, actorB, "counter-b")
	mustSpawn(t, sys, actorC, "other-c")

	// 只广播给 counter-* Actor
	sys.BroadcastWithFilter(&CountMessage{Value: 1}, func(pid *PID) bool {
		return len(pid.ID) > 7 && pid.ID[:7] == "counter"
	})

	require.Eventually(t, func() bool { return actorA.Count() == 1 && actorB.Count() == 1 }, waitFor, tick)
	assert.Equal(t, int32(0), actorC.Count()) // 被过滤
}

func TestActorFunc(t *testing.T) {
	sys := newTestSystem(t)

	var received atomic.Int32
	pid := mustSpawn(t, sys, ActorFunc(func(_ *Context, msg Message) {
		if _, ok := msg.(*PingMessage); ok {
			received.Add(1)
		}
	}), "func-actor")

	pid.Tell(&PingMessage{})
	pid.Tell(&PingMessage{})
	pid.Tell(&PingMessage{})

	require.Eventually(t, func() bool { return received.Load() == 3 }, waitFor, tick)
}

func TestStopActor(t *testing.T) {
	sys := newTestSystem(t)

	var stopping, stopped atomic.Bool
	pid := mustSpawn(t, sys, ActorFunc(func(_ *Context, msg Message) {
		switch msg.(type) {
		case *Stopping:
			stopping.Store(true)
		case *Stopped:
			stopped.Store(true)
		}
	}), "echo")

	sys.Stop(pid)

	require.Eventually(t, func() bool {
		_, ok := sys.GetActor("echo")
		return !ok
	}, waitFor, tick)
	assert.True(t, stopping.Load())
	assert.True(t, stopped.Load())
	assert.Equal(t, MailboxClosed, sys.Inspect(pid).Status)
}

func TestStopGracefully(t *testing.T) {
	sys := newTestSystem(t)
	pid := mustSpawn(t, sys, &EchoActor{}, "echo")

	require.NoError(t, sys.StopGracefully(pid, time.Second))

	_, ok := sys.GetActor("echo")
	assert.False(t, ok)

	// 名称释放后可以复用
	_, err := sys.Spawn(&EchoActor{}, "echo")
	assert.NoError(t, err)
}

func TestPoisonPillProcessesQueuedMessages(t *testing.T) {
	sys := newTestSystem(t)

	release := make(chan struct{})
	var count atomic.Int32
	pid := mustSpawn(t, sys, ActorFunc(func(_ *Context, msg Message) {
		switch msg.(type) {
		case *PingMessage:
			<-release
		case *CountMessage:
			count.Add(1)
		}
	}), "worker")

	pid.Tell(&PingMessage{})
	for i := 0; i < 5; i++ {
		pid.Tell(&CountMessage{})
	}
	pid.Tell(&PoisonPill{})
	close(release)

	require.Eventually(t, func() bool {
		_, ok := sys.GetActor("worker")
		return !ok
	}, waitFor, tick)
	assert.Equal(t, int32(5), count.Load())
}

func TestStopSendsQueuedMessagesToDeadLetters(t *testing.T) {
	cfg := quietConfig()
	var dead atomic.Int32
	cfg.OnDeadLetter = func(dl DeadLetter) {
		if _, ok := dl.Envelope.Message.(*CountMessage); ok {
			dead.Add(1)
		}
	}
	sys, err := NewSystemWithConfig("test", cfg)
	require.NoError(t, err)
	defer sys.Shutdown()

	release := make(chan struct{})
	var handled atomic.Int32
	pid, err := sys.Spawn(ActorFunc(func(_ *Context, msg Message) {
		switch msg.(type) {
		case *PingMessage:
			<-release
		case *CountMessage:
			handled.Add(1)
		}
	}), "worker")
	require.NoError(t, err)

	pid.Tell(&PingMessage{})
	for i := 0; i < 3; i++ {
		pid.Tell(&CountMessage{})
	}
	sys.Stop(pid)
	close(release)

	require.Eventually(t, func() bool { return dead.Load() == 3 }, waitFor, tick)
	assert.Equal(t, int32(0), handled.Load())

	// 停止后发送的消息同样进入死信
	pid.Tell(&CountMessage{})
	require.Eventually(t, func() bool { return dead.Load() == 4 }, waitFor, tick)
	assert.GreaterOrEqual(t, sys.Stats().DeadLetters, int64(4))
}

func TestListActors(t *testing.T) {
	sys := newTestSystem(t)

	mustSpawn(t, sys, &EchoActor{}, "actor-1")
	mustSpawn(t, sys, &EchoActor{}, "actor-2")
	mustSpawn(t, sys, &EchoActor{}, "actor-3")

	assert.Len(t, sys.ListActors(), 3)
	assert.Equal(t, 3, sys.Count())
}

func TestStats(t *testing.T) {
	sys := newTestSystem(t)

	actor := &CounterActor{}
	pid := mustSpawn(t, sys, actor, "counter")

	for i := 0; i < 100; i++ {
		pid.Tell(&CountMessage{Value: i})
	}

	require.Eventually(t, func() bool { return actor.Count() == 100 }, waitFor, tick)

	stats := sys.Stats()
	assert.Equal(t, int64(1), stats.TotalActors)
	assert.GreaterOrEqual(t, stats.TotalMessages, int64(100))

	require.Eventually(t, func() bool {
		as, ok := sys.ActorStats(pid)
		return ok && as.MessagesHandled == 101 // 含 Started
	}, waitFor, tick)
}

func TestSimpleMessage(t *testing.T) {
	msg := NewSimpleMessage("test.event", map[string]string{"key": "value"})
	assert.Equal(t, "test.event", msg.Kind())
	assert.Equal(t, map[string]string{"key": "value"}, msg.Payload)
}

func TestPIDString(t *testing.T) {
	pid := &PID{ID: "test-actor"}
	assert.Equal(t, "test-actor", pid.String())

	pid2 := &PID{ID: "remote-actor", Address: "localhost:8080"}
	assert.Equal(t, "remote-actor@localhost:8080", pid2.String())

	var nilPID *PID
	assert.Equal(t, "<nil>", nilPID.String())
}

func TestSpawnDuplicate(t *testing.T) {
	sys := newTestSystem(t)

	mustSpawn(t, sys, &EchoActor{}, "echo")
	_, err := sys.Spawn(&EchoActor{}, "echo") // 重复名称

	assert.ErrorIs(t, err, ErrActorExists)
	assert.Equal(t, 1, sys.Count())
}

// ============== 子 Actor 与监控 ==============

func TestChildrenStopWithParent(t *testing.T) {
	sys := newTestSystem(t)

	childReady := make(chan *PID, 1)
	parent := mustSpawn(t, sys, ActorFunc(func(ctx *Context, msg Message) {
		if _, ok := msg.(*Started); ok {
			child, err := ctx.Spawn(&EchoActor{}, "child")
			if err == nil {
				childReady <- child
			}
		}
	}), "parent")

	var child *PID
	select {
	case child = <-childReady:
	case <-time.After(waitFor):
		t.Fatal("child not spawned")
	}
	assert.Equal(t, 2, sys.Count())

	require.NoError(t, sys.StopGracefully(parent, time.Second))
	require.Eventually(t, func() bool {
		_, ok := sys.GetActor(child.ID)
		return !ok
	}, waitFor, tick)
}

func TestWatchReceivesTerminated(t *testing.T) {
	sys := newTestSystem(t)

	target := mustSpawn(t, sys, &EchoActor{}, "target")

	terminated := make(chan *PID, 2)
	watching := make(chan struct{})
	mustSpawn(t, sys, ActorFunc(func(ctx *Context, msg Message) {
		switch m := msg.(type) {
		case *Started:
			ctx.Watch(target)
			close(watching)
		case *Terminated:
			terminated <- m.Who
		}
	}), "watcher")

	<-watching
	sys.Stop(target)

	select {
	case who := <-terminated:
		assert.Equal(t, "target", who.ID)
	case <-time.After(waitFor):
		t.Fatal("Terminated not received")
	}
}

func TestWatchStoppedActor(t *testing.T) {
	sys := newTestSystem(t)

	target := mustSpawn(t, sys, &EchoActor{}, "target")
	require.NoError(t, sys.StopGracefully(target, time.Second))

	terminated := make(chan struct{}, 1)
	watcher := mustSpawn(t, sys, ActorFunc(func(_ *Context, msg Message) {
		if _, ok := msg.(*Terminated); ok {
			terminated <- struct{}{}
		}
	}), "watcher")

	sys.Watch(watcher, target)

	select {
	case <-terminated:
	case <-time.After(waitFor):
		t.Fatal("Terminated not received for already stopped actor")
	}
}

// ============== 暂存 ==============

type openMessage struct{}

func (*openMessage) Kind() string { return "open" }

func TestStashAndUnstashAll(t *testing.T) {
	sys := newTestSystem(t)

	var (
		mu    sync.Mutex
		order []int
	)
	open := false
	pid := mustSpawn(t, sys, ActorFunc(func(ctx *Context, msg Message) {
		switch m := msg.(type) {
		case *openMessage:
			open = true
			ctx.UnstashAll()
		case *CountMessage:
			if !open {
				assert.NoError(t, ctx.Stash())
				return
			}
			mu.Lock()
			order = append(order, m.Value)
			mu.Unlock()
		}
	}), "stasher")

	pid.Tell(&CountMessage{Value: 1})
	pid.Tell(&CountMessage{Value: 2})
	pid.Tell(&openMessage{})
	pid.Tell(&CountMessage{Value: 3})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestStashOverflow(t *testing.T) {
	sys := newTestSystem(t)

	errs := make(chan error, 3)
	pid, err := sys.SpawnWithProps(ActorFunc(func(ctx *Context, msg Message) {
		if _, ok := msg.(*CountMessage); ok {
			errs <- ctx.Stash()
		}
	}), DefaultProps("stasher").WithStashCapacity(2))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		pid.Tell(&CountMessage{Value: i})
	}

	assert.NoError(t, <-errs)
	assert.NoError(t, <-errs)
	assert.ErrorIs(t, <-errs, ErrStashOverflow)
}

// ============== 监督 ==============

func TestSupervisorRestart(t *testing.T) {
	sys := newTestSystem(t)

	actor := &PanicActor{}
	pid, err := sys.SpawnWithProps(actor, DefaultProps("panicky").
		WithSupervisor(NewOneForOneStrategy(3, time.Minute, DefaultDecider)))
	require.NoError(t, err)

	pid.Tell(&PanicMessage{})
	pid.Tell(&CountMessage{})

	// 重启后收到第二次 Started，后续消息继续处理
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&actor.started) == 2 && atomic.LoadInt32(&actor.handled) == 1
	}, waitFor, tick)

	stats, ok := sys.ActorStats(pid)
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestSupervisorResume(t *testing.T) {
	sys := newTestSystem(t)

	actor := &PanicActor{}
	pid, err := sys.SpawnWithProps(actor, DefaultProps("panicky").
		WithSupervisor(NewOneForOneStrategy(3, time.Minute, ResumingDecider)))
	require.NoError(t, err)

	pid.Tell(&PanicMessage{})
	pid.Tell(&CountMessage{})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&actor.handled) == 1 }, waitFor, tick)
	assert.Equal(t, int32(1), atomic.LoadInt32(&actor.started))
}

func TestSupervisorStop(t *testing.T) {
	sys := newTestSystem(t)

	pid, err := sys.SpawnWithProps(&PanicActor{}, DefaultProps("panicky").WithSupervisor(StrictSupervisorStrategy()))
	require.NoError(t, err)

	pid.Tell(&PanicMessage{})

	require.Eventually(t, func() bool {
		_, ok := sys.GetActor("panicky")
		return !ok
	}, waitFor, tick)
}

func TestSupervisorDelayedRestart(t *testing.T) {
	sys := newTestSystem(t)

	actor := &PanicActor{}
	strategy := NewExponentialBackoffStrategy(30*time.Millisecond, time.Second, 3, DefaultDecider)
	pid, err := sys.SpawnWithProps(actor, DefaultProps("backoff").WithSupervisor(strategy))
	require.NoError(t, err)

	pid.Tell(&PanicMessage{})
	pid.Tell(&CountMessage{})

	// 延迟期间邮箱保持挂起
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&actor.handled))
	assert.Equal(t, MailboxSuspended, pid.Inspect().Status)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&actor.started) == 2 && atomic.LoadInt32(&actor.handled) == 1
	}, waitFor, tick)
}

func TestPanicHandler(t *testing.T) {
	cfg := quietConfig()
	panics := make(chan any, 1)
	cfg.PanicHandler = func(_ *PID, _ Message, err any) { panics <- err }
	sys, err := NewSystemWithConfig("test", cfg)
	require.NoError(t, err)
	defer sys.Shutdown()

	pid, err := sys.Spawn(&PanicActor{}, "panicky")
	require.NoError(t, err)
	pid.Tell(&PanicMessage{})

	select {
	case r := <-panics:
		assert.Equal(t, "intentional panic", r)
	case <-time.After(waitFor):
		t.Fatal("panic handler not called")
	}
}

func TestOneForOneStrategy(t *testing.T) {
	strategy := NewOneForOneStrategy(3, time.Minute, DefaultDecider)

	// 前3次应该返回 Restart
	for i := 0; i < 3; i++ {
		result := strategy.HandleFailure(nil, nil, nil, "error")
		assert.Equal(t, DirectiveRestart, result)
	}

	// 第4次应该返回 Stop
	result := strategy.HandleFailure(nil, nil, nil, "error")
	assert.Equal(t, DirectiveStop, result)
}

func TestExponentialBackoffStrategy(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(
		100*time.Millisecond,
		1*time.Second,
		3,
		DefaultDecider,
	)

	delays := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for _, want := range delays {
		result := strategy.HandleFailure(nil, nil, nil, "error")
		dwd, ok := result.(DirectiveWithDelay)
		require.True(t, ok)
		assert.Equal(t, DirectiveRestart, dwd.Directive)
		assert.Equal(t, want, dwd.Delay)
	}

	// 第四次应该返回 Stop
	assert.Equal(t, DirectiveStop, strategy.HandleFailure(nil, nil, nil, "error"))

	strategy.Reset()
	dwd, ok := strategy.HandleFailure(nil, nil, nil, "error").(DirectiveWithDelay)
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, dwd.Delay)
}

func TestCompositeStrategy(t *testing.T) {
	errFatal := errors.New("fatal")
	composite := NewCompositeStrategy(NewOneForOneStrategy(10, time.Minute, ResumingDecider))
	composite.RegisterStrategy(errFatal, StrictSupervisorStrategy())

	assert.Equal(t, DirectiveStop, composite.HandleFailure(nil, nil, nil, errFatal))
	assert.Equal(t, DirectiveResume, composite.HandleFailure(nil, nil, nil, errors.New("other")))
	assert.Equal(t, DirectiveResume, composite.HandleFailure(nil, nil, nil, "not an error"))
}

func TestDefaultDeciders(t *testing.T) {
	assert.Equal(t, DirectiveRestart, DefaultDecider("error"))
	assert.Equal(t, DirectiveStop, StoppingDecider("error"))
	assert.Equal(t, DirectiveEscalate, EscalatingDecider("error"))
	assert.Equal(t, DirectiveResume, ResumingDecider("error"))
}

func TestDirectiveString(t *testing.T) {
	assert.Equal(t, "Resume", DirectiveResume.String())
	assert.Equal(t, "Restart", DirectiveRestart.String())
	assert.Equal(t, "Stop", DirectiveStop.String())
	assert.Equal(t, "Escalate", DirectiveEscalate.String())
	assert.Equal(t, "RestartAfter", DirectiveRestartAfter.String())
}

func TestSupervisorActorSpawnsChildren(t *testing.T) {
	sys := newTestSystem(t)

	sup := NewSupervisorActor(&SupervisorConfig{
		Strategy: DefaultSupervisorStrategy(),
		Children: []ChildSpec{
			{Name: "child-a", Factory: func() Actor { return &EchoActor{} }},
			{Name: "child-b", Factory: func() Actor { return &EchoActor{} }},
		},
	})
	pid := mustSpawn(t, sys, sup, "supervisor")

	require.Eventually(t, func() bool { return sys.Count() == 3 }, waitFor, tick)

	require.NoError(t, sys.StopGracefully(pid, time.Second))
	require.Eventually(t, func() bool { return sys.Count() == 0 }, waitFor, tick)
}

// ============== 并发测试 ==============

func TestConcurrentSend(t *testing.T) {
	sys := newTestSystem(t)

	actor := &CounterActor{}
	pid := mustSpawn(t, sys, actor, "counter")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pid.Tell(&CountMessage{Value: 1})
		}()
	}

	wg.Wait()
	require.Eventually(t, func() bool { return actor.Count() == 100 }, waitFor, tick)
}

// Receive 中使用非原子计数，并发执行会丢失更新（-race 下直接报错）
func TestReceiveNeverRunsConcurrently(t *testing.T) {
	sys := newTestSystem(t)

	var (
		inFlight atomic.Int32
		overlap  atomic.Bool
		total    int
		done     = make(chan struct{})
	)
	const producers, perProducer = 8, 500

	pid := mustSpawn(t, sys, ActorFunc(func(_ *Context, msg Message) {
		if _, ok := msg.(*CountMessage); !ok {
			return
		}
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		total++
		if total == producers*perProducer {
			close(done)
		}
		inFlight.Add(-1)
	}), "serial")

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				pid.Tell(&CountMessage{Value: i})
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("not all messages delivered")
	}
	assert.False(t, overlap.Load())
}

func TestConcurrentSpawn(t *testing.T) {
	sys := newTestSystem(t)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			// 名称只有 10 种，重复的创建会失败
			if _, err := sys.Spawn(&EchoActor{}, "actor-"+string(rune('0'+idx%10))); err == nil {
				success.Add(1)
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, int32(10), success.Load())
	assert.Equal(t, 10, sys.Count())
}

func TestSpawnDeliversStartedBeforeConcurrentTells(t *testing.T) {
	sys := newTestSystem(t)

	const actors = 200
	var (
		early   atomic.Int32
		started atomic.Int32
	)
	newActor := func() Actor {
		var seen bool
		return ActorFunc(func(_ *Context, msg Message) {
			switch msg.(type) {
			case *Started:
				seen = true
				started.Add(1)
			case *PingMessage:
				if !seen {
					early.Add(1)
				}
			}
		})
	}

	stop := make(chan struct{})
	var senders sync.WaitGroup
	for p := 0; p < 4; p++ {
		senders.Add(1)
		go func() {
			defer senders.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for i := 0; i < actors; i++ {
					if pid, ok := sys.GetActor(fmt.Sprintf("racer-%d", i)); ok {
						pid.Tell(&PingMessage{})
					}
				}
			}
		}()
	}

	for i := 0; i < actors; i++ {
		mustSpawn(t, sys, newActor(), fmt.Sprintf("racer-%d", i))
	}
	close(stop)
	senders.Wait()

	require.Eventually(t, func() bool { return started.Load() == actors }, waitFor, tick)
	assert.Zero(t, early.Load())
}

func TestBroadcastRejectedByBoundedMailboxGoesToDeadLetters(t *testing.T) {
	cfg := quietConfig()
	var full atomic.Int32
	cfg.OnDeadLetter = func(dl DeadLetter) {
		if errors.Is(dl.Reason, ErrMailboxFull) {
			full.Add(1)
		}
	}
	sys, err := NewSystemWithConfig("test", cfg)
	require.NoError(t, err)
	defer sys.Shutdown()

	release := make(chan struct{})
	defer close(release)
	pid, err := sys.SpawnWithProps(ActorFunc(func(_ *Context, msg Message) {
		if _, ok := msg.(*PingMessage); ok {
			<-release
		}
	}), DefaultProps("tiny").WithMailboxSize(1))
	require.NoError(t, err)

	pid.Tell(&PingMessage{})
	require.Eventually(t, func() bool { return sys.Inspect(pid).Processing }, waitFor, tick)

	// 第一条占满容量，第二条被拒收
	sys.Broadcast(&CountMessage{Value: 1})
	sys.Broadcast(&CountMessage{Value: 2})

	require.Eventually(t, func() bool { return full.Load() == 1 }, waitFor, tick)
}

func TestShutdownWithTimeoutReturnsWhileHandlerBlocked(t *testing.T) {
	sys, err := NewSystemWithConfig("test", quietConfig())
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	pid := mustSpawn(t, sys, ActorFunc(func(_ *Context, msg Message) {
		if _, ok := msg.(*PingMessage); ok {
			<-release
		}
	}), "stuck")

	pid.Tell(&PingMessage{})
	require.Eventually(t, func() bool { return pid.Inspect().Processing }, waitFor, tick)

	done := make(chan struct{})
	go func() {
		sys.ShutdownWithTimeout(100 * time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("ShutdownWithTimeout waited for a blocked handler")
	}
	assert.False(t, sys.IsRunning())
}

func TestBlockedHandlersDoNotStarveDefaultDispatcher(t *testing.T) {
	sys := newTestSystem(t)

	release := make(chan struct{})
	defer close(release)
	blocking := func() Actor {
		return ActorFunc(func(_ *Context, msg Message) {
			if _, ok := msg.(*PingMessage); ok {
				<-release
			}
		})
	}

	// 未指定 Workers 时，至少 minWorkers 个处理器可以同时阻塞
	pids := make([]*PID, minWorkers-1)
	for i := range pids {
		pids[i] = mustSpawn(t, sys, blocking(), fmt.Sprintf("blocked-%d", i))
		pids[i].Tell(&PingMessage{})
	}
	require.Eventually(t, func() bool {
		for _, pid := range pids {
			if !pid.Inspect().Processing {
				return false
			}
		}
		return true
	}, waitFor, tick)

	echo := mustSpawn(t, sys, &EchoActor{}, "echo")
	_, err := Ask[*EchoMessage](echo, &EchoMessage{Text: "hi"}, time.Second)
	assert.NoError(t, err)
}
