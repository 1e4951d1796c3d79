package actor

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDispatcherConfigValidate(t *testing.T) {
	assert.NoError(t, DispatcherConfig{Type: DispatcherShared}.Validate())
	assert.ErrorIs(t, DispatcherConfig{Type: "fork-join"}.Validate(), ErrUnknownDispatcherType)
	assert.Error(t, DispatcherConfig{Type: DispatcherShared, Workers: -1}.Validate())
}

func TestDispatcherTypesRunTasks(t *testing.T) {
	types := []DispatcherType{
		DispatcherShared,
		DispatcherGoroutine,
		DispatcherPinned,
		DispatcherCallingThread,
		DispatcherBalancing,
	}

	for _, typ := range types {
		t.Run(string(typ), func(t *testing.T) {
			d, err := NewDispatcher("test", DispatcherConfig{Type: typ, Workers: 2}, discardLogger)
			require.NoError(t, err)
			defer d.Shutdown()

			assert.Equal(t, "test", d.ID())
			assert.Equal(t, DefaultThroughput, d.Throughput())

			var wg sync.WaitGroup
			var ran atomic.Int32
			for i := 0; i < 100; i++ {
				wg.Add(1)
				d.Schedule(func() {
					defer wg.Done()
					ran.Add(1)
				})
			}
			wg.Wait()
			assert.Equal(t, int32(100), ran.Load())
		})
	}
}

func TestDispatcherSurvivesTaskPanic(t *testing.T) {
	d, err := NewDispatcher("test", DispatcherConfig{Type: DispatcherShared, Workers: 1}, discardLogger)
	require.NoError(t, err)
	defer d.Shutdown()

	d.Schedule(func() { panic("boom") })

	done := make(chan struct{})
	d.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("worker died after panic")
	}
}

func TestSharedDispatcherScheduleAfterShutdown(t *testing.T) {
	d, err := NewDispatcher("test", DispatcherConfig{Type: DispatcherShared, Workers: 1}, discardLogger)
	require.NoError(t, err)
	d.Shutdown()

	done := make(chan struct{})
	d.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("task scheduled after shutdown never ran")
	}
}

func TestSharedDispatcherScheduleDuringShutdown(t *testing.T) {
	for round := 0; round < 50; round++ {
		d, err := NewDispatcher("test", DispatcherConfig{Type: DispatcherShared, Workers: 2}, discardLogger)
		require.NoError(t, err)

		const producers, perProducer = 4, 50
		var ran atomic.Int32
		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					d.Schedule(func() { ran.Add(1) })
				}
			}()
		}
		d.Shutdown()
		wg.Wait()

		require.Eventually(t, func() bool { return ran.Load() == producers*perProducer }, waitFor, tick,
			"round %d: tasks scheduled around shutdown were lost", round)
	}
}

func TestSharedDispatcherShutdownWithin(t *testing.T) {
	d, err := NewDispatcher("test", DispatcherConfig{Type: DispatcherShared, Workers: 1}, discardLogger)
	require.NoError(t, err)
	shared := d.(*sharedDispatcher)

	release := make(chan struct{})
	running := make(chan struct{})
	d.Schedule(func() {
		close(running)
		<-release
	})
	<-running

	start := time.Now()
	assert.False(t, shared.shutdownWithin(50*time.Millisecond))
	assert.Less(t, time.Since(start), waitFor)

	close(release)
	assert.True(t, shared.shutdownWithin(waitFor))
}

func TestDefaultWorkersHaveMinimum(t *testing.T) {
	cfg := DispatcherConfig{Type: DispatcherShared}.withDefaults(DefaultThroughput)
	assert.GreaterOrEqual(t, cfg.Workers, minWorkers)

	cfg = DispatcherConfig{Type: DispatcherShared, Workers: 1}.withDefaults(DefaultThroughput)
	assert.Equal(t, 1, cfg.Workers)
}

func TestDispatchersRegistry(t *testing.T) {
	reg := newDispatchers(DefaultThroughput, discardLogger)
	defer reg.shutdown(waitFor)

	require.NoError(t, reg.Register("shared", DispatcherConfig{Type: DispatcherShared, Workers: 1}))
	require.NoError(t, reg.Register("pinned", DispatcherConfig{Type: DispatcherPinned}))
	assert.ErrorIs(t, reg.Register("shared", DispatcherConfig{Type: DispatcherShared}), ErrDispatcherExists)
	assert.ErrorIs(t, reg.Register("bad", DispatcherConfig{Type: "nope"}), ErrUnknownDispatcherType)

	_, _, err := reg.Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownDispatcher)

	// 共享类型返回同一实例
	d1, owned1, err := reg.Lookup("shared")
	require.NoError(t, err)
	d2, owned2, err := reg.Lookup("shared")
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.False(t, owned1)
	assert.False(t, owned2)

	// pinned 每次新建，由调用方负责关闭
	p1, owned, err := reg.Lookup("pinned")
	require.NoError(t, err)
	assert.True(t, owned)
	p2, _, err := reg.Lookup("pinned")
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)
	p1.Shutdown()
	p2.Shutdown()

	reg.Unregister("shared")
	assert.False(t, reg.Has("shared"))
}

func TestActorsOnEachDispatcherType(t *testing.T) {
	cfg := quietConfig()
	cfg.Dispatchers = map[string]DispatcherConfig{
		"goroutine":      {Type: DispatcherGoroutine},
		"pinned":         {Type: DispatcherPinned},
		"calling-thread": {Type: DispatcherCallingThread},
		"deadline":       {Type: DispatcherShared, Workers: 2, Throughput: 1, ThroughputDeadline: time.Millisecond},
	}
	sys, err := NewSystemWithConfig("test", cfg)
	require.NoError(t, err)
	defer sys.Shutdown()

	for _, id := range []string{DefaultDispatcherID, "goroutine", "pinned", "calling-thread", "deadline"} {
		t.Run(id, func(t *testing.T) {
			actor := &CounterActor{}
			pid, err := sys.SpawnWithProps(actor, DefaultProps("counter-"+id).WithDispatcher(id))
			require.NoError(t, err)

			for i := 0; i < 50; i++ {
				pid.Tell(&CountMessage{Value: i})
			}
			require.Eventually(t, func() bool { return actor.Count() == 50 }, waitFor, tick)
			require.NoError(t, sys.StopGracefully(pid, time.Second))
		})
	}
}

func TestSpawnWithUnknownDispatcher(t *testing.T) {
	sys := newTestSystem(t)

	_, err := sys.SpawnWithProps(&EchoActor{}, DefaultProps("x").WithDispatcher("missing"))
	assert.ErrorIs(t, err, ErrUnknownDispatcher)
	assert.Equal(t, 0, sys.Count())
}

func TestBalancingDispatcherSharesWork(t *testing.T) {
	cfg := quietConfig()
	cfg.Dispatchers = map[string]DispatcherConfig{
		"pool": {Type: DispatcherBalancing, Workers: 4, Throughput: 1},
	}
	sys, err := NewSystemWithConfig("test", cfg)
	require.NoError(t, err)
	defer sys.Shutdown()

	assert.True(t, IsBalancing(mustLookup(t, sys, "pool")))

	var (
		mu      sync.Mutex
		handled = map[string]int{}
		total   atomic.Int32
	)
	worker := func() Actor {
		return ActorFunc(func(ctx *Context, msg Message) {
			if _, ok := msg.(*CountMessage); !ok {
				return
			}
			time.Sleep(time.Millisecond)
			mu.Lock()
			handled[ctx.Self.ID]++
			mu.Unlock()
			total.Add(1)
		})
	}

	var pids []*PID
	for _, name := range []string{"w1", "w2", "w3"} {
		pid, err := sys.SpawnWithProps(worker(), DefaultProps(name).WithDispatcher("pool"))
		require.NoError(t, err)
		pids = append(pids, pid)
	}

	// 全部发给同一个成员，空闲成员从共享队列取活
	for i := 0; i < 60; i++ {
		pids[0].Tell(&CountMessage{Value: i})
	}

	require.Eventually(t, func() bool { return total.Load() == 60 }, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, len(handled), 1, "work should spread across members: %v", handled)
}

func mustLookup(t *testing.T, sys *System, id string) Dispatcher {
	t.Helper()
	d, _, err := sys.Dispatchers().Lookup(id)
	require.NoError(t, err)
	return d
}
