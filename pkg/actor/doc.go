// Package actor 提供 Actor 执行引擎：邮箱、消息队列和调度器
//
// 每个 Actor 是独立的计算单元：
// • 拥有私有状态（无需锁保护）
// • 通过邮箱（[Mailbox]）接收消息，发送方永不阻塞
// • 消息处理串行化，同一 Actor 的 Receive 永远不会并发执行
// • 可以创建子 Actor、监控其他 Actor、暂存消息
//
// # 核心组件
//
// [System] 是 Actor 系统的入口，管理所有 Actor 的生命周期和调度器：
//
//	sys := actor.NewSystem("my-system")
//	defer sys.Shutdown()
//
//	pid, err := sys.Spawn(myActor, "worker")
//
// [PID] 是 Actor 的唯一寻址方式。[PID.Tell] 异步发送消息，投递失败的消息进入死信；
// [PID.TrySend] 把拒收错误返回给调用方；[PID.Request] 和 [Ask] 同步等待回复。
//
// # 邮箱与消息队列
//
// [MessageQueue] 有三种实现：无界 FIFO（默认，无锁 MPSC 链表）、
// 有界 FIFO（满时拒收，返回 [ErrMailboxFull]）、优先级队列（数值小的先处理，
// 同优先级保持入队顺序）。通过 [Props] 选择：
//
//	props := actor.DefaultProps("bounded").WithMailboxSize(64)
//
// 邮箱是一个 CAS 状态机（Idle → Scheduled → Running → Idle），保证同一时刻
// 最多一个调度线程在消费。系统消息（挂起、恢复、终止、监控）总是优先处理，
// 挂起状态下也会处理。
//
// # 调度器
//
// [Dispatcher] 决定邮箱在哪里执行。内置类型：shared（固定 worker 池，默认）、
// goroutine、pinned（每个 Actor 独占一个 OS 线程）、calling-thread（测试用）
// 和 balancing（同一调度器下的 Actor 共享一个队列）。每次激活最多处理
// Throughput 条消息，可选 ThroughputDeadline 时间预算。
//
//	sys.Dispatchers().Register("io", actor.DispatcherConfig{Type: actor.DispatcherGoroutine})
//	pid, _ := sys.SpawnWithProps(a, actor.DefaultProps("fetcher").WithDispatcher("io"))
//
// # 监督策略
//
// Actor 处理消息时 panic，邮箱先挂起，再由监督策略决定：[DirectiveResume] 继续处理，
// [DirectiveRestart] 重启（Restarting → Started），[DirectiveStop] 停止，
// [DirectiveEscalate] 通知父 Actor 后停止。[OneForOneStrategy]、[AllForOneStrategy]、
// [ExponentialBackoffStrategy] 和 [CompositeStrategy] 为内置策略。
//
// # 生命周期消息
//
// [Started] 总是 Actor 收到的第一条消息；停止时依次收到 [Stopping] 和 [Stopped]；
// 重启时收到 [Restarting] 和 [Started]。[PoisonPill] 排在已有消息之后，
// 处理到它时停止；[System.Stop] 则在当前消息后停止，剩余消息转入死信。
// 被 [Context.Watch] 监控的 Actor 终止时，监控者收到 [Terminated]。
//
// 完整使用示例请参考 example_test.go。
package actor
