// Package routing 提供路由器：把发给一个 PID 的消息分发到一组目标 Actor
//
// # Router 与 RoutingLogic
//
// [Router] 是不可变的「路由逻辑 + 目标快照」。增删目标总是生成新的 Router，
// 路由器通过 atomic.Pointer 整体替换，并发发送方不会读到一半更新的目标集合。
//
// 内置 [RoutingLogic]：
// • [RoundRobinRoutingLogic] 原子计数轮询
// • [RandomRoutingLogic] 随机，可固定种子
// • [BroadcastRoutingLogic] 发给所有目标
// • [ConsistentHashingRoutingLogic] 按哈希键选择，默认 hash(key) % n，
//   [WithHashRing] 启用哈希环，目标增减时只有少量键迁移
// • [SmallestMailboxRoutingLogic] 选择邮箱最空的目标
//
// 目标集合为空时 Select 返回 [NoRoutee]，消息转入死信。[Broadcast] 包装的消息
// 无视路由逻辑发给所有目标。
//
// # Pool 与 Group
//
// [Pool] 创建并监督自己的目标（路由器的子 Actor），目标终止后自动移除：
//
//	pid, err := routing.Spawn(sys, "workers",
//		routing.NewPool(5, routing.NewRoundRobinRoutingLogic(), func() actor.Actor {
//			return &Worker{}
//		}))
//
// [Group] 按名称路由到外部创建的 Actor，不创建也不停止它们：
//
//	pid, err := routing.Spawn(sys, "backends",
//		routing.NewGroup(routing.NewRandomRoutingLogic(), "backend-1", "backend-2"))
//
// 普通消息在发送方 goroutine 中直接路由，不经过路由器邮箱；管理消息
// （[GetRoutees]、[AddRoutee]、[RemoveRoutee]、[AdjustPoolSize]、PoisonPill）
// 由路由器自身处理。
//
// # 动态调整
//
// 设置 [Resizer] 的 Pool 每收到 MessagesPerResize 条消息检查一次负载，
// [DefaultResizer] 在全部目标繁忙时扩容、空闲过多时缩容，数量限制在
// [LowerBound, UpperBound] 内。同一时刻最多一次调整，调整失败只记录日志。
package routing
