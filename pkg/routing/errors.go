package routing

import "errors"

var (
	// ErrRouteeNotFound 按名称寻址的目标不存在
	ErrRouteeNotFound = errors.New("routee not found")
	// ErrNoRoutee 路由逻辑没有选出目标
	ErrNoRoutee = errors.New("no routee available")
	// ErrBalancingRouterDispatcher 路由器自身不能运行在 balancing 调度器上
	ErrBalancingRouterDispatcher = errors.New("router head cannot run on a balancing dispatcher")
	// ErrInvalidResizer Resizer 参数不合法
	ErrInvalidResizer = errors.New("invalid resizer config")
	// ErrInvalidPool Pool 配置不合法
	ErrInvalidPool = errors.New("invalid pool config")
	// ErrInvalidGroup Group 配置不合法
	ErrInvalidGroup = errors.New("invalid group config")
	// ErrNoProducer Pool 没有设置 Producer
	ErrNoProducer = errors.New("pool has no routee producer")
	// ErrUnknownRouter 未知的路由器类型
	ErrUnknownRouter = errors.New("unknown router type")
)
