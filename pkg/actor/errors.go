package actor

import "errors"

var (
	// ErrMailboxFull 有界邮箱已满，消息被拒收
	ErrMailboxFull = errors.New("mailbox is full")
	// ErrMailboxClosed 邮箱已关闭（Actor 已终止）
	ErrMailboxClosed = errors.New("mailbox is closed")
	// ErrNoProcess PID 没有绑定任何投递目标
	ErrNoProcess = errors.New("pid has no process")
	// ErrStashOverflow 暂存区已满
	ErrStashOverflow = errors.New("stash capacity exceeded")

	// ErrActorExists 名称已被占用
	ErrActorExists = errors.New("actor already exists")
	// ErrSystemStopped Actor 系统已关闭
	ErrSystemStopped = errors.New("actor system is not running")
	// ErrInvalidMailbox 邮箱配置错误
	ErrInvalidMailbox = errors.New("invalid mailbox config")
	// ErrUnknownDispatcher 找不到调度器
	ErrUnknownDispatcher = errors.New("unknown dispatcher")
	// ErrUnknownDispatcherType 调度器类型不支持
	ErrUnknownDispatcherType = errors.New("unknown dispatcher type")
	// ErrDispatcherExists 调度器 ID 已注册
	ErrDispatcherExists = errors.New("dispatcher already registered")
	// ErrUnexpectedReply Ask 收到的回复类型不符合预期
	ErrUnexpectedReply = errors.New("unexpected reply type")
)
