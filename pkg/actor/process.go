package actor

// Process PID 背后的投递目标
// 普通 Actor 的实现是 actorCell；路由器在其外层包装路由逻辑
type Process interface {
	// SendUserMessage 投递用户消息，失败时返回错误（由调用方决定是否转入死信）
	SendUserMessage(env Envelope) error
	// SendSystemMessage 投递系统消息
	SendSystemMessage(msg SystemMessage)
	// Inspect 返回邮箱状态快照
	Inspect() MailboxInfo
}

// ============== 内部系统消息 ==============

type suspendMailbox struct{}

type resumeMailbox struct{}

type terminate struct{}

type restartActor struct{}

type watch struct {
	watcher *PID
}

type unwatch struct {
	watcher *PID
}

func (*suspendMailbox) systemMessage() {}
func (*resumeMailbox) systemMessage()  {}
func (*terminate) systemMessage()      {}
func (*restartActor) systemMessage()   {}
func (*watch) systemMessage()          {}
func (*unwatch) systemMessage()        {}

// ============== 死信 ==============

// DeadLetter 无法投递的消息
type DeadLetter struct {
	Envelope  Envelope
	Recipient *PID
	Reason    error
}

// DeadLetterPublisher 死信出口
type DeadLetterPublisher interface {
	PublishDeadLetter(dl DeadLetter)
}

// ============== Request/Response ==============

// futureProcess 一次性回复接收者，供 Request/Ask 使用
type futureProcess struct {
	ch chan Message
}

func newFutureProcess() *futureProcess {
	return &futureProcess{ch: make(chan Message, 1)}
}

func (f *futureProcess) SendUserMessage(env Envelope) error {
	select {
	case f.ch <- env.Message:
		return nil
	default:
		// 只接收第一条回复
		return ErrMailboxFull
	}
}

func (f *futureProcess) SendSystemMessage(SystemMessage) {}

func (f *futureProcess) Inspect() MailboxInfo {
	return MailboxInfo{Status: MailboxIdle, Len: len(f.ch)}
}
