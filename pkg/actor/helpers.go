package actor

import (
	"context"
	"fmt"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 通用请求-回复辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// Ask 向 Actor 发送消息并等待类型为 T 的回复
// 接收方使用 ctx.Reply 回复即可，无需感知请求方
//
// 用法示例:
//
//	type GetStatusMsg struct{}
//	func (m *GetStatusMsg) Kind() string { return "get_status" }
//
//	status, err := actor.Ask[*Status](pid, &GetStatusMsg{}, 5*time.Second)
func Ask[T Message](pid *PID, msg Message, timeout time.Duration) (T, error) {
	var zero T
	resp, err := pid.Request(msg, timeout)
	if err != nil {
		return zero, err
	}
	return castReply[T](resp)
}

// AskWithContext 带 context 的请求-回复
// 支持通过 context 取消请求
func AskWithContext[T Message](ctx context.Context, pid *PID, msg Message) (T, error) {
	var zero T
	if pid == nil || pid.system == nil {
		return zero, ErrNoProcess
	}
	resp, err := pid.system.RequestContext(ctx, pid, msg)
	if err != nil {
		return zero, err
	}
	return castReply[T](resp)
}

func castReply[T Message](resp Message) (T, error) {
	typed, ok := resp.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: got %T", ErrUnexpectedReply, resp)
	}
	return typed, nil
}
