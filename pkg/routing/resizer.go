package routing

import (
	"fmt"
	"math"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// Resizer 根据负载计算 Pool 目标数量的增减
type Resizer interface {
	// IsTimeForResize 每条非管理消息调用一次，counter 从 0 开始单调递增
	// 返回 true 时触发一次 Resize
	IsTimeForResize(counter int64) bool
	// Resize 返回目标数量的变化量，正数扩容，负数缩容
	// 在路由器自身的消费线程中调用
	Resize(current []Routee) int
}

// ResizerConfig DefaultResizer 参数
type ResizerConfig struct {
	// LowerBound 最少目标数
	LowerBound int `koanf:"lower-bound" yaml:"lower-bound"`
	// UpperBound 最多目标数
	UpperBound int `koanf:"upper-bound" yaml:"upper-bound"`
	// PressureThreshold 判断目标繁忙的阈值
	//   1: 正在处理消息且邮箱中还有消息
	//   <1: 正在处理消息
	//   N: 邮箱中至少有 N 条消息
	PressureThreshold int `koanf:"pressure-threshold" yaml:"pressure-threshold"`
	// RampupRate 全部繁忙时按当前数量的比例扩容
	RampupRate float64 `koanf:"rampup-rate" yaml:"rampup-rate"`
	// BackoffThreshold 繁忙比例低于该值时缩容，0 表示不缩容
	BackoffThreshold float64 `koanf:"backoff-threshold" yaml:"backoff-threshold"`
	// BackoffRate 缩容比例
	BackoffRate float64 `koanf:"backoff-rate" yaml:"backoff-rate"`
	// MessagesPerResize 每隔多少条消息检查一次
	MessagesPerResize int `koanf:"messages-per-resize" yaml:"messages-per-resize"`
}

// DefaultResizerConfig 默认参数
func DefaultResizerConfig() ResizerConfig {
	return ResizerConfig{
		LowerBound:        1,
		UpperBound:        10,
		PressureThreshold: 1,
		RampupRate:        0.2,
		BackoffThreshold:  0.3,
		BackoffRate:       0.1,
		MessagesPerResize: 10,
	}
}

// Validate 校验参数
func (c ResizerConfig) Validate() error {
	switch {
	case c.LowerBound < 0:
		return fmt.Errorf("%w: lower-bound must be >= 0, got %d", ErrInvalidResizer, c.LowerBound)
	case c.UpperBound < 0:
		return fmt.Errorf("%w: upper-bound must be >= 0, got %d", ErrInvalidResizer, c.UpperBound)
	case c.UpperBound < c.LowerBound:
		return fmt.Errorf("%w: upper-bound %d < lower-bound %d", ErrInvalidResizer, c.UpperBound, c.LowerBound)
	case c.RampupRate < 0:
		return fmt.Errorf("%w: rampup-rate must be >= 0, got %v", ErrInvalidResizer, c.RampupRate)
	case c.BackoffThreshold > 1:
		return fmt.Errorf("%w: backoff-threshold must be <= 1, got %v", ErrInvalidResizer, c.BackoffThreshold)
	case c.BackoffRate < 0:
		return fmt.Errorf("%w: backoff-rate must be >= 0, got %v", ErrInvalidResizer, c.BackoffRate)
	case c.MessagesPerResize <= 0:
		return fmt.Errorf("%w: messages-per-resize must be > 0, got %d", ErrInvalidResizer, c.MessagesPerResize)
	}
	return nil
}

// DefaultResizer 基于邮箱压力的 Resizer
type DefaultResizer struct {
	cfg ResizerConfig
}

// NewDefaultResizer 创建 DefaultResizer，参数不合法时返回 ErrInvalidResizer
func NewDefaultResizer(cfg ResizerConfig) (*DefaultResizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DefaultResizer{cfg: cfg}, nil
}

// Config 返回参数
func (r *DefaultResizer) Config() ResizerConfig {
	return r.cfg
}

// IsTimeForResize 实现 Resizer
func (r *DefaultResizer) IsTimeForResize(counter int64) bool {
	return counter%int64(r.cfg.MessagesPerResize) == 0
}

// Resize 实现 Resizer
func (r *DefaultResizer) Resize(current []Routee) int {
	return r.Capacity(current)
}

// Capacity 计算变化量，结果总是把目标数量限制在 [LowerBound, UpperBound] 内
func (r *DefaultResizer) Capacity(current []Routee) int {
	size := len(current)
	delta := r.Filter(r.Pressure(current), size)
	proposed := size + delta

	switch {
	case proposed < r.cfg.LowerBound:
		return delta + (r.cfg.LowerBound - proposed)
	case proposed > r.cfg.UpperBound:
		return delta - (proposed - r.cfg.UpperBound)
	default:
		return delta
	}
}

// Pressure 统计繁忙目标数
func (r *DefaultResizer) Pressure(current []Routee) int {
	busy := 0
	for _, routee := range current {
		pid := refPID(routee)
		if pid == nil {
			continue
		}
		info := pid.Inspect()
		if info.Status == actor.MailboxClosed {
			continue
		}

		switch {
		case r.cfg.PressureThreshold == 1:
			if info.Processing && info.Len > 0 {
				busy++
			}
		case r.cfg.PressureThreshold < 1:
			if info.Processing {
				busy++
			}
		default:
			if info.Len >= r.cfg.PressureThreshold {
				busy++
			}
		}
	}
	return busy
}

// Filter 根据压力计算未限制边界的变化量
func (r *DefaultResizer) Filter(pressure, capacity int) int {
	return r.Rampup(pressure, capacity) + r.Backoff(pressure, capacity)
}

// Rampup 全部繁忙时的扩容数
func (r *DefaultResizer) Rampup(pressure, capacity int) int {
	if pressure < capacity {
		return 0
	}
	return int(math.Ceil(r.cfg.RampupRate * float64(capacity)))
}

// Backoff 空闲过多时的缩容数（负数）
func (r *DefaultResizer) Backoff(pressure, capacity int) int {
	if r.cfg.BackoffThreshold > 0 && r.cfg.BackoffRate > 0 && capacity > 0 &&
		float64(pressure)/float64(capacity) < r.cfg.BackoffThreshold {
		return int(math.Floor(-1.0 * r.cfg.BackoffRate * float64(capacity)))
	}
	return 0
}
