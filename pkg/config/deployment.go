package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/routing"
)

var (
	// ErrInvalidConfig 配置校验失败
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownDeployment 找不到路由器部署
	ErrUnknownDeployment = errors.New("unknown deployment")
)

// ============== 路由器类型 ==============

const (
	poolSuffix  = "-pool"
	groupSuffix = "-group"
)

func routingLogic(kind string, d DeploymentSection) (routing.RoutingLogic, bool) {
	switch kind {
	case "round-robin":
		return routing.NewRoundRobinRoutingLogic(), true
	case "random":
		return routing.NewRandomRoutingLogic(), true
	case "broadcast":
		return routing.NewBroadcastRoutingLogic(), true
	case "smallest-mailbox":
		return routing.NewSmallestMailboxRoutingLogic(), true
	case "consistent-hashing":
		var opts []routing.ConsistentHashingOption
		if d.HashRing {
			opts = append(opts, routing.WithHashRing())
		}
		if d.VirtualNodesFactor > 0 {
			opts = append(opts, routing.WithVirtualNodesFactor(d.VirtualNodesFactor))
		}
		return routing.NewConsistentHashingRoutingLogic(opts...), true
	}
	return nil, false
}

// splitRouter 拆分 "round-robin-pool" 为 ("round-robin", true)
func splitRouter(router string) (kind string, pool bool, err error) {
	switch {
	case strings.HasSuffix(router, poolSuffix):
		kind, pool = strings.TrimSuffix(router, poolSuffix), true
	case strings.HasSuffix(router, groupSuffix):
		kind = strings.TrimSuffix(router, groupSuffix)
	default:
		return "", false, fmt.Errorf("%w: %q", routing.ErrUnknownRouter, router)
	}
	if _, ok := routingLogic(kind, DeploymentSection{}); !ok {
		return "", false, fmt.Errorf("%w: %q", routing.ErrUnknownRouter, router)
	}
	// smallest-mailbox 需要检查目标邮箱，只对 Pool 有意义
	if kind == "smallest-mailbox" && !pool {
		return "", false, fmt.Errorf("%w: %q", routing.ErrUnknownRouter, router)
	}
	return kind, pool, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 校验
// ═══════════════════════════════════════════════════════════════════════════

// Validate 校验配置
func (c *Config) Validate() error {
	if c.System.DefaultThroughput < 0 || c.System.DeadLetterSize < 0 {
		return fmt.Errorf("%w: system values must not be negative", ErrInvalidConfig)
	}
	if err := c.System.DefaultDispatcher.toActor().Validate(); err != nil {
		return fmt.Errorf("%w: default-dispatcher: %w", ErrInvalidConfig, err)
	}
	for id, d := range c.Dispatchers {
		if err := d.toActor().Validate(); err != nil {
			return fmt.Errorf("%w: dispatcher %q: %w", ErrInvalidConfig, id, err)
		}
	}

	for name, d := range c.Deployments {
		if err := c.validateDeployment(name, d); err != nil {
			return fmt.Errorf("%w: deployment %q: %w", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

func (c *Config) validateDeployment(name string, d DeploymentSection) error {
	if strings.Contains(name, delim) {
		return fmt.Errorf("name must not contain %q", delim)
	}
	_, pool, err := splitRouter(d.Router)
	if err != nil {
		return err
	}

	if d.RouterDispatcher != "" && d.RouterDispatcher != actor.DefaultDispatcherID {
		disp, ok := c.Dispatchers[d.RouterDispatcher]
		if !ok {
			return fmt.Errorf("%w: %q", actor.ErrUnknownDispatcher, d.RouterDispatcher)
		}
		if actor.DispatcherType(disp.Type) == actor.DispatcherBalancing {
			return routing.ErrBalancingRouterDispatcher
		}
	}

	if !pool {
		if d.Resizer != nil && d.Resizer.Enabled {
			return errors.New("resizer is only supported by pools")
		}
		return nil
	}

	if d.PoolDispatcher != nil {
		if err := d.PoolDispatcher.toActor().Validate(); err != nil {
			return fmt.Errorf("pool-dispatcher: %w", err)
		}
	}
	if d.Resizer != nil && d.Resizer.Enabled {
		if _, err := routing.NewDefaultResizer(d.Resizer.toRouting()); err != nil {
			return err
		}
		return nil
	}
	if d.NrOfInstances <= 0 {
		return fmt.Errorf("%w: nr-of-instances must be > 0", routing.ErrInvalidPool)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 转换
// ═══════════════════════════════════════════════════════════════════════════

// SystemConfig 转换为 actor.SystemConfig
func (c *Config) SystemConfig() *actor.SystemConfig {
	cfg := actor.DefaultSystemConfig()
	cfg.DefaultThroughput = c.System.DefaultThroughput
	cfg.DeadLetterSize = c.System.DeadLetterSize
	cfg.EnableDeadLetterLogging = c.System.LogDeadLetters
	cfg.DefaultDispatcher = c.System.DefaultDispatcher.toActor()
	if len(c.Dispatchers) > 0 {
		cfg.Dispatchers = make(map[string]actor.DispatcherConfig, len(c.Dispatchers))
		for id, d := range c.Dispatchers {
			cfg.Dispatchers[id] = d.toActor()
		}
	}
	return cfg
}

// Deployment 按部署名创建路由器配置
// producer 只用于 Pool，Group 可以传 nil
func (c *Config) Deployment(name string, producer func() actor.Actor) (routing.RouterConfig, error) {
	d, ok := c.Deployments[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeployment, name)
	}
	kind, pool, err := splitRouter(d.Router)
	if err != nil {
		return nil, err
	}
	logic, _ := routingLogic(kind, d)

	if !pool {
		return routing.NewGroup(logic, d.Routees.Paths...).WithDispatcher(d.RouterDispatcher), nil
	}

	p := routing.NewPool(d.NrOfInstances, logic, producer).WithDispatcher(d.RouterDispatcher)
	if d.PoolDispatcher != nil {
		p.WithPoolDispatcher(d.PoolDispatcher.toActor())
	}
	if d.Resizer != nil && d.Resizer.Enabled {
		resizer, err := routing.NewDefaultResizer(d.Resizer.toRouting())
		if err != nil {
			return nil, fmt.Errorf("deployment %q: %w", name, err)
		}
		p.WithResizer(resizer)
	}
	return p, nil
}

func (d DispatcherSection) toActor() actor.DispatcherConfig {
	return actor.DispatcherConfig{
		Type:               actor.DispatcherType(d.Type),
		Workers:            d.Workers,
		Throughput:         d.Throughput,
		ThroughputDeadline: d.ThroughputDeadline,
	}
}

func (r ResizerSection) toRouting() routing.ResizerConfig {
	return routing.ResizerConfig{
		LowerBound:        r.LowerBound,
		UpperBound:        r.UpperBound,
		PressureThreshold: r.PressureThreshold,
		RampupRate:        r.RampupRate,
		BackoffThreshold:  r.BackoffThreshold,
		BackoffRate:       r.BackoffRate,
		MessagesPerResize: r.MessagesPerResize,
	}
}
