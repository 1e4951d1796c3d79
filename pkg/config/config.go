// Package config 从 YAML 加载 Actor 系统、调度器和路由器部署配置
//
// 配置只在构造时读取一次：
//
//	cfg, err := config.Load("actor.yaml")
//	sys, err := actor.NewSystemWithConfig(cfg.System.Name, cfg.SystemConfig())
//	rc, err := cfg.Deployment("workers", newWorker)
//	pid, err := routing.Spawn(sys, "workers", rc)
//
// 部署名作为 koanf 键使用，不能包含 "."。
package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/routing"
)

const delim = "."

// Config 完整配置
type Config struct {
	System      SystemSection                `koanf:"system" yaml:"system"`
	Dispatchers map[string]DispatcherSection `koanf:"dispatchers,omitempty" yaml:"dispatchers,omitempty"`
	Deployments map[string]DeploymentSection `koanf:"deployment,omitempty" yaml:"deployment,omitempty"`
}

// SystemSection Actor 系统配置
type SystemSection struct {
	Name              string            `koanf:"name" yaml:"name"`
	DefaultThroughput int               `koanf:"default-throughput" yaml:"default-throughput"`
	DeadLetterSize    int               `koanf:"dead-letter-size" yaml:"dead-letter-size"`
	LogDeadLetters    bool              `koanf:"log-dead-letters" yaml:"log-dead-letters"`
	DefaultDispatcher DispatcherSection `koanf:"default-dispatcher" yaml:"default-dispatcher"`
}

// DispatcherSection 调度器配置
type DispatcherSection struct {
	Type               string        `koanf:"type" yaml:"type"`
	Workers            int           `koanf:"workers" yaml:"workers,omitempty"`
	Throughput         int           `koanf:"throughput" yaml:"throughput,omitempty"`
	ThroughputDeadline time.Duration `koanf:"throughput-deadline" yaml:"throughput-deadline,omitempty"`
}

// DeploymentSection 路由器部署配置
type DeploymentSection struct {
	// Router 路由器类型，如 round-robin-pool、random-group
	Router string `koanf:"router" yaml:"router"`
	// NrOfInstances Pool 初始目标数量
	NrOfInstances int `koanf:"nr-of-instances" yaml:"nr-of-instances,omitempty"`
	// RouterDispatcher 路由器自身的调度器
	RouterDispatcher string `koanf:"router-dispatcher" yaml:"router-dispatcher,omitempty"`
	// PoolDispatcher 为 Pool 目标单独创建的调度器
	PoolDispatcher *DispatcherSection `koanf:"pool-dispatcher" yaml:"pool-dispatcher,omitempty"`
	// Routees Group 目标
	Routees RouteesSection `koanf:"routees" yaml:"routees,omitempty"`
	// HashRing 一致性哈希使用哈希环
	HashRing bool `koanf:"hash-ring" yaml:"hash-ring,omitempty"`
	// VirtualNodesFactor 哈希环上每个目标的虚拟节点数
	VirtualNodesFactor int `koanf:"virtual-nodes-factor" yaml:"virtual-nodes-factor,omitempty"`
	// Resizer 动态调整
	Resizer *ResizerSection `koanf:"resizer" yaml:"resizer,omitempty"`
}

// RouteesSection Group 目标
type RouteesSection struct {
	Paths []string `koanf:"paths" yaml:"paths,omitempty"`
}

// ResizerSection Resizer 配置，未填写的字段取 routing.DefaultResizerConfig
type ResizerSection struct {
	Enabled           bool    `koanf:"enabled" yaml:"enabled"`
	LowerBound        int     `koanf:"lower-bound" yaml:"lower-bound"`
	UpperBound        int     `koanf:"upper-bound" yaml:"upper-bound"`
	PressureThreshold int     `koanf:"pressure-threshold" yaml:"pressure-threshold"`
	RampupRate        float64 `koanf:"rampup-rate" yaml:"rampup-rate"`
	BackoffThreshold  float64 `koanf:"backoff-threshold" yaml:"backoff-threshold"`
	BackoffRate       float64 `koanf:"backoff-rate" yaml:"backoff-rate"`
	MessagesPerResize int     `koanf:"messages-per-resize" yaml:"messages-per-resize"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		System: SystemSection{
			Name:              "actor-system",
			DefaultThroughput: actor.DefaultThroughput,
			DeadLetterSize:    1000,
			LogDeadLetters:    true,
			DefaultDispatcher: DispatcherSection{Type: string(actor.DispatcherShared)},
		},
	}
}

func defaultResizerSection() ResizerSection {
	d := routing.DefaultResizerConfig()
	return ResizerSection{
		Enabled:           true,
		LowerBound:        d.LowerBound,
		UpperBound:        d.UpperBound,
		PressureThreshold: d.PressureThreshold,
		RampupRate:        d.RampupRate,
		BackoffThreshold:  d.BackoffThreshold,
		BackoffRate:       d.BackoffRate,
		MessagesPerResize: d.MessagesPerResize,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 加载
// ═══════════════════════════════════════════════════════════════════════════

// Load 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	cfg, err := load(file.Provider(path))
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadBytes 从内存中的 YAML 文档加载配置
func LoadBytes(data []byte) (*Config, error) {
	cfg, err := load(rawbytes.Provider(data))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func load(src koanf.Provider) (*Config, error) {
	k := koanf.New(delim)

	// 默认值 → 文件
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, err
	}
	if err := k.Load(src, yaml.Parser()); err != nil {
		return nil, err
	}
	if err := applyResizerDefaults(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyResizerDefaults 给每个出现的 resizer 段补上默认值
func applyResizerDefaults(k *koanf.Koanf) error {
	for _, name := range k.MapKeys("deployment") {
		path := "deployment" + delim + name + delim + "resizer"
		if !k.Exists(path) {
			continue
		}
		merged := koanf.New(delim)
		if err := merged.Load(structs.Provider(defaultResizerSection(), "koanf"), nil); err != nil {
			return err
		}
		if err := merged.Merge(k.Cut(path)); err != nil {
			return err
		}
		if err := k.MergeAt(merged, path); err != nil {
			return err
		}
	}
	return nil
}

// Dump 以 YAML 输出生效的配置
func (c *Config) Dump() ([]byte, error) {
	return yamlv3.Marshal(c)
}
