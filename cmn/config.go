package cmn

import (
	"os"
	"time"

	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"
)

// MigrationConfig holds the migration tunables: phase probe intervals, scan
// rate, channel and buffer depths, scan backoff. Failure-detector settings
// live in FailureConfig.
// Defaults match §4 and the Open Question decisions in SPEC_FULL.md.
type MigrationConfig struct {
	PreCheckInterval       time.Duration `yaml:"precheck_interval"`
	PreSwitchInterval      time.Duration `yaml:"preswitch_interval"`
	FinalSwitchInterval    time.Duration `yaml:"finalswitch_interval"`
	ScanRate               int           `yaml:"scan_rate"`
	ScanChannelDepth       int           `yaml:"scan_channel_depth"`
	PreBlockBufferSize     int           `yaml:"preblock_buffer_size"`
	ScanBackoffMin         time.Duration `yaml:"scan_backoff_min"`
	ScanBackoffMax         time.Duration `yaml:"scan_backoff_max"`
	ScanBackoffMaxAttempts int           `yaml:"scan_backoff_max_attempts"`
}

type FailureConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Quorum int           `yaml:"quorum"`
}

type BrokerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Config struct {
	Migration MigrationConfig `yaml:"migration"`
	Failure   FailureConfig   `yaml:"failure"`
	Broker    BrokerConfig    `yaml:"broker"`
}

func defaultConfig() *Config {
	return &Config{
		Migration: MigrationConfig{
			PreCheckInterval:    10 * time.Millisecond,
			PreSwitchInterval:   1 * time.Millisecond,
			FinalSwitchInterval: 1 * time.Millisecond,
			ScanRate:            1000,
			ScanChannelDepth:    256,
			PreBlockBufferSize:  1024,
			ScanBackoffMin:         50 * time.Millisecond,
			ScanBackoffMax:         5 * time.Second,
			ScanBackoffMaxAttempts: 10,
		},
		Failure: FailureConfig{
			TTL:    30 * time.Second,
			Quorum: 2,
		},
		Broker: BrokerConfig{
			ListenAddr: ":51000",
		},
	}
}

// globalConfigOwner mirrors the teacher's cmn.GCO: a single process-wide
// holder of an atomically-swappable config snapshot (ais/prxtxn.go reads
// cmn.GCO.Get() inline from request handlers; reb/global.go does the same).
type globalConfigOwner struct {
	v atomic.Value
}

func (g *globalConfigOwner) Get() *Config {
	c, _ := g.v.Load().(*Config)
	if c == nil {
		return defaultConfig()
	}
	return c
}

func (g *globalConfigOwner) Put(c *Config) { g.v.Store(c) }

// Clone returns a shallow copy of the current config snapshot, safe for the
// caller to mutate and Put back.
func (g *globalConfigOwner) Clone() Config { return *g.Get() }

// GCO is the process-wide config owner, set once at startup.
var GCO = &globalConfigOwner{}

func init() { GCO.Put(defaultConfig()) }

// LoadConfig reads a YAML config file, overlaying it on the defaults, and
// installs it into GCO. A missing file is not an error: the defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		GCO.Put(cfg)
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		GCO.Put(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	GCO.Put(cfg)
	return cfg, nil
}
