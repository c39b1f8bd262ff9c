package config

import (
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dd0wney/lsmtree/pkg/lsm"
	"github.com/dd0wney/lsmtree/pkg/validation"
)

// Config is the top-level on-disk configuration for a running engine
// instance: where its data lives plus its EngineConfig tunables.
type Config struct {
	DataDir string
	Engine  validation.EngineConfig
}

var (
	current *Config
	mu      sync.RWMutex
)

// Get returns the most recently loaded configuration.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func load(v *viper.Viper) Config {
	cfg := Config{Engine: lsm.DefaultEngineConfig()}

	if dir := v.GetString("data_dir"); dir != "" {
		cfg.DataDir = dir
	}
	if v.IsSet("engine.buffer_capacity_bytes") {
		cfg.Engine.BufferCapacityBytes = v.GetInt64("engine.buffer_capacity_bytes")
	}
	if v.IsSet("engine.size_ratio") {
		cfg.Engine.SizeRatio = v.GetInt("engine.size_ratio")
	}
	if v.IsSet("engine.initial_max_level") {
		cfg.Engine.InitialMaxLevel = v.GetInt("engine.initial_max_level")
	}
	if v.IsSet("engine.total_fpr") {
		cfg.Engine.TotalFPR = v.GetFloat64("engine.total_fpr")
	}
	if v.IsSet("engine.page_size") {
		cfg.Engine.PageSize = v.GetInt("engine.page_size")
	}
	if v.IsSet("engine.max_skip_list_height") {
		cfg.Engine.MaxSkipListHeight = v.GetInt("engine.max_skip_list_height")
	}
	if v.IsSet("engine.compaction_enabled") {
		cfg.Engine.CompactionEnabled = v.GetBool("engine.compaction_enabled")
	}
	cfg.Engine.TieringThreshold = lsm.TieringThreshold
	cfg.Engine.LazyLevelingThreshold = lsm.LazyLevelingThreshold

	return cfg
}

// Load reads configPath once, validates it, and starts watching it for
// changes. On a detected change the file is re-read and re-validated;
// an invalid update is logged and the previous configuration is kept.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := load(v)
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	current = &cfg
	mu.Unlock()

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		reloaded := load(v)
		if err := reloaded.Engine.Validate(); err != nil {
			log.Printf("config reload rejected, keeping previous configuration: %v", err)
			return
		}
		mu.Lock()
		current = &reloaded
		mu.Unlock()
	})

	return Get(), nil
}
