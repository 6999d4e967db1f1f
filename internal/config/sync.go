package config

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// SyncConfig tunes the refresh engine. It is hot-reloaded from sync.yml.
type SyncConfig struct {
	RetentionDays       int   `mapstructure:"retentionDays"`
	TailWindowDays      int   `mapstructure:"tailWindowDays"`
	ChunkDays           int   `mapstructure:"chunkDays"`
	InsightsPageLimit   int   `mapstructure:"insightsPageLimit"`
	DemographicsPeriods []int `mapstructure:"demographicsPeriods"`
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		RetentionDays:       90,
		TailWindowDays:      3,
		ChunkDays:           30,
		InsightsPageLimit:   500,
		DemographicsPeriods: []int{3, 7, 14, 30, 90},
	}
}

type SyncConfigHolder struct {
	current atomic.Value // holds SyncConfig
}

// NewStaticSyncConfigHolder returns a holder that never reloads.
func NewStaticSyncConfigHolder(cfg SyncConfig) *SyncConfigHolder {
	holder := &SyncConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSyncConfigHolder() (*SyncConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/insightsync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INSIGHTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSyncConfig()
	v.SetDefault("sync.retentionDays", defaults.RetentionDays)
	v.SetDefault("sync.tailWindowDays", defaults.TailWindowDays)
	v.SetDefault("sync.chunkDays", defaults.ChunkDays)
	v.SetDefault("sync.insightsPageLimit", defaults.InsightsPageLimit)
	v.SetDefault("sync.demographicsPeriods", defaults.DemographicsPeriods)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := readSyncConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateSyncConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSyncConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readSyncConfig(v)
		if err != nil {
			log.Printf("[sync-config] reload failed: %v", err)
			return
		}
		if err := validateSyncConfig(updated); err != nil {
			log.Printf("[sync-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[sync-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// readSyncConfig resolves every key on its own so a partial sync section
// keeps the remaining defaults and INSIGHTSYNC_SYNC_<KEY> overrides apply.
func readSyncConfig(v *viper.Viper) (SyncConfig, error) {
	periods, err := intList(v.Get("sync.demographicsPeriods"))
	if err != nil {
		return SyncConfig{}, fmt.Errorf("sync.demographicsPeriods: %w", err)
	}
	return SyncConfig{
		RetentionDays:       v.GetInt("sync.retentionDays"),
		TailWindowDays:      v.GetInt("sync.tailWindowDays"),
		ChunkDays:           v.GetInt("sync.chunkDays"),
		InsightsPageLimit:   v.GetInt("sync.insightsPageLimit"),
		DemographicsPeriods: periods,
	}, nil
}

// intList accepts a yaml list or a comma separated env value.
func intList(raw any) ([]int, error) {
	if s, ok := raw.(string); ok {
		var out []int
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return cast.ToIntSliceE(raw)
}

func (h *SyncConfigHolder) Get() SyncConfig {
	if h == nil {
		return DefaultSyncConfig()
	}
	return h.current.Load().(SyncConfig)
}

func validateSyncConfig(cfg SyncConfig) error {
	if cfg.RetentionDays <= 0 {
		return errors.New("sync.retentionDays must be positive")
	}
	if cfg.TailWindowDays <= 0 {
		return errors.New("sync.tailWindowDays must be positive")
	}
	if cfg.TailWindowDays > cfg.RetentionDays {
		return errors.New("sync.tailWindowDays cannot exceed sync.retentionDays")
	}
	if cfg.ChunkDays <= 0 {
		return errors.New("sync.chunkDays must be positive")
	}
	if cfg.InsightsPageLimit <= 0 {
		return errors.New("sync.insightsPageLimit must be positive")
	}
	for _, p := range cfg.DemographicsPeriods {
		if p <= 0 {
			return errors.New("sync.demographicsPeriods must be positive")
		}
	}
	return nil
}
