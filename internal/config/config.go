// Package config provides configuration management for Chronicle.
// Settings start from built-in defaults, are overlaid by an optional YAML
// file and finally by environment variables with the CHRONICLE_ prefix.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/chronicle/internal/backup"
	"github.com/scrypster/chronicle/internal/campaign"
	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/internal/llm"
	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/internal/orchestration"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CHRONICLE_"

// Config holds all configuration settings for Chronicle.
type Config struct {
	LogLevel      string              `yaml:"log_level" env:"LOG_LEVEL"` // debug, info, warn, error (default: info)
	Storage       StorageConfig       `yaml:"storage" envPrefix:"STORAGE_"`
	LLM           LLMConfig           `yaml:"llm" envPrefix:"LLM_"`
	Memory        MemoryConfig        `yaml:"memory" envPrefix:"MEMORY_"`
	Narrative     NarrativeConfig     `yaml:"narrative" envPrefix:"NARRATIVE_"`
	Orchestration OrchestrationConfig `yaml:"orchestration" envPrefix:"ORCHESTRATION_"`
	Campaign      CampaignConfig      `yaml:"campaign" envPrefix:"CAMPAIGN_"`
	Backup        BackupConfig        `yaml:"backup" envPrefix:"BACKUP_"`
}

// StorageConfig selects where campaign state is persisted.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // sqlite or postgres (default: sqlite)
	DSN    string `yaml:"dsn" env:"DSN"`       // sqlite path or postgres URL (default: ./data/chronicle.db)
}

// LLMConfig contains the narrator backend configuration.
type LLMConfig struct {
	Provider          string        `yaml:"provider" env:"PROVIDER"` // ollama or none (default: ollama)
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	Model             string        `yaml:"model" env:"MODEL"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" env:"BURST"`
}

// MemoryConfig tunes the layered store and recall.
type MemoryConfig struct {
	HalfLife        time.Duration `yaml:"half_life" env:"HALF_LIFE"`
	Reinforcement   float64       `yaml:"reinforcement" env:"REINFORCEMENT"`
	ShortTermMaxAge time.Duration `yaml:"short_term_max_age" env:"SHORT_TERM_MAX_AGE"`
	MidTermMaxAge   time.Duration `yaml:"mid_term_max_age" env:"MID_TERM_MAX_AGE"`
	RetentionBar    float64       `yaml:"retention_bar" env:"RETENTION_BAR"`
	PromotionBar    float64       `yaml:"promotion_bar" env:"PROMOTION_BAR"`
	DecayFactor     float64       `yaml:"decay_factor" env:"DECAY_FACTOR"`
	DecayInterval   time.Duration `yaml:"decay_interval" env:"DECAY_INTERVAL"`
	EvictionFloor   float64       `yaml:"eviction_floor" env:"EVICTION_FLOOR"`
	ShortTermCap    int           `yaml:"short_term_cap" env:"SHORT_TERM_CAP"`
	MidTermCap      int           `yaml:"mid_term_cap" env:"MID_TERM_CAP"`
	LongTermCap     int           `yaml:"long_term_cap" env:"LONG_TERM_CAP"`
	RecallLimit     int           `yaml:"recall_limit" env:"RECALL_LIMIT"`
	ContextBudget   int           `yaml:"context_budget" env:"CONTEXT_BUDGET"`
}

// NarrativeConfig tunes snapshots.
type NarrativeConfig struct {
	MinThreadPriority int           `yaml:"min_thread_priority" env:"MIN_THREAD_PRIORITY"`
	RecentMemories    int           `yaml:"recent_memories" env:"RECENT_MEMORIES"`
	RecentWindow      time.Duration `yaml:"recent_window" env:"RECENT_WINDOW"`
	TrendSample       int           `yaml:"trend_sample" env:"TREND_SAMPLE"`
	TrendWindow       time.Duration `yaml:"trend_window" env:"TREND_WINDOW"`
	UpdateWindow      time.Duration `yaml:"update_window" env:"UPDATE_WINDOW"`
}

// OrchestrationConfig tunes event generation.
type OrchestrationConfig struct {
	ReadyBandLow           float64       `yaml:"ready_band_low" env:"READY_BAND_LOW"`
	ReadyBandHigh          float64       `yaml:"ready_band_high" env:"READY_BAND_HIGH"`
	LateArcCompletion      float64       `yaml:"late_arc_completion" env:"LATE_ARC_COMPLETION"`
	StagnationWindow       time.Duration `yaml:"stagnation_window" env:"STAGNATION_WINDOW"`
	ResolutionUpdates      int           `yaml:"resolution_updates" env:"RESOLUTION_UPDATES"`
	HighThreadPriority     int           `yaml:"high_thread_priority" env:"HIGH_THREAD_PRIORITY"`
	CriticalThreadPriority int           `yaml:"critical_thread_priority" env:"CRITICAL_THREAD_PRIORITY"`
	MinTrendSample         int           `yaml:"min_trend_sample" env:"MIN_TREND_SAMPLE"`
	FlatIntensity          float64       `yaml:"flat_intensity" env:"FLAT_INTENSITY"`
	NegativeEmotions       []string      `yaml:"negative_emotions" env:"NEGATIVE_EMOTIONS" envSeparator:","`
	CoolDown               time.Duration `yaml:"cool_down" env:"COOL_DOWN"`
	PendingTTL             time.Duration `yaml:"pending_ttl" env:"PENDING_TTL"`
	MaxEvents              int           `yaml:"max_events" env:"MAX_EVENTS"`
}

// CampaignConfig controls the campaign lifecycle.
type CampaignConfig struct {
	// IdleTimeout discards campaigns untouched for this long (default: 30m, 0 disables).
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// Schedule is the cron expression of the maintenance daemon (default: hourly).
	Schedule string `yaml:"schedule" env:"SCHEDULE"`
	// Inbox is the directory the daemon takes submitted turns from (default: ./data/inbox, empty disables).
	Inbox string `yaml:"inbox" env:"INBOX"`
}

// BackupConfig contains state archive configuration.
type BackupConfig struct {
	Enabled          bool   `yaml:"enabled" env:"ENABLED"` // Archive after every daemon pass (default: false)
	Dir              string `yaml:"dir" env:"DIR"`         // Archive directory (default: ./data/backups)
	Verify           bool   `yaml:"verify" env:"VERIFY"`   // Verify archives after writing (default: true)
	RetentionHourly  int    `yaml:"retention_hourly" env:"RETENTION_HOURLY"`
	RetentionDaily   int    `yaml:"retention_daily" env:"RETENTION_DAILY"`
	RetentionWeekly  int    `yaml:"retention_weekly" env:"RETENTION_WEEKLY"`
	RetentionMonthly int    `yaml:"retention_monthly" env:"RETENTION_MONTHLY"`
}

// Default returns the built-in configuration.
func Default() *Config {
	mem := engine.DefaultConfig()
	agg := narrative.DefaultAggregatorConfig()
	orch := orchestration.DefaultConfig()
	retention := backup.DefaultRetention()
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "./data/chronicle.db",
		},
		LLM: LLMConfig{
			Provider:          "ollama",
			BaseURL:           "http://localhost:11434",
			Model:             "qwen2.5:7b",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 2,
			Burst:             2,
		},
		Memory: MemoryConfig{
			HalfLife:        mem.HalfLife,
			Reinforcement:   mem.Reinforcement,
			ShortTermMaxAge: mem.ShortTermMaxAge,
			MidTermMaxAge:   mem.MidTermMaxAge,
			RetentionBar:    mem.RetentionBar,
			PromotionBar:    mem.PromotionBar,
			DecayFactor:     mem.DecayFactor,
			DecayInterval:   mem.DecayInterval,
			EvictionFloor:   mem.EvictionFloor,
			ShortTermCap:    mem.ShortTermCap,
			MidTermCap:      mem.MidTermCap,
			LongTermCap:     mem.LongTermCap,
			RecallLimit:     mem.RecallLimit,
			ContextBudget:   mem.ContextBudget,
		},
		Narrative: NarrativeConfig{
			MinThreadPriority: agg.MinThreadPriority,
			RecentMemories:    agg.RecentMemories,
			RecentWindow:      agg.RecentWindow,
			TrendSample:       agg.TrendSample,
			TrendWindow:       agg.TrendWindow,
			UpdateWindow:      agg.UpdateWindow,
		},
		Orchestration: OrchestrationConfig{
			ReadyBandLow:           orch.ReadyBandLow,
			ReadyBandHigh:          orch.ReadyBandHigh,
			LateArcCompletion:      orch.LateArcCompletion,
			StagnationWindow:       orch.StagnationWindow,
			ResolutionUpdates:      orch.ResolutionUpdates,
			HighThreadPriority:     orch.HighThreadPriority,
			CriticalThreadPriority: orch.CriticalThreadPriority,
			MinTrendSample:         orch.MinTrendSample,
			FlatIntensity:          orch.FlatIntensity,
			NegativeEmotions:       orch.NegativeEmotions,
			CoolDown:               orch.CoolDown,
			PendingTTL:             orch.PendingTTL,
			MaxEvents:              orch.MaxEvents,
		},
		Campaign: CampaignConfig{
			IdleTimeout: 30 * time.Minute,
			Schedule:    campaign.DefaultSchedule,
			Inbox:       "./data/inbox",
		},
		Backup: BackupConfig{
			Dir:              "./data/backups",
			Verify:           true,
			RetentionHourly:  retention.Hourly,
			RetentionDaily:   retention.Daily,
			RetentionWeekly:  retention.Weekly,
			RetentionMonthly: retention.Monthly,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and CHRONICLE_* environment variables, then validates
// it. A missing file is an error; an empty one changes nothing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

var (
	storageDrivers = []string{"sqlite", "postgres"}
	llmProviders   = []string{"ollama", "none"}
)

// Validate checks the settings and the component configurations they map to.
func (c *Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if !slices.Contains(storageDrivers, c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("storage.driver must be one of %v, got %q", storageDrivers, c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}
	if !slices.Contains(llmProviders, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider must be one of %v, got %q", llmProviders, c.LLM.Provider))
	}
	if c.LLM.Timeout < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be >= 0, got %v", c.LLM.Timeout))
	}
	if c.Campaign.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("campaign.idle_timeout must be >= 0, got %v", c.Campaign.IdleTimeout))
	}
	if c.Backup.Enabled && c.Backup.Dir == "" {
		errs = append(errs, errors.New("backup.dir is required when backups are enabled"))
	}
	if min(c.Backup.RetentionHourly, c.Backup.RetentionDaily, c.Backup.RetentionWeekly, c.Backup.RetentionMonthly) < 0 {
		errs = append(errs, errors.New("backup retention counts must be >= 0"))
	}
	g := gronx.New()
	if !g.IsValid(c.Campaign.Schedule) {
		errs = append(errs, fmt.Errorf("campaign.schedule: invalid cron expression %q", c.Campaign.Schedule))
	}
	cc := c.CampaignConfig()
	if err := cc.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// EngineConfig maps the memory section to engine.Config.
func (c *Config) EngineConfig() engine.Config {
	m := c.Memory
	return engine.Config{
		HalfLife:        m.HalfLife,
		Reinforcement:   m.Reinforcement,
		ShortTermMaxAge: m.ShortTermMaxAge,
		MidTermMaxAge:   m.MidTermMaxAge,
		RetentionBar:    m.RetentionBar,
		PromotionBar:    m.PromotionBar,
		DecayFactor:     m.DecayFactor,
		DecayInterval:   m.DecayInterval,
		EvictionFloor:   m.EvictionFloor,
		ShortTermCap:    m.ShortTermCap,
		MidTermCap:      m.MidTermCap,
		LongTermCap:     m.LongTermCap,
		RecallLimit:     m.RecallLimit,
		ContextBudget:   m.ContextBudget,
	}
}

// AggregatorConfig maps the narrative section.
func (c *Config) AggregatorConfig() narrative.AggregatorConfig {
	n := c.Narrative
	return narrative.AggregatorConfig{
		MinThreadPriority: n.MinThreadPriority,
		RecentMemories:    n.RecentMemories,
		RecentWindow:      n.RecentWindow,
		TrendSample:       n.TrendSample,
		TrendWindow:       n.TrendWindow,
		UpdateWindow:      n.UpdateWindow,
	}
}

// OrchestrationConfig maps the orchestration section.
func (c *Config) OrchestrationConfig() orchestration.Config {
	o := c.Orchestration
	return orchestration.Config{
		ReadyBandLow:           o.ReadyBandLow,
		ReadyBandHigh:          o.ReadyBandHigh,
		LateArcCompletion:      o.LateArcCompletion,
		StagnationWindow:       o.StagnationWindow,
		ResolutionUpdates:      o.ResolutionUpdates,
		HighThreadPriority:     o.HighThreadPriority,
		CriticalThreadPriority: o.CriticalThreadPriority,
		MinTrendSample:         o.MinTrendSample,
		FlatIntensity:          o.FlatIntensity,
		NegativeEmotions:       slices.Clone(o.NegativeEmotions),
		CoolDown:               o.CoolDown,
		PendingTTL:             o.PendingTTL,
		MaxEvents:              o.MaxEvents,
	}
}

// CampaignConfig bundles the component configurations of a campaign.
func (c *Config) CampaignConfig() campaign.Config {
	return campaign.Config{
		Memory:        c.EngineConfig(),
		Narrative:     c.AggregatorConfig(),
		Orchestration: c.OrchestrationConfig(),
	}
}

// BackupServiceConfig maps the backup section.
func (c *Config) BackupServiceConfig() backup.Config {
	b := c.Backup
	return backup.Config{
		Dir:    b.Dir,
		Verify: b.Verify,
		Retention: backup.RetentionPolicy{
			Hourly:  b.RetentionHourly,
			Daily:   b.RetentionDaily,
			Weekly:  b.RetentionWeekly,
			Monthly: b.RetentionMonthly,
		},
	}
}

// ProviderConfig maps the llm section.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:          c.LLM.Provider,
		BaseURL:           c.LLM.BaseURL,
		Model:             c.LLM.Model,
		Timeout:           c.LLM.Timeout,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
		Burst:             c.LLM.Burst,
	}
}
