package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MESCHED_BALANCING_MAX_TASKS_PER_WORKER.
const EnvPrefix = "MESCHED"

// Config represents the complete engine configuration
type Config struct {
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Assignment AssignmentConfig `mapstructure:"assignment"`
	Balancing  BalancingConfig  `mapstructure:"balancing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Store      StoreConfig      `mapstructure:"store"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// SchedulerConfig bounds the dependency graph work
type SchedulerConfig struct {
	// MaxGraphNodes caps the tasks loaded for one work order (0 = unlimited)
	MaxGraphNodes int `mapstructure:"max_graph_nodes" validate:"gte=0"`
	// MaxGraphEdges caps the dependency edges of one work order (0 = unlimited)
	MaxGraphEdges int `mapstructure:"max_graph_edges" validate:"gte=0"`
	// CriticalPathTolerance is the slack, in hours, below which a task counts
	// as critical (default: 0.001)
	CriticalPathTolerance float64 `mapstructure:"critical_path_tolerance" validate:"gte=0,lt=1"`
	// CriticalPathTimeoutMs bounds one critical path computation
	CriticalPathTimeoutMs int `mapstructure:"critical_path_timeout_ms" validate:"gte=0,lte=600000"`
}

// AssignmentConfig tunes the assignment engine
type AssignmentConfig struct {
	// MaxActiveTasks is the per-worker capacity; workers at capacity are not
	// candidates (default: 10)
	MaxActiveTasks int `mapstructure:"max_active_tasks" validate:"gte=1,lte=1000"`
	// WorkloadWeight scales active task counts for least loaded selection
	WorkloadWeight float64 `mapstructure:"workload_weight" validate:"gt=0"`
	// UrgentWeight is the cost of each urgent task for priority aware selection
	UrgentWeight float64 `mapstructure:"urgent_weight" validate:"gte=0"`
	// DefaultStrategy is used when a command does not name one
	// Options: "skill_match", "least_loaded", "round_robin", "priority", "proximity"
	DefaultStrategy string `mapstructure:"default_strategy" validate:"required,oneof=skill_match least_loaded round_robin priority proximity"`
}

// BalancingConfig controls workload balancing defaults
type BalancingConfig struct {
	// MaxTasksPerWorker is the load above which a worker gives up tasks (default: 5)
	MaxTasksPerWorker int `mapstructure:"max_tasks_per_worker" validate:"gte=1"`
	// RequireSkillMatch only moves tasks to workers holding every required skill
	RequireSkillMatch bool `mapstructure:"require_skill_match"`
}

// LoggingConfig controls engine logging
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `mapstructure:"level"`
	// Dir holds engine.log. Empty logs to stderr.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB rotates engine.log at this size (0 disables rotation)
	MaxSizeMB int `mapstructure:"max_size_mb" validate:"gte=0,lte=1000"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `mapstructure:"max_backups" validate:"gte=0"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	// Path is the Badger database directory. Required unless InMemory is set.
	Path string `mapstructure:"path" validate:"required_unless=InMemory true"`
	// InMemory keeps all data in RAM for the life of the process
	InMemory bool `mapstructure:"in_memory"`
	// SyncWrites fsyncs every commit (default: true)
	SyncWrites bool `mapstructure:"sync_writes"`
}

// MetricsConfig controls Prometheus instrumentation
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Namespace prefixes every metric name (default: "mesched")
	Namespace string `mapstructure:"namespace"`
}

// CriticalPathTimeout returns the critical path timeout as a time.Duration (0 means the engine default)
func (c *SchedulerConfig) CriticalPathTimeout() time.Duration {
	return time.Duration(c.CriticalPathTimeoutMs) * time.Millisecond
}

// ResolvePath returns the database directory. An empty Path resolves to
// baseDir/store; "~" is expanded and relative paths are joined to baseDir.
func (s *StoreConfig) ResolvePath(baseDir string) string {
	if s.Path == "" {
		return filepath.Join(baseDir, "store")
	}
	path := s.Path
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxGraphNodes:         10000,
			MaxGraphEdges:         50000,
			CriticalPathTolerance: 0.001,
			CriticalPathTimeoutMs: 5000,
		},
		Assignment: AssignmentConfig{
			MaxActiveTasks:  10,
			WorkloadWeight:  1,
			UrgentWeight:    10,
			DefaultStrategy: "least_loaded",
		},
		Balancing: BalancingConfig{
			MaxTasksPerWorker: 5,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Store: StoreConfig{
			Path:       filepath.Join(DataDir(), "store"),
			SyncWrites: true,
		},
		Metrics: MetricsConfig{
			Namespace: "mesched",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Scheduler defaults
	viper.SetDefault("scheduler.max_graph_nodes", defaults.Scheduler.MaxGraphNodes)
	viper.SetDefault("scheduler.max_graph_edges", defaults.Scheduler.MaxGraphEdges)
	viper.SetDefault("scheduler.critical_path_tolerance", defaults.Scheduler.CriticalPathTolerance)
	viper.SetDefault("scheduler.critical_path_timeout_ms", defaults.Scheduler.CriticalPathTimeoutMs)

	// Assignment defaults
	viper.SetDefault("assignment.max_active_tasks", defaults.Assignment.MaxActiveTasks)
	viper.SetDefault("assignment.workload_weight", defaults.Assignment.WorkloadWeight)
	viper.SetDefault("assignment.urgent_weight", defaults.Assignment.UrgentWeight)
	viper.SetDefault("assignment.default_strategy", defaults.Assignment.DefaultStrategy)

	// Balancing defaults
	viper.SetDefault("balancing.max_tasks_per_worker", defaults.Balancing.MaxTasksPerWorker)
	viper.SetDefault("balancing.require_skill_match", defaults.Balancing.RequireSkillMatch)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Store defaults
	viper.SetDefault("store.path", defaults.Store.Path)
	viper.SetDefault("store.in_memory", defaults.Store.InMemory)
	viper.SetDefault("store.sync_writes", defaults.Store.SyncWrites)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load for an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mesched")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mesched"
	}
	return filepath.Join(home, ".config", "mesched")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the directory for the default store and logs
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mesched")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mesched"
	}
	return filepath.Join(home, ".local", "share", "mesched")
}

// ValidStrategies returns the assignment strategies accepted by default_strategy
func ValidStrategies() []string {
	return []string{"skill_match", "least_loaded", "round_robin", "priority", "proximity"}
}
