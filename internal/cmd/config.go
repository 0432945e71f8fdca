package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify mesched configuration",
	Long: `View or modify mesched configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  mesched config set assignment.default_strategy skill_match
  mesched config set balancing.max_tasks_per_worker 8
  mesched config set logging.dir ~/.local/state/mesched

The new value is validated together with the rest of the configuration
before the file is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/mesched/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// configKeys lists the settable keys and their value types.
var configKeys = map[string]string{
	"scheduler.max_graph_nodes":          "int",
	"scheduler.max_graph_edges":          "int",
	"scheduler.critical_path_tolerance":  "float",
	"scheduler.critical_path_timeout_ms": "int",
	"assignment.max_active_tasks":        "int",
	"assignment.workload_weight":         "float",
	"assignment.urgent_weight":           "float",
	"assignment.default_strategy":        "string",
	"balancing.max_tasks_per_worker":     "int",
	"balancing.require_skill_match":      "bool",
	"logging.level":                      "string",
	"logging.dir":                        "string",
	"logging.max_size_mb":                "int",
	"logging.max_backups":                "int",
	"logging.compress":                   "bool",
	"store.path":                         "string",
	"store.in_memory":                    "bool",
	"store.sync_writes":                  "bool",
	"metrics.enabled":                    "bool",
	"metrics.namespace":                  "string",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	settings := map[string]any{
		"scheduler": map[string]any{
			"max_graph_nodes":          cfg.Scheduler.MaxGraphNodes,
			"max_graph_edges":          cfg.Scheduler.MaxGraphEdges,
			"critical_path_tolerance":  cfg.Scheduler.CriticalPathTolerance,
			"critical_path_timeout_ms": cfg.Scheduler.CriticalPathTimeoutMs,
		},
		"assignment": map[string]any{
			"max_active_tasks": cfg.Assignment.MaxActiveTasks,
			"workload_weight":  cfg.Assignment.WorkloadWeight,
			"urgent_weight":    cfg.Assignment.UrgentWeight,
			"default_strategy": cfg.Assignment.DefaultStrategy,
		},
		"balancing": map[string]any{
			"max_tasks_per_worker": cfg.Balancing.MaxTasksPerWorker,
			"require_skill_match":  cfg.Balancing.RequireSkillMatch,
		},
		"logging": map[string]any{
			"level":       cfg.Logging.Level,
			"dir":         cfg.Logging.Dir,
			"max_size_mb": cfg.Logging.MaxSizeMB,
			"max_backups": cfg.Logging.MaxBackups,
			"compress":    cfg.Logging.Compress,
		},
		"store": map[string]any{
			"path":        cfg.Store.ResolvePath(config.DataDir()),
			"in_memory":   cfg.Store.InMemory,
			"sync_writes": cfg.Store.SyncWrites,
		},
		"metrics": map[string]any{
			"enabled":   cfg.Metrics.Enabled,
			"namespace": cfg.Metrics.Namespace,
		},
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return err
	}
	return enc.Close()
}

func parseConfigValue(key, value string) (any, error) {
	keyType, ok := configKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'mesched config set --help' to see examples", key)
	}

	switch keyType {
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected number", key)
		}
		return f, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	typedValue, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}

	// Validate against the full configuration before touching the file
	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'mesched config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	d := config.Default()
	configContent := fmt.Sprintf(`# mesched configuration

# Dependency graph limits
scheduler:
  # Maximum tasks loaded for one work order (0 = unlimited)
  max_graph_nodes: %d
  # Maximum dependency edges in one work order (0 = unlimited)
  max_graph_edges: %d
  # Slack in hours below which a task is on the critical path
  critical_path_tolerance: %g
  # Time limit for one critical path computation
  critical_path_timeout_ms: %d

# Assignment engine
assignment:
  # Active tasks a worker may hold before it stops receiving new ones
  max_active_tasks: %d
  # Weight of active tasks for least_loaded selection
  workload_weight: %g
  # Cost of each URGENT or CRITICAL task for priority selection
  urgent_weight: %g
  # Strategy used when 'mesched assign' is given none
  # Options: %s
  default_strategy: %s

# Workload balancing
balancing:
  # Workers above this many active tasks give up waiting tasks
  max_tasks_per_worker: %d
  # Only move tasks to workers holding every required skill
  require_skill_match: false

# Logging
logging:
  # debug, info, warn or error
  level: %s
  # Directory for engine.log (empty logs to stderr)
  dir: ""
  # Rotate engine.log at this size
  max_size_mb: %d
  max_backups: %d
  compress: false

# Storage
store:
  # Database directory; relative paths are resolved against the data directory
  path: %s
  in_memory: false
  sync_writes: true

# Prometheus metrics (written with --metrics-file)
metrics:
  enabled: false
  namespace: %s
`,
		d.Scheduler.MaxGraphNodes, d.Scheduler.MaxGraphEdges,
		d.Scheduler.CriticalPathTolerance, d.Scheduler.CriticalPathTimeoutMs,
		d.Assignment.MaxActiveTasks, d.Assignment.WorkloadWeight, d.Assignment.UrgentWeight,
		strings.Join(config.ValidStrategies(), ", "), d.Assignment.DefaultStrategy,
		d.Balancing.MaxTasksPerWorker,
		d.Logging.Level, d.Logging.MaxSizeMB, d.Logging.MaxBackups,
		d.Store.Path, d.Metrics.Namespace,
	)

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize mesched's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", configFile)
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintf(out, "\nData directory: %s\n", config.DataDir())
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_ASSIGNMENT_DEFAULT_STRATEGY)\n", config.EnvPrefix, config.EnvPrefix)
	return nil
}
