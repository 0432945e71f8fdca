package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mesched",
	Short: "Task scheduling and dependency engine for manufacturing work orders",
	Long: `mesched manages the tasks of manufacturing work orders: their dependency
graph, readiness, critical path, splitting, and assignment to workers.

Data lives in a local store (see 'mesched config path'). Load a work order
with 'mesched import', then inspect and change it with the other commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error it returns. Interrupts
// cancel the command's context. Pass the error to ExitCode for the status.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/mesched/config.yaml)")
	rootCmd.PersistentFlags().StringP("tenant", "t", "default", "tenant to operate on")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format: text or json")
	rootCmd.PersistentFlags().String("metrics-file", "", "write Prometheus metrics to this file after the command (requires metrics.enabled)")
	rootCmd.PersistentFlags().String("trace-file", "", "append OpenTelemetry spans to this file as JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("metrics_file", rootCmd.PersistentFlags().Lookup("metrics-file"))
	_ = viper.BindPFlag("trace_file", rootCmd.PersistentFlags().Lookup("trace-file"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// e.g. MESCHED_ASSIGNMENT_DEFAULT_STRATEGY for assignment.default_strategy
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
