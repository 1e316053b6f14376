// Package cli provides the command-line interface for gitee-crawler.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/pkg/log"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "gitee-crawler",
	Short:         "Incrementally fetch Gitee issues, pull requests and repository snapshots",
	Long:          "gitee-crawler pulls repository activity from the Gitee v5 API page by page, checkpointing after every page so interrupted runs resume without loss or duplicates.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gitee-crawler %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default cfg/yaml/mode.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// env is what every command starts from.
type env struct {
	config *cfg.Config
	logger *log.CslLogger
}

// setup loads the config, applies the persistent flags and builds the
// logger. With watch set, log level changes in the file apply live.
func setup(watch bool) (*env, error) {
	opts := []cfg.ViperOption{cfg.WithWatch(watch)}
	if configFile != "" {
		opts = append(opts, cfg.WithConfigFile(configFile))
	}
	loader, _ := cfg.NewViperLoader(opts...)
	config, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		config.Log.Level = logLevel
	}

	logger, _ := log.NewCslLoggerWithLevel(os.Stderr, log.ParseLevel(config.Log.Level))
	if watch {
		loader.RegisterConfigChangeCallback(func(c *cfg.Config) {
			if logLevel != "" {
				return
			}
			logger.SetLevel(log.ParseLevel(c.Log.Level))
			logger.Notice(context.Background(), "Log level set to %s", log.ParseLevel(c.Log.Level))
		})
	}
	return &env{config: config, logger: logger}, nil
}
