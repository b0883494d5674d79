// jobmate-recommender-service, Phase 5
//
// Resume-to-job recommendations over a vector index of the jobs catalog.
//   - serve:       REST API (/recommend, /admin/*) plus gRPC health, with a
//                  background refresher that swaps in new index snapshots
//   - build-index: embeds the catalog, writes the index and uploads it
//
// Publishes EVENT_INDEX_RELOADED to Redis after every swap and listens on
// CMD_RELOAD_INDEX so one admin reload refreshes every replica.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"jobmate/recommender-service/internal/config"
	"jobmate/recommender-service/internal/logger"
)

const version = "1.0.0"

var (
	v          = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:          "recommender",
	Short:        "JobMate job recommender",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	pf.Bool("json", false, "log as JSON")
	pf.Bool("debug", false, "enable debug logging")
	_ = v.BindPFlag("log_json", pf.Lookup("json"))
	_ = v.BindPFlag("log_debug", pf.Lookup("debug"))

	rootCmd.AddCommand(serveCmd, buildIndexCmd)
}

// setup loads the configuration and builds the process logger.
func setup(v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
