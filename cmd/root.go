// Package cmd implements the flexplan command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/volteq/flexplan/app"
	"github.com/volteq/flexplan/config"
	"github.com/volteq/flexplan/infra/logger"
)

var cfgPath string

// version is overridden at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "flexplan",
	Short:   "Portfolio balancing planner",
	Long:    "flexplan plans balancing schedules for portfolios of flexible assets and publishes them over MQTT.",
	Version: version,
	RunE:    run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New("main")
	svc, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()
	log.Infof("planning service up, %d portfolio(s) configured", len(cfg.Portfolios))
	return svc.Run(ctx)
}
