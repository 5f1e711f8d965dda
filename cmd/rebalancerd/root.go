package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"OpenRebalancer/internal/config"
	"OpenRebalancer/pkg/logger"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "rebalancerd",
		Short:         "On-chain portfolio valuation and rebalancing service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Logging); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "YAML 配置文件路径")

	cmd.AddCommand(
		newServeCmd(opts),
		newPortfolioCmd(opts),
		newPlanCmd(opts),
		newEventsCmd(opts),
	)
	return cmd
}

// defaultConfigPath 优先读取 REBALANCER_CONFIG，其次使用存在的默认文件。
func defaultConfigPath() string {
	if p := os.Getenv("REBALANCER_CONFIG"); p != "" {
		return p
	}
	p := filepath.Join("configs", "rebalancer.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}
