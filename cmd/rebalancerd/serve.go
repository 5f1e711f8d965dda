package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"OpenRebalancer/internal/api"
	"OpenRebalancer/internal/events"
	"OpenRebalancer/internal/observability/metrics"
	"OpenRebalancer/pkg/logger"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			g, ctx := errgroup.WithContext(ctx)
			server := api.NewServer(root.cfg.Server, a.apiDependencies())
			g.Go(func() error { return server.Start(ctx) })

			if metricsAddr != "" {
				g.Go(func() error { return metrics.StartServer(ctx, metricsAddr) })
			}
			// 内存事件总线在进程内消费，仅记录日志。
			if bus, ok := a.bus.(*events.MemoryBus); ok {
				g.Go(func() error { return bus.Subscribe(ctx, logEvent) })
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-address", "", "独立的 Prometheus 监听地址，为空时仅在 API 的 /metrics 暴露")
	return cmd
}

func logEvent(_ context.Context, e events.TransactionReady) error {
	logger.Named("events").Info("transaction_ready",
		zap.String("plan_token", e.PlanToken),
		zap.String("address", e.Address),
		zap.Int("action_index", e.ActionIndex),
		zap.Int("next_index", e.NextIndex),
		zap.String("symbol", e.Symbol),
		zap.String("direction", e.Direction),
		zap.String("amount_usd", e.AmountUSD))
	return nil
}
