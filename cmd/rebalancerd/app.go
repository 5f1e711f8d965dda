package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"OpenRebalancer/internal/api"
	"OpenRebalancer/internal/config"
	"OpenRebalancer/internal/events"
	"OpenRebalancer/internal/observability/alerting"
	"OpenRebalancer/internal/portfolio"
	"OpenRebalancer/internal/pricing"
	"OpenRebalancer/internal/rebalance"
	"OpenRebalancer/internal/txbuilder"
	"OpenRebalancer/internal/web3"
	"OpenRebalancer/internal/web3/ethereum"
	"OpenRebalancer/pkg/logger"
)

// app 持有进程内所有已装配的组件。
type app struct {
	cfg       *config.Config
	tokens    *web3.TokenTable
	chain     *ethereum.Client
	portfolio *portfolio.Builder
	wallets   *portfolio.Inspector
	sequencer *rebalance.Sequencer
	store     rebalance.PlanStore
	bus       events.Publisher
	alerts    *alerting.FanoutDispatcher
	closers   []func() error
}

func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.tokens, err = web3.NewTokenTable(cfg.Web3)
	if err != nil {
		return nil, err
	}

	a.chain, err = ethereum.Dial(ctx, cfg.Web3)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.chain.Close(); return nil })

	feed, err := pricing.NewCoinGecko(cfg.Pricing, pricing.WithLogger(logger.Named("pricing")))
	if err != nil {
		return nil, err
	}

	a.portfolio = portfolio.NewBuilder(a.tokens, a.chain, feed,
		portfolio.WithConcurrency(cfg.Rebalance.SnapshotConcurrency),
		portfolio.WithLogger(logger.Named("portfolio")))
	a.wallets = portfolio.NewInspector(a.tokens, a.chain, logger.Named("wallet"))

	threshold, err := cfg.Rebalance.Threshold()
	if err != nil {
		return nil, fmt.Errorf("解析 threshold_usd 失败: %w", err)
	}
	policy, err := txbuilder.PolicyFromConfig(cfg.Web3, cfg.Rebalance)
	if err != nil {
		return nil, err
	}
	skeletons := txbuilder.NewBuilder(a.tokens, a.chain, a.chain, policy)

	a.store, err = openPlanStore(ctx, cfg.PlanStore)
	if err != nil {
		return nil, err
	}
	if a.store != nil {
		a.closers = append(a.closers, a.store.Close)
	}

	a.bus, err = openPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.bus.Close)

	a.alerts = alerting.NewDispatcher(cfg.Alerting, logger.Named("alert"))

	opts := []rebalance.SequencerOption{rebalance.WithPublisher(a.bus)}
	if a.store != nil {
		opts = append(opts, rebalance.WithPlanStore(a.store, cfg.Rebalance.PlanTTL()))
	}
	a.sequencer = rebalance.NewSequencer(a.portfolio,
		rebalance.NewPlanner(rebalance.WithThreshold(threshold)),
		skeletons, opts...)

	logger.L().Info("rebalancer 组件装配完成",
		zap.Int64("chain_id", cfg.Web3.ChainID),
		zap.Int("tokens", len(a.tokens.Tokens())),
		zap.String("plan_store", cfg.PlanStore.Driver),
		zap.String("events", cfg.Events.Driver),
		zap.Strings("alert_channels", channelNames(a.alerts.Channels())))
	return a, nil
}

func openPlanStore(ctx context.Context, cfg config.PlanStoreConfig) (rebalance.PlanStore, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "", "memory":
		return rebalance.NewMemoryPlanStore(), nil
	case "redis":
		return rebalance.NewRedisPlanStore(ctx, cfg.Redis)
	case "mysql":
		return rebalance.NewMySQLPlanStore(ctx, cfg.MySQL)
	default:
		return nil, fmt.Errorf("未知的计划存储驱动: %s", cfg.Driver)
	}
}

func openPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return events.NoopPublisher{}, nil
	case "memory":
		return events.NewMemoryBus(1024), nil
	case "rabbitmq":
		return events.NewRabbitMQBus(cfg.RabbitMQ)
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Driver)
	}
}

func (a *app) apiDependencies() api.Dependencies {
	return api.Dependencies{
		Portfolio: a.portfolio,
		Rebalance: a.sequencer,
		Wallets:   a.wallets,
		Alerts:    a.alerts,
		Logger:    logger.Named("api"),
	}
}

// Close 按装配的逆序释放资源。
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func channelNames(chs []alerting.Channel) []string {
	out := make([]string, 0, len(chs))
	for _, ch := range chs {
		out = append(out, string(ch))
	}
	return out
}

func parseOwner(raw string) (common.Address, error) {
	addr, ok := web3.ParseAddress(strings.TrimSpace(raw))
	if !ok {
		return common.Address{}, fmt.Errorf("非法的地址: %q", raw)
	}
	return addr, nil
}
