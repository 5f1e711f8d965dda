package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"OpenRebalancer/internal/rebalance"
)

func newPlanCmd(root *rootOptions) *cobra.Command {
	var (
		address string
		targets string
		step    int
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute a rebalance plan, or the transaction of one step",
		Example: `  rebalancerd plan -a 0xabc... -t BTC=40,ETH=40,SOL=20
  rebalancerd plan -a 0xabc... -t BTC=40,ETH=40,SOL=20 --step 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := parseOwner(address)
			if err != nil {
				return err
			}
			allocation, err := parseAllocation(targets)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer out.Flush()

			if step < 0 {
				plan, err := a.sequencer.Plan(cmd.Context(), rebalance.PlanRequest{Address: owner, Allocation: allocation})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "total value\t$%s\n", plan.Snapshot.TotalValue().StringFixed(2))
				fmt.Fprintln(out, "#\tsymbol\tdirection\tamount_usd\tcurrent\ttarget")
				for i, action := range plan.Actions {
					fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\t%s\n", i, action.Symbol, action.Direction,
						action.AmountUSD.StringFixed(2), action.CurrentValueUSD.StringFixed(2), action.TargetValueUSD.StringFixed(2))
				}
				if plan.Len() == 0 {
					fmt.Fprintln(out, "portfolio already matches the target allocation")
				}
				return nil
			}

			result, err := a.sequencer.Step(cmd.Context(), rebalance.StepRequest{Address: owner, Allocation: allocation, Cursor: step})
			if err != nil {
				return err
			}
			tx := result.Transaction
			fmt.Fprintf(out, "action\t%s %s $%s\n", result.Action.Direction, result.Action.Symbol, result.Action.AmountUSD.StringFixed(2))
			fmt.Fprintf(out, "to\t%s\n", tx.To.Hex())
			fmt.Fprintf(out, "value\t%s wei (%s)\n", tx.Value, tx.ValueUnits)
			fmt.Fprintf(out, "gas\t%d @ %s wei\n", tx.GasLimit, tx.GasPrice)
			fmt.Fprintf(out, "nonce\t%d\n", tx.Nonce)
			fmt.Fprintf(out, "chain\t%s\n", tx.ChainID)
			fmt.Fprintf(out, "signing hash\t%s\n", tx.SigningHash().Hex())
			fmt.Fprintf(out, "next step\t%d\n", result.NextCursor)
			return nil
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "钱包地址")
	cmd.Flags().StringVarP(&targets, "targets", "t", "", "目标配置，如 BTC=40,ETH=40,SOL=20（顺序即执行顺序）")
	cmd.Flags().IntVar(&step, "step", -1, "要生成交易的动作序号，-1 表示输出完整计划")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("targets")
	return cmd
}

// parseAllocation 解析 SYMBOL=PERCENT 列表，保持输入顺序。
func parseAllocation(raw string) (rebalance.Allocation, error) {
	var targets []rebalance.Target
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		symbol, pct, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("目标配置格式错误: %q", part)
		}
		percent, err := decimal.NewFromString(strings.TrimSpace(pct))
		if err != nil {
			return nil, fmt.Errorf("目标配置 %s 的百分比非法: %w", symbol, err)
		}
		targets = append(targets, rebalance.Target{Symbol: symbol, Percent: percent})
	}
	return rebalance.NewAllocation(targets...)
}
