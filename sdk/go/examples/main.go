package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"OpenRebalancer/sdk/go/rebalancer"
)

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "rebalancer API base url")
	address := flag.String("address", "", "wallet address to rebalance")
	flag.Parse()
	if *address == "" {
		fmt.Fprintln(os.Stderr, "usage: examples -address 0x... [-url http://localhost:5000]")
		os.Exit(2)
	}

	client, err := rebalancer.NewClient(*baseURL, nil)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	p, err := client.Portfolio(ctx, *address)
	if err != nil {
		log.Fatal(err)
	}
	for _, h := range p.Holdings {
		fmt.Printf("%-6s amount=%s value=$%s\n", h.Symbol, h.Amount, h.Value.StringFixed(2))
	}
	fmt.Printf("total  $%s\n", p.TotalValue.StringFixed(2))

	allocation := rebalancer.Allocation{
		{Symbol: "BTC", Percent: decimal.NewFromInt(40)},
		{Symbol: "ETH", Percent: decimal.NewFromInt(40)},
		{Symbol: "SOL", Percent: decimal.NewFromInt(20)},
	}
	plan, err := client.Walk(ctx, *address, allocation, func(s rebalancer.Step) error {
		fmt.Printf("#%d %s %s $%s -> to=%s value=%s nonce=%d\n",
			s.ActionIndex, s.Action.Direction, s.Action.Symbol, s.Action.AmountUSD.StringFixed(2),
			s.Transaction.To, s.Transaction.Value, s.Transaction.Nonce)
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("prepared %d transactions\n", plan.TotalActions)
}
