package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"OpenRebalancer/internal/events"
)

func newEventsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect transaction_ready events",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print transaction_ready events from RabbitMQ as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root.cfg.Events.Driver != "rabbitmq" {
				return errors.New("events tail 仅支持 rabbitmq 事件驱动")
			}
			bus, err := events.NewRabbitMQBus(root.cfg.Events.RabbitMQ)
			if err != nil {
				return err
			}
			defer bus.Close()

			enc := json.NewEncoder(os.Stdout)
			err = bus.Subscribe(cmd.Context(), func(_ context.Context, e events.TransactionReady) error {
				return enc.Encode(e)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	})
	return cmd
}
