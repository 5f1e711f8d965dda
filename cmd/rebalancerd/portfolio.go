package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newPortfolioCmd(root *rootOptions) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Print the valued holdings of an address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := parseOwner(address)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			snapshot, err := a.portfolio.Build(cmd.Context(), owner)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "钱包地址")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}
