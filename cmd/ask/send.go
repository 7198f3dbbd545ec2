package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <query>",
	Short: "Send a query and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		answer, err := newClient().SendTask(cmd.Context(), baseURL, query)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}
