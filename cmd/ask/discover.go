package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cardJSON bool

var cardCmd = &cobra.Command{
	Use:   "card [url]",
	Short: "Show an agent card",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := baseURL
		if len(args) == 1 {
			target = args[0]
		}
		card, err := newClient().Card(cmd.Context(), target)
		if err != nil {
			return fmt.Errorf("card: %w", err)
		}

		w := cmd.OutOrStdout()
		if cardJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(card)
		}
		fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint(card.Name), card.Version)
		if card.Description != "" {
			fmt.Fprintf(w, "%s\n", card.Description)
		}
		fmt.Fprintf(w, "url:       %s\n", card.URL)
		fmt.Fprintf(w, "streaming: %v\n", card.Capabilities.Streaming)
		fmt.Fprintln(w, "skills:")
		for _, s := range card.Skills {
			fmt.Fprintf(w, "  %s  %s\n", color.CyanString("%-22s", s.ID), s.Description)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health [url...]",
	Short: "Check agent health endpoints",
	Long:  "Checks the orchestrator, or every URL given, and exits non-zero if any is down.",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := args
		if len(targets) == 0 {
			targets = []string{baseURL}
		}
		client := newClient()

		down := 0
		for _, url := range targets {
			h, err := client.Health(cmd.Context(), url)
			if err != nil {
				down++
				printStatus(cmd.OutOrStdout(), "✗", url+": "+err.Error(), color.FgRed)
				continue
			}
			printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("%s: %s (%s)", url, h.Status, h.Agent), color.FgGreen)
		}
		if down > 0 {
			return fmt.Errorf("%d of %d agents unreachable", down, len(targets))
		}
		return nil
	},
}

func init() {
	cardCmd.Flags().BoolVar(&cardJSON, "json", false, "print the raw card as JSON")
}

func printStatus(w io.Writer, symbol, msg string, attr color.Attribute) {
	fmt.Fprintf(w, "%s %s\n", color.New(attr).Sprint(symbol), msg)
}
