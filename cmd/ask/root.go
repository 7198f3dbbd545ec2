package main

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	baseURL string
	timeout time.Duration
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "ask",
	Short: "Query a quorum orchestrator",
	Long: `ask sends queries to a quorum orchestrator (or any agent speaking the
same tasks/send protocol) and shows the answer, optionally as a live stream
of the agents at work.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	def := os.Getenv("QUORUM_URL")
	if def == "" {
		def = "http://localhost:8000"
	}
	rootCmd.PersistentFlags().StringVarP(&baseURL, "url", "u", def, "orchestrator base URL (env QUORUM_URL)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *a2a.Client {
	return a2a.NewClient(timeout, nil)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ask version %s\n", version)
	},
}
