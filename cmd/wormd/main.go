// Package main implements wormd, the rule and knowledge orchestration
// daemon for coding agents. It serves the orchestration operations over
// HTTP and exposes the same operations as one-shot CLI commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wormd",
	Short: "Rule and knowledge orchestration for coding agents",
	Long: `wormd sits between an automated coding agent and a library of
behavioral rules and knowledge documents. It classifies tasks, selects the
rules that apply, generates staged execution plans with quality gates, and
answers knowledge queries over an embedded vector index.

Every operation degrades gracefully: without a reasoning backend wormd runs
on heuristics alone and still produces a usable result.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(selectRulesCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statusCmd)
}
