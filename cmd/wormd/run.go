package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// contextFlags holds repeated --context key=value pairs.
var contextFlags []string

func init() {
	for _, cmd := range []*cobra.Command{orchestrateCmd, selectRulesCmd, planCmd} {
		cmd.Flags().StringArrayVar(&contextFlags, "context", nil, "task context as key=value (repeatable)")
	}
	queryCmd.Flags().IntP("k", "k", 0, "number of passages to retrieve (0 uses the configured default)")
}

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate <task>",
	Short: "Classify a task, select rules, and generate a plan",
	Example: `  wormd orchestrate "Add a read-only report endpoint" --context tech_stack=python
  wormd orchestrate "Migrate the billing schema" --context domain=payments`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}
		result, err := a.orch.Orchestrate(cmd.Context(), strings.Join(args, " "), parseContext(contextFlags))
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var selectRulesCmd = &cobra.Command{
	Use:   "select-rules <task>",
	Short: "Select the applicable rules for a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}
		sel, err := a.orch.SelectRules(cmd.Context(), strings.Join(args, " "), parseContext(contextFlags))
		if err != nil {
			return err
		}
		return printJSON(sel)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <task>",
	Short: "Generate a staged execution plan for a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}
		plan, err := a.orch.GeneratePlan(cmd.Context(), strings.Join(args, " "), parseContext(contextFlags))
		if err != nil {
			return err
		}
		return printJSON(plan)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Query the knowledge index",
	Long: `Query the knowledge index for passages relevant to a question.

The knowledge directory is indexed once before the query runs, so a cold
process still answers against the current corpus.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}
		if a.refresher != nil {
			if err := a.refresher.RefreshOnce(cmd.Context()); err != nil {
				return fmt.Errorf("index knowledge corpus: %w", err)
			}
		}
		k, _ := cmd.Flags().GetInt("k")
		resp, err := a.orch.QueryKnowledge(cmd.Context(), strings.Join(args, " "), k)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report backend, knowledge index, and rule catalog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}
		if a.refresher != nil {
			// Status is advisory: report what we have even if the
			// corpus cannot be indexed right now.
			if err := a.refresher.RefreshOnce(cmd.Context()); err != nil {
				fmt.Fprintln(os.Stderr, "warning: knowledge refresh failed:", err)
			}
		}
		return printJSON(a.orch.Status())
	},
}

// parseContext turns key=value pairs into the task context map. A pair
// without "=" becomes a key with an empty value.
func parseContext(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, _ := strings.Cut(p, "=")
		out[key] = value
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
