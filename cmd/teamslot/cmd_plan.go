/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/teamslot/internal/logging"
	"github.com/friendsincode/teamslot/internal/planfile"
	"github.com/friendsincode/teamslot/internal/planning"
)

var (
	planNow           string
	planPretty        bool
	planVerbose       bool
	planMaxIterations int
)

var planCmd = &cobra.Command{
	Use:   "plan <file.yaml>",
	Short: "Plan a team's week from a YAML file without a database",
	Long: `Read members, work hours, calendar events and tasks from a YAML file,
place the tasks and print the resulting plan as JSON on stdout.

Examples:
  # Plan using the current time as "now"
  teamslot plan week.yaml

  # Reproducible run with a fixed clock
  teamslot plan week.yaml --now 2026-01-05T08:00:00Z --pretty
`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planNow, "now", "", "RFC 3339 time deadlines are judged against (default: current time)")
	planCmd.Flags().BoolVar(&planPretty, "pretty", false, "Indent the JSON output")
	planCmd.Flags().BoolVarP(&planVerbose, "verbose", "v", false, "Debug logging on stderr")
	planCmd.Flags().IntVar(&planMaxIterations, "max-iterations", 0, "Optimizer iteration cap (0 = default)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	env := "production"
	if planVerbose {
		env = "development"
	}
	log := logging.SetupWithWriter(env, os.Stderr)

	now := time.Now()
	if planNow != "" {
		parsed, err := time.Parse(time.RFC3339, planNow)
		if err != nil {
			return fmt.Errorf("--now: %w", err)
		}
		now = parsed
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open plan file: %w", err)
	}
	defer file.Close()

	plan, err := planfile.Load(file)
	if err != nil {
		return err
	}

	out, err := planfile.Run(plan, planfile.Options{
		Now:       now,
		Optimizer: planning.OptimizerConfig{MaxIterations: planMaxIterations},
	}, log)
	if err != nil {
		return err
	}

	log.Info().
		Int("assigned", len(out.Assignments)).
		Int("unassigned", len(out.Unassigned)).
		Int("score", out.Score).
		Msg("plan complete")

	enc := json.NewEncoder(cmd.OutOrStdout())
	if planPretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
