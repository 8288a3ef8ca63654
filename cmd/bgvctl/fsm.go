package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bgv/internal/verification/models"
	"bgv/internal/verification/statemachine"
)

func newFSMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fsm",
		Short: "Validate and print the check transition table",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := statemachine.New(statemachine.DefaultTable)
			if err != nil {
				return fmt.Errorf("transition table is invalid: %w", err)
			}
			w := cmd.OutOrStdout()
			for _, from := range models.AllCheckStatuses {
				allowed := m.Allowed(from)
				targets := make([]string, 0, len(allowed))
				for _, to := range allowed {
					targets = append(targets, markTarget(to))
				}
				if m.IsTerminal(from) {
					targets = append(targets, "(terminal)")
				}
				fmt.Fprintf(w, "%-20s -> %s\n", from, strings.Join(targets, ", "))
			}
			fmt.Fprintln(w, "* requires evidence, ! requires approval")
			return nil
		},
	}
}

func markTarget(s models.CheckStatus) string {
	out := string(s)
	if statemachine.RequiresEvidence(s) {
		out += "*"
	}
	if statemachine.RequiresApproval(s) {
		out += "!"
	}
	return out
}
