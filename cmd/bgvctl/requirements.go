package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bgv/internal/verification/evidence"
	"bgv/internal/verification/models"
)

func newRequirementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requirements",
		Short: "Inspect evidence requirement files",
	}
	cmd.AddCommand(newRequirementsValidateCmd())
	return cmd
}

func newRequirementsValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a YAML requirements file",
		Long:  "Parses the file, merges it over the built-in requirements and prints the effective policy per check type and package.",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := evidence.LoadFile(file)
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), catalog)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Requirements file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printCatalog(w io.Writer, catalog evidence.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK TYPE\tMODE\tDOCUMENTS")
	for _, t := range models.AllCheckTypes {
		cfg, ok := catalog.Requirements[t]
		if !ok {
			continue
		}
		mode := "any-of"
		if cfg.RequireAllMandatory {
			mode = "all"
		}
		docs := make([]string, 0, len(cfg.Documents))
		for _, d := range cfg.Documents {
			docs = append(docs, formatRequirement(d))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t, mode, strings.Join(docs, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	pkgs := make([]models.Package, 0, len(catalog.Packages))
	for p := range catalog.Packages {
		pkgs = append(pkgs, p)
	}
	slices.Sort(pkgs)
	for _, p := range pkgs {
		types := make([]string, 0, len(catalog.Packages[p]))
		for _, t := range catalog.Packages[p] {
			types = append(types, string(t))
		}
		fmt.Fprintf(w, "%s: %s\n", p, strings.Join(types, ", "))
	}
	fmt.Fprintln(w, "requirements OK")
	return nil
}

func formatRequirement(d evidence.DocumentRequirement) string {
	var b strings.Builder
	b.WriteString(string(d.Type))
	if d.MinCount > 1 {
		fmt.Fprintf(&b, " x%d", d.MinCount)
	}
	if !d.Mandatory {
		b.WriteString(" (optional)")
	}
	if d.MaxAgeDays > 0 {
		fmt.Fprintf(&b, " <=%dd", d.MaxAgeDays)
	}
	return b.String()
}
