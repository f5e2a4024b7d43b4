package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/routeplay/pkg/template"
)

func createTemplateCommand(flags *TemplateCreateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Create starter timeline documents",
		Long: `Create a timeline document for a common layout. Edit it and run it
with play, simulate or load.

Supported template types:
  single     - One line with a ripple on arrival
  relay      - Lines drawn one after another
  parallel   - Staggered lines drawn at the same time
  captioned  - A relay with a caption per leg

Examples:
  routeplay template --type=relay --name=ferry
  routeplay template --type=parallel --legs=5 --output=./lanes.json
  routeplay template --type=single --name=hello --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplate(cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.Type, "type", "", "template type (required): single, relay, parallel, captioned")
	cmd.Flags().StringVar(&flags.Name, "name", "", "subject prefix (defaults to type-sample)")
	cmd.Flags().StringVar(&flags.Output, "output", "", "output file path (defaults to name.json)")
	cmd.Flags().IntVar(&flags.Legs, "legs", 3, "number of subjects for relay, parallel and captioned")
	cmd.Flags().Int64Var(&flags.LegMS, "leg-ms", 1500, "drawing time of one line in milliseconds")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite existing file")
	if err := cmd.MarkFlagRequired("type"); err != nil {
		panic(err)
	}
	return cmd
}

func runTemplate(out io.Writer, f *TemplateCreateFlags) error {
	name := f.Name
	if name == "" {
		name = f.Type + "-sample"
	}
	outputPath := f.Output
	if outputPath == "" {
		outputPath = name + ".json"
	}
	if _, err := os.Stat(outputPath); err == nil && !f.Force {
		return fmt.Errorf("template file '%s' already exists (use --force to overwrite)", outputPath)
	}

	g := &template.Generator{Legs: f.Legs, LegMS: f.LegMS}
	content, err := g.GenerateJSON(template.TemplateType(f.Type), name)
	if err != nil {
		return fmt.Errorf("failed to generate template: %w", err)
	}
	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write template file: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Template '%s' created: %s\n", name, outputPath)
	_, _ = fmt.Fprintf(out, "Preview it with: routeplay simulate %s\n", outputPath)
	return nil
}
