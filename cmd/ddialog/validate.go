package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/ddialog"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check the dialog definitions",
	Long: `Loads every dialog and step, checks step references, value types and
telemetry addresses. Telemetry problems fail validation here.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			cfg.Dialogs = args[0]
		}

		eng, err := ddialog.New(cfg.Dialogs,
			ddialog.WithLogger(logger),
			ddialog.WithDefaultDialog(cfg.DefaultDialog),
			ddialog.WithStrictTelemetry(true),
			ddialog.WithRedaction(cfg.Telemetry.Redact...),
		)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, d := range eng.Catalog().Dialogs() {
			fmt.Fprintf(out, "%s: %s\n", d.Name, strings.Join(d.Steps, " -> "))
		}
		fmt.Fprintf(out, "%d dialogs, %d steps. Configuration is valid.\n",
			len(eng.Catalog().DialogNames()), len(eng.Catalog().Steps()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
