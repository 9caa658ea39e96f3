package main

import (
	"fmt"

	"github.com/aretw0/ddialog"
	"github.com/aretw0/ddialog/internal/cli"
	"github.com/aretw0/ddialog/internal/presentation/graph"
	"github.com/aretw0/ddialog/pkg/adapters/loam"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the dialogs as a Mermaid flowchart",
	Long: `Renders every dialog and its steps in Mermaid syntax.
With --session the stored position of that conversation is highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		loader, err := loam.Open(cfg.Dialogs)
		if err != nil {
			return err
		}
		catalog, err := ddialog.LoadCatalog(cmd.Context(), loader)
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if id, _ := cmd.Flags().GetString("session"); id != "" {
			sessions, closer, err := cli.OpenSessions(cfg.Store, logger)
			if err != nil {
				return err
			}
			defer closer.Close()

			p, err := sessions.Load(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("error loading conversation '%s': %w", id, err)
			}
			overlay = graph.OverlayFor(p)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(catalog, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Highlight the position of a stored conversation")
}
