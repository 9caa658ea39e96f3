package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/ddialog/internal/cli"
	"github.com/aretw0/ddialog/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ddialog",
	Short: "ddialog runs configuration-driven, resumable dialogs",
	Long: `ddialog steps users through dialogs defined as JSON/YAML/Markdown files,
recognizing each reply and persisting progress between turns.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to ddialog.yaml (default: ./ddialog.yaml when present)")
	rootCmd.PersistentFlags().String("dir", "", "Dialogs directory (overrides the config file)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Dialogs = dir
	}

	debug, _ := cmd.Flags().GetBool("debug")
	logger, err := cli.CreateLogger(cmd.ErrOrStderr(), cfg.Log, debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newRuntime(cmd *cobra.Command) (*cli.Runtime, *config.Config, *slog.Logger, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	rt, err := cli.NewRuntime(cfg, logger, debug)
	if err != nil {
		return nil, nil, nil, err
	}
	return rt, cfg, logger, nil
}
