package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/ddialog/internal/cli"
	"github.com/aretw0/ddialog/pkg/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Manage stored conversation progress",
	Long:    `List, inspect, and remove conversations in the configured progress store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, closer, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		ids, err := sessions.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No stored conversations found.")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:     "inspect <conversation-id>",
	Aliases: []string{"show"},
	Short:   "Print the stored progress of a conversation",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, closer, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		p, err := sessions.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading conversation '%s': %w", args[0], err)
		}

		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:     "rm <conversation-id>...",
	Aliases: []string{"delete"},
	Short:   "Remove one or more conversations",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, closer, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		for _, id := range args {
			if err := sessions.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("error removing conversation '%s': %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
		}
		return nil
	},
}

func openSessions(cmd *cobra.Command) (*session.Manager, io.Closer, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return cli.OpenSessions(cfg.Store, logger)
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd, sessionInspectCmd, sessionRmCmd)
}
