package main

import (
	"os"

	"github.com/aretw0/ddialog/internal/cli"
	"github.com/aretw0/ddialog/internal/presentation/tui"
	"github.com/aretw0/ddialog/pkg/runner"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the dialogs in the terminal",
	Long: `Starts an interactive console conversation. Progress is saved to the
configured store, so --session resumes an earlier conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cfg, logger, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		jsonMode, _ := cmd.Flags().GetBool("json")

		var handler runner.IOHandler
		if jsonMode {
			handler = runner.NewJSONHandler(cmd.InOrStdin(), cmd.OutOrStdout())
		} else {
			var opts []runner.TextHandlerOption
			if tui.IsTerminal(os.Stdout) {
				tui.PrintBanner(cmd.OutOrStdout())
				if render, err := tui.NewRenderer(); err == nil {
					opts = append(opts, runner.WithTextHandlerRenderer(render))
				}
			}
			handler = runner.NewTextHandler(cmd.InOrStdin(), cmd.OutOrStdout(), opts...)
		}

		r := runner.New(rt.Engine,
			runner.WithHandler(handler),
			runner.WithConversationID(sessionID),
			runner.WithLocale(cfg.Locale),
			runner.WithLogger(logger),
		)
		if !jsonMode {
			cli.PrintSystemMessage(cmd.OutOrStdout(), "Conversation %s. Type 'exit' to leave, '/reset' to start over.", r.ConversationID())
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		return r.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Conversation id to resume (default: a new id)")
	chatCmd.Flags().Bool("json", false, "Use JSON-Lines input/output")
}
