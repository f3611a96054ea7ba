package main

import (
	"os"
	"strings"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long: `Starts an interactive conversation on standard input and output.
While a card is waiting, answer with JSON or key=value pairs, e.g. name=Ana, age=40.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		engine, err := a.engine()
		if err != nil {
			return err
		}

		headless, _ := cmd.Flags().GetBool("headless")
		jsonMode, _ := cmd.Flags().GetBool("json")
		id, _ := cmd.Flags().GetString("conversation")

		runner := tendril.NewRunner(cmd.InOrStdin(), cmd.OutOrStdout())
		runner.ConversationID = id
		runner.JSON = jsonMode
		runner.Headless = headless || jsonMode || !tui.IsTerminal(os.Stdout)
		if !runner.Headless {
			tui.PrintBanner(cmd.OutOrStdout(), strings.TrimSpace(tendril.Version))
			if render, err := tui.NewRenderer(tui.Width(os.Stdout)); err == nil {
				runner.Renderer = render
			} else {
				a.logger.Debug("markdown rendering disabled", "error", err)
			}
		}
		return runner.Run(cmd.Context(), engine)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().Bool("headless", false, "Plain output without banner, prompts or markdown rendering")
	chatCmd.Flags().Bool("json", false, "JSON-Lines mode: JSON values in, one turn object out per line")
	chatCmd.Flags().String("conversation", "local", "Conversation id, to resume a stored conversation")

	// chat is the default when no command is given.
	rootCmd.RunE = chatCmd.RunE
}
