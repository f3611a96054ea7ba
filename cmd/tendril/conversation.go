package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Manage stored conversations",
	Long:    `List, inspect, and remove the conversations kept in the configured store.`,
}

var conversationLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ids, err := a.backend.Store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing conversations: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No stored conversations found.")
			return nil
		}
		fmt.Fprintln(out, "Stored Conversations:")
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var conversationInspectCmd = &cobra.Command{
	Use:   "inspect <conversation-id>",
	Short: "Inspect the snapshot of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		snap, err := a.backend.Store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading conversation '%s': %w", args[0], err)
		}
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling snapshot: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var conversationRmCmd = &cobra.Command{
	Use:   "rm <conversation-id>...",
	Short: "Remove one or more conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return errors.New("give at least one conversation id, or --all")
		}
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ids := args
		if all {
			if ids, err = a.backend.Store.List(cmd.Context()); err != nil {
				return fmt.Errorf("error listing conversations: %w", err)
			}
		}
		var errs []error
		for _, id := range ids {
			if err := a.backend.Store.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed conversation '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(conversationCmd)
	conversationCmd.AddCommand(conversationLsCmd)
	conversationCmd.AddCommand(conversationInspectCmd)
	conversationCmd.AddCommand(conversationRmCmd)

	conversationRmCmd.Flags().Bool("all", false, "Remove every stored conversation")
}
