package main

import (
	"fmt"

	"github.com/aretw0/tendril/internal/config"
	"github.com/aretw0/tendril/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the topics and the config file for consistency",
	Long: `Loads the configuration, builds every topic and reports triggers to
unknown topics, duplicate activity ids and unreachable activities.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(config.Path(path), path != "")
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		reg, err := buildRegistry("validate")
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if err := validator.ValidateRegistry(reg, validator.Required{cfg.FallbackTopic, cfg.EscalationTopic}); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d topics are valid! ✅\n", reg.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
