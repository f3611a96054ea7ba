package main

import (
	"fmt"

	"github.com/aretw0/tendril/internal/demo"
	"github.com/aretw0/tendril/internal/presentation/graph"
	"github.com/aretw0/tendril/pkg/topic"
	"github.com/aretw0/tendril/pkg/workflow"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the topic graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) with one subgraph per topic.
With --conversation, the stored conversation's active topic, current activity
and paused callers are highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry("graph")
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if id, _ := cmd.Flags().GetString("conversation"); id != "" {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			snap, err := a.backend.Store.Load(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to load conversation '%s': %w", id, err)
			}
			overlay = graph.OverlayFromSnapshot(snap)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(reg.All(), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("conversation", "", "Highlight the state of a stored conversation")
}

// buildRegistry builds the demo topics for inspection, outside any live conversation.
func buildRegistry(id string) (*topic.Registry, error) {
	catalog, err := demo.Catalog()
	if err != nil {
		return nil, err
	}
	return catalog.Build(topic.EnvFor(workflow.NewConversation(id)))
}
