package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cradleeye/internal/api/client"
	"github.com/cradleeye/internal/models"
)

func NewClientCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "client",
		Short:   "Streaming client commands",
		Aliases: []string{"clients"},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats [client_id]",
		Short: "Show quality state and network history for a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			stats, err := c.ClientStats(args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch client stats: %v", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "quality [client_id] [low|medium|high|ultra]",
		Short: "Force a client's stream quality",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			if err := c.SetQuality(args[0], models.QualityLevel(args[1])); err != nil {
				return fmt.Errorf("failed to set quality: %v", err)
			}
			fmt.Printf("Client %s quality set to %s\n", args[0], args[1])
			return nil
		},
	})

	return cmd
}
