package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cradleeye/internal/api/client"
)

func NewChannelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "channel",
		Short:   "Notification channel commands",
		Aliases: []string{"channels"},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "test [push|email|sms|webhook]",
		Short: "Send a test notification through a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			if err := c.TestChannel(args[0]); err != nil {
				return fmt.Errorf("channel test failed: %v", err)
			}
			fmt.Printf("Test notification sent via %s\n", args[0])
			return nil
		},
	})

	return cmd
}
