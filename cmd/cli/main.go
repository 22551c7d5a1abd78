package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cradleeye/internal/cli/commands"
)

func main() {
	root := &cobra.Command{
		Use:   "cradleeye-cli",
		Short: "Operator CLI for a running CradleEye appliance",
	}

	root.AddCommand(commands.NewAlertCommand())
	root.AddCommand(commands.NewStatsCommand())
	root.AddCommand(commands.NewChannelCommand())
	root.AddCommand(commands.NewClientCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
