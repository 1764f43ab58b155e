package cmd

import (
	"github.com/spf13/cobra"
)

const AppName = "digler"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - read-only data recovery engine for block storage devices",
	}

	rootCmd.AddCommand(DefineScanCommand())
	rootCmd.AddCommand(DefineRecoverCommand())
	rootCmd.AddCommand(DefineFormatsCommand())
	rootCmd.AddCommand(DefineMergeCommand())

	return rootCmd.Execute()
}
