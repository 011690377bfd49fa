package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ancourn/kaldr/logx"
)

var rootCmd = &cobra.Command{
	Use:   "kaldr",
	Short: "Kaldr blockchain node CLI",
	Long:  "Command line interface for running and managing a Kaldr blockchain node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
