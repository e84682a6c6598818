package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "finsight",
	Short:         "Local document knowledge base with retrieval-augmented answers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the finsight version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("finsight version %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	rootCmd.AddCommand(
		serveCmd,
		ingestCmd,
		askCmd,
		statsCmd,
		clearCmd,
		saveCmd,
		loadCmd,
		taskCmd,
		versionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
