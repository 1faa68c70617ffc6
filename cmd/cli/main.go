package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyonweb/siteporter/cmd/cli/commands"
)

var rootCmd = &cobra.Command{
	Use:   "siteporter",
	Short: "siteporter CLI - manage site export/import jobs",
	Long: `siteporter is a command line tool for submitting, inspecting and
cancelling site export/import jobs through the siteporter API.`,
}

func init() {
	rootCmd.AddCommand(commands.GetJobsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
