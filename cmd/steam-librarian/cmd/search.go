package cmd

import (
	"github.com/spf13/cobra"
)

// Query shared by the search subcommands
var searchQuery string

// searchCmd represents the base search command when called without subcommands.
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the Steam store or the local Bleve index",
	Long: `Provides subcommands to look up games by name.
Use 'search steam' to query the storefront or 'search local' to query the
Bleve index built while scraping.`,
	// No Run function, this is a parent command
}

func init() {
	rootCmd.AddCommand(searchCmd)

	// No flags defined here, they belong to subcommands (steam, local)
}
