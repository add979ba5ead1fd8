package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	// No Bleve/index import needed here, logic is in runSearchLogic
)

var searchLimit int

// searchLocalCmd represents the command to search the local catalog index.
var searchLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "Search the Bleve index of scraped catalog entries",
	Long: `Performs a search against the Bleve index built during scraping.
This searches the index located at '[SavePath]/librarian.bleve' unless
'BleveIndexPath' is set in the configuration.

Supports Bleve's query string syntax.

The following fields (using their lowercase JSON tag names) are indexed:
  - id (string): Catalog entry ID
  - appId (string): Store app id
  - name (string): Display title
  - source (string): Collection the entry belongs to
  - status (string): Entry lifecycle state (e.g., "scraped")
  - year (string): Release year
  - genre (string): Primary genre
  - developer (string): Developer name
  - plot (string): Short description text
  - rating (numeric): Metacritic score scaled to 0.0-1.0 (e.g., +rating:>0.8)
  - tags ([]string): Store category tags

Examples:
  steam-librarian search local -q "portal"
  steam-librarian search local -q "+genre:action +year:2011"
  steam-librarian search local -q "+tags:co-op" --limit 5`,
	Run: runSearchLocal,
}

func init() {
	searchCmd.AddCommand(searchLocalCmd) // Add to parent search command

	searchLocalCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Search query (uses Bleve query string syntax)")
	searchLocalCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of hits to print")
	_ = searchLocalCmd.MarkFlagRequired("query")
}

// runSearchLocal determines the index path and calls the shared search logic.
func runSearchLocal(cmd *cobra.Command, args []string) {
	initLogging()
	log.Info("Starting Search Local Command")

	indexPath := resolveIndexPath()
	if indexPath == "" {
		log.Fatal("Cannot determine Bleve index path: SavePath and BleveIndexPath are not set in config.")
	}

	runSearchLogic(indexPath, searchQuery, searchLimit)
}
