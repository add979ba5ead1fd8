package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-steam-librarian/internal/api"
	"go-steam-librarian/internal/scraper"
	"go-steam-librarian/internal/settings"
)

// searchSteamCmd represents the command to search the storefront for titles.
var searchSteamCmd = &cobra.Command{
	Use:   "steam",
	Short: "Search the Steam store for titles matching a term",
	Long: `Queries the storefront suggestion endpoint and prints the candidates
ranked the way the scraper ranks them: exact name matches first, substring
matches next, store order for ties.

Useful for finding the entry to scrape when a stored name is ambiguous:
  steam-librarian search steam -q "half-life"

No database or API key is required; the suggestion endpoint is public.`,
	Run: runSearchSteam,
}

func init() {
	searchCmd.AddCommand(searchSteamCmd) // Add to parent search command

	searchSteamCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Search term (game title or part of it)")
	_ = searchSteamCmd.MarkFlagRequired("query")
}

// runSearchSteam queries the storefront. It never opens the database, so it
// works before the first scan.
func runSearchSteam(cmd *cobra.Command, args []string) {
	initLogging()
	log.Info("Starting Search Steam Command")

	st := &settings.DBStore{Cfg: &globalConfig} // config-only, lookups fall back past the nil DB
	apiClient := api.NewClient(&api.HTTPFetcher{HttpClient: createApiClient()}, globalConfig)
	sc := scraper.New(apiClient, nil, st)

	candidates, err := sc.SearchCandidates(searchQuery)
	if err != nil {
		log.WithError(err).Fatalf("Store search for %q failed", searchQuery)
	}
	if len(candidates) == 0 {
		fmt.Println("No titles found matching your term.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Rank", "App ID", "Name", "Score"})
	for i, c := range candidates {
		t.AppendRow(table.Row{i + 1, c.AppID, c.Name, c.Score})
	}
	t.Render()

	log.Infof("Found %d candidates for %q.", len(candidates), searchQuery)
}
