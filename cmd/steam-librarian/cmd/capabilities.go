package cmd

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-steam-librarian/internal/scraper"
	"go-steam-librarian/internal/settings"
)

// capabilitiesCmd represents the command to print what the scraper can fill in.
var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Print the metadata fields and asset kinds the scraper supports",
	Long: `Prints the metadata fields the scraper can fill and the artwork kinds it
can discover. With --publish, the lists are also written to the settings
store in the database so other tools can read them without running a scrape.`,
	Run: runCapabilities,
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)

	capabilitiesCmd.Flags().Bool("publish", false, "Write the capability lists to the settings store")
}

func runCapabilities(cmd *cobra.Command, args []string) {
	initLogging()

	fmt.Printf("Metadata: %s\n", strings.Join(scraper.SupportedMetadata(), ", "))
	fmt.Printf("Assets:   %s\n", strings.Join(scraper.SupportedAssets(), ", "))

	publish, _ := cmd.Flags().GetBool("publish")
	if !publish {
		return
	}

	db := openCatalogDatabase()
	defer db.Close()

	st := &settings.DBStore{DB: db, Cfg: &globalConfig}
	sc := scraper.New(nil, nil, st)
	if err := sc.PublishCapabilities(); err != nil {
		log.WithError(err).Fatal("Failed to publish capabilities to the settings store")
	}
	log.Info("Capabilities published to the settings store.")
}
