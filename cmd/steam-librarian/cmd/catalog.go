package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	index "go-steam-librarian/index"
	"go-steam-librarian/internal/catalog"
	"go-steam-librarian/internal/database"
	"go-steam-librarian/internal/downloader"
	"go-steam-librarian/internal/models"
)

// catalogCmd represents the base command for stored collection operations
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Interact with the stored library collections",
	Long:  `Perform operations like viewing, verifying, or deleting the collections recorded in the catalog database.`,
	// No Run function for the base catalog command itself
}

// catalogViewCmd represents the command to view entries of one collection
var catalogViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the entries stored for a source",
	Long:  `Lists the games that have been recorded for a source, including scraped metadata where present.`,
	Run:   runCatalogView,
}

// catalogVerifyCmd represents the command to verify stored artwork against the filesystem
var catalogVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify stored artwork files against their recorded hashes",
	Long: `Checks that every artwork file recorded for a source still exists at its
stored location and that its BLAKE3 digest matches the one recorded at
download time. Missing or corrupt files are reported; rerun
'steam-librarian scrape --download' to fetch them again.`,
	Run: runCatalogVerify,
}

// catalogSourcesCmd represents the command to list stored collections
var catalogSourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the sources with a stored collection",
	Long:  `Prints every source name found in the catalog database with entry counts.`,
	Run:   runCatalogSources,
}

// catalogDeleteCmd represents the command to drop a stored collection
var catalogDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the stored collection of a source",
	Long: `Removes the collection stored for a source from the catalog database and
drops its entries from the search index. Artwork files on disk are left
untouched; use 'clean' to tidy the artwork directory.`,
	Run: runCatalogDelete,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogViewCmd)
	catalogCmd.AddCommand(catalogVerifyCmd)
	catalogCmd.AddCommand(catalogSourcesCmd)
	catalogCmd.AddCommand(catalogDeleteCmd)

	catalogViewCmd.Flags().StringP("source", "s", "", "Source collection to view (defaults to the configured SourceName)")
	catalogVerifyCmd.Flags().StringP("source", "s", "", "Source collection to verify (defaults to the configured SourceName)")

	// Deleting defaults to nothing on purpose, the source must be named.
	catalogDeleteCmd.Flags().StringP("source", "s", "", "Source collection to delete")
	catalogDeleteCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	_ = catalogDeleteCmd.MarkFlagRequired("source")
}

// openCatalogDatabase opens the database for the catalog subcommands. Unlike
// scan and scrape these never write artwork, so there is no SavePath to
// derive a default from and a missing DatabasePath is fatal.
func openCatalogDatabase() *database.DB {
	if globalConfig.DatabasePath == "" {
		log.Fatal("Database path is not set in the configuration. Please check config file or path.")
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open database at %s", globalConfig.DatabasePath)
	}
	return db
}

func runCatalogView(cmd *cobra.Command, args []string) {
	initLogging()
	log.Info("Viewing catalog entries...")

	db := openCatalogDatabase()
	defer db.Close()

	store := catalog.NewStore(db)
	source := resolveSource(cmd)

	entries, err := store.Load(source)
	if err != nil {
		log.WithError(err).Fatalf("Failed to load collection for source %q", source)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0) // Adjust padding and alignment
	fmt.Fprintln(tw, "ID\tApp ID\tName\tYear\tGenre\tStatus\tScraped At")
	fmt.Fprintln(tw, "--\t------\t----\t----\t-----\t------\t----------")

	for _, entry := range entries {
		var year, genre string
		if entry.Meta != nil {
			year = entry.Meta.Year
			genre = entry.Meta.Genre
		}
		var scrapedAt string
		if entry.ScrapedAt > 0 {
			scrapedAt = time.Unix(entry.ScrapedAt, 0).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			entry.ID,
			entry.AppID,
			entry.Name,
			year,
			genre,
			entry.Status,
			scrapedAt,
		)
	}

	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for catalog view")
	}
	log.Infof("Displayed %d entries.", len(entries))
}

func runCatalogVerify(cmd *cobra.Command, args []string) {
	initLogging()
	log.Info("Verifying stored artwork against the filesystem...")

	db := openCatalogDatabase()
	defer db.Close()

	store := catalog.NewStore(db)
	source := resolveSource(cmd)

	entries, err := store.Load(source)
	if err != nil {
		log.WithError(err).Fatalf("Failed to load collection for source %q", source)
	}
	if len(entries) == 0 {
		log.Infof("No entries in source %q. Nothing to verify.", source)
		return
	}

	var totalFiles, foundOk, missing, mismatch int
	for _, entry := range entries {
		for _, file := range entry.Assets {
			totalFiles++
			verifyErr := downloader.VerifyAsset(file)
			fields := log.Fields{"path": file.Path, "kind": file.Kind, "entry": entry.Name}
			switch {
			case verifyErr == nil:
				foundOk++
				log.WithFields(fields).Info("[OK] File exists and hash matches.")
			case errors.Is(verifyErr, downloader.ErrHashMismatch):
				mismatch++
				log.WithFields(fields).Warn("[MISMATCH] File exists but hash mismatch.")
			case errors.Is(verifyErr, downloader.ErrFileSystem):
				missing++
				log.WithFields(fields).Error("[MISSING] File not found.")
			default:
				log.WithError(verifyErr).Errorf("[ERROR] Could not verify %s", file.Path)
			}
		}
	}

	log.Infof("Verification Summary: Total Files=%d, OK=%d, Missing=%d, Mismatch=%d",
		totalFiles, foundOk, missing, mismatch)
	if missing+mismatch > 0 {
		log.Warn("Rerun 'steam-librarian scrape --download' to fetch missing or corrupt files again.")
	}
	log.Info("Verification process completed.")
}

func runCatalogSources(cmd *cobra.Command, args []string) {
	initLogging()
	log.Info("Listing stored sources...")

	db := openCatalogDatabase()
	defer db.Close()

	store := catalog.NewStore(db)
	sources := store.Sources()
	if len(sources) == 0 {
		fmt.Println("No sources stored yet. Run 'steam-librarian scan' first.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Source\tEntries\tScraped")
	fmt.Fprintln(tw, "------\t-------\t-------")

	for _, source := range sources {
		entries, err := store.Load(source)
		if err != nil {
			log.WithError(err).Warnf("Failed to load collection for source %q, skipping.", source)
			continue
		}
		scraped := 0
		for _, entry := range entries {
			if entry.Status == models.StatusScraped {
				scraped++
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\n", source, len(entries), scraped)
	}

	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for catalog sources")
	}
	log.Infof("Found %d source(s).", len(sources))
}

func runCatalogDelete(cmd *cobra.Command, args []string) {
	initLogging()

	source, _ := cmd.Flags().GetString("source")
	skipConfirmation, _ := cmd.Flags().GetBool("yes")

	db := openCatalogDatabase()
	defer db.Close()

	store := catalog.NewStore(db)
	entries, err := store.Load(source)
	if err != nil {
		log.WithError(err).Fatalf("Failed to load collection for source %q", source)
	}
	if len(entries) == 0 {
		log.Infof("No collection stored for source %q. Nothing to delete.", source)
		return
	}

	if !skipConfirmation {
		fmt.Printf("Delete source %q with %d entries? (y/N): ", source, len(entries))
		reader := bufio.NewReader(os.Stdin)
		confirm, _ := reader.ReadString('\n')
		confirm = strings.TrimSpace(strings.ToLower(confirm))

		if confirm != "y" {
			log.Info("Delete cancelled by user.")
			return
		}
	}

	if err := store.Delete(source); err != nil {
		log.WithError(err).Fatalf("Failed to delete collection for source %q", source)
	}
	log.Infof("Deleted source %q (%d entries).", source, len(entries))

	removeFromSearchIndex(entries)
}

// removeFromSearchIndex drops the deleted entries from the Bleve index.
// Index trouble is logged and swallowed: the catalog delete already
// succeeded and a stale index only yields dangling search hits.
func removeFromSearchIndex(entries []models.CatalogEntry) {
	indexPath := resolveIndexPath()
	if indexPath == "" {
		log.Debug("No Bleve index path configured. Skipping index cleanup.")
		return
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		if err == bleve.ErrorIndexPathDoesNotExist {
			log.Debugf("No Bleve index at %s. Skipping index cleanup.", indexPath)
		} else {
			log.WithError(err).Warnf("Could not open Bleve index at %s. Skipping index cleanup.", indexPath)
		}
		return
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.WithError(err).Warn("Error closing Bleve index after cleanup.")
		}
	}()

	removed := 0
	for _, entry := range entries {
		if err := index.DeleteItem(idx, entry.ID); err != nil {
			log.WithError(err).Warnf("Could not remove entry %s from the search index.", entry.ID)
			continue
		}
		removed++
	}
	log.Infof("Removed %d entries from the search index.", removed)
}
