package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	index "go-steam-librarian/index"
	"go-steam-librarian/internal/api"
	"go-steam-librarian/internal/catalog"
	"go-steam-librarian/internal/database"
	"go-steam-librarian/internal/downloader"
	"go-steam-librarian/internal/models"
	"go-steam-librarian/internal/progress"
	"go-steam-librarian/internal/report"
	"go-steam-librarian/internal/scraper"
	"go-steam-librarian/internal/settings"
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape storefront metadata and artwork for cataloged games",
	Long: `Scrapes storefront metadata for the games in a stored collection and
optionally downloads their artwork (banner, fanart, screenshots, trailer
stub). Per-game failures are recorded on the entry and do not stop the pass;
the collection is only committed when the pass finishes.`,
	Run: runScrape,
}

// Persistent flags for logging level and format, registered in cmd_scrape_setup.go
var logLevel string
var logFormat string

// createApiClient creates the HTTP client used for storefront API calls,
// with the globally configured transport (which may include logging).
func createApiClient() *http.Client {
	clientTimeout := time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second
	if clientTimeout <= 0 {
		clientTimeout = 30 * time.Second
		log.Warnf("Invalid ApiClientTimeoutSec (%d), using default: %v", globalConfig.ApiClientTimeoutSec, clientTimeout)
	}

	if globalHttpTransport == nil {
		// Fallback in case root command setup failed silently
		log.Error("Global HTTP transport not initialized, using default transport without logging.")
		globalHttpTransport = http.DefaultTransport
	}

	return &http.Client{
		Timeout:   clientTimeout,
		Transport: globalHttpTransport,
	}
}

// createDownloadClient creates the HTTP client used for artwork downloads.
// Artwork files run larger than API responses, so the timeout is generous.
func createDownloadClient() *http.Client {
	if globalHttpTransport == nil {
		log.Error("Global HTTP transport not initialized, using default transport without logging.")
		globalHttpTransport = http.DefaultTransport
	}

	return &http.Client{
		Timeout:   15 * time.Minute,
		Transport: globalHttpTransport,
	}
}

// runScrape is the main execution function for the scrape command.
func runScrape(cmd *cobra.Command, args []string) {
	initLogging()
	log.Info("Starting Steam Librarian - Scrape Command")

	// --- Database Setup ---
	db := openDatabaseOrDefault()
	defer func() {
		log.Info("Closing database.")
		if err := db.Close(); err != nil {
			log.Errorf("Error closing database: %v", err)
		}
	}()

	store := catalog.NewStore(db)
	st := &settings.DBStore{DB: db, Cfg: &globalConfig}

	// =============================================
	// Phase 1: Catalog Load & Target Selection
	// =============================================
	source := resolveSource(cmd)
	entries, err := store.Load(source)
	if err != nil {
		log.WithError(err).Fatalf("Failed to load collection %q", source)
	}
	if len(entries) == 0 {
		log.Infof("No entries in source %q. Run 'steam-librarian scan' first.", source)
		return
	}

	// batch is the slice handed to the strategy. For a single-entry run it is
	// a copy that gets folded back before committing.
	batch := entries
	var target *models.CatalogEntry
	if entryRef := viper.GetString("scrape.entry"); entryRef != "" {
		found, ok := catalog.FindEntry(entries, entryRef)
		if !ok {
			log.Fatalf("No entry matching %q found in source %q", entryRef, source)
		}
		target = found
		batch = []models.CatalogEntry{*found}
		log.Infof("Limiting scrape to entry %s (%s)", found.ID, found.Name)
	}

	metaOnly := globalConfig.ScrapeMetaOnly
	if cmd.Flags().Changed("meta-only") {
		metaOnly, _ = cmd.Flags().GetBool("meta-only")
	}
	downloadArtwork := globalConfig.DownloadAssets
	if cmd.Flags().Changed("download") {
		downloadArtwork, _ = cmd.Flags().GetBool("download")
	}
	if metaOnly && downloadArtwork {
		log.Debug("--meta-only set, artwork download will be skipped.")
		downloadArtwork = false
	}

	kinds, err := resolveAssetKinds(st, cmd)
	if err != nil {
		log.Fatalf("Invalid --assets value: %v", err)
	}

	savePath := globalConfig.SavePath
	if downloadArtwork && savePath == "" {
		log.Fatal("SavePath is not set in config. Cannot download artwork.")
	}

	// =============================================
	// Phase 2: Summary & Confirmation
	// =============================================
	log.Infof("Found %d game(s) to scrape in source %q.", len(batch), source)
	if metaOnly {
		log.Info("Metadata only: artwork discovery and download are skipped.")
	} else if !downloadArtwork {
		log.Info("Artwork descriptors will be discovered but not downloaded (use --download).")
	}

	skipConfirmation := viper.GetBool("scrape.yes") || globalConfig.SkipConfirmation
	if !skipConfirmation {
		fmt.Printf("Proceed with scrape? (y/N): ")
		reader := bufio.NewReader(os.Stdin)
		confirm, _ := reader.ReadString('\n')
		confirm = strings.TrimSpace(strings.ToLower(confirm))

		if confirm != "y" {
			log.Info("Scrape cancelled by user.")
			return
		}
		log.Info("User confirmed scrape.")
	} else {
		log.Info("Skipping confirmation prompt (--yes flag or SkipConfirmation).")
	}

	// =============================================
	// Phase 3: Scrape Execution
	// =============================================
	apiClient := api.NewClient(&api.HTTPFetcher{HttpClient: createApiClient()}, globalConfig)
	sc := scraper.New(apiClient, &database.PayloadCache{DB: db}, st)
	if err := sc.CheckBeforeScraping(); err != nil {
		log.WithError(err).Fatal("Scraper credential check failed")
	}

	var download scraper.DownloadFunc
	finish := func() assetTally { return assetTally{} }
	if downloadArtwork {
		concurrency := viper.GetInt("scrape.concurrency")
		if concurrency <= 0 {
			concurrency = st.GetInt(settings.Concurrency)
			if concurrency <= 0 {
				concurrency = 3
				log.Warnf("Concurrency not set or invalid in config/flags, using default: %d", concurrency)
			}
		}
		// Sweep leftovers from an interrupted run before workers write new ones.
		if removed, err := downloader.CleanupTempFiles(savePath); err != nil {
			log.WithError(err).Warn("Could not sweep leftover temporary files")
		} else if len(removed) > 0 {
			log.Infof("Removed %d leftover .tmp file(s) from a previous run.", len(removed))
		}

		log.Infof("Starting %d artwork download workers...", concurrency)
		dl := downloader.NewDownloader(createDownloadClient())
		download, finish = startAssetPool(concurrency, savePath, dl)
	}

	rep := progress.NewLive()
	defer rep.Shutdown()

	var rw report.Writer = report.Discard{}
	reportFile, err := report.NewFile(resolveReportsDir(), "scrape", source)
	if err != nil {
		log.WithError(err).Warn("Could not open report file, continuing without one.")
	} else {
		rw = reportFile
		defer func() {
			if err := reportFile.Close(); err != nil {
				log.WithError(err).Warn("Error closing report file")
			}
		}()
	}

	strat := scraper.NewStrategy(sc, scraper.StrategyOptions{
		Progress:   rep,
		Report:     rw,
		Download:   download,
		MetaOnly:   metaOnly,
		AssetKinds: kinds,
	})

	outcome, err := strat.ScrapeBatch(batch)
	tally := finish() // drain the pool even when the batch aborted
	if err != nil {
		if errors.Is(err, progress.ErrCancelled) {
			log.Info("Scrape cancelled. No changes were committed.")
			return
		}
		if errors.Is(err, api.ErrRateLimitExhausted) {
			log.Error("Steam API rate limit exhausted. No changes were committed; try again later.")
			os.Exit(1)
		}
		log.WithError(err).Fatal("Scrape failed")
	}

	// =============================================
	// Phase 4: Commit & Index
	// =============================================
	if target != nil {
		*target = batch[0] // fold the scraped copy back into the collection
	}
	if err := store.Commit(source, entries); err != nil {
		log.WithError(err).Fatal("Failed to commit scraped entries")
	}
	log.Infof("Committed %d entries to source %q.", len(entries), source)

	updateSearchIndex(source, batch)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Scraped", "Failed", "Artwork Saved", "Artwork Failed"})
	t.AppendRow(table.Row{source, outcome.Scraped, outcome.Failed, tally.Saved, tally.Failed})
	t.Render()

	if reportFile != nil {
		log.Infof("Scrape report written to %s", reportFile.Path())
	}
	log.Info("Scrape complete.")
}

// resolveIndexPath returns the Bleve index location, preferring the config
// override and falling back to librarian.bleve next to the artwork.
func resolveIndexPath() string {
	if globalConfig.BleveIndexPath != "" {
		return globalConfig.BleveIndexPath
	}
	if globalConfig.SavePath == "" {
		return ""
	}
	return filepath.Join(globalConfig.SavePath, "librarian.bleve")
}

// updateSearchIndex pushes the scraped entries into the Bleve index. Index
// trouble is logged and swallowed: the catalog commit already succeeded and
// the index can be rebuilt by re-running the scrape.
func updateSearchIndex(source string, entries []models.CatalogEntry) {
	indexPath := resolveIndexPath()
	if indexPath == "" {
		log.Debug("Neither BleveIndexPath nor SavePath is set, skipping index update.")
		return
	}

	idx, err := index.OpenOrCreateIndex(indexPath)
	if err != nil {
		log.WithError(err).Warn("Could not open search index, skipping index update.")
		return
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.WithError(err).Warn("Error closing search index")
		}
	}()

	indexed := 0
	for _, entry := range entries {
		if entry.Status != models.StatusScraped {
			continue
		}
		if err := index.IndexItem(idx, index.ItemFromEntry(source, entry)); err != nil {
			log.WithError(err).Warnf("Failed to index %s", entry.Name)
			continue
		}
		indexed++
	}
	log.Infof("Search index updated with %d entries at %s", indexed, indexPath)
}
