package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-steam-librarian/internal/api"
	"go-steam-librarian/internal/catalog"
	"go-steam-librarian/internal/database"
	"go-steam-librarian/internal/models"
	"go-steam-librarian/internal/progress"
	"go-steam-librarian/internal/report"
	"go-steam-librarian/internal/scanner"
	"go-steam-librarian/internal/settings"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Read the Steam account's library into the catalog",
	Long: `Fetches the games owned by the configured Steam account and reconciles
them against the stored collection: new games are added, games no longer in
the library are dropped. Entries that survive keep their scraped metadata
and artwork records.`,
	Run: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("source", "s", "", "Collection to scan into (defaults to SourceName from config)")
	scanCmd.Flags().String("steam-id", "", "64-bit Steam account id to read (overrides config)")
	scanCmd.Flags().Bool("show-config", false, "Print the effective configuration as JSON and exit")
	scanCmd.Flags().Bool("debug-print-api-url", false, "Print the owned-games API URL (key redacted) and exit")
}

// scanParams is the parameter section printed by --show-config.
type scanParams struct {
	Source  string `json:"source"`
	SteamID string `json:"steamId"`
}

func runScan(cmd *cobra.Command, args []string) {
	initLogging()
	log.Info("Starting Steam Librarian - Scan Command")

	source := resolveSource(cmd)

	// Override SteamID if flag was used
	if cmd.Flags().Changed("steam-id") {
		steamID, _ := cmd.Flags().GetString("steam-id")
		if steamID != "" {
			globalConfig.SteamID = steamID
			log.Debugf("Overriding SteamID based on --steam-id flag: %s", steamID)
		} else {
			log.Warn("--steam-id flag provided but value is empty, ignoring.")
		}
	}

	// Debug flags print and exit before anything touches the database.
	if showConfig, _ := cmd.Flags().GetBool("show-config"); showConfig {
		printScanConfig(source)
		return
	}
	if debugURL, _ := cmd.Flags().GetBool("debug-print-api-url"); debugURL {
		fmt.Println(api.RedactURL(models.OwnedGamesURL(globalConfig.ApiKey, globalConfig.SteamID)))
		return
	}

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
	client := api.NewClient(&api.HTTPFetcher{HttpClient: createApiClient()}, globalConfig)

	rep := progress.NewLive()
	defer rep.Shutdown()

	var rw report.Writer = report.Discard{}
	reportFile, err := report.NewFile(resolveReportsDir(), "scan", source)
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

	// --- Scan Execution ---
	log.Infof("Scanning Steam library into source %q", source)
	sc := scanner.New(client, store, st, rep, rw)
	res, err := sc.Scan(source)
	if err != nil {
		if errors.Is(err, progress.ErrCancelled) {
			log.Info("Scan cancelled. The stored collection was left untouched.")
			return
		}
		log.WithError(err).Fatal("Scan failed")
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "New", "Dead", "Total"})
	t.AppendRow(table.Row{source, res.NewCount, res.DeadCount, res.Total})
	t.Render()

	if reportFile != nil {
		log.Infof("Scan report written to %s", reportFile.Path())
	}
	log.Info("Scan complete.")
}

// resolveSource picks the collection name: the --source flag wins, then the
// config, then a plain default so a fresh setup still works.
func resolveSource(cmd *cobra.Command) string {
	source, _ := cmd.Flags().GetString("source")
	if source == "" {
		source = globalConfig.SourceName
	}
	if source == "" {
		source = "steam"
		log.Warnf("Source name not set in config or flags, defaulting to: %s", source)
	}
	return source
}

// resolveReportsDir returns where report files go, preferring the configured
// ReportsPath and falling back to a reports folder under SavePath.
func resolveReportsDir() string {
	if globalConfig.ReportsPath != "" {
		return globalConfig.ReportsPath
	}
	if globalConfig.SavePath != "" {
		return filepath.Join(globalConfig.SavePath, "reports")
	}
	return "reports"
}

// openDatabaseOrDefault opens the catalog database, deriving a default
// location next to the artwork when DatabasePath is not configured.
func openDatabaseOrDefault() *database.DB {
	dbPath := globalConfig.DatabasePath
	if dbPath == "" {
		if globalConfig.SavePath != "" {
			dbPath = filepath.Join(globalConfig.SavePath, "librarian_db")
			log.Warnf("DatabasePath not set in config, defaulting to: %s", dbPath)
		} else {
			log.Fatalf("DatabasePath and SavePath are not set in config. Cannot determine database location.")
		}
	}
	log.Infof("Opening database at: %s", dbPath)
	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return db
}

// printScanConfig prints the effective configuration and the scan parameters
// as separate JSON sections. The API key is masked; use --debug-print-api-url
// to inspect the request shape instead.
func printScanConfig(source string) {
	cfg := globalConfig
	if cfg.ApiKey != "" {
		cfg.ApiKey = "***"
	}

	cfgJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		log.WithError(err).Error("Failed to marshal global config")
		return
	}
	fmt.Println("--- Global Config Settings ---")
	fmt.Println(string(cfgJSON))

	params := scanParams{Source: source, SteamID: globalConfig.SteamID}
	paramsJSON, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		log.WithError(err).Error("Failed to marshal scan parameters")
		return
	}
	fmt.Println("--- Scan Parameters ---")
	fmt.Println(string(paramsJSON))
}
