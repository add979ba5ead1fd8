package cmd

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-steam-librarian/internal/models"
	"go-steam-librarian/internal/settings"
)

// Allowed values for the --assets flag
var allowedAssetKinds = map[models.AssetKind]bool{
	models.AssetBanner:     true,
	models.AssetFanart:     true,
	models.AssetScreenshot: true,
	models.AssetTrailer:    true,
}

func init() {
	// Add scrapeCmd to rootCmd
	// Note: scrapeCmd itself is defined in scrape.go
	// This init() function needs to be called AFTER scrapeCmd is defined.
	// Go execution order ensures this if both files are in the same package.
	rootCmd.AddCommand(scrapeCmd)

	// Add persistent flags to rootCmd so they apply to all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")

	// Hook to configure logging before any command runs
	cobra.OnInitialize(initLogging)

	// Define flags specific to the scrape command
	scrapeCmd.Flags().StringP("source", "s", "", "Collection to scrape (defaults to SourceName from config)")
	scrapeCmd.Flags().StringP("entry", "e", "", "Scrape a single entry, matched by entry id or app id")
	scrapeCmd.Flags().StringSliceP("assets", "a", []string{}, "Asset kinds to cover (banner, fanart, screenshot, trailer). Overrides config.")
	scrapeCmd.Flags().Bool("meta-only", false, "Only scrape metadata, skip artwork discovery and download.")
	scrapeCmd.Flags().BoolP("download", "d", false, "Download discovered artwork files. Overrides config if set.")
	scrapeCmd.Flags().IntP("concurrency", "c", 0, "Number of concurrent artwork downloads (0 uses config value)")
	scrapeCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	// Bind flags to Viper
	viper.BindPFlag("scrape.entry", scrapeCmd.Flags().Lookup("entry"))
	viper.BindPFlag("scrape.assets", scrapeCmd.Flags().Lookup("assets"))
	viper.BindPFlag("scrape.meta_only", scrapeCmd.Flags().Lookup("meta-only"))
	viper.BindPFlag("scrape.download", scrapeCmd.Flags().Lookup("download"))
	viper.BindPFlag("scrape.concurrency", scrapeCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("scrape.yes", scrapeCmd.Flags().Lookup("yes"))
}

// initLogging configures logrus based on persistent flags
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.Infof("Logging configured: Level=%s, Format=%s", log.GetLevel(), logFormat)
}

// resolveAssetKinds decides which asset kinds a scrape pass covers. The
// --assets flag wins; otherwise the per-kind Save* settings decide, and a
// setup with every kind disabled falls back to all of them.
func resolveAssetKinds(st settings.Store, cmd *cobra.Command) ([]models.AssetKind, error) {
	if cmd.Flags().Changed("assets") {
		names, _ := cmd.Flags().GetStringSlice("assets")
		kinds := make([]models.AssetKind, 0, len(names))
		for _, name := range names {
			kind := models.AssetKind(strings.ToLower(strings.TrimSpace(name)))
			if !allowedAssetKinds[kind] {
				return nil, fmt.Errorf("unknown asset kind %q (valid: banner, fanart, screenshot, trailer)", name)
			}
			kinds = append(kinds, kind)
		}
		log.WithField("kinds", kinds).Debug("Overriding asset kinds with --assets flag value")
		return kinds, nil
	}

	var kinds []models.AssetKind
	if st.GetBool(settings.SaveBanners) {
		kinds = append(kinds, models.AssetBanner)
	}
	if st.GetBool(settings.SaveFanart) {
		kinds = append(kinds, models.AssetFanart)
	}
	if st.GetBool(settings.SaveScreenshots) {
		kinds = append(kinds, models.AssetScreenshot)
	}
	if st.GetBool(settings.SaveTrailers) {
		kinds = append(kinds, models.AssetTrailer)
	}
	if len(kinds) == 0 {
		log.Debug("No asset kinds enabled in settings, covering all of them.")
		kinds = models.AllAssetKinds()
	}
	return kinds, nil
}
