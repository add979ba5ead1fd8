package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	index "go-steam-librarian/index"
)

func init() {
	// Assumes rootCmd is defined in root.go within the same package
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().Bool("strm", false, "Also remove *.strm trailer stubs")
	cleanCmd.Flags().Bool("reports", false, "Also remove scan/scrape report files")
	cleanCmd.Flags().Bool("index", false, "Also remove the Bleve search index directory")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove temporary (.tmp) files from the artwork directory",
	Long: `Recursively scans the configured SavePath and removes any files ending with
the .tmp extension left behind by interrupted downloads. Optionally removes
*.strm trailer stubs, old report files and the search index as well. The
index is rebuilt by the next scrape run.`,
	Run: runClean,
}

func runClean(cmd *cobra.Command, args []string) {
	// Access the globally loaded config from root.go's PersistentPreRunE
	cfg := globalConfig
	savePath := cfg.SavePath

	// Get flag values
	cleanStrm, _ := cmd.Flags().GetBool("strm")
	cleanReports, _ := cmd.Flags().GetBool("reports")
	cleanIndex, _ := cmd.Flags().GetBool("index")

	// --- Path Validation ---
	if savePath == "" {
		if cfg.DatabasePath != "" {
			savePath = filepath.Dir(cfg.DatabasePath)
			log.Warnf("SavePath is empty, inferring base directory from DatabasePath: %s", savePath)
		} else {
			log.Error("SavePath is not configured (and cannot be inferred from DatabasePath). Cannot determine where to clean.")
			os.Exit(1)
		}
	}
	info, err := os.Stat(savePath)
	if os.IsNotExist(err) {
		log.Errorf("SavePath directory does not exist: %s", savePath)
		os.Exit(1)
	}
	if err != nil {
		log.Errorf("Error accessing SavePath %q: %v", savePath, err)
		os.Exit(1)
	}
	if !info.IsDir() {
		log.Errorf("SavePath is not a directory: %s", savePath)
		os.Exit(1)
	}
	// --- End Path Validation ---

	logLine := fmt.Sprintf("Scanning for .tmp files in %s", savePath)
	if cleanStrm {
		logLine += " (and *.strm stubs)"
	}
	if cleanReports {
		logLine += " (and report files)"
	}
	if cleanIndex {
		logLine += " (and the search index)"
	}
	log.Info(logLine + "...")

	var tmpRemoved, strmRemoved int64
	var filesFailed int64

	walkErr := filepath.Walk(savePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warnf("Error accessing path %q during scan: %v", path, err)
			return nil
		}
		if info.IsDir() {
			return nil // Skip directories
		}

		lowerName := strings.ToLower(info.Name())
		shouldRemove := false
		fileType := ""

		// Check file types based on flags
		if strings.HasSuffix(lowerName, ".tmp") {
			shouldRemove = true
			fileType = ".tmp"
		} else if cleanStrm && strings.HasSuffix(lowerName, ".strm") {
			shouldRemove = true
			fileType = ".strm"
		}

		if shouldRemove {
			log.Debugf("Found %s file: %s", fileType, path)
			err := os.Remove(path)
			if err != nil {
				if os.IsNotExist(err) {
					log.Warnf("Attempted to remove %s file %q, but it was already gone.", fileType, path)
				} else {
					log.Errorf("Failed to remove %s file %q: %v", fileType, path, err)
					filesFailed++
				}
			} else {
				log.Infof("Removed %s file: %s", fileType, path)
				// Increment specific counter
				switch fileType {
				case ".tmp":
					tmpRemoved++
				case ".strm":
					strmRemoved++
				}
			}
		}
		return nil // Continue walking
	})

	if walkErr != nil {
		log.Errorf("Error during directory walk of %q: %v", savePath, walkErr)
	}

	var reportsRemoved int64
	if cleanReports {
		reportsRemoved = cleanReportFiles(resolveReportsDir(), &filesFailed)
	}

	indexRemoved := false
	if cleanIndex {
		indexRemoved = cleanSearchIndex(&filesFailed)
	}

	// Build summary string
	var summaryParts []string
	if tmpRemoved > 0 {
		summaryParts = append(summaryParts, fmt.Sprintf("%d .tmp file(s)", tmpRemoved))
	}
	if strmRemoved > 0 {
		summaryParts = append(summaryParts, fmt.Sprintf("%d .strm file(s)", strmRemoved))
	}
	if reportsRemoved > 0 {
		summaryParts = append(summaryParts, fmt.Sprintf("%d report file(s)", reportsRemoved))
	}
	if indexRemoved {
		summaryParts = append(summaryParts, "the search index")
	}

	summary := "Clean complete. Removed: "
	if len(summaryParts) > 0 {
		summary += strings.Join(summaryParts, ", ")
	} else {
		summary += "0 files"
	}

	if filesFailed > 0 {
		summary += fmt.Sprintf(". Failed to remove %d file(s).", filesFailed)
	}
	log.Info(summary)

	if filesFailed > 0 || walkErr != nil {
		os.Exit(1)
	}
}

// cleanReportFiles removes scan and scrape reports from dir. Only files that
// match the report naming scheme are touched so a shared directory stays safe.
func cleanReportFiles(dir string, filesFailed *int64) int64 {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugf("Reports directory %s does not exist. Nothing to remove.", dir)
			return 0
		}
		log.Errorf("Error reading reports directory %q: %v", dir, err)
		*filesFailed++
		return 0
	}

	var removed int64
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}
		name := dirEntry.Name()
		if !strings.HasSuffix(name, ".txt") {
			continue
		}
		if !strings.HasPrefix(name, "scan_") && !strings.HasPrefix(name, "scrape_") {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			log.Errorf("Failed to remove report file %q: %v", path, err)
			*filesFailed++
			continue
		}
		log.Infof("Removed report file: %s", path)
		removed++
	}
	return removed
}

// cleanSearchIndex removes the whole Bleve index directory. Reports whether
// anything was actually deleted.
func cleanSearchIndex(filesFailed *int64) bool {
	indexPath := resolveIndexPath()
	if indexPath == "" {
		log.Debug("Neither BleveIndexPath nor SavePath is set. No index to remove.")
		return false
	}
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		log.Debugf("Search index %s does not exist. Nothing to remove.", indexPath)
		return false
	}
	if err := index.DeleteIndex(indexPath); err != nil {
		log.Errorf("Failed to remove search index %q: %v", indexPath, err)
		*filesFailed++
		return false
	}
	log.Infof("Removed search index: %s", indexPath)
	return true
}
