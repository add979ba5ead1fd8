package scraper

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"go-steam-librarian/internal/api"
	"go-steam-librarian/internal/models"
	"go-steam-librarian/internal/progress"
	"go-steam-librarian/internal/report"
)

// ErrNoCandidate reports that a title search produced nothing usable.
var ErrNoCandidate = errors.New("no matching store candidate")

// DownloadFunc saves one discovered asset for an entry. The ordinal counts
// earlier same-kind descriptors for the entry, so implementations can derive
// stable file names for kinds that repeat, like screenshots. Implementations
// append the resulting file to the entry themselves.
type DownloadFunc func(entry *models.CatalogEntry, asset models.AssetInfo, ordinal int) error

// Strategy drives scraping across catalog entries: metadata projection plus
// asset discovery and download, with per-entry failures isolated so one bad
// title does not sink the batch.
type Strategy struct {
	scraper    *Scraper
	progress   progress.Reporter
	report     report.Writer
	download   DownloadFunc
	metaOnly   bool
	assetKinds []models.AssetKind
}

// StrategyOptions tunes what a scrape pass covers.
type StrategyOptions struct {
	Progress progress.Reporter
	Report   report.Writer
	// Download is invoked for each selected descriptor; nil skips downloads.
	Download DownloadFunc
	MetaOnly bool
	// AssetKinds limits discovery to the listed kinds; nil means all of them.
	AssetKinds []models.AssetKind
}

func NewStrategy(s *Scraper, opts StrategyOptions) *Strategy {
	if opts.Progress == nil {
		opts.Progress = progress.Nop{}
	}
	if opts.Report == nil {
		opts.Report = report.Discard{}
	}
	kinds := opts.AssetKinds
	if kinds == nil {
		kinds = models.AllAssetKinds()
	}
	return &Strategy{
		scraper:    s,
		progress:   opts.Progress,
		report:     opts.Report,
		download:   opts.Download,
		metaOnly:   opts.MetaOnly,
		assetKinds: kinds,
	}
}

// ResolveByName returns the best-ranked candidate for a title.
func (st *Strategy) ResolveByName(name string) (*models.SearchCandidate, error) {
	candidates, err := st.scraper.SearchCandidates(name)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoCandidate, name)
	}
	return &candidates[0], nil
}

// ScrapeEntry fills the entry's metadata in place and returns the asset
// descriptors selected for download. Entries without an app id are resolved
// by title first and keep the resolved id.
func (st *Strategy) ScrapeEntry(entry *models.CatalogEntry) ([]models.AssetInfo, error) {
	if entry.AppID == 0 {
		candidate, err := st.ResolveByName(entry.Name)
		if err != nil {
			return nil, err
		}
		entry.AppID = candidate.AppID
		log.Debugf("Resolved %q to app %d", entry.Name, candidate.AppID)
	}

	meta, err := st.scraper.Metadata(entry.AppID)
	if err != nil {
		return nil, err
	}
	entry.Meta = &meta
	entry.Status = models.StatusScraped
	entry.ErrorDetails = ""
	entry.ScrapedAt = time.Now().Unix()

	if st.metaOnly {
		return nil, nil
	}

	var selected []models.AssetInfo
	for _, kind := range st.assetKinds {
		assets, err := st.scraper.Assets(entry.AppID, kind)
		if err != nil {
			return nil, err
		}
		selected = append(selected, pickAssets(kind, assets)...)
	}
	return selected, nil
}

// pickAssets chooses which discovered descriptors are worth downloading:
// every screenshot, but only the first trailer. Banner and fanart are single
// descriptors already.
func pickAssets(kind models.AssetKind, assets []models.AssetInfo) []models.AssetInfo {
	if kind == models.AssetTrailer && len(assets) > 1 {
		return assets[:1]
	}
	return assets
}

// Outcome summarizes a batch scrape.
type Outcome struct {
	Scraped int
	Failed  int
	Assets  int
}

// ScrapeBatch processes entries in order, mutating them in place. Per-entry
// failures are recorded on the entry, counted and skipped. Rate-limit
// exhaustion and cancellation abort the batch; the caller must discard the
// mutations instead of committing them.
func (st *Strategy) ScrapeBatch(entries []models.CatalogEntry) (Outcome, error) {
	var out Outcome
	if len(entries) == 0 {
		return out, nil
	}
	if st.scraper.Disabled() {
		// A disabled scraper answers every call with defaults; running the
		// batch would stamp all entries scraped without real metadata.
		return out, api.ErrMissingAPIKey
	}

	st.progress.Start(len(entries), "Scraping games ...")
	defer st.progress.End()
	st.report.Writeln(fmt.Sprintf("Scraping %d games ...", len(entries)))

	for i := range entries {
		entry := &entries[i]
		st.progress.Update(i+1, entry.Name)

		assets, err := st.ScrapeEntry(entry)
		if err != nil {
			if errors.Is(err, api.ErrRateLimitExhausted) {
				// Terminal for the whole batch; more requests would only
				// collect more 429s.
				return out, err
			}
			out.Failed++
			entry.Status = models.StatusError
			entry.ErrorDetails = err.Error()
			log.WithError(err).Warnf("Scraping %q failed", entry.Name)
			st.report.Writeln(fmt.Sprintf("FAILED %s: %s", entry.Name, err))
		} else {
			out.Scraped++
			st.report.Writeln(fmt.Sprintf(">>> scraped: %s", entry.Name))
			out.Assets += st.downloadAssets(entry, assets)
		}

		if st.progress.IsCancelled() {
			log.Info("Cancel requested while scraping. No changes have been made.")
			return out, progress.ErrCancelled
		}
	}
	return out, nil
}

// downloadAssets runs the download callback for each selected descriptor.
// Records of the kinds covered by this run are dropped first so the entry
// reflects the files actually saved. Download failures are logged and
// skipped; the metadata already scraped for the entry stays valid.
func (st *Strategy) downloadAssets(entry *models.CatalogEntry, assets []models.AssetInfo) int {
	if st.download == nil {
		return 0
	}
	entry.Assets = dropKinds(entry.Assets, st.assetKinds)
	counts := make(map[models.AssetKind]int)
	saved := 0
	for _, asset := range assets {
		if asset.URL == "" {
			continue
		}
		ordinal := counts[asset.Kind]
		counts[asset.Kind]++
		if err := st.download(entry, asset, ordinal); err != nil {
			log.WithError(err).Warnf("Downloading %s for %q failed", asset.Kind, entry.Name)
			st.report.Writeln(fmt.Sprintf("FAILED %s %s: %s", entry.Name, asset.Kind, err))
			continue
		}
		saved++
	}
	return saved
}

// dropKinds filters out asset records of the listed kinds, keeping files
// saved by runs that covered other kinds.
func dropKinds(files []models.AssetFile, kinds []models.AssetKind) []models.AssetFile {
	drop := make(map[models.AssetKind]bool, len(kinds))
	for _, kind := range kinds {
		drop[kind] = true
	}
	kept := files[:0]
	for _, f := range files {
		if !drop[f.Kind] {
			kept = append(kept, f)
		}
	}
	return kept
}
