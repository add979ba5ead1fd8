package cmd

import "go-steam-librarian/internal/models"

// assetJob is one artwork download queued by the scrape strategy. Entry
// points into the batch being scraped; only the collector mutates it.
type assetJob struct {
	Entry   *models.CatalogEntry
	Asset   models.AssetInfo
	Ordinal int // earlier same-kind assets for this entry, used in file names
}

// assetResult is a finished download paired with the job it came from.
type assetResult struct {
	Job  assetJob
	File models.AssetFile
	Err  error
}

// assetTally counts what the worker pool actually saved.
type assetTally struct {
	Saved  int
	Failed int
}
