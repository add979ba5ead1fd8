package cmd

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"go-steam-librarian/internal/downloader"
	"go-steam-librarian/internal/helpers"
	"go-steam-librarian/internal/models"
	"go-steam-librarian/internal/scraper"
)

// assetJobBuffer sizes the pool channels. A full jobs channel blocks the
// scrape loop, which is acceptable backpressure: the storefront API is paced
// anyway.
const assetJobBuffer = 256

// startAssetPool launches the artwork download workers and returns the
// enqueue callback handed to the scrape strategy plus a finish function that
// drains the pool and reports the tally. Workers never touch the entries;
// a single collector goroutine appends the finished records, so the batch
// needs no locking.
func startAssetPool(concurrency int, savePath string, dl *downloader.Downloader) (scraper.DownloadFunc, func() assetTally) {
	jobs := make(chan assetJob, assetJobBuffer)
	results := make(chan assetResult, assetJobBuffer)
	done := make(chan assetTally, 1)

	var wg sync.WaitGroup
	for w := 1; w <= concurrency; w++ {
		wg.Add(1)
		go assetWorker(w, jobs, results, dl, savePath, &wg)
	}
	go collectAssetResults(results, done)

	enqueue := func(entry *models.CatalogEntry, asset models.AssetInfo, ordinal int) error {
		jobs <- assetJob{Entry: entry, Asset: asset, Ordinal: ordinal}
		return nil
	}
	finish := func() assetTally {
		close(jobs)
		wg.Wait()
		close(results)
		return <-done
	}
	return enqueue, finish
}

// assetWorker downloads queued artwork and reports every outcome on the
// results channel.
func assetWorker(id int, jobs <-chan assetJob, results chan<- assetResult, dl *downloader.Downloader, savePath string, wg *sync.WaitGroup) {
	defer wg.Done()
	log.Debugf("Asset worker %d starting", id)
	for job := range jobs {
		log.Debugf("Worker %d: Downloading %s for %q", id, job.Asset.Kind, job.Entry.Name)
		file, err := dl.DownloadAsset(savePath, job.Entry, job.Asset, job.Ordinal)
		if err != nil {
			log.WithError(err).Warnf("Worker %d: Failed to download %s for %q", id, job.Asset.Kind, job.Entry.Name)
		} else {
			log.Debugf("Worker %d: Saved %s (%s)", id, file.Name, helpers.BytesToSize(uint64(file.Size)))
		}
		results <- assetResult{Job: job, File: file, Err: err}
	}
	log.Debugf("Asset worker %d finished", id)
}

// collectAssetResults appends successful downloads to their entries. It is
// the only goroutine mutating entries while the pool runs.
func collectAssetResults(results <-chan assetResult, done chan<- assetTally) {
	var tally assetTally
	for res := range results {
		if res.Err != nil {
			tally.Failed++
			continue
		}
		res.Job.Entry.Assets = append(res.Job.Entry.Assets, res.File)
		tally.Saved++
	}
	done <- tally
}
