package downloader

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-steam-librarian/internal/helpers"
	"go-steam-librarian/internal/models"
	"go-steam-librarian/internal/scraper"

	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// Custom Downloader Errors
var (
	ErrHashMismatch = errors.New("stored file hash mismatch")
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrFileSystem   = errors.New("filesystem error") // Covers create, remove, rename
	ErrHttpRequest  = errors.New("HTTP request creation/execution error")
)

// Downloader saves scraped assets into the library folder. Asset URLs point
// at the public store CDN, so requests carry no credentials and bypass the
// API client's pacing.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		// Provide a default client if none is passed
		client = &http.Client{
			Timeout: 15 * time.Minute,
		}
	}
	return &Downloader{client: client}
}

// AssetDir returns the per-game folder assets are stored in. Titles that slug
// to nothing fall back to the app id.
func AssetDir(savePath string, entry *models.CatalogEntry) string {
	slug := helpers.ConvertToSlug(entry.Name)
	if slug == "" {
		slug = fmt.Sprintf("appid_%d", entry.AppID)
	}
	return filepath.Join(savePath, slug)
}

// assetFileName builds the on-disk name for one asset. Screenshots repeat per
// entry and get the ordinal as a suffix so they do not collide.
func assetFileName(asset models.AssetInfo, ordinal int) string {
	name := string(asset.Kind)
	if asset.Kind == models.AssetScreenshot {
		name = fmt.Sprintf("%s_%02d", asset.Kind, ordinal)
	}
	if ext := scraper.AssetFileExt(asset); ext != "" {
		name += "." + ext
	}
	return name
}

// DownloadAsset fetches one asset for an entry and stores it under saveDir,
// returning the file record to attach to the entry. Trailers are written as
// .strm stubs carrying the stream URL instead of pulling the full video. A
// file already present at the target path is kept and its record is rebuilt
// from disk.
func (d *Downloader) DownloadAsset(saveDir string, entry *models.CatalogEntry, asset models.AssetInfo, ordinal int) (models.AssetFile, error) {
	if asset.URL == "" {
		return models.AssetFile{}, fmt.Errorf("%w: asset %s of %q has no URL", ErrHttpRequest, asset.Kind, entry.Name)
	}

	targetDir := AssetDir(saveDir, entry)
	if !helpers.CheckAndMakeDir(targetDir) {
		return models.AssetFile{}, fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	fileName := assetFileName(asset, ordinal)
	finalFilepath := filepath.Join(targetDir, fileName)

	if asset.Kind == models.AssetTrailer {
		return writeStreamStub(finalFilepath, fileName, asset)
	}

	rawURL, logURL := scraper.ResolveAssetURL(asset)

	// The store serves artwork from stable per-app URLs; a file already at
	// the final path is the same artwork and does not need re-fetching.
	if record, ok := recordExistingFile(finalFilepath, fileName, asset); ok {
		log.Infof("Found existing file %s. Skipping download.", finalFilepath)
		return record, nil
	}

	log.Infof("Attempting to download from URL: %s", logURL)

	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		return models.AssetFile{}, fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, logURL, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		log.WithError(err).Errorf("Error performing download request from %s", logURL)
		return models.AssetFile{}, fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, logURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("Error downloading asset: Received status code %d from %s", resp.StatusCode, logURL)
		return models.AssetFile{}, fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, logURL)
	}

	tempFile, err := os.CreateTemp(targetDir, fileName+".*.tmp")
	if err != nil {
		return models.AssetFile{}, fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, finalFilepath, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			log.Debugf("Cleaning up temporary file via defer: %s", tempFile.Name())
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s during defer cleanup", tempFile.Name())
			}
		}
	}()

	// Hash while writing so the record never needs a second pass over the file.
	hasher := blake3.New(32, nil)
	counter := &helpers.CounterWriter{
		Writer: io.MultiWriter(tempFile, hasher),
		Total:  0,
	}

	log.Debugf("Downloading to %s (Target: %s)...", tempFile.Name(), finalFilepath)
	if _, err = io.Copy(counter, resp.Body); err != nil {
		log.WithError(err).Errorf("Error writing temporary file %s", tempFile.Name())
		return models.AssetFile{}, fmt.Errorf("%w: writing temporary file %s: %v", ErrFileSystem, tempFile.Name(), err)
	}

	// Close explicitly before the rename; a deferred close would race it.
	if err := tempFile.Close(); err != nil {
		log.WithError(err).Errorf("Failed to close temp file %s before rename", tempFile.Name())
		return models.AssetFile{}, fmt.Errorf("%w: closing temp file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}

	if err = os.Rename(tempFile.Name(), finalFilepath); err != nil {
		log.WithError(err).Errorf("Error renaming temporary file %s to %s", tempFile.Name(), finalFilepath)
		return models.AssetFile{}, fmt.Errorf("%w: renaming temporary file %s to %s: %v", ErrFileSystem, tempFile.Name(), finalFilepath, err)
	}
	shouldCleanupTemp = false

	log.Infof("Successfully downloaded %s (%s)", finalFilepath, helpers.BytesToSize(counter.Total))

	return models.AssetFile{
		Kind:         asset.Kind,
		Name:         fileName,
		Path:         finalFilepath,
		URL:          rawURL,
		BLAKE3:       hex.EncodeToString(hasher.Sum(nil)),
		Size:         int64(counter.Total),
		DownloadedAt: time.Now().Unix(),
	}, nil
}

// recordExistingFile rebuilds the asset record from a file already on disk.
func recordExistingFile(path, fileName string, asset models.AssetInfo) (models.AssetFile, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return models.AssetFile{}, false
	}
	sum, err := helpers.FileBLAKE3(path)
	if err != nil {
		log.WithError(err).Warnf("Could not hash existing file %s, downloading again", path)
		return models.AssetFile{}, false
	}
	return models.AssetFile{
		Kind:         asset.Kind,
		Name:         fileName,
		Path:         path,
		URL:          asset.URL,
		BLAKE3:       sum,
		Size:         info.Size(),
		DownloadedAt: info.ModTime().Unix(),
	}, true
}

// writeStreamStub stores a trailer as a text file holding the stream URL.
// Media frontends resolve .strm contents at play time, so the video itself
// is never downloaded.
func writeStreamStub(path, fileName string, asset models.AssetInfo) (models.AssetFile, error) {
	if err := os.WriteFile(path, []byte(asset.URL), 0644); err != nil {
		log.WithError(err).Errorf("Error writing stream stub %s", path)
		return models.AssetFile{}, fmt.Errorf("%w: writing stream stub %s: %v", ErrFileSystem, path, err)
	}

	sum, err := helpers.FileBLAKE3(path)
	if err != nil {
		log.WithError(err).Warnf("Could not hash stream stub %s", path)
	}
	log.Infof("Saved stream stub %s", path)

	return models.AssetFile{
		Kind:         asset.Kind,
		Name:         fileName,
		Path:         path,
		URL:          asset.URL,
		BLAKE3:       sum,
		Size:         int64(len(asset.URL)),
		DownloadedAt: time.Now().Unix(),
	}, nil
}

// VerifyAsset re-hashes a stored file against the digest recorded at download
// time. Records without a digest are skipped.
func VerifyAsset(file models.AssetFile) error {
	if file.Path == "" {
		return fmt.Errorf("%w: no path recorded for %s", ErrFileSystem, file.Name)
	}
	if _, err := os.Stat(file.Path); err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrFileSystem, file.Path, err)
	}
	if file.BLAKE3 == "" {
		log.Debugf("No digest recorded for %s. Skipping verification.", file.Path)
		return nil
	}

	calculated, err := helpers.FileBLAKE3(file.Path)
	if err != nil {
		return fmt.Errorf("%w: hashing %s: %v", ErrFileSystem, file.Path, err)
	}
	if !strings.EqualFold(calculated, file.BLAKE3) {
		return fmt.Errorf("%w: %s recorded %s, found %s", ErrHashMismatch, file.Path, file.BLAKE3, calculated)
	}
	return nil
}

// CleanupTempFiles removes leftover .tmp files under root, returning the
// paths it deleted. Interrupted downloads leave them behind.
func CleanupTempFiles(root string) ([]string, error) {
	var removed []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.WithError(err).Warnf("Failed to remove temporary file %s", path)
			return nil
		}
		log.Debugf("Removed temporary file %s", path)
		removed = append(removed, path)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return removed, fmt.Errorf("%w: walking %s: %v", ErrFileSystem, root, err)
	}
	return removed, nil
}
