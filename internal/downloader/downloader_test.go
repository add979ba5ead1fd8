package downloader

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-steam-librarian/internal/helpers"
	"go-steam-librarian/internal/models"
)

func assertNoTempFiles(t *testing.T, root string) {
	t.Helper()
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(d.Name(), ".tmp") {
			t.Errorf("leftover temporary file %s", path)
		}
		return nil
	})
}

func TestAssetDir(t *testing.T) {
	entry := &models.CatalogEntry{AppID: 620, Name: "Portal 2"}
	if got := AssetDir("/library", entry); got != filepath.Join("/library", "portal_2") {
		t.Errorf("AssetDir = %q", got)
	}

	// An all-symbol title slugs to nothing and falls back to the app id.
	weird := &models.CatalogEntry{AppID: 42, Name: "!!!"}
	if got := AssetDir("/library", weird); got != filepath.Join("/library", "appid_42") {
		t.Errorf("AssetDir fallback = %q", got)
	}
}

func TestAssetFileName(t *testing.T) {
	tests := []struct {
		name    string
		asset   models.AssetInfo
		ordinal int
		want    string
	}{
		{"Banner", models.AssetInfo{Kind: models.AssetBanner, URL: "http://cdn/header.jpg?t=123"}, 0, "banner.jpg"},
		{"Fanart", models.AssetInfo{Kind: models.AssetFanart, URL: "http://cdn/page_bg.png"}, 0, "fanart.png"},
		{"First screenshot", models.AssetInfo{Kind: models.AssetScreenshot, URL: "http://cdn/ss_1.jpg"}, 0, "screenshot_00.jpg"},
		{"Later screenshot", models.AssetInfo{Kind: models.AssetScreenshot, URL: "http://cdn/ss_4.jpg"}, 3, "screenshot_03.jpg"},
		{"Trailer", models.AssetInfo{Kind: models.AssetTrailer, URL: "http://cdn/movie_max.mp4"}, 0, "trailer.strm"},
		{"No extension", models.AssetInfo{Kind: models.AssetBanner, URL: "http://cdn/header"}, 0, "banner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := assetFileName(tt.asset, tt.ordinal); got != tt.want {
				t.Errorf("assetFileName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDownloadAssetWritesFileAndRecord(t *testing.T) {
	content := []byte("not really a jpeg")
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(content)
	}))
	defer server.Close()

	saveDir := t.TempDir()
	entry := &models.CatalogEntry{ID: "e1", AppID: 620, Name: "Portal 2"}
	asset := models.AssetInfo{Kind: models.AssetBanner, URL: server.URL + "/header.jpg", DisplayName: "Header image"}

	d := NewDownloader(server.Client())
	file, err := d.DownloadAsset(saveDir, entry, asset, 0)
	if err != nil {
		t.Fatalf("DownloadAsset returned error: %v", err)
	}

	wantPath := filepath.Join(saveDir, "portal_2", "banner.jpg")
	if file.Path != wantPath {
		t.Errorf("Path = %q, want %q", file.Path, wantPath)
	}
	if file.Name != "banner.jpg" || file.Kind != models.AssetBanner {
		t.Errorf("record = %+v", file)
	}
	got, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("downloaded content = %q, want %q", got, content)
	}
	if file.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", file.Size, len(content))
	}
	sum, err := helpers.FileBLAKE3(wantPath)
	if err != nil {
		t.Fatalf("hashing downloaded file: %v", err)
	}
	if file.BLAKE3 != sum {
		t.Errorf("BLAKE3 = %q, want %q", file.BLAKE3, sum)
	}
	if file.DownloadedAt == 0 {
		t.Error("DownloadedAt should be set")
	}
	if hits != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
	assertNoTempFiles(t, saveDir)
}

func TestDownloadAssetSkipsExistingFile(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("fresh bytes"))
	}))
	defer server.Close()

	saveDir := t.TempDir()
	existing := []byte("already on disk")
	gameDir := filepath.Join(saveDir, "portal_2")
	if err := os.MkdirAll(gameDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(gameDir, "banner.jpg"), existing, 0644); err != nil {
		t.Fatal(err)
	}

	entry := &models.CatalogEntry{ID: "e1", AppID: 620, Name: "Portal 2"}
	asset := models.AssetInfo{Kind: models.AssetBanner, URL: server.URL + "/header.jpg"}

	d := NewDownloader(server.Client())
	file, err := d.DownloadAsset(saveDir, entry, asset, 0)
	if err != nil {
		t.Fatalf("DownloadAsset returned error: %v", err)
	}
	if hits != 0 {
		t.Errorf("existing file should skip the network, got %d hits", hits)
	}
	if file.Size != int64(len(existing)) {
		t.Errorf("record should be rebuilt from disk, Size = %d", file.Size)
	}
	wantSum, _ := helpers.FileBLAKE3(filepath.Join(gameDir, "banner.jpg"))
	if file.BLAKE3 != wantSum {
		t.Errorf("BLAKE3 = %q, want %q", file.BLAKE3, wantSum)
	}
}

func TestDownloadAssetStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	saveDir := t.TempDir()
	entry := &models.CatalogEntry{ID: "e1", AppID: 620, Name: "Portal 2"}
	asset := models.AssetInfo{Kind: models.AssetBanner, URL: server.URL + "/header.jpg"}

	d := NewDownloader(server.Client())
	if _, err := d.DownloadAsset(saveDir, entry, asset, 0); !errors.Is(err, ErrHttpStatus) {
		t.Fatalf("want ErrHttpStatus, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(saveDir, "portal_2", "banner.jpg")); !os.IsNotExist(err) {
		t.Error("no file should be written on a failed download")
	}
	assertNoTempFiles(t, saveDir)
}

func TestDownloadAssetEmptyURL(t *testing.T) {
	d := NewDownloader(nil)
	entry := &models.CatalogEntry{ID: "e1", AppID: 620, Name: "Portal 2"}
	if _, err := d.DownloadAsset(t.TempDir(), entry, models.AssetInfo{Kind: models.AssetBanner}, 0); !errors.Is(err, ErrHttpRequest) {
		t.Fatalf("want ErrHttpRequest, got %v", err)
	}
}

func TestDownloadAssetTrailerWritesStreamStub(t *testing.T) {
	saveDir := t.TempDir()
	entry := &models.CatalogEntry{ID: "e1", AppID: 620, Name: "Portal 2"}
	streamURL := "http://cdn.example/movie_max.mp4"
	asset := models.AssetInfo{Kind: models.AssetTrailer, URL: streamURL, DisplayName: "Teaser"}

	d := NewDownloader(nil)
	file, err := d.DownloadAsset(saveDir, entry, asset, 0)
	if err != nil {
		t.Fatalf("DownloadAsset returned error: %v", err)
	}

	wantPath := filepath.Join(saveDir, "portal_2", "trailer.strm")
	if file.Path != wantPath || file.Name != "trailer.strm" {
		t.Errorf("record = %+v", file)
	}
	got, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("reading stream stub: %v", err)
	}
	if string(got) != streamURL {
		t.Errorf("stub content = %q, want the stream URL", got)
	}
	if file.Size != int64(len(streamURL)) {
		t.Errorf("Size = %d, want %d", file.Size, len(streamURL))
	}
}

func TestVerifyAsset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "banner.jpg")
	if err := os.WriteFile(path, []byte("artwork"), 0644); err != nil {
		t.Fatal(err)
	}
	sum, err := helpers.FileBLAKE3(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := VerifyAsset(models.AssetFile{Path: path, BLAKE3: sum}); err != nil {
		t.Errorf("matching digest should verify, got %v", err)
	}
	if err := VerifyAsset(models.AssetFile{Path: path, BLAKE3: strings.ToUpper(sum)}); err != nil {
		t.Errorf("digest comparison should ignore case, got %v", err)
	}
	if err := VerifyAsset(models.AssetFile{Path: path}); err != nil {
		t.Errorf("records without a digest are skipped, got %v", err)
	}

	if err := os.WriteFile(path, []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyAsset(models.AssetFile{Path: path, BLAKE3: sum}); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("want ErrHashMismatch, got %v", err)
	}

	if err := VerifyAsset(models.AssetFile{Path: filepath.Join(dir, "missing.jpg"), BLAKE3: sum}); !errors.Is(err, ErrFileSystem) {
		t.Errorf("missing file should be a filesystem error, got %v", err)
	}
	if err := VerifyAsset(models.AssetFile{Name: "banner.jpg"}); !errors.Is(err, ErrFileSystem) {
		t.Errorf("record without a path should be a filesystem error, got %v", err)
	}
}

func TestCleanupTempFiles(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "portal_2")
	if err := os.MkdirAll(sub, 0700); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(root, "banner.jpg.123.tmp"):   "partial",
		filepath.Join(sub, "screenshot_00.jpg.tmp"): "partial",
		filepath.Join(sub, "banner.jpg"):            "keep me",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := CleanupTempFiles(root)
	if err != nil {
		t.Fatalf("CleanupTempFiles returned error: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed %d files, want 2: %v", len(removed), removed)
	}
	if _, err := os.Stat(filepath.Join(sub, "banner.jpg")); err != nil {
		t.Error("non-temp files must survive cleanup")
	}
	assertNoTempFiles(t, root)

	removed, err = CleanupTempFiles(filepath.Join(root, "does-not-exist"))
	if err != nil || removed != nil {
		t.Errorf("missing root should be a no-op, got %v, %v", removed, err)
	}
}
