package scraper

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"go-steam-librarian/internal/api"
	"go-steam-librarian/internal/models"
	"go-steam-librarian/internal/settings"
)

// routeGetter serves canned bodies by URL and records every request.
type routeGetter struct {
	responses map[string][]byte
	calls     []string
}

func (g *routeGetter) GetJSON(rawURL string) ([]byte, error) {
	g.calls = append(g.calls, rawURL)
	body, ok := g.responses[rawURL]
	if !ok {
		return nil, fmt.Errorf("unexpected request %s", rawURL)
	}
	return body, nil
}

// scriptGetter returns scripted results in order; the last one repeats.
type scriptGetter struct {
	script []scriptResult
	calls  int
}

type scriptResult struct {
	body []byte
	err  error
}

func (g *scriptGetter) GetJSON(string) ([]byte, error) {
	idx := g.calls
	if idx >= len(g.script) {
		idx = len(g.script) - 1
	}
	g.calls++
	return g.script[idx].body, g.script[idx].err
}

func testSettings() *settings.Mem {
	st := settings.NewMem()
	st.Strings[settings.APIKey] = "SECRETKEY"
	return st
}

const portalDetails = `{
	"620": {
		"success": true,
		"data": {
			"name": "Portal 2",
			"detailed_description": "<h1>About</h1><p>The \"Perpetual Testing Initiative\" has been expanded.</p>",
			"header_image": "https://cdn.akamai.steamstatic.com/steam/apps/620/header.jpg?t=1610490805",
			"background_raw": "https:\\/\\/cdn.akamai.steamstatic.com\\/steam\\/apps\\/620\\/page_bg_raw.jpg",
			"developers": ["Valve"],
			"release_date": {"coming_soon": false, "date": "18 Apr, 2011"},
			"metacritic": {"score": 95, "url": "https://www.metacritic.com/game/pc/portal-2"},
			"genres": [
				{"id": "1", "description": "Action"},
				{"id": "25", "description": "Adventure"}
			],
			"categories": [
				{"id": 2, "description": "Single-player"},
				{"id": 9, "description": "Co-op"},
				{"id": 38, "description": "Online Co-op"},
				{"id": 28, "description": "Full controller support"}
			],
			"screenshots": [
				{"id": 0, "path_thumbnail": "https://cdn.akamai.steamstatic.com/steam/apps/620/ss_1.600x338.jpg", "path_full": "https://cdn.akamai.steamstatic.com/steam/apps/620/ss_1.1920x1080.jpg"},
				{"id": 1, "path_thumbnail": "https://cdn.akamai.steamstatic.com/steam/apps/620/ss_2.600x338.jpg", "path_full": "https://cdn.akamai.steamstatic.com/steam/apps/620/ss_2.1920x1080.jpg"}
			],
			"movies": [
				{"id": 5982, "name": "Portal 2 Teaser", "thumbnail": "https://cdn.akamai.steamstatic.com/steam/apps/5982/movie.jpg", "webm": {"480": "http://cdn.akamai.steamstatic.com/steam/apps/5982/movie480.webm", "max": "http://cdn.akamai.steamstatic.com/steam/apps/5982/movie_max.webm"}, "mp4": {"480": "http://cdn.akamai.steamstatic.com/steam/apps/5982/movie480.mp4", "max": "http://cdn.akamai.steamstatic.com/steam/apps/5982/movie_max.mp4"}, "highlight": true},
				{"id": 5983, "name": "Portal 2 Trailer", "thumbnail": "https://cdn.akamai.steamstatic.com/steam/apps/5983/movie.jpg", "webm": {"480": "http://cdn.akamai.steamstatic.com/steam/apps/5983/movie480.webm", "max": "http://cdn.akamai.steamstatic.com/steam/apps/5983/movie_max.webm"}, "highlight": false}
			]
		}
	}
}`

func newPortalScraper() (*Scraper, *routeGetter) {
	getter := &routeGetter{responses: map[string][]byte{
		models.AppDetailsURL(620): []byte(portalDetails),
	}}
	return New(getter, NewMemCache(), testSettings()), getter
}

func TestSearchCandidatesScoring(t *testing.T) {
	searchBody := `[
		{"appid": "400", "name": "Portal", "icon": "i1", "logo": "l1"},
		{"appid": "620", "name": "Portal 2", "icon": "i2", "logo": "l2"},
		{"appid": "123", "name": "Unrelated", "icon": "i3", "logo": "l3"}
	]`
	getter := &routeGetter{responses: map[string][]byte{
		models.StoreSearchURL("Portal"): []byte(searchBody),
	}}
	s := New(getter, nil, testSettings())

	candidates, err := s.SearchCandidates("Portal")
	if err != nil {
		t.Fatalf("SearchCandidates returned error: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	wantScores := []struct {
		name  string
		score int
	}{
		{"Portal", 4},
		{"Portal 2", 2},
		{"Unrelated", 1},
	}
	for i, want := range wantScores {
		if candidates[i].Name != want.name || candidates[i].Score != want.score {
			t.Errorf("candidate %d: want %s(%d), got %s(%d)",
				i, want.name, want.score, candidates[i].Name, candidates[i].Score)
		}
	}
}

func TestSearchCandidatesTiesKeepResponseOrder(t *testing.T) {
	searchBody := `[
		{"appid": "1", "name": "Portal 2"},
		{"appid": "2", "name": "Portal Stories"},
		{"appid": "3", "name": "portal"}
	]`
	getter := &routeGetter{responses: map[string][]byte{
		models.StoreSearchURL("Portal"): []byte(searchBody),
	}}
	s := New(getter, nil, testSettings())

	candidates, err := s.SearchCandidates("Portal")
	if err != nil {
		t.Fatalf("SearchCandidates returned error: %v", err)
	}
	// "portal" is an exact case-insensitive match and jumps ahead; the two
	// substring matches stay in response order.
	want := []string{"portal", "Portal 2", "Portal Stories"}
	for i, name := range want {
		if candidates[i].Name != name {
			t.Errorf("position %d: want %q, got %q", i, name, candidates[i].Name)
		}
	}
}

func TestSearchCandidatesSkipsBadAppIDs(t *testing.T) {
	searchBody := `[
		{"appid": "not-a-number", "name": "Broken"},
		{"appid": "400", "name": "Portal"}
	]`
	getter := &routeGetter{responses: map[string][]byte{
		models.StoreSearchURL("Portal"): []byte(searchBody),
	}}
	s := New(getter, nil, testSettings())

	candidates, err := s.SearchCandidates("Portal")
	if err != nil {
		t.Fatalf("SearchCandidates returned error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].AppID != 400 {
		t.Errorf("expected only the usable hit, got %+v", candidates)
	}
}

func TestSearchCandidatesParseError(t *testing.T) {
	getter := &routeGetter{responses: map[string][]byte{
		models.StoreSearchURL("Portal"): []byte(`<html>maintenance</html>`),
	}}
	s := New(getter, nil, testSettings())

	if _, err := s.SearchCandidates("Portal"); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestMetadataFields(t *testing.T) {
	s, _ := newPortalScraper()

	meta, err := s.Metadata(620)
	if err != nil {
		t.Fatalf("Metadata returned error: %v", err)
	}

	if meta.Title != "Portal 2" {
		t.Errorf("title: got %q", meta.Title)
	}
	if meta.Year != "2011" {
		t.Errorf("year: want 2011, got %q", meta.Year)
	}
	if meta.Genre != "Action, Adventure" {
		t.Errorf("genre: got %q", meta.Genre)
	}
	if meta.Developer != "Valve" {
		t.Errorf("developer: got %q", meta.Developer)
	}
	wantPlot := `AboutThe "Perpetual Testing Initiative" has been expanded.`
	if meta.Plot != wantPlot {
		t.Errorf("plot: want %q, got %q", wantPlot, meta.Plot)
	}
	if meta.Rating != 0.95 {
		t.Errorf("rating: want 0.95, got %v", meta.Rating)
	}
	wantTags := "singleplayer,co-op,online-co-op,controller-supported"
	if got := strings.Join(meta.Tags, ","); got != wantTags {
		t.Errorf("tags: want %s, got %s", wantTags, got)
	}
}

func TestMetadataDefaults(t *testing.T) {
	body := `{"620": {"success": true, "data": {"type": "game"}}}`
	getter := &routeGetter{responses: map[string][]byte{
		models.AppDetailsURL(620): []byte(body),
	}}
	s := New(getter, NewMemCache(), testSettings())

	meta, err := s.Metadata(620)
	if err != nil {
		t.Fatalf("Metadata returned error: %v", err)
	}

	if meta.Title != models.MetaDefaultTitle {
		t.Errorf("title default: got %q", meta.Title)
	}
	if meta.Year != models.MetaDefaultYear {
		t.Errorf("year default: got %q", meta.Year)
	}
	// Genre falls back to the default string, developer stays empty. The
	// asymmetry is deliberate.
	if meta.Genre != models.MetaDefaultGenre {
		t.Errorf("genre default: want %q, got %q", models.MetaDefaultGenre, meta.Genre)
	}
	if meta.Developer != "" {
		t.Errorf("developer default: want empty, got %q", meta.Developer)
	}
	if meta.Plot != models.MetaDefaultPlot {
		t.Errorf("plot default: got %q", meta.Plot)
	}
	if meta.Rating != models.MetaDefaultRating {
		t.Errorf("rating default: got %v", meta.Rating)
	}
	if len(meta.Tags) != 0 {
		t.Errorf("tags default: got %v", meta.Tags)
	}
}

func TestMetadataShortReleaseDate(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"18 Apr, 2011", "2011"},
		{"2011", "2011"},
		{"Q3", "Q3"},
		{"Coming soon", "soon"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			body := fmt.Sprintf(`{"620": {"success": true, "data": {"name": "X", "release_date": {"date": %q}}}}`, tt.date)
			getter := &routeGetter{responses: map[string][]byte{
				models.AppDetailsURL(620): []byte(body),
			}}
			s := New(getter, NewMemCache(), testSettings())

			meta, err := s.Metadata(620)
			if err != nil {
				t.Fatalf("Metadata returned error: %v", err)
			}
			if meta.Year != tt.want {
				t.Errorf("year for %q: want %q, got %q", tt.date, tt.want, meta.Year)
			}
		})
	}
}

func TestMetadataParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing app entry", `{"999": {"success": true, "data": {"name": "X"}}}`},
		{"success false", `{"620": {"success": false}}`},
		{"null data", `{"620": {"success": true, "data": null}}`},
		{"not json", `garbage`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getter := &routeGetter{responses: map[string][]byte{
				models.AppDetailsURL(620): []byte(tt.body),
			}}
			s := New(getter, NewMemCache(), testSettings())

			if _, err := s.Metadata(620); !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
		})
	}
}

func TestMetadataAndAssetsShareOneFetch(t *testing.T) {
	s, getter := newPortalScraper()

	if _, err := s.Metadata(620); err != nil {
		t.Fatalf("Metadata returned error: %v", err)
	}
	if _, err := s.Metadata(620); err != nil {
		t.Fatalf("second Metadata returned error: %v", err)
	}
	for _, kind := range models.AllAssetKinds() {
		if _, err := s.Assets(620, kind); err != nil {
			t.Fatalf("Assets(%s) returned error: %v", kind, err)
		}
	}

	if len(getter.calls) != 1 {
		t.Errorf("expected exactly one fetch for metadata plus all asset kinds, got %d", len(getter.calls))
	}
}

func TestFetchFailureIsNotCached(t *testing.T) {
	getter := &scriptGetter{script: []scriptResult{
		{nil, &api.StatusError{Code: 500}},
		{[]byte(portalDetails), nil},
	}}
	cache := NewMemCache()
	s := New(getter, cache, testSettings())

	if _, err := s.Metadata(620); err == nil {
		t.Fatal("expected the first fetch to fail")
	}
	if _, ok := cache.Get(CacheKey(620)); ok {
		t.Fatal("a failed fetch must not leave a cache entry")
	}

	meta, err := s.Metadata(620)
	if err != nil {
		t.Fatalf("retry after failure returned error: %v", err)
	}
	if meta.Title != "Portal 2" {
		t.Errorf("unexpected title after retry: %q", meta.Title)
	}
	if getter.calls != 2 {
		t.Errorf("expected a refetch after the failure, got %d calls", getter.calls)
	}
}

func TestAssetsTrailerPrefersMp4(t *testing.T) {
	s, _ := newPortalScraper()

	assets, err := s.Assets(620, models.AssetTrailer)
	if err != nil {
		t.Fatalf("Assets returned error: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected one descriptor per movie, got %d", len(assets))
	}

	if !strings.HasSuffix(assets[0].URL, "movie_max.mp4") {
		t.Errorf("first movie should use the mp4 encoding, got %s", assets[0].URL)
	}
	if assets[0].DisplayName != "Portal 2 Teaser" {
		t.Errorf("unexpected display name %q", assets[0].DisplayName)
	}
	if !strings.HasSuffix(assets[1].URL, "movie_max.webm") {
		t.Errorf("second movie should fall back to webm, got %s", assets[1].URL)
	}
}

func TestAssetsTrailerWithoutEncodings(t *testing.T) {
	body := `{"620": {"success": true, "data": {"name": "X", "movies": [{"id": 1, "name": "Broken", "thumbnail": "t.jpg"}]}}}`
	getter := &routeGetter{responses: map[string][]byte{
		models.AppDetailsURL(620): []byte(body),
	}}
	s := New(getter, NewMemCache(), testSettings())

	assets, err := s.Assets(620, models.AssetTrailer)
	if err != nil {
		t.Fatalf("Assets returned error: %v", err)
	}
	if len(assets) != 1 || assets[0].URL != "" {
		t.Errorf("movie without encodings should still yield a descriptor with an empty URL, got %+v", assets)
	}
}

func TestAssetsScreenshots(t *testing.T) {
	s, _ := newPortalScraper()

	assets, err := s.Assets(620, models.AssetScreenshot)
	if err != nil {
		t.Fatalf("Assets returned error: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 screenshots, got %d", len(assets))
	}
	if assets[0].DisplayName != "screenshot #0" || assets[1].DisplayName != "screenshot #1" {
		t.Errorf("unexpected display names: %q, %q", assets[0].DisplayName, assets[1].DisplayName)
	}
	if !strings.HasSuffix(assets[0].URL, "ss_1.1920x1080.jpg") {
		t.Errorf("screenshot URL should be the full-size path, got %s", assets[0].URL)
	}
}

func TestAssetsBannerAndFanart(t *testing.T) {
	s, _ := newPortalScraper()

	banners, err := s.Assets(620, models.AssetBanner)
	if err != nil {
		t.Fatalf("Assets(banner) returned error: %v", err)
	}
	if len(banners) != 1 || banners[0].DisplayName != "Header image" {
		t.Fatalf("expected a single header image, got %+v", banners)
	}

	fanart, err := s.Assets(620, models.AssetFanart)
	if err != nil {
		t.Fatalf("Assets(fanart) returned error: %v", err)
	}
	if len(fanart) != 1 {
		t.Fatalf("expected a single background, got %d", len(fanart))
	}
	// The raw background URL arrives with escaped slashes.
	if strings.Contains(fanart[0].URL, `\`) {
		t.Errorf("URL normalization should strip backslashes, got %s", fanart[0].URL)
	}
	if fanart[0].URL != "https://cdn.akamai.steamstatic.com/steam/apps/620/page_bg_raw.jpg" {
		t.Errorf("unexpected fanart URL: %s", fanart[0].URL)
	}
}

func TestAssetsAbsentFieldsYieldEmptyLists(t *testing.T) {
	body := `{"620": {"success": true, "data": {"name": "X"}}}`
	getter := &routeGetter{responses: map[string][]byte{
		models.AppDetailsURL(620): []byte(body),
	}}
	s := New(getter, NewMemCache(), testSettings())

	for _, kind := range models.AllAssetKinds() {
		assets, err := s.Assets(620, kind)
		if err != nil {
			t.Fatalf("Assets(%s) returned error: %v", kind, err)
		}
		if len(assets) != 0 {
			t.Errorf("Assets(%s) on a bare payload should be empty, got %+v", kind, assets)
		}
	}
}

func TestResolveAssetURLRedactsKey(t *testing.T) {
	asset := models.AssetInfo{
		Kind: models.AssetBanner,
		URL:  "https://example.com/image.jpg?key=SECRET&size=full",
	}
	rawURL, loggable := ResolveAssetURL(asset)
	if rawURL != asset.URL {
		t.Errorf("raw URL must be untouched, got %s", rawURL)
	}
	if strings.Contains(loggable, "SECRET") {
		t.Errorf("loggable URL leaks the key: %s", loggable)
	}
	if !strings.Contains(loggable, "key=***") {
		t.Errorf("loggable URL not redacted: %s", loggable)
	}
}

func TestAssetFileExt(t *testing.T) {
	tests := []struct {
		name  string
		asset models.AssetInfo
		want  string
	}{
		{"trailer is a strm stub", models.AssetInfo{Kind: models.AssetTrailer, URL: "http://cdn/movie_max.mp4"}, "strm"},
		{"query string ignored", models.AssetInfo{Kind: models.AssetBanner, URL: "https://cdn/header.jpg?t=123"}, "jpg"},
		{"plain png", models.AssetInfo{Kind: models.AssetFanart, URL: "https://cdn/bg.png"}, "png"},
		{"no extension", models.AssetInfo{Kind: models.AssetBanner, URL: "https://cdn/header"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AssetFileExt(tt.asset); got != tt.want {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCheckBeforeScrapingDisablesWithoutKey(t *testing.T) {
	getter := &routeGetter{responses: map[string][]byte{}}
	s := New(getter, NewMemCache(), settings.NewMem())

	err := s.CheckBeforeScraping()
	if !errors.Is(err, api.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if !s.Disabled() {
		t.Fatal("scraper should be disabled after a failed credential check")
	}

	// Disabled responses are silent defaults, not errors.
	candidates, err := s.SearchCandidates("Portal")
	if err != nil || candidates != nil {
		t.Errorf("disabled search: got %v, %v", candidates, err)
	}
	meta, err := s.Metadata(620)
	if err != nil {
		t.Errorf("disabled metadata: got error %v", err)
	}
	if meta.Title != models.MetaDefaultTitle {
		t.Errorf("disabled metadata should be all defaults, got %+v", meta)
	}
	assets, err := s.Assets(620, models.AssetBanner)
	if err != nil || assets != nil {
		t.Errorf("disabled assets: got %v, %v", assets, err)
	}
	if len(getter.calls) != 0 {
		t.Errorf("disabled scraper must not touch the network, made %d calls", len(getter.calls))
	}
}

func TestCheckBeforeScrapingWithKey(t *testing.T) {
	s, _ := newPortalScraper()
	if err := s.CheckBeforeScraping(); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if s.Disabled() {
		t.Fatal("scraper should stay enabled")
	}
}

func TestPublishCapabilities(t *testing.T) {
	st := testSettings()
	s := New(&routeGetter{}, nil, st)

	if err := s.PublishCapabilities(); err != nil {
		t.Fatalf("PublishCapabilities returned error: %v", err)
	}
	if got := st.Strings[settings.ScraperName]; got != Name {
		t.Errorf("unexpected scraper name: %s", got)
	}
	if got := st.Strings[settings.SupportedMetadata]; got != "title|year|genre|developer|rating|plot|tags" {
		t.Errorf("unexpected metadata capabilities: %s", got)
	}
	if got := st.Strings[settings.SupportedAssets]; got != "banner|fanart|screenshot|trailer" {
		t.Errorf("unexpected asset capabilities: %s", got)
	}
}
