package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"go-steam-librarian/internal/api"
	"go-steam-librarian/internal/database"
	"go-steam-librarian/internal/models"
	"go-steam-librarian/internal/settings"
)

// Name identifies this scraper in logs and stored entries.
const Name = "Steam Scraper"

// ErrParse reports a response body that decoded but did not carry the
// expected shape, or did not decode at all. Not retried.
var ErrParse = errors.New("unexpected store response")

// Cache stores raw appdetails payloads keyed by request identity. One cached
// payload serves the metadata call and every asset kind for a candidate.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// MemCache is a map-backed Cache for tests and cache-less runs.
type MemCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemCache() *MemCache {
	return &MemCache{m: make(map[string][]byte)}
}

func (c *MemCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.m[key]
	return value, ok
}

func (c *MemCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

// CacheKey derives the payload cache key for a candidate.
func CacheKey(appID int64) string {
	return fmt.Sprintf("%s%d", database.KeyPrefixPayload, appID)
}

// Scraper resolves search terms against the store and projects cached
// appdetails payloads into metadata records and asset descriptors.
type Scraper struct {
	client   api.JSONGetter
	cache    Cache
	settings settings.Store

	disabled bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(client api.JSONGetter, cache Cache, st settings.Store) *Scraper {
	if cache == nil {
		cache = NewMemCache()
	}
	return &Scraper{
		client:   client,
		cache:    cache,
		settings: st,
		locks:    make(map[string]*sync.Mutex),
	}
}

// CheckBeforeScraping verifies the API key is configured. A missing key
// disables the scraper for the rest of the run: later calls return defaults
// silently instead of failing one by one.
func (s *Scraper) CheckBeforeScraping() error {
	if s.settings.GetString(settings.APIKey) != "" {
		log.Debug("Steam API key looks OK.")
		return nil
	}
	log.Error("Steam API key not configured.")
	log.Error("Disabling Steam scraper.")
	s.disabled = true
	return fmt.Errorf("%w: visit https://steamcommunity.com/dev/apikey for directions about how to get your key", api.ErrMissingAPIKey)
}

// Disabled reports whether a failed credential check has switched the
// scraper to default-only answers.
func (s *Scraper) Disabled() bool {
	return s.disabled
}

// SearchCandidates resolves a free-text term to ranked store candidates.
// Exact case-insensitive matches rank highest, substring matches next; ties
// keep the store's response order.
func (s *Scraper) SearchCandidates(term string) ([]models.SearchCandidate, error) {
	if s.disabled {
		log.Debug("Scraper disabled. Returning empty data for candidates.")
		return nil, nil
	}

	body, err := s.client.GetJSON(models.StoreSearchURL(term))
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", term, err)
	}

	var hits []models.AppSearchResult
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, fmt.Errorf("%w: search result for %q: %v", ErrParse, term, err)
	}

	needle := strings.ToLower(term)
	candidates := make([]models.SearchCandidate, 0, len(hits))
	for _, hit := range hits {
		appID, err := strconv.ParseInt(hit.AppID, 10, 64)
		if err != nil {
			log.Warnf("Skipping search hit with unusable app id %q", hit.AppID)
			continue
		}

		score := 1
		name := strings.ToLower(hit.Name)
		if name == needle {
			score += 2
		}
		if strings.Contains(name, needle) {
			score++
		}
		candidates = append(candidates, models.SearchCandidate{
			AppID:   appID,
			Name:    hit.Name,
			Score:   score,
			IconURL: hit.Icon,
			LogoURL: hit.Logo,
		})
	}
	log.Debugf("Found %d titles with last request", len(candidates))

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

// payload returns the raw appdetails body for appID, fetching and caching it
// on first use. The per-key lock makes the check-fetch-store sequence atomic
// so parallel callers cannot trigger duplicate fetches for one app.
func (s *Scraper) payload(appID int64) ([]byte, error) {
	key := CacheKey(appID)
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if body, ok := s.cache.Get(key); ok {
		log.Debugf("Metadata cache hit %q", key)
		return body, nil
	}
	log.Debugf("Metadata cache miss %q", key)

	body, err := s.client.GetJSON(models.AppDetailsURL(appID))
	if err != nil {
		// Failures are never cached; the next call retries the fetch.
		return nil, err
	}
	if err := s.cache.Put(key, body); err != nil {
		log.WithError(err).Warnf("Could not cache payload %q", key)
	}
	return body, nil
}

func (s *Scraper) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// decodePayload unwraps the per-app envelope, e.g.
// {"620": {"success": true, "data": {...}}}.
func decodePayload(body []byte, appID int64) (*models.AppDetailsData, error) {
	var envelope map[string]models.AppDetailsPayload
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: appdetails for %d: %v", ErrParse, appID, err)
	}

	payload, ok := envelope[strconv.FormatInt(appID, 10)]
	if !ok {
		return nil, fmt.Errorf("%w: appdetails response has no entry for app %d", ErrParse, appID)
	}
	if !payload.Success || payload.Data == nil {
		return nil, fmt.Errorf("%w: store has no details for app %d", ErrParse, appID)
	}
	return payload.Data, nil
}

// Metadata fetches (or re-reads from cache) the appdetails payload for appID
// and projects it into a complete metadata record. Missing source fields fall
// back to per-field defaults, never to an error.
func (s *Scraper) Metadata(appID int64) (models.GameMetadata, error) {
	if s.disabled {
		log.Debug("Scraper disabled. Returning empty data.")
		return models.NewGameMetadata(), nil
	}

	body, err := s.payload(appID)
	if err != nil {
		return models.GameMetadata{}, err
	}
	data, err := decodePayload(body, appID)
	if err != nil {
		return models.GameMetadata{}, err
	}

	meta := models.NewGameMetadata()
	meta.Title = parseTitle(data)
	meta.Year = parseYear(data)
	meta.Genre = parseGenre(data)
	meta.Developer = parseDeveloper(data)
	meta.Plot = parsePlot(data)
	meta.Rating = parseRating(data)
	meta.Tags = parseTags(data)

	log.Debugf("Scraped metadata for app %d: %q (%s)", appID, meta.Title, meta.Year)
	return meta, nil
}

// Assets lists the store's media of one kind for appID. The same cached
// payload backs every kind, so asking for all four costs at most one fetch.
func (s *Scraper) Assets(appID int64, kind models.AssetKind) ([]models.AssetInfo, error) {
	if s.disabled {
		log.Debug("Scraper disabled. Returning empty data.")
		return nil, nil
	}

	body, err := s.payload(appID)
	if err != nil {
		return nil, err
	}
	data, err := decodePayload(body, appID)
	if err != nil {
		return nil, err
	}

	var assets []models.AssetInfo
	switch kind {
	case models.AssetTrailer:
		for _, movie := range data.Movies {
			movieURL := ""
			switch {
			case movie.Mp4 != nil:
				movieURL = movie.Mp4.Max
			case movie.Webm != nil:
				movieURL = movie.Webm.Max
			}
			assets = append(assets, models.AssetInfo{
				Kind:        kind,
				DisplayName: movie.Name,
				ThumbURL:    cleanURLSlashes(movie.Thumbnail),
				URL:         cleanURLSlashes(movieURL),
			})
		}
	case models.AssetScreenshot:
		for _, shot := range data.Screenshots {
			assets = append(assets, models.AssetInfo{
				Kind:        kind,
				DisplayName: fmt.Sprintf("screenshot #%d", shot.ID),
				ThumbURL:    cleanURLSlashes(shot.PathThumbnail),
				URL:         cleanURLSlashes(shot.PathFull),
			})
		}
	case models.AssetBanner:
		if data.HeaderImage != "" {
			assets = append(assets, models.AssetInfo{
				Kind:        kind,
				DisplayName: "Header image",
				ThumbURL:    cleanURLSlashes(data.HeaderImage),
				URL:         cleanURLSlashes(data.HeaderImage),
			})
		}
	case models.AssetFanart:
		if data.BackgroundRaw != "" {
			assets = append(assets, models.AssetInfo{
				Kind:        kind,
				DisplayName: "Background image",
				ThumbURL:    cleanURLSlashes(data.BackgroundRaw),
				URL:         cleanURLSlashes(data.BackgroundRaw),
			})
		}
	default:
		return nil, fmt.Errorf("unsupported asset kind %q", kind)
	}

	log.Debugf("Total assets found %d for type %s", len(assets), kind)
	return assets, nil
}

// ResolveAssetURL returns the download URL for an asset plus a redacted form
// that is safe for logs and reports.
func ResolveAssetURL(asset models.AssetInfo) (rawURL, loggable string) {
	return asset.URL, api.RedactURL(asset.URL)
}

// AssetFileExt picks the on-disk extension for an asset. Trailers become
// .strm text files carrying the stream URL instead of a full video download.
func AssetFileExt(asset models.AssetInfo) string {
	if asset.Kind == models.AssetTrailer {
		return "strm"
	}
	return urlExtension(asset.URL)
}

// urlExtension extracts the file extension from a URL path, ignoring any
// query string, e.g. ".../header.jpg?t=123" yields "jpg".
func urlExtension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	p := rawURL
	if err == nil {
		p = parsed.Path
	}
	return strings.TrimPrefix(path.Ext(p), ".")
}

// SupportedMetadata lists the metadata fields this scraper can fill.
func SupportedMetadata() []string {
	return []string{"title", "year", "genre", "developer", "rating", "plot", "tags"}
}

// SupportedAssets lists the asset kinds this scraper can discover.
func SupportedAssets() []string {
	kinds := models.AllAssetKinds()
	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = string(kind)
	}
	return names
}

// PublishCapabilities writes the scraper name and the supported metadata and
// asset lists to the settings store so other tools can discover them without
// running a scrape.
func (s *Scraper) PublishCapabilities() error {
	if err := s.settings.Set(settings.ScraperName, Name); err != nil {
		return err
	}
	if err := s.settings.Set(settings.SupportedMetadata, strings.Join(SupportedMetadata(), "|")); err != nil {
		return err
	}
	return s.settings.Set(settings.SupportedAssets, strings.Join(SupportedAssets(), "|"))
}

// --- appdetails field parsing ---

func parseTitle(data *models.AppDetailsData) string {
	if data.Name == "" {
		return models.MetaDefaultTitle
	}
	return data.Name
}

// parseYear takes the last four characters of the free-form release date
// string. The result is not validated as numeric, so dates like "Coming
// soon" leak through; consumers treat the field as display text.
func parseYear(data *models.AppDetailsData) string {
	date := data.ReleaseDate.Date
	if date == "" {
		return models.MetaDefaultYear
	}
	if len(date) <= 4 {
		return date
	}
	return date[len(date)-4:]
}

func parseGenre(data *models.AppDetailsData) string {
	if len(data.Genres) == 0 {
		return models.MetaDefaultGenre
	}
	descriptions := make([]string, len(data.Genres))
	for i, genre := range data.Genres {
		descriptions[i] = genre.Description
	}
	return strings.Join(descriptions, ", ")
}

// parseDeveloper joins the developer names. Unlike genre, a missing list
// stays empty; the store data is asymmetric here and consumers rely on it.
func parseDeveloper(data *models.AppDetailsData) string {
	return strings.Join(data.Developers, ", ")
}

var htmlTagRegex = regexp.MustCompile(`<[^<]+?>`)

func parsePlot(data *models.AppDetailsData) string {
	if data.DetailedDescription == "" {
		return models.MetaDefaultPlot
	}
	return htmlTagRegex.ReplaceAllString(data.DetailedDescription, "")
}

// parseRating scales the 0-100 metacritic score down to 0.0-1.0.
func parseRating(data *models.AppDetailsData) float64 {
	if data.Metacritic == nil {
		return models.MetaDefaultRating
	}
	return float64(data.Metacritic.Score) / 100
}

// tagRules maps store category ids to catalog tags, in emission order. A
// rule fires once when any of its ids is present.
var tagRules = []struct {
	ids []int
	tag string
}{
	{[]int{1}, "multiplayer"},
	{[]int{2}, "singleplayer"},
	{[]int{9}, "co-op"},
	{[]int{38}, "online-co-op"},
	{[]int{49}, "pvp"},
	{[]int{36}, "online-pvp"},
	{[]int{24, 37, 39}, "splitscreen"},
	{[]int{18}, "partial-controller-support"},
	{[]int{28}, "controller-supported"},
}

func parseTags(data *models.AppDetailsData) []string {
	if len(data.Categories) == 0 {
		return nil
	}
	present := make(map[int]struct{}, len(data.Categories))
	for _, category := range data.Categories {
		present[category.ID] = struct{}{}
	}

	var tags []string
	for _, rule := range tagRules {
		for _, id := range rule.ids {
			if _, ok := present[id]; ok {
				tags = append(tags, rule.tag)
				break
			}
		}
	}
	return tags
}

func cleanURLSlashes(rawURL string) string {
	return strings.ReplaceAll(rawURL, `\`, "")
}
