package models

import (
	"encoding/json"
	"net/url"
	"strconv"
)

type (
	Config struct {
		// Connection/Auth
		ApiKey  string `toml:"ApiKey"`  // Steam Web API key (https://steamcommunity.com/dev/apikey)
		SteamID string `toml:"SteamID"` // 64-bit account id the library scan reads

		// Paths
		SavePath       string `toml:"SavePath"` // artwork root; per-entry folders are created below it
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`
		ReportsPath    string `toml:"ReportsPath"`

		// Catalog behaviour
		SourceName string `toml:"SourceName"` // default collection name for scan/scrape

		// Scrape behaviour
		SaveBanners      bool `toml:"SaveBanners"`
		SaveFanart       bool `toml:"SaveFanart"`
		SaveScreenshots  bool `toml:"SaveScreenshots"`
		SaveTrailers     bool `toml:"SaveTrailers"`
		DownloadAssets   bool `toml:"DownloadAssets"` // fetch artwork files, not just descriptors
		ScrapeMetaOnly   bool `toml:"ScrapeMetaOnly"`
		SkipConfirmation bool `toml:"SkipConfirmation"` // for --yes flag
		Concurrency      int  `toml:"Concurrency"`      // parallel artwork downloads

		// API behaviour
		ApiClientTimeoutSec int `toml:"ApiClientTimeoutSec"`
		ApiBurstSize        int `toml:"ApiBurstSize"`    // calls allowed before a forced cooldown
		ApiCooldownMs       int `toml:"ApiCooldownMs"`   // pause inserted after each burst
		ApiMaxRetries       int `toml:"ApiMaxRetries"`   // 429 retries before giving up
		ApiRetryWaitSec     int `toml:"ApiRetryWaitSec"` // base 429 wait, multiplied by the attempt number

		// Other
		LogApiRequests bool `toml:"LogApiRequests"`
	}

	// --- IPlayerService/GetOwnedGames response structures ---

	OwnedGamesEnvelope struct {
		Response OwnedGamesPage `json:"response"`
	}

	// Games are kept as raw JSON so each entry's payload can be stored
	// verbatim alongside the parsed form.
	OwnedGamesPage struct {
		GameCount int               `json:"game_count"`
		Games     []json.RawMessage `json:"games"`
	}

	OwnedGame struct {
		AppID                    int64  `json:"appid"`
		Name                     string `json:"name"`
		PlaytimeForever          int    `json:"playtime_forever"`
		ImgIconURL               string `json:"img_icon_url"`
		HasCommunityVisibleStats bool   `json:"has_community_visible_stats"`
		RtimeLastPlayed          int64  `json:"rtime_last_played"`
	}

	// --- steamcommunity SearchApps response structures ---

	// AppSearchResult is one element of the SearchApps JSON array.
	AppSearchResult struct {
		AppID string `json:"appid"` // the storefront returns the id as a string here
		Name  string `json:"name"`
		Icon  string `json:"icon"`
		Logo  string `json:"logo"`
	}

	// SearchCandidate is a ranked search hit after scoring.
	SearchCandidate struct {
		AppID   int64  `json:"appId"`
		Name    string `json:"name"`
		Score   int    `json:"score"`
		IconURL string `json:"iconUrl,omitempty"`
		LogoURL string `json:"logoUrl,omitempty"`
	}

	// --- store.steampowered.com appdetails response structures ---

	// AppDetailsPayload is the per-appid envelope: {"620": {"success": true, "data": {...}}}
	AppDetailsPayload struct {
		Success bool            `json:"success"`
		Data    *AppDetailsData `json:"data"`
	}

	AppDetailsData struct {
		Type                string           `json:"type"`
		Name                string           `json:"name"`
		SteamAppID          int64            `json:"steam_appid"`
		DetailedDescription string           `json:"detailed_description"`
		ShortDescription    string           `json:"short_description"`
		HeaderImage         string           `json:"header_image"`
		BackgroundRaw       string           `json:"background_raw"`
		Developers          []string         `json:"developers"` // key absent entirely for some titles
		Publishers          []string         `json:"publishers"`
		ReleaseDate         ReleaseDate      `json:"release_date"`
		Metacritic          *MetacriticScore `json:"metacritic"` // pointer: most titles have no score
		Genres              []GenreEntry     `json:"genres"`
		Categories          []CategoryEntry  `json:"categories"`
		Screenshots         []Screenshot     `json:"screenshots"`
		Movies              []Movie          `json:"movies"`
	}

	ReleaseDate struct {
		ComingSoon bool   `json:"coming_soon"`
		Date       string `json:"date"` // free-form, e.g. "17 Nov 2017"
	}

	MetacriticScore struct {
		Score int    `json:"score"` // 0-100
		URL   string `json:"url"`
	}

	GenreEntry struct {
		ID          string `json:"id"` // genre ids are strings, category ids are numbers
		Description string `json:"description"`
	}

	CategoryEntry struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	}

	Screenshot struct {
		ID            int    `json:"id"`
		PathThumbnail string `json:"path_thumbnail"`
		PathFull      string `json:"path_full"`
	}

	Movie struct {
		ID        int64         `json:"id"`
		Name      string        `json:"name"`
		Thumbnail string        `json:"thumbnail"`
		Webm      *MovieFormats `json:"webm"` // pointers so a missing encoding is detectable
		Mp4       *MovieFormats `json:"mp4"`
		Highlight bool          `json:"highlight"`
	}

	MovieFormats struct {
		Res480 string `json:"480"`
		Max    string `json:"max"`
	}

	// --- normalized scrape output ---

	// GameMetadata is the record handed to consumers. Every field is always
	// set; NewGameMetadata fills the defaults so a missing payload field never
	// leaves a hole.
	GameMetadata struct {
		Title     string   `json:"title"`
		Year      string   `json:"year"`
		Genre     string   `json:"genre"`
		Developer string   `json:"developer"`
		Plot      string   `json:"plot"`
		Rating    float64  `json:"rating"` // 0.0 - 1.0
		Tags      []string `json:"tags,omitempty"`
	}

	// AssetInfo describes one downloadable asset advertised by the store.
	AssetInfo struct {
		Kind        AssetKind `json:"kind"`
		URL         string    `json:"url"`
		ThumbURL    string    `json:"thumbUrl,omitempty"`
		DisplayName string    `json:"displayName,omitempty"`
	}

	// AssetFile records an asset that was actually written to disk.
	AssetFile struct {
		Kind         AssetKind `json:"kind"`
		Name         string    `json:"name"`
		Path         string    `json:"path"`
		URL          string    `json:"url"`
		BLAKE3       string    `json:"blake3,omitempty"`
		Size         int64     `json:"size,omitempty"`
		DownloadedAt int64     `json:"downloadedAt"`
	}

	AssetKind string

	// --- catalog storage ---

	// CatalogEntry is one library item in a stored collection. ID is minted by
	// the scanner; AppID is the remote identity reconciliation matches on. Raw
	// keeps the owned-games payload verbatim for later re-parsing.
	CatalogEntry struct {
		ID           string          `json:"id"`
		AppID        int64           `json:"appId"`
		Name         string          `json:"name"`
		SourceName   string          `json:"sourceName,omitempty"`
		ScannedBy    string          `json:"scannedBy,omitempty"`
		Raw          json.RawMessage `json:"raw,omitempty"`
		Meta         *GameMetadata   `json:"meta,omitempty"`
		Assets       []AssetFile     `json:"assets,omitempty"`
		Status       string          `json:"status"`
		ErrorDetails string          `json:"errorDetails,omitempty"`
		ScannedAt    int64           `json:"scannedAt,omitempty"`
		ScrapedAt    int64           `json:"scrapedAt,omitempty"`
	}

	// ScanResult summarizes one reconcile run.
	ScanResult struct {
		NewCount  int `json:"new"`
		DeadCount int `json:"dead"`
		Total     int `json:"total"`
	}
)

// Entry status constants
const (
	StatusScanned = "Scanned"
	StatusScraped = "Scraped"
	StatusError   = "Error"
)

// Asset kinds the scraper understands.
const (
	AssetBanner     AssetKind = "banner"
	AssetFanart     AssetKind = "fanart"
	AssetScreenshot AssetKind = "screenshot"
	AssetTrailer    AssetKind = "trailer"
)

// AllAssetKinds returns every supported kind in display order.
func AllAssetKinds() []AssetKind {
	return []AssetKind{AssetBanner, AssetFanart, AssetScreenshot, AssetTrailer}
}

// Metadata default sentinels. Consumers rely on records being total, so
// missing payload fields map to these rather than to empty holes. Developer is
// the historical exception: a missing developers key yields the empty string.
const (
	MetaDefaultTitle  = "Unknown"
	MetaDefaultYear   = ""
	MetaDefaultGenre  = "Unknown"
	MetaDefaultPlot   = ""
	MetaDefaultRating = 0.0
)

// NewGameMetadata returns a record with every field at its default sentinel.
func NewGameMetadata() GameMetadata {
	return GameMetadata{
		Title:     MetaDefaultTitle,
		Year:      MetaDefaultYear,
		Genre:     MetaDefaultGenre,
		Developer: "",
		Plot:      MetaDefaultPlot,
		Rating:    MetaDefaultRating,
	}
}

// Identity returns the remote id reconciliation matches on.
func (e CatalogEntry) Identity() int64 { return e.AppID }

// DisplayName returns the name shown in listings and reports.
func (e CatalogEntry) DisplayName() string { return e.Name }

// Payload returns the stored remote payload snapshot.
func (e CatalogEntry) Payload() json.RawMessage { return e.Raw }

// API endpoints. The storefront country/language are pinned so cached payloads
// stay comparable between runs.
const (
	ownedGamesBase    = "https://api.steampowered.com/IPlayerService/GetOwnedGames/v0001/"
	storeSearchBase   = "https://steamcommunity.com/actions/SearchApps/"
	appDetailsBase    = "https://store.steampowered.com/api/appdetails"
	storefrontCountry = "EE"
	storefrontLang    = "english"
)

// OwnedGamesURL builds the GetOwnedGames call for one account. The key ends up
// in the query string, so anything logging this URL must redact it first.
func OwnedGamesURL(apiKey, steamID string) string {
	values := url.Values{}
	values.Set("key", apiKey)
	values.Set("steamid", steamID)
	values.Set("include_appinfo", "1")
	return ownedGamesBase + "?" + values.Encode()
}

// StoreSearchURL builds the community SearchApps call for a search term.
func StoreSearchURL(term string) string {
	return storeSearchBase + url.PathEscape(term)
}

// AppDetailsURL builds the storefront appdetails call for one app.
func AppDetailsURL(appID int64) string {
	values := url.Values{}
	values.Set("appids", strconv.FormatInt(appID, 10))
	values.Set("cc", storefrontCountry)
	values.Set("l", storefrontLang)
	values.Set("v", "1")
	return appDetailsBase + "?" + values.Encode()
}
