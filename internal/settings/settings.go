package settings

import (
	"os"
	"path/filepath"
	"strconv"

	"go-steam-librarian/internal/database"
	"go-steam-librarian/internal/models"
)

// Setting names understood by the store. Values written to the database
// override the config file.
const (
	APIKey            = "steam-api-key"
	SteamID           = "steam-id"
	SavePath          = "save-path"
	ReportsPath       = "reports-path"
	SaveBanners       = "save-banners"
	SaveFanart        = "save-fanart"
	SaveScreenshots   = "save-screenshots"
	SaveTrailers      = "save-trailers"
	Concurrency       = "concurrency"
	ScraperName       = "scraper.name"
	SupportedMetadata = "scraper.supported_metadata"
	SupportedAssets   = "scraper.supported_assets"
)

// Store is the settings surface the scanner and scraper read from. Set
// persists a value so later runs (and other tools reading the database) see
// it; the scraper uses it to publish its capabilities.
type Store interface {
	GetString(name string) string
	GetBool(name string) bool
	GetInt(name string) int
	GetPath(name string) string
	Set(name, value string) error
}

// DBStore resolves settings from the database first and falls back to the
// loaded config file.
type DBStore struct {
	DB  *database.DB
	Cfg *models.Config
}

func (s *DBStore) lookup(name string) (string, bool) {
	if s.DB == nil {
		return "", false
	}
	value, err := s.DB.GetSetting(name)
	if err != nil {
		return "", false
	}
	return value, true
}

func (s *DBStore) GetString(name string) string {
	if value, ok := s.lookup(name); ok {
		return value
	}
	if s.Cfg == nil {
		return ""
	}
	switch name {
	case APIKey:
		return s.Cfg.ApiKey
	case SteamID:
		return s.Cfg.SteamID
	case SavePath:
		return s.Cfg.SavePath
	case ReportsPath:
		return s.Cfg.ReportsPath
	}
	return ""
}

func (s *DBStore) GetBool(name string) bool {
	if value, ok := s.lookup(name); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	if s.Cfg == nil {
		return false
	}
	switch name {
	case SaveBanners:
		return s.Cfg.SaveBanners
	case SaveFanart:
		return s.Cfg.SaveFanart
	case SaveScreenshots:
		return s.Cfg.SaveScreenshots
	case SaveTrailers:
		return s.Cfg.SaveTrailers
	}
	return false
}

func (s *DBStore) GetInt(name string) int {
	if value, ok := s.lookup(name); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	if s.Cfg == nil {
		return 0
	}
	switch name {
	case Concurrency:
		return s.Cfg.Concurrency
	}
	return 0
}

// GetPath is GetString with environment variables expanded and the result
// cleaned, so settings may carry $HOME style paths.
func (s *DBStore) GetPath(name string) string {
	path := s.GetString(name)
	if path == "" {
		return ""
	}
	return filepath.Clean(os.ExpandEnv(path))
}

func (s *DBStore) Set(name, value string) error {
	return s.DB.SetSetting(name, value)
}

// Mem is an in-memory store for tests.
type Mem struct {
	Strings map[string]string
	Bools   map[string]bool
	Ints    map[string]int
}

func NewMem() *Mem {
	return &Mem{
		Strings: make(map[string]string),
		Bools:   make(map[string]bool),
		Ints:    make(map[string]int),
	}
}

func (m *Mem) GetString(name string) string { return m.Strings[name] }
func (m *Mem) GetBool(name string) bool     { return m.Bools[name] }
func (m *Mem) GetInt(name string) int       { return m.Ints[name] }
func (m *Mem) GetPath(name string) string   { return m.Strings[name] }

func (m *Mem) Set(name, value string) error {
	m.Strings[name] = value
	return nil
}
