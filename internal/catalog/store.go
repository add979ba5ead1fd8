package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go-steam-librarian/internal/database"
	"go-steam-librarian/internal/models"
)

// Store persists catalog collections, one per source name. A collection is
// stored as a single JSON array so a commit replaces it atomically; partial
// scans never leave a half-written collection behind.
type Store struct {
	DB *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{DB: db}
}

func key(source string) []byte {
	return []byte(database.KeyPrefixCatalog + source)
}

// Load returns the collection for source. A source that was never scanned
// yields an empty collection, not an error.
func (s *Store) Load(source string) ([]models.CatalogEntry, error) {
	raw, err := s.DB.Get(key(source))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return []models.CatalogEntry{}, nil
		}
		return nil, fmt.Errorf("loading collection %q: %w", source, err)
	}

	var entries []models.CatalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("collection %q is corrupt: %w", source, err)
	}
	return entries, nil
}

// Commit replaces the stored collection for source with entries.
func (s *Store) Commit(source string, entries []models.CatalogEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding collection %q: %w", source, err)
	}
	if err := s.DB.Put(key(source), raw); err != nil {
		return fmt.Errorf("committing collection %q: %w", source, err)
	}
	return nil
}

// Delete removes the collection for source entirely.
func (s *Store) Delete(source string) error {
	err := s.DB.Delete(key(source))
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("deleting collection %q: %w", source, err)
	}
	return nil
}

// Sources lists all source names with a stored collection, sorted.
func (s *Store) Sources() []string {
	var sources []string
	for k := range s.DB.Keys() {
		name := string(k)
		if strings.HasPrefix(name, database.KeyPrefixCatalog) {
			sources = append(sources, strings.TrimPrefix(name, database.KeyPrefixCatalog))
		}
	}
	sort.Strings(sources)
	return sources
}

// FindEntry locates an entry by its catalog id or, failing that, by its
// numeric app id. The returned pointer aliases the slice element so callers
// can update the entry in place before committing.
func FindEntry(entries []models.CatalogEntry, ref string) (*models.CatalogEntry, bool) {
	for i := range entries {
		if entries[i].ID == ref {
			return &entries[i], true
		}
	}
	if appID, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for i := range entries {
			if entries[i].AppID == appID {
				return &entries[i], true
			}
		}
	}
	return nil, false
}
