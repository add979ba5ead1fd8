package index

import (
	"log"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"

	"go-steam-librarian/internal/models"
)

const defaultIndexPath = "librarian.bleve"

// Item is the indexed projection of a catalog entry. All fields are
// searchable under their lowercase JSON tag names (e.g. query
// '+genre:action' or '+tags:singleplayer').
type Item struct {
	ID        string   `json:"id"`     // catalog entry id
	AppID     string   `json:"appId"`  // store app id
	Name      string   `json:"name"`   // display title
	Source    string   `json:"source"` // collection the entry belongs to
	Status    string   `json:"status,omitempty"`
	Year      string   `json:"year,omitempty"`
	Genre     string   `json:"genre,omitempty"`
	Developer string   `json:"developer,omitempty"`
	Plot      string   `json:"plot,omitempty"`
	Rating    float64  `json:"rating,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// ItemFromEntry flattens a catalog entry into its indexed form. Metadata
// fields stay empty until the entry has been scraped.
func ItemFromEntry(source string, entry models.CatalogEntry) Item {
	item := Item{
		ID:     entry.ID,
		AppID:  strconv.FormatInt(entry.AppID, 10),
		Name:   entry.Name,
		Source: source,
		Status: entry.Status,
	}
	if meta := entry.Meta; meta != nil {
		item.Year = meta.Year
		item.Genre = meta.Genre
		item.Developer = meta.Developer
		item.Plot = meta.Plot
		item.Rating = meta.Rating
		item.Tags = meta.Tags
	}
	return item
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Printf("Creating new index at: %s", indexPath)
		mapping := bleve.NewIndexMapping()
		index, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err // Other error opening index
	} else {
		log.Printf("Opened existing index at: %s", indexPath)
	}
	return index, nil
}

// IndexItem adds or updates an item in the Bleve index.
func IndexItem(index bleve.Index, item Item) error {
	return index.Index(item.ID, item)
}

// DeleteItem removes one item from the index, e.g. after a rescan drops a
// dead entry.
func DeleteItem(index bleve.Index, id string) error {
	return index.Delete(id)
}

// SearchIndex performs a search query against the index. A non-positive
// limit keeps bleve's default result size.
func SearchIndex(index bleve.Index, query string, limit int) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"} // Request all stored fields
	if limit > 0 {
		searchRequest.Size = limit
	}
	searchResults, err := index.Search(searchRequest)
	if err != nil {
		return nil, err
	}
	return searchResults, nil
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Printf("Attempting to delete index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
