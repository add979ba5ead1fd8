package database

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// gzipMagicBytes are the first two bytes of a gzip stream.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// Key namespaces. One bitcask store holds the catalog collections, the cached
// store payloads and the mutable settings, separated by prefix.
const (
	KeyPrefixCatalog = "catalog_"
	KeyPrefixPayload = "appdetails_"
	KeyPrefixSetting = "setting_"
)

// DB wraps the bitcask instance and provides helper methods. Values are
// gzip-compressed on write; store payloads in particular compress well.
type DB struct {
	db           *bitcask.Bitcask
	sync.RWMutex // embedded for concurrent access control
}

// Open initializes and returns a DB instance, creating the parent directory
// when needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// Collections are stored as one value per source, which can exceed the
	// default 64KB value cap on large libraries even after compression.
	dbInstance, err := bitcask.Open(path,
		bitcask.WithMaxKeySize(256),
		bitcask.WithMaxValueSize(16<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Infof("Database opened successfully at %s", path)
	return &DB{db: dbInstance}, nil
}

// Close safely closes the database connection.
func (d *DB) Close() error {
	log.Info("Closing database...")
	d.Lock()
	defer d.Unlock()
	return d.db.Close()
}

// Has checks if a key exists in the database.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	return d.db.Has(key)
}

// Get retrieves the value for a key, decompressing it when necessary.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	value, err := d.db.Get(key)
	d.RUnlock()

	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}

	return decompressIfGzipped(value)
}

// Put compresses and stores a key-value pair.
func (d *DB) Put(key []byte, value []byte) error {
	compressedValue, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}

	d.Lock()
	err = d.db.Put(key, compressedValue)
	d.Unlock()
	if err != nil {
		return fmt.Errorf("error putting compressed key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key from the database.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	err := d.db.Delete(key)
	d.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold iterates over all key-value pairs, decompressing each value before
// calling fn. Keys whose values cannot be read or decompressed are skipped
// with a warning rather than aborting the fold.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	defer d.RUnlock()

	return d.db.Fold(func(key []byte) error {
		rawValue, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: error getting value for key %s", string(key))
			return nil
		}

		value, err := decompressIfGzipped(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Fold: error decompressing value for key %s", string(key))
			return nil
		}

		return fn(key, value)
	})
}

// Keys returns a channel of all keys. The read lock is held until the channel
// is drained, so do not call write operations while iterating.
func (d *DB) Keys() <-chan []byte {
	d.RLock()
	keysChan := d.db.Keys()
	monitoredChan := make(chan []byte)

	go func() {
		defer d.RUnlock()
		for key := range keysChan {
			monitoredChan <- key
		}
		close(monitoredChan)
	}()

	return monitoredChan
}

// --- Settings helpers ---

// GetSetting reads a mutable setting value. Missing keys return ErrNotFound.
func (d *DB) GetSetting(name string) (string, error) {
	value, err := d.Get([]byte(KeyPrefixSetting + name))
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// SetSetting stores a mutable setting value.
func (d *DB) SetSetting(name, value string) error {
	if err := d.Put([]byte(KeyPrefixSetting+name), []byte(value)); err != nil {
		return err
	}
	log.WithField("setting", name).Debug("Stored setting")
	return nil
}

// DeleteSetting removes a setting; deleting a missing key is not an error.
func (d *DB) DeleteSetting(name string) error {
	err := d.Delete([]byte(KeyPrefixSetting + name))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// --- Payload cache ---

// PayloadCache adapts the database to the scraper's cache interface. Keys are
// used as given; the scraper derives them from the app id.
type PayloadCache struct {
	DB *DB
}

// Get returns the cached payload for key, reporting whether it was present.
func (c *PayloadCache) Get(key string) ([]byte, bool) {
	value, err := c.DB.Get([]byte(key))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.WithError(err).Warnf("Payload cache read failed for %s", key)
		}
		return nil, false
	}
	return value, true
}

// Put stores a payload under key.
func (c *PayloadCache) Put(key string, value []byte) error {
	return c.DB.Put([]byte(key), value)
}

// --- Compression helpers ---

// decompressIfGzipped transparently decompresses gzipped values. Corrupt
// streams fall back to the raw bytes so one bad record cannot poison a fold.
func decompressIfGzipped(value []byte) ([]byte, error) {
	if bytes.HasPrefix(value, gzipMagicBytes) {
		bReader := bytes.NewReader(value)
		gReader, err := gzip.NewReader(bReader)
		if err != nil {
			log.WithError(err).Warn("Error creating gzip reader for value, returning raw data.")
			return value, nil
		}
		defer gReader.Close()

		decompressedValue, err := io.ReadAll(gReader)
		if err != nil {
			log.WithError(err).Warn("Error decompressing value, returning raw data.")
			return value, nil
		}
		return decompressedValue, nil
	}

	return value, nil
}

// compressGzip compresses the value with the given gzip level.
func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer for value: %w", err)
	}
	if _, err = gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data for value: %w", err)
	}
	// Close must be called to flush buffers.
	if err = gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer for value: %w", err)
	}

	return buf.Bytes(), nil
}
