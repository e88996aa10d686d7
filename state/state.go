package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	appconfig "feedsync/config"
	"feedsync/logger"
	"feedsync/models"
)

// Store persists run state between invocations: one JSON file with feed
// fingerprints and one with the last acknowledged product snapshots. Both
// are written atomically so a crash mid-save never leaves a torn file.
type Store struct {
	dir          string
	feedsPath    string
	productsPath string
	log          *logger.Log
}

func NewStore(cfg *appconfig.Config) *Store {
	return &Store{
		dir:          cfg.State.Dir,
		feedsPath:    filepath.Join(cfg.State.Dir, cfg.State.FeedsFile),
		productsPath: filepath.Join(cfg.State.Dir, cfg.State.ProductsFile),
		log:          logger.GetLogger(),
	}
}

// LoadFingerprints returns the stored feed fingerprint map. A missing file
// is a first run, not an error.
func (s *Store) LoadFingerprints() (map[string]string, error) {
	fingerprints := make(map[string]string)
	if err := s.loadJSON(s.feedsPath, &fingerprints); err != nil {
		return nil, err
	}
	return fingerprints, nil
}

// SaveFingerprints replaces the stored fingerprint map.
func (s *Store) SaveFingerprints(fingerprints map[string]string) error {
	return s.saveJSON(s.feedsPath, fingerprints)
}

// LoadProducts returns the last acknowledged snapshot per canonical ID.
// The ID lives in the map key, so it is restored onto each value here.
func (s *Store) LoadProducts() (map[string]models.ProductSnapshot, error) {
	products := make(map[string]models.ProductSnapshot)
	if err := s.loadJSON(s.productsPath, &products); err != nil {
		return nil, err
	}
	for id, snapshot := range products {
		snapshot.CanonicalID = id
		products[id] = snapshot
	}
	return products, nil
}

// SaveProducts replaces the stored snapshot map.
func (s *Store) SaveProducts(products map[string]models.ProductSnapshot) error {
	return s.saveJSON(s.productsPath, products)
}

func (s *Store) loadJSON(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return nil
}

// saveJSON writes to a temp file in the state dir and renames it over the
// target so readers never observe a partially written file.
func (s *Store) saveJSON(path string, value interface{}) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.log.WithComponent("state").WithFields(logger.Fields{
		"file":  path,
		"bytes": len(data),
	}).Debug("state saved")
	return nil
}
