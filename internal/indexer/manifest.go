package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

const manifestFile = "manifest.json"

// IndexManifest describes the persisted index.
type IndexManifest struct {
	BuildID      string    `json:"build_id"`
	Policy       string    `json:"policy"`
	Model        string    `json:"model"`
	Dimension    int       `json:"dimension"`
	Entries      int       `json:"entries"`
	Repositories []int64   `json:"repositories"`
	BuiltAt      time.Time `json:"built_at"`
}

func (m *IndexManifest) addRepository(id int64) {
	if !slices.Contains(m.Repositories, id) {
		m.Repositories = append(m.Repositories, id)
		slices.Sort(m.Repositories)
	}
}

func (m *IndexManifest) removeRepository(id int64) {
	m.Repositories = slices.DeleteFunc(m.Repositories, func(r int64) bool { return r == id })
}

func readManifest(path string) (*IndexManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no manifest at %s", codesearch.ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m IndexManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if m.Repositories == nil {
		m.Repositories = []int64{}
	}
	return &m, nil
}

func writeManifest(path string, m *IndexManifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}

func removeManifest(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing manifest: %w", err)
	}
	return nil
}
