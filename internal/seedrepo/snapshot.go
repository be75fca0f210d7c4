package seedrepo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"seed-ingest/internal/model"
)

// Directory names inside a seed repository.
const (
	SymbolInfoDir = "symbol_info"
	DataDir       = "data"
)

// Snapshot is the content of a repository at one revision. A nil map means the
// corresponding directory was absent from the submission.
type Snapshot struct {
	Symbols map[string]model.SymbolRecord
	Data    map[string][]model.DataRow
}

// HasMetadata reports whether the snapshot carries a metadata directory.
func (s Snapshot) HasMetadata() bool { return s.Symbols != nil }

// HasData reports whether the snapshot carries a data directory.
func (s Snapshot) HasData() bool { return s.Data != nil }

// SymbolNames returns the sorted metadata keys.
func (s Snapshot) SymbolNames() []string {
	names := make([]string, 0, len(s.Symbols))
	for name := range s.Symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads the repository rooted at dir.
func Load(dir string) (Snapshot, model.Violations, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("stat repository: %w", err)
	}
	if !info.IsDir() {
		return Snapshot{}, nil, fmt.Errorf("repository %s is not a directory", dir)
	}

	var (
		snap       Snapshot
		violations model.Violations
	)

	symbols, vs, err := loadSymbolInfo(filepath.Join(dir, SymbolInfoDir))
	if err != nil {
		return Snapshot{}, nil, err
	}
	snap.Symbols = symbols
	violations = append(violations, vs...)

	data, vs, err := loadData(filepath.Join(dir, DataDir))
	if err != nil {
		return Snapshot{}, nil, err
	}
	snap.Data = data
	violations = append(violations, vs...)

	return snap, violations, nil
}

func listFiles(dir, ext string) ([]string, bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, true, nil
}
