package voice

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one voice file found in the models directory.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Catalog lists voice files in a directory by extension.
type Catalog struct {
	Dir       string
	Extension string
}

// List returns the voice files sorted by name. A missing directory is not an error.
func (c Catalog) List() ([]Entry, error) {
	items, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ext := strings.ToLower(c.Extension)
	var entries []Entry
	for _, item := range items {
		if item.IsDir() || strings.ToLower(filepath.Ext(item.Name())) != ext {
			continue
		}
		entries = append(entries, Entry{Name: item.Name(), Path: filepath.Join(c.Dir, item.Name())})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// First returns the first voice file or ErrNoModelAvailable.
func (c Catalog) First() (Entry, error) {
	entries, err := c.List()
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNoModelAvailable
	}
	return entries[0], nil
}

// Lookup resolves a chooser label (file name) or a full path to an entry.
func (c Catalog) Lookup(nameOrPath string) (Entry, bool) {
	entries, err := c.List()
	if err != nil {
		return Entry{}, false
	}
	for _, e := range entries {
		if e.Name == nameOrPath || e.Path == nameOrPath {
			return e, true
		}
	}
	return Entry{}, false
}
