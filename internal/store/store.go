// Package store persists raw panel frames as flat files, one entry per
// saved image. Entries hold the panel-native packed byte stream and
// nothing else; an entry may be shorter than a full frame if the
// original transfer underflowed (read-back pads in memory instead).
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the fixed extension all entries carry.
const Ext = ".bin"

// ErrNotFound is returned when a named entry does not exist.
var ErrNotFound = errors.New("store: entry not found")

// lastAddressFile records the network address acquired on the previous
// boot, so an unchanged address can skip the panel redraw.
const lastAddressFile = "last-address"

// Store is a directory of persistence entries.
type Store struct {
	dir string
}

// Open prepares a store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{dir: dir}, nil
}

// SanitizeName reduces a requested entry name to the safe character set
// [A-Za-z0-9_-]. An empty result means "no save requested", not an
// error; callers must treat it that way.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

func (s *Store) path(clean string) string {
	return filepath.Join(s.dir, clean+Ext)
}

// Create opens a new entry for writing, truncating any previous entry
// with the same name. name must already be sanitized and non-empty.
func (s *Store) Create(name string) (io.WriteCloser, error) {
	f, err := os.Create(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("store: create %s: %w", name, err)
	}
	return f, nil
}

// ReadFrame loads the full byte stream of a named entry. The raw
// requested name is sanitized before lookup so the read path accepts
// the same names the save path produced.
func (s *Store) ReadFrame(name string) ([]byte, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.path(clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", clean, err)
	}
	return data, nil
}

// List returns the names of all saved entries, sorted, without the
// extension.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Ext))
	}
	sort.Strings(names)
	return names, nil
}

// LastAddress returns the network address recorded by the previous
// boot, or "" if none was recorded.
func (s *Store) LastAddress() string {
	data, err := os.ReadFile(filepath.Join(s.dir, lastAddressFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SetLastAddress records the currently acquired network address.
func (s *Store) SetLastAddress(addr string) error {
	return os.WriteFile(filepath.Join(s.dir, lastAddressFile), []byte(addr+"\n"), 0o644)
}
