package gridshift

import (
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/pspoerri/reproject/internal/coord"
)

// PathsEnv lists extra grid directories, separated like PATH.
const PathsEnv = "REPROJECT_GRIDS_PATHS"

// Store resolves grid names to loaded tables. Each grid file is read at
// most once, even under concurrent first use, and kept for the lifetime of
// the store.
type Store struct {
	fs    afero.Fs
	paths []string
	log   logrus.FieldLogger

	mu    sync.RWMutex
	grids map[string][]*Table
	group singleflight.Group
}

// NewStore returns a store reading grid files from fs. Names that are not
// found as given are looked up in each of paths in turn.
func NewStore(fs afero.Fs, paths ...string) *Store {
	s := &Store{
		fs:    fs,
		paths: paths,
		log:   logrus.StandardLogger(),
		grids: make(map[string][]*Table),
	}
	s.grids["null"] = []*Table{nullTable()}
	return s
}

// SetLogger replaces the logger used for load messages.
func (s *Store) SetLogger(l logrus.FieldLogger) {
	if l != nil {
		s.log = l
	}
}

// Paths returns the search paths.
func (s *Store) Paths() []string { return s.paths }

var defaultStore = sync.OnceValue(func() *Store {
	return NewStore(afero.NewOsFs(), DefaultPaths()...)
})

// DefaultStore returns the process-wide store on the OS filesystem,
// searching DefaultPaths.
func DefaultStore() *Store { return defaultStore() }

// DefaultPaths returns the grid directories named by REPROJECT_GRIDS_PATHS,
// PROJ_DATA and PROJ_LIB, in that order.
func DefaultPaths() []string {
	var paths []string
	for _, env := range []string{PathsEnv, "PROJ_DATA", "PROJ_LIB"} {
		for _, p := range filepath.SplitList(os.Getenv(env)) {
			if p != "" {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// Register makes tables available under name without touching the
// filesystem. It replaces any earlier registration.
func (s *Store) Register(name string, tables ...*Table) {
	for _, t := range tables {
		t.BuildIndex()
	}
	s.mu.Lock()
	s.grids[name] = tables
	s.mu.Unlock()
}

// Resolve returns the top-level tables of the named grids, in order. A
// name starting with '@' is optional and skipped when its file is missing.
func (s *Store) Resolve(names []string) ([]*Table, error) {
	var tables []*Table
	for _, name := range names {
		optional := strings.HasPrefix(name, "@")
		name = strings.TrimPrefix(name, "@")
		if name == "" {
			continue
		}
		ts, err := s.Get(name)
		if err != nil {
			if optional && errors.Is(err, ErrGridNotFound) {
				continue
			}
			return nil, err
		}
		tables = append(tables, ts...)
	}
	return tables, nil
}

// Get returns the top-level tables of one grid file, loading it on first
// use.
func (s *Store) Get(name string) ([]*Table, error) {
	s.mu.RLock()
	ts, ok := s.grids[name]
	s.mu.RUnlock()
	if ok {
		return ts, nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		s.mu.RLock()
		ts, ok := s.grids[name]
		s.mu.RUnlock()
		if ok {
			return ts, nil
		}
		ts, err := s.load(name)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.grids[name] = ts
		s.mu.Unlock()
		return ts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Table), nil
}

// Loaded returns the sorted names of the grids currently held.
func (s *Store) Loaded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.grids))
	for name := range s.grids {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Store) locate(name string) (string, error) {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		if ok, _ := afero.Exists(s.fs, name); ok {
			return name, nil
		}
		return "", errors.Wrapf(ErrGridNotFound, "%s", name)
	}
	for _, dir := range s.paths {
		p := filepath.Join(dir, name)
		if ok, _ := afero.Exists(s.fs, p); ok {
			return p, nil
		}
	}
	if ok, _ := afero.Exists(s.fs, name); ok {
		return name, nil
	}
	return "", errors.Wrapf(ErrGridNotFound, "%s (searched %s)", name, strings.Join(s.paths, string(filepath.ListSeparator)))
}

func (s *Store) load(name string) ([]*Table, error) {
	path, err := s.locate(name)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening grid %s", path)
	}
	defer f.Close()

	tables, format, err := Read(f, name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading grid %s", path)
	}
	s.log.WithFields(logrus.Fields{
		"grid":   name,
		"path":   path,
		"format": format,
		"tables": len(tables),
	}).Debug("loaded grid")
	return tables, nil
}

// nullTable covers the whole world with a zero shift.
func nullTable() *Table {
	cells := make([]coord.PhiLam, 9)
	ll := coord.PhiLam{Lambda: -math.Pi, Phi: -math.Pi / 2}
	cell := coord.PhiLam{Lambda: math.Pi, Phi: math.Pi / 2}
	t, _ := NewTable("null", ll, cell, 3, 3, cells)
	t.Format = "builtin"
	return t
}
