package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
	"github.com/spf13/afero"
	"github.com/sw33tLie/goesplan/internal/utils"
	"github.com/sw33tLie/goesplan/pkg/goeserr"
)

// SaveResult reports what Save did.
type SaveResult int

const (
	Saved SaveResult = iota + 1
	Skipped
)

func (r SaveResult) String() string {
	switch r {
	case Saved:
		return "saved"
	case Skipped:
		return "skipped"
	}
	return "failed"
}

// Store persists plans as JSON files under <root>/<year>/<day>/.
// Writes go through a temp file and a rename, and every mutation of a
// single plan is serialized on that plan's path.
type Store struct {
	fs       afero.Fs
	root     string
	keys     *kmutex.Kmutex
	fileLock bool
}

// NewStore creates a store on the OS filesystem. Updates additionally take
// a flock next to the plan file so that separate processes serialize too.
func NewStore(root string) *Store {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Store{fs: afero.NewOsFs(), root: root, keys: kmutex.New(), fileLock: true}
}

// NewStoreWithFs creates a store on an arbitrary filesystem, without
// cross-process locking.
func NewStoreWithFs(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root, keys: kmutex.New()}
}

// Root returns the plan root directory.
func (s *Store) Root() string { return s.root }

// Fs returns the store filesystem.
func (s *Store) Fs() afero.Fs { return s.fs }

// PathFor returns the canonical path of p inside the store.
func (s *Store) PathFor(p *Plan) string {
	return filepath.Join(s.root, filepath.FromSlash(p.RelPath()))
}

// Exists reports whether the canonical file for p exists.
func (s *Store) Exists(p *Plan) bool {
	ok, _ := afero.Exists(s.fs, s.PathFor(p))
	return ok
}

// Save writes p to its canonical path. If the file exists and overwrite is
// false nothing is written and Skipped is returned.
func (s *Store) Save(p *Plan, overwrite bool) (SaveResult, error) {
	path := s.PathFor(p)

	unlock, err := s.lock(path)
	if err != nil {
		return 0, err
	}
	defer unlock()

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return 0, goeserr.Local("stat plan", err)
	}
	if exists && !overwrite {
		return Skipped, nil
	}

	p.SelfInfo.FileName = filepath.Base(path)
	p.SelfInfo.PathAbsolute = Str(path)
	if err := s.write(path, p); err != nil {
		return 0, err
	}
	return Saved, nil
}

// SaveReport is the outcome of saving one plan in SaveAll.
type SaveReport struct {
	Path   string
	Result SaveResult
	Err    error
}

// SaveAll saves every plan, continuing past per-plan failures.
func (s *Store) SaveAll(plans []*Plan, overwrite bool) []SaveReport {
	out := make([]SaveReport, 0, len(plans))
	for _, p := range plans {
		res, err := s.Save(p, overwrite)
		out = append(out, SaveReport{Path: s.PathFor(p), Result: res, Err: err})
	}
	return out
}

// Load reads and strictly decodes the plan at path.
func (s *Store) Load(path string) (*Plan, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, goeserr.Local("read plan", err)
	}
	p, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ReadRaw returns the bytes of a plan file without decoding it.
func (s *Store) ReadRaw(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, goeserr.Local("read plan", err)
	}
	return data, nil
}

// Update loads the plan at path, applies fn and writes the result back,
// all while holding the plan lock. The summary is recomputed before the
// write. If fn returns an error nothing is written.
func (s *Store) Update(path string, fn func(*Plan) error) (*Plan, error) {
	unlock, err := s.lock(path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.Load(path)
	if err != nil {
		return nil, err
	}
	before := p.Clone()
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := sameKeys(before.Inventory, p.Inventory); err != nil {
		return nil, err
	}
	p.SatProdInfo = before.SatProdInfo
	p.SelfInfo = before.SelfInfo
	p.RecomputeSummary()

	if err := s.write(path, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns plan files under the root, optionally narrowed to a year
// and day. Paths are sorted.
func (s *Store) List(year, day string) ([]string, error) {
	if year == "" {
		year = "*"
	}
	if day == "" {
		day = "*"
	}
	matches, err := afero.Glob(s.fs, filepath.Join(s.root, year, day, "plan_01_download_*.json"))
	if err != nil {
		return nil, goeserr.Local("list plans", err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *Store) write(path string, p *Plan) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return goeserr.Local("create plan dir", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		_ = s.fs.Remove(tmp)
		return goeserr.Local("write plan", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return goeserr.Local("rename plan", err)
	}
	return nil
}

func (s *Store) lock(path string) (func(), error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, goeserr.Local("lock plan", err)
	}
	s.keys.Lock(key)
	if !s.fileLock {
		return func() { s.keys.Unlock(key) }, nil
	}

	fl, err := utils.NewPlanLock(key)
	if err != nil {
		s.keys.Unlock(key)
		return nil, goeserr.Local("lock plan", err)
	}
	if err := fl.Lock(); err != nil {
		s.keys.Unlock(key)
		return nil, goeserr.Local("lock plan", err)
	}
	return func() {
		if err := fl.Unlock(); err != nil && !errors.Is(err, os.ErrNotExist) {
			utils.Log.Warnf("Could not release %s: %v", fl.Path(), err)
		}
		s.keys.Unlock(key)
	}, nil
}
