// Package reconcile brings a plan's local state in line with what is
// actually on disk under the archive root.
package reconcile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/sw33tLie/goesplan/internal/utils"
	"github.com/sw33tLie/goesplan/pkg/plan"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

type Reconciler struct {
	fs          afero.Fs
	archiveRoot string
	log         Logger
}

// New creates a reconciler over fs. A nil logger discards messages.
func New(fs afero.Fs, archiveRoot string, log Logger) *Reconciler {
	if log == nil {
		log = nopLogger{}
	}
	if abs, err := filepath.Abs(archiveRoot); err == nil {
		archiveRoot = abs
	}
	return &Reconciler{fs: fs, archiveRoot: archiveRoot, log: log}
}

// Local updates the local-existence fields of every entry and recomputes the
// summary. Running it twice with no filesystem change gives the same plan.
func (r *Reconciler) Local(p *plan.Plan) *plan.Plan {
	for _, key := range p.Inventory.Keys() {
		r.entry(p.Inventory[key])
	}
	p.RecomputeSummary()
	return p
}

// Entry reconciles a single entry.
func (r *Reconciler) Entry(e *plan.Entry) {
	r.entry(e)
}

func (r *Reconciler) entry(e *plan.Entry) {
	folder := filepath.Join(r.archiveRoot, e.FileS3.Bucket, filepath.FromSlash(e.FileS3.Prefix))
	expected := filepath.Join(folder, e.FileLocal.FileNameExpected)

	found, info := r.find(e, expected, folder)

	e.FolderLocal.PathAbsolute = plan.Str(folder)
	e.FolderLocal.FolderExistsLocal = r.isDir(folder)

	if found == "" {
		e.FileLocal.FileExistsLocal = false
		e.FileLocal.FileName = nil
		e.FileLocal.PathAbsolute = plan.Str(expected)
		e.FileLocal.PathRelative = nil
		e.FileLocal.FileSizeLocal = nil
		e.FileLocal.FileSizeMBLocal = nil
		e.MiniSummary.IsReady = false
		e.MiniSummary.IsDone = false
		e.MiniSummary.TimeLastMod = nil
		return
	}

	size := info.Size()
	mb := utils.MB(size, 3)
	e.FileLocal.FileExistsLocal = true
	e.FileLocal.FileName = plan.Str(filepath.Base(found))
	e.FileLocal.PathAbsolute = plan.Str(found)
	if rel, err := filepath.Rel(r.archiveRoot, found); err == nil {
		e.FileLocal.PathRelative = plan.Str(filepath.ToSlash(rel))
	} else {
		e.FileLocal.PathRelative = nil
	}
	e.FileLocal.FileSizeLocal = plan.Int64(size)
	e.FileLocal.FileSizeMBLocal = &mb
	e.MiniSummary.IsReady = true
	e.MiniSummary.IsDone = e.FileS3.FileSizeWeb != nil && *e.FileS3.FileSizeWeb == size
	e.MiniSummary.TimeLastMod = plan.Str(info.ModTime().Format(plan.TimeLayout))
}

// find returns the recorded path if it still names a regular file,
// otherwise the newest file in the entry folder matching the entry.
func (r *Reconciler) find(e *plan.Entry, expected, folder string) (string, os.FileInfo) {
	candidates := []string{}
	if e.FileLocal.PathAbsolute != nil {
		candidates = append(candidates, *e.FileLocal.PathAbsolute)
	}
	candidates = append(candidates, expected)
	for _, c := range candidates {
		if info, err := r.fs.Stat(c); err == nil && info.Mode().IsRegular() && r.within(c) {
			if c == expected || e.Matcher().MatchString(filepath.Base(c)) {
				return c, info
			}
		}
	}

	matches, err := afero.Glob(r.fs, filepath.Join(folder, e.FileS3.Regex))
	if err != nil {
		r.log.Warnf("Bad search pattern for %s: %v", e.FileS3.Regex, err)
		return "", nil
	}
	re := e.Matcher()

	type hit struct {
		path string
		info os.FileInfo
	}
	var hits []hit
	for _, m := range matches {
		if !re.MatchString(filepath.Base(m)) {
			continue
		}
		info, err := r.fs.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		hits = append(hits, hit{m, info})
	}
	if len(hits) == 0 {
		return "", nil
	}
	sort.Slice(hits, func(i, j int) bool {
		ti, tj := hits[i].info.ModTime(), hits[j].info.ModTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return hits[i].path > hits[j].path
	})
	if len(hits) > 1 {
		r.log.Debugf("%d local candidates for %s, using newest %s", len(hits), e.FileS3.Regex, hits[0].path)
	}
	return hits[0].path, hits[0].info
}

func (r *Reconciler) within(path string) bool {
	rel, err := filepath.Rel(r.archiveRoot, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func (r *Reconciler) isDir(path string) bool {
	ok, err := afero.DirExists(r.fs, path)
	return err == nil && ok
}

// File reconciles the stored plan at path in place, under the plan lock.
func (r *Reconciler) File(store *plan.Store, path string) (*plan.Plan, error) {
	return store.Update(path, func(p *plan.Plan) error {
		r.Local(p)
		return nil
	})
}

// CheckResult is the outcome of checking one (position, product) plan.
type CheckResult struct {
	Position  string
	ProductID string
	Path      string
	Generated bool // the plan did not exist and was generated first
	Plan      *plan.Plan
	Err       error
}

// CheckPlans expands the selection like Generator.GenerateAll, generates
// and saves any plan that does not exist yet, then reconciles each one
// against the archive. A failure for one plan does not stop the others.
func (r *Reconciler) CheckPlans(g *plan.Generator, store *plan.Store, position, productID, year, day string) []CheckResult {
	var out []CheckResult
	for _, res := range g.GenerateAll(position, productID, year, day) {
		cr := CheckResult{Position: res.Position, ProductID: res.ProductID, Err: res.Err}
		if res.Err != nil {
			out = append(out, cr)
			continue
		}
		cr.Path = store.PathFor(res.Plan)
		if !store.Exists(res.Plan) {
			saved, err := store.Save(res.Plan, false)
			if err != nil {
				cr.Err = err
				out = append(out, cr)
				continue
			}
			cr.Generated = saved == plan.Saved
			r.log.Infof("Generated missing plan %s", cr.Path)
		}
		cr.Plan, cr.Err = r.File(store, cr.Path)
		out = append(out, cr)
	}
	return out
}
