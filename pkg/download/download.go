// Package download drives a plan's remote files into the local archive.
// One listing of the day prefix is taken up front; every expected file is
// then a unit of work run on a bounded pool, and each finished unit is
// written back into the plan under the plan lock.
package download

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sw33tLie/goesplan/pkg/goeserr"
	"github.com/sw33tLie/goesplan/pkg/plan"
	"github.com/sw33tLie/goesplan/pkg/reconcile"
	"github.com/sw33tLie/goesplan/pkg/remote"
	"github.com/sw33tLie/goesplan/pkg/storage"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Ledger receives a record of every finished run.
type Ledger interface {
	RecordRun(ctx context.Context, r storage.Run, receipts []storage.Receipt) (int64, error)
}

// Config holds everything an Engine needs.
type Config struct {
	Store       *plan.Store
	Remote      remote.Client
	Fs          afero.Fs // archive filesystem; defaults to the OS filesystem
	ArchiveRoot string
	Workers     int  // defaults to 4 if <= 0
	Overwrite   bool // re-download files already present with the right size
	Ledger      Ledger
	Clock       clock.Clock
	Log         Logger // optional; nil = no logging

	// OnUnitDone is called after each unit has been written back to the
	// plan (from worker goroutines). Nil = no callback.
	OnUnitDone func(Receipt)
}

// Receipt is the outcome of one unit of work.
type Receipt struct {
	SlotKey   string
	ObjectKey string
	Status    string
	Bytes     int64
	Duration  time.Duration
	Err       error
}

// Summary tallies one Execute call.
type Summary struct {
	PlanPath         string
	Expected         int
	RemoteObjects    int
	Matched          int
	Succeeded        int
	Skipped          int
	Failed           int
	NotFound         int
	Canceled         int
	LocalPresent     int
	BytesTransferred int64
	Duration         time.Duration
	Receipts         []Receipt
}

type Engine struct {
	cfg        Config
	log        Logger
	reconciler *reconcile.Reconciler
}

func New(cfg Config) *Engine {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if abs, err := filepath.Abs(cfg.ArchiveRoot); err == nil {
		cfg.ArchiveRoot = abs
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	return &Engine{
		cfg:        cfg,
		log:        log,
		reconciler: reconcile.New(cfg.Fs, cfg.ArchiveRoot, log),
	}
}

// unit is one matched entry waiting to be transferred.
type unit struct {
	key    string
	object remote.Object
	bucket string
	prefix string
}

// Execute runs the plan at planPath. Only a failure to load the plan or to
// list the remote prefix is returned as an error; per-file failures are
// recorded in the plan and the summary.
func (e *Engine) Execute(ctx context.Context, planPath string) (*Summary, error) {
	started := e.cfg.Clock.Now()
	p, err := e.cfg.Store.Load(planPath)
	if err != nil {
		return nil, err
	}
	info := p.SatProdInfo

	objects, err := e.cfg.Remote.List(ctx, info.BucketName, info.PrefixDay+"/")
	if err != nil {
		return nil, goeserr.Remote("list "+info.BucketName+"/"+info.PrefixDay, err)
	}
	e.log.Infof("Listed %d remote objects under %s/%s", len(objects), info.BucketName, info.PrefixDay)

	units, missing := match(p, objects)

	sum := &Summary{
		PlanPath:      planPath,
		Expected:      len(p.Inventory),
		RemoteObjects: len(objects),
		Matched:       len(units),
	}

	// Record what the listing says about every entry before any transfer.
	if _, err := e.cfg.Store.Update(planPath, func(p *plan.Plan) error {
		byKey := make(map[string]remote.Object, len(units))
		for _, u := range units {
			byKey[u.key] = u.object
		}
		for k, entry := range p.Inventory {
			if obj, ok := byKey[k]; ok {
				setRemote(entry, obj)
				continue
			}
			clearRemote(entry)
			entry.MiniSummary.Status = plan.StatusNotFound
			entry.MiniSummary.Error = plan.Str("no matching remote object")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	record := func(r Receipt) {
		mu.Lock()
		defer mu.Unlock()
		sum.Receipts = append(sum.Receipts, r)
		switch r.Status {
		case plan.StatusDownloaded:
			sum.Succeeded++
			sum.BytesTransferred += r.Bytes
		case plan.StatusSkipped:
			sum.Skipped++
		case plan.StatusFailed:
			sum.Failed++
		case plan.StatusNotFound:
			sum.NotFound++
		case plan.StatusCanceled:
			sum.Canceled++
		}
	}

	for _, k := range missing {
		record(Receipt{SlotKey: k, Status: plan.StatusNotFound, Err: errors.New("no matching remote object")})
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	var undispatched []unit
	for _, u := range units {
		if ctx.Err() != nil {
			undispatched = append(undispatched, u)
			continue
		}
		g.Go(func() error {
			r := e.runUnit(ctx, planPath, u)
			record(r)
			if e.cfg.OnUnitDone != nil {
				e.cfg.OnUnitDone(r)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(undispatched) > 0 {
		e.log.Warnf("Canceled before dispatch: %d of %d units", len(undispatched), len(units))
		if _, err := e.cfg.Store.Update(planPath, func(p *plan.Plan) error {
			for _, u := range undispatched {
				p.Inventory[u.key].MiniSummary.Status = plan.StatusCanceled
				p.Inventory[u.key].MiniSummary.Error = plan.Str(context.Canceled.Error())
			}
			return nil
		}); err != nil {
			e.log.Errorf("Could not record canceled units in %s: %v", planPath, err)
		}
		for _, u := range undispatched {
			record(Receipt{SlotKey: u.key, ObjectKey: u.object.Key, Status: plan.StatusCanceled, Err: context.Canceled})
		}
	}

	if final, err := e.cfg.Store.Load(planPath); err == nil {
		sum.LocalPresent = final.Summary.TotalFilesReady
	} else {
		e.log.Errorf("Could not reload %s: %v", planPath, err)
	}

	sort.Slice(sum.Receipts, func(i, j int) bool { return sum.Receipts[i].SlotKey < sum.Receipts[j].SlotKey })
	sum.Duration = e.cfg.Clock.Now().Sub(started)

	if e.cfg.Ledger != nil {
		e.recordRun(p, sum, started, ctx.Err() != nil)
	}
	return sum, nil
}

// match pairs every entry with its newest matching remote object. It
// returns matched units in slot order and the keys with no match.
func match(p *plan.Plan, objects []remote.Object) ([]unit, []string) {
	byDir := make(map[string][]remote.Object)
	for _, o := range objects {
		byDir[path.Dir(o.Key)] = append(byDir[path.Dir(o.Key)], o)
	}

	var units []unit
	var missing []string
	for _, k := range p.Inventory.Keys() {
		entry := p.Inventory[k]
		re := entry.Matcher()
		var best *remote.Object
		for i, o := range byDir[entry.FileS3.Prefix] {
			if !re.MatchString(path.Base(o.Key)) {
				continue
			}
			cand := &byDir[entry.FileS3.Prefix][i]
			if best == nil || cand.LastModified.After(best.LastModified) ||
				(cand.LastModified.Equal(best.LastModified) && cand.Key > best.Key) {
				best = cand
			}
		}
		if best == nil {
			missing = append(missing, k)
			continue
		}
		units = append(units, unit{key: k, object: *best, bucket: entry.FileS3.Bucket, prefix: entry.FileS3.Prefix})
	}
	return units, missing
}

func setRemote(entry *plan.Entry, obj remote.Object) {
	entry.FileS3.FileExistsWeb = true
	entry.FileS3.Key = plan.Str(obj.Key)
	entry.FileS3.FileName = plan.Str(path.Base(obj.Key))
	entry.FileS3.FileSizeWeb = plan.Int64(obj.Size)
	if obj.LastModified.IsZero() {
		entry.FileS3.TimeLastMod = nil
	} else {
		entry.FileS3.TimeLastMod = plan.Str(obj.LastModified.UTC().Format(plan.TimeLayout))
	}
}

func clearRemote(entry *plan.Entry) {
	entry.FileS3.FileExistsWeb = false
	entry.FileS3.Key = nil
	entry.FileS3.FileName = nil
	entry.FileS3.FileSizeWeb = nil
	entry.FileS3.TimeLastMod = nil
}

func (e *Engine) recordRun(p *plan.Plan, sum *Summary, started time.Time, canceled bool) {
	info := p.SatProdInfo
	run := storage.Run{
		RunUUID:          uuid.NewString(),
		StartedAt:        started,
		FinishedAt:       started.Add(sum.Duration),
		PlanPath:         sum.PlanPath,
		Satellite:        info.Satellite,
		ProductID:        info.ProductID,
		Position:         info.SatPosition,
		DateJulian:       info.DateJulian,
		Backend:          e.cfg.Remote.Name(),
		Workers:          e.cfg.Workers,
		Overwrite:        e.cfg.Overwrite,
		Canceled:         canceled,
		Expected:         sum.Expected,
		RemoteObjects:    sum.RemoteObjects,
		Succeeded:        sum.Succeeded,
		Skipped:          sum.Skipped,
		Failed:           sum.Failed,
		NotFound:         sum.NotFound,
		Interrupted:      sum.Canceled,
		LocalPresent:     sum.LocalPresent,
		BytesTransferred: sum.BytesTransferred,
	}
	receipts := make([]storage.Receipt, 0, len(sum.Receipts))
	for _, r := range sum.Receipts {
		rc := storage.Receipt{SlotKey: r.SlotKey, ObjectKey: r.ObjectKey, Status: r.Status, Bytes: r.Bytes, Duration: r.Duration}
		if r.Err != nil {
			rc.Error = r.Err.Error()
		}
		receipts = append(receipts, rc)
	}
	// The run is recorded even when the caller canceled.
	if _, err := e.cfg.Ledger.RecordRun(context.Background(), run, receipts); err != nil {
		e.log.Warnf("Could not record run for %s in ledger: %v", sum.PlanPath, err)
	}
}

// String renders the summary on one line.
func (s *Summary) String() string {
	return fmt.Sprintf("expected=%d remote=%d matched=%d downloaded=%d skipped=%d failed=%d not_found=%d canceled=%d local=%d",
		s.Expected, s.RemoteObjects, s.Matched, s.Succeeded, s.Skipped, s.Failed, s.NotFound, s.Canceled, s.LocalPresent)
}

func finalPath(root string, u unit) string {
	return filepath.Join(root, u.bucket, filepath.FromSlash(u.prefix), path.Base(u.object.Key))
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func statSize(fs afero.Fs, p string) (int64, bool) {
	info, err := fs.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}
