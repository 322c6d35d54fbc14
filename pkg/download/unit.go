package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/sw33tLie/goesplan/pkg/goeserr"
	"github.com/sw33tLie/goesplan/pkg/plan"
)

// runUnit transfers one object and writes the outcome back into the plan.
// The final file only ever appears through the rename of a fully verified
// temp file.
func (e *Engine) runUnit(ctx context.Context, planPath string, u unit) Receipt {
	r := e.transfer(ctx, u)

	_, err := e.cfg.Store.Update(planPath, func(p *plan.Plan) error {
		entry, ok := p.Inventory[u.key]
		if !ok {
			return goeserr.Schema("download_inventory."+u.key, "entry disappeared")
		}
		setRemote(entry, u.object)
		if r.Status == plan.StatusDownloaded || r.Status == plan.StatusSkipped {
			entry.FileLocal.PathAbsolute = plan.Str(finalPath(e.cfg.ArchiveRoot, u))
		}
		e.reconciler.Entry(entry)
		entry.MiniSummary.Status = r.Status
		if r.Err != nil {
			entry.MiniSummary.Error = plan.Str(r.Err.Error())
		} else {
			entry.MiniSummary.Error = nil
		}
		return nil
	})
	if err != nil {
		e.log.Errorf("Could not update %s for %s: %v", planPath, u.key, err)
	}
	return r
}

func (e *Engine) transfer(ctx context.Context, u unit) (r Receipt) {
	r = Receipt{SlotKey: u.key, ObjectKey: u.object.Key}
	start := e.cfg.Clock.Now()
	defer func() { r.Duration = e.cfg.Clock.Now().Sub(start) }()
	if ctx.Err() != nil {
		r.Status, r.Err = plan.StatusCanceled, ctx.Err()
		return r
	}

	fs := e.cfg.Fs
	final := finalPath(e.cfg.ArchiveRoot, u)

	if !e.cfg.Overwrite {
		if size, ok := statSize(fs, final); ok && size == u.object.Size {
			e.log.Debugf("Skipping %s, already present", final)
			r.Status = plan.StatusSkipped
			return r
		}
	}

	dir := filepath.Dir(final)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		r.Status, r.Err = plan.StatusFailed, goeserr.Local("create folder", err)
		return r
	}

	tmp := final + "." + uuid.NewString() + ".tmp"
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		r.Status, r.Err = plan.StatusFailed, goeserr.Local("create temp file", err)
		return r
	}
	defer fs.Remove(tmp)

	n, err := e.cfg.Remote.Fetch(ctx, u.bucket, u.object.Key, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = goeserr.Local("close temp file", cerr)
	}
	r.Bytes = n

	switch {
	case err != nil && isCanceled(ctx, err):
		r.Status, r.Err = plan.StatusCanceled, context.Canceled
		return r
	case err != nil:
		var ge *goeserr.Error
		if !errors.As(err, &ge) {
			err = goeserr.Remote("fetch "+u.object.Key, err)
		}
		e.log.Warnf("Failed to download %s: %v", u.object.Key, err)
		r.Status, r.Err = plan.StatusFailed, err
		return r
	}

	if size, ok := statSize(fs, tmp); !ok || n != u.object.Size || size != u.object.Size {
		r.Status = plan.StatusFailed
		r.Err = goeserr.Remote("fetch "+u.object.Key, fmt.Errorf("size mismatch: got %d bytes, expected %d", n, u.object.Size))
		e.log.Warnf("Discarding %s: %v", u.object.Key, r.Err)
		return r
	}

	if err := fs.Rename(tmp, final); err != nil {
		r.Status, r.Err = plan.StatusFailed, goeserr.Local("rename", err)
		return r
	}
	e.log.Debugf("Downloaded %s (%d bytes)", final, n)
	r.Status = plan.StatusDownloaded
	return r
}
