// Package process hands locally present plan entries to an external
// rendering pipeline and records whether each one succeeded.
package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sw33tLie/goesplan/pkg/goeserr"
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

// Renderer turns one local product file into imagery. The result is opaque
// pass/fail.
type Renderer interface {
	Render(ctx context.Context, path string, overwrite bool) (bool, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, path string, overwrite bool) (bool, error)

func (f RendererFunc) Render(ctx context.Context, path string, overwrite bool) (bool, error) {
	return f(ctx, path, overwrite)
}

// CommandRenderer runs an external command per file. Arguments may contain
// the placeholders {file} and {overwrite}; exit status 0 is success.
type CommandRenderer struct {
	Command []string
}

// NewCommandRenderer splits a command line on whitespace.
func NewCommandRenderer(command string) (*CommandRenderer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, goeserr.Invalid("render.command", command, "must not be empty")
	}
	return &CommandRenderer{Command: fields}, nil
}

func (c *CommandRenderer) Render(ctx context.Context, path string, overwrite bool) (bool, error) {
	r := strings.NewReplacer("{file}", path, "{overwrite}", strconv.FormatBool(overwrite))
	args := make([]string, len(c.Command))
	for i, a := range c.Command {
		args[i] = r.Replace(a)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return false, fmt.Errorf("%s: %w: %s", args[0], err, msg)
		}
		return false, fmt.Errorf("%s: %w", args[0], err)
	}
	return true, nil
}

// Result tallies one Run.
type Result struct {
	Candidates int
	Processed  int
	Failed     int
	Failures   map[string]error // keyed by slot
}

type Trigger struct {
	store    *plan.Store
	renderer Renderer
	log      Logger
}

func New(store *plan.Store, renderer Renderer, log Logger) *Trigger {
	if log == nil {
		log = nopLogger{}
	}
	return &Trigger{store: store, renderer: renderer, log: log}
}

// Run renders every entry that exists locally and is not yet processed
// (or every present entry when overwrite is set). A failing entry is
// logged and counted and does not stop the others.
func (t *Trigger) Run(ctx context.Context, planPath string, overwrite bool) (*Result, error) {
	p, err := t.store.Load(planPath)
	if err != nil {
		return nil, err
	}

	res := &Result{Failures: map[string]error{}}
	for _, k := range p.Inventory.Keys() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e := p.Inventory[k]
		if !e.FileLocal.FileExistsLocal || e.FileLocal.PathAbsolute == nil {
			continue
		}
		if e.MiniSummary.IsProcessed && !overwrite {
			continue
		}
		res.Candidates++

		ok, err := t.renderer.Render(ctx, *e.FileLocal.PathAbsolute, overwrite)
		if err == nil && !ok {
			err = fmt.Errorf("renderer reported failure")
		}
		if err != nil {
			t.log.Warnf("Rendering %s failed: %v", *e.FileLocal.PathAbsolute, err)
			res.Failed++
			res.Failures[k] = err
		} else {
			t.log.Debugf("Rendered %s", *e.FileLocal.PathAbsolute)
			res.Processed++
		}

		if _, uerr := t.store.Update(planPath, func(p *plan.Plan) error {
			p.Inventory[k].MiniSummary.IsProcessed = err == nil
			return nil
		}); uerr != nil {
			return res, uerr
		}
	}
	return res, nil
}
