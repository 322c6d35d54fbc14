package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/goesplan/pkg/catalog"
	"github.com/sw33tLie/goesplan/pkg/goeserr"
	"github.com/sw33tLie/goesplan/pkg/plan"
	"github.com/sw33tLie/goesplan/pkg/remote"
	"github.com/sw33tLie/goesplan/pkg/storage"
)

const archive = "/archive"

var listedAt = time.Date(2026, 1, 3, 0, 30, 0, 0, time.UTC)

type fakeRemote struct {
	mu       sync.Mutex
	objects  []remote.Object
	bodies   map[string][]byte
	fetched  map[string]int
	listErr  error
	onFetch  func(ctx context.Context, key string, w io.Writer) (int64, error)
	listSeen []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{bodies: map[string][]byte{}, fetched: map[string]int{}}
}

func (f *fakeRemote) add(key string, size int, body []byte, modified time.Time) {
	f.objects = append(f.objects, remote.Object{Key: key, Size: int64(size), LastModified: modified})
	f.bodies[key] = body
}

func (f *fakeRemote) Name() string { return "fake" }

func (f *fakeRemote) List(_ context.Context, bucket, prefix string) ([]remote.Object, error) {
	f.mu.Lock()
	f.listSeen = append(f.listSeen, bucket+"/"+prefix)
	f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.objects, nil
}

func (f *fakeRemote) Fetch(ctx context.Context, _, key string, w io.Writer) (int64, error) {
	f.mu.Lock()
	f.fetched[key]++
	f.mu.Unlock()
	if f.onFetch != nil {
		return f.onFetch(ctx, key, w)
	}
	body, ok := f.bodies[key]
	if !ok {
		return 0, errors.New("404 not found")
	}
	return io.Copy(w, bytes.NewReader(body))
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.fetched {
		n += c
	}
	return n
}

func lstName(hour, suffix string) string {
	return fmt.Sprintf("OR_ABI-L2-LSTF-M6_G19_s2026003%s0021%s_e2026003%s09518_c2026003%s11296.nc", hour, suffix, hour, hour)
}

func lstKey(hour, suffix string) string {
	return "ABI-L2-LSTF/2026/003/" + hour + "/" + lstName(hour, suffix)
}

func lstFinal(hour, suffix string) string {
	return filepath.Join(archive, "noaa-goes19", "ABI-L2-LSTF", "2026", "003", hour, lstName(hour, suffix))
}

type harness struct {
	fs     afero.Fs
	store  *plan.Store
	remote *fakeRemote
	path   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	g := plan.NewGenerator(catalog.Default(), archive, testclock.NewClock(listedAt))
	p, err := g.Generate("east", "ABI-L2-LSTF", "2026", "003")
	require.NoError(t, err)
	store := plan.NewStoreWithFs(fs, "/plans")
	_, err = store.Save(p, false)
	require.NoError(t, err)
	return &harness{fs: fs, store: store, remote: newFakeRemote(), path: store.PathFor(p)}
}

func (h *harness) engine(overwrite bool, workers int) *Engine {
	return New(Config{
		Store:       h.store,
		Remote:      h.remote,
		Fs:          h.fs,
		ArchiveRoot: archive,
		Workers:     workers,
		Overwrite:   overwrite,
	})
}

func (h *harness) tmpFiles(t *testing.T) []string {
	t.Helper()
	var tmps []string
	err := afero.Walk(h.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err == nil && strings.HasSuffix(p, ".tmp") {
			tmps = append(tmps, p)
		}
		return nil
	})
	require.NoError(t, err)
	return tmps
}

func TestExecuteDownloadsAndVerifiesSize(t *testing.T) {
	h := newHarness(t)
	h.remote.add(lstKey("00", "0"), 4, []byte("abcd"), listedAt)
	h.remote.add(lstKey("01", "0"), 3, []byte("xyz"), listedAt)
	h.remote.add(lstKey("02", "0"), 10, []byte("short"), listedAt) // advertised 10, serves 5

	sum, err := h.engine(false, 3).Execute(context.Background(), h.path)
	require.NoError(t, err)

	assert.Equal(t, []string{"noaa-goes19/ABI-L2-LSTF/2026/003/"}, h.remote.listSeen)
	assert.Equal(t, 24, sum.Expected)
	assert.Equal(t, 3, sum.RemoteObjects)
	assert.Equal(t, 3, sum.Matched)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 21, sum.NotFound)
	assert.Equal(t, 2, sum.LocalPresent)
	assert.Equal(t, int64(7), sum.BytesTransferred)
	assert.Len(t, sum.Receipts, 24)

	data, err := afero.ReadFile(h.fs, lstFinal("00", "0"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	ok, _ := afero.Exists(h.fs, lstFinal("02", "0"))
	assert.False(t, ok, "a size mismatch must never leave a final file")
	assert.Empty(t, h.tmpFiles(t))

	p, err := h.store.Load(h.path)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Summary.TotalFilesReady)
	assert.Equal(t, 2, p.Summary.TotalFilesDownloaded)
	assert.False(t, p.Summary.IsDone)

	e := p.Inventory["file01"]
	assert.Equal(t, plan.StatusDownloaded, e.MiniSummary.Status)
	assert.True(t, e.MiniSummary.IsDone)
	assert.True(t, e.FileS3.FileExistsWeb)
	assert.Equal(t, int64(4), *e.FileS3.FileSizeWeb)
	assert.Equal(t, int64(4), *e.FileLocal.FileSizeLocal)
	assert.Equal(t, lstFinal("00", "0"), *e.FileLocal.PathAbsolute)
	assert.Nil(t, e.MiniSummary.Error)

	bad := p.Inventory["file03"]
	assert.Equal(t, plan.StatusFailed, bad.MiniSummary.Status)
	assert.False(t, bad.FileLocal.FileExistsLocal)
	require.NotNil(t, bad.MiniSummary.Error)
	assert.Contains(t, *bad.MiniSummary.Error, "size mismatch")

	missing := p.Inventory["file10"]
	assert.Equal(t, plan.StatusNotFound, missing.MiniSummary.Status)
	assert.False(t, missing.FileS3.FileExistsWeb)
}

func TestExecuteSkipsPresentFiles(t *testing.T) {
	h := newHarness(t)
	h.remote.add(lstKey("05", "0"), 4, []byte("abcd"), listedAt)
	require.NoError(t, h.fs.MkdirAll(filepath.Dir(lstFinal("05", "0")), 0o755))
	require.NoError(t, afero.WriteFile(h.fs, lstFinal("05", "0"), []byte("abcd"), 0o644))

	sum, err := h.engine(false, 2).Execute(context.Background(), h.path)
	require.NoError(t, err)
	assert.Equal(t, 0, h.remote.fetchCount())
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.LocalPresent)

	p, err := h.store.Load(h.path)
	require.NoError(t, err)
	e := p.Inventory["file06"]
	assert.Equal(t, plan.StatusSkipped, e.MiniSummary.Status)
	assert.True(t, e.MiniSummary.IsDone)

	sum, err = h.engine(true, 2).Execute(context.Background(), h.path)
	require.NoError(t, err)
	assert.Equal(t, 1, h.remote.fetchCount())
	assert.Equal(t, 1, sum.Succeeded)
}

func TestExecuteRedownloadsWrongSize(t *testing.T) {
	h := newHarness(t)
	h.remote.add(lstKey("05", "0"), 4, []byte("abcd"), listedAt)
	require.NoError(t, h.fs.MkdirAll(filepath.Dir(lstFinal("05", "0")), 0o755))
	require.NoError(t, afero.WriteFile(h.fs, lstFinal("05", "0"), []byte("ab"), 0o644))

	sum, err := h.engine(false, 2).Execute(context.Background(), h.path)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	data, _ := afero.ReadFile(h.fs, lstFinal("05", "0"))
	assert.Equal(t, "abcd", string(data))
}

func TestExecutePicksNewestObject(t *testing.T) {
	h := newHarness(t)
	h.remote.add(lstKey("07", "0"), 3, []byte("old"), listedAt)
	h.remote.add(lstKey("07", "5"), 3, []byte("new"), listedAt.Add(time.Hour))
	// Lives in the wrong hour folder, must be ignored.
	h.remote.add("ABI-L2-LSTF/2026/003/08/"+lstName("07", "9"), 3, []byte("bad"), listedAt.Add(2*time.Hour))

	sum, err := h.engine(false, 2).Execute(context.Background(), h.path)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, h.remote.fetched[lstKey("07", "5")])
	assert.Zero(t, h.remote.fetched[lstKey("07", "0")])

	ok, _ := afero.Exists(h.fs, lstFinal("07", "5"))
	assert.True(t, ok)
}

func TestExecuteFetchErrorLeavesNoFinalFile(t *testing.T) {
	h := newHarness(t)
	h.remote.add(lstKey("03", "0"), 8, nil, listedAt)
	h.remote.onFetch = func(_ context.Context, key string, w io.Writer) (int64, error) {
		n, _ := w.Write([]byte("part"))
		return int64(n), errors.New("connection reset")
	}

	sum, err := h.engine(false, 1).Execute(context.Background(), h.path)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	ok, _ := afero.Exists(h.fs, lstFinal("03", "0"))
	assert.False(t, ok)
	assert.Empty(t, h.tmpFiles(t))

	var failed Receipt
	for _, r := range sum.Receipts {
		if r.SlotKey == "file04" {
			failed = r
		}
	}
	assert.True(t, goeserr.Is(failed.Err, goeserr.RemoteTransfer))
}

func TestExecuteListingFailure(t *testing.T) {
	h := newHarness(t)
	h.remote.listErr = errors.New("access denied")
	before, err := h.store.ReadRaw(h.path)
	require.NoError(t, err)

	_, err = h.engine(false, 2).Execute(context.Background(), h.path)
	require.Error(t, err)
	assert.True(t, goeserr.Is(err, goeserr.RemoteTransfer))

	after, err := h.store.ReadRaw(h.path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestExecuteCancellation(t *testing.T) {
	h := newHarness(t)
	for _, hour := range []string{"00", "01", "02"} {
		h.remote.add(lstKey(hour, "0"), 100, nil, listedAt)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.remote.onFetch = func(ctx context.Context, key string, w io.Writer) (int64, error) {
		n, _ := w.Write([]byte("partial"))
		cancel()
		<-ctx.Done()
		return int64(n), ctx.Err()
	}

	sum, err := h.engine(false, 1).Execute(ctx, h.path)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Canceled)
	assert.Equal(t, 0, sum.Succeeded)
	assert.Empty(t, h.tmpFiles(t))
	for _, hour := range []string{"00", "01", "02"} {
		ok, _ := afero.Exists(h.fs, lstFinal(hour, "0"))
		assert.False(t, ok)
	}

	p, err := h.store.Load(h.path)
	require.NoError(t, err)
	for _, k := range []string{"file01", "file02", "file03"} {
		assert.Equal(t, plan.StatusCanceled, p.Inventory[k].MiniSummary.Status, k)
		assert.False(t, p.Inventory[k].MiniSummary.IsDone, k)
	}
}

func TestExecuteRecordsLedger(t *testing.T) {
	h := newHarness(t)
	h.remote.add(lstKey("00", "0"), 4, []byte("abcd"), listedAt)

	db, err := storage.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	clk := testclock.NewClock(listedAt)
	h.remote.onFetch = func(_ context.Context, _ string, w io.Writer) (int64, error) {
		clk.Advance(1500 * time.Millisecond)
		return io.Copy(w, strings.NewReader("abcd"))
	}

	var done []Receipt
	var mu sync.Mutex
	e := New(Config{
		Clock:       clk,
		Store:       h.store,
		Remote:      h.remote,
		Fs:          h.fs,
		ArchiveRoot: archive,
		Ledger:      db,
		OnUnitDone: func(r Receipt) {
			mu.Lock()
			done = append(done, r)
			mu.Unlock()
		},
	})
	_, err = e.Execute(context.Background(), h.path)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, 1500*time.Millisecond, done[0].Duration)

	runs, err := db.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ABI-L2-LSTF", runs[0].ProductID)
	assert.Equal(t, 1, runs[0].Succeeded)
	assert.Equal(t, 23, runs[0].NotFound)
	assert.Equal(t, "fake", runs[0].Backend)

	receipts, err := db.ListReceipts(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, receipts, 24)
	assert.Equal(t, "file01", receipts[0].SlotKey)
	assert.Equal(t, 1500*time.Millisecond, receipts[0].Duration)
}
