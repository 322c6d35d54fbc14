package reconcile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw33tLie/goesplan/pkg/catalog"
	"github.com/sw33tLie/goesplan/pkg/plan"
)

const archive = "/archive"

func lstPlan(t *testing.T) *plan.Plan {
	t.Helper()
	g := plan.NewGenerator(catalog.Default(), archive, testclock.NewClock(time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)))
	p, err := g.Generate("east", "ABI-L2-LSTF", "2026", "003")
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, fs afero.Fs, path string, size int, mtime time.Time) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, make([]byte, size), 0o644))
	require.NoError(t, fs.Chtimes(path, mtime, mtime))
}

func folderOf(hour string) string {
	return filepath.Join(archive, "noaa-goes19", "ABI-L2-LSTF", "2026", "003", hour)
}

func TestLocalEmptyArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := New(fs, archive, nil).Local(lstPlan(t))

	assert.Equal(t, 24, p.Summary.TotalFilesExpected)
	assert.Equal(t, 0, p.Summary.TotalFilesReady)
	assert.False(t, p.Summary.IsDone)
	assert.Nil(t, p.Summary.TimeLastMod)
	for _, e := range p.Inventory {
		assert.False(t, e.FileLocal.FileExistsLocal)
		assert.False(t, e.FolderLocal.FolderExistsLocal)
		assert.Nil(t, e.FileLocal.FileSizeLocal)
	}
}

func TestLocalFindsFilesAndIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2026, 1, 4, 3, 0, 0, 0, time.UTC)
	name := "OR_ABI-L2-LSTF-M6_G19_s20260030100210_e20260030109518_c20260030111296.nc"
	writeFile(t, fs, filepath.Join(folderOf("01"), name), 2048, mtime)

	r := New(fs, archive, nil)
	p := r.Local(lstPlan(t))

	e := p.Inventory["file02"]
	assert.True(t, e.FileLocal.FileExistsLocal)
	assert.True(t, e.MiniSummary.IsReady)
	assert.False(t, e.MiniSummary.IsDone)
	assert.Equal(t, int64(2048), *e.FileLocal.FileSizeLocal)
	assert.Equal(t, name, *e.FileLocal.FileName)
	assert.Equal(t, "noaa-goes19/ABI-L2-LSTF/2026/003/01/"+name, *e.FileLocal.PathRelative)
	assert.Equal(t, "2026-01-04 03:00:00", *e.MiniSummary.TimeLastMod)
	assert.True(t, e.FolderLocal.FolderExistsLocal)

	assert.Equal(t, 1, p.Summary.TotalFilesReady)
	assert.Equal(t, "2026-01-04 03:00:00", *p.Summary.TimeLastMod)

	first, err := plan.Encode(p)
	require.NoError(t, err)
	second, err := plan.Encode(r.Local(p))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestLocalNewestDuplicateWins(t *testing.T) {
	fs := afero.NewMemMapFs()
	older := "OR_ABI-L2-LSTF-M6_G19_s20260030500210_e20260030509518_c20260030511296.nc"
	newer := "OR_ABI-L2-LSTF-M6_G19_s20260030500211_e20260030509518_c20260030599999.nc"
	writeFile(t, fs, filepath.Join(folderOf("05"), older), 10, time.Date(2026, 1, 4, 1, 0, 0, 0, time.UTC))
	writeFile(t, fs, filepath.Join(folderOf("05"), newer), 20, time.Date(2026, 1, 4, 2, 0, 0, 0, time.UTC))
	// Token collision candidates that must not be picked up.
	writeFile(t, fs, filepath.Join(folderOf("05"), "OR_ABI-L2-LSTF-M6_G19_s2026003050021_e1_c1.nc"), 30, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	writeFile(t, fs, filepath.Join(folderOf("05"), newer+".abc.tmp"), 40, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))

	p := New(fs, archive, nil).Local(lstPlan(t))
	e := p.Inventory["file06"]
	require.True(t, e.FileLocal.FileExistsLocal)
	assert.Equal(t, newer, *e.FileLocal.FileName)
	assert.Equal(t, int64(20), *e.FileLocal.FileSizeLocal)
}

func TestLocalClearsStaleState(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "OR_ABI-L2-LSTF-M6_G19_s20260030000210_e20260030009518_c20260030011296.nc"
	path := filepath.Join(folderOf("00"), name)
	writeFile(t, fs, path, 100, time.Date(2026, 1, 4, 1, 0, 0, 0, time.UTC))

	r := New(fs, archive, nil)
	p := lstPlan(t)
	p.Inventory["file01"].FileS3.FileSizeWeb = plan.Int64(100)
	p = r.Local(p)
	require.True(t, p.Inventory["file01"].MiniSummary.IsDone)
	assert.Equal(t, 1, p.Summary.TotalFilesReady)

	require.NoError(t, fs.Remove(path))
	p = r.Local(p)
	e := p.Inventory["file01"]
	assert.False(t, e.FileLocal.FileExistsLocal)
	assert.False(t, e.MiniSummary.IsDone)
	assert.Nil(t, e.FileLocal.FileSizeLocal)
	assert.Nil(t, e.FileLocal.FileName)
	assert.Nil(t, e.FileLocal.PathRelative)
	assert.Nil(t, e.MiniSummary.TimeLastMod)
	assert.Equal(t, filepath.Join(folderOf("00"), e.FileLocal.FileNameExpected), *e.FileLocal.PathAbsolute)
	assert.Equal(t, 0, p.Summary.TotalFilesReady)
}

func TestLocalReadyCountMatchesInventory(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := lstPlan(t)
	for i, k := range p.Inventory.Keys() {
		if i%3 != 0 {
			continue
		}
		e := p.Inventory[k]
		name := e.FileS3.Regex[:len(e.FileS3.Regex)-len("*.nc")] + "00000_e1_c1.nc"
		writeFile(t, fs, filepath.Join(folderOf(e.Hour), name), 1, time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC))
	}

	p = New(fs, archive, nil).Local(p)
	ready := 0
	for _, e := range p.Inventory {
		if e.FileLocal.FileExistsLocal {
			ready++
		}
	}
	assert.Equal(t, 8, ready)
	assert.Equal(t, ready, p.Summary.TotalFilesReady)
	assert.False(t, p.Summary.IsDone)
}

func TestFileUpdatesStoredPlan(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := plan.NewStoreWithFs(fs, "/plans")
	p := lstPlan(t)
	_, err := store.Save(p, false)
	require.NoError(t, err)

	name := "OR_ABI-L2-LSTF-M6_G19_s20260032300210_e20260032309518_c20260032311296.nc"
	writeFile(t, fs, filepath.Join(folderOf("23"), name), 5, time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC))

	updated, err := New(fs, archive, nil).File(store, store.PathFor(p))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Summary.TotalFilesReady)

	loaded, err := store.Load(store.PathFor(p))
	require.NoError(t, err)
	assert.True(t, loaded.Inventory["file24"].FileLocal.FileExistsLocal)
}

func TestCheckPlansGeneratesMissingPlans(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := plan.NewStoreWithFs(fs, "/plans")
	g := plan.NewGenerator(catalog.Default(), archive, testclock.NewClock(time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)))
	name := "OR_ABI-L2-LSTF-M6_G19_s20260030100210_e20260030109518_c20260030111296.nc"
	writeFile(t, fs, filepath.Join(folderOf("01"), name), 10, time.Date(2026, 1, 4, 3, 0, 0, 0, time.UTC))

	existing, err := g.Generate("east", "ABI-L2-FDCF", "2026", "003")
	require.NoError(t, err)
	_, err = store.Save(existing, false)
	require.NoError(t, err)

	r := New(fs, archive, nil)
	results := r.CheckPlans(g, store, "east", plan.All, "2026", "003")
	require.Len(t, results, 4)

	byProduct := map[string]CheckResult{}
	for _, res := range results {
		require.NoError(t, res.Err, res.ProductID)
		byProduct[res.ProductID] = res
		ok, _ := afero.Exists(fs, res.Path)
		assert.True(t, ok, res.Path)
	}
	assert.False(t, byProduct["ABI-L2-FDCF"].Generated)
	assert.True(t, byProduct["ABI-L2-LSTF"].Generated)

	lst, err := store.Load(byProduct["ABI-L2-LSTF"].Path)
	require.NoError(t, err)
	assert.Equal(t, 1, lst.Summary.TotalFilesReady)
	assert.True(t, lst.Inventory["file02"].FileLocal.FileExistsLocal)

	// A second check finds every plan in place.
	for _, res := range r.CheckPlans(g, store, "east", plan.All, "2026", "003") {
		require.NoError(t, res.Err)
		assert.False(t, res.Generated, res.ProductID)
	}
}

func TestCheckPlansReportsInvalidSelection(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := plan.NewStoreWithFs(fs, "/plans")
	g := plan.NewGenerator(catalog.Default(), archive, nil)

	results := New(fs, archive, nil).CheckPlans(g, store, "east", "ABI-L2-LSTF", "2026", "400")
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Empty(t, results[0].Path)
	paths, err := store.List("", "")
	require.NoError(t, err)
	assert.Empty(t, paths)
}
