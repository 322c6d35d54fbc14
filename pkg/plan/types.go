// Package plan models the per-(satellite, product, day) download plan: a
// closed JSON document listing every file expected for the day together
// with its remote and local state.
package plan

import (
	"sort"
	"time"

	"github.com/sw33tLie/goesplan/internal/utils"
)

// Entry status values recorded in mini_summary.status.
const (
	StatusPending    = "pending"
	StatusDownloaded = "downloaded"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
	StatusNotFound   = "not_found"
	StatusCanceled   = "canceled"
)

// TimeLayout is the layout of every *_last_mod field.
const TimeLayout = "2006-01-02 15:04:05"

type Plan struct {
	SatProdInfo SatProdInfo `json:"sat_prod_info"`
	SelfInfo    SelfInfo    `json:"plan_download_self_info"`
	Summary     Summary     `json:"summary"`
	Inventory   Inventory   `json:"download_inventory"`
}

// SatProdInfo is the identity block. It never changes after generation.
type SatProdInfo struct {
	Satellite        string `json:"satellite"`
	SatID            string `json:"sat_id"`
	SatPosition      string `json:"sat_position"`
	ProductID        string `json:"product_id"`
	BucketName       string `json:"bucket_name"`
	Year             string `json:"year"`
	Day              string `json:"day"`
	DateJulian       string `json:"date_julian"`
	DateGregorian    string `json:"date_gregorian"`
	PrefixDay        string `json:"prefix_day"`
	TotalFilesOneDay int    `json:"total_files_one_day"`
}

type SelfInfo struct {
	FileName     string  `json:"file_name"`
	PathAbsolute *string `json:"path_absolute"`
}

type Summary struct {
	IsDone               bool    `json:"is_done"`
	TotalFilesExpected   int     `json:"total_files_expected"`
	TotalFilesReady      int     `json:"total_files_ready"`
	TotalFilesDownloaded int     `json:"total_files_downloaded"`
	TotalFilesProcessed  int     `json:"total_files_processed"`
	TotalSizeMB          float64 `json:"total_size_mb"`
	TimeFileCreation     string  `json:"time_file_creation"`
	TimeLastMod          *string `json:"time_last_mod"`
}

// Inventory maps zero-padded slot keys ("file01".."file24") to entries.
type Inventory map[string]*Entry

type Entry struct {
	PosFile     string      `json:"pos_file"`
	TimeStamp   string      `json:"time_stamp"`
	Hour        string      `json:"hour"`
	Minute      string      `json:"minute"`
	Second      string      `json:"second"`
	MiniSummary MiniSummary `json:"mini_summary"`
	FileS3      RemoteFile  `json:"file_s3"`
	FileLocal   LocalFile   `json:"file_local"`
	FolderLocal LocalFolder `json:"folder_local"`
}

type MiniSummary struct {
	IsReady     bool    `json:"is_ready"`
	IsDone      bool    `json:"is_done"`
	IsProcessed bool    `json:"is_processed"`
	Status      string  `json:"status"`
	Error       *string `json:"error"`
	TimeLastMod *string `json:"time_last_mod"`
}

// RemoteFile describes where an entry lives in the archive bucket.
// Regex is a glob-style search token: "<prefix><sat>_s<token>*.nc".
type RemoteFile struct {
	Bucket        string  `json:"bucket"`
	Prefix        string  `json:"prefix"`
	Regex         string  `json:"regex"`
	Key           *string `json:"key"`
	FileName      *string `json:"file_name"`
	FileExistsWeb bool    `json:"file_exists_web"`
	FileSizeWeb   *int64  `json:"file_size_web"`
	TimeLastMod   *string `json:"time_last_mod"`
}

type LocalFile struct {
	FileNameExpected string   `json:"file_name_expected"`
	FileName         *string  `json:"file_name"`
	PathAbsolute     *string  `json:"path_absolute"`
	PathRelative     *string  `json:"path_relative"`
	FileExistsLocal  bool     `json:"file_exists_local"`
	FileSizeLocal    *int64   `json:"file_size_local"`
	FileSizeMBLocal  *float64 `json:"file_size_mb_local"`
}

type LocalFolder struct {
	PathAbsolute      *string `json:"path_absolute"`
	FolderExistsLocal bool    `json:"folder_exists_local"`
}

// Keys returns the inventory keys in slot order.
func (inv Inventory) Keys() []string {
	keys := make([]string, 0, len(inv))
	for k := range inv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecomputeSummary derives the summary counters from the inventory.
// total_files_ready always equals the number of entries present locally.
func (p *Plan) RecomputeSummary() {
	s := &p.Summary
	s.TotalFilesExpected = p.SatProdInfo.TotalFilesOneDay
	s.TotalFilesReady = 0
	s.TotalFilesDownloaded = 0
	s.TotalFilesProcessed = 0
	s.TimeLastMod = nil

	var bytes int64
	var latest time.Time
	for _, e := range p.Inventory {
		if e.FileLocal.FileExistsLocal {
			s.TotalFilesReady++
			if e.FileLocal.FileSizeLocal != nil {
				bytes += *e.FileLocal.FileSizeLocal
			}
		}
		if e.MiniSummary.IsDone {
			s.TotalFilesDownloaded++
		}
		if e.MiniSummary.IsProcessed {
			s.TotalFilesProcessed++
		}
		if e.MiniSummary.TimeLastMod != nil {
			if t, err := time.Parse(TimeLayout, *e.MiniSummary.TimeLastMod); err == nil && t.After(latest) {
				latest = t
			}
		}
	}
	s.TotalSizeMB = utils.MB(bytes, 2)
	s.IsDone = len(p.Inventory) > 0 && s.TotalFilesReady == len(p.Inventory)
	if !latest.IsZero() {
		v := latest.Format(TimeLayout)
		s.TimeLastMod = &v
	}
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	c := *p
	c.SelfInfo.PathAbsolute = cloneStr(p.SelfInfo.PathAbsolute)
	c.Summary.TimeLastMod = cloneStr(p.Summary.TimeLastMod)
	c.Inventory = make(Inventory, len(p.Inventory))
	for k, e := range p.Inventory {
		c.Inventory[k] = e.clone()
	}
	return &c
}

func (e *Entry) clone() *Entry {
	c := *e
	c.MiniSummary.Error = cloneStr(e.MiniSummary.Error)
	c.MiniSummary.TimeLastMod = cloneStr(e.MiniSummary.TimeLastMod)
	c.FileS3.Key = cloneStr(e.FileS3.Key)
	c.FileS3.FileName = cloneStr(e.FileS3.FileName)
	c.FileS3.FileSizeWeb = cloneInt(e.FileS3.FileSizeWeb)
	c.FileS3.TimeLastMod = cloneStr(e.FileS3.TimeLastMod)
	c.FileLocal.FileName = cloneStr(e.FileLocal.FileName)
	c.FileLocal.PathAbsolute = cloneStr(e.FileLocal.PathAbsolute)
	c.FileLocal.PathRelative = cloneStr(e.FileLocal.PathRelative)
	c.FileLocal.FileSizeLocal = cloneInt(e.FileLocal.FileSizeLocal)
	if e.FileLocal.FileSizeMBLocal != nil {
		v := *e.FileLocal.FileSizeMBLocal
		c.FileLocal.FileSizeMBLocal = &v
	}
	c.FolderLocal.PathAbsolute = cloneStr(e.FolderLocal.PathAbsolute)
	return &c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// Str and Int64 return pointers to their argument.
func Str(s string) *string { return &s }
func Int64(i int64) *int64 { return &i }
