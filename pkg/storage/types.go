package storage

import "time"

// Run is one download engine execution against one plan.
type Run struct {
	ID         int64
	RunUUID    string
	StartedAt  time.Time
	FinishedAt time.Time

	// Plan info
	PlanPath   string
	Satellite  string
	ProductID  string
	Position   string
	DateJulian string

	// Execution
	Backend   string
	Workers   int
	Overwrite bool
	Canceled  bool

	// Tallies
	Expected         int
	RemoteObjects    int
	Succeeded        int
	Skipped          int
	Failed           int
	NotFound         int
	Interrupted      int
	LocalPresent     int
	BytesTransferred int64
}

// Receipt records the outcome of a single unit of work within a run.
type Receipt struct {
	OccurredAt time.Time
	SlotKey    string
	ObjectKey  string
	Status     string // downloaded | skipped | failed | not_found | canceled
	Bytes      int64
	Duration   time.Duration
	Error      string
}

// ProductStats aggregates runs per product.
type ProductStats struct {
	ProductID        string
	RunCount         int
	FilesDownloaded  int
	FilesFailed      int
	BytesTransferred int64
}
