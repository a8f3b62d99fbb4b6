// Package batch provides the batch/item value types and the pure state
// machine governing them. A batch is owned by the orchestrator while
// in flight and becomes read-only once terminal; the store hands out
// snapshots, never live pointers.
package batch

import (
	"math"
	"time"
)

// Status is the lifecycle state of a batch or an item.
// StatusProcessing applies to batches only (archive assembly).
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Item is one URL-to-file download unit (value type).
type Item struct {
	URL        string
	TargetID   string // stable id for the media target, used in filenames
	Name       string // human title, sanitized before filesystem use
	Format     string // requested container/codec, e.g. "mp4", "mp3"
	Quality    string // "audio", "1080", "best", ...
	Status     Status
	Progress   int    // 0-100
	OutputPath string // set once completed
	Error      string // set once failed
}

// PartRef describes one uploaded archive part (value type).
type PartRef struct {
	Index int
	Ref   string // retrievable reference from the object store
	Size  int64
}

// Batch is a tenant-submitted group of items processed and archived
// together (value type).
type Batch struct {
	ID          string
	TenantID    string
	Status      Status
	Items       []Item
	CreatedAt   time.Time
	CallbackURL string
	Parts       []PartRef
}

// IsTerminal reports whether a status is final.
// This is a PURE function.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a batch may move from one status to
// another. Terminal states are absorbing.
// This is a PURE function.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusDownloading || to == StatusFailed
	case StatusDownloading:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// AggregateProgress derives batch-level progress from status and item
// progress. The rule is fixed:
//
//	queued                → 0
//	downloading / failed  → rounded mean of item progress
//	processing            → 95 (the last 5% is archive assembly)
//	completed             → 100
//
// A batch with no items reports 0 regardless of status.
// This is a PURE function.
func AggregateProgress(b Batch) int {
	if len(b.Items) == 0 {
		return 0
	}

	switch b.Status {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 95
	case StatusCompleted:
		return 100
	}

	var sum float64
	for _, it := range b.Items {
		p := it.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		sum += float64(p)
	}
	return int(math.Round(sum / float64(len(b.Items))))
}

// ItemsTerminal reports whether every item reached a terminal state.
// False for empty batches: a batch with nothing to do never advances.
// This is a PURE function.
func ItemsTerminal(b Batch) bool {
	if len(b.Items) == 0 {
		return false
	}
	for _, it := range b.Items {
		if !IsTerminal(it.Status) {
			return false
		}
	}
	return true
}

// CountByStatus returns how many items completed and how many failed.
// This is a PURE function.
func CountByStatus(b Batch) (completed, failed int) {
	for _, it := range b.Items {
		switch it.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	return completed, failed
}

// Clone returns a deep copy of the batch so readers never alias the
// orchestrator's working copy.
// This is a PURE function.
func Clone(b Batch) Batch {
	out := b
	out.Items = make([]Item, len(b.Items))
	copy(out.Items, b.Items)
	out.Parts = make([]PartRef, len(b.Parts))
	copy(out.Parts, b.Parts)
	return out
}
