// Package audit implements the per-request inference record (spec.md §3):
// a structured audit object whose lifecycle spans the full response
// stream, emitted exactly once when the stream finalizes.
package audit

import (
	"sync"
	"time"
)

// Status is the inference record's lifecycle state. Transitions are
// monotonic: Pending -> {Completed, Failed}. Once terminal, a record is
// never mutated again.
type Status string

const (
	Pending   Status = "PENDING"
	Completed Status = "COMPLETED"
	Failed    Status = "FAILED"
)

const timestampLayout = "2006-01-02T15:04:05.000"

// Record is one inference audit record. Fields mirror spec.md §3 exactly.
// A Record is only ever touched by the goroutine handling its request, so
// no internal locking is needed for field access — the sync.Once below
// only makes Finalize take effect a single time.
type Record struct {
	ID             string `json:"id"`
	UID            string `json:"uid"`
	Org            string `json:"o,omitempty"`
	OrgUnit        string `json:"ou,omitempty"`
	Service        string `json:"service"`
	Portal         string `json:"portal"`
	InputSize      int64  `json:"input_size"`
	OutputSize     int64  `json:"output_size"`
	StartTimestamp string `json:"start_timestamp"`
	EndTimestamp   string `json:"end_timestamp,omitempty"`
	Status         Status `json:"status"`
	InputTokens    int    `json:"input_tokens"`
	OutputTokens   int    `json:"output_tokens"`

	once sync.Once
}

// Meta carries the per-request identity fields extracted from trusted
// headers (see internal/reqmeta), used to seed a new Record.
type Meta struct {
	ID      string
	UID     string
	Org     string
	OrgUnit string
	Service string
	Portal  string
}

// New starts a Record in the PENDING state with the current local time as
// its start timestamp.
func New(meta Meta, inputSize int64) *Record {
	return &Record{
		ID:             meta.ID,
		UID:            meta.UID,
		Org:            meta.Org,
		OrgUnit:        meta.OrgUnit,
		Service:        meta.Service,
		Portal:         meta.Portal,
		InputSize:      inputSize,
		StartTimestamp: time.Now().Local().Format(timestampLayout),
		Status:         Pending,
	}
}

// Finalize sets the terminal fields. clean indicates whether the stream
// ended by clean EOF (Status becomes Completed) or by any other means —
// error, cancellation, disconnect — (Status becomes Failed). Finalize is
// idempotent: only the first call takes effect, matching the invariant
// that a terminal record is never mutated again.
func (r *Record) Finalize(clean bool, outputSize int64, inputTokens, outputTokens int) {
	r.once.Do(func() {
		r.EndTimestamp = time.Now().Local().Format(timestampLayout)
		r.OutputSize = outputSize
		r.InputTokens = inputTokens
		r.OutputTokens = outputTokens
		if clean {
			r.Status = Completed
		} else {
			r.Status = Failed
		}
	})
}
