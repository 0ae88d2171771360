// Package lossiness implements the append-only deviation log shared across
// a single translation (spec.md §3.3, §4.3). It is the one piece of
// mutable shared state a translation touches (spec.md §5): pipeline stages
// run sequentially and take the tracker by exclusive reference, the way
// the teacher's pipeline threads a single *llm.Request/*httpclient.Request
// through its stages (llm/pipeline/pipeline.go).
package lossiness

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Code enumerates the kinds of deviation a translation can record.
type Code string

const (
	CodeClamp             Code = "Clamp"
	CodeDrop              Code = "Drop"
	CodeEmulate           Code = "Emulate"
	CodeConflict          Code = "Conflict"
	CodeRelocate          Code = "Relocate"
	CodeUnsupported       Code = "Unsupported"
	CodeMapFallback       Code = "MapFallback"
	CodePerformanceImpact Code = "PerformanceImpact"
)

// Severity ranks how serious a recorded deviation is.
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
	// SeverityNone is only used as the reported max_severity when no items
	// were recorded; it is never attached to an Item.
	SeverityNone Severity = "None"
)

// Rank orders severities for max_severity comparisons (None < Info <
// Warning < Error).
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	default:
		return 0
	}
}

// Raise returns the severity one step more severe than s (Info->Warning,
// Warning->Error, Error->Error). The strictness policies do not call it:
// Warn floors Drop/Unsupported at Warning rather than raising one step.
func (s Severity) Raise() Severity {
	switch s {
	case SeverityInfo:
		return SeverityWarning
	case SeverityWarning, SeverityError:
		return SeverityError
	default:
		return s
	}
}

// OperationType free-form-extends the nature of the transformation that
// produced an item (spec.md §3.3). It is intentionally a plain string type
// rather than a closed enum so callers of Record may pass
// component-specific values without modifying this package.
type OperationType string

const (
	OpTypeConversion    OperationType = "TypeConversion"
	OpEnumMapping       OperationType = "EnumMapping"
	OpUnitConversion    OperationType = "UnitConversion"
	OpFieldMove         OperationType = "FieldMove"
	OpDefaultApplied    OperationType = "DefaultApplied"
	OpDrop              OperationType = "Drop"
	OpClamp             OperationType = "Clamp"
	OpEmulationApplied  OperationType = "EmulationApplied"
)

// Item is one recorded deviation (spec.md §3.3).
type Item struct {
	Code          Code
	Path          string
	Message       string
	Before        any
	After         any
	Severity      Severity
	OperationType OperationType
	Metadata      map[string]string
	OrderIndex    int
	TimingMicros  *int64

	hasAfter bool
}

// HasAfter reports whether After was ever set (distinguishing "no after
// value" from an explicit nil/null after).
func (i Item) HasAfter() bool { return i.hasAfter }

// Summary aggregates the recorded items (spec.md §3.4).
type Summary struct {
	BySeverity  map[Severity]int
	ByCode      map[Code]int
	Total       int
	MaxSeverity Severity
}

// Tracker is the append-only, single-translation deviation log. The zero
// value is not usable; construct with New.
type Tracker struct {
	mu      sync.Mutex
	items   []Item
	traceID string
	timers  map[int]time.Time
	nextTmr int
}

// New creates an empty Tracker, stamped with a correlation id used only
// for log-line correlation (not part of the wire schema).
func New() *Tracker {
	return &Tracker{
		traceID: uuid.NewString(),
		timers:  make(map[int]time.Time),
	}
}

// TraceID returns the tracker's correlation id.
func (t *Tracker) TraceID() string {
	return t.traceID
}

// Record appends a new Item, assigning OrderIndex in append order.
func (t *Tracker) Record(
	code Code,
	path, message string,
	before, after any,
	hasAfter bool,
	severity Severity,
	opType OperationType,
	metadata map[string]string,
) *Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	item := Item{
		Code:          code,
		Path:          path,
		Message:       message,
		Before:        before,
		After:         after,
		hasAfter:      hasAfter,
		Severity:      severity,
		OperationType: opType,
		Metadata:      metadata,
		OrderIndex:    len(t.items),
	}

	t.items = append(t.items, item)

	return &t.items[len(t.items)-1]
}

// SetAfter sets the After value on the most recently appended item,
// exactly once (spec.md §4.3 invariants).
func (t *Tracker) SetAfter(after any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.items) == 0 {
		return
	}

	last := &t.items[len(t.items)-1]
	if last.hasAfter {
		return
	}

	last.After = after
	last.hasAfter = true
}

// TimingHandle identifies an in-flight scope timer started by BeginTiming.
type TimingHandle struct {
	id    int
	start time.Time
	mark  int
}

// BeginTiming starts a scope timer. Call EndTiming with the returned
// handle to record elapsed microseconds onto the item most recently
// created between the two calls (spec.md §4.3).
func (t *Tracker) BeginTiming() TimingHandle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextTmr++

	return TimingHandle{id: t.nextTmr, start: time.Now(), mark: len(t.items)}
}

// EndTiming stamps TimingMicros on the last item appended since h was
// created, if any. Exactly once per item (subsequent calls for items
// already stamped are no-ops).
func (t *Tracker) EndTiming(h TimingHandle) {
	elapsed := time.Since(h.start).Microseconds()

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.items) == 0 || len(t.items) <= h.mark {
		return
	}

	last := &t.items[len(t.items)-1]
	if last.TimingMicros != nil {
		return
	}

	last.TimingMicros = &elapsed
}

// Items returns a snapshot copy of all recorded items, in append order.
func (t *Tracker) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Item, len(t.items))
	copy(out, t.items)

	return out
}

// Len reports how many items have been recorded so far.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.items)
}

// Summary computes the aggregate view over all recorded items (spec.md §3.4).
func (t *Tracker) Summary() Summary {
	items := t.Items()

	s := Summary{
		BySeverity:  map[Severity]int{},
		ByCode:      map[Code]int{},
		MaxSeverity: SeverityNone,
	}

	for _, it := range items {
		s.BySeverity[it.Severity]++
		s.ByCode[it.Code]++
		s.Total++

		if it.Severity.Rank() > s.MaxSeverity.Rank() {
			s.MaxSeverity = it.Severity
		}
	}

	return s
}

// AuditReport renders the ordered item log as human-readable text, for
// operators piping output to a terminal (SPEC_FULL.md §C.3).
func (t *Tracker) AuditReport() string {
	items := t.Items()

	var b strings.Builder

	for _, it := range items {
		fmt.Fprintf(&b, "[%d] %s %s severity=%s path=%s: %s\n",
			it.OrderIndex, it.Code, it.OperationType, it.Severity, it.Path, it.Message)
	}

	return b.String()
}

// AuditJSON returns the same ordered items as a slice, for callers that
// want structured rather than textual audit output (SPEC_FULL.md §C.3).
func (t *Tracker) AuditJSON() []Item {
	return t.Items()
}

// PerformanceReport returns up to topN items with TimingMicros >= floorMicros,
// sorted by TimingMicros descending (spec.md §4.3 performance_report,
// SPEC_FULL.md §C.4 threshold supplement).
func (t *Tracker) PerformanceReport(topN int, floorMicros int64) []Item {
	items := t.Items()

	timed := make([]Item, 0, len(items))

	for _, it := range items {
		if it.TimingMicros != nil && *it.TimingMicros >= floorMicros {
			timed = append(timed, it)
		}
	}

	// Simple insertion sort: the number of timed items per translation is
	// small (bounded by pipeline stage count), so O(n^2) is fine and keeps
	// the dependency surface to the standard library for this leaf.
	for i := 1; i < len(timed); i++ {
		for j := i; j > 0 && *timed[j].TimingMicros > *timed[j-1].TimingMicros; j-- {
			timed[j], timed[j-1] = timed[j-1], timed[j]
		}
	}

	if topN >= 0 && len(timed) > topN {
		timed = timed[:topN]
	}

	return timed
}
