// Package strictness implements the pure decision function of spec.md §4.4:
// given a deviation code and the configured mode, decide whether
// translation must fail, proceed with a warning, or auto-adjust the value.
package strictness

import "github.com/specado/specado/lossiness"

// Mode is one of the three adjudication modes a translation runs under.
type Mode string

const (
	Strict Mode = "Strict"
	Warn   Mode = "Warn"
	Coerce Mode = "Coerce"
)

// ParseMode parses a wire-shape strictness string, defaulting to Warn for
// an empty input (spec.md §3.1 "Defaults to Warn if absent on load").
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case Strict, Warn, Coerce:
		return Mode(s), true
	case "":
		return Warn, true
	default:
		return "", false
	}
}

// fatalCodes are the deviation codes that, under Strict mode, abort
// translation rather than merely being recorded (spec.md §4.4).
var fatalCodes = map[lossiness.Code]bool{
	lossiness.CodeClamp:       true,
	lossiness.CodeDrop:        true,
	lossiness.CodeEmulate:     true,
	lossiness.CodeConflict:    true,
	lossiness.CodeRelocate:    true,
	lossiness.CodeUnsupported: true,
}

// Decision is the outcome of adjudicating one deviation.
type Decision struct {
	// Fatal means the mode refuses to proceed: the caller should abort
	// translation with a Strictness error carrying the would-be item.
	Fatal bool
	// Severity is the severity the item should be recorded at (may differ
	// from the severity the caller proposed, e.g. Warn elevates Drop).
	Severity lossiness.Severity
	// Clamp indicates Coerce mode wants the numeric value clamped to the
	// nearest declared bound rather than rejected or passed through
	// unchanged.
	Clamp bool
}

// Adjudicate decides how to handle a deviation with the given code and
// proposed severity under mode. isNumericRange indicates the deviation
// represents a numeric value outside a declared range (only such
// deviations are eligible for Coerce's clamp behavior).
func Adjudicate(mode Mode, code lossiness.Code, proposedSeverity lossiness.Severity, isNumericRange bool) Decision {
	switch mode {
	case Strict:
		if fatalCodes[code] {
			return Decision{Fatal: true, Severity: proposedSeverity}
		}

		return Decision{Severity: proposedSeverity}
	case Coerce:
		if isNumericRange && code == lossiness.CodeClamp {
			return Decision{Severity: lossiness.SeverityInfo, Clamp: true}
		}

		return warnDecision(code, proposedSeverity)
	case Warn:
		return warnDecision(code, proposedSeverity)
	default:
		return warnDecision(code, proposedSeverity)
	}
}

// warnDecision implements Warn-mode adjudication: proceed, elevating
// Drop/Unsupported severity to at least Warning (spec.md §4.4).
func warnDecision(code lossiness.Code, proposedSeverity lossiness.Severity) Decision {
	severity := proposedSeverity

	if code == lossiness.CodeDrop || code == lossiness.CodeUnsupported {
		if severity.Rank() < lossiness.SeverityWarning.Rank() {
			severity = lossiness.SeverityWarning
		}
	}

	return Decision{Severity: severity}
}

// IsFatalCode reports whether code is ever fatal under Strict mode,
// independent of the current item's severity — used by the orchestrator
// to short-circuit a stage as soon as a fatal-eligible code is recorded
// while running in Strict mode.
func IsFatalCode(code lossiness.Code) bool {
	return fatalCodes[code]
}

// Record adjudicates a proposed deviation under mode and appends it to
// tracker at the adjudicated severity, returning the recorded item and
// whether the mode treats it as fatal. Pre-validation (C5), conflict
// resolution (C8), flag application (C9) and the mapper's (C7) Drop items
// go through this chokepoint, so "record a deviation" and "decide whether
// it's fatal" stay together there; the transformer (C6) and the mapper's
// system-prompt Relocate item call tracker.Record directly.
func Record(
	tracker *lossiness.Tracker,
	mode Mode,
	code lossiness.Code,
	path, message string,
	before, after any,
	hasAfter bool,
	opType lossiness.OperationType,
	metadata map[string]string,
	isNumericRange bool,
) (*lossiness.Item, bool) {
	decision := Adjudicate(mode, code, lossiness.SeverityWarning, isNumericRange)

	item := tracker.Record(code, path, message, before, after, hasAfter, decision.Severity, opType, metadata)

	return item, decision.Fatal
}

// RecordSeverity is like Record but lets the caller propose a severity
// (rather than defaulting the proposal to Warning), for deviations whose
// natural severity is Info or Error before adjudication.
func RecordSeverity(
	tracker *lossiness.Tracker,
	mode Mode,
	code lossiness.Code,
	proposedSeverity lossiness.Severity,
	path, message string,
	before, after any,
	hasAfter bool,
	opType lossiness.OperationType,
	metadata map[string]string,
	isNumericRange bool,
) (*lossiness.Item, bool) {
	decision := Adjudicate(mode, code, proposedSeverity, isNumericRange)

	item := tracker.Record(code, path, message, before, after, hasAfter, decision.Severity, opType, metadata)

	return item, decision.Fatal
}
