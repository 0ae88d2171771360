// Package conflict implements C8: resolving mutually exclusive groups of
// provider parameters once C7 has populated the working payload (spec.md
// §4.8). The mapper has no notion of "these two knobs can't both be set on
// the wire"; that's declared per-model in constraints.mutually_exclusive
// and resolved here, after mapping and before flag actions (C9).
package conflict

import (
	"fmt"
	"strings"

	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/pathexpr"
	"github.com/specado/specado/providerspec"
	"github.com/specado/specado/strictness"
	"github.com/specado/specado/value"
)

// Result reports whether conflict resolution recorded any strict-mode-fatal
// deviation, mirroring prevalidate's Result so the orchestrator treats every
// stage the same way between C5 and C9.
type Result struct {
	Fatal     bool
	FirstItem *lossiness.Item
}

func (r *Result) note(item *lossiness.Item, fatal bool) {
	if fatal && !r.Fatal {
		r.Fatal = true
		r.FirstItem = item
	}
}

// Run walks model.Constraints.MutuallyExclusive in declaration order. For
// each group, every canonical path present (and non-null) in working is a
// candidate; a group with at most one present candidate has nothing to
// resolve. Otherwise the winner is the first candidate that also appears in
// ResolutionPreferences, in preference order, falling back to the first
// present candidate in group-declaration order if none of the present
// candidates is preferred. Every loser is deleted from working and recorded
// as a Conflict item.
func Run(tracker *lossiness.Tracker, mode strictness.Mode, working *value.Value, model *providerspec.Model) (*Result, error) {
	result := &Result{}

	for _, group := range model.Constraints.MutuallyExclusive {
		if err := resolveGroup(tracker, mode, working, model, group, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func resolveGroup(tracker *lossiness.Tracker, mode strictness.Mode, working *value.Value, model *providerspec.Model, group []string, result *Result) error {
	present, err := presentPaths(working, model, group)
	if err != nil {
		return err
	}

	if len(present) <= 1 {
		return nil
	}

	winner := pickWinner(present, model.Constraints.ResolutionPreferences)
	groupLabel := strings.Join(group, ",")

	for _, canonicalPath := range present {
		if canonicalPath == winner {
			continue
		}

		if err := dropLoser(tracker, mode, working, model, canonicalPath, winner, groupLabel, result); err != nil {
			return err
		}
	}

	return nil
}

// presentPaths returns the group's canonical paths whose mapped provider
// location holds a non-null value in working, preserving group-declaration
// order. A canonical path with no mapping entry for this model is skipped:
// it was never written by the mapper, so it can't be "present" on the wire.
func presentPaths(working *value.Value, model *providerspec.Model, group []string) ([]string, error) {
	var present []string

	for _, canonicalPath := range group {
		providerPathStr, ok := model.Mappings.Paths[canonicalPath]
		if !ok {
			continue
		}

		providerPath, err := pathexpr.Parse(providerPathStr)
		if err != nil {
			return nil, fmt.Errorf("conflict: provider path %q: %w", providerPathStr, err)
		}

		v, err := pathexpr.Read(working, providerPath)
		if err != nil {
			continue
		}

		if v.IsNull() {
			continue
		}

		present = append(present, canonicalPath)
	}

	return present, nil
}

// pickWinner scans preferences in order, returning the first one that is
// also present; falling back to the first present path in group-declaration
// order when no preference applies.
func pickWinner(present, preferences []string) string {
	presentSet := make(map[string]bool, len(present))
	for _, p := range present {
		presentSet[p] = true
	}

	for _, pref := range preferences {
		if presentSet[pref] {
			return pref
		}
	}

	return present[0]
}

func dropLoser(tracker *lossiness.Tracker, mode strictness.Mode, working *value.Value, model *providerspec.Model, loserCanonical, winnerCanonical, groupLabel string, result *Result) error {
	providerPathStr := model.Mappings.Paths[loserCanonical]

	providerPath, err := pathexpr.Parse(providerPathStr)
	if err != nil {
		return fmt.Errorf("conflict: provider path %q: %w", providerPathStr, err)
	}

	old, _, err := pathexpr.Delete(working, providerPath)
	if err != nil {
		return fmt.Errorf("conflict: deleting %q: %w", providerPathStr, err)
	}

	var before any
	if old != nil {
		before = rawOf(old)
	}

	item, fatal := strictness.RecordSeverity(tracker, mode, lossiness.CodeConflict, lossiness.SeverityWarning,
		loserCanonical,
		fmt.Sprintf("%s conflicts with %s in a mutually exclusive group; %s wins", loserCanonical, winnerCanonical, winnerCanonical),
		before, nil, true, lossiness.OpDrop,
		map[string]string{"group": groupLabel, "winner": winnerCanonical},
		false)

	result.note(item, fatal)

	return nil
}

func rawOf(v *value.Value) any {
	if v == nil {
		return nil
	}

	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.Bool()

		return b
	case value.KindString:
		s, _ := v.String()

		return s
	case value.KindNumber:
		n, _ := v.Number()

		return n
	default:
		return v
	}
}
