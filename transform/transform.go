// Package transform implements C6: the declarative value-transformation
// pipeline that runs before path mapping (spec.md §4.6). Rules read a
// PromptSpec canonical path from the (read-only) canonical tree and write
// the transformed value into the emerging provider-shaped working
// payload, so later mapping (C7) only has to carry over whatever the
// transformer hasn't already placed.
package transform

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/spf13/cast"

	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/pathexpr"
	"github.com/specado/specado/strictness"
	"github.com/specado/specado/value"
)

// Direction controls which rules the core pipeline executes. The core
// only ever runs Forward (and Bidirectional, which subsumes it); Reverse
// rules exist for a hypothetical reverse (response-normalization)
// direction this module does not implement (spec.md §4.6, Non-goals).
type Direction string

const (
	Forward       Direction = "Forward"
	Reverse       Direction = "Reverse"
	Bidirectional Direction = "Bidirectional"
)

// Kind selects which transformation a Rule performs (spec.md §4.6).
type Kind string

const (
	KindTypeConversion Kind = "TypeConversion"
	KindEnumMapping    Kind = "EnumMapping"
	KindUnitConversion Kind = "UnitConversion"
	KindFieldRename    Kind = "FieldRename"
	KindDefaultValue   Kind = "DefaultValue"
	KindConditional    Kind = "Conditional"
	KindCustom         Kind = "Custom"
)

// ConvertTo names a TypeConversion rule's target representation.
type ConvertTo string

const (
	ToNumber  ConvertTo = "number"
	ToString  ConvertTo = "string"
	ToInteger ConvertTo = "integer"
)

// Branch is one arm of a Conditional rule.
type Branch struct {
	When func(src *value.Value) bool
	Then Rule
}

// Rule is one declarative transformation (spec.md §4.6).
type Rule struct {
	ID         string
	Priority   int
	SourcePath string
	TargetPath string // defaults to SourcePath when empty
	Direction  Direction
	Condition  func(src *value.Value) bool
	Kind       Kind
	Optional   bool

	// TypeConversion
	ConvertTo ConvertTo

	// EnumMapping: maps an input string to an output string.
	EnumMap map[string]string

	// UnitConversion: output = input*Scale + Offset.
	Scale  float64
	Offset float64

	// FieldRename: the member name the value is written under at TargetPath's
	// parent object (TargetPath itself should name the renamed location).

	// DefaultValue: literal written to TargetPath when SourcePath is absent.
	DefaultLiteral *value.Value

	// Conditional
	Branches []Branch

	// Custom: opaque caller-supplied transformation; tracked as
	// TypeConversion with full before/after (spec.md §4.6).
	CustomFn func(src *value.Value) (*value.Value, error)
}

// ErrRequiredRuleFailed is wrapped into the error returned by Run when a
// non-optional rule's source is absent or its transformation fails.
var ErrRequiredRuleFailed = errors.New("transform: required rule failed")

// Run executes rules against canonical (read-only PromptSpec tree) in
// stable priority order (ties broken by declaration order), writing
// results into working. It returns an error wrapping ErrRequiredRuleFailed
// the first time a non-optional rule cannot be satisfied (spec.md §4.6:
// "Failed required rules abort translation with a Transformation error").
func Run(tracker *lossiness.Tracker, mode strictness.Mode, canonical, working *value.Value, rules []Rule) error {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)

	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	for _, rule := range ordered {
		if rule.Direction == Reverse {
			continue
		}

		if err := applyRule(tracker, mode, canonical, working, rule); err != nil {
			return err
		}
	}

	return nil
}

func applyRule(tracker *lossiness.Tracker, mode strictness.Mode, canonical, working *value.Value, rule Rule) error {
	targetPathStr := rule.TargetPath
	if targetPathStr == "" {
		targetPathStr = rule.SourcePath
	}

	srcPath, err := pathexpr.Parse(rule.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: rule %q: source_path: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	targetPath, err := pathexpr.Parse(targetPathStr)
	if err != nil {
		return fmt.Errorf("%w: rule %q: target_path: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	srcVal, readErr := pathexpr.Read(canonical, srcPath)

	var notFound *pathexpr.NotFoundError

	missing := readErr != nil && errors.As(readErr, &notFound)
	if readErr != nil && !missing {
		return fmt.Errorf("%w: rule %q: %v", ErrRequiredRuleFailed, rule.ID, readErr)
	}

	if rule.Kind == KindDefaultValue {
		return applyDefaultValue(tracker, mode, working, rule, targetPath, missing)
	}

	if missing {
		if rule.Optional {
			return nil
		}

		return fmt.Errorf("%w: rule %q: required source %q absent", ErrRequiredRuleFailed, rule.ID, rule.SourcePath)
	}

	if rule.Condition != nil && !rule.Condition(srcVal) {
		return nil
	}

	switch rule.Kind {
	case KindTypeConversion:
		return applyTypeConversion(tracker, working, rule, targetPath, srcVal)
	case KindEnumMapping:
		return applyEnumMapping(tracker, working, rule, targetPath, srcVal)
	case KindUnitConversion:
		return applyUnitConversion(tracker, working, rule, targetPath, srcVal)
	case KindFieldRename:
		return applyFieldRename(tracker, working, rule, srcPath, targetPath, srcVal)
	case KindConditional:
		return applyConditional(tracker, mode, canonical, working, rule, srcVal)
	case KindCustom:
		return applyCustom(tracker, working, rule, targetPath, srcVal)
	default:
		return fmt.Errorf("%w: rule %q: unknown kind %q", ErrRequiredRuleFailed, rule.ID, rule.Kind)
	}
}

func applyDefaultValue(tracker *lossiness.Tracker, mode strictness.Mode, working *value.Value, rule Rule, targetPath *pathexpr.Path, missing bool) error {
	if !missing {
		return nil
	}

	if _, err := pathexpr.Write(working, targetPath, rule.DefaultLiteral); err != nil {
		return fmt.Errorf("%w: rule %q: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	strictness.RecordSeverity(tracker, mode, lossiness.CodeMapFallback, lossiness.SeverityInfo,
		rule.SourcePath, fmt.Sprintf("rule %q supplied a default for an absent field", rule.ID),
		nil, rule.DefaultLiteral, true, lossiness.OpDefaultApplied, map[string]string{"rule_id": rule.ID}, false)

	return nil
}

func applyTypeConversion(tracker *lossiness.Tracker, working *value.Value, rule Rule, targetPath *pathexpr.Path, src *value.Value) error {
	converted, err := convert(src, rule.ConvertTo)
	if err != nil {
		if rule.Optional {
			return nil
		}

		return fmt.Errorf("%w: rule %q: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	before := rawOf(src)

	if _, err := pathexpr.Write(working, targetPath, converted); err != nil {
		return fmt.Errorf("%w: rule %q: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	metadata := map[string]string{"rule_id": rule.ID, "convert_to": string(rule.ConvertTo)}
	if rule.ConvertTo == ToInteger {
		metadata["rounding"] = "truncate_toward_zero"
	}

	tracker.Record(lossiness.CodeClamp, rule.SourcePath,
		fmt.Sprintf("rule %q converted value to %s", rule.ID, rule.ConvertTo),
		before, rawOf(converted), true, lossiness.SeverityInfo, lossiness.OpTypeConversion, metadata)

	return nil
}

func convert(v *value.Value, to ConvertTo) (*value.Value, error) {
	raw := rawOf(v)

	switch to {
	case ToNumber:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, err
		}

		return value.Number(f), nil
	case ToString:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, err
		}

		return value.String(s), nil
	case ToInteger:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, err
		}

		return value.Int(int64(math.Trunc(f))), nil
	default:
		return nil, fmt.Errorf("transform: unknown ConvertTo %q", to)
	}
}

func applyEnumMapping(tracker *lossiness.Tracker, working *value.Value, rule Rule, targetPath *pathexpr.Path, src *value.Value) error {
	s, ok := src.String()
	if !ok {
		return fmt.Errorf("%w: rule %q: EnumMapping source is not a string", ErrRequiredRuleFailed, rule.ID)
	}

	mapped, ok := rule.EnumMap[s]
	if !ok {
		if rule.Optional {
			tracker.Record(lossiness.CodeMapFallback, rule.SourcePath,
				fmt.Sprintf("rule %q: no enum mapping for %q; skipped", rule.ID, s),
				s, nil, false, lossiness.SeverityWarning, lossiness.OpEnumMapping, map[string]string{"rule_id": rule.ID})

			return nil
		}

		return fmt.Errorf("%w: rule %q: no enum mapping for %q", ErrRequiredRuleFailed, rule.ID, s)
	}

	if _, err := pathexpr.Write(working, targetPath, value.String(mapped)); err != nil {
		return fmt.Errorf("%w: rule %q: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	tracker.Record(lossiness.CodeClamp, rule.SourcePath,
		fmt.Sprintf("rule %q mapped enum value %q to %q", rule.ID, s, mapped),
		s, mapped, true, lossiness.SeverityInfo, lossiness.OpEnumMapping, map[string]string{"rule_id": rule.ID})

	return nil
}

func applyUnitConversion(tracker *lossiness.Tracker, working *value.Value, rule Rule, targetPath *pathexpr.Path, src *value.Value) error {
	n, ok := src.Number()
	if !ok {
		return fmt.Errorf("%w: rule %q: UnitConversion source is not a number", ErrRequiredRuleFailed, rule.ID)
	}

	converted := n*rule.Scale + rule.Offset

	if _, err := pathexpr.Write(working, targetPath, value.Number(converted)); err != nil {
		return fmt.Errorf("%w: rule %q: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	tracker.Record(lossiness.CodeClamp, rule.SourcePath,
		fmt.Sprintf("rule %q converted units (scale=%g offset=%g)", rule.ID, rule.Scale, rule.Offset),
		n, converted, true, lossiness.SeverityInfo, lossiness.OpUnitConversion,
		map[string]string{"rule_id": rule.ID, "scale": fmt.Sprintf("%g", rule.Scale), "offset": fmt.Sprintf("%g", rule.Offset)})

	return nil
}

func applyFieldRename(tracker *lossiness.Tracker, working *value.Value, rule Rule, srcPath, targetPath *pathexpr.Path, src *value.Value) error {
	if _, err := pathexpr.Write(working, targetPath, src.Clone()); err != nil {
		return fmt.Errorf("%w: rule %q: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	tracker.Record(lossiness.CodeRelocate, rule.SourcePath,
		fmt.Sprintf("rule %q renamed field to %s", rule.ID, targetPath.String()),
		srcPath.String(), targetPath.String(), true, lossiness.SeverityInfo, lossiness.OpFieldMove,
		map[string]string{"rule_id": rule.ID})

	return nil
}

func applyConditional(tracker *lossiness.Tracker, mode strictness.Mode, canonical, working *value.Value, rule Rule, src *value.Value) error {
	for _, b := range rule.Branches {
		if b.When == nil || b.When(src) {
			return applyRule(tracker, mode, canonical, working, b.Then)
		}
	}

	return nil
}

func applyCustom(tracker *lossiness.Tracker, working *value.Value, rule Rule, targetPath *pathexpr.Path, src *value.Value) error {
	if rule.CustomFn == nil {
		return fmt.Errorf("%w: rule %q: Custom rule has no CustomFn", ErrRequiredRuleFailed, rule.ID)
	}

	out, err := rule.CustomFn(src)
	if err != nil {
		return fmt.Errorf("%w: rule %q: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	before := rawOf(src)

	if _, err := pathexpr.Write(working, targetPath, out); err != nil {
		return fmt.Errorf("%w: rule %q: %v", ErrRequiredRuleFailed, rule.ID, err)
	}

	// Custom is tracked as TypeConversion with full before/after (spec.md §4.6).
	tracker.Record(lossiness.CodeClamp, rule.SourcePath,
		fmt.Sprintf("rule %q applied a custom transformation", rule.ID),
		before, rawOf(out), true, lossiness.SeverityInfo, lossiness.OpTypeConversion, map[string]string{"rule_id": rule.ID})

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
