// Package flags implements C9: applying a provider model's declarative
// mappings.flags actions to the working payload, after conflict resolution
// and before assembly (spec.md §4.9).
package flags

import (
	"fmt"

	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/pathexpr"
	"github.com/specado/specado/promptspec"
	"github.com/specado/specado/providerspec"
	"github.com/specado/specado/strictness"
	"github.com/specado/specado/value"
)

const (
	kindEmulateJSONViaSystemPrompt = "emulate_json_via_system_prompt"
	kindSerializeParallelToolCalls = "serialize_parallel_tool_calls"
	kindStatic                    = "static"
)

// Result reports whether flag application recorded any strict-mode-fatal
// deviation, mirroring prevalidate/conflict's Result.
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

// Run processes model.Mappings.Flags exactly once each, in flag-declaration
// order (model.Mappings.FlagOrder). Two named actions are interpreted
// specially (emulate_json_via_system_prompt, serialize_parallel_tool_calls);
// every other flag is a static value write. When a static flag's target
// path already holds a non-null value, the prior value is recorded as
// Conflict (spec.md §4.9's "record nothing unless the write displaces an
// existing value", generalized to cover both a pre-existing mapped value
// and an earlier flag having already claimed the same path, since the
// spec's own "two flags target the same path" rule is the same mechanism
// applied to a flag-vs-flag source instead of a mapper-vs-flag source).
func Run(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, working *value.Value, model *providerspec.Model) (*Result, error) {
	result := &Result{}

	for _, name := range model.Mappings.FlagOrder {
		action, ok := model.Mappings.Flags[name]
		if !ok {
			continue
		}

		var err error

		switch action.Kind {
		case kindEmulateJSONViaSystemPrompt:
			err = applyEmulateJSON(tracker, mode, doc, working, model, action, result)
		case kindSerializeParallelToolCalls:
			err = applySerializeParallelToolCalls(tracker, mode, doc, working, model, action, result)
		default:
			err = applyStatic(tracker, mode, working, name, action, result)
		}

		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// responseFormatNeedsEmulation mirrors prevalidate's own check: the same
// condition that made C5 plan an Emulate item is what makes this flag active.
func responseFormatNeedsEmulation(doc *promptspec.Document, model *providerspec.Model) bool {
	return doc.ResponseFormat != nil && !model.JSONOutput.NativeParam
}

func applyEmulateJSON(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, working *value.Value, model *providerspec.Model, action providerspec.FlagAction, result *Result) error {
	if !responseFormatNeedsEmulation(doc, model) {
		return nil
	}

	pathStr := action.Path
	if pathStr == "" {
		pathStr = "system"
	}

	path, err := pathexpr.Parse(pathStr)
	if err != nil {
		return fmt.Errorf("flags: path %q: %w", pathStr, err)
	}

	instruction := "Respond with valid JSON."
	if doc.ResponseFormat.Mode == "json_schema" {
		instruction = "Respond with JSON that conforms to the requested schema."
	}

	existing, readErr := pathexpr.Read(working, path)

	merged := instruction
	if readErr == nil {
		if s, ok := existing.String(); ok && s != "" {
			merged = s + "\n\n" + instruction
		}
	}

	if _, err := pathexpr.Write(working, path, value.String(merged)); err != nil {
		return fmt.Errorf("flags: writing %q: %w", pathStr, err)
	}

	strategy := model.JSONOutput.Strategy
	if strategy == "" {
		strategy = "system_prompt"
	}

	item, fatal := strictness.RecordSeverity(tracker, mode, lossiness.CodeEmulate, lossiness.SeverityWarning,
		pathStr, "response_format emulated via system-prompt instruction",
		nil, merged, true, lossiness.OpEmulationApplied, map[string]string{"json_strategy": strategy}, false)

	result.note(item, fatal)

	return nil
}

// impliesParallelToolUse treats more than one declared tool as the
// PromptSpec's implicit signal that the model may want to call several of
// them in one turn; PromptSpec carries no explicit parallel-intent field
// (spec.md §3.1 has none), so tool count is the only available signal.
func impliesParallelToolUse(doc *promptspec.Document) bool {
	return len(doc.Tools) > 1
}

func applySerializeParallelToolCalls(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, working *value.Value, model *providerspec.Model, action providerspec.FlagAction, result *Result) error {
	if model.Tooling.ParallelToolCallsDefault || !impliesParallelToolUse(doc) {
		return nil
	}

	disableSwitch := model.Tooling.DisableSwitch
	if disableSwitch == "" {
		disableSwitch = action.Path
	}

	var (
		appliedTo string
		note      string
	)

	if disableSwitch != "" {
		path, err := pathexpr.Parse(disableSwitch)
		if err != nil {
			return fmt.Errorf("flags: disable switch path %q: %w", disableSwitch, err)
		}

		if _, err := pathexpr.Write(working, path, value.Bool(true)); err != nil {
			return fmt.Errorf("flags: writing %q: %w", disableSwitch, err)
		}

		appliedTo = disableSwitch
		note = "parallel tool calls disabled via provider switch; provider lacks native parallel tool calling"
	} else {
		appliedTo = "tool_choice"
		note = "provider lacks native parallel tool calling and no disable switch is declared; parallel intent dropped"
	}

	item, fatal := strictness.RecordSeverity(tracker, mode, lossiness.CodeEmulate, lossiness.SeverityWarning,
		appliedTo, note, nil, nil, false, lossiness.OpEmulationApplied, nil, false)

	result.note(item, fatal)

	return nil
}

func applyStatic(tracker *lossiness.Tracker, mode strictness.Mode, working *value.Value, name string, action providerspec.FlagAction, result *Result) error {
	if action.Path == "" {
		return fmt.Errorf("flags: flag %q has no path", name)
	}

	path, err := pathexpr.Parse(action.Path)
	if err != nil {
		return fmt.Errorf("flags: path %q: %w", action.Path, err)
	}

	newValue, err := value.FromJSON(action.Value)
	if err != nil {
		return fmt.Errorf("flags: flag %q value: %w", name, err)
	}

	existing, readErr := pathexpr.Read(working, path)
	if readErr == nil && !existing.IsNull() {
		item, fatal := strictness.RecordSeverity(tracker, mode, lossiness.CodeConflict, lossiness.SeverityWarning,
			action.Path, fmt.Sprintf("flag %q overwrites an existing value at this path", name),
			rawOf(existing), rawOf(newValue), true, lossiness.OpDrop,
			map[string]string{"winner": name}, false)

		result.note(item, fatal)
	}

	if _, err := pathexpr.Write(working, path, newValue); err != nil {
		return fmt.Errorf("flags: writing %q: %w", action.Path, err)
	}

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
