// Package prevalidate implements C5: a single read-only walk of a
// PromptSpec against the chosen provider model, planning the deviations
// later stages will need to act on (spec.md §4.5). It never mutates
// PromptSpec and never writes to the working payload; it only records
// tracker items and tells the orchestrator whether any are strict-mode
// fatal.
package prevalidate

import (
	"fmt"
	"sort"

	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/pathexpr"
	"github.com/specado/specado/promptspec"
	"github.com/specado/specado/providerspec"
	"github.com/specado/specado/strictness"
	"github.com/specado/specado/value"
)

// Result reports whether pre-validation found any strict-mode-fatal
// deviation, and the first such item for diagnostic purposes.
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

// Run walks doc once against model under mode, recording planned
// deviations onto tracker (spec.md §4.5):
//
//   - numeric sampling/limit knobs outside the model's declared range,
//   - tools requested against a model with tooling.tools_supported == false,
//   - a response_format requiring emulation because json_output.native_param
//     is false,
//   - system prompt / tool schema byte sizes exceeding declared limits,
//   - model_class unsupported by the model's declared input modes.
func Run(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, model *providerspec.Model) (*Result, error) {
	result := &Result{}

	docValue, err := doc.Value()
	if err != nil {
		return nil, fmt.Errorf("prevalidate: %w", err)
	}

	checkModelClass(tracker, mode, doc, model, result)
	checkNumericRanges(tracker, mode, docValue, model, result)
	checkToolsSupported(tracker, mode, doc, model, result)
	checkResponseFormatEmulation(tracker, mode, doc, model, result)
	checkSizeLimits(tracker, mode, doc, model, result)

	return result, nil
}

func checkModelClass(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, model *providerspec.Model, result *Result) {
	if model.InputModes.Supports(string(doc.ModelClass)) {
		return
	}

	item, fatal := strictness.RecordSeverity(tracker, mode, lossiness.CodeUnsupported, lossiness.SeverityError,
		"model_class", fmt.Sprintf("model_class %q is not among the model's declared input modes", doc.ModelClass),
		string(doc.ModelClass), nil, false, lossiness.OpDrop, nil, false)

	result.note(item, fatal)
}

// canonicalPathOrder returns model.Parameters' keys in a stable order so
// repeated runs over the same model produce items in the same sequence.
func canonicalPathOrder(params providerspec.Parameters) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func checkNumericRanges(tracker *lossiness.Tracker, mode strictness.Mode, docValue *value.Value, model *providerspec.Model, result *Result) {
	for _, canonicalPath := range canonicalPathOrder(model.Parameters) {
		rng := model.Parameters[canonicalPath]
		if rng.Min == nil && rng.Max == nil {
			continue
		}

		p, err := pathexpr.Parse(canonicalPath)
		if err != nil {
			continue
		}

		v, err := pathexpr.Read(docValue, p)
		if err != nil {
			continue
		}

		n, ok := v.Number()
		if !ok {
			continue
		}

		violated, bound := outOfRange(n, rng)
		if !violated {
			continue
		}

		item, fatal := strictness.Record(tracker, mode, lossiness.CodeClamp, canonicalPath,
			fmt.Sprintf("%s value %g is outside the declared range, nearest bound %g", canonicalPath, n, bound),
			n, nil, false, lossiness.OpClamp, map[string]string{"bound": fmt.Sprintf("%g", bound)}, true)

		result.note(item, fatal)
	}
}

func outOfRange(n float64, rng providerspec.ParamRange) (bool, float64) {
	if rng.Min != nil && n < *rng.Min {
		return true, *rng.Min
	}

	if rng.Max != nil && n > *rng.Max {
		return true, *rng.Max
	}

	return false, n
}

func checkToolsSupported(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, model *providerspec.Model, result *Result) {
	if len(doc.Tools) == 0 {
		return
	}

	if model.Tooling.ToolsSupported {
		return
	}

	item, fatal := strictness.RecordSeverity(tracker, mode, lossiness.CodeUnsupported, lossiness.SeverityError,
		"tools", "tools requested but the provider model does not support tool calling",
		len(doc.Tools), nil, false, lossiness.OpDrop, nil, false)

	result.note(item, fatal)
}

func checkResponseFormatEmulation(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, model *providerspec.Model, result *Result) {
	if doc.ResponseFormat == nil {
		return
	}

	if model.JSONOutput.NativeParam {
		return
	}

	strategy := model.JSONOutput.Strategy
	if strategy == "" {
		strategy = "system_prompt"
	}

	item, fatal := strictness.RecordSeverity(tracker, mode, lossiness.CodeEmulate, lossiness.SeverityWarning,
		"response_format", "response_format requires emulation via system prompt; provider has no native JSON output parameter",
		nil, nil, false, lossiness.OpEmulationApplied, map[string]string{"json_strategy": strategy}, false)

	result.note(item, fatal)
}

func checkSizeLimits(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, model *providerspec.Model, result *Result) {
	maxSystem := model.Constraints.Limits.MaxSystemPromptBytes
	if maxSystem > 0 {
		for i, m := range doc.Messages {
			if m.Role != promptspec.RoleSystem {
				continue
			}

			size := int64(len(m.Content.Text))
			if size <= maxSystem {
				continue
			}

			item, fatal := strictness.RecordSeverity(tracker, mode, lossiness.CodePerformanceImpact, lossiness.SeverityWarning,
				fmt.Sprintf("messages[%d].content", i),
				fmt.Sprintf("system prompt is %d bytes, exceeding the declared limit of %d", size, maxSystem),
				size, nil, false, lossiness.OpDrop, map[string]string{"limit": fmt.Sprintf("%d", maxSystem)}, false)

			result.note(item, fatal)
		}
	}

	maxSchema := model.Constraints.Limits.MaxToolSchemaBytes
	if maxSchema > 0 {
		for i, t := range doc.Tools {
			size := int64(len(t.JSONSchema))
			if size <= maxSchema {
				continue
			}

			item, fatal := strictness.RecordSeverity(tracker, mode, lossiness.CodePerformanceImpact, lossiness.SeverityWarning,
				fmt.Sprintf("tools[%d].json_schema", i),
				fmt.Sprintf("tool schema is %d bytes, exceeding the declared limit of %d", size, maxSchema),
				size, nil, false, lossiness.OpDrop, map[string]string{"limit": fmt.Sprintf("%d", maxSchema)}, false)

			result.note(item, fatal)
		}
	}
}
