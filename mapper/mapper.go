// Package mapper implements C7: copying values from the (possibly C6-
// transformed) canonical PromptSpec tree into the provider-shaped working
// payload, driven by a provider model's declarative mappings.paths table
// (spec.md §4.7).
package mapper

import (
	"errors"
	"fmt"

	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/pathexpr"
	"github.com/specado/specado/promptspec"
	"github.com/specado/specado/providerspec"
	"github.com/specado/specado/strictness"
	"github.com/specado/specado/value"
)

// nonContentRoots are top-level PromptSpec members that carry translation
// metadata rather than request content (spec.md §3.1); they are never
// subject to mapping and so are excluded from the step-6 "unmapped field"
// check.
var nonContentRoots = map[string]bool{
	"model_class": true,
	"strict_mode": true,
}

// Run copies values named by model.Mappings.Paths from canonical (the
// PromptSpec tree, already transformed by C6) into working, in the
// provider's declared path order (spec.md §5). doc supplies the typed
// view needed for the model_class/required-field and system-prompt-
// relocation decisions that a bare path walk can't make on its own.
func Run(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, canonical, working *value.Value, model *providerspec.Model) error {
	covered := map[string]bool{}

	for _, canonicalPath := range model.Mappings.PathOrder {
		providerPathStr := model.Mappings.Paths[canonicalPath]
		if err := mapOne(tracker, mode, doc, canonical, working, canonicalPath, providerPathStr); err != nil {
			return err
		}

		if p, err := pathexpr.Parse(canonicalPath); err == nil && len(p.Segments()) > 0 {
			covered[rootMember(p)] = true
		}
	}

	recordUnmappedFields(tracker, mode, canonical, covered)

	return applySystemPromptRelocation(tracker, doc, working, model)
}

func rootMember(p *pathexpr.Path) string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}

	return segs[0].Member
}

func mapOne(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, canonical, working *value.Value, canonicalPathStr, providerPathStr string) error {
	canonicalPath, err := pathexpr.Parse(canonicalPathStr)
	if err != nil {
		return fmt.Errorf("mapper: canonical path %q: %w", canonicalPathStr, err)
	}

	providerPath, err := pathexpr.Parse(providerPathStr)
	if err != nil {
		return fmt.Errorf("mapper: provider path %q: %w", providerPathStr, err)
	}

	v, readErr := pathexpr.Read(canonical, canonicalPath)

	var notFound *pathexpr.NotFoundError

	if readErr != nil && errors.As(readErr, &notFound) {
		return handleMissing(tracker, mode, doc, working, canonicalPathStr, providerPath)
	} else if readErr != nil {
		return fmt.Errorf("mapper: reading %q: %w", canonicalPathStr, readErr)
	}

	if arr, ok := v.Array(); ok && len(arr) == 0 {
		return handleMissing(tracker, mode, doc, working, canonicalPathStr, providerPath)
	}

	if _, err := pathexpr.Write(working, providerPath, v.Clone()); err != nil {
		return fmt.Errorf("mapper: writing %q: %w", providerPathStr, err)
	}

	return nil
}

func handleMissing(tracker *lossiness.Tracker, mode strictness.Mode, doc *promptspec.Document, working *value.Value, canonicalPathStr string, providerPath *pathexpr.Path) error {
	required := canonicalPathStr == "messages" && doc.ModelClass.IsChatFamily()
	if !required {
		return nil
	}

	severity := lossiness.SeverityError
	if existing, err := pathexpr.Read(working, providerPath); err == nil && !existing.IsNull() {
		severity = lossiness.SeverityWarning
	}

	strictness.RecordSeverity(tracker, mode, lossiness.CodeDrop, severity,
		canonicalPathStr, "required uniform field absent", nil, nil, false, lossiness.OpDrop, nil, false)

	return nil
}

// recordUnmappedFields implements step 6: a PromptSpec field present with
// no mapping entry anywhere (its root member never appears as a
// mappings.paths key) is recorded as a dropped field.
func recordUnmappedFields(tracker *lossiness.Tracker, mode strictness.Mode, canonical *value.Value, covered map[string]bool) {
	obj, ok := canonical.Object()
	if !ok {
		return
	}

	for _, key := range obj.Keys() {
		if nonContentRoots[key] || covered[key] {
			continue
		}

		v, _ := obj.Get(key)
		if v.IsNull() {
			continue
		}

		strictness.RecordSeverity(tracker, mode, lossiness.CodeDrop, lossiness.SeverityWarning,
			key, "field present in PromptSpec has no provider mapping entry", nil, nil, false, lossiness.OpDrop, nil, false)
	}
}

// applySystemPromptRelocation implements step 7: when the provider wants
// its system instructions at a distinguished top-level location and the
// PromptSpec represents the system prompt as its first message, move that
// message's content there and drop it from the mapped messages array.
func applySystemPromptRelocation(tracker *lossiness.Tracker, doc *promptspec.Document, working *value.Value, model *providerspec.Model) error {
	if model.Constraints.SystemPromptLocation != "top_level" {
		return nil
	}

	if len(doc.Messages) == 0 || doc.Messages[0].Role != promptspec.RoleSystem {
		return nil
	}

	systemTargetStr := model.Mappings.Paths["system"]
	if systemTargetStr == "" {
		systemTargetStr = "system"
	}

	systemTarget, err := pathexpr.Parse(systemTargetStr)
	if err != nil {
		return fmt.Errorf("mapper: system target path %q: %w", systemTargetStr, err)
	}

	systemText := doc.Messages[0].Content.Text

	if _, err := pathexpr.Write(working, systemTarget, value.String(systemText)); err != nil {
		return fmt.Errorf("mapper: writing relocated system prompt: %w", err)
	}

	messagesTargetStr := model.Mappings.Paths["messages"]
	if messagesTargetStr != "" {
		if err := removeFirstMessage(working, messagesTargetStr); err != nil {
			return err
		}
	}

	tracker.Record(lossiness.CodeRelocate, "messages[0]",
		"system prompt relocated from first message to provider top-level field",
		"messages[0]", systemTargetStr, true, lossiness.SeverityInfo, lossiness.OpFieldMove,
		map[string]string{"target": systemTargetStr})

	return nil
}

func removeFirstMessage(working *value.Value, messagesTargetStr string) error {
	messagesTarget, err := pathexpr.Parse(messagesTargetStr)
	if err != nil {
		return fmt.Errorf("mapper: messages target path %q: %w", messagesTargetStr, err)
	}

	arrVal, err := pathexpr.Read(working, messagesTarget)
	if err != nil {
		// messages was never written to the working payload; nothing to remove.
		return nil
	}

	arr, ok := arrVal.Array()
	if !ok || len(arr) == 0 {
		return nil
	}

	if _, err := pathexpr.Write(working, messagesTarget, value.Array(arr[1:]...)); err != nil {
		return fmt.Errorf("mapper: rewriting messages after relocation: %w", err)
	}

	return nil
}
