// Package translate implements C10 (result assembler) and C11 (translate
// orchestrator): the sequential pipeline that turns a validated PromptSpec
// plus a chosen ProviderSpec model into a TranslationResult, or a typed
// error carrying whatever lossiness had already accumulated (spec.md
// §4.10, §4.11). It is grounded on the teacher's pipeline.Factory/Option
// shape and its use of internal/log for stage-transition logging
// (llm/pipeline/pipeline.go).
package translate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/specado/specado/conflict"
	"github.com/specado/specado/flags"
	"github.com/specado/specado/internal/log"
	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/mapper"
	"github.com/specado/specado/pathexpr"
	"github.com/specado/specado/prevalidate"
	"github.com/specado/specado/promptspec"
	"github.com/specado/specado/providerspec"
	"github.com/specado/specado/schema"
	"github.com/specado/specado/strictness"
	"github.com/specado/specado/transform"
	"github.com/specado/specado/value"
)

// State names one point in a translation's lifecycle (spec.md §4.11).
type State string

const (
	StateInit          State = "Init"
	StateValidated      State = "Validated"
	StatePreValidated   State = "PreValidated"
	StateTransformed    State = "Transformed"
	StateMapped         State = "Mapped"
	StateResolved       State = "Resolved"
	StateFlagged        State = "Flagged"
	StateAssembled      State = "Assembled"
	StateDone           State = "Done"
	StateFailed         State = "Failed"
)

// ErrorKind closes the taxonomy of spec.md §7.
type ErrorKind string

const (
	KindValidation        ErrorKind = "Validation"
	KindModelNotFound      ErrorKind = "ModelNotFound"
	KindPathSyntax         ErrorKind = "PathSyntax"
	KindPathWriteConflict  ErrorKind = "PathWriteConflict"
	KindTransformation     ErrorKind = "Transformation"
	KindStrictness         ErrorKind = "Strictness"
	KindInternal           ErrorKind = "Internal"
)

// Error is the single error type translation ever returns. It always
// carries whatever lossiness items had accumulated up to the point of
// failure (spec.md §7: "Fatal errors always include the tracker snapshot
// accumulated so far to preserve diagnostic value"), empty for the kinds
// that are "raised at the earliest opportunity" (Validation, ModelNotFound,
// PathSyntax) before any payload work starts.
type Error struct {
	Kind             ErrorKind
	Message          string
	ValidationErrors []schema.ValidationError
	Lossiness        []lossiness.Item
}

func (e *Error) Error() string {
	return fmt.Sprintf("translate: %s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, tracker *lossiness.Tracker, format string, args ...any) *Error {
	e := &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
	if tracker != nil {
		e.Lossiness = tracker.Items()
	}

	return e
}

// Result is the assembled TranslationResult (spec.md §3.4).
type Result struct {
	ProviderRequestJSON *value.Value
	Lossiness           LossinessReport
	Metadata            Metadata
}

// LossinessReport is the lossiness section of a Result.
type LossinessReport struct {
	Items       []lossiness.Item
	Summary     lossiness.Summary
	AuditReport string
}

// Metadata is the metadata section of a Result (spec.md §3.4).
type Metadata struct {
	ProviderName         string
	ModelID              string
	StrictMode           strictness.Mode
	DurationMicros        int64
	PipelineStageTimings map[string]int64
}

// StageOrder returns the canonical pipeline stage names present in
// PipelineStageTimings, sorted for deterministic iteration by callers that
// marshal this map to JSON or text (Go map iteration order is randomized).
func (m Metadata) StageOrder() []string {
	return stageTimingKeys(m.PipelineStageTimings)
}

// Options configures one call to Translate.
type Options struct {
	// ValidatorMode governs PromptSpec structural validation (spec.md
	// §4.2); schema.Partial is used when this is empty.
	ValidatorMode schema.Mode
	// StrictModeOverride, when non-empty, overrides the PromptSpec's
	// declared strict_mode for strictness adjudication (spec.md §4.12).
	StrictModeOverride strictness.Mode
}

// Factory builds translations against one loaded ProviderSpec document,
// mirroring the teacher's pipeline.Factory holding a shared Executor
// (llm/pipeline/pipeline.go).
type Factory struct {
	Provider *providerspec.Document
}

// NewFactory constructs a Factory over an already-parsed ProviderSpec
// document. The ProviderSpec is validated once here, in Strict mode
// (spec.md §4.11: "validate ProviderSpec (always Strict — it is operator
// data)"), so a malformed document fails fast rather than on every
// subsequent Translate call.
func NewFactory(provider *providerspec.Document, raw []byte) (*Factory, error) {
	if errs := schema.ValidateJSON(raw, schema.ProviderSpecDoc, schema.Strict); len(errs) > 0 {
		return nil, &Error{
			Kind:             KindValidation,
			Message:          "provider spec failed strict validation",
			ValidationErrors: errs,
		}
	}

	return &Factory{Provider: provider}, nil
}

// Translate runs the full pipeline for one PromptSpec against the model
// named modelID, per spec.md §4.11's pseudocode.
func (f *Factory) Translate(ctx context.Context, promptRaw []byte, modelID string, opts Options) (*Result, error) {
	start := time.Now()
	state := StateInit

	validatorMode := opts.ValidatorMode
	if validatorMode == "" {
		validatorMode = schema.Partial
	}

	tracker := lossiness.New()
	timings := map[string]int64{}

	stageStart := time.Now()
	handle := tracker.BeginTiming()
	errs := schema.ValidateJSON(promptRaw, schema.PromptSpecDoc, validatorMode)
	tracker.EndTiming(handle)
	timings["validator"] = time.Since(stageStart).Microseconds()

	if len(errs) > 0 {
		return nil, &Error{
			Kind:             KindValidation,
			Message:          "prompt spec failed validation",
			ValidationErrors: errs,
		}
	}

	doc, err := promptspec.Parse(promptRaw)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error()}
	}

	strictMode, ok := strictness.ParseMode(doc.StrictMode)
	if !ok {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("invalid strict_mode %q", doc.StrictMode)}
	}

	if opts.StrictModeOverride != "" {
		strictMode = opts.StrictModeOverride
	}

	state = StateValidated
	log.Debug(ctx, "translation state", log.String("state", string(state)))

	model, _, ok := f.Provider.FindModel(modelID)
	if !ok {
		return nil, &Error{Kind: KindModelNotFound, Message: fmt.Sprintf("model %q not found", modelID)}
	}

	working := value.NewObject()

	canonical, err := doc.Value()
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: err.Error()}
	}

	rules, err := buildRules(model.TransformRules)
	if err != nil {
		return nil, &Error{Kind: KindPathSyntax, Message: err.Error()}
	}

	stageStart = time.Now()
	handle = tracker.BeginTiming()

	preResult, err := prevalidate.Run(tracker, strictMode, doc, model)

	tracker.EndTiming(handle)
	timings["pre_validate"] = time.Since(stageStart).Microseconds()

	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: err.Error(), Lossiness: tracker.Items()}
	}

	if preResult.Fatal {
		return nil, newError(KindStrictness, tracker, "strict mode refuses to proceed: %s", preResult.FirstItem.Message)
	}

	state = StatePreValidated
	log.Debug(ctx, "translation state", log.String("state", string(state)))

	stageStart = time.Now()
	handle = tracker.BeginTiming()
	err = transform.Run(tracker, strictMode, canonical, working, rules)
	tracker.EndTiming(handle)
	timings["transform"] = time.Since(stageStart).Microseconds()

	if err != nil {
		return nil, &Error{Kind: KindTransformation, Message: err.Error(), Lossiness: tracker.Items()}
	}

	state = StateTransformed
	log.Debug(ctx, "translation state", log.String("state", string(state)))

	stageStart = time.Now()
	handle = tracker.BeginTiming()
	err = mapper.Run(tracker, strictMode, doc, canonical, working, model)
	tracker.EndTiming(handle)
	timings["map"] = time.Since(stageStart).Microseconds()

	if err != nil {
		return nil, mapErrorFromPathexpr(err, tracker)
	}

	state = StateMapped
	log.Debug(ctx, "translation state", log.String("state", string(state)))

	stageStart = time.Now()
	handle = tracker.BeginTiming()
	resolveResult, err := conflict.Run(tracker, strictMode, working, model)
	tracker.EndTiming(handle)
	timings["resolve"] = time.Since(stageStart).Microseconds()

	if err != nil {
		return nil, mapErrorFromPathexpr(err, tracker)
	}

	if resolveResult.Fatal {
		return nil, newError(KindStrictness, tracker, "strict mode refuses to proceed: %s", resolveResult.FirstItem.Message)
	}

	state = StateResolved
	log.Debug(ctx, "translation state", log.String("state", string(state)))

	stageStart = time.Now()
	handle = tracker.BeginTiming()
	flagResult, err := flags.Run(tracker, strictMode, doc, working, model)
	tracker.EndTiming(handle)
	timings["flags"] = time.Since(stageStart).Microseconds()

	if err != nil {
		return nil, mapErrorFromPathexpr(err, tracker)
	}

	if flagResult.Fatal {
		return nil, newError(KindStrictness, tracker, "strict mode refuses to proceed: %s", flagResult.FirstItem.Message)
	}

	state = StateFlagged
	log.Debug(ctx, "translation state", log.String("state", string(state)))

	result := assemble(working, tracker, f.Provider.Provider.Name, modelID, strictMode, timings, time.Since(start))

	log.Debug(ctx, "pipeline stage timings",
		log.Any("stages", result.Metadata.StageOrder()),
		log.Int64("total_micros", result.Metadata.DurationMicros))

	state = StateAssembled
	log.Debug(ctx, "translation state", log.String("state", string(state)))

	state = StateDone
	log.Debug(ctx, "translation state", log.String("state", string(state)))

	return result, nil
}

// assemble implements C10: copy the working payload, compute the summary
// and audit report, and populate metadata (spec.md §4.10).
func assemble(working *value.Value, tracker *lossiness.Tracker, providerName string, modelID string, mode strictness.Mode, stageTimings map[string]int64, total time.Duration) *Result {
	return &Result{
		ProviderRequestJSON: working,
		Lossiness: LossinessReport{
			Items:       tracker.Items(),
			Summary:     tracker.Summary(),
			AuditReport: tracker.AuditReport(),
		},
		Metadata: Metadata{
			ProviderName:         providerName,
			ModelID:              modelID,
			StrictMode:           mode,
			DurationMicros:        total.Microseconds(),
			PipelineStageTimings: stageTimings,
		},
	}
}

// buildRules converts a model's declarative, JSON-friendly
// TransformRuleSpecs into executable transform.Rule values (spec.md §4.6).
// Declaration order is preserved since TransformRules is a JSON array, not
// a map; transform.Run further sorts by Priority, stable on ties.
func buildRules(specs []providerspec.TransformRuleSpec) ([]transform.Rule, error) {
	rules := make([]transform.Rule, 0, len(specs))

	for _, spec := range specs {
		var defaultLiteral *value.Value

		if len(spec.DefaultLiteral) > 0 {
			v, err := value.FromJSON(spec.DefaultLiteral)
			if err != nil {
				return nil, fmt.Errorf("transform_rules: rule %q: default_literal: %w", spec.ID, err)
			}

			defaultLiteral = v
		}

		direction := transform.Forward
		if spec.Direction != "" {
			direction = transform.Direction(spec.Direction)
		}

		rules = append(rules, transform.Rule{
			ID:             spec.ID,
			Priority:       spec.Priority,
			SourcePath:     spec.SourcePath,
			TargetPath:     spec.TargetPath,
			Direction:      direction,
			Kind:           transform.Kind(spec.Kind),
			Optional:       spec.Optional,
			ConvertTo:      transform.ConvertTo(spec.ConvertTo),
			EnumMap:        spec.EnumMap,
			Scale:          spec.Scale,
			Offset:         spec.Offset,
			DefaultLiteral: defaultLiteral,
		})
	}

	return rules, nil
}

// mapErrorFromPathexpr classifies an error returned by a writer stage
// (mapper, conflict, flags) into PathSyntax or PathWriteConflict per
// spec.md §7, falling back to Internal for anything else unexpected.
func mapErrorFromPathexpr(err error, tracker *lossiness.Tracker) *Error {
	var parseErr *pathexpr.ParseError
	if errors.As(err, &parseErr) {
		return &Error{Kind: KindPathSyntax, Message: err.Error()}
	}

	var conflictErr *pathexpr.WriteConflictError
	if errors.As(err, &conflictErr) {
		return &Error{Kind: KindPathWriteConflict, Message: err.Error(), Lossiness: tracker.Items()}
	}

	return &Error{Kind: KindInternal, Message: err.Error(), Lossiness: tracker.Items()}
}

// stageTimingKeys returns the canonical pipeline_stage_timings key order
// for callers (e.g. the JSON wire encoder) that want a stable iteration
// order rather than Go's randomized map order.
func stageTimingKeys(timings map[string]int64) []string {
	keys := lo.Keys(timings)
	sort.Strings(keys)

	return keys
}
