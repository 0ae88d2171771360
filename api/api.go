// Package api implements C12: the JSON-in/JSON-out external interface
// (spec.md §4.12, §6.1, §6.3) over the translate package's Go API, the
// boundary a non-Go caller (CLI, FFI host) actually talks to. It is
// grounded on the teacher's tools/main.go, which treats a JSON file in
// and a JSON file out as the whole interface surface for its own
// convert command.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/providerspec"
	"github.com/specado/specado/schema"
	"github.com/specado/specado/strictness"
	"github.com/specado/specado/translate"
)

// TranslateRequest is the wire shape of §6.1's request.
type TranslateRequest struct {
	PromptSpec   json.RawMessage `json:"prompt_spec"`
	ProviderSpec json.RawMessage `json:"provider_spec"`
	ModelID      string          `json:"model_id"`
	StrictMode   string          `json:"strict_mode,omitempty"`

	// RawOverrides are applied to provider_request_json after the core
	// pipeline assembles it, outside the core's scope (§1 reserves value
	// transformation and mapping to the declarative pipeline) but useful
	// for a caller that needs a last-mile patch the ProviderSpec author
	// didn't anticipate — one raw JSON path tweak rather than a whole new
	// model record.
	RawOverrides []RawOverride `json:"raw_overrides,omitempty"`
}

// RawOverride is one raw-body patch operation applied directly to
// provider_request_json bytes after assembly, grounded on the teacher's
// outbound request override step (internal/server/orchestrator/override.go).
// Op selects the operation: "set" writes Value at Path; "delete" removes
// Path; "rename" moves whatever is at From to To; "copy" duplicates it.
type RawOverride struct {
	Op    string `json:"op"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// applyRawOverrides patches body in declaration order. An override whose
// source path does not exist (rename/copy) or whose own write fails is
// skipped rather than aborting the whole batch — a caller supplying ten
// overrides should not lose the other nine because one named a stale
// path, mirroring the teacher's own "log and continue" treatment of an
// unknown override operation.
func applyRawOverrides(body []byte, overrides []RawOverride) []byte {
	for _, op := range overrides {
		var (
			next []byte
			err  error
		)

		switch op.Op {
		case "set":
			next, err = sjson.SetBytes(body, op.Path, op.Value)
		case "delete":
			next, err = sjson.DeleteBytes(body, op.Path)
		case "rename":
			next, err = renameField(body, op.From, op.To)
		case "copy":
			next, err = copyField(body, op.From, op.To)
		default:
			continue
		}

		if err == nil {
			body = next
		}
	}

	return body
}

func renameField(body []byte, from, to string) ([]byte, error) {
	result := gjson.GetBytes(body, from)
	if !result.Exists() {
		return body, nil
	}

	body, err := sjson.DeleteBytes(body, from)
	if err != nil {
		return body, err
	}

	return sjson.SetBytes(body, to, result.Value())
}

func copyField(body []byte, from, to string) ([]byte, error) {
	result := gjson.GetBytes(body, from)
	if !result.Exists() {
		return body, nil
	}

	return sjson.SetBytes(body, to, result.Value())
}

// TranslateResponse is the wire shape of §6.1's success/failure response.
// Only one of Error or ProviderRequestJSON is ever populated: a failure
// still carries whatever Lossiness had accumulated (§7: "error responses
// preserve the lossiness partial snapshot").
type TranslateResponse struct {
	ProviderRequestJSON json.RawMessage  `json:"provider_request_json,omitempty"`
	Lossiness           *LossinessWire   `json:"lossiness,omitempty"`
	Metadata            *MetadataWire    `json:"metadata,omitempty"`
	Error               *ErrorWire       `json:"error,omitempty"`
}

// LossinessWire is §3.4/§6.2's lossiness wire shape.
type LossinessWire struct {
	Items       []ItemWire     `json:"items"`
	Summary     SummaryWire    `json:"summary,omitempty"`
	MaxSeverity string         `json:"max_severity,omitempty"`
}

// ItemWire is a single §3.3 LossinessItem, with optional fields omitted
// as §6.2 requires.
type ItemWire struct {
	Code          string            `json:"code"`
	Path          string            `json:"path"`
	Message       string            `json:"message"`
	Before        any               `json:"before,omitempty"`
	After         any               `json:"after,omitempty"`
	Severity      string            `json:"severity"`
	OperationType string            `json:"operation_type,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	TimingMicros  *int64            `json:"timing_micros,omitempty"`
}

// SummaryWire is §6.1's lossiness.summary object.
type SummaryWire struct {
	BySeverity map[string]int `json:"by_severity"`
	ByCode     map[string]int `json:"by_code"`
	Total      int            `json:"total"`
}

// MetadataWire is §6.1's metadata object.
type MetadataWire struct {
	ProviderName         string           `json:"provider_name"`
	ModelID              string           `json:"model_id"`
	StrictMode           string           `json:"strict_mode"`
	DurationMicros       int64            `json:"duration_micros"`
	PipelineStageTimings map[string]int64 `json:"pipeline_stage_timings"`
}

// ErrorWire is §6.1's failure error object / §7's taxonomy.
type ErrorWire struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Path    string            `json:"path,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// Translate implements §6.1: decode a TranslateRequest, run the
// translate pipeline, and encode either a success or a failure response.
// It never returns a Go error itself — a malformed request or translation
// failure is reported as a TranslateResponse.Error, matching the "opaque
// JSON in, JSON out" shape a language binding relies on.
func Translate(ctx context.Context, requestJSON []byte) []byte {
	var req TranslateRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return mustMarshal(TranslateResponse{Error: &ErrorWire{
			Kind: string(translate.KindValidation), Message: fmt.Sprintf("malformed request: %v", err),
		}})
	}

	providerDoc, err := providerspec.Parse(req.ProviderSpec)
	if err != nil {
		return mustMarshal(TranslateResponse{Error: &ErrorWire{
			Kind: string(translate.KindValidation), Message: fmt.Sprintf("malformed provider_spec: %v", err),
		}})
	}

	factory, err := translate.NewFactory(providerDoc, req.ProviderSpec)
	if err != nil {
		return mustMarshal(errResponse(err))
	}

	opts := translate.Options{}
	if req.StrictMode != "" {
		mode, ok := strictness.ParseMode(req.StrictMode)
		if !ok {
			return mustMarshal(TranslateResponse{Error: &ErrorWire{
				Kind: string(translate.KindValidation), Message: fmt.Sprintf("invalid strict_mode %q", req.StrictMode),
			}})
		}

		opts.StrictModeOverride = mode
	}

	result, err := factory.Translate(ctx, req.PromptSpec, req.ModelID, opts)
	if err != nil {
		return mustMarshal(errResponse(err))
	}

	return mustMarshal(successResponse(result, req.RawOverrides))
}

// ValidateRequest is §6.3's request shape.
type ValidateRequest struct {
	Spec     json.RawMessage `json:"spec"`
	SpecType string          `json:"spec_type"`
	Mode     string          `json:"mode"`
}

// ValidateResponse is §6.3's response shape.
type ValidateResponse struct {
	Valid  bool          `json:"valid"`
	Errors []ErrorDetail `json:"errors"`
}

// ErrorDetail is one §6.3 validation error entry.
type ErrorDetail struct {
	Path     string `json:"path"`
	Message  string `json:"message"`
	RuleID   string `json:"rule_id"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// Validate implements §6.3.
func Validate(requestJSON []byte) []byte {
	var req ValidateRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return mustMarshal(ValidateResponse{Valid: false, Errors: []ErrorDetail{
			{Path: "$", Message: fmt.Sprintf("malformed request: %v", err), RuleID: "request.malformed_json"},
		}})
	}

	var which schema.DocumentType

	switch req.SpecType {
	case "prompt":
		which = schema.PromptSpecDoc
	case "provider":
		which = schema.ProviderSpecDoc
	default:
		return mustMarshal(ValidateResponse{Valid: false, Errors: []ErrorDetail{
			{Path: "$.spec_type", Message: fmt.Sprintf("unknown spec_type %q", req.SpecType), RuleID: "spec_type.unknown"},
		}})
	}

	mode := schema.Mode(req.Mode)
	if mode == "" {
		mode = schema.Basic
	}

	errs := schema.ValidateJSON(req.Spec, which, mode)

	resp := ValidateResponse{Valid: len(errs) == 0, Errors: make([]ErrorDetail, len(errs))}
	for i, e := range errs {
		resp.Errors[i] = ErrorDetail{Path: e.Path, Message: e.Message, RuleID: e.RuleID, Expected: e.Expected, Actual: e.Actual}
	}

	return mustMarshal(resp)
}

func errResponse(err error) TranslateResponse {
	tErr, ok := err.(*translate.Error)
	if !ok {
		return TranslateResponse{Error: &ErrorWire{Kind: string(translate.KindInternal), Message: err.Error()}}
	}

	wire := &ErrorWire{Kind: string(tErr.Kind), Message: tErr.Message}

	if len(tErr.ValidationErrors) > 0 {
		details := make([]map[string]string, len(tErr.ValidationErrors))
		for i, e := range tErr.ValidationErrors {
			details[i] = map[string]string{"path": e.Path, "message": e.Message, "rule_id": e.RuleID}
		}

		wire.Details = map[string]any{"errors": details}
	}

	resp := TranslateResponse{Error: wire}
	if len(tErr.Lossiness) > 0 {
		resp.Lossiness = lossinessWire(tErr.Lossiness, nil)
	}

	return resp
}

func successResponse(result *translate.Result, overrides []RawOverride) TranslateResponse {
	providerJSON, _ := json.Marshal(result.ProviderRequestJSON)

	if len(overrides) > 0 {
		providerJSON = applyRawOverrides(providerJSON, overrides)
	}

	return TranslateResponse{
		ProviderRequestJSON: providerJSON,
		Lossiness:           lossinessWire(result.Lossiness.Items, &result.Lossiness.Summary),
		Metadata: &MetadataWire{
			ProviderName:         result.Metadata.ProviderName,
			ModelID:              result.Metadata.ModelID,
			StrictMode:           string(result.Metadata.StrictMode),
			DurationMicros:       result.Metadata.DurationMicros,
			PipelineStageTimings: result.Metadata.PipelineStageTimings,
		},
	}
}

// lossinessWire converts an accumulated item slice (and, when available,
// its pre-computed Summary) into the §6.1/§6.2 wire shape. summary is nil
// for a partial snapshot attached to an error response, where the
// caller's real interest is the items themselves, not an aggregate.
func lossinessWire(items []lossiness.Item, summary *lossiness.Summary) *LossinessWire {
	wire := &LossinessWire{Items: make([]ItemWire, len(items))}

	for i, it := range items {
		wire.Items[i] = ItemWire{
			Code:          string(it.Code),
			Path:          it.Path,
			Message:       it.Message,
			Before:        it.Before,
			Severity:      string(it.Severity),
			OperationType: string(it.OperationType),
			Metadata:      it.Metadata,
			TimingMicros:  it.TimingMicros,
		}

		if it.HasAfter() {
			wire.Items[i].After = it.After
		}
	}

	if summary != nil {
		bySeverity := make(map[string]int, len(summary.BySeverity))
		for k, v := range summary.BySeverity {
			bySeverity[string(k)] = v
		}

		byCode := make(map[string]int, len(summary.ByCode))
		for k, v := range summary.ByCode {
			byCode[string(k)] = v
		}

		wire.Summary = SummaryWire{BySeverity: bySeverity, ByCode: byCode, Total: summary.Total}
		wire.MaxSeverity = string(summary.MaxSeverity)
	}

	return wire
}

func mustMarshal(v any) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":{"kind":"Internal","message":%q}}`, err.Error()))
	}

	return out
}
