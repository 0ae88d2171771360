package strictness_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/strictness"
)

func TestParseModeDefaultsToWarn(t *testing.T) {
	m, ok := strictness.ParseMode("")
	require.True(t, ok)
	assert.Equal(t, strictness.Warn, m)
}

func TestParseModeRejectsUnknown(t *testing.T) {
	_, ok := strictness.ParseMode("Aggressive")
	assert.False(t, ok)
}

func TestStrictFailsOnFatalCodes(t *testing.T) {
	d := strictness.Adjudicate(strictness.Strict, lossiness.CodeClamp, lossiness.SeverityInfo, true)
	assert.True(t, d.Fatal)
}

func TestStrictDoesNotTreatPerformanceImpactAsFatal(t *testing.T) {
	d := strictness.Adjudicate(strictness.Strict, lossiness.CodePerformanceImpact, lossiness.SeverityWarning, false)
	assert.False(t, d.Fatal)
}

func TestWarnElevatesDropSeverity(t *testing.T) {
	d := strictness.Adjudicate(strictness.Warn, lossiness.CodeDrop, lossiness.SeverityInfo, false)
	assert.False(t, d.Fatal)
	assert.Equal(t, lossiness.SeverityWarning, d.Severity)
}

func TestWarnLeavesNonDropSeverityAlone(t *testing.T) {
	d := strictness.Adjudicate(strictness.Warn, lossiness.CodeRelocate, lossiness.SeverityInfo, false)
	assert.Equal(t, lossiness.SeverityInfo, d.Severity)
}

func TestCoerceClampsNumericRangeViolations(t *testing.T) {
	d := strictness.Adjudicate(strictness.Coerce, lossiness.CodeClamp, lossiness.SeverityWarning, true)
	assert.False(t, d.Fatal)
	assert.True(t, d.Clamp)
	assert.Equal(t, lossiness.SeverityInfo, d.Severity)
}

func TestCoerceBehavesLikeWarnForOtherCodes(t *testing.T) {
	d := strictness.Adjudicate(strictness.Coerce, lossiness.CodeUnsupported, lossiness.SeverityInfo, false)
	assert.False(t, d.Fatal)
	assert.Equal(t, lossiness.SeverityWarning, d.Severity)
}

func TestIsFatalCode(t *testing.T) {
	assert.True(t, strictness.IsFatalCode(lossiness.CodeConflict))
	assert.False(t, strictness.IsFatalCode(lossiness.CodePerformanceImpact))
	assert.False(t, strictness.IsFatalCode(lossiness.CodeMapFallback))
}

func TestRecordAppendsAtAdjudicatedSeverityAndReportsFatal(t *testing.T) {
	tr := lossiness.New()

	item, fatal := strictness.Record(tr, strictness.Strict, lossiness.CodeDrop,
		"sampling.temperature", "required field absent", "1.0", nil, false,
		lossiness.OpDrop, nil, false)

	require.True(t, fatal)
	assert.Equal(t, lossiness.SeverityWarning, item.Severity)
	assert.Equal(t, 1, tr.Len())
}

func TestRecordSeverityHonorsProposedSeverity(t *testing.T) {
	tr := lossiness.New()

	item, fatal := strictness.RecordSeverity(tr, strictness.Warn, lossiness.CodePerformanceImpact,
		lossiness.SeverityWarning, "tools[0]", "schema exceeds limit", nil, nil, false,
		lossiness.OpClamp, nil, false)

	assert.False(t, fatal)
	assert.Equal(t, lossiness.SeverityWarning, item.Severity)
}
