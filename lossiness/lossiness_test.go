package lossiness_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specado/specado/lossiness"
)

func TestRecordAssignsOrderIndex(t *testing.T) {
	tr := lossiness.New()

	tr.Record(lossiness.CodeClamp, "sampling.temperature", "clamped", 2.5, 2.0, true, lossiness.SeverityInfo, lossiness.OpClamp, nil)
	tr.Record(lossiness.CodeDrop, "tools", "dropped", nil, nil, false, lossiness.SeverityWarning, lossiness.OpDrop, nil)

	items := tr.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0].OrderIndex)
	assert.Equal(t, 1, items[1].OrderIndex)
}

func TestSetAfterOnlyAppliesOnce(t *testing.T) {
	tr := lossiness.New()
	tr.Record(lossiness.CodeClamp, "x", "m", 1, nil, false, lossiness.SeverityInfo, lossiness.OpClamp, nil)

	tr.SetAfter(99)
	tr.SetAfter(100)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 99, items[0].After)
	assert.True(t, items[0].HasAfter())
}

func TestSummaryAggregatesAndTracksMaxSeverity(t *testing.T) {
	tr := lossiness.New()
	tr.Record(lossiness.CodeClamp, "a", "m", nil, nil, false, lossiness.SeverityInfo, lossiness.OpClamp, nil)
	tr.Record(lossiness.CodeDrop, "b", "m", nil, nil, false, lossiness.SeverityWarning, lossiness.OpDrop, nil)
	tr.Record(lossiness.CodeUnsupported, "c", "m", nil, nil, false, lossiness.SeverityError, "", nil)

	s := tr.Summary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.BySeverity[lossiness.SeverityInfo])
	assert.Equal(t, 1, s.BySeverity[lossiness.SeverityWarning])
	assert.Equal(t, 1, s.BySeverity[lossiness.SeverityError])
	assert.Equal(t, lossiness.SeverityError, s.MaxSeverity)
}

func TestEmptyTrackerHasNoneSeverity(t *testing.T) {
	tr := lossiness.New()
	s := tr.Summary()
	assert.Equal(t, lossiness.SeverityNone, s.MaxSeverity)
	assert.Equal(t, 0, s.Total)
}

func TestBeginEndTimingStampsLastItem(t *testing.T) {
	tr := lossiness.New()

	h := tr.BeginTiming()
	tr.Record(lossiness.CodeClamp, "a", "m", nil, nil, false, lossiness.SeverityInfo, lossiness.OpClamp, nil)
	time.Sleep(time.Millisecond)
	tr.EndTiming(h)

	items := tr.Items()
	require.Len(t, items, 1)
	require.NotNil(t, items[0].TimingMicros)
	assert.Greater(t, *items[0].TimingMicros, int64(0))
}

func TestPerformanceReportFiltersAndSorts(t *testing.T) {
	tr := lossiness.New()

	sleeps := []time.Duration{1 * time.Millisecond, 5 * time.Millisecond, 2 * time.Millisecond}
	for i, d := range sleeps {
		h := tr.BeginTiming()
		tr.Record(lossiness.CodePerformanceImpact, "stage", "m", i, nil, false, lossiness.SeverityInfo, "", nil)
		time.Sleep(d)
		tr.EndTiming(h)
	}

	report := tr.PerformanceReport(2, 0)
	require.Len(t, report, 2)
	// The stage that slept 5ms should rank first (index 1 was recorded
	// with Before=1), the stage that slept 2ms second (Before=2).
	assert.Equal(t, 1, report[0].Before)
	assert.Equal(t, 2, report[1].Before)
}
