package govern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestGovernor(limits Limits) (*Governor, *fakeClock) {
	clock := newFakeClock()
	return New(limits, WithClock(clock.Now)), clock
}

func TestReservePermitsWithinLimits(t *testing.T) {
	g, _ := newTestGovernor(DefaultLimits())

	d := g.Reserve(1, 1000, 0.001)
	assert.Equal(t, VerdictPermit, d.Verdict)
	assert.Zero(t, d.Wait)
}

func TestReserveWaitsOnRequestCeiling(t *testing.T) {
	g, clock := newTestGovernor(Limits{RequestsPerMinute: 3})

	for i := 0; i < 3; i++ {
		require.Equal(t, VerdictPermit, g.Reserve(1, 0, 0).Verdict)
		g.Record(1, 0, 0)
		clock.Advance(time.Second)
	}

	d := g.Reserve(1, 0, 0)
	require.Equal(t, VerdictWait, d.Verdict, "request ceiling must defer, never reject")
	assert.Greater(t, d.Wait, time.Duration(0))
	assert.LessOrEqual(t, d.Wait, time.Minute)

	// After the suggested wait the same reservation succeeds.
	clock.Advance(d.Wait)
	assert.Equal(t, VerdictPermit, g.Reserve(1, 0, 0).Verdict)
}

func TestReserveWaitsOnTokenCeiling(t *testing.T) {
	g, clock := newTestGovernor(Limits{TokensPerMinute: 1000})

	require.Equal(t, VerdictPermit, g.Reserve(1, 900, 0).Verdict)
	g.Record(1, 900, 0)

	d := g.Reserve(1, 200, 0)
	require.Equal(t, VerdictWait, d.Verdict)
	assert.Equal(t, "per-minute token limit", d.Reason)
	assert.LessOrEqual(t, d.Wait, time.Minute)

	clock.Advance(d.Wait)
	assert.Equal(t, VerdictPermit, g.Reserve(1, 200, 0).Verdict)
}

func TestReserveRejectsOnDailyCostCeiling(t *testing.T) {
	g, _ := newTestGovernor(Limits{DailyCostCeiling: 0.10})

	require.Equal(t, VerdictPermit, g.Reserve(1, 0, 0.09).Verdict)
	g.Record(1, 0, 0.09)

	d := g.Reserve(1, 0, 0.02)
	require.Equal(t, VerdictReject, d.Verdict)
	assert.Equal(t, "daily cost ceiling exceeded", d.Reason)
	assert.Zero(t, d.Wait)
}

func TestReserveDoesNotConsumeBudget(t *testing.T) {
	g, _ := newTestGovernor(Limits{RequestsPerMinute: 2})

	// Repeated reservations without Record never exhaust the window.
	for i := 0; i < 10; i++ {
		assert.Equal(t, VerdictPermit, g.Reserve(2, 0, 0).Verdict)
	}
}

func TestRecordUsesActualFigures(t *testing.T) {
	g, _ := newTestGovernor(Limits{TokensPerMinute: 1000})

	// Overestimated reservation followed by a smaller actual leaves room.
	require.Equal(t, VerdictPermit, g.Reserve(1, 950, 0).Verdict)
	g.Record(1, 100, 0)

	assert.Equal(t, VerdictPermit, g.Reserve(1, 850, 0).Verdict)
}

func TestWindowsPruneLazily(t *testing.T) {
	g, clock := newTestGovernor(Limits{RequestsPerMinute: 1, RequestsPerHour: 2})

	g.Record(1, 0, 0)
	require.Equal(t, VerdictWait, g.Reserve(1, 0, 0).Verdict)

	// Past the minute window the entry ages out of the minute window but
	// still counts against the hour.
	clock.Advance(61 * time.Second)
	assert.Equal(t, VerdictPermit, g.Reserve(1, 0, 0).Verdict)
	g.Record(1, 0, 0)

	d := g.Reserve(1, 0, 0)
	require.Equal(t, VerdictWait, d.Verdict)
	assert.Equal(t, "per-hour request limit", d.Reason)
}

func TestCostCeilingResetsNextDay(t *testing.T) {
	g, clock := newTestGovernor(Limits{DailyCostCeiling: 0.10})

	g.Record(1, 0, 0.10)
	require.Equal(t, VerdictReject, g.Reserve(1, 0, 0.01).Verdict)

	clock.Advance(24*time.Hour + time.Second)
	assert.Equal(t, VerdictPermit, g.Reserve(1, 0, 0.01).Verdict)
}

func TestZeroLimitsDisableCeilings(t *testing.T) {
	g, _ := newTestGovernor(Limits{})

	for i := 0; i < 100; i++ {
		require.Equal(t, VerdictPermit, g.Reserve(10, 1_000_000, 100).Verdict)
		g.Record(10, 1_000_000, 100)
	}
}

func TestSetLimitsAppliesToRecordedHistory(t *testing.T) {
	g, _ := newTestGovernor(Limits{RequestsPerMinute: 100})

	for i := 0; i < 5; i++ {
		g.Record(1, 0, 0)
	}
	require.Equal(t, VerdictPermit, g.Reserve(1, 0, 0).Verdict)

	g.SetLimits(Limits{RequestsPerMinute: 5})
	assert.Equal(t, VerdictWait, g.Reserve(1, 0, 0).Verdict)
}

func TestUsageSnapshot(t *testing.T) {
	g, clock := newTestGovernor(DefaultLimits())

	g.Record(1, 500, 0.01)
	clock.Advance(2 * time.Minute)
	g.Record(2, 700, 0.02)

	snap := g.Usage()
	assert.Equal(t, 2, snap.RequestsLastMinute)
	assert.Equal(t, 3, snap.RequestsLastHour)
	assert.Equal(t, 3, snap.RequestsLastDay)
	assert.Equal(t, 700, snap.TokensLastMinute)
	assert.InDelta(t, 0.03, snap.CostLastDay, 1e-9)
}
