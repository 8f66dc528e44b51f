package ingest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTrackerBasic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Increment(25)
	tracker.Increment(25)
	tracker.Increment(50)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))

	output := buf.String()
	assert.Contains(t, output, "100/100 files")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "files/s")
}

func TestProgressTrackerFinish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Increment(75)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "100/100 files", "finish forces progress to the total")
	assert.Contains(t, output, "\n", "finish terminates the line")
}

func TestProgressTrackerReportInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1000, 100)

	tracker.Start()

	tracker.Increment(50)
	assert.Empty(t, buf.String(), "no report under the interval")

	tracker.Increment(50)
	assert.NotEmpty(t, buf.String(), "report once the interval is crossed")
}

func TestProgressTrackerIncrementBeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Increment(150)

	assert.Contains(t, buf.String(), "100/100 files", "progress caps at the total")
}

func TestProgressTrackerNotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Increment(10)
	tracker.Finish()

	assert.Empty(t, buf.String(), "silent until Start")
	assert.Zero(t, tracker.Elapsed())
}

func TestProgressTrackerZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 0, 10)

	tracker.Start()
	tracker.Finish()

	assert.Contains(t, buf.String(), "0/0 files")
}

func TestProgressTrackerFormat(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 50, 25)

	tracker.Start()
	tracker.Increment(25)
	tracker.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\r")
	last := lines[len(lines)-1]
	assert.Contains(t, last, "/")
	assert.Contains(t, last, "%")
}
