package metrics

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setCounter(name string, value, total int64, rate1s float64) {
	countersLock.Lock()
	defer countersLock.Unlock()
	now := time.Now()
	counters[name] = &counter{value: value, total: total, rate1s: rate1s, started: now, windowStart: now}
}

func TestEta(t *testing.T) {
	setCounter("test.eta.running", 25, 125, 10)
	assert.Equal(t, 10*time.Second, Eta("test.eta.running"))

	setCounter("test.eta.finished", 125, 125, 10)
	assert.Equal(t, time.Duration(0), Eta("test.eta.finished"))

	setCounter("test.eta.no-total", 25, 0, 10)
	assert.Equal(t, time.Duration(0), Eta("test.eta.no-total"))

	assert.Equal(t, time.Duration(0), Eta("test.eta.unknown"))
}

func TestSetTotal(t *testing.T) {
	SetTotal("test.total", 40)
	Tick("test.total", 4)

	assert.Equal(t, int64(40), GetTotal("test.total"))
	assert.Equal(t, int64(4), Get("test.total"))
}

func TestPrintProgress(t *testing.T) {
	setCounter("test.progress.embedded", 25, 125, 10)
	setCounter("test.progress.checked", 300, 300, 100)
	setCounter("test.progress.failed", 3, 0, 0)

	buf := &bytes.Buffer{}
	PrintProgress(buf, time.Now(), []Stage{
		{Title: "embedded", Counter: "test.progress.embedded"},
		{Title: "checked", Counter: "test.progress.checked"},
		{Title: "failed", Counter: "test.progress.failed"},
	})
	out := buf.String()

	assert.Contains(t, out, "Running for")
	assert.Contains(t, out, "20.0%")
	assert.Contains(t, out, "10s")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "done")
}

func TestReportProgressStopsWithContext(t *testing.T) {
	setCounter("test.progress.loop", 1, 2, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	buf := &bytes.Buffer{}
	ReportProgress(ctx, buf, 10*time.Millisecond, []Stage{{Title: "loop", Counter: "test.progress.loop"}})
	assert.Contains(t, buf.String(), "Running for")

	buf.Reset()
	ReportProgress(context.Background(), buf, 0, nil)
	assert.Empty(t, buf.String())
}
