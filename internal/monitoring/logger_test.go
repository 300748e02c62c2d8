package monitoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...any) { called = true })
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("nil logger should mute output")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}

func TestOnceReporter(t *testing.T) {
	var lines []string
	r := NewOnceReporter(func(format string, v ...any) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	assert.True(t, r.Report("type:7", "no asset for type %d", 7))
	assert.False(t, r.Report("type:7", "no asset for type %d", 7))
	assert.True(t, r.ReportKey(9, "no asset for type %d", 9))
	assert.False(t, r.ReportKey(9, "no asset for type %d", 9))

	assert.Equal(t, []string{"no asset for type 7", "no asset for type 9"}, lines)
	assert.Equal(t, 2, r.Count("type:7"))

	r.Reset()
	assert.Equal(t, 0, r.Count("type:7"))
	assert.True(t, r.Report("type:7", "again"))
}

func TestOnceReporter_DefaultsToLogf(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	n := 0
	SetLogger(func(string, ...any) { n++ })
	r := NewOnceReporter(nil)
	r.Report("k", "x")
	r.Report("k", "x")
	assert.Equal(t, 1, n)
}

func TestPlaybackMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPlaybackMetrics(reg)

	m.Spawns.Inc()
	m.Spawns.Inc()
	m.Active.Set(2)
	m.ConfigErrors.WithLabelValues("99").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Spawns))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Active))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigErrors.WithLabelValues("99")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestPlaybackMetrics_Unregistered(t *testing.T) {
	a := NewPlaybackMetrics(nil)
	b := NewPlaybackMetrics(nil)
	a.Updates.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Updates))

	var none *PlaybackMetrics
	none.ObserveTick(time.Time{})
}
