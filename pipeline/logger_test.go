package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlogLoggerCarriesFlowFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := glog.NewLogger(
		glog.WithWriter(buf),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel("trace"),
	)
	w := newTestWritable(t, newFakeUoW(), newTestManager(), WithLogger(NewGlogLogger(base)))

	_, err := w.PostItem(context.Background(), createNote{Title: "logged"})
	require.NoError(t, err)

	logged := buf.String()
	require.NotEmpty(t, strings.TrimSpace(logged))
	assert.Contains(t, logged, "transaction committed")
	assert.Contains(t, logged, "entity_id")
}

func TestNilLoggerFallsBackToFmtLogger(t *testing.T) {
	o := applyOptions(WithLogger(nil))
	_, ok := o.logger.(*FmtLogger)
	assert.True(t, ok)

	_, ok = NewGlogLogger(nil).(*FmtLogger)
	assert.True(t, ok)
}

func TestFmtLoggerFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := withLoggerFields(NewFmtLogger(buf), map[string]any{"flow": "create", "manager": "notes"})
	logger.Info("stage %s stopped", "before_mapping")

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "stage before_mapping stopped")
	assert.Contains(t, line, "flow=create manager=notes")
}

func TestLoggerPanicReporterWritesStage(t *testing.T) {
	buf := &bytes.Buffer{}
	report := LoggerPanicReporter(NewFmtLogger(buf))

	report("before_mapping", "kaboom", []byte("main.go:1"), map[string]any{"order": 1})

	logged := buf.String()
	assert.Contains(t, logged, "before_mapping hook: kaboom")
	assert.Contains(t, logged, "order: 1")
	assert.Contains(t, logged, "main.go:1")
}

func TestCallHookConvertsPanics(t *testing.T) {
	err := callHook("before_mapping", nil, nil, func() error {
		panic("plain value")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plain value")

	assert.NoError(t, callHook("before_mapping", nil, nil, func() error { return nil }))
}
