package oteladapters_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"

	"github.com/AntonStoeckl/subsystem-go/oteladapters"
	"github.com/AntonStoeckl/subsystem-go/testutil/helper"
)

type recordingLogger struct {
	embedded.Logger
	records []log.Record
}

func (l *recordingLogger) Emit(_ context.Context, record log.Record) {
	l.records = append(l.records, record)
}

func (l *recordingLogger) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}

func Test_OTelLogger_EmitsTypedAttributes(t *testing.T) {
	// arrange
	recorder := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(recorder)

	// act
	logger.WarnContext(context.Background(), "error stage failed",
		"route", "hello", "code", 500, "unhandled", true, "error", errors.New("boom"), "dangling")

	// assert
	assert.Len(t, recorder.records, 1)
	record := recorder.records[0]
	assert.Equal(t, log.SeverityWarn, record.Severity())
	assert.Equal(t, "error stage failed", record.Body().AsString())

	attrs := map[string]log.Value{}
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	assert.Len(t, attrs, 4)
	assert.Equal(t, "hello", attrs["route"].AsString())
	assert.Equal(t, int64(500), attrs["code"].AsInt64())
	assert.True(t, attrs["unhandled"].AsBool())
	assert.Equal(t, "boom", attrs["error"].AsString())
}

func Test_FanoutLogger_KeepsLocalOutput(t *testing.T) {
	// arrange
	spy := helper.NewLogHandlerSpy(false)
	logger := oteladapters.NewFanoutLogger("test", spy)

	// act
	logger.Info("server bootstrapped", "routes", 3)

	// assert
	assert.True(t, spy.HasLog(slog.LevelInfo, "server bootstrapped"))
}

func Test_SlogBridgeLogger_IsUsableWithoutProvider(t *testing.T) {
	// arrange
	logger := oteladapters.NewSlogBridgeLogger("test")

	// act
	emit := func() { logger.InfoContext(context.Background(), "no provider installed", "routes", 1) }

	// assert
	assert.NotPanics(t, emit)
}
