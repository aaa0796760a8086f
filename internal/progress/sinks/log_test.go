package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/opinion-crawler/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	err := sink.Consume(context.Background(), []progress.Event{
		{SessionID: "s", Target: "iPhone 15", TS: time.Now(), Stage: progress.StageSessionStart},
		{SessionID: "s", TS: time.Now(), Stage: progress.StageTranslationFailed, Position: 2, URL: "https://x/opinion/2024-01-01/a", Note: "timeout"},
	})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "iPhone 15", entries[0].ContextMap()["target"])
	assert.NotContains(t, entries[0].ContextMap(), "article")
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.EqualValues(t, 2, entries[1].ContextMap()["article"])
	assert.Equal(t, "timeout", entries[1].ContextMap()["note"])
}
