package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/opinion-crawler/internal/progress"
	"github.com/JakeFAU/opinion-crawler/internal/store"
)

func statusEvent(id string, stage progress.Stage, at time.Time) progress.Event {
	evt := progress.Event{RunID: "run", SessionID: id, Target: "target-" + id, TS: at, Stage: stage}
	switch stage {
	case progress.StageArticleDone, progress.StageArticleSkipped, progress.StageTranslationFailed:
		evt.Position = 1
	}
	return evt
}

func TestStatusSinkFoldsEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sink := NewStatusSink()

	failure := statusEvent("b", progress.StageSessionError, t0.Add(3*time.Second))
	failure.Note = "open browser: refused"
	require.NoError(t, sink.Consume(ctx, []progress.Event{
		statusEvent("a", progress.StageSessionStart, t0),
		statusEvent("b", progress.StageSessionStart, t0.Add(time.Second)),
		statusEvent("a", progress.StageArticleDone, t0.Add(2*time.Second)),
		statusEvent("a", progress.StageTranslationFailed, t0.Add(2*time.Second)),
		statusEvent("a", progress.StageArticleSkipped, t0.Add(2*time.Second)),
		failure,
	}))

	a, err := sink.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, store.RunRunning, a.Status)
	assert.Equal(t, 1, a.Done)
	assert.Equal(t, 1, a.Skipped)
	assert.Equal(t, 1, a.TranslationFailed)
	assert.Nil(t, a.FinishedAt)
	assert.Equal(t, "target-a", a.Target)

	b, err := sink.GetSession(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, store.RunError, b.Status)
	require.NotNil(t, b.FinishedAt)
	require.NotNil(t, b.ErrorMessage)
	assert.Equal(t, "open browser: refused", *b.ErrorMessage)

	require.NoError(t, sink.Consume(ctx, []progress.Event{statusEvent("a", progress.StageSessionDone, t0.Add(5*time.Second))}))
	a, err = sink.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, a.Status)
	assert.Equal(t, t0.Add(5*time.Second), a.LastUpdate)

	_, err = sink.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, sink.Close(ctx))
}

func TestStatusSinkListSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	t0 := time.Now().UTC()
	sink := NewStatusSink()
	require.NoError(t, sink.Consume(ctx, []progress.Event{
		statusEvent("a", progress.StageSessionStart, t0),
		statusEvent("b", progress.StageSessionStart, t0),
		statusEvent("c", progress.StageSessionStart, t0),
		statusEvent("b", progress.StageSessionDone, t0),
	}))

	all, err := sink.ListSessions(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)

	page, err := sink.ListSessions(ctx, nil, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	running := store.RunRunning
	filtered, err := sink.ListSessions(ctx, &running, 10, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "a", filtered[0].ID)
	assert.Equal(t, "c", filtered[1].ID)
}
