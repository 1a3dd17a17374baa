package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/brokenlinks/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	id := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SessionID: id, TS: now, Stage: progress.StageCrawlStart},
		{SessionID: id, TS: now, Stage: progress.StagePageVisit, URL: "http://x.test/", Visited: 1, PageLimit: 5},
		{
			SessionID:   id,
			TS:          now,
			Stage:       progress.StageBrokenResource,
			URL:         "http://x.test/a.png",
			Referrer:    "http://x.test/",
			StatusCode:  404,
			StatusClass: progress.Status4xx,
		},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)

	ctx := entries[2].ContextMap()
	require.Equal(t, uuid.UUID(id).String(), ctx["session_id"])
	require.Equal(t, "http://x.test/a.png", ctx["url"])
	require.Equal(t, "http://x.test/", ctx["referrer"])
	require.EqualValues(t, 404, ctx["status"])
	require.EqualValues(t, 5, entries[1].ContextMap()["page_limit"])
}

func TestLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{Stage: progress.StageDiagnostic}}))
}
