package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies level names map to zap levels.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("verbose")
	require.False(t, ok)
}

// TestContextLogger checks that helpers log through the context logger.
func TestContextLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "manifest")
	ctx = WithKV(ctx, "study", "ERP125469")

	Infof(ctx, "writing manifest for %s", "ERR4918394")
	WarnKV(ctx, "skipping row", "row", 3)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "writing manifest for ERR4918394", entries[0].Message)
	require.Equal(t, "manifest", entries[0].LoggerName)
	require.Equal(t, "ERP125469", entries[0].ContextMap()["study"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.EqualValues(t, 3, entries[1].ContextMap()["row"])
}

// TestFromContextFallsBackToGlobal checks the global logger is used by default.
func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}
