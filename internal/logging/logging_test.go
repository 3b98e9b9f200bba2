package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/palantir/contact-enrichment/internal/logging"
)

func TestNew(t *testing.T) {
	log, err := logging.New("debug", true)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = logging.New("", false)
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))

	_, err = logging.New("chatty", false)
	require.Error(t, err)
}

func TestReporter_ScrubsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := logging.NewReporter(zap.New(core))

	r.Report(context.Background(), "Error in resolver gemini: Bearer abc123 rejected", map[string]any{
		"resolver":       "gemini",
		"detail":         "api_key=sk-1",
		"httpStatusCode": 401,
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, zapcore.ErrorLevel, e.Level)
	assert.Equal(t, "report", e.LoggerName)
	assert.Equal(t, "Error in resolver gemini: Bearer <redacted> rejected", e.Message)

	ctx := e.ContextMap()
	assert.Equal(t, "gemini", ctx["resolver"])
	assert.Equal(t, "<redacted_kv>", ctx["detail"])
	assert.EqualValues(t, 401, ctx["httpStatusCode"])
}
