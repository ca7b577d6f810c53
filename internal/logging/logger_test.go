package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"Warn", WARN, false},
		{"error", ERROR, false},
		{"FATAL", FATAL, false},
		{"verbose", -1, true},
		{"", -1, true},
	}

	for _, tt := range tests {
		level, err := parseLevel(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, level)
	}
}

func TestPackageLogLevels(t *testing.T) {
	defer func() { _ = SetPackageLogLevels(map[string]string{}) }()

	err := SetPackageLogLevels(map[string]string{
		"agent.loop": "debug",
		"agent.*":    "warn",
		"apiserver":  "error",
	})
	require.NoError(t, err)

	// Exact match wins over wildcard.
	assert.Equal(t, DEBUG, GetPackageLogLevel("agent.loop"))
	// Wildcard covers siblings.
	assert.Equal(t, WARN, GetPackageLogLevel("agent.tools"))
	assert.Equal(t, ERROR, GetPackageLogLevel("apiserver"))
	// Unconfigured packages report no override.
	assert.Equal(t, LogLevel(-1), GetPackageLogLevel("format"))
}

func TestSetPackageLogLevelsInvalid(t *testing.T) {
	err := SetPackageLogLevels(map[string]string{"agent.loop": "loud"})
	assert.Error(t, err)
}

func TestWithFieldImmutability(t *testing.T) {
	base := GetLogger("test")
	child := base.WithField("request_id", "abc-123")

	assert.Empty(t, base.fields)
	assert.Equal(t, "abc-123", child.fields["request_id"])

	grandchild := child.WithField("iteration", 2)
	assert.Len(t, child.fields, 1)
	assert.Len(t, grandchild.fields, 2)
}

func TestWithContextExtractsTraceFields(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey(), "trace-1")
	ctx = context.WithValue(ctx, SpanIDKey(), "span-2")

	fields := extractContextFields(ctx)
	require.NotNil(t, fields)
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "span-2", fields["span_id"])

	assert.Nil(t, extractContextFields(context.Background()))
	assert.Nil(t, extractContextFields(nil))
}

func TestContextWithTraceAttachesIDs(t *testing.T) {
	ctx := ContextWithTrace(context.Background(), "trace-1", "span-2")

	fields := extractContextFields(ctx)
	require.NotNil(t, fields)
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "span-2", fields["span_id"])

	// empty IDs are not attached
	assert.Nil(t, extractContextFields(ContextWithTrace(context.Background(), "", "")))
}

func TestShouldLogRespectsOverrides(t *testing.T) {
	defer func() { _ = SetPackageLogLevels(map[string]string{}) }()

	require.NoError(t, Initialize("info"))
	require.NoError(t, SetPackageLogLevels(map[string]string{"quiet": "error"}))

	quiet := GetLogger("quiet")
	assert.False(t, quiet.shouldLog(INFO))
	assert.True(t, quiet.shouldLog(ERROR))

	normal := GetLogger("normal")
	assert.True(t, normal.shouldLog(INFO))
	assert.False(t, normal.shouldLog(DEBUG))
}
