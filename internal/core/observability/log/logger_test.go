package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"":        LevelInfo,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"fatal":   LevelFatal,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevel_UnmarshalText(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("warn")))
	assert.Equal(t, LevelWarn, l)

	text, err := l.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "warn", string(text))
}

func TestLogger_LevelIsSharedWithChildren(t *testing.T) {
	logger := NewNop()
	child := logger.With(String("component", "test"))

	logger.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, logger.GetLevel())
	assert.Equal(t, LevelDebug, child.GetLevel())

	child.SetLevel(LevelError)
	assert.Equal(t, LevelError, logger.GetLevel())
}

func TestToZapFields(t *testing.T) {
	fields := toZapFields(
		Bool("b", true),
		Duration("d", time.Second),
		Float64("f", 1.5),
		Int("i", 3),
		Int64("i64", 4),
		String("s", "x"),
		Uint64("u64", 5),
		Uint32("u32", 6),
		Error(errors.New("boom")),
		Any("any", []int{1}),
	)
	require.Len(t, fields, 10)
	assert.Equal(t, zap.Bool("b", true), fields[0])
	assert.Equal(t, zap.Uint32("u32", 6), fields[7])
	assert.Equal(t, "error", fields[8].Key)
}
