package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	log, err := New(Config{Level: "debug", Development: true, Name: "oxy"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New(Config{})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestSinkReportsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var messages []string
	s := NewSink(zap.New(core), func(m string) { messages = append(messages, m) })

	boom := errors.New("bind group limit exceeded")
	assert.True(t, s.Error("u13", boom))
	assert.False(t, s.Error("u13", boom))
	assert.True(t, s.Error("u13", errors.New("other")))
	assert.False(t, s.Error("u13", nil))

	assert.True(t, s.Warn("particles", "count 1000 is not a perfect square"))
	assert.False(t, s.Warn("particles", "count 1000 is not a perfect square"))

	require.Len(t, messages, 3)
	assert.Equal(t, "u13: bind group limit exceeded", messages[0])
	assert.Equal(t, "warning: particles: count 1000 is not a perfect square", messages[2])

	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestSinkForget(t *testing.T) {
	count := 0
	s := NewSink(nil, func(string) { count++ })
	err := errors.New("compile failed")

	s.Error("main", err)
	s.Error("main", err)
	s.Forget("main")
	s.Error("main", err)
	assert.Equal(t, 2, count)
}

func TestSinkNilCallback(t *testing.T) {
	s := NewSink(nil, nil)
	assert.True(t, s.Warn("k", "w"))
}
