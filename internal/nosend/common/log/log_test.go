package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapLogger_PanicLevelPanics(t *testing.T) {
	Debug(map[string]any{"list": "1/42", "rules": 3}, "evaluating rule set")
	Info(nil, "test info")
	Warn(nil, "test warn")
	Error(nil, "test error")

	assert.Panics(t, func() { Panic(nil, "test panic") })
}

func TestSetLoggerAndGlobalLogging(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	rec := NewRecorder()
	SetLogger(rec)

	Info(map[string]any{"k": 1}, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")
	Panic(nil, "panic msg")
	Fatal(nil, "fatal msg")

	entries := rec.Entries()
	require.Len(t, entries, 6)
	assert.Equal(t, Entry{Level: "info", Msg: "info msg", Fields: map[string]any{"k": 1}}, entries[0])
	assert.Equal(t, "error", entries[1].Level)
	assert.Equal(t, "debug", entries[2].Level)
	assert.Equal(t, "warn", entries[3].Level)
	assert.Equal(t, "panic", entries[4].Level)
	assert.Equal(t, "fatal", entries[5].Level)
	assert.Equal(t, 1, rec.Count("warn"))
}

func TestConfigure(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	cases := []struct {
		env, level string
		wantErr    bool
	}{
		{"dev", "debug", false},
		{"prod", "INFO", false},
		{"prod", "warn", false},
		{"dev", "error", false},
		{"prod", "loud", true},
	}
	for _, tc := range cases {
		err := Configure(tc.env, tc.level)
		if tc.wantErr {
			assert.Error(t, err, "level %q", tc.level)
			continue
		}
		require.NoError(t, err, "level %q", tc.level)
		assert.NotNil(t, GetLogger())
	}
}

func TestNoopLogger(t *testing.T) {
	l := NewNoopLogger()
	assert.NotPanics(t, func() {
		l.Info(nil, "x")
		l.Error(nil, "x")
		l.Debug(nil, "x")
		l.Warn(nil, "x")
		l.Panic(nil, "x")
		l.Fatal(nil, "x")
	})
}

func TestZapFields(t *testing.T) {
	assert.Len(t, zapFields(nil), 0)
	assert.Len(t, zapFields(map[string]any{"a": 1, "b": "two"}), 2)
}
