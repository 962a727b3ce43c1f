package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("debug", "json", &buf)
	require.NoError(t, err)
	l.Debug("link up", "endpoint", "ws://rover/ws")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "link up", rec["msg"])
	assert.Equal(t, "ws://rover/ws", rec["endpoint"])

	buf.Reset()
	l, err = New("warn", "text", &buf)
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New("loud", "text", &bytes.Buffer{})
	assert.Error(t, err)
	_, err = New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := NewLineWriter(func(s string) { lines = append(lines, s) })
	w.Write([]byte("first\nsec"))
	w.Write([]byte("ond\r\nthird"))
	assert.Equal(t, []string{"first", "second"}, lines)
	w.Write([]byte("\n"))
	assert.Equal(t, "third", lines[len(lines)-1])

	l, err := New("info", "text", w)
	require.NoError(t, err)
	l.Info("recorded", "step", 3)
	assert.True(t, strings.Contains(lines[len(lines)-1], "step=3"))
}
