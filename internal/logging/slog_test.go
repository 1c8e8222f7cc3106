package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("JSON形式でキーと値が出力されること", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		l := New("info", "json", &buf)
		l.With("component", "test").Info(context.Background(), "起動", "port", "8080")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "起動", rec["msg"])
		assert.Equal(t, "8080", rec["port"])
		assert.Equal(t, "test", rec["component"])
	})

	t.Run("レベル未満のメッセージは出力されないこと", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		l := New("warn", "text", &buf)
		l.Info(context.Background(), "出力されない")
		l.Debug(context.Background(), "出力されない")
		assert.Empty(t, buf.String())

		l.Warn(context.Background(), "出力される")
		assert.Contains(t, buf.String(), "出力される")
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("unknown"))
}
