package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/campusqa/internal/config"
	"github.com/nao1215/campusqa/internal/logging"
)

func testConfig(driver, dsn string) *config.Config {
	return &config.Config{
		Env:         "test",
		Port:        "0",
		DBDriver:    driver,
		DatabaseDSN: dsn,
		JWTSecret:   "test-secret",
		BcryptCost:  4,
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		driver string
	}{
		{name: "メモリストア", driver: "memory"},
		{name: "SQLite", driver: "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dsn := "file:" + filepath.Join(t.TempDir(), "app.db")
			a, err := New(context.Background(), testConfig(tt.driver, dsn), logging.Discard())
			require.NoError(t, err)
			t.Cleanup(func() { a.Close() })

			w := httptest.NewRecorder()
			a.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, w.Code)

			report, err := a.Reconcile(context.Background())
			require.NoError(t, err)
			assert.Zero(t, report.OrphanAnswersDeleted)
		})
	}
}

func TestOpenStore_未対応のドライバ(t *testing.T) {
	t.Parallel()

	_, _, err := OpenStore(context.Background(), testConfig("mysql", ""))
	assert.Error(t, err)
}

func TestRun_キャンセルで停止すること(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig("memory", ""), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Runが停止しない")
	}
}
