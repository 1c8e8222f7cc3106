package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/campusqa/internal/reconcile"
)

func TestRun_ローカルのストアに対して実行できること(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", "file:"+filepath.Join(t.TempDir(), "reconcile.db"))
	t.Setenv("RECONCILE_INTERVAL", "0")

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), nil, &stdout, io.Discard))

	var report reconcile.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.False(t, report.FinishedAt.IsZero())
}

func TestRun_リモートの内部APIを呼び出すこと(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Admin-Token")
		assert.Equal(t, "/api/v1/internal/reconcile", r.URL.Path)
		_, _ = io.WriteString(w, `{"repairsReplayed":2,"repairsFailed":0,"orphanAnswersDeleted":1,"usersRepaired":0,"questionsRepaired":1}`)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("ADMIN_TOKEN", "secret")

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-remote", srv.URL}, &stdout, io.Discard))

	var report reconcile.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, 2, report.RepairsReplayed)
	assert.Equal(t, int64(1), report.OrphanAnswersDeleted)
}

func TestRun_リモート指定でトークンがなければ失敗すること(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("ADMIN_TOKEN", "")

	err := run(context.Background(), []string{"-remote", "http://localhost:1"}, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "ADMIN_TOKEN")
}
