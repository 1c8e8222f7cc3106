package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

func TestReconcile_孤立した回答を削除する(t *testing.T) {
	ctx := context.Background()
	s := New()

	alice := storetest.NewUser("alice")
	bob := storetest.NewUser("bob")
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	now := time.Now().UTC()
	q := storetest.NewQuestion(alice, "質問", now)
	require.NoError(t, s.CreateQuestion(ctx, q))
	require.NoError(t, s.CreateAnswer(ctx, storetest.NewAnswer(q, bob, now)))
	require.NoError(t, s.CreateAnswer(ctx, storetest.NewAnswer(q, bob, now)))
	require.NoError(t, s.IncrementUserCounter(ctx, bob.ID, store.CounterAnswersGiven, 2))

	// 回答の連鎖削除を経ずに質問だけを削除する
	require.NoError(t, s.DeleteQuestion(ctx, q.ID))

	res, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.OrphanAnswersDeleted)
	assert.Equal(t, int64(1), res.UsersRepaired)

	got, err := s.GetUserByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.AnswersGiven)
}

func TestStore_取得結果の変更はストアに影響しない(t *testing.T) {
	ctx := context.Background()
	s := New()

	alice := storetest.NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))
	q := storetest.NewQuestion(alice, "質問", time.Now().UTC())
	q.MajorTags = []string{"math"}
	require.NoError(t, s.CreateQuestion(ctx, q))

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	got.MajorTags[0] = "changed"
	got.Views = 100

	again, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"math"}, again.MajorTags)
	assert.Equal(t, int64(0), again.Views)
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	s := New()

	alice := storetest.NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))
	s.DeleteUser(alice.ID)

	_, err := s.GetUserByID(ctx, alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
