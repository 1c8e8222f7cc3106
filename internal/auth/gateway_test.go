package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/campusqa/internal/apperror"
	"github.com/nao1215/campusqa/internal/logging"
	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/internal/store/memstore"
)

func newTestGateway(t *testing.T) (*Gateway, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	gw := NewGateway(s, NewSigner(testSecret), NewBcryptHasher(bcrypt.MinCost), logging.Discard())
	return gw, s
}

func validRegister(name string) RegisterInput {
	return RegisterInput{
		Username:   name,
		Email:      name + "@Example.AC.jp",
		Password:   "password123",
		University: "Tokyo Tech",
		Major:      "CS",
		Year:       2,
	}
}

func TestGateway_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("登録した資格情報は本人に解決される", func(t *testing.T) {
		gw, s := newTestGateway(t)

		sess, err := gw.Register(ctx, validRegister("alice"))
		require.NoError(t, err)
		assert.NotEmpty(t, sess.Token)
		assert.Equal(t, "alice@example.ac.jp", sess.User.Email, "メールアドレスは小文字で保存する")
		assert.True(t, sess.User.IsVerified)
		assert.Equal(t, int64(0), sess.User.QuestionsAsked)

		p, err := gw.Verify(ctx, sess.Token)
		require.NoError(t, err)
		assert.Equal(t, sess.User.ID, p.ID)

		u, err := s.GetUserByID(ctx, sess.User.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "password123", u.PasswordDigest, "平文は保存しない")
	})

	t.Run("ユーザー名の重複はDuplicateIdentity", func(t *testing.T) {
		gw, _ := newTestGateway(t)
		_, err := gw.Register(ctx, validRegister("alice"))
		require.NoError(t, err)

		in := validRegister("alice")
		in.Email = "other@example.ac.jp"
		_, err = gw.Register(ctx, in)
		assert.Equal(t, apperror.KindDuplicateIdentity, apperror.KindOf(err))
		assert.Equal(t, apperror.ReasonDuplicateIdentity, apperror.ReasonOf(err))
	})

	t.Run("メールアドレスの重複は大文字小文字を区別しない", func(t *testing.T) {
		gw, _ := newTestGateway(t)
		_, err := gw.Register(ctx, validRegister("alice"))
		require.NoError(t, err)

		in := validRegister("alice2")
		in.Email = "ALICE@example.ac.jp"
		_, err = gw.Register(ctx, in)
		assert.Equal(t, apperror.KindDuplicateIdentity, apperror.KindOf(err))
	})

	t.Run("確認後の挿入で重複した場合もDuplicateIdentity", func(t *testing.T) {
		s := &racingUsers{UserStore: memstore.New()}
		gw := NewGateway(s, NewSigner(testSecret), NewBcryptHasher(bcrypt.MinCost), logging.Discard())

		_, err := gw.Register(ctx, validRegister("alice"))
		assert.Equal(t, apperror.KindDuplicateIdentity, apperror.KindOf(err))
	})

	tests := []struct {
		name       string
		modify     func(*RegisterInput)
		wantReason apperror.Reason
	}{
		{name: "ユーザー名が短い", modify: func(in *RegisterInput) { in.Username = "ab" }},
		{name: "メールアドレスの形式不正", modify: func(in *RegisterInput) { in.Email = "not-an-email" }},
		{name: "パスワードが短い", modify: func(in *RegisterInput) { in.Password = "12345" }},
		{name: "学年が範囲外", modify: func(in *RegisterInput) { in.Year = 11 }},
		{
			name:       "大学が未設定",
			modify:     func(in *RegisterInput) { in.University = "  " },
			wantReason: apperror.ReasonMissingUniversity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, _ := newTestGateway(t)
			in := validRegister("alice")
			tt.modify(&in)

			_, err := gw.Register(ctx, in)
			assert.Equal(t, apperror.KindInvalidInput, apperror.KindOf(err))
			assert.Equal(t, tt.wantReason, apperror.ReasonOf(err))
		})
	}
}

func TestGateway_Login(t *testing.T) {
	ctx := context.Background()
	gw, _ := newTestGateway(t)
	registered, err := gw.Register(ctx, validRegister("alice"))
	require.NoError(t, err)

	t.Run("正しいパスワードでログインできる", func(t *testing.T) {
		sess, err := gw.Login(ctx, LoginInput{Email: "ALICE@example.ac.jp", Password: "password123"})
		require.NoError(t, err)
		assert.Equal(t, registered.User.ID, sess.User.ID)

		p, err := gw.Verify(ctx, sess.Token)
		require.NoError(t, err)
		assert.Equal(t, registered.User.ID, p.ID)
	})

	t.Run("存在しないメールアドレスと誤ったパスワードは区別できない", func(t *testing.T) {
		_, errUnknown := gw.Login(ctx, LoginInput{Email: "nobody@example.ac.jp", Password: "password123"})
		_, errWrong := gw.Login(ctx, LoginInput{Email: "alice@example.ac.jp", Password: "wrong-pass"})

		for _, err := range []error{errUnknown, errWrong} {
			assert.Equal(t, apperror.KindUnauthenticated, apperror.KindOf(err))
			assert.Equal(t, apperror.ReasonInvalidCredentials, apperror.ReasonOf(err))
		}
		assert.Equal(t, errUnknown.Error(), errWrong.Error())
	})

	t.Run("必須項目の欠落", func(t *testing.T) {
		_, err := gw.Login(ctx, LoginInput{Email: "alice@example.ac.jp"})
		assert.Equal(t, apperror.KindInvalidInput, apperror.KindOf(err))
	})
}

func TestGateway_Authenticate(t *testing.T) {
	ctx := context.Background()
	gw, s := newTestGateway(t)
	sess, err := gw.Register(ctx, validRegister("alice"))
	require.NoError(t, err)

	t.Run("Bearerトークンを検証してプリンシパルを返す", func(t *testing.T) {
		p, err := gw.Authenticate(ctx, "Bearer "+sess.Token)
		require.NoError(t, err)
		assert.Equal(t, "alice", p.Username)
	})

	missing := []string{"", "Bearer ", "Basic abc", sess.Token}
	for _, header := range missing {
		t.Run("資格情報がない: "+header, func(t *testing.T) {
			_, err := gw.Authenticate(ctx, header)
			assert.Equal(t, apperror.KindUnauthenticated, apperror.KindOf(err))
			assert.Equal(t, apperror.ReasonMissingCredential, apperror.ReasonOf(err))
		})
	}

	t.Run("署名不正", func(t *testing.T) {
		_, err := gw.Authenticate(ctx, "Bearer "+sess.Token+"x")
		assert.Equal(t, apperror.KindUnauthenticated, apperror.KindOf(err))
		assert.Equal(t, apperror.ReasonInvalidSignatureOrExpired, apperror.ReasonOf(err))
	})

	t.Run("期限切れ", func(t *testing.T) {
		old := NewSigner(testSecret, WithClock(fixedClock(time.Now().Add(-2*time.Hour))))
		cred, err := old.Issue(sess.User.ID)
		require.NoError(t, err)

		_, err = gw.Authenticate(ctx, "Bearer "+cred.Token)
		assert.Equal(t, apperror.ReasonInvalidSignatureOrExpired, apperror.ReasonOf(err))
	})

	t.Run("削除されたユーザーはPrincipalNotFound", func(t *testing.T) {
		s.DeleteUser(sess.User.ID)
		_, err := gw.Authenticate(ctx, "Bearer "+sess.Token)
		assert.Equal(t, apperror.KindUnauthenticated, apperror.KindOf(err))
		assert.Equal(t, apperror.ReasonPrincipalNotFound, apperror.ReasonOf(err))
	})
}

func TestGateway_Verify_ストア障害はUnexpected(t *testing.T) {
	ctx := context.Background()
	users := &failingUsers{UserStore: memstore.New()}
	gw := NewGateway(users, NewSigner(testSecret), NewBcryptHasher(bcrypt.MinCost), logging.Discard())

	sess, err := gw.Register(ctx, validRegister("alice"))
	require.NoError(t, err)

	users.fail.Store(true)
	_, err = gw.Verify(ctx, sess.Token)
	assert.Equal(t, apperror.KindUnexpected, apperror.KindOf(err))
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	_, ok = BearerToken("bearer abc")
	assert.False(t, ok)
}

// racingUsers は確認時には存在せず、挿入時に重複するストア。
type racingUsers struct {
	store.UserStore
}

func (r *racingUsers) CreateUser(context.Context, *model.User) error {
	return store.ErrDuplicate
}

// failingUsers はfailが立っている間、ID検索を失敗させる。
type failingUsers struct {
	store.UserStore
	fail atomic.Bool
}

func (f *failingUsers) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if f.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return f.UserStore.GetUserByID(ctx, id)
}
