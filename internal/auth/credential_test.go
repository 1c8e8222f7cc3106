package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSigner_IssueとParse(t *testing.T) {
	issuedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	signer := NewSigner(testSecret, WithClock(fixedClock(issuedAt)))

	cred, err := signer.Issue("user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", cred.Subject)
	assert.Equal(t, issuedAt, cred.IssuedAt)
	assert.Equal(t, issuedAt.Add(time.Hour), cred.ExpiresAt)

	subject, err := signer.Parse(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
}

func TestSigner_ペイロードはsubとiatとexpのみ(t *testing.T) {
	signer := NewSigner(testSecret)
	cred, err := signer.Issue("user-1")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(cred.Token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)

	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"sub", "iat", "exp"}, keys)
}

func TestSigner_Parse失敗(t *testing.T) {
	issuedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	signer := NewSigner(testSecret, WithClock(fixedClock(issuedAt)))
	cred, err := signer.Issue("user-1")
	require.NoError(t, err)

	t.Run("有効期間内は期限ぎりぎりでも有効", func(t *testing.T) {
		later := NewSigner(testSecret, WithClock(fixedClock(issuedAt.Add(59*time.Minute))))
		_, err := later.Parse(cred.Token)
		assert.NoError(t, err)
	})

	t.Run("期限切れは署名が正しくてもErrExpired", func(t *testing.T) {
		expired := NewSigner(testSecret, WithClock(fixedClock(issuedAt.Add(time.Hour+time.Second))))
		_, err := expired.Parse(cred.Token)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("異なる秘密鍵の署名はErrInvalid", func(t *testing.T) {
		other := NewSigner("another-secret", WithClock(fixedClock(issuedAt)))
		_, err := other.Parse(cred.Token)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("改ざんされたトークンはErrInvalid", func(t *testing.T) {
		parts := strings.Split(cred.Token, ".")
		require.Len(t, parts, 3)
		tampered := parts[0] + "." + parts[1] + "x." + parts[2]
		_, err := signer.Parse(tampered)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("HS256以外のアルゴリズムは拒否する", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = signer.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("noneアルゴリズムは拒否する", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = signer.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("有効期限のないトークンは拒否する", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = signer.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("subjectのないトークンは拒否する", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = signer.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("形式不正", func(t *testing.T) {
		_, err := signer.Parse("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestSigner_空のsubjectには発行しない(t *testing.T) {
	_, err := NewSigner(testSecret).Issue("")
	assert.Error(t, err)
}
