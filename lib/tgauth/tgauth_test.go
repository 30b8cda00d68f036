package tgauth

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botToken = "123456:TEST-token"

func initData(authDate time.Time, user string) string {
	payload := map[string]string{"query_id": "AAH"}
	if user != "" {
		payload["user"] = user
	}
	return Sign(botToken, payload, authDate)
}

func TestVerify(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	v := NewVerifier(botToken, 24*time.Hour)

	t.Run("valid", func(t *testing.T) {
		raw := initData(now.Add(-time.Hour), `{"id":42,"first_name":"Ann","username":"ann","language_code":"en"}`)
		data, err := v.Verify(raw)
		require.NoError(t, err)
		assert.Equal(t, int64(42), data.User.Id)
		assert.Equal(t, "ann", data.User.Username)
		assert.Equal(t, "Ann", data.User.FirstName)
		assert.Equal(t, "en", data.User.LanguageCode)
		assert.Equal(t, "AAH", data.QueryId)
		assert.True(t, now.Add(-time.Hour).Equal(data.AuthDate))
	})

	t.Run("tampered", func(t *testing.T) {
		values, err := url.ParseQuery(initData(now, `{"id":42}`))
		require.NoError(t, err)
		values.Set("user", `{"id":43}`)
		_, err = v.Verify(values.Encode())
		assert.ErrorIs(t, err, ErrSignature)
	})

	t.Run("other bot", func(t *testing.T) {
		raw := initData(now, `{"id":42}`)
		_, err := NewVerifier("654321:OTHER", time.Hour).Verify(raw)
		assert.ErrorIs(t, err, ErrSignature)
	})

	t.Run("expired", func(t *testing.T) {
		raw := initData(now.Add(-25*time.Hour), `{"id":42}`)
		_, err := v.Verify(raw)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("no user", func(t *testing.T) {
		_, err := v.Verify(initData(now, ""))
		assert.ErrorIs(t, err, ErrNoUser)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := v.Verify("")
		assert.ErrorIs(t, err, ErrMissing)
	})

	t.Run("no hash", func(t *testing.T) {
		_, err := v.Verify("auth_date=1&user=%7B%7D")
		assert.ErrorIs(t, err, ErrSignature)
	})
}

func TestVerifyWithoutMaxAge(t *testing.T) {
	v := NewVerifier(botToken, 0)
	data, err := v.Verify(initData(time.Unix(1000, 0), `{"id":7}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), data.User.Id)
}
