package auth

import (
	"context"
	"net/url"
	"tapearn/entity"
	"tapearn/lib/tgauth"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registrar struct {
	profiles []entity.TelegramProfile
}

func (r *registrar) RegisterTelegramUser(_ context.Context, profile *entity.TelegramProfile) (*entity.User, error) {
	r.profiles = append(r.profiles, *profile)
	return &entity.User{TelegramId: profile.Id, Username: profile.Name()}, nil
}

func TestUserByInitData(t *testing.T) {
	const token = "1:bot-token"
	raw := tgauth.Sign(token, map[string]string{"user": `{"id":99,"first_name":"Eve"}`}, time.Now())

	reg := &registrar{}
	a := New(tgauth.NewVerifier(token, time.Hour), reg)

	user, err := a.UserByInitData(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, int64(99), user.TelegramId)
	assert.Equal(t, "Eve", user.Username)
	require.Len(t, reg.profiles, 1)

	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	values.Set("hash", "00")
	_, err = a.UserByInitData(context.Background(), values.Encode())
	assert.ErrorIs(t, err, tgauth.ErrSignature)
	assert.Len(t, reg.profiles, 1)
}

func TestNotConfigured(t *testing.T) {
	_, err := New(nil, nil).UserByInitData(context.Background(), "x")
	assert.Error(t, err)
}
