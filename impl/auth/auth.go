package auth

import (
	"context"
	"fmt"
	"tapearn/entity"
	"tapearn/lib/tgauth"
)

type Registrar interface {
	RegisterTelegramUser(ctx context.Context, profile *entity.TelegramProfile) (*entity.User, error)
}

type Verifier interface {
	Verify(raw string) (*tgauth.InitData, error)
}

// Auth turns Mini App init data into a registered player.
type Auth struct {
	verifier Verifier
	users    Registrar
}

func New(verifier Verifier, users Registrar) *Auth {
	return &Auth{verifier: verifier, users: users}
}

func (a *Auth) UserByInitData(ctx context.Context, raw string) (*entity.User, error) {
	if a.verifier == nil || a.users == nil {
		return nil, fmt.Errorf("authentication not configured")
	}
	data, err := a.verifier.Verify(raw)
	if err != nil {
		return nil, err
	}
	return a.users.RegisterTelegramUser(ctx, &data.User)
}
