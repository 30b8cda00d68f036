package tgauth

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"tapearn/entity"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

var (
	ErrMissing   = errors.New("init data is empty")
	ErrSignature = errors.New("init data signature mismatch")
	ErrExpired   = errors.New("init data expired")
	ErrNoUser    = errors.New("init data has no user")
)

// InitData is the verified payload a Telegram Mini App passes to its backend.
type InitData struct {
	User       entity.TelegramProfile
	AuthDate   time.Time
	QueryId    string
	StartParam string
}

// Verifier checks Telegram WebApp init data signed with the bot token.
// A zero maxAge disables the auth_date expiry check.
type Verifier struct {
	token  string
	maxAge time.Duration
}

func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	return &Verifier{
		token:  botToken,
		maxAge: maxAge,
	}
}

func (v *Verifier) Verify(raw string) (*InitData, error) {
	if raw == "" {
		return nil, ErrMissing
	}
	if err := initdata.Validate(raw, v.token, v.maxAge); err != nil {
		switch {
		case errors.Is(err, initdata.ErrExpired):
			return nil, ErrExpired
		case errors.Is(err, initdata.ErrSignMissing), errors.Is(err, initdata.ErrSignInvalid):
			return nil, ErrSignature
		}
		return nil, fmt.Errorf("validate init data: %w", err)
	}

	parsed, err := initdata.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}
	if parsed.User.ID <= 0 {
		return nil, ErrNoUser
	}
	return &InitData{
		User: entity.TelegramProfile{
			Id:           parsed.User.ID,
			Username:     parsed.User.Username,
			FirstName:    parsed.User.FirstName,
			LastName:     parsed.User.LastName,
			LanguageCode: parsed.User.LanguageCode,
			PhotoUrl:     parsed.User.PhotoURL,
		},
		AuthDate:   parsed.AuthDate().UTC(),
		QueryId:    parsed.QueryID,
		StartParam: parsed.StartParam,
	}, nil
}

// Sign builds init data the way Telegram does for payload signed at authDate;
// used to build fixtures for the mini app and tests.
func Sign(botToken string, payload map[string]string, authDate time.Time) string {
	values := url.Values{}
	for k, val := range payload {
		values.Set(k, val)
	}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("hash", initdata.Sign(payload, botToken, authDate))
	return values.Encode()
}
