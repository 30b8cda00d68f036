package core

import (
	"context"
	"io"
	"log/slog"
	"tapearn/entity"
	"tapearn/internal/referral"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type stubReferral struct {
	ReferralService
	rewardsFor primitive.ObjectID
}

func (s *stubReferral) GetUserReferralRewards(_ context.Context, userId primitive.ObjectID) (*entity.UserReferralRewards, error) {
	s.rewardsFor = userId
	return &entity.UserReferralRewards{}, nil
}

func (s *stubReferral) CheckIntegrity(_ context.Context) (*referral.Report, error) {
	return &referral.Report{}, nil
}

type stubGame struct {
	GameService
}

func TestReferralRewardsOwnOnly(t *testing.T) {
	ref := &stubReferral{}
	c := New(ref, &stubGame{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	user := &entity.User{Id: primitive.NewObjectID(), TelegramId: 5}

	_, err := c.ReferralRewards(context.Background(), user, 6)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.True(t, ref.rewardsFor.IsZero())

	_, err = c.ReferralRewards(context.Background(), user, 5)
	require.NoError(t, err)
	assert.Equal(t, user.Id, ref.rewardsFor)
}

func TestAuthenticateWithoutService(t *testing.T) {
	c := New(&stubReferral{}, &stubGame{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.AuthenticateByInitData(context.Background(), "raw")
	assert.Error(t, err)

	report, err := c.CheckIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestNewRequiresServices(t *testing.T) {
	assert.Panics(t, func() { New(nil, &stubGame{}, slog.Default()) })
}
