package database

import (
	"context"
	"errors"
	"tapearn/entity"
	"tapearn/internal/gameplay"
	"tapearn/internal/referral"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ referral.Store      = (*MongoDB)(nil)
	_ referral.Tx         = (*mongoTx)(nil)
	_ gameplay.Repository = (*MongoDB)(nil)
)

func afterUpdate() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func (m *MongoDB) UpsertTelegramUser(ctx context.Context, profile *entity.TelegramProfile, at time.Time) (*entity.User, error) {
	filter := bson.D{{"telegram_id", profile.Id}}
	update := bson.D{
		{"$set", bson.D{
			{"username", profile.Name()},
			{"first_name", profile.FirstName},
			{"last_name", profile.LastName},
			{"language_code", profile.LanguageCode},
			{"photo_url", profile.PhotoUrl},
			{"updated_at", at},
		}},
		{"$setOnInsert", bson.D{
			{"telegram_id", profile.Id},
			{"xp", int64(0)},
			{"compute", int64(0)},
			{"compute_power", int64(1)},
			{"total_taps", int64(0)},
			{"check_in_streak", 0},
			{"referrals", bson.A{}},
			{"total_referral_xp", int64(0)},
			{"total_referral_rewards", int64(0)},
			{"created_at", at},
		}},
	}
	opts := afterUpdate().SetUpsert(true)

	var user entity.User
	err := m.collection(collectionUsers).FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	if mongo.IsDuplicateKeyError(err) {
		// two first contacts raced on the upsert; the loser updates the winner's document
		err = m.collection(collectionUsers).FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	}
	if err != nil {
		return nil, storeError("upsert user", err)
	}
	return &user, nil
}

func (m *MongoDB) UserByTelegramId(ctx context.Context, telegramId int64) (*entity.User, error) {
	var user entity.User
	err := m.collection(collectionUsers).FindOne(ctx, bson.D{{"telegram_id", telegramId}}).Decode(&user)
	if err != nil {
		return nil, m.findError(err)
	}
	return &user, nil
}

func (m *MongoDB) AddTaps(ctx context.Context, userId primitive.ObjectID, xp, taps int64, at time.Time) (*entity.User, error) {
	update := bson.D{
		{"$inc", bson.D{
			{"xp", xp},
			{"compute", xp},
			{"total_taps", taps},
		}},
		{"$set", bson.D{
			{"last_tap_time", at},
			{"updated_at", at},
		}},
	}
	return m.findAndUpdateUser(ctx, bson.D{{"_id", userId}}, update)
}

func (m *MongoDB) ClaimDaily(ctx context.Context, userId primitive.ObjectID, xp int64, at time.Time) (*entity.User, error) {
	filter := bson.D{
		{"_id", userId},
		{"$or", bson.A{
			bson.D{{"last_daily_claim", nil}},
			bson.D{{"last_daily_claim", bson.D{{"$lte", at.Add(-entity.DailyClaimInterval)}}}},
		}},
	}
	update := bson.D{
		{"$inc", bson.D{
			{"xp", xp},
			{"check_in_streak", 1},
		}},
		{"$set", bson.D{
			{"last_daily_claim", at},
			{"updated_at", at},
		}},
	}
	return m.findAndUpdateUser(ctx, filter, update)
}

func (m *MongoDB) UpdatePreferences(ctx context.Context, userId primitive.ObjectID, update *entity.ProfileUpdate, at time.Time) (*entity.User, error) {
	set := bson.D{{"updated_at", at}}
	if update.AvatarUrl != nil {
		set = append(set, bson.E{Key: "avatar_url", Value: *update.AvatarUrl})
	}
	if update.Language != nil {
		set = append(set, bson.E{Key: "language", Value: *update.Language})
	}
	if update.Theme != nil {
		set = append(set, bson.E{Key: "theme", Value: *update.Theme})
	}
	return m.findAndUpdateUser(ctx, bson.D{{"_id", userId}}, bson.D{{"$set", set}})
}

func (m *MongoDB) findAndUpdateUser(ctx context.Context, filter, update bson.D) (*entity.User, error) {
	var user entity.User
	err := m.collection(collectionUsers).FindOneAndUpdate(ctx, filter, update, afterUpdate()).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("update user", err)
	}
	return &user, nil
}
