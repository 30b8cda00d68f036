package database

import (
	"context"
	"errors"
	"tapearn/entity"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoTx implements referral.Tx. Its methods must be called with the session
// context handed out by WithTx.
type mongoTx struct {
	m *MongoDB
}

func (t *mongoTx) ReferrerOf(ctx context.Context, userId primitive.ObjectID) (primitive.ObjectID, bool, error) {
	var doc struct {
		ReferredBy primitive.ObjectID `bson:"referred_by,omitempty"`
	}
	opts := options.FindOne().SetProjection(bson.D{{"referred_by", 1}})
	err := t.m.collection(collectionUsers).FindOne(ctx, bson.D{{"_id", userId}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return primitive.NilObjectID, false, nil
		}
		return primitive.NilObjectID, false, storeError("referrer of", err)
	}
	return doc.ReferredBy, true, nil
}

func (t *mongoTx) UserById(ctx context.Context, id primitive.ObjectID) (*entity.User, error) {
	return t.m.UserById(ctx, id)
}

func (t *mongoTx) UserByReferralCode(ctx context.Context, code string) (*entity.User, error) {
	var user entity.User
	err := t.m.collection(collectionUsers).FindOne(ctx, bson.D{{"referral_code", code}}).Decode(&user)
	if err != nil {
		return nil, t.m.findError(err)
	}
	return &user, nil
}

func (t *mongoTx) ReferralCodeTaken(ctx context.Context, code string) (bool, error) {
	opts := options.Count().SetLimit(1)
	n, err := t.m.collection(collectionUsers).CountDocuments(ctx, bson.D{{"referral_code", code}}, opts)
	if err != nil {
		return false, storeError("count users by code", err)
	}
	if n > 0 {
		return true, nil
	}
	n, err = t.m.collection(collectionReferrals).CountDocuments(ctx, bson.D{{"code", code}}, opts)
	if err != nil {
		return false, storeError("count referrals by code", err)
	}
	return n > 0, nil
}

func (t *mongoTx) SetReferralCode(ctx context.Context, userId primitive.ObjectID, code string) (bool, error) {
	filter := bson.D{
		{"_id", userId},
		{"referral_code", bson.D{{"$exists", false}}},
	}
	update := bson.D{{"$set", bson.D{
		{"referral_code", code},
		{"updated_at", time.Now().UTC()},
	}}}
	res, err := t.m.collection(collectionUsers).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, storeError("set referral code", err)
	}
	return res.MatchedCount == 1, nil
}

func (t *mongoTx) HasInboundEdge(ctx context.Context, referred primitive.ObjectID) (bool, error) {
	opts := options.Count().SetLimit(1)
	n, err := t.m.collection(collectionReferrals).CountDocuments(ctx, bson.D{{"referred", referred}}, opts)
	if err != nil {
		return false, storeError("count inbound edges", err)
	}
	return n > 0, nil
}

func (t *mongoTx) InsertEdges(ctx context.Context, edges []*entity.ReferralEdge) error {
	if len(edges) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(edges))
	for _, edge := range edges {
		docs = append(docs, edge)
	}
	_, err := t.m.collection(collectionReferrals).InsertMany(ctx, docs)
	return storeError("insert edges", err)
}

func (t *mongoTx) SetReferredBy(ctx context.Context, userId, referrer primitive.ObjectID, chain []primitive.ObjectID) (bool, error) {
	filter := bson.D{
		{"_id", userId},
		{"referred_by", nil},
	}
	update := bson.D{{"$set", bson.D{
		{"referred_by", referrer},
		{"referral_chain", chain},
		{"updated_at", time.Now().UTC()},
	}}}
	res, err := t.m.collection(collectionUsers).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, storeError("set referred by", err)
	}
	return res.MatchedCount == 1, nil
}

func (t *mongoTx) AddDirectReferral(ctx context.Context, referrer, referred primitive.ObjectID) error {
	update := bson.D{
		{"$addToSet", bson.D{{"referrals", referred}}},
		{"$set", bson.D{{"updated_at", time.Now().UTC()}}},
	}
	_, err := t.m.collection(collectionUsers).UpdateOne(ctx, bson.D{{"_id", referrer}}, update)
	return storeError("add direct referral", err)
}

func (t *mongoTx) ActiveEdgesOf(ctx context.Context, referred primitive.ObjectID) ([]*entity.ReferralEdge, error) {
	return t.m.ActiveEdgesOf(ctx, referred)
}

func (t *mongoTx) CreditReferralReward(ctx context.Context, userId primitive.ObjectID, amount int64) (bool, error) {
	update := bson.D{
		{"$inc", bson.D{
			{"xp", amount},
			{"total_referral_xp", amount},
			{"total_referral_rewards", amount},
		}},
		{"$set", bson.D{{"updated_at", time.Now().UTC()}}},
	}
	res, err := t.m.collection(collectionUsers).UpdateOne(ctx, bson.D{{"_id", userId}}, update)
	if err != nil {
		return false, storeError("credit referral reward", err)
	}
	return res.MatchedCount == 1, nil
}

func (t *mongoTx) RecordEdgeReward(ctx context.Context, edgeId primitive.ObjectID, amount int64, at time.Time) error {
	update := bson.D{
		{"$inc", bson.D{{"total_rewards_distributed", amount}}},
		{"$set", bson.D{{"last_reward_date", at}}},
	}
	_, err := t.m.collection(collectionReferrals).UpdateOne(ctx, bson.D{{"_id", edgeId}}, update)
	return storeError("record edge reward", err)
}

func (t *mongoTx) EventRecorded(ctx context.Context, eventId string) (bool, error) {
	opts := options.Count().SetLimit(1)
	n, err := t.m.collection(collectionActivities).CountDocuments(ctx, bson.D{{"event_id", eventId}}, opts)
	if err != nil {
		return false, storeError("count activities", err)
	}
	return n > 0, nil
}

func (t *mongoTx) InsertActivity(ctx context.Context, activity *entity.Activity) error {
	_, err := t.m.collection(collectionActivities).InsertOne(ctx, activity)
	return storeError("insert activity", err)
}

func (m *MongoDB) UserById(ctx context.Context, id primitive.ObjectID) (*entity.User, error) {
	var user entity.User
	err := m.collection(collectionUsers).FindOne(ctx, bson.D{{"_id", id}}).Decode(&user)
	if err != nil {
		return nil, m.findError(err)
	}
	return &user, nil
}

func (m *MongoDB) UsersByIds(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*entity.User, error) {
	users := make(map[primitive.ObjectID]*entity.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	cursor, err := m.collection(collectionUsers).Find(ctx, bson.D{{"_id", bson.D{{"$in", ids}}}})
	if err != nil {
		return nil, storeError("find users", err)
	}
	defer cursor.Close(ctx)

	var list []*entity.User
	if err = cursor.All(ctx, &list); err != nil {
		return nil, storeError("decode users", err)
	}
	for _, user := range list {
		users[user.Id] = user
	}
	return users, nil
}

func (m *MongoDB) findEdges(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]*entity.ReferralEdge, error) {
	cursor, err := m.collection(collectionReferrals).Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("find edges", err)
	}
	defer cursor.Close(ctx)

	var edges []*entity.ReferralEdge
	if err = cursor.All(ctx, &edges); err != nil {
		return nil, storeError("decode edges", err)
	}
	return edges, nil
}

func (m *MongoDB) ActiveEdgesOf(ctx context.Context, referred primitive.ObjectID) ([]*entity.ReferralEdge, error) {
	filter := bson.D{{"referred", referred}, {"is_active", true}}
	return m.findEdges(ctx, filter, options.Find().SetSort(bson.D{{"tier", 1}}))
}

func (m *MongoDB) DirectEdgesOf(ctx context.Context, referrer primitive.ObjectID) ([]*entity.ReferralEdge, error) {
	filter := bson.D{{"referrer", referrer}, {"tier", 1}, {"is_active", true}}
	return m.findEdges(ctx, filter, options.Find().SetSort(bson.D{{"date_referred", -1}}))
}

func (m *MongoDB) AllEdges(ctx context.Context) ([]*entity.ReferralEdge, error) {
	return m.findEdges(ctx, bson.D{}, options.Find())
}

func (m *MongoDB) TierTotals(ctx context.Context, referrer primitive.ObjectID) ([]entity.TierTotal, error) {
	pipeline := mongo.Pipeline{
		{{"$match", bson.D{{"referrer", referrer}, {"is_active", true}}}},
		{{"$group", bson.D{
			{"_id", "$tier"},
			{"count", bson.D{{"$sum", 1}}},
			{"earnings", bson.D{{"$sum", "$total_rewards_distributed"}}},
		}}},
		{{"$sort", bson.D{{"_id", 1}}}},
	}
	cursor, err := m.collection(collectionReferrals).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeError("aggregate tier totals", err)
	}
	defer cursor.Close(ctx)

	var totals []entity.TierTotal
	if err = cursor.All(ctx, &totals); err != nil {
		return nil, storeError("decode tier totals", err)
	}
	return totals, nil
}
