package database

import (
	"context"
	"errors"
	"fmt"
	"tapearn/internal/config"
	"tapearn/internal/referral"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	collectionUsers      = "users"
	collectionReferrals  = "referrals"
	collectionActivities = "activities"
)

// MongoDB owns one client for the process lifetime. Connect and Disconnect are
// called by main; everything else shares the pool.
type MongoDB struct {
	client   *mongo.Client
	database string
}

func ClientOptions(conf config.Mongo) *options.ClientOptions {
	connectionUri := conf.Uri
	if connectionUri == "" {
		connectionUri = fmt.Sprintf("mongodb://%s:%s", conf.Host, conf.Port)
	}
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.User,
			Password:   conf.Password,
			AuthSource: conf.Database,
		})
	}
	if conf.ReplicaSet != "" {
		clientOptions.SetReplicaSet(conf.ReplicaSet)
	}
	return clientOptions
}

func Connect(ctx context.Context, conf *config.Config) (*MongoDB, error) {
	client, err := mongo.Connect(ctx, ClientOptions(conf.Mongo))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	return &MongoDB{
		client:   client,
		database: conf.Mongo.Database,
	}, nil
}

func (m *MongoDB) Disconnect(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.database).Collection(name)
}

// findError maps a missing document to a nil error; the caller returns a nil result.
func (m *MongoDB) findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return storeError("mongodb find", err)
}

// storeError classifies driver errors into the referral error kinds.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w: %v", op, referral.ErrConflict, err)
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %v", op, referral.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorLabel("TransientTransactionError") || se.HasErrorLabel("UnknownTransactionCommitResult") {
			return true
		}
		// WriteConflict
		if se.HasErrorCode(112) {
			return true
		}
	}
	return mongo.IsNetworkError(err)
}

// WithTx runs fn in a multi-document transaction. fn must use the context it
// receives for every operation so that they join the session.
func (m *MongoDB) WithTx(ctx context.Context, fn func(ctx context.Context, tx referral.Tx) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return storeError("start session", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	txOptions := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(txOptions); err != nil {
			return storeError("start transaction", err)
		}
		if err := fn(sc, &mongoTx{m: m}); err != nil {
			_ = sc.AbortTransaction(context.WithoutCancel(sc))
			return err
		}
		if err := sc.CommitTransaction(sc); err != nil {
			return storeError("commit transaction", err)
		}
		return nil
	})
}

// EnsureIndexes creates the unique indexes the referral invariants rely on.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collectionUsers: {
			{
				Keys:    bson.D{{"telegram_id", 1}},
				Options: options.Index().SetUnique(true).SetName("telegram_id_unique"),
			},
			{
				Keys:    bson.D{{"referral_code", 1}},
				Options: options.Index().SetUnique(true).SetSparse(true).SetName("referral_code_unique"),
			},
			{
				Keys:    bson.D{{"referred_by", 1}},
				Options: options.Index().SetName("referred_by"),
			},
		},
		collectionReferrals: {
			{
				Keys:    bson.D{{"referrer", 1}, {"referred", 1}},
				Options: options.Index().SetUnique(true).SetName("referrer_referred_unique"),
			},
			{
				Keys:    bson.D{{"referred", 1}, {"tier", 1}},
				Options: options.Index().SetUnique(true).SetName("referred_tier_unique"),
			},
			{
				Keys:    bson.D{{"referrer", 1}, {"tier", 1}, {"is_active", 1}},
				Options: options.Index().SetName("referrer_tier"),
			},
			{
				Keys:    bson.D{{"code", 1}},
				Options: options.Index().SetName("code"),
			},
		},
		collectionActivities: {
			{
				Keys:    bson.D{{"event_id", 1}, {"user", 1}},
				Options: options.Index().SetUnique(true).SetName("event_user_unique"),
			},
			{
				Keys:    bson.D{{"user", 1}, {"created_at", -1}},
				Options: options.Index().SetName("user_created"),
			},
		},
	}
	for name, models := range indexes {
		if _, err := m.collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
