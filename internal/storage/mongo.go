package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

type mongoStore struct {
	client    *mongo.Client
	reminders *mongo.Collection
	dedup     *mongo.Collection
	log       logx.Logger
}

type mongoDoc struct {
	ID           string    `bson:"_id"`
	UserID       int64     `bson:"user_id"`
	ChatID       int64     `bson:"chat_id"`
	ReminderTime string    `bson:"reminder_time"`
	Days         []string  `bson:"days"`
	Message      string    `bson:"custom_message,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
}

type mongoDedup struct {
	Key   string `bson:"_id"`
	Until int64  `bson:"until"`
}

func (d mongoDoc) record() reminder.Record {
	return reminder.Record{
		ID:           reminder.ID(d.ID),
		UserID:       d.UserID,
		ChatID:       d.ChatID,
		ReminderTime: d.ReminderTime,
		Days:         d.Days,
		Message:      d.Message,
		CreatedAt:    d.CreatedAt,
	}
}

func openMongo(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	uri := strings.TrimSpace(cfg.URL)
	if uri == "" {
		return nil, errors.New("storage.url is required for mongo driver")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	dbName := strings.TrimSpace(cfg.Database)
	if dbName == "" {
		dbName = defaultDatabase
	}
	coll := strings.TrimSpace(cfg.Collection)
	if coll == "" {
		coll = defaultCollection
	}
	db := client.Database(dbName)
	st := &mongoStore{
		client:    client,
		reminders: db.Collection(coll),
		dedup:     db.Collection(coll + "_dedup"),
		log:       log,
	}
	_, err = st.reminders.Indexes().CreateOne(cctx, mongo.IndexModel{Keys: bson.D{{Key: "chat_id", Value: 1}}})
	if err != nil {
		log.Warn("mongo index create failed", logx.Err(err))
	}
	log.Debug("mongo store opened", logx.String("db", dbName), logx.String("collection", coll))
	return st, nil
}

func (s *mongoStore) Create(ctx context.Context, r reminder.Record) (reminder.ID, error) {
	doc := mongoDoc{
		ID:           uuid.NewString(),
		UserID:       r.UserID,
		ChatID:       r.ChatID,
		ReminderTime: r.ReminderTime,
		Days:         r.Days,
		Message:      r.Message,
		CreatedAt:    r.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := s.reminders.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return reminder.ID(doc.ID), nil
}

func (s *mongoStore) find(ctx context.Context, filter bson.M) ([]reminder.Record, error) {
	cur, err := s.reminders.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []mongoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]reminder.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}

func (s *mongoStore) GetAll(ctx context.Context) ([]reminder.Record, error) {
	return s.find(ctx, bson.M{})
}

func (s *mongoStore) ListByOwner(ctx context.Context, chatID int64) ([]reminder.Record, error) {
	return s.find(ctx, bson.M{"chat_id": chatID})
}

func (s *mongoStore) Get(ctx context.Context, id reminder.ID) (reminder.Record, bool, error) {
	var d mongoDoc
	err := s.reminders.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return reminder.Record{}, false, nil
	}
	if err != nil {
		return reminder.Record{}, false, err
	}
	return d.record(), true, nil
}

func messageUpdate(msg string) bson.M {
	if strings.TrimSpace(msg) == "" {
		return bson.M{"$unset": bson.M{"custom_message": ""}}
	}
	return bson.M{"$set": bson.M{"custom_message": msg}}
}

func (s *mongoStore) UpdateMessage(ctx context.Context, chatID int64, msg string) (int, error) {
	res, err := s.reminders.UpdateMany(ctx, bson.M{"chat_id": chatID}, messageUpdate(msg))
	if err != nil {
		return 0, err
	}
	return int(res.MatchedCount), nil
}

func (s *mongoStore) UpdateMessageByID(ctx context.Context, id reminder.ID, msg string) (bool, error) {
	res, err := s.reminders.UpdateOne(ctx, bson.M{"_id": string(id)}, messageUpdate(msg))
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *mongoStore) Delete(ctx context.Context, id reminder.ID) (bool, error) {
	res, err := s.reminders.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *mongoStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.dedup.ReplaceOne(ctx, bson.M{"_id": key}, mongoDedup{Key: key, Until: until.UnixMilli()}, options.Replace().SetUpsert(true))
	return err
}

func (s *mongoStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var d mongoDedup
	err := s.dedup.FindOne(ctx, bson.M{"_id": key}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(d.Until), true, nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
