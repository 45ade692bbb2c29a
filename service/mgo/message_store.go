package mgo

import (
	"context"
	"time"

	"PPSignal/data/database"
	"PPSignal/tools/errs"
	"PPSignal/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messageTable = "messages"
	maxLimit     = 200
)

// Message is one stored chat message. Content is ciphertext when
// Encrypted is set.
type Message struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	SenderID       string    `bson:"sender_id" json:"sender_id"`
	Content        string    `bson:"content" json:"content"`
	ImageURL       string    `bson:"image_url,omitempty" json:"image_url,omitempty"`
	IsRead         bool      `bson:"is_read" json:"is_read"`
	Encrypted      bool      `bson:"encrypted" json:"_encrypted"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

// MessageStore persists messages per conversation.
type MessageStore interface {
	// Insert assigns ID and CreatedAt when empty and returns the id.
	Insert(ctx context.Context, m *Message) (string, error)
	// Recent returns up to limit messages, newest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

func prepare(m *Message) {
	if m.ID == "" {
		m.ID = ids.GenerateString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// MongoMessageStore stores messages in the "messages" collection.
type MongoMessageStore struct {
	db *mongo.Database
}

var _ database.Table = (*MongoMessageStore)(nil)

func NewMongoMessageStore(db *mongo.Database) *MongoMessageStore {
	return &MongoMessageStore{db: db}
}

func (s *MongoMessageStore) GetTableName() string { return messageTable }

func (s *MongoMessageStore) Collection() *mongo.Collection { return s.db.Collection(messageTable) }

func (s *MongoMessageStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return errs.Wrap(err)
}

func (s *MongoMessageStore) Insert(ctx context.Context, m *Message) (string, error) {
	prepare(m)
	if _, err := s.Collection().InsertOne(ctx, m); err != nil {
		return "", errs.WrapMsg(err, "insert message", "conversation", m.ConversationID)
	}
	return m.ID, nil
}

func (s *MongoMessageStore) Recent(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	cur, err := s.Collection().Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find messages", "conversation", conversationID)
	}
	var out []Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages", "conversation", conversationID)
	}
	return out, nil
}
