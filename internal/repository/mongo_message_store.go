package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/callinsight/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoMessageDoc struct {
	ContextID string                 `bson:"contextId"`
	CreatedAt int64                  `bson:"createdAt"`
	MessageID string                 `bson:"messageId"`
	Content   string                 `bson:"content"`
	Role      string                 `bson:"role"`
	Metadata  map[string]interface{} `bson:"metadata,omitempty"`
}

// mongoCollection is the part of *mongo.Collection the store reads and writes through.
type mongoCollection interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// MongoMessageStore implements MessageStore on a MongoDB collection.
type MongoMessageStore struct {
	collection mongoCollection
	base       *mongo.Collection // indexes and disconnect; nil when built on a bare collection
}

func newMongoMessageStore(c mongoCollection) *MongoMessageStore {
	s := &MongoMessageStore{collection: c}
	if base, ok := c.(*mongo.Collection); ok {
		s.base = base
	}
	return s
}

// NewMongoMessageStore connects to uri and returns a store on database.collection.
func NewMongoMessageStore(ctx context.Context, uri, database, collection string) (*MongoMessageStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return newMongoMessageStore(client.Database(database).Collection(collection)), nil
}

// EnsureIndexes creates the unique (contextId, createdAt) key.
func (s *MongoMessageStore) EnsureIndexes(ctx context.Context) error {
	if s.base == nil {
		return nil
	}
	_, err := s.base.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "contextId", Value: 1}, {Key: "createdAt", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create message index: %w", err)
	}
	return nil
}

// PutMessages replaces or inserts each message by (contextId, createdAt).
func (s *MongoMessageStore) PutMessages(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(msgs))
	for _, m := range msgs {
		doc := mongoMessageDoc{
			ContextID: m.ContextID,
			CreatedAt: m.Timestamp.UnixMilli(),
			MessageID: m.ID,
			Content:   m.Content,
			Role:      m.Role,
			Metadata:  m.Metadata,
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"contextId": doc.ContextID, "createdAt": doc.CreatedAt}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to write messages: %w", err)
	}
	return nil
}

// ListMessages returns a context's messages in ascending createdAt order.
func (s *MongoMessageStore) ListMessages(ctx context.Context, contextID string) ([]domain.Message, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"contextId": contextID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for %s: %w", contextID, err)
	}
	defer cursor.Close(ctx)

	var docs []mongoMessageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages for %s: %w", contextID, err)
	}

	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Message{
			ID:        d.MessageID,
			ContextID: d.ContextID,
			Content:   d.Content,
			Role:      d.Role,
			Timestamp: time.UnixMilli(d.CreatedAt).UTC(),
			Metadata:  d.Metadata,
		})
	}
	return out, nil
}

// Close disconnects the underlying client.
func (s *MongoMessageStore) Close(ctx context.Context) error {
	if s.base == nil {
		return nil
	}
	return s.base.Database().Client().Disconnect(ctx)
}
