package repository

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"github.com/timmy/callinsight/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeMongoCollection keeps documents in write order and only sorts when asked to.
type fakeMongoCollection struct {
	docs []mongoMessageDoc
}

func (f *fakeMongoCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel, _ ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	res := &mongo.BulkWriteResult{}
	for _, m := range models {
		rm, ok := m.(*mongo.ReplaceOneModel)
		if !ok {
			return nil, fmt.Errorf("unexpected write model %T", m)
		}
		doc, ok := rm.Replacement.(mongoMessageDoc)
		filter, _ := rm.Filter.(bson.M)
		if !ok || rm.Upsert == nil || !*rm.Upsert || filter["contextId"] != doc.ContextID || filter["createdAt"] != doc.CreatedAt {
			return nil, fmt.Errorf("write is not an upsert keyed by contextId and createdAt: %+v", rm)
		}

		replaced := false
		for i := range f.docs {
			if f.docs[i].ContextID == doc.ContextID && f.docs[i].CreatedAt == doc.CreatedAt {
				f.docs[i] = doc
				replaced = true
				res.ModifiedCount++
			}
		}
		if !replaced {
			f.docs = append(f.docs, doc)
			res.UpsertedCount++
		}
	}
	return res, nil
}

func (f *fakeMongoCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	m, _ := filter.(bson.M)
	var matched []mongoMessageDoc
	for _, d := range f.docs {
		if d.ContextID == m["contextId"] {
			matched = append(matched, d)
		}
	}
	for _, o := range opts {
		if o != nil && reflect.DeepEqual(o.Sort, bson.D{{Key: "createdAt", Value: 1}}) {
			sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt < matched[j].CreatedAt })
		}
	}

	docs := make([]interface{}, len(matched))
	for i, d := range matched {
		docs[i] = d
	}
	return mongo.NewCursorFromDocuments(docs, nil, nil)
}

func TestMongoMessageStore_PutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := &fakeMongoCollection{}
	store := newMongoMessageStore(f)

	msgs := testMessages(3)
	if err := store.PutMessages(ctx, msgs); err != nil {
		t.Fatalf("PutMessages() error = %v", err)
	}
	msgs[1].Content = "rewritten"
	if err := store.PutMessages(ctx, msgs); err != nil {
		t.Fatalf("second PutMessages() error = %v", err)
	}

	if len(f.docs) != 3 {
		t.Fatalf("stored %d documents, want 3", len(f.docs))
	}
	if f.docs[1].Content != "rewritten" || f.docs[1].MessageID != "m-1" {
		t.Errorf("document 1 = %+v, want rewritten m-1", f.docs[1])
	}
	if f.docs[0].CreatedAt != msgs[0].Timestamp.UnixMilli() {
		t.Errorf("createdAt = %d, want %d", f.docs[0].CreatedAt, msgs[0].Timestamp.UnixMilli())
	}

	if err := store.PutMessages(ctx, nil); err != nil {
		t.Errorf("PutMessages(nil) error = %v", err)
	}
}

func TestMongoMessageStore_ListIsSortedByCreatedAt(t *testing.T) {
	ctx := context.Background()
	f := &fakeMongoCollection{}
	store := newMongoMessageStore(f)

	msgs := testMessages(4)
	reversed := []domain.Message{msgs[3], msgs[1], msgs[2], msgs[0]}
	other := testMessages(1)
	other[0].ContextID = "context-2"
	if err := store.PutMessages(ctx, append(reversed, other...)); err != nil {
		t.Fatalf("PutMessages() error = %v", err)
	}

	got, err := store.ListMessages(ctx, "context-1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("ListMessages() returned %d messages, want %d", len(got), len(msgs))
	}
	for i, m := range got {
		if m.ID != msgs[i].ID || m.ContextID != "context-1" || m.Role != "speaker_1" {
			t.Errorf("message %d = %+v, want %s", i, m, msgs[i].ID)
		}
		if !m.Timestamp.Equal(msgs[i].Timestamp) {
			t.Errorf("message %d timestamp = %v, want %v", i, m.Timestamp, msgs[i].Timestamp)
		}
	}

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Errorf("EnsureIndexes() on a bare collection error = %v", err)
	}
}
