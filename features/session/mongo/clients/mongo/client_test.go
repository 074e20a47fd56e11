package mongo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"goa.design/ensemble/session"
)

func TestEnsureIndexes(t *testing.T) {
	sessions := newFakeCollection()
	err := ensureIndexes(context.Background(), sessions)
	require.NoError(t, err)
	require.Equal(t, 1, sessions.indexCreated)
}

func TestUpsertLoadSession(t *testing.T) {
	client := mustNewTestClient()

	board := map[string]any{"variables": map[string]any{"phase": "discovery"}}
	err := client.UpsertSession(context.Background(), session.Session{
		ID:        "sess-1",
		Board:     board,
		TurnCount: 3,
	})
	require.NoError(t, err)

	loaded, err := client.LoadSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", loaded.ID)
	require.Equal(t, 3, loaded.TurnCount)
	require.Equal(t, board, loaded.Board)
	require.False(t, loaded.CreatedAt.IsZero())
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	client := mustNewTestClient()

	require.NoError(t, client.UpsertSession(context.Background(), session.Session{ID: "sess-1"}))
	first, err := client.LoadSession(context.Background(), "sess-1")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, client.UpsertSession(context.Background(), session.Session{ID: "sess-1", TurnCount: 7}))
	second, err := client.LoadSession(context.Background(), "sess-1")
	require.NoError(t, err)

	require.Equal(t, 7, second.TurnCount)
	require.True(t, second.CreatedAt.Equal(first.CreatedAt))
	require.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	client := mustNewTestClient()
	_, err := client.LoadSession(context.Background(), "missing")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestDeleteSession(t *testing.T) {
	client := mustNewTestClient()
	require.NoError(t, client.UpsertSession(context.Background(), session.Session{ID: "sess-1"}))
	require.NoError(t, client.DeleteSession(context.Background(), "sess-1"))
	_, err := client.LoadSession(context.Background(), "sess-1")
	require.ErrorIs(t, err, session.ErrNotFound)

	// Deleting a missing session is a no-op.
	require.NoError(t, client.DeleteSession(context.Background(), "sess-1"))
}

func TestListSessionIDs(t *testing.T) {
	client := mustNewTestClient()
	require.NoError(t, client.UpsertSession(context.Background(), session.Session{ID: "sess-b"}))
	require.NoError(t, client.UpsertSession(context.Background(), session.Session{ID: "sess-a"}))

	ids, err := client.ListSessionIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"sess-a", "sess-b"}, ids)
}

func TestValidation(t *testing.T) {
	client := mustNewTestClient()
	require.Error(t, client.UpsertSession(context.Background(), session.Session{}))
	_, err := client.LoadSession(context.Background(), "")
	require.Error(t, err)
	require.Error(t, client.DeleteSession(context.Background(), ""))
}

func mustNewTestClient() *client {
	cl, err := newClientWithCollection(nil, newFakeCollection(), time.Second)
	if err != nil {
		panic(err)
	}
	return cl
}

type fakeCollection struct {
	mu           sync.Mutex
	indexCreated int
	docs         map[string]sessionDocument
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]sessionDocument)}
}

func (c *fakeCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessionID := filter.(bson.M)["session_id"].(string)
	doc, ok := c.docs[sessionID]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	copyDoc := doc
	return fakeSingleResult{doc: &copyDoc}
}

func (c *fakeCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	// The production query always sorts by session_id ascending.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	docs := make([]any, 0, len(ids))
	for _, id := range ids {
		copyDoc := c.docs[id]
		docs = append(docs, &copyDoc)
	}
	return newFakeCursor(docs), nil
}

func (c *fakeCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessionID := filter.(bson.M)["session_id"].(string)
	doc, existed := c.docs[sessionID]

	up := update.(bson.M)
	upsert := false
	if len(opts) > 0 && opts[0] != nil && opts[0].Upsert != nil {
		upsert = *opts[0].Upsert
	}
	if !existed && !upsert {
		return &mongodriver.UpdateResult{}, nil
	}
	if !existed {
		if soi, ok := up["$setOnInsert"].(bson.M); ok {
			if v, ok := soi["session_id"].(string); ok {
				doc.SessionID = v
			}
			if v, ok := soi["created_at"].(time.Time); ok {
				doc.CreatedAt = v
			}
		}
	}
	if set, ok := up["$set"].(bson.M); ok {
		if v, ok := set["board"].(map[string]any); ok {
			doc.Board = v
		}
		if v, ok := set["turn_count"].(int); ok {
			doc.TurnCount = v
		}
		if v, ok := set["updated_at"].(time.Time); ok {
			doc.UpdatedAt = v
		}
	}
	c.docs[sessionID] = doc
	return &mongodriver.UpdateResult{MatchedCount: 1}, nil
}

func (c *fakeCollection) DeleteOne(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessionID := filter.(bson.M)["session_id"].(string)
	if _, ok := c.docs[sessionID]; !ok {
		return &mongodriver.DeleteResult{}, nil
	}
	delete(c.docs, sessionID)
	return &mongodriver.DeleteResult{DeletedCount: 1}, nil
}

func (c *fakeCollection) Indexes() indexView {
	return fakeIndexView{parent: &c.indexCreated}
}

type fakeIndexView struct {
	parent *int
}

func (v fakeIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...*options.CreateIndexesOptions) (string, error) {
	if len(model.Keys.(bson.D)) == 0 {
		return "", errors.New("missing keys")
	}
	*v.parent++
	return "session_id_idx", nil
}

type fakeSingleResult struct {
	doc *sessionDocument
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	*(val.(*sessionDocument)) = *r.doc
	return nil
}

type fakeCursor struct {
	docs []any
	idx  int
}

func newFakeCursor(docs []any) *fakeCursor {
	return &fakeCursor{docs: docs, idx: -1}
}

func (c *fakeCursor) Close(ctx context.Context) error { return nil }

func (c *fakeCursor) Decode(val any) error {
	if c.idx < 0 || c.idx >= len(c.docs) {
		return errors.New("no document")
	}
	*(val.(*sessionDocument)) = *(c.docs[c.idx].(*sessionDocument))
	return nil
}

func (c *fakeCursor) Err() error { return nil }

func (c *fakeCursor) Next(ctx context.Context) bool {
	next := c.idx + 1
	if next >= len(c.docs) {
		return false
	}
	c.idx = next
	return true
}
