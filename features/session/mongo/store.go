package mongo

import (
	"context"
	"errors"

	clientsmongo "goa.design/ensemble/features/session/mongo/clients/mongo"
	"goa.design/ensemble/session"
)

// Store implements session.Store by delegating to the Mongo client.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Save inserts or updates a session snapshot.
func (s *Store) Save(ctx context.Context, sess session.Session) error {
	return s.client.UpsertSession(ctx, sess)
}

// Load retrieves a session snapshot from storage.
func (s *Store) Load(ctx context.Context, sessionID string) (session.Session, error) {
	return s.client.LoadSession(ctx, sessionID)
}

// Delete removes a session snapshot.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.client.DeleteSession(ctx, sessionID)
}

// List returns the IDs of all stored sessions.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.client.ListSessionIDs(ctx)
}
