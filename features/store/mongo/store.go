package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"goa.design/slumber/features/store/mongo/clients/mongo"
	"goa.design/slumber/workflow"
)

// Store implements workflow.Store by delegating to the Mongo client.
type Store struct {
	client mongo.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client mongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Create implements workflow.Store.
func (s *Store) Create(ctx context.Context, id, class string, args []any) error {
	return s.client.Create(ctx, id, class, args)
}

// Load implements workflow.Store.
func (s *Store) Load(ctx context.Context, id string) (workflow.Workflow, error) {
	return s.client.Load(ctx, id)
}

// AppendEvent implements workflow.Store.
func (s *Store) AppendEvent(ctx context.Context, id string, typ workflow.EventType, result json.RawMessage) error {
	return s.client.AppendEvent(ctx, id, typ, result)
}

// History implements workflow.Store.
func (s *Store) History(ctx context.Context, id string) ([]workflow.Event, error) {
	return s.client.History(ctx, id)
}

// UpdateStatus implements workflow.Store.
func (s *Store) UpdateStatus(ctx context.Context, id string, status workflow.Status, wakeUpTime *time.Time) error {
	return s.client.UpdateStatus(ctx, id, status, wakeUpTime)
}

// PollReady implements workflow.Store.
func (s *Store) PollReady(ctx context.Context, limit int) ([]string, error) {
	return s.client.PollReady(ctx, limit)
}

// Now implements workflow.Store.
func (s *Store) Now() time.Time {
	return s.client.Now()
}
