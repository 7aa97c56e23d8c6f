package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/notify"
)

const (
	EventCollectionName = "events"
	DefaultRecentLimit  = 50
	MaxRecentLimit      = 500
)

// EventStore is a notification sink that can also answer "what happened recently".
type EventStore interface {
	notify.Sink
	// Recent returns at most limit events, newest first. An empty operator matches all.
	Recent(ctx context.Context, operator string, limit int) ([]notify.Event, error)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}

type MongoEventStore struct {
	client *Client
	events *mongo.Collection
}

// NewMongoEventStore prepares the events collection and its indexes.
func NewMongoEventStore(ctx context.Context, client *Client) (*MongoEventStore, error) {
	err := client.ensureIndexes(ctx, EventCollectionName,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "operator", Value: 1}, {Key: "time", Value: -1}},
			Options: options.Index().SetName("events_operator_time"),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "time", Value: -1}},
			Options: options.Index().SetName("events_time"),
		},
	)
	if err != nil {
		return nil, err
	}
	return &MongoEventStore{client: client, events: client.collection(EventCollectionName)}, nil
}

func (s *MongoEventStore) Name() string { return "mongo" }

func (s *MongoEventStore) Deliver(ctx context.Context, ev notify.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("event without id: %s", ev.Message())
	}
	ctx, cancel := context.WithTimeout(ctx, s.client.operationTimeout)
	defer cancel()

	startTime := time.Now()
	_, err := s.events.InsertOne(ctx, ev)
	logger.DebugF("event insert cost: %v", time.Since(startTime))
	if err != nil {
		return wrapError(err)
	}
	return nil
}

func (s *MongoEventStore) Recent(ctx context.Context, operator string, limit int) ([]notify.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.client.operationTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "time", Value: -1}}).SetLimit(int64(clampLimit(limit)))
	cursor, err := s.events.Find(ctx, operatorFilter(operator), opts)
	if err != nil {
		return nil, wrapError(err)
	}
	events := make([]notify.Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, wrapError(err)
	}
	return events, nil
}
