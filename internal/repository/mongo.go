package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoPingTimeout = 5 * time.Second

// OpenMongoSlot connects to uri and stores slots in database. A single CLI
// process keeps at most two connections open.
func OpenMongoSlot(ctx context.Context, uri, database string) (*MongoSlot, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName("storefront").
		SetConnectTimeout(mongoPingTimeout).
		SetServerSelectionTimeout(mongoPingTimeout).
		SetMaxPoolSize(2).
		SetMinPoolSize(0)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		disconnectCtx, done := context.WithTimeout(context.Background(), mongoPingTimeout)
		defer done()
		if dErr := client.Disconnect(disconnectCtx); dErr != nil {
			err = errors.Join(err, dErr)
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return NewMongoSlot(client.Database(database)), nil
}

type slotDocument struct {
	Key       string    `bson:"_id"`
	Blob      []byte    `bson:"blob"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoSlot struct {
	collection *mongo.Collection
}

func NewMongoSlot(db *mongo.Database) *MongoSlot {
	return &MongoSlot{collection: db.Collection("slots")}
}

func (m *MongoSlot) Read(ctx context.Context, key string) ([]byte, error) {
	var doc slotDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSlotEmpty
		}
		return nil, fmt.Errorf("failed to read slot: %w", err)
	}
	return doc.Blob, nil
}

func (m *MongoSlot) Write(ctx context.Context, key string, blob []byte) error {
	update := bson.M{"$set": bson.M{
		"blob":       blob,
		"updated_at": time.Now().UTC(),
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": key}, update, opts); err != nil {
		return fmt.Errorf("failed to write slot: %w", err)
	}
	return nil
}

func (m *MongoSlot) Delete(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	return nil
}

func (m *MongoSlot) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.collection.Database().Client().Disconnect(ctx)
}
