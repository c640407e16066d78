package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tickethub/tickethub/config"
)

// ConnectMongo connects to MONGO_URI and returns the MONGO_DATABASE handle.
// The caller owns the client and must Disconnect it.
func ConnectMongo(ctx context.Context) (*mongo.Client, *mongo.Database, error) {
	return OpenMongo(ctx, config.MongoURI(), config.MongoDatabase())
}

// OpenMongo connects to uri and pings the primary.
func OpenMongo(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(50)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("database: mongo connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("database: mongo ping: %w", err)
	}

	return client, client.Database(dbName), nil
}
