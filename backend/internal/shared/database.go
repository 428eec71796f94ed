// ============================================================================
// backend/internal/shared/database.go
// Shared MongoDB connection, index and transaction helpers
// ============================================================================

package shared

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ErrNotFound is returned by stores when the addressed document does not exist
var ErrNotFound = errors.New("document not found")

// ErrDuplicate is returned by stores when a unique index rejects a write
var ErrDuplicate = errors.New("duplicate document")

// QueryTimeout bounds every single store round trip
const QueryTimeout = 10 * time.Second

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
	MaxIdleTime    time.Duration

	// UseTransactions wraps multi-document writes in a session transaction.
	// Requires a replica set.
	UseTransactions bool
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig(uri, database string) *MongoConfig {
	return &MongoConfig{
		URI:            uri,
		Database:       database,
		ConnectTimeout: 20 * time.Second,
		MaxPoolSize:    50,
		MinPoolSize:    10,
		MaxIdleTime:    30 * time.Second,
	}
}

// ConnectMongoDB establishes connection to MongoDB Atlas/Local with proper configuration
func ConnectMongoDB(config *MongoConfig) (*mongo.Client, *mongo.Database, error) {
	if config == nil {
		return nil, nil, fmt.Errorf("mongo config cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetMaxConnIdleTime(config.MaxIdleTime).
		SetServerSelectionTimeout(10 * time.Second).
		SetConnectTimeout(config.ConnectTimeout).
		SetSocketTimeout(30 * time.Second).
		SetHeartbeatInterval(10 * time.Second).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Printf("Successfully connected to MongoDB (Database: %s)", config.Database)

	db := client.Database(config.Database)
	return client, db, nil
}

// DisconnectMongoDB gracefully closes MongoDB connection
func DisconnectMongoDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	log.Println("Successfully disconnected from MongoDB")
	return nil
}

// PingMongoDB reports whether the primary is reachable (readiness probe)
func PingMongoDB(ctx context.Context, client *mongo.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(pingCtx, readpref.Primary())
}

// ============================================================================
// Indexes
// ============================================================================

// EnsureIndexes creates the indexes every store relies on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		CollectionScoreRecords: {
			{Keys: bson.D{{Key: "student", Value: 1}, {Key: "kind", Value: 1}}},
		},
		CollectionLedgers: {
			{Keys: bson.D{{Key: "student", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		// Title uniqueness is scoped to the owning instructor; there is no global title index.
		CollectionExams: {
			{Keys: bson.D{{Key: "title", Value: 1}, {Key: "created_by", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "available", Value: 1}}},
		},
		CollectionSections: {
			{Keys: bson.D{{Key: "exam", Value: 1}, {Key: "order", Value: 1}}},
		},
		CollectionQuestions: {
			{Keys: bson.D{{Key: "section", Value: 1}, {Key: "order", Value: 1}}},
		},
		// One submission per (student, exam).
		CollectionSubmissions: {
			{Keys: bson.D{{Key: "exam", Value: 1}, {Key: "student", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollectionAuditLogs: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
	}

	for name, models := range indexes {
		idxCtx, cancel := context.WithTimeout(ctx, QueryTimeout)
		_, err := db.Collection(name).Indexes().CreateMany(idxCtx, models)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}

	log.Printf("Indexes ensured on %d collections", len(indexes))
	return nil
}

// ============================================================================
// Query Helpers
// ============================================================================

// BuildFindOptions creates common find options with defaults
func BuildFindOptions(limit int64, sortField string, sortOrder int) *options.FindOptions {
	opts := options.Find()

	if limit > 0 {
		opts.SetLimit(limit)
	}

	if sortField != "" {
		opts.SetSort(bson.D{{Key: sortField, Value: sortOrder}})
	}

	return opts
}

// ============================================================================
// Transaction Helpers
// ============================================================================

// WithTransaction executes a function within a MongoDB transaction
func WithTransaction(ctx context.Context, client *mongo.Client, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})

	return err
}

// TxRunner groups several store writes into one unit of work
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MongoTx runs units of work inside a session transaction when enabled and
// as plain sequential writes otherwise.
type MongoTx struct {
	Client  *mongo.Client
	Enabled bool
}

// WithinTx implements TxRunner
func (t MongoTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !t.Enabled || t.Client == nil {
		return fn(ctx)
	}
	return WithTransaction(ctx, t.Client, func(sessCtx mongo.SessionContext) error {
		return fn(sessCtx)
	})
}

// NoTx runs the unit of work directly; used by in-memory stores
type NoTx struct{}

// WithinTx implements TxRunner
func (NoTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ============================================================================
// Error Helpers
// ============================================================================

// MapMongoError converts driver sentinel errors into store errors
func MapMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return err
	}
}
