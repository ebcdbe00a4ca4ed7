// Package qdrantvec provides a Qdrant vector database driver implementation.
package qdrantvec

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for storing
	// memory embeddings.
	DefaultCollectionName = "engram"
)

// QdrantDriver implements vector.Driver using Qdrant's gRPC API.
type QdrantDriver struct {
	client         *qdrant.Client
	collectionName string
	dimensions     uint64
	logger         *zap.Logger
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Host is the Qdrant server host (e.g., "localhost").
	Host string

	// Port is the Qdrant gRPC port. Defaults to 6334 if zero.
	Port int

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewQdrantDriver creates a new Qdrant vector driver and ensures the
// collection exists.
func NewQdrantDriver(c Config, logger *zap.Logger) (*QdrantDriver, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: c.Host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	d := &QdrantDriver{
		client:         client,
		collectionName: collectionName,
		dimensions:     uint64(c.Dimensions),
		logger:         logger,
	}

	if err := d.ensureCollection(context.Background()); err != nil {
		return nil, fmt.Errorf("ensuring collection %q: %w", collectionName, err)
	}

	logger.Info("connected to Qdrant",
		zap.String("host", c.Host),
		zap.Int("port", port),
		zap.String("collection", collectionName),
		zap.Uint("dimensions", c.Dimensions),
	)

	return d, nil
}

// ensureCollection creates the collection if it does not already exist.
func (d *QdrantDriver) ensureCollection(ctx context.Context) error {
	exists, err := d.client.CollectionExists(ctx, d.collectionName)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: d.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     d.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	return nil
}

// Add stores documents with their embeddings. Upserting a point with an
// existing id replaces its vector.
func (d *QdrantDriver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if uint64(len(doc.Embedding)) != d.dimensions {
			return &vector.DimensionMismatchError{
				Want: int(d.dimensions),
				Got:  len(doc.Embedding),
			}
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
		})
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant",
		zap.Int("count", len(points)),
	)

	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *QdrantDriver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK < 1 {
		return nil, vector.ErrInvalidTopK
	}

	limit := uint64(topK)
	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		score := p.GetScore()
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}

		results = append(results, vector.QueryResult{
			Document: vector.Document{ID: p.GetId().GetUuid()},
			Score:    score,
		})
	}

	d.logger.Debug("queried qdrant",
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Get retrieves documents by their IDs.
func (d *QdrantDriver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collectionName,
		Ids:            pointIDs,
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, vector.Document{
			ID:        p.GetId().GetUuid(),
			Embedding: p.GetVectors().GetVector().GetData(),
		})
	}

	return docs, nil
}

// Delete removes documents by their IDs. Unknown ids are ignored.
func (d *QdrantDriver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collectionName,
		Points:         qdrant.NewPointsSelectorIDs(pointIDs),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant",
		zap.Int("count", len(ids)),
	)

	return nil
}

// Reset drops and recreates the collection.
func (d *QdrantDriver) Reset(ctx context.Context) error {
	if err := d.client.DeleteCollection(ctx, d.collectionName); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	if err := d.ensureCollection(ctx); err != nil {
		return err
	}

	d.logger.Debug("reset qdrant collection",
		zap.String("collection", d.collectionName),
	)

	return nil
}

// Close closes the underlying gRPC connection.
func (d *QdrantDriver) Close() error {
	return d.client.Close()
}
