package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// QdrantConfig configures the remote Qdrant backend, for deployments that
// prefer a standalone vector service over the embedded chromem file.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	Collection     string
	VectorSize     int
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

func (c *QdrantConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "semantic_embeddings"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// QdrantIndex implements Index against a qdrant server over gRPC.
type QdrantIndex struct {
	client   *qdrant.Client
	embedder Embedder
	cfg      QdrantConfig
	logger   *zap.Logger
}

// OpenQdrant dials the configured Qdrant instance and ensures the
// collection exists. Like OpenChromem, failures are wrapped in
// ErrUnavailable so the caller degrades to lexical-only search rather
// than failing startup.
func OpenQdrant(ctx context.Context, cfg QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	qc := &qdrant.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		APIKey:      cfg.APIKey,
		UseTLS:      cfg.UseTLS,
		GrpcOptions: nil,
	}
	client, err := qdrant.NewClient(qc)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing qdrant: %v", ErrUnavailable, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	exists, err := client.CollectionExists(dialCtx, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking collection: %v", ErrUnavailable, err)
	}
	if !exists {
		err = client.CreateCollection(dialCtx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(cfg.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: creating collection: %v", ErrUnavailable, err)
		}
	}

	logger.Info("vectorindex: qdrant opened",
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection))

	return &QdrantIndex{client: client, embedder: embedder, cfg: cfg, logger: logger}, nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := q.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, d := range docs {
		if len(vectors[i]) != q.cfg.VectorSize {
			return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(vectors[i]), q.cfg.VectorSize)
		}
		payload := make(map[string]*qdrant.Value, len(d.Metadata))
		for k, v := range d.Metadata {
			payload[k] = qdrant.NewValueString(v)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(d.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		})
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, query string, k int) ([]Match, error) {
	vec, err := q.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	limit := uint64(k)
	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying qdrant: %w", err)
	}

	matches := make([]Match, 0, len(res))
	for _, p := range res {
		meta := make(map[string]string, len(p.Payload))
		for k, v := range p.Payload {
			meta[k] = v.GetStringValue()
		}
		matches = append(matches, Match{ID: p.Id.GetUuid(), Score: p.Score, Metadata: meta})
	}
	return matches, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	return err
}

func (q *QdrantIndex) Dimension() int { return q.cfg.VectorSize }

func (q *QdrantIndex) Close() error { return q.client.Close() }
