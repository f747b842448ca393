package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	payloadSnippetID = "snippet_id"
	payloadRepoID    = "repository_id"
	upsertBatchSize  = 256
)

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string

	// Port is the gRPC port, not the HTTP one. Default: 6334.
	Port int

	APIKey string
	UseTLS bool

	// Collection holds the global index. Default: "codesearch_snippets".
	Collection string

	// VectorSize is used when a collection must be created without entries
	// to infer it from. Default: 384.
	VectorSize uint64

	// MaxRetries bounds retries of transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial wait between retries and doubles each time.
	// Default: 500ms.
	RetryBackoff time.Duration

	// MaxMessageSize caps gRPC messages in bytes. Default: 50MB.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "codesearch_snippets"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if !collectionNamePattern.MatchString(c.Collection) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, c.Collection)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.NotFound
}

// QdrantStore keeps the index in a single Qdrant collection. Point ids are
// snippet ids; the payload carries the owning repository for filtered deletes.
type QdrantStore struct {
	client *qdrant.Client
	cfg    QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore connects to Qdrant and checks its health.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC connection is plaintext", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := &QdrantStore{client: client, cfg: cfg, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	logger.Info("qdrant index store ready",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

// retryOperation retries an operation with exponential backoff while it
// fails with a transient error.
func (s *QdrantStore) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := s.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		if attempt >= s.cfg.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.cfg.MaxRetries, err)
		}

		s.logger.Debug("retrying qdrant operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func (s *QdrantStore) collectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.retryOperation(ctx, "collection_info", func() error {
		_, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
		if err != nil {
			if isNotFound(err) {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (s *QdrantStore) createCollection(ctx context.Context, size uint64) error {
	return s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     size,
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
}

func (s *QdrantStore) dropCollection(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil || !exists {
		return err
	}
	return s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, s.cfg.Collection)
	})
}

func (s *QdrantStore) vectorSize(entries []Entry) uint64 {
	if len(entries) > 0 && len(entries[0].Vector) > 0 {
		return uint64(len(entries[0].Vector))
	}
	return s.cfg.VectorSize
}

func (s *QdrantStore) upsert(ctx context.Context, entries []Entry) error {
	for start := 0; start < len(entries); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(entries))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, e := range entries[start:end] {
			if len(e.Vector) == 0 {
				return fmt.Errorf("entry for snippet %d has no vector", e.SnippetID)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(e.SnippetID)),
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: map[string]*qdrant.Value{
					payloadSnippetID: intValue(e.SnippetID),
					payloadRepoID:    intValue(e.RepositoryID),
				},
			})
		}
		wait := true
		err := s.retryOperation(ctx, "upsert", func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: s.cfg.Collection,
				Points:         points,
				Wait:           &wait,
			})
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func intValue(n int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: n}}
}

func repositoryFilter(repoID int64) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   payloadRepoID,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: repoID}},
				},
			},
		}},
	}
}

// Replace implements Store.
func (s *QdrantStore) Replace(ctx context.Context, entries []Entry) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Replace")
	defer span.End()
	span.SetAttributes(attribute.Int("entries", len(entries)))

	err := s.dropCollection(ctx)
	if err == nil {
		err = s.createCollection(ctx, s.vectorSize(entries))
	}
	if err == nil {
		err = s.upsert(ctx, entries)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("replacing collection %s: %w", s.cfg.Collection, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// ReplaceRepository implements Store.
func (s *QdrantStore) ReplaceRepository(ctx context.Context, repoID int64, entries []Entry) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.ReplaceRepository")
	defer span.End()
	span.SetAttributes(attribute.Int64("repository_id", repoID), attribute.Int("entries", len(entries)))

	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.createCollection(ctx, s.vectorSize(entries)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	} else if err := s.deleteByRepository(ctx, repoID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.upsert(ctx, entries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteRepository implements Store.
func (s *QdrantStore) DeleteRepository(ctx context.Context, repoID int64) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteRepository")
	defer span.End()

	exists, err := s.collectionExists(ctx)
	if err != nil || !exists {
		return err
	}
	return s.deleteByRepository(ctx, repoID)
}

func (s *QdrantStore) deleteByRepository(ctx context.Context, repoID int64) error {
	wait := true
	return s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.cfg.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: repositoryFilter(repoID)},
			},
			Wait: &wait,
		})
		return err
	})
}

// Open implements Store.
func (s *QdrantStore) Open(ctx context.Context) (Handle, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Open")
	defer span.End()

	exists, err := s.collectionExists(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !exists {
		return nil, indexNotFound("collection " + s.cfg.Collection + " does not exist")
	}
	return &qdrantHandle{store: s}, nil
}

// Drop implements Store.
func (s *QdrantStore) Drop(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Drop")
	defer span.End()
	if err := s.dropCollection(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dropping collection %s: %w", s.cfg.Collection, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

type qdrantHandle struct {
	store *QdrantStore
}

func (h *qdrantHandle) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	s := h.store
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()

	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.cfg.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.cfg.Collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hit := Hit{
			SnippetID: int64(p.GetId().GetNum()),
			Distance:  1 - float64(p.GetScore()),
		}
		if v, ok := p.GetPayload()[payloadRepoID]; ok {
			hit.RepositoryID = v.GetIntegerValue()
		}
		hits = append(hits, hit)
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

func (h *qdrantHandle) Count(ctx context.Context) (int, error) {
	s := h.store
	var n uint64
	err := s.retryOperation(ctx, "count", func() error {
		c, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.cfg.Collection,
			Exact:          qdrant.PtrOf(true),
		})
		n = c
		return err
	})
	return int(n), err
}
