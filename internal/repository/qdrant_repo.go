package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/quernlabs/quern/internal/apperrors"
)

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host   string
	Port   int
	APIKey string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS bool   // Explicitly enable TLS without API Key
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// IndexStatus describes the readiness of a vector collection.
// Values include IndexStatusReady, IndexStatusProvisioning, and IndexStatusFailed.
type IndexStatus string

const (
	IndexStatusReady        IndexStatus = "ready"
	IndexStatusProvisioning IndexStatus = "provisioning"
	IndexStatusFailed       IndexStatus = "failed"
)

// ChunkPoint is one vector plus its retrieval payload, addressed by the
// chunk's ordinal. Ordinals double as point ids, so re-upserting a chunk
// overwrites its previous vector.
type ChunkPoint struct {
	Ordinal    uint64
	Vector     []float32
	DocumentID string
	Text       string
}

// QdrantRepository manages per-engine vector collections in Qdrant. Each
// query engine build creates its own collection; the collection name is the
// opaque index handle the pipeline carries around.
type QdrantRepository struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	// Build gRPC dial options
	var opts []grpc.DialOption

	// TLS is enabled if: APIKey is set OR UseTLS is explicitly true
	useTLS := cfg.UseTLS || cfg.APIKey != ""

	if useTLS {
		// Use TLS with system root certificates (TLS 1.3 minimum for Qdrant Cloud)
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, grpc.WithTransportCredentials(creds))

		// Add API Key authentication if provided (using unary interceptor)
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		// Local mode: no TLS, no authentication
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// CreateCollection creates a vector collection with the given dimension.
// Idempotent: an existing collection with a matching vector size is left in
// place, a mismatched one is an error.
func (r *QdrantRepository) CreateCollection(ctx context.Context, name string, dimension int) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: name,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(dimension) {
				return apperrors.Newf(apperrors.KindConflict,
					"collection %s has vector size %d, expected %d", name, size, dimension)
			}
		}
		return nil // Collection exists
	}
	if code := status.Code(err); code != codes.NotFound && code != codes.InvalidArgument {
		return classifyQdrantErr("get collection info", err)
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return classifyQdrantErr("create collection", err)
	}

	return nil
}

// CollectionStatus reports the readiness of a collection. Yellow (still
// optimizing) and unknown map to provisioning; only green is ready.
func (r *QdrantRepository) CollectionStatus(ctx context.Context, name string) (IndexStatus, error) {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: name,
	})
	if err != nil {
		return "", classifyQdrantErr("get collection info", err)
	}

	switch info.GetResult().GetStatus() {
	case pb.CollectionStatus_Green:
		return IndexStatusReady, nil
	case pb.CollectionStatus_Red:
		return IndexStatusFailed, nil
	default:
		return IndexStatusProvisioning, nil
	}
}

// UpsertChunks inserts or updates a batch of chunk vectors in a collection.
func (r *QdrantRepository) UpsertChunks(ctx context.Context, collection string, points []ChunkPoint) error {
	if len(points) == 0 {
		return nil
	}

	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Num{
					Num: p.Ordinal,
				},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{
						Data: p.Vector,
					},
				},
			},
			Payload: map[string]*pb.Value{
				"document_id": {Kind: &pb.Value_StringValue{StringValue: p.DocumentID}},
				"ordinal":     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Ordinal)}},
				"text":        {Kind: &pb.Value_StringValue{StringValue: p.Text}},
			},
		}
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         pbPoints,
	})
	if err != nil {
		return classifyQdrantErr("upsert points", err)
	}

	return nil
}

// DeleteCollection removes a collection. Used for best-effort reclamation
// when a build fails after its index was created.
func (r *QdrantRepository) DeleteCollection(ctx context.Context, name string) error {
	_, err := r.collectClient.Delete(ctx, &pb.DeleteCollection{
		CollectionName: name,
	})
	if err != nil {
		return classifyQdrantErr("delete collection", err)
	}
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}

	return 0, false
}

// classifyQdrantErr maps gRPC status codes onto the pipeline's error
// taxonomy so the worker can tell transient failures from fatal ones.
func classifyQdrantErr(op string, err error) error {
	switch status.Code(err) {
	case codes.Canceled:
		return apperrors.Wrapf(apperrors.KindCancelled, err, "qdrant: %s", op)
	case codes.DeadlineExceeded:
		return apperrors.Wrapf(apperrors.KindTimeout, err, "qdrant: %s", op)
	case codes.NotFound:
		return apperrors.Wrapf(apperrors.KindNotFound, err, "qdrant: %s", op)
	case codes.ResourceExhausted:
		return apperrors.Wrapf(apperrors.KindQuotaExceeded, err, "qdrant: %s", op)
	case codes.PermissionDenied, codes.Unauthenticated:
		return apperrors.Wrapf(apperrors.KindPermission, err, "qdrant: %s", op)
	case codes.InvalidArgument:
		return apperrors.Wrapf(apperrors.KindValidation, err, "qdrant: %s", op)
	default:
		return apperrors.Wrapf(apperrors.KindExternalService, err, "qdrant: %s", op)
	}
}
