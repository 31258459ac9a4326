package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/assetlens/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Reserved payload keys. Every other string payload key is asset metadata.
const (
	payloadAssetID     = "asset_id"
	payloadDescription = "description"
	payloadIndexedAt   = "indexed_at"
)

// QdrantConnectionConfig holds configuration for a Qdrant connection.
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API key, sent as gRPC metadata
	UseTLS          bool
	VectorDimension int
	Timeout         time.Duration // per operation; zero means none
}

// apiKeyInterceptor adds the API key to every unary call.
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantIndex stores asset vectors in a Qdrant collection.
//
// It is unusable until EnsureCollection succeeds. Every operation checks this
// first and fails with domain.ErrIndexUnavailable, including on a nil receiver.
type QdrantIndex struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
	timeout         time.Duration
	ready           atomic.Bool
}

// NewQdrantIndex creates the gRPC client. It supports local Qdrant (insecure)
// and Qdrant Cloud (TLS + API key). No network call is made here.
func NewQdrantIndex(cfg *QdrantConnectionConfig) (*QdrantIndex, error) {
	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.VectorDimension)
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantIndex{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: cfg.VectorDimension,
		timeout:         cfg.Timeout,
	}, nil
}

// Close closes the gRPC connection.
func (r *QdrantIndex) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	r.ready.Store(false)
	return r.conn.Close()
}

// Ready reports whether EnsureCollection has succeeded.
func (r *QdrantIndex) Ready() bool {
	return r != nil && r.conn != nil && r.ready.Load()
}

// Dimension returns the vector size of the collection.
func (r *QdrantIndex) Dimension() int {
	if r == nil {
		return 0
	}
	return r.vectorDimension
}

// Collection returns the collection name.
func (r *QdrantIndex) Collection() string {
	if r == nil {
		return ""
	}
	return r.collectionName
}

func (r *QdrantIndex) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// EnsureCollection verifies the collection exists with the expected vector size,
// creating it with the cosine metric if missing. A concurrent create that wins
// the race is accepted.
func (r *QdrantIndex) EnsureCollection(ctx context.Context) error {
	if r == nil || r.conn == nil {
		return domain.ErrIndexUnavailable
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d: %w",
				r.collectionName, size, r.vectorDimension, domain.ErrDimensionMismatch)
		}
	} else if status.Code(err) != codes.NotFound && !isNotFound(err) {
		return fmt.Errorf("failed to get collection info: %w", err)
	} else {
		_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
			CollectionName: r.collectionName,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(r.vectorDimension),
						Distance: pb.Distance_Cosine,
					},
				},
			},
			HnswConfig: &pb.HnswConfigDiff{
				M:           optionalUint64(16),
				EfConstruct: optionalUint64(128),
			},
		})
		if err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	wait := true
	_, err = r.pointsClient.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: r.collectionName,
		Wait:           &wait,
		FieldName:      payloadAssetID,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("failed to index asset_id payload: %w", err)
	}

	r.ready.Store(true)
	return nil
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists ||
		strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "doesn't exist")
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}
	for _, params := range vectors.GetParamsMap().GetMap() {
		if size := params.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

func (r *QdrantIndex) check(vector []float32) error {
	if !r.Ready() {
		return domain.ErrIndexUnavailable
	}
	return checkVector(vector, r.vectorDimension)
}

// Upsert stores one record under its RecordID, which must be a UUID.
func (r *QdrantIndex) Upsert(ctx context.Context, rec *domain.AssetRecord) error {
	if err := r.check(rec.Vector); err != nil {
		return err
	}
	uid, err := uuid.Parse(rec.RecordID)
	if err != nil {
		return fmt.Errorf("invalid record ID: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	wait := true
	_, err = r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: rec.Vector},
					},
				},
				Payload: buildPayload(rec),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// buildPayload flattens metadata next to the reserved keys.
// Metadata never overrides a reserved key.
func buildPayload(rec *domain.AssetRecord) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(rec.Metadata)+3)
	for k, v := range rec.Metadata {
		payload[k] = stringValue(v)
	}
	payload[payloadAssetID] = stringValue(rec.AssetID)
	payload[payloadDescription] = stringValue(rec.Description)
	if !rec.IndexedAt.IsZero() {
		payload[payloadIndexedAt] = stringValue(rec.IndexedAt.UTC().Format(time.RFC3339))
	}
	return payload
}

// Search returns up to k records ordered by descending cosine similarity.
func (r *QdrantIndex) Search(ctx context.Context, vector []float32, k int, filter *domain.SearchFilter) ([]domain.SearchResult, error) {
	if err := r.check(vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(k),
		Filter:         buildFilter(filter),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		res := parsePayload(scored.GetPayload())
		res.RecordID = scored.GetId().GetUuid()
		res.Score = scored.GetScore()
		results = append(results, res)
	}
	return results, nil
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func buildFilter(filter *domain.SearchFilter) *pb.Filter {
	if filter.IsEmpty() {
		return nil
	}
	return &pb.Filter{
		Must: []*pb.Condition{keywordCondition(domain.MetaWorkspace, filter.Workspace)},
	}
}

// assetFilter matches every record of assetID except the keep ids.
func assetFilter(assetID string, keep []string) *pb.Filter {
	f := &pb.Filter{
		Must: []*pb.Condition{keywordCondition(payloadAssetID, assetID)},
	}
	if len(keep) > 0 {
		ids := make([]*pb.PointId, 0, len(keep))
		for _, id := range keep {
			ids = append(ids, &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}})
		}
		f.MustNot = []*pb.Condition{
			{ConditionOneOf: &pb.Condition_HasId{HasId: &pb.HasIdCondition{HasId: ids}}},
		}
	}
	return f
}

func parsePayload(payload map[string]*pb.Value) domain.SearchResult {
	res := domain.SearchResult{Metadata: domain.Metadata{}}
	for k, v := range payload {
		switch k {
		case payloadAssetID:
			res.AssetID = v.GetStringValue()
		case payloadDescription:
			res.Description = v.GetStringValue()
		case payloadIndexedAt:
		default:
			if s, ok := scalarString(v); ok {
				res.Metadata[k] = s
			}
		}
	}
	return res
}

func scalarString(v *pb.Value) (string, bool) {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue, true
	case *pb.Value_IntegerValue:
		return strconv.FormatInt(kind.IntegerValue, 10), true
	case *pb.Value_DoubleValue:
		return strconv.FormatFloat(kind.DoubleValue, 'f', -1, 64), true
	case *pb.Value_BoolValue:
		return strconv.FormatBool(kind.BoolValue), true
	default:
		return "", false
	}
}

// DeleteAsset removes every record whose asset_id matches, except the keep ids.
func (r *QdrantIndex) DeleteAsset(ctx context.Context, assetID string, keep ...string) error {
	if !r.Ready() {
		return domain.ErrIndexUnavailable
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	wait := true
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: assetFilter(assetID, keep),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", assetID, err)
	}
	return nil
}
