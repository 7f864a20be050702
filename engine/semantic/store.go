// Package semantic is the Qdrant adapter: it creates the collection, upserts
// chunk vectors and reads points back.
package semantic

import (
	"context"
	"fmt"
	"strings"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

type collectionsAPI interface {
	CollectionExists(ctx context.Context, in *pb.CollectionExistsRequest, opts ...grpc.CallOption) (*pb.CollectionExistsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore owns all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	timeout     time.Duration
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
// timeout bounds every call; zero disables it.
func New(addr string, timeout time.Duration) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	vs := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn))
	vs.conn = conn
	vs.timeout = timeout
	return vs, nil
}

// NewWithClients builds a VectorStore over existing clients.
func NewWithClients(points pointsAPI, collections collectionsAPI) *VectorStore {
	return &VectorStore{points: points, collections: collections}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

func (v *VectorStore) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, v.timeout)
}

// ParseDistance maps a configured metric name to the Qdrant enum.
func ParseDistance(name string) (pb.Distance, error) {
	switch strings.ToLower(name) {
	case "cosine", "":
		return pb.Distance_Cosine, nil
	case "dot":
		return pb.Distance_Dot, nil
	case "euclid", "euclidean":
		return pb.Distance_Euclid, nil
	case "manhattan":
		return pb.Distance_Manhattan, nil
	}
	return 0, fmt.Errorf("semantic: unknown distance %q", name)
}

// CollectionExists reports whether the collection exists.
func (v *VectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := v.callCtx(ctx)
	defer cancel()
	resp, err := v.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, fmt.Errorf("semantic: collection exists %s: %w", name, err)
	}
	return resp.GetResult().GetExists(), nil
}

// CreateCollection creates the collection with the given vector size.
func (v *VectorStore) CreateCollection(ctx context.Context, name string, size int, distance pb.Distance) error {
	ctx, cancel := v.callCtx(ctx)
	defer cancel()
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(size),
					Distance: distance,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

// EnsureCollection creates the collection if it doesn't exist. It reports
// whether a collection was created.
func (v *VectorStore) EnsureCollection(ctx context.Context, name string, size int, distance pb.Distance) (bool, error) {
	exists, err := v.CollectionExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	return true, v.CreateCollection(ctx, name, size, distance)
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := v.callCtx(ctx)
	defer cancel()
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes records and waits for the write to be applied. Records with
// an existing ID replace the stored point.
func (v *VectorStore) Upsert(ctx context.Context, name string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: toPayload(r.Payload),
		}
	}

	ctx, cancel := v.callCtx(ctx)
	defer cancel()
	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Scroll reads up to limit points in storage order.
func (v *VectorStore) Scroll(ctx context.Context, name string, limit int, withPayload, withVectors bool) ([]Point, error) {
	ctx, cancel := v.callCtx(ctx)
	defer cancel()
	lim := uint32(limit)
	resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: name,
		Limit:          &lim,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: withPayload}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: withVectors}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: scroll %s: %w", name, err)
	}

	out := make([]Point, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		out[i] = Point{
			ID:      pointID(p.GetId()),
			Vector:  p.GetVectors().GetVector().GetData(),
			Payload: fromPayload(p.GetPayload()),
		}
	}
	return out, nil
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}
