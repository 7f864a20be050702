package semantic

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// --- Mocks ---

type mockPoints struct {
	upserts    []*pb.UpsertPoints
	upsertErr  error
	scrollReq  *pb.ScrollPoints
	scrollResp *pb.ScrollResponse
	scrollErr  error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserts = append(m.upserts, in)
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	m.scrollReq = in
	return m.scrollResp, m.scrollErr
}

type mockCollections struct {
	exists    bool
	existsErr error
	created   *pb.CreateCollection
	createErr error
	deleted   string
}

func (m *mockCollections) CollectionExists(_ context.Context, _ *pb.CollectionExistsRequest, _ ...grpc.CallOption) (*pb.CollectionExistsResponse, error) {
	if m.existsErr != nil {
		return nil, m.existsErr
	}
	return &pb.CollectionExistsResponse{Result: &pb.CollectionExists{Exists: m.exists}}, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{Result: m.createErr == nil}, m.createErr
}

func (m *mockCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.deleted = in.GetCollectionName()
	return &pb.CollectionOperationResponse{Result: true}, nil
}

// --- Tests ---

func TestNewWithClients(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{})
	require.NotNil(t, vs)
	require.NoError(t, vs.Close())
}

func TestParseDistance(t *testing.T) {
	tests := map[string]pb.Distance{
		"Cosine":    pb.Distance_Cosine,
		"dot":       pb.Distance_Dot,
		"Euclid":    pb.Distance_Euclid,
		"Manhattan": pb.Distance_Manhattan,
	}
	for name, want := range tests {
		got, err := ParseDistance(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseDistance("hamming")
	assert.Error(t, err)
}

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	cols := &mockCollections{exists: true}
	vs := NewWithClients(&mockPoints{}, cols)

	created, err := vs.EnsureCollection(context.Background(), "docs", 4, pb.Distance_Cosine)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, cols.created)
}

func TestEnsureCollection_Creates(t *testing.T) {
	cols := &mockCollections{}
	vs := NewWithClients(&mockPoints{}, cols)

	created, err := vs.EnsureCollection(context.Background(), "docs", 1536, pb.Distance_Dot)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, cols.created)
	assert.Equal(t, "docs", cols.created.GetCollectionName())
	params := cols.created.GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(1536), params.GetSize())
	assert.Equal(t, pb.Distance_Dot, params.GetDistance())
}

func TestEnsureCollection_Errors(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{existsErr: errors.New("down")})
	_, err := vs.EnsureCollection(context.Background(), "docs", 4, pb.Distance_Cosine)
	require.ErrorContains(t, err, "semantic: collection exists docs")

	vs = NewWithClients(&mockPoints{}, &mockCollections{createErr: errors.New("denied")})
	_, err = vs.EnsureCollection(context.Background(), "docs", 4, pb.Distance_Cosine)
	require.ErrorContains(t, err, "semantic: create collection docs")
}

func TestUpsert(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{})

	err := vs.Upsert(context.Background(), "docs", []VectorRecord{{
		ID:     "a1111111-1111-1111-1111-111111111111",
		Vector: []float32{0.1, 0.2},
		Payload: map[string]any{
			"text": "hello",
			"metadata": map[string]any{
				"chunk_index":  0,
				"embedding_ok": true,
				"keywords":     []string{"a", "b"},
				"title":        nil,
			},
		},
	}})
	require.NoError(t, err)
	require.Len(t, pts.upserts, 1)

	req := pts.upserts[0]
	assert.Equal(t, "docs", req.GetCollectionName())
	assert.True(t, req.GetWait())
	require.Len(t, req.GetPoints(), 1)

	p := req.GetPoints()[0]
	assert.Equal(t, "a1111111-1111-1111-1111-111111111111", p.GetId().GetUuid())
	assert.Equal(t, []float32{0.1, 0.2}, p.GetVectors().GetVector().GetData())
	assert.Equal(t, "hello", p.GetPayload()["text"].GetStringValue())

	meta := p.GetPayload()["metadata"].GetStructValue().GetFields()
	assert.Equal(t, int64(0), meta["chunk_index"].GetIntegerValue())
	assert.True(t, meta["embedding_ok"].GetBoolValue())
	assert.Len(t, meta["keywords"].GetListValue().GetValues(), 2)
	assert.Equal(t, pb.NullValue_NULL_VALUE, meta["title"].GetNullValue())
}

func TestUpsert_EmptyIsNoop(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{})
	require.NoError(t, vs.Upsert(context.Background(), "docs", nil))
	assert.Empty(t, pts.upserts)
}

func TestUpsert_Error(t *testing.T) {
	vs := NewWithClients(&mockPoints{upsertErr: errors.New("unavailable")}, &mockCollections{})
	err := vs.Upsert(context.Background(), "docs", []VectorRecord{{ID: "x", Vector: []float32{1}}})
	require.ErrorContains(t, err, "semantic: upsert 1 points")
}

func TestScroll(t *testing.T) {
	pts := &mockPoints{scrollResp: &pb.ScrollResponse{Result: []*pb.RetrievedPoint{{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "id-1"}},
		Payload: map[string]*pb.Value{
			"text": {Kind: &pb.Value_StringValue{StringValue: "oil change"}},
			"metadata": {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: map[string]*pb.Value{
				"category": {Kind: &pb.Value_StringValue{StringValue: "general"}},
			}}}},
		},
		Vectors: &pb.VectorsOutput{VectorsOptions: &pb.VectorsOutput_Vector{Vector: &pb.VectorOutput{Data: []float32{1, 0}}}},
	}}}}
	vs := NewWithClients(pts, &mockCollections{})

	points, err := vs.Scroll(context.Background(), "docs", 25, true, true)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "id-1", points[0].ID)
	assert.Equal(t, "oil change", points[0].Text())
	assert.Equal(t, "general", points[0].Metadata()["category"])
	assert.Equal(t, []float32{1, 0}, points[0].Vector)

	assert.Equal(t, uint32(25), pts.scrollReq.GetLimit())
	assert.True(t, pts.scrollReq.GetWithVectors().GetEnable())
	assert.True(t, pts.scrollReq.GetWithPayload().GetEnable())
}

func TestValueRoundTrip(t *testing.T) {
	in := map[string]any{
		"s": "x",
		"i": 3,
		"f": 0.5,
		"b": false,
		"l": []any{"a", int64(1)},
		"m": map[string]any{"n": nil},
	}
	out := fromPayload(toPayload(in))
	assert.Equal(t, "x", out["s"])
	assert.Equal(t, int64(3), out["i"])
	assert.Equal(t, 0.5, out["f"])
	assert.Equal(t, false, out["b"])
	assert.Equal(t, []any{"a", int64(1)}, out["l"])
	assert.Equal(t, map[string]any{"n": nil}, out["m"])
}

func TestRank(t *testing.T) {
	points := []Point{
		{ID: "a", Vector: []float32{0, 1}},
		{ID: "b", Vector: []float32{1, 0}},
		{ID: "c", Vector: []float32{0.9, 0.1}},
		{ID: "zero", Vector: []float32{0, 0}},
	}
	ranked := Rank(points, []float32{1, 0}, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, "c", ranked[1].ID)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-6)
}

func TestCosine_Degenerate(t *testing.T) {
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine(nil, nil))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}
