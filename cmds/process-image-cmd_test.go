package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/d0rc/geo-locator/engines"
	"github.com/d0rc/geo-locator/imaging"
	"github.com/d0rc/geo-locator/server"
	"github.com/d0rc/geo-locator/settings"
	"github.com/d0rc/geo-locator/vectors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prefixEmbedder uses the first four tensor values as the descriptor.
type prefixEmbedder struct {
	err   error
	empty bool
	calls int
}

func (e *prefixEmbedder) Embed(_ context.Context, tensors [][]float32) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if e.empty {
		return [][]float32{}, nil
	}
	result := make([][]float32, len(tensors))
	for i, tensor := range tensors {
		result[i] = append([]float32(nil), tensor[:4]...)
	}
	return result, nil
}

func (e *prefixEmbedder) Dims() int { return 4 }

type mapCache struct {
	lock   sync.Mutex
	values map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.values[key] = value
	return nil
}

func (c *mapCache) Close() error { return nil }

func location(id string, active bool, region string, lon float64, vec ...float32) *vectors.Vector {
	return &vectors.Vector{
		Id:     id,
		VecF32: vec,
		Payload: map[string]interface{}{
			vectors.PayloadIsActive: active,
			vectors.PayloadRegion:   region,
			vectors.PayloadLon:      lon,
		},
	}
}

func testContext(t *testing.T, embedder *prefixEmbedder, cache server.ResultCache) *server.Context {
	config := settings.Default()
	config.VectorDB.Dimensions = 4
	config.Server.MaxLimit = 50

	db := vectors.NewMemory()
	require.NoError(t, db.CreateCollection(context.Background(), config.VectorDB.Collection,
		vectors.CollectionParametersFromConfig(&config.VectorDB)))
	require.NoError(t, db.UpsertVectors(context.Background(), config.VectorDB.Collection, []*vectors.Vector{
		location("a", true, "berlin", 13.4, 0, 0, 0, 0),
		location("b", true, "paris", 2.35, 1, 0, 0, 0),
		location("c", false, "berlin", 13.5, 0.1, 0, 0, 0),
		location("d", true, "berlin", 13.6, 2, 0, 0, 0),
	}))

	return server.NewContext(config, zerolog.Nop(), db, embedder, cache)
}

func requestBody(t *testing.T, request *ProcessImageRequest) []byte {
	if request.Image == "" {
		request.Image = imaging.EncodeTensor(make([]float32, imaging.TensorElements))
	}
	body, err := json.Marshal(request)
	require.NoError(t, err)
	return body
}

func post(handler http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return rec
}

func decodeHits(t *testing.T, rec *httptest.ResponseRecorder) []string {
	response := &ProcessImageResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
	ids := make([]string, len(response.Result))
	for i, hit := range response.Result {
		ids[i] = hit.Id
	}
	return ids
}

func TestProcessImageReturnsActiveMatches(t *testing.T) {
	handler := BuildRoutes(testContext(t, &prefixEmbedder{}, nil))

	rec := post(handler, "/process-image", requestBody(t, &ProcessImageRequest{Limit: 10}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"a", "b", "d"}, decodeHits(t, rec))

	rec = post(handler, "/proccess-image", requestBody(t, &ProcessImageRequest{Limit: 1, Offset: 1, Regions: []string{"berlin"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"d"}, decodeHits(t, rec))

	response := &ProcessImageResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
	assert.Equal(t, 13.6, response.Result[0].Payload[vectors.PayloadLon])
	assert.InDelta(t, 2.0, response.Result[0].Score, 1e-6)
}

func TestProcessImageClientErrors(t *testing.T) {
	embedder := &prefixEmbedder{}
	handler := BuildRoutes(testContext(t, embedder, nil))

	cases := map[string][]byte{
		"not json":        []byte(`{"image":`),
		"bad base64":      []byte(`{"image":"***","limit":5}`),
		"short tensor":    []byte(`{"image":"AAAAAA==","limit":5}`),
		"missing limit":   requestBody(t, &ProcessImageRequest{}),
		"limit too large": requestBody(t, &ProcessImageRequest{Limit: 51}),
		"negative offset": requestBody(t, &ProcessImageRequest{Limit: 5, Offset: -1}),
	}
	for name, body := range cases {
		rec := post(handler, "/process-image", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, rec.Body.String(), "detail", name)
	}
	assert.Equal(t, 0, embedder.calls)

	rec := post(handler, "/process-image", []byte(`{"image":"***","limit":5}`))
	assert.JSONEq(t, `{"detail":"Invalid image"}`, rec.Body.String())
}

func TestProcessImageServerErrors(t *testing.T) {
	handler := BuildRoutes(testContext(t, &prefixEmbedder{err: errors.New("gpu on fire")}, nil))
	rec := post(handler, "/process-image", requestBody(t, &ProcessImageRequest{Limit: 5}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "gpu on fire")

	short := testContext(t, &prefixEmbedder{empty: true}, nil)
	_, err := ProcessImage(context.Background(), &ProcessImageRequest{
		Image: imaging.EncodeTensor(make([]float32, imaging.TensorElements)),
		Limit: 5,
	}, short)
	assert.ErrorIs(t, err, engines.ErrEmbeddingMismatch)
	rec = post(BuildRoutes(short), "/process-image", requestBody(t, &ProcessImageRequest{Limit: 5}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	ctx := testContext(t, &prefixEmbedder{}, nil)
	ctx.Config.VectorDB.Collection = "missing"
	rec = post(BuildRoutes(ctx), "/process-image", requestBody(t, &ProcessImageRequest{Limit: 5}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProcessImageCachesResponses(t *testing.T) {
	embedder := &prefixEmbedder{}
	cache := &mapCache{values: map[string][]byte{}}
	handler := BuildRoutes(testContext(t, embedder, cache))
	body := requestBody(t, &ProcessImageRequest{Limit: 2})

	first := post(handler, "/process-image", body)
	require.Equal(t, http.StatusOK, first.Code)
	second := post(handler, "/process-image", body)
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, embedder.calls)
	assert.Len(t, cache.values, 1)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	handler := BuildRoutes(testContext(t, &prefixEmbedder{}, nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/process-image", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
