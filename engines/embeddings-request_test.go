package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/d0rc/geo-locator/imaging"
	"github.com/d0rc/geo-locator/settings"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inferenceStub answers with embeddings whose first element is the first
// element of the matching input tensor.
func inferenceStub(t *testing.T, dims int, requests *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var cmd struct {
			Input []string `json:"input"`
			Shape []int    `json:"shape"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		assert.Equal(t, []int{3, 512, 512}, cmd.Shape)

		items := make([]string, len(cmd.Input))
		for i, input := range cmd.Input {
			tensor, err := imaging.DecodeTensor(input, 4)
			require.NoError(t, err)
			values := make([]string, dims)
			for j := range values {
				values[j] = "0"
			}
			values[0] = fmt.Sprintf("%g", tensor[0])
			items[i] = `{"embedding":[` + strings.Join(values, ",") + `]}`
		}
		_, _ = fmt.Fprintf(w, `{"data":[%s],"model":"stub"}`, strings.Join(items, ","))
	}))
}

func newEngine(url string, dims int) *RemoteInferenceEngine {
	return NewRemoteInferenceEngine(&settings.InferenceConfigurationSection{
		EmbeddingsEndpoint: url,
		Token:              "token",
		MaxBatchSize:       2,
		EmbeddingsDims:     dims,
	}, zerolog.Nop())
}

func TestEmbedSplitsBatches(t *testing.T) {
	var requests int32
	srv := inferenceStub(t, 4, &requests)
	defer srv.Close()

	engine := newEngine(srv.URL, 4)
	tensors := [][]float32{{1, 0, 0, 0}, {2, 0, 0, 0}, {3, 0, 0, 0}, {4, 0, 0, 0}, {5, 0, 0, 0}}

	embeddings, err := engine.Embed(context.Background(), tensors)
	require.NoError(t, err)
	require.Len(t, embeddings, 5)
	for i, embedding := range embeddings {
		assert.Len(t, embedding, 4)
		assert.Equal(t, float32(i+1), embedding[0])
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	assert.Equal(t, 4, engine.Dims())
}

func TestEmbedErrors(t *testing.T) {
	var requests int32
	srv := inferenceStub(t, 3, &requests)
	defer srv.Close()

	_, err := newEngine(srv.URL, 4).Embed(context.Background(), [][]float32{{1, 0, 0, 0}})
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)

	_, err = newEngine(srv.URL, 4).Embed(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	_, err = newEngine(failing.URL, 4).Embed(context.Background(), [][]float32{{1, 0, 0, 0}})
	assert.ErrorContains(t, err, "503")

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer short.Close()
	_, err = newEngine(short.URL, 4).Embed(context.Background(), [][]float32{{1, 0, 0, 0}})
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
}
