package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/d0rc/geo-locator/imaging"
	"github.com/d0rc/geo-locator/metrics"
	"github.com/tidwall/gjson"
)

func RunEmbeddingsRequest(ctx context.Context, inferenceEngine *RemoteInferenceEngine, batch [][]float32) ([][]float32, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	if inferenceEngine.EmbeddingsEndpointUrl == "" {
		return nil, fmt.Errorf("embeddings endpoint is not configured")
	}

	type command struct {
		Input []string `json:"input"`
		Shape []int    `json:"shape"`
	}

	// '{"input":["<base64 float32>", ...], "shape":[3,512,512]}'
	cmd := &command{
		Input: make([]string, len(batch)),
		Shape: tensorShape,
	}
	for i, tensor := range batch {
		cmd.Input[i] = imaging.EncodeTensor(tensor)
	}

	commandBuffer, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("error marshaling command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		inferenceEngine.EmbeddingsEndpointUrl,
		bytes.NewReader(commandBuffer))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if inferenceEngine.Token != "" {
		req.Header.Set("Authorization", "Bearer "+inferenceEngine.Token)
	}

	resp, err := inferenceEngine.client.Do(req)
	if err != nil {
		inferenceEngine.lg.Error().Err(err).
			Int("batch", len(batch)).
			Msg("error sending request")
		metrics.Tick("inference.errors", 1)
		return nil, err
	}
	defer resp.Body.Close()

	result, err := io.ReadAll(resp.Body)
	if err != nil {
		inferenceEngine.lg.Error().Err(err).
			Int("batch", len(batch)).
			Msg("error reading response")
		metrics.Tick("inference.errors", 1)
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		metrics.Tick("inference.errors", 1)
		return nil, fmt.Errorf("inference request failed, http code is %d: %s", resp.StatusCode, truncate(result, 256))
	}

	// {"data":[{"embedding":[...]}, ...], "model":"..."}
	data := gjson.GetBytes(result, "data")
	if !data.IsArray() {
		return nil, fmt.Errorf("%w: no data array in %s", ErrEmbeddingMismatch, truncate(result, 256))
	}
	items := data.Array()
	if len(items) != len(batch) {
		return nil, fmt.Errorf("%w: asked for %d, got %d", ErrEmbeddingMismatch, len(batch), len(items))
	}

	embeddings := make([][]float32, len(items))
	for idx, item := range items {
		values := item.Get("embedding").Array()
		if len(values) != inferenceEngine.EmbeddingsDims {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d",
				ErrEmbeddingMismatch, idx, len(values), inferenceEngine.EmbeddingsDims)
		}
		embedding := make([]float32, len(values))
		for i, v := range values {
			embedding[i] = float32(v.Float())
		}
		embeddings[idx] = embedding
	}

	metrics.Tick("inference.images", int64(len(batch)))
	inferenceEngine.lg.Debug().
		Int("batch", len(batch)).
		Str("model", gjson.GetBytes(result, "model").String()).
		Msg("embeddings computed")

	return embeddings, nil
}

func truncate(data []byte, size int) string {
	if len(data) > size {
		return string(data[:size]) + "..."
	}
	return string(data)
}
