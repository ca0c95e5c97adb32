package engines

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/d0rc/geo-locator/imaging"
	"github.com/d0rc/geo-locator/settings"
	"github.com/rs/zerolog"
)

// Embedder turns normalized CHW image tensors into place descriptors.
type Embedder interface {
	Embed(ctx context.Context, tensors [][]float32) ([][]float32, error)
	Dims() int
}

var (
	ErrEmptyBatch        = errors.New("empty batch")
	ErrEmbeddingMismatch = errors.New("unexpected embeddings in inference response")
)

const InferenceTimeout = 60 * time.Second

// RemoteInferenceEngine is an Embedder backed by an HTTP inference runtime.
type RemoteInferenceEngine struct {
	EmbeddingsEndpointUrl string
	Token                 string
	MaxBatchSize          int
	EmbeddingsDims        int

	client *http.Client
	lg     zerolog.Logger
}

func NewRemoteInferenceEngine(config *settings.InferenceConfigurationSection, lg zerolog.Logger) *RemoteInferenceEngine {
	timeout := InferenceTimeout
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}
	maxBatchSize := config.MaxBatchSize
	if maxBatchSize <= 0 {
		maxBatchSize = 8
	}
	dims := config.EmbeddingsDims
	if dims <= 0 {
		dims = 512
	}

	return &RemoteInferenceEngine{
		EmbeddingsEndpointUrl: config.EmbeddingsEndpoint,
		Token:                 config.Token,
		MaxBatchSize:          maxBatchSize,
		EmbeddingsDims:        dims,
		client:                &http.Client{Timeout: timeout},
		lg:                    lg.With().Str("engine", config.EmbeddingsEndpoint).Logger(),
	}
}

func (e *RemoteInferenceEngine) Dims() int {
	return e.EmbeddingsDims
}

// Embed splits tensors into requests of at most MaxBatchSize images.
func (e *RemoteInferenceEngine) Embed(ctx context.Context, tensors [][]float32) ([][]float32, error) {
	if len(tensors) == 0 {
		return nil, ErrEmptyBatch
	}

	results := make([][]float32, 0, len(tensors))
	for start := 0; start < len(tensors); start += e.MaxBatchSize {
		end := min(start+e.MaxBatchSize, len(tensors))
		embeddings, err := RunEmbeddingsRequest(ctx, e, tensors[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

// tensor shape every request carries, batch dimension excluded
var tensorShape = []int{imaging.TensorChannels, imaging.TensorSize, imaging.TensorSize}
