package cmds

import (
	"context"
	"fmt"

	"github.com/d0rc/geo-locator/engines"
	"github.com/d0rc/geo-locator/imaging"
	"github.com/d0rc/geo-locator/metrics"
	"github.com/d0rc/geo-locator/server"
	"github.com/d0rc/geo-locator/vectors"
)

// ProcessImage embeds the posted tensor and returns the nearest active
// locations, restricted to the requested regions when there are any.
func ProcessImage(c context.Context, request *ProcessImageRequest, ctx *server.Context) (*ProcessImageResponse, error) {
	maxLimit := ctx.Config.Server.MaxLimit
	if request.Limit <= 0 || (maxLimit > 0 && request.Limit > maxLimit) {
		return nil, &ClientError{Detail: fmt.Sprintf("limit must be in [1, %d]", maxLimit)}
	}
	if request.Offset < 0 {
		return nil, &ClientError{Detail: "offset must not be negative"}
	}

	tensor, err := imaging.DecodeTensor(request.Image, imaging.TensorElements)
	if err != nil {
		return nil, &ClientError{Detail: "Invalid image"}
	}

	embeddings, err := ctx.Embedder.Embed(c, [][]float32{tensor})
	if err != nil {
		return nil, fmt.Errorf("error computing descriptor: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("%w: asked for 1, got %d", engines.ErrEmbeddingMismatch, len(embeddings))
	}

	matches, err := ctx.VectorDB.FindNeighborhoods(c, ctx.Config.VectorDB.Collection,
		&vectors.Vector{VecF32: embeddings[0]},
		&vectors.SearchSettings{
			Limit:      uint64(request.Limit),
			Offset:     uint64(request.Offset),
			Regions:    request.Regions,
			OnlyActive: true,
			HnswEf:     request.HnswEf,
			Exact:      request.Exact,
		})
	if err != nil {
		return nil, fmt.Errorf("error searching %s: %w", ctx.Config.VectorDB.Collection, err)
	}

	response := &ProcessImageResponse{
		Result: make([]*SearchHit, len(matches)),
	}
	for idx, match := range matches {
		response.Result[idx] = &SearchHit{
			Id:      match.Id,
			Score:   match.Score,
			Payload: match.Payload,
		}
	}
	metrics.Tick("server.queries", 1)

	return response, nil
}
