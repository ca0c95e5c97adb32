package evaluation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/d0rc/geo-locator/batcher"
	"github.com/d0rc/geo-locator/dataset"
	"github.com/d0rc/geo-locator/engines"
	"github.com/d0rc/geo-locator/imaging"
	"github.com/d0rc/geo-locator/metrics"
	"github.com/d0rc/geo-locator/vectors"
	"github.com/rs/zerolog"
)

const EarthRadiusMeters = 6371008.8

// HaversineMeters is the great circle distance between two lon/lat points.
func HaversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

type Settings struct {
	// a prediction within Radius meters of the ground truth is a hit
	Radius           float64
	RecallIntervalls []int
	Regions          []string
	BatchSize        int
}

type Evaluator struct {
	db         vectors.VectorDB
	embedder   engines.Embedder
	collection string
	lg         zerolog.Logger
}

func NewEvaluator(db vectors.VectorDB, embedder engines.Embedder, collection string, lg zerolog.Logger) *Evaluator {
	return &Evaluator{
		db:         db,
		embedder:   embedder,
		collection: collection,
		lg:         lg.With().Str("collection", collection).Logger(),
	}
}

func normalizeIntervals(intervals []int) ([]int, error) {
	seen := make(map[int]struct{}, len(intervals))
	result := make([]int, 0, len(intervals))
	for _, n := range intervals {
		if n <= 0 {
			return nil, fmt.Errorf("recall interval %d must be positive", n)
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			result = append(result, n)
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no recall intervals")
	}
	sort.Ints(result)
	return result, nil
}

// Evaluate queries the store with every ground truth image of ds and
// computes recall@N for each of the configured intervals.
func (e *Evaluator) Evaluate(ctx context.Context, ds *dataset.SampleDataset, s Settings) (*dataset.EvaluationResult, error) {
	intervals, err := normalizeIntervals(s.RecallIntervalls)
	if err != nil {
		return nil, err
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 8
	}
	limit := intervals[len(intervals)-1]

	result := &dataset.EvaluationResult{
		Info:              ds.Info,
		Radius:            s.Radius,
		RecallIntervalls:  intervals,
		RecallCounts:      make([]int, len(intervals)),
		RecallPercentages: make([]float64, len(intervals)),
		PredictionPairs:   make([]dataset.GroundTruthAndPredictions, 0, len(ds.Samples)),
	}

	for _, chunk := range batcher.Chunks(ds.Samples, s.BatchSize) {
		samples := make([]*dataset.Sample, 0, len(chunk))
		tensors := make([][]float32, 0, len(chunk))
		for _, sample := range chunk {
			img, err := imaging.LoadImage(sample.AbsoluteImagePath)
			if err != nil {
				metrics.Tick("evaluation.failed", 1)
				e.lg.Error().Err(err).Str("image", sample.ImagePath).Msg("error loading ground truth image")
				continue
			}
			samples = append(samples, sample)
			tensors = append(tensors, imaging.ToTensor(img, imaging.TensorSize))
		}
		if len(samples) == 0 {
			continue
		}

		descriptors, err := e.embedder.Embed(ctx, tensors)
		if err != nil {
			return nil, fmt.Errorf("error embedding ground truth: %w", err)
		}
		if len(descriptors) != len(samples) {
			return nil, fmt.Errorf("%w: asked for %d, got %d", engines.ErrEmbeddingMismatch, len(samples), len(descriptors))
		}

		for idx, sample := range samples {
			matches, err := e.db.FindNeighborhoods(ctx, e.collection,
				&vectors.Vector{VecF32: descriptors[idx]},
				&vectors.SearchSettings{
					Limit:      uint64(limit),
					Regions:    s.Regions,
					OnlyActive: true,
				})
			if err != nil {
				return nil, fmt.Errorf("error searching for %s: %w", sample.ImagePath, err)
			}

			pair := dataset.GroundTruthAndPredictions{
				GroundTruth: dataset.GroundTruth{Sample: *sample},
				Predictions: make([]dataset.Prediction, len(matches)),
			}
			pair.GroundTruth.Sample.Descriptor = nil
			for i, match := range matches {
				predicted := SampleFromPayload(match.Payload)
				distance := HaversineMeters(sample.Lon, sample.Lat, predicted.Lon, predicted.Lat)
				pair.Predictions[i] = dataset.Prediction{
					Status: distance <= s.Radius,
					Score:  float64(match.Score),
					Sample: predicted,
				}
			}
			result.PredictionPairs = append(result.PredictionPairs, pair)
			metrics.Tick("evaluation.queries", 1)
		}
	}

	for _, pair := range result.PredictionPairs {
		firstHit := -1
		for i, prediction := range pair.Predictions {
			if prediction.Status {
				firstHit = i
				break
			}
		}
		if firstHit < 0 {
			continue
		}
		for k, n := range intervals {
			if firstHit < n {
				result.RecallCounts[k]++
			}
		}
	}
	if queries := len(result.PredictionPairs); queries > 0 {
		for k := range intervals {
			result.RecallPercentages[k] = 100 * float64(result.RecallCounts[k]) / float64(queries)
		}
	}

	return result, nil
}

// SampleFromPayload rebuilds the stored sample metadata of a search match.
func SampleFromPayload(payload map[string]interface{}) dataset.Sample {
	sample := dataset.Sample{
		Lon:                 toFloat(payload[vectors.PayloadLon]),
		Lat:                 toFloat(payload[vectors.PayloadLat]),
		Altitude:            toFloat(payload[vectors.PayloadAltitude]),
		HeadingAngle:        toFloat(payload[vectors.PayloadHeadingAngle]),
		ArtifactProbability: toFloat(payload[vectors.PayloadArtifactProbability]),
	}
	// points stored before flat coordinates were added only carry LonLat
	if lonLat, ok := payload[vectors.PayloadLonLat].(map[string]interface{}); ok {
		if _, flat := payload[vectors.PayloadLon]; !flat {
			sample.Lon = toFloat(lonLat["lon"])
			sample.Lat = toFloat(lonLat["lat"])
		}
	}
	sample.StreetName, _ = payload[vectors.PayloadStreetName].(string)
	sample.AbsoluteImagePath, _ = payload[vectors.PayloadAbsoluteImagePath].(string)
	sample.ImagePath = sample.AbsoluteImagePath
	sample.IsActive, _ = payload[vectors.PayloadIsActive].(bool)
	return sample
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
