package vectors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/d0rc/geo-locator/settings"
	"github.com/rs/zerolog"
)

// NewVectorDB returns the store selected by vector-db.type.
func NewVectorDB(config *settings.VectorDBConfigurationSection, lg zerolog.Logger) (VectorDB, error) {
	switch strings.ToLower(config.Type) {
	case "", "qdrant":
		return NewQdrantClient(config, lg)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown vector-db type %q", config.Type)
}

func CollectionParametersFromConfig(config *settings.VectorDBConfigurationSection) *CollectionParameters {
	return &CollectionParameters{
		Dimensions:      config.Dimensions,
		DistanceMeasure: DistanceMeasureType(config.Distance),
		OnDisk:          config.OnDisk,
		HnswM:           config.HnswM,
	}
}

type memoryCollection struct {
	params *CollectionParameters
	ids    []string
	points map[string]*Vector
}

// Memory is a brute force VectorDB used for dry runs and tests, search
// filters behave the same way they do in qdrant.
type Memory struct {
	lock        sync.RWMutex
	collections map[string]*memoryCollection
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

func (m *Memory) CreateCollection(_ context.Context, collection string, params *CollectionParameters) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, exists := m.collections[collection]; exists {
		return nil
	}
	m.collections[collection] = &memoryCollection{
		params: params,
		points: make(map[string]*Vector),
	}
	return nil
}

func (m *Memory) WaitForCollection(ctx context.Context, collection string, pollDelay time.Duration) error {
	for {
		m.lock.RLock()
		_, exists := m.collections[collection]
		m.lock.RUnlock()
		if exists {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollDelay):
		}
	}
}

func (m *Memory) SetIndexingThreshold(_ context.Context, collection string, _ uint64) error {
	_, err := m.collection(collection)
	return err
}

func (m *Memory) collection(name string) (*memoryCollection, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	c, exists := m.collections[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

func (m *Memory) UpsertVectors(_ context.Context, collection string, vectors []*Vector) error {
	c, err := m.collection(collection)
	if err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	for _, vector := range vectors {
		if uint64(len(vector.VecF32)) != c.params.Dimensions {
			return fmt.Errorf("%w: %s has %d, collection %s expects %d",
				ErrDimensionMismatch, vector.Id, len(vector.VecF32), collection, c.params.Dimensions)
		}
	}
	for _, vector := range vectors {
		id := strings.ToLower(vector.Id)
		if _, exists := c.points[id]; !exists {
			c.ids = append(c.ids, id)
		}
		c.points[id] = &Vector{
			Id:      id,
			VecF32:  append([]float32(nil), vector.VecF32...),
			Payload: vector.Payload,
		}
	}
	return nil
}

func (m *Memory) Missing(_ context.Context, collection string, ids []string) ([]string, error) {
	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	missing := make([]string, 0)
	for _, id := range ids {
		if _, exists := c.points[strings.ToLower(id)]; !exists {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Len is the number of points in collection.
func (m *Memory) Len(collection string) int {
	c, err := m.collection(collection)
	if err != nil {
		return 0
	}

	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(c.ids)
}

func (m *Memory) FindNeighborhoods(_ context.Context, collection string, vector *Vector, params *SearchSettings) ([]*Match, error) {
	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	if uint64(len(vector.VecF32)) != c.params.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, collection %s expects %d",
			ErrDimensionMismatch, len(vector.VecF32), collection, c.params.Dimensions)
	}

	regions := make(map[string]struct{}, len(params.Regions))
	for _, region := range params.Regions {
		regions[region] = struct{}{}
	}

	m.lock.RLock()
	matches := make([]*Match, 0, len(c.ids))
	for _, id := range c.ids {
		point := c.points[id]
		if params.OnlyActive {
			if active, ok := point.Payload[PayloadIsActive].(bool); !ok || !active {
				continue
			}
		}
		if len(regions) > 0 {
			region, _ := point.Payload[PayloadRegion].(string)
			if _, ok := regions[region]; !ok {
				continue
			}
		}
		matches = append(matches, &Match{
			Id:      id,
			Score:   score(c.params.DistanceMeasure, vector.VecF32, point.VecF32),
			Payload: point.Payload,
		})
	}
	m.lock.RUnlock()

	ascending := c.params.DistanceMeasure == DistanceEuclidean || c.params.DistanceMeasure == ""
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Id < matches[j].Id
		}
		if ascending {
			return matches[i].Score < matches[j].Score
		}
		return matches[i].Score > matches[j].Score
	})

	if params.ScoreThreshold != nil {
		threshold := *params.ScoreThreshold
		kept := matches[:0]
		for _, match := range matches {
			if (ascending && match.Score <= threshold) || (!ascending && match.Score >= threshold) {
				kept = append(kept, match)
			}
		}
		matches = kept
	}

	if params.Offset >= uint64(len(matches)) {
		return []*Match{}, nil
	}
	matches = matches[params.Offset:]
	if params.Limit < uint64(len(matches)) {
		matches = matches[:params.Limit]
	}
	return matches, nil
}

func (m *Memory) Close() error {
	return nil
}

func score(measure DistanceMeasureType, a, b []float32) float32 {
	switch measure {
	case DistanceDot:
		return dot(a, b)
	case DistanceCosine:
		na, nb := math.Sqrt(float64(dot(a, a))), math.Sqrt(float64(dot(b, b)))
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(float64(dot(a, b)) / (na * nb))
	}

	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
