package vectors

import (
	"context"
	"errors"
	"time"
)

type Vector struct {
	Id      string                 `json:"id"`
	VecF32  []float32              `json:"vecF32"`
	Payload map[string]interface{} `json:"payload"`
}

type Match struct {
	Id      string                 `json:"id"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type SearchSettings struct {
	Limit  uint64
	Offset uint64
	// Regions restricts matches to points tagged with one of the regions, empty means any.
	Regions    []string
	OnlyActive bool
	HnswEf     uint64
	Exact      bool
	// ScoreThreshold is a maximal distance for Euclid and a minimal similarity otherwise.
	ScoreThreshold *float32
}

type DistanceMeasureType string

const (
	DistanceCosine    DistanceMeasureType = "Cosine"
	DistanceEuclidean DistanceMeasureType = "Euclid"
	DistanceDot       DistanceMeasureType = "Dot"
)

type CollectionParameters struct {
	Dimensions      uint64
	DistanceMeasure DistanceMeasureType
	OnDisk          bool
	HnswM           uint64
}

// payload keys stored with every point
const (
	PayloadLonLat              = "LonLat"
	PayloadLon                 = "Lon"
	PayloadLat                 = "Lat"
	PayloadIsActive            = "IsActive"
	PayloadArtifactProbability = "ArtifactProbability"
	PayloadStreetName          = "StreetName"
	PayloadHeadingAngle        = "HeadingAngle"
	PayloadAltitude            = "Altitude"
	PayloadRegion              = "Region"
	PayloadAbsoluteImagePath   = "AbsoluteImagePath"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
)

type VectorDB interface {
	// CreateCollection is a no-op for an existing collection.
	CreateCollection(ctx context.Context, collection string, params *CollectionParameters) error
	// WaitForCollection polls every pollDelay until the collection is ready to serve.
	WaitForCollection(ctx context.Context, collection string, pollDelay time.Duration) error
	SetIndexingThreshold(ctx context.Context, collection string, threshold uint64) error
	// UpsertVectors overwrites points with the same id.
	UpsertVectors(ctx context.Context, collection string, vectors []*Vector) error
	// Missing returns the ids not stored in the collection, in input order.
	Missing(ctx context.Context, collection string, ids []string) ([]string, error)
	FindNeighborhoods(ctx context.Context, collection string, vector *Vector, params *SearchSettings) ([]*Match, error)
	Close() error
}
