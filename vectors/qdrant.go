package vectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/d0rc/geo-locator/settings"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
)

type QdrantClient struct {
	client *qdrant.Client
	lg     zerolog.Logger
}

func NewQdrantClient(config *settings.VectorDBConfigurationSection, lg zerolog.Logger) (*QdrantClient, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIToken,
		UseTLS: config.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to qdrant at %s:%d: %w", config.Host, config.Port, err)
	}

	return &QdrantClient{
		client: client,
		lg:     lg.With().Str("vector-db", "qdrant").Logger(),
	}, nil
}

func ptr[T any](v T) *T {
	return &v
}

func qdrantDistance(measure DistanceMeasureType) qdrant.Distance {
	switch measure {
	case DistanceCosine:
		return qdrant.Distance_Cosine
	case DistanceDot:
		return qdrant.Distance_Dot
	}
	return qdrant.Distance_Euclid
}

func (q *QdrantClient) CreateCollection(ctx context.Context, collection string, params *CollectionParameters) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("error checking collection %s: %w", collection, err)
	}
	if exists {
		q.lg.Info().Str("collection", collection).Msg("collection already exists")
		return nil
	}

	hnswM := params.HnswM
	if hnswM == 0 {
		hnswM = 32
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     params.Dimensions,
			Distance: qdrantDistance(params.DistanceMeasure),
			OnDisk:   ptr(params.OnDisk),
		}),
		OnDiskPayload: ptr(params.OnDisk),
		HnswConfig: &qdrant.HnswConfigDiff{
			M:      ptr(hnswM),
			OnDisk: ptr(params.OnDisk),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating collection %s: %w", collection, err)
	}

	indexes := []struct {
		field string
		kind  qdrant.FieldType
	}{
		{PayloadIsActive, qdrant.FieldType_FieldTypeBool},
		{PayloadRegion, qdrant.FieldType_FieldTypeKeyword},
	}
	for _, index := range indexes {
		_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      index.field,
			FieldType:      index.kind.Enum(),
			Wait:           ptr(true),
		})
		if err != nil {
			return fmt.Errorf("error creating %s index on %s: %w", index.field, collection, err)
		}
	}

	q.lg.Info().Str("collection", collection).
		Uint64("dimensions", params.Dimensions).
		Str("distance", string(params.DistanceMeasure)).
		Msg("collection created")
	return nil
}

func (q *QdrantClient) WaitForCollection(ctx context.Context, collection string, pollDelay time.Duration) error {
	for {
		info, err := q.client.GetCollectionInfo(ctx, collection)
		switch {
		case err != nil:
			q.lg.Error().Err(err).Str("collection", collection).Msg("error getting collection info")
		case info.GetStatus() == qdrant.CollectionStatus_Green:
			return nil
		default:
			q.lg.Info().Str("collection", collection).
				Str("status", info.GetStatus().String()).
				Msg("waiting for collection")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollDelay):
		}
	}
}

func (q *QdrantClient) SetIndexingThreshold(ctx context.Context, collection string, threshold uint64) error {
	return q.client.UpdateCollection(ctx, &qdrant.UpdateCollection{
		CollectionName: collection,
		OptimizersConfig: &qdrant.OptimizersConfigDiff{
			IndexingThreshold: ptr(threshold),
		},
	})
}

func (q *QdrantClient) UpsertVectors(ctx context.Context, collection string, vectors []*Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(vectors))
	for idx, vector := range vectors {
		payload, err := qdrant.TryValueMap(vector.Payload)
		if err != nil {
			return fmt.Errorf("error converting payload of %s: %w", vector.Id, err)
		}
		points[idx] = &qdrant.PointStruct{
			Id:      qdrant.NewID(vector.Id),
			Vectors: qdrant.NewVectors(vector.VecF32...),
			Payload: payload,
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           ptr(true),
		Points:         points,
	})
	return err
}

func (q *QdrantClient) Missing(ctx context.Context, collection string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIds := make([]*qdrant.PointId, len(ids))
	for idx, id := range ids {
		pointIds[idx] = qdrant.NewID(id)
	}

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIds,
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("error retrieving %d points from %s: %w", len(ids), collection, err)
	}

	stored := make(map[string]struct{}, len(points))
	for _, point := range points {
		stored[strings.ToLower(pointIdString(point.GetId()))] = struct{}{}
	}

	missing := make([]string, 0, len(ids)-len(stored))
	for _, id := range ids {
		if _, ok := stored[strings.ToLower(id)]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (q *QdrantClient) FindNeighborhoods(ctx context.Context, collection string, vector *Vector, params *SearchSettings) ([]*Match, error) {
	request := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector.VecF32...),
		Limit:          ptr(params.Limit),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: params.ScoreThreshold,
	}
	if params.Offset > 0 {
		request.Offset = ptr(params.Offset)
	}
	if params.HnswEf > 0 || params.Exact {
		request.Params = &qdrant.SearchParams{Exact: ptr(params.Exact)}
		if params.HnswEf > 0 {
			request.Params.HnswEf = ptr(params.HnswEf)
		}
	}

	must := make([]*qdrant.Condition, 0, 2)
	if params.OnlyActive {
		must = append(must, qdrant.NewMatchBool(PayloadIsActive, true))
	}
	if len(params.Regions) > 0 {
		must = append(must, qdrant.NewMatchKeywords(PayloadRegion, params.Regions...))
	}
	if len(must) > 0 {
		request.Filter = &qdrant.Filter{Must: must}
	}

	points, err := q.client.Query(ctx, request)
	if err != nil {
		return nil, err
	}

	result := make([]*Match, len(points))
	for idx, point := range points {
		result[idx] = &Match{
			Id:      pointIdString(point.GetId()),
			Score:   point.GetScore(),
			Payload: fromValueMap(point.GetPayload()),
		}
	}

	return result, nil
}

func (q *QdrantClient) Close() error {
	return q.client.Close()
}

func pointIdString(id *qdrant.PointId) string {
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func fromValueMap(values map[string]*qdrant.Value) map[string]interface{} {
	result := make(map[string]interface{}, len(values))
	for k, v := range values {
		result[k] = fromValue(v)
	}
	return result
}

func fromValue(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return fromValueMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		list := make([]interface{}, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			list = append(list, fromValue(item))
		}
		return list
	}
	return nil
}
