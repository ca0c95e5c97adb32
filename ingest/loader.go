package ingest

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/d0rc/geo-locator/batcher"
	"github.com/d0rc/geo-locator/dataset"
	"github.com/d0rc/geo-locator/engines"
	image_store "github.com/d0rc/geo-locator/image-store"
	"github.com/d0rc/geo-locator/imaging"
	"github.com/d0rc/geo-locator/metrics"
	"github.com/d0rc/geo-locator/settings"
	"github.com/d0rc/geo-locator/vectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Report struct {
	Total    int
	Clipped  int
	Existing int
	Embedded int
	Uploaded int
	Failed   int
	Duration time.Duration
}

// Loader embeds dataset images and stores them in the vector database.
type Loader struct {
	db       vectors.VectorDB
	embedder engines.Embedder
	vectorDB *settings.VectorDBConfigurationSection
	settings *settings.IngestConfigurationSection
	open     func(ctx context.Context, sample *dataset.Sample) (image.Image, error)
	lg       zerolog.Logger
}

func NewLoader(config *settings.ConfigurationFile, db vectors.VectorDB, embedder engines.Embedder, lg zerolog.Logger) *Loader {
	return &Loader{
		db:       db,
		embedder: embedder,
		vectorDB: &config.VectorDB,
		settings: &config.Ingest,
		open: func(_ context.Context, sample *dataset.Sample) (image.Image, error) {
			return imaging.LoadImage(sample.AbsoluteImagePath)
		},
		lg: lg.With().Str("collection", config.VectorDB.Collection).Logger(),
	}
}

// WithImageStore reads images from store by their manifest path instead of the local disk.
func (l *Loader) WithImageStore(store image_store.Store) *Loader {
	l.open = func(ctx context.Context, sample *dataset.Sample) (image.Image, error) {
		data, err := store.Get(ctx, sample.ImagePath)
		if err != nil {
			return nil, err
		}
		return imaging.Decode(data)
	}
	return l
}

// Prepare creates the collection, disables indexing for the bulk load and
// waits until the collection is green.
func (l *Loader) Prepare(ctx context.Context) error {
	collection := l.vectorDB.Collection
	err := l.db.CreateCollection(ctx, collection, vectors.CollectionParametersFromConfig(l.vectorDB))
	if err != nil {
		return err
	}

	err = l.db.SetIndexingThreshold(ctx, collection, 0)
	if err != nil {
		return fmt.Errorf("error setting indexing threshold on %s: %w", collection, err)
	}

	pollDelay := time.Duration(l.vectorDB.PollDelayMs) * time.Millisecond
	if pollDelay <= 0 {
		pollDelay = time.Second
	}
	return l.db.WaitForCollection(ctx, collection, pollDelay)
}

// FilterExisting drops samples already present in the collection. Upserts are
// idempotent, this only saves inference.
func (l *Loader) FilterExisting(ctx context.Context, samples []*dataset.Sample) ([]*dataset.Sample, error) {
	metrics.SetTotal("ingest.checked", metrics.Get("ingest.checked")+int64(len(samples)))

	pending := make([]*dataset.Sample, 0, len(samples))
	for _, chunk := range batcher.Chunks(samples, l.settings.ExistsBatchSize) {
		byId := make(map[string]*dataset.Sample, len(chunk))
		ids := make([]string, len(chunk))
		for idx, sample := range chunk {
			ids[idx] = dataset.BuildUniqueSampleId(sample)
			byId[ids[idx]] = sample
		}

		missing, err := l.db.Missing(ctx, l.vectorDB.Collection, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range missing {
			pending = append(pending, byId[id])
		}
		metrics.Tick("ingest.checked", int64(len(chunk)))
	}
	return pending, nil
}

type loadedSample struct {
	sample *dataset.Sample
	tensor []float32
}

// LoadImagesIntoDB embeds and uploads every sample of ds which is not stored yet.
func (l *Loader) LoadImagesIntoDB(ctx context.Context, ds *dataset.SampleDataset) (*Report, error) {
	started := time.Now()
	report := &Report{Total: len(ds.Samples)}

	samples := ds.Samples
	if l.settings.ClipToBounds {
		samples = make([]*dataset.Sample, 0, len(ds.Samples))
		for _, sample := range ds.Samples {
			if ds.Info.Contains(sample.Lon, sample.Lat) {
				samples = append(samples, sample)
			}
		}
		report.Clipped = len(ds.Samples) - len(samples)
	}

	pending, err := l.FilterExisting(ctx, samples)
	if err != nil {
		return nil, fmt.Errorf("error filtering existing samples: %w", err)
	}
	report.Existing = len(samples) - len(pending)
	l.lg.Info().
		Int("total", report.Total).
		Int("existing", report.Existing).
		Int("pending", len(pending)).
		Msg("filtered out existing images")

	if len(pending) == 0 {
		report.Duration = time.Since(started)
		return report, nil
	}

	for _, counter := range []string{"ingest.embedded", "ingest.uploaded"} {
		metrics.SetTotal(counter, metrics.Get(counter)+int64(len(pending)))
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan *dataset.Sample)
	loaded := make(chan loadedSample, l.settings.InferenceBatchSize)

	g.Go(func() error {
		defer close(jobs)
		for _, sample := range pending {
			select {
			case jobs <- sample:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	loaders := errgroup.Group{}
	for i := 0; i < max(l.settings.Loaders, 1); i++ {
		loaders.Go(func() error {
			for sample := range jobs {
				img, err := l.open(gctx, sample)
				if err != nil {
					failed.Add(1)
					metrics.Tick("ingest.failed", 1)
					l.lg.Error().Err(err).Str("image", sample.ImagePath).Msg("error loading image")
					continue
				}
				select {
				case loaded <- loadedSample{sample: sample, tensor: imaging.ToTensor(img, imaging.TensorSize)}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(loaded)
		return loaders.Wait()
	})

	g.Go(func() error {
		upload := batcher.NewBatcher(func(batch []*dataset.Sample) error {
			points := make([]*vectors.Vector, len(batch))
			for idx, sample := range batch {
				points[idx] = SampleToVector(sample, l.settings.RegionTag)
			}
			if err := l.db.UpsertVectors(gctx, l.vectorDB.Collection, points); err != nil {
				return fmt.Errorf("error uploading %d samples: %w", len(batch), err)
			}
			report.Uploaded += len(batch)
			metrics.Tick("ingest.uploaded", int64(len(batch)))
			l.lg.Info().Int("batch", len(batch)).Int("uploaded", report.Uploaded).Msg("uploaded batch")
			return nil
		}, l.settings.UploadBatchSize)

		inference := batcher.NewBatcher(func(batch []loadedSample) error {
			tensors := make([][]float32, len(batch))
			for idx, item := range batch {
				tensors[idx] = item.tensor
			}
			descriptors, err := l.embedder.Embed(gctx, tensors)
			if err != nil {
				return fmt.Errorf("error embedding %d images: %w", len(batch), err)
			}
			if len(descriptors) != len(batch) {
				return fmt.Errorf("%w: asked for %d, got %d", engines.ErrEmbeddingMismatch, len(batch), len(descriptors))
			}
			for idx, item := range batch {
				item.sample.Descriptor = descriptors[idx]
				report.Embedded++
				metrics.Tick("ingest.embedded", 1)
				if err := upload.RunTask(item.sample); err != nil {
					return err
				}
			}
			return nil
		}, l.settings.InferenceBatchSize)

		for item := range loaded {
			if err := inference.RunTask(item); err != nil {
				return err
			}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		if err := inference.Flush(); err != nil {
			return err
		}
		return upload.Flush()
	})

	err = g.Wait()
	report.Failed = int(failed.Load())
	report.Duration = time.Since(started)
	if err != nil {
		return report, err
	}

	l.lg.Info().
		Int("embedded", report.Embedded).
		Int("uploaded", report.Uploaded).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("ingestion done")
	return report, nil
}

// SampleToVector builds the point stored for a sample, its id is BuildUniqueSampleId.
func SampleToVector(sample *dataset.Sample, region string) *vectors.Vector {
	return &vectors.Vector{
		Id:     dataset.BuildUniqueSampleId(sample),
		VecF32: sample.Descriptor,
		Payload: map[string]interface{}{
			vectors.PayloadLonLat: map[string]interface{}{
				"lon": sample.Lon,
				"lat": sample.Lat,
			},
			vectors.PayloadLon:                 sample.Lon,
			vectors.PayloadLat:                 sample.Lat,
			vectors.PayloadIsActive:            sample.IsActive,
			vectors.PayloadArtifactProbability: sample.ArtifactProbability,
			vectors.PayloadStreetName:          sample.StreetName,
			vectors.PayloadHeadingAngle:        sample.HeadingAngle,
			vectors.PayloadAltitude:            sample.Altitude,
			vectors.PayloadRegion:              region,
			vectors.PayloadAbsoluteImagePath:   sample.AbsoluteImagePath,
		},
	}
}
