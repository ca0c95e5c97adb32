package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/d0rc/geo-locator/dataset"
	image_store "github.com/d0rc/geo-locator/image-store"
	"github.com/d0rc/geo-locator/metrics"
	"github.com/d0rc/geo-locator/settings"
	"github.com/d0rc/geo-locator/vectors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	err      error
	calls    int
	maxBatch int
}

func (e *countingEmbedder) Embed(_ context.Context, tensors [][]float32) ([][]float32, error) {
	e.calls++
	e.maxBatch = max(e.maxBatch, len(tensors))
	if e.err != nil {
		return nil, e.err
	}
	result := make([][]float32, len(tensors))
	for i, tensor := range tensors {
		result[i] = []float32{tensor[0], tensor[len(tensor)/3], tensor[2*len(tensor)/3], 1}
	}
	return result, nil
}

func (e *countingEmbedder) Dims() int { return 4 }

func testConfig() *settings.ConfigurationFile {
	config := settings.Default()
	config.VectorDB.Dimensions = 4
	config.VectorDB.PollDelayMs = 1
	config.Ingest.RegionTag = "berlin"
	config.Ingest.ExistsBatchSize = 4
	config.Ingest.InferenceBatchSize = 3
	config.Ingest.UploadBatchSize = 5
	config.Ingest.Loaders = 2
	return config
}

func writeImages(t *testing.T, dir string, n int) *dataset.SampleDataset {
	ds := &dataset.SampleDataset{}
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = uint8(10*i), 128, 255, 255
		}
		buf := bytes.Buffer{}
		require.NoError(t, png.Encode(&buf, img))
		name := fmt.Sprintf("Images/pano_%03d_crop_000.png", i)
		require.NoError(t, image_store.NewLocal(dir).Put(context.Background(), name, buf.Bytes()))

		ds.Samples = append(ds.Samples, &dataset.Sample{
			ImagePath:         name,
			AbsoluteImagePath: filepath.Join(dir, filepath.FromSlash(name)),
			Lon:               13.4 + float64(i)*0.001,
			Lat:               52.5,
			StreetName:        "Karl-Marx-Allee",
			IsActive:          true,
		})
	}
	ds.Info.SampleCount = n
	return ds
}

func TestLoadImagesIntoDB(t *testing.T) {
	config := testConfig()
	db := vectors.NewMemory()
	embedder := &countingEmbedder{}
	loader := NewLoader(config, db, embedder, zerolog.Nop())
	require.NoError(t, loader.Prepare(context.Background()))

	ds := writeImages(t, t.TempDir(), 11)
	report, err := loader.LoadImagesIntoDB(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 11, report.Total)
	assert.Equal(t, 0, report.Existing)
	assert.Equal(t, 11, report.Embedded)
	assert.Equal(t, 11, report.Uploaded)
	assert.Equal(t, 11, db.Len(config.VectorDB.Collection))
	assert.LessOrEqual(t, embedder.maxBatch, 3)
	for _, stage := range ProgressStages {
		if stage.Counter == "ingest.failed" {
			continue
		}
		assert.Equal(t, metrics.GetTotal(stage.Counter), metrics.Get(stage.Counter), stage.Title)
	}

	matches, err := db.FindNeighborhoods(context.Background(), config.VectorDB.Collection,
		&vectors.Vector{VecF32: ds.Samples[3].Descriptor},
		&vectors.SearchSettings{Limit: 1, OnlyActive: true, Regions: []string{"berlin"}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, dataset.BuildUniqueSampleId(ds.Samples[3]), matches[0].Id)
	assert.Equal(t, ds.Samples[3].AbsoluteImagePath, matches[0].Payload[vectors.PayloadAbsoluteImagePath])
}

func TestSecondRunUploadsNothing(t *testing.T) {
	config := testConfig()
	db := vectors.NewMemory()
	embedder := &countingEmbedder{}
	loader := NewLoader(config, db, embedder, zerolog.Nop())
	require.NoError(t, loader.Prepare(context.Background()))

	ds := writeImages(t, t.TempDir(), 6)
	_, err := loader.LoadImagesIntoDB(context.Background(), ds)
	require.NoError(t, err)
	calls := embedder.calls

	report, err := loader.LoadImagesIntoDB(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Existing)
	assert.Equal(t, 0, report.Uploaded)
	assert.Equal(t, calls, embedder.calls)
	assert.Equal(t, 6, db.Len(config.VectorDB.Collection))
}

func TestLoadSkipsBrokenImagesAndClips(t *testing.T) {
	config := testConfig()
	config.Ingest.ClipToBounds = true
	db := vectors.NewMemory()
	loader := NewLoader(config, db, &countingEmbedder{}, zerolog.Nop())
	require.NoError(t, loader.Prepare(context.Background()))

	dir := t.TempDir()
	ds := writeImages(t, dir, 5)
	require.NoError(t, os.Remove(ds.Samples[1].AbsoluteImagePath))
	ds.Samples[4].Lon = 2.35
	ds.Info.BoundingPolygon = []dataset.Coordinates{
		{Lon: 13, Lat: 52}, {Lon: 14, Lat: 52}, {Lon: 14, Lat: 53}, {Lon: 13, Lat: 53},
	}

	report, err := loader.LoadImagesIntoDB(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Clipped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Uploaded)

	missing, err := db.Missing(context.Background(), config.VectorDB.Collection, []string{
		dataset.BuildUniqueSampleId(ds.Samples[1]),
		dataset.BuildUniqueSampleId(ds.Samples[4]),
	})
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	buf := &bytes.Buffer{}
	report.Print(buf)
	assert.Contains(t, buf.String(), "outside bounds")
}

func TestLoadFromImageStore(t *testing.T) {
	config := testConfig()
	db := vectors.NewMemory()
	dir := t.TempDir()
	loader := NewLoader(config, db, &countingEmbedder{}, zerolog.Nop()).WithImageStore(image_store.NewLocal(dir))
	require.NoError(t, loader.Prepare(context.Background()))

	ds := writeImages(t, dir, 2)
	for _, sample := range ds.Samples {
		sample.AbsoluteImagePath = "s3://bucket/" + sample.ImagePath
	}
	report, err := loader.LoadImagesIntoDB(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Uploaded)
}

func TestLoadReportsEmbedderFailure(t *testing.T) {
	config := testConfig()
	db := vectors.NewMemory()
	boom := errors.New("inference down")
	loader := NewLoader(config, db, &countingEmbedder{err: boom}, zerolog.Nop())
	require.NoError(t, loader.Prepare(context.Background()))

	_, err := loader.LoadImagesIntoDB(context.Background(), writeImages(t, t.TempDir(), 7))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, db.Len(config.VectorDB.Collection))
}

func TestSampleToVector(t *testing.T) {
	sample := &dataset.Sample{
		AbsoluteImagePath:   "/data/berlin/Images/pano_000001_crop_030.jpg",
		Lon:                 13.40495,
		Lat:                 52.52001,
		HeadingAngle:        30,
		Altitude:            34,
		StreetName:          "Unter den Linden",
		ArtifactProbability: 0.25,
		IsActive:            true,
		Descriptor:          []float32{1, 2, 3, 4},
	}

	v := SampleToVector(sample, "berlin")
	assert.Equal(t, "e9d79d19-348f-5e8a-9fd1-171cb82df591", v.Id)
	assert.Equal(t, []float32{1, 2, 3, 4}, v.VecF32)
	assert.Equal(t, map[string]interface{}{"lon": 13.40495, "lat": 52.52001}, v.Payload[vectors.PayloadLonLat])
	assert.Equal(t, true, v.Payload[vectors.PayloadIsActive])
	assert.Equal(t, "berlin", v.Payload[vectors.PayloadRegion])
	assert.Equal(t, 30.0, v.Payload[vectors.PayloadHeadingAngle])
	assert.Equal(t, 0.25, v.Payload[vectors.PayloadArtifactProbability])
	assert.Equal(t, "Unter den Linden", v.Payload[vectors.PayloadStreetName])
	assert.Equal(t, 34.0, v.Payload[vectors.PayloadAltitude])
	assert.Equal(t, sample.AbsoluteImagePath, v.Payload[vectors.PayloadAbsoluteImagePath])
}
