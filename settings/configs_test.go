package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configYaml = `
vector-db:
  host: qdrant.internal
  collection: berlin
  hnsw-m: 16
inference:
  embeddings-endpoint: http://gpu-01:8000/v1/embeddings
  max-batch-size: 16
ingest:
  region-tag: berlin-mitte
  upload-batch-size: 500
`

func TestProcessConfigurationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYaml), 0o644))
	t.Setenv("QDRANT_API_KEY", "secret")

	config, err := ProcessConfigurationFile(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant.internal", config.VectorDB.Host)
	assert.Equal(t, "berlin", config.VectorDB.Collection)
	assert.Equal(t, uint64(16), config.VectorDB.HnswM)
	assert.Equal(t, "secret", config.VectorDB.APIToken)
	// untouched keys keep their defaults
	assert.Equal(t, 6334, config.VectorDB.Port)
	assert.Equal(t, uint64(512), config.VectorDB.Dimensions)
	assert.Equal(t, 16, config.Inference.MaxBatchSize)
	assert.Equal(t, "berlin-mitte", config.Ingest.RegionTag)
	assert.Equal(t, 500, config.Ingest.UploadBatchSize)
	assert.Equal(t, 10000, config.Ingest.ExistsBatchSize)
	assert.Equal(t, 3328, config.Slicer.PanoWidth)
}

func TestProcessConfigurationFileErrors(t *testing.T) {
	_, err := ProcessConfigurationFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("slicer:\n  crop-size: 4096\n"), 0o644))
	_, err = ProcessConfigurationFile(path)
	assert.ErrorContains(t, err, "crop-size")
}

func TestDefaultsWithoutFile(t *testing.T) {
	config, err := ProcessConfigurationFile("")
	require.NoError(t, err)
	assert.Equal(t, "geo-location", config.VectorDB.Collection)
	assert.Equal(t, 2000, config.Ingest.UploadBatchSize)
}
