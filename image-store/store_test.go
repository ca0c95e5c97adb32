package image_store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/d0rc/geo-locator/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	store := NewLocal(root)

	require.NoError(t, store.Put(context.Background(), "Images/a_crop_000.jpg", []byte("jpeg")))
	assert.Equal(t, filepath.Join(root, "Images", "a_crop_000.jpg"), store.Location("Images/a_crop_000.jpg"))

	data, err := store.Get(context.Background(), "Images/a_crop_000.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = store.Get(context.Background(), "Images/missing.jpg")
	assert.Error(t, err)
}

func TestMinioKeysAndLocation(t *testing.T) {
	store, err := NewMinio(&settings.ObjectStoreConfigurationSection{
		Endpoint: "localhost:9000",
		Bucket:   "panoramas",
		Prefix:   "berlin",
	})
	require.NoError(t, err)

	assert.Equal(t, "berlin/Images/x_crop_030.jpg", store.key("./Images/x_crop_030.jpg"))
	assert.Equal(t, "berlin/Images/x.jpg", store.key("../Images/x.jpg"))
	assert.Equal(t, "s3://panoramas/berlin/Images/x.jpg", store.Location("Images/x.jpg"))
	assert.Equal(t, "image/jpeg", contentType("a.JPG"))
}

func TestNewFromConfig(t *testing.T) {
	store, err := NewFromConfig(&settings.ObjectStoreConfigurationSection{}, "/tmp/out")
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	_, err = NewFromConfig(&settings.ObjectStoreConfigurationSection{Type: "ftp"}, "")
	assert.Error(t, err)

	_, err = NewFromConfig(&settings.ObjectStoreConfigurationSection{Type: "minio"}, "")
	assert.Error(t, err)
}
