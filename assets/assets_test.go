package assets

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	key, err := s.Put(ctx, "nb1", "Plot.PNG", "image/png", strings.NewReader("pngdata"), 7)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "nb1/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.Equal(t, "nb1", NotebookOf(key))

	obj, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "pngdata", string(data))
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, int64(7), obj.Size)

	other, err := s.Put(ctx, "nb1", "Plot.PNG", "image/png", strings.NewReader("x"), 1)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, key), ErrNotFound)
	require.NoError(t, s.Delete(ctx, other))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestMemoryStore_UnknownSize(t *testing.T) {
	s := NewMemoryStore()
	key, err := s.Put(context.Background(), "nb1", "data", "", strings.NewReader("abc"), -1)
	require.NoError(t, err)
	assert.NotContains(t, strings.TrimPrefix(key, "nb1/"), ".")

	obj, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), obj.Size)
}

func TestMemoryStore_ShortRead(t *testing.T) {
	_, err := NewMemoryStore().Put(context.Background(), "nb1", "a.txt", "text/plain", strings.NewReader("ab"), 5)
	assert.Error(t, err)
}

func TestMinioStore(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set, skipping MinIO tests")
	}
	s, err := NewMinioStore(context.Background(), MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    "notebook-assets-test",
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	})
	require.NoError(t, err)
	testStore(t, s)
}
