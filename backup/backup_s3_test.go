package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// newTestClient connects to S3-compatible server at $KVSTORE_TEST_S3,
// e.g. a local minio started with:
// docker run -p 9000:9000 minio/minio server /data
func newTestClient(t *testing.T) *Client {
	endpoint := os.Getenv("KVSTORE_TEST_S3")
	if endpoint == "" {
		t.Skip("KVSTORE_TEST_S3 not set")
	}
	cfg := &Config{
		Access:   envOr("KVSTORE_TEST_S3_ACCESS", "minioadmin"),
		Secret:   envOr("KVSTORE_TEST_S3_SECRET", "minioadmin"),
		Bucket:   envOr("KVSTORE_TEST_S3_BUCKET", "kvstore-test"),
		Endpoint: endpoint,
		Insecure: os.Getenv("KVSTORE_TEST_S3_TLS") == "",
		Prefix:   "test-" + uuid.NewString()[:8] + "/",
	}
	ctx := context.Background()
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: !cfg.Insecure,
	})
	assert.NoError(t, err)
	found, err := mc.BucketExists(ctx, cfg.Bucket)
	assert.NoError(t, err)
	if !found {
		assert.NoError(t, mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}))
	}

	c, err := New(ctx, cfg)
	assert.NoError(t, err)
	t.Cleanup(func() {
		opts := minio.ListObjectsOptions{Prefix: cfg.Prefix, Recursive: true}
		for obj := range mc.ListObjects(ctx, cfg.Bucket, opts) {
			if obj.Err == nil {
				_ = mc.RemoveObject(ctx, cfg.Bucket, obj.Key, minio.RemoveObjectOptions{})
			}
		}
	})
	return c
}

func writeStoreFiles(t *testing.T, dir string, data, index []byte) (string, string) {
	dataPath := filepath.Join(dir, "KeyValue.db")
	indexPath := filepath.Join(dir, "KeyValue.dbindex")
	assert.NoError(t, os.WriteFile(dataPath, data, 0644))
	assert.NoError(t, os.WriteFile(indexPath, index, 0644))
	return dataPath, indexPath
}

func putObject(t *testing.T, c *Client, key string, d []byte) {
	_, err := c.Client.PutObject(context.Background(), c.Bucket, key, bytes.NewReader(d), int64(len(d)), minio.PutObjectOptions{})
	assert.NoError(t, err)
}

func TestUploadDownload(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	data := []byte(strings.Repeat(`{"name":"john"}`, 100))
	index := make([]byte, 128)
	copy(index, "a_0_15_")
	index[63] = '\n'
	dataPath, indexPath := writeStoreFiles(t, t.TempDir(), data, index)

	m, err := c.Upload(ctx, dataPath, indexPath)
	assert.NoError(t, err)
	assert.Equal(t, int64(len(data)), m.DataSize)
	assert.Equal(t, int64(len(index)), m.IndexSize)

	// files without manifest are not a backup
	putObject(t, c, c.remotePath("00000000-000000-partial0", remoteDataName), data)
	putObject(t, c, c.remotePath("00000000-000000-partial0", remoteIndexName), index)

	ids, err := c.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{m.ID}, ids)

	m2, err := c.ReadManifest(ctx, m.ID)
	assert.NoError(t, err)
	assert.Equal(t, m.ID, m2.ID)
	assert.Equal(t, "KeyValue.db", m2.DataFileName)

	dir := filepath.Join(t.TempDir(), "restored")
	dataPath2 := filepath.Join(dir, "KeyValue.db")
	indexPath2 := filepath.Join(dir, "KeyValue.dbindex")
	_, err = c.Download(ctx, m.ID, dataPath2, indexPath2)
	assert.NoError(t, err)
	d, err := os.ReadFile(dataPath2)
	assert.NoError(t, err)
	assert.Equal(t, data, d)
	d, err = os.ReadFile(indexPath2)
	assert.NoError(t, err)
	assert.Equal(t, index, d)

	_, err = c.Download(ctx, "00000000-000000-partial0", dataPath2, indexPath2)
	assert.Error(t, err)

	assert.NoError(t, c.Remove(ctx, m.ID))
	ids, err = c.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(ids))
}

func TestDownloadSizeMismatchKeepsFiles(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	dir := t.TempDir()
	dataPath, indexPath := writeStoreFiles(t, dir, []byte("hello"), make([]byte, 64))
	m, err := c.Upload(ctx, dataPath, indexPath)
	assert.NoError(t, err)

	// remote data doesn't match size recorded in manifest
	putObject(t, c, c.remotePath(m.ID, remoteDataName), []byte("hello world"))

	dir2 := t.TempDir()
	dataPath2, indexPath2 := writeStoreFiles(t, dir2, []byte("local"), nil)
	_, err = c.Download(ctx, m.ID, dataPath2, indexPath2)
	assert.Error(t, err)
	d, err := os.ReadFile(dataPath2)
	assert.NoError(t, err)
	assert.Equal(t, "local", string(d))
}
