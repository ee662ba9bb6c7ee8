// Package backup copies store files to an S3-compatible bucket and back.
//
// Every backup gets a new id and is stored under ${prefix}${id}/ as
// the data file, the index file and a small manifest.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/kjk/kvstore/recio"
	"github.com/kjk/kvstore/u"
)

const (
	remoteDataName     = "data"
	remoteIndexName    = "index"
	remoteManifestName = "manifest.txt"
	manifestRecordName = "kvstore-backup"
)

type Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// prepended to backup ids, e.g. "kvstore/"
	Prefix string
	// use http instead of https, for local minio
	Insecure bool
	// if set, HTTP requests are traced to it
	RequestTrace io.Writer
}

// Validate checks that all required fields are set
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("backup: must provide config")
	}
	var missing []string
	if c.Access == "" {
		missing = append(missing, "access")
	}
	if c.Secret == "" {
		missing = append(missing, "secret")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("backup: missing config fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

type Client struct {
	Client *minio.Client
	Bucket string
	prefix string
}

// Manifest describes a backup
type Manifest struct {
	ID        string
	Created   time.Time
	DataSize  int64
	IndexSize int64
	// names of local files at the time of backup
	DataFileName  string
	IndexFileName string
}

func New(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := config
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("backup: bucket '%s' doesn't exist", c.Bucket)
	}
	return &Client{
		Client: mc,
		Bucket: c.Bucket,
		prefix: c.Prefix,
	}, nil
}

// NewID returns a new backup id. Ids sort by creation time.
func NewID(t time.Time) string {
	return t.UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

func (c *Client) remotePath(id, name string) string {
	return path.Join(c.prefix+id, name)
}

// Upload uploads data and index files as a new backup. Callers must make
// sure the files don't change during upload e.g. with Store.WithFilesLocked.
func (c *Client) Upload(ctx context.Context, dataPath, indexPath string) (*Manifest, error) {
	m := &Manifest{
		ID:            NewID(time.Now()),
		Created:       time.Now().UTC(),
		DataSize:      u.FileSize(dataPath),
		IndexSize:     u.FileSize(indexPath),
		DataFileName:  filepath.Base(dataPath),
		IndexFileName: filepath.Base(indexPath),
	}
	if m.DataSize < 0 || m.IndexSize < 0 {
		return nil, fmt.Errorf("backup: '%s' or '%s' doesn't exist", dataPath, indexPath)
	}

	g, gctx := errgroup.WithContext(ctx)
	upload := func(localPath, name string) {
		g.Go(func() error {
			opts := minio.PutObjectOptions{
				ContentType: "application/octet-stream",
			}
			_, err := c.Client.FPutObject(gctx, c.Bucket, c.remotePath(m.ID, name), localPath, opts)
			if err != nil {
				return fmt.Errorf("backup: upload of '%s' failed: %w", localPath, err)
			}
			return nil
		})
	}
	upload(dataPath, remoteDataName)
	upload(indexPath, remoteIndexName)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// manifest is written last, a backup without it is incomplete
	d := marshalManifest(m)
	opts := minio.PutObjectOptions{
		ContentType: "text/plain",
	}
	_, err := c.Client.PutObject(ctx, c.Bucket, c.remotePath(m.ID, remoteManifestName), bytes.NewReader(d), int64(len(d)), opts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Download downloads backup id into dataPath and indexPath. Local files
// are replaced only if downloaded completely. Store using them must be closed.
func (c *Client) Download(ctx context.Context, id, dataPath, indexPath string) (*Manifest, error) {
	m, err := c.ReadManifest(ctx, id)
	if err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	download := func(name, localPath string, size int64) {
		g.Go(func() error {
			return c.downloadAtomically(gctx, c.remotePath(id, name), localPath, size)
		})
	}
	download(remoteDataName, dataPath, m.DataSize)
	download(remoteIndexName, indexPath, m.IndexSize)
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) downloadAtomically(ctx context.Context, remotePath, dstPath string, size int64) error {
	obj, err := c.Client.GetObject(ctx, c.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	if err = os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}
	f, err := u.NewAtomicFile(dstPath)
	if err != nil {
		return err
	}
	defer f.RemoveIfNotClosed()
	n, err := io.Copy(f, obj)
	if err != nil {
		return fmt.Errorf("backup: download of '%s' failed: %w", remotePath, err)
	}
	if n != size {
		return fmt.Errorf("backup: '%s' is %d bytes, expected %d", remotePath, n, size)
	}
	return f.Close()
}

// ReadManifest returns manifest of backup id
func (c *Client) ReadManifest(ctx context.Context, id string) (*Manifest, error) {
	obj, err := c.Client.GetObject(ctx, c.Bucket, c.remotePath(id, remoteManifestName), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	d, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read manifest of '%s': %w", id, err)
	}
	return unmarshalManifest(d)
}

// List returns ids of backups, oldest first
func (c *Client) List(ctx context.Context) ([]string, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    c.prefix,
		Recursive: true,
	}
	var ids []string
	for obj := range c.Client.ListObjects(ctx, c.Bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		rel := strings.TrimPrefix(obj.Key, c.prefix)
		id, name, ok := strings.Cut(rel, "/")
		if ok && name == remoteManifestName {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Remove deletes all files of backup id
func (c *Client) Remove(ctx context.Context, id string) error {
	// manifest first so that a partially removed backup is not listed
	for _, name := range []string{remoteManifestName, remoteDataName, remoteIndexName} {
		err := c.Client.RemoveObject(ctx, c.Bucket, c.remotePath(id, name), minio.RemoveObjectOptions{})
		if err != nil {
			return err
		}
	}
	return nil
}

func marshalManifest(m *Manifest) []byte {
	rec := &recio.Record{}
	_ = rec.Write(
		"id", m.ID,
		"data_size", m.DataSize,
		"index_size", m.IndexSize,
		"data_file", m.DataFileName,
		"index_file", m.IndexFileName,
	)
	return recio.MarshalLine(manifestRecordName, m.Created, rec.Marshal(), nil)
}

func unmarshalManifest(d []byte) (*Manifest, error) {
	r := recio.NewReader(bytes.NewReader(d))
	if !r.ReadNextRecord() {
		if r.Err() != nil {
			return nil, fmt.Errorf("backup: invalid manifest: %w", r.Err())
		}
		return nil, errors.New("backup: empty manifest")
	}
	rec := r.Record
	if rec.Name != manifestRecordName {
		return nil, fmt.Errorf("backup: invalid manifest record '%s'", rec.Name)
	}
	m := &Manifest{
		Created: rec.Timestamp.UTC(),
	}
	m.ID, _ = rec.Get("id")
	m.DataFileName, _ = rec.Get("data_file")
	m.IndexFileName, _ = rec.Get("index_file")
	var err error
	if m.DataSize, err = getSize(rec, "data_size"); err != nil {
		return nil, err
	}
	if m.IndexSize, err = getSize(rec, "index_size"); err != nil {
		return nil, err
	}
	return m, nil
}

func getSize(rec *recio.ReadRecord, key string) (int64, error) {
	v, ok := rec.Get(key)
	if !ok {
		return 0, fmt.Errorf("backup: manifest is missing '%s'", key)
	}
	var n int64
	_, err := fmt.Sscanf(v, "%d", &n)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("backup: invalid '%s' value '%s' in manifest", key, v)
	}
	return n, nil
}
