package backup

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func TestConfigValidate(t *testing.T) {
	var c *Config
	assert.Error(t, c.Validate())

	c = &Config{Access: "a", Bucket: "b"}
	err := c.Validate()
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "secret, endpoint"), "got %s", err)

	c = &Config{Access: "a", Secret: "s", Bucket: "b", Endpoint: "localhost:9000"}
	assert.NoError(t, c.Validate())
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), &Config{Bucket: "b"})
	assert.Error(t, err)
}

func TestNewID(t *testing.T) {
	t1 := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	id1 := NewID(t1)
	assert.True(t, strings.HasPrefix(id1, "20240305-070809-"), "got %s", id1)
	assert.Equal(t, len("20240305-070809-")+8, len(id1))
	assert.NotEqual(t, id1, NewID(t1))

	id2 := NewID(t1.Add(time.Hour))
	ids := []string{id2, id1}
	sort.Strings(ids)
	assert.Equal(t, []string{id1, id2}, ids)
}

func TestRemotePath(t *testing.T) {
	c := &Client{prefix: "kvstore/"}
	assert.Equal(t, "kvstore/abc/data", c.remotePath("abc", remoteDataName))
	c = &Client{}
	assert.Equal(t, "abc/manifest.txt", c.remotePath("abc", remoteManifestName))
}

func TestManifestRoundTrip(t *testing.T) {
	m := &Manifest{
		ID:            "20240305-070809-1234abcd",
		Created:       time.Date(2024, 3, 5, 7, 8, 9, 123000000, time.UTC),
		DataSize:      123456,
		IndexSize:     640,
		DataFileName:  "KeyValue.db",
		IndexFileName: "KeyValue.dbindex",
	}
	d := marshalManifest(m)
	assert.True(t, strings.HasPrefix(string(d), "--- "))
	m2, err := unmarshalManifest(d)
	assert.NoError(t, err)
	assert.Equal(t, m, m2)
}

func TestManifestInvalid(t *testing.T) {
	invalid := []string{
		"",
		"garbage",
		"--- 8 1000 other\nid: abc\n",
		"--- 8 1000 kvstore-backup\nid: abc\n",
		"--- 29 1000 kvstore-backup\ndata_size: -5\nindex_size: 64\n",
	}
	for _, s := range invalid {
		_, err := unmarshalManifest([]byte(s))
		assert.Error(t, err, "s: %q", s)
	}
}
