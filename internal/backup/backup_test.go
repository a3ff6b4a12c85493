// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/citation-manager/internal/ltm"
	"github.com/pdiddy/citation-manager/pkg/types"
)

type fakeS3 struct {
	objects   map[string]time.Time
	bodies    map[string][]byte
	putErr    error
	listErr   error
	deleteErr map[string]error
	clock     time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:   map[string]time.Time{},
		bodies:    map[string][]byte{},
		deleteErr: map[string]error{},
		clock:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.clock = f.clock.Add(time.Hour)
	f.objects[aws.ToString(in.Key)] = f.clock
	f.bodies[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	prefix := aws.ToString(in.Prefix)
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(k) < len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		mod := f.objects[k]
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k), LastModified: &mod})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(in.Key)
	if err := f.deleteErr[key]; err != nil {
		return nil, err
	}
	delete(f.objects, key)
	return &s3.DeleteObjectOutput{}, nil
}

type stubExporter struct {
	body string
	err  error
}

func (e stubExporter) ExportJSON(_ context.Context, w io.Writer) error {
	if e.err != nil {
		return e.err
	}
	_, err := io.WriteString(w, e.body)
	return err
}

func gunzip(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(out)
}

func TestNew(t *testing.T) {
	_, err := New(newFakeS3(), types.BackupConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoBucket)

	u, err := New(newFakeS3(), types.BackupConfig{Bucket: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultPrefix, u.prefix)
	assert.Equal(t, defaultKeep, u.keep)
}

func TestRun(t *testing.T) {
	fake := newFakeS3()
	fake.objects["other/unrelated.json.gz"] = fake.clock
	u, err := New(fake, types.BackupConfig{Bucket: "b", Keep: 2}, nil)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	u.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}

	var results []Result
	for i := 0; i < 4; i++ {
		res, err := u.Run(context.Background(), stubExporter{body: `[{"id":1}]`})
		require.NoError(t, err)
		results = append(results, res)
	}

	assert.Equal(t, "citation-ltm/ltm-2026-05-01T12-01-00Z.json.gz", results[0].Key)
	assert.Equal(t, `[{"id":1}]`, gunzip(t, fake.bodies[results[0].Key]))
	assert.Empty(t, results[0].Deleted)
	assert.Empty(t, results[1].Deleted)
	assert.Equal(t, []string{results[0].Key}, results[2].Deleted)
	assert.Equal(t, []string{results[1].Key}, results[3].Deleted)

	assert.Contains(t, fake.objects, results[2].Key)
	assert.Contains(t, fake.objects, results[3].Key)
	assert.Contains(t, fake.objects, "other/unrelated.json.gz")
	assert.Len(t, fake.objects, 3)
}

func TestRun_Errors(t *testing.T) {
	u, err := New(newFakeS3(), types.BackupConfig{Bucket: "b"}, nil)
	require.NoError(t, err)
	_, err = u.Run(context.Background(), stubExporter{err: errors.New("disk gone")})
	assert.ErrorContains(t, err, "exporting store: disk gone")

	fake := newFakeS3()
	fake.putErr = errors.New("denied")
	u, err = New(fake, types.BackupConfig{Bucket: "b"}, nil)
	require.NoError(t, err)
	_, err = u.Run(context.Background(), stubExporter{body: "[]"})
	assert.ErrorContains(t, err, "denied")

	fake = newFakeS3()
	fake.listErr = errors.New("timeout")
	u, err = New(fake, types.BackupConfig{Bucket: "b"}, nil)
	require.NoError(t, err)
	res, err := u.Run(context.Background(), stubExporter{body: "[]"})
	assert.ErrorContains(t, err, "listing backups")
	assert.NotEmpty(t, res.Key)
}

func TestRun_DeleteFailureLogged(t *testing.T) {
	fake := newFakeS3()
	fake.objects["citation-ltm/old.json.gz"] = fake.clock.Add(-time.Hour)
	fake.deleteErr["citation-ltm/old.json.gz"] = errors.New("locked")
	u, err := New(fake, types.BackupConfig{Bucket: "b", Keep: 1}, nil)
	require.NoError(t, err)

	res, err := u.Run(context.Background(), stubExporter{body: "[]"})
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Contains(t, fake.objects, "citation-ltm/old.json.gz")
}

func TestRun_StoreSnapshot(t *testing.T) {
	store, err := ltm.Open(types.StoreConfig{Path: filepath.Join(t.TempDir(), "ltm.db")})
	require.NoError(t, err)
	defer store.Close()
	_, err = store.Save(context.Background(), types.Citation{Title: "Saved title", DOI: "10.1234/x"}, "APA", "Saved title.", "u1")
	require.NoError(t, err)

	fake := newFakeS3()
	u, err := New(fake, types.BackupConfig{Bucket: "b"}, nil)
	require.NoError(t, err)

	res, err := u.Run(context.Background(), store)
	require.NoError(t, err)
	assert.Contains(t, gunzip(t, fake.bodies[res.Key]), "Saved title")
}
