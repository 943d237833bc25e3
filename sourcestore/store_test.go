// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package sourcestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

var _ S3API = (*fakeS3)(nil)

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput,
	_ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput,
	_ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput,
	_ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput,
	_ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input,
	_ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{
				Key:          aws.String(key),
				LastModified: aws.Time(time.Unix(1700000000, 0)),
			})
		}
	}
	return out, nil
}

const bundle = `define("app/main",["exports"],function(e){e.run=function(){}});`

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := New(nil, "", t.TempDir())
	require.NoError(t, err)

	id, isNew, err := store.InsertLocally("https://cdn/app.js?v=1", strings.NewReader(bundle))
	require.NoError(t, err)
	assert.True(t, isNew)

	again, isNew, err := store.InsertLocally("https://cdn/app.js", strings.NewReader(bundle))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id, again)

	src, err := store.Source(ctx, "https://cdn/app.js?v=1")
	require.NoError(t, err)
	assert.Equal(t, bundle, src)

	ids, err := store.ListLocal()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.True(t, ids.Has(id))

	_, err = store.Source(ctx, "https://cdn/unknown.js")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.RemoveLocal(id))
	require.NoError(t, store.RemoveLocal(id))
	_, err = store.Source(ctx, "https://cdn/app.js")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCorruptBundle(t *testing.T) {
	dir := t.TempDir()
	store, err := New(nil, "", dir)
	require.NoError(t, err)

	id, _, err := store.InsertLocally("app.js", strings.NewReader(bundle))
	require.NoError(t, err)

	other, err := New(nil, "", t.TempDir())
	require.NoError(t, err)
	otherID, _, err := other.InsertLocally("x.js", strings.NewReader("something else"))
	require.NoError(t, err)

	// Place a valid zstd stream with the wrong content under id.
	data, err := os.ReadFile(other.makeLocalPath(otherID))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.makeLocalPath(id), data, 0o600))

	_, err = store.Read(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is corrupt")
}

func TestRemoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeS3()

	producer, err := New(bucket, "sources", t.TempDir())
	require.NoError(t, err)
	id, _, err := producer.InsertLocally("https://cdn/app.js", strings.NewReader(bundle))
	require.NoError(t, err)

	require.NoError(t, producer.Upload(ctx, "https://cdn/app.js"))
	assert.Equal(t, 2, bucket.puts)
	// The bundle is not uploaded twice, only the alias is refreshed.
	require.NoError(t, producer.Upload(ctx, "https://cdn/app.js"))
	assert.Equal(t, 3, bucket.puts)

	present, err := producer.IsPresentRemotely(ctx, id)
	require.NoError(t, err)
	assert.True(t, present)

	consumer, err := New(bucket, "sources", t.TempDir())
	require.NoError(t, err)
	src, err := consumer.Source(ctx, "https://cdn/app.js")
	require.NoError(t, err)
	assert.Equal(t, bundle, src)

	local, err := consumer.IsPresentLocally(id)
	require.NoError(t, err)
	assert.True(t, local)

	remote, err := consumer.ListRemote(ctx)
	require.NoError(t, err)
	assert.Contains(t, remote, id)

	_, err = consumer.Source(ctx, "https://cdn/missing.js")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, producer.RemoveRemote(ctx, id))
	present, err = producer.IsPresentRemotely(ctx, id)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestRemoveLocalTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(nil, "", dir)
	require.NoError(t, err)
	id, _, err := store.InsertLocally("app.js", strings.NewReader(bundle))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, localTempPrefix+"123"), nil, 0o600))
	require.NoError(t, store.RemoveLocalTempFiles())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{aliasDir, id.String()}, names)
}

func TestIDFromString(t *testing.T) {
	id, err := calculateID(strings.NewReader(bundle))
	require.NoError(t, err)

	parsed, err := IDFromString(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = IDFromString("abc")
	require.Error(t, err)
	_, err = IDFromString(strings.Repeat("z", 64))
	require.Error(t, err)

	js, err := id.MarshalJSON()
	require.NoError(t, err)
	var decoded ID
	require.NoError(t, decoded.UnmarshalJSON(js))
	assert.Equal(t, id, decoded)
}
