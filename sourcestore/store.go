// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package sourcestore keeps the JavaScript bundles a trace referenced so that
// module resolution can be repeated long after the page changed.
//
// Bundles are stored zstd compressed in a local cache directory under the
// SHA256 of their text, next to small alias files mapping a script url to
// that ID. A Store can mirror both into an S3 bucket and falls back to it
// when a url is not cached locally.
package sourcestore // import "github.com/tracerbench/tracebench/sourcestore"

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/sha256-simd"
	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/jsmodule"
	"github.com/tracerbench/tracebench/libtb"
	"github.com/tracerbench/tracebench/metrics"
)

const (
	// localTempPrefix marks files in the local cache that are still being written.
	localTempPrefix = "tmp."
	// aliasDir holds the url to ID mapping inside the local cache.
	aliasDir = "urls"
	// s3SourcePrefix and s3AliasPrefix prefix all S3 keys.
	s3SourcePrefix = "source-store/sources/"
	s3AliasPrefix  = "source-store/urls/"
)

// ErrNotFound is returned when a url is neither cached locally nor present
// in the remote bucket.
var ErrNotFound = errors.New("source not found")

// S3API is the subset of *s3.Client used by the store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput,
		opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput,
		opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput,
		opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput,
		opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input,
		opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var (
	_ S3API                   = (*s3.Client)(nil)
	_ jsmodule.SourceProvider = (*Store)(nil)
)

// Store is a content addressed cache of source bundles. It is safe to use
// several Store instances on the same directory and bucket at once.
type Store struct {
	s3client       S3API
	bucket         string
	localCachePath string
}

// New creates a store caching into localCachePath. s3client may be nil for
// a purely local store.
func New(s3client S3API, bucket, localCachePath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(localCachePath, aliasDir), 0o750); err != nil {
		return nil, err
	}
	return &Store{
		s3client:       s3client,
		bucket:         bucket,
		localCachePath: localCachePath,
	}, nil
}

// InsertLocally stores the text read from r as the source of url. It
// returns the bundle ID and whether the bundle was not cached before.
func (store *Store) InsertLocally(url string, r io.Reader) (id ID, isNew bool, err error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return ID{}, false, fmt.Errorf("failed to read source of %s: %w", url, err)
	}
	id, err = calculateID(bytes.NewReader(source))
	if err != nil {
		return ID{}, false, err
	}

	present, err := store.IsPresentLocally(id)
	if err != nil {
		return ID{}, false, err
	}
	if !present {
		if err = store.writeCompressed(id, source); err != nil {
			return ID{}, false, err
		}
	}
	if err = store.writeAlias(url, id); err != nil {
		return ID{}, false, err
	}
	return id, !present, nil
}

// InsertFileLocally is InsertLocally for a file on disk.
func (store *Store) InsertFileLocally(url, localPath string) (ID, bool, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return ID{}, false, fmt.Errorf("failed to open local file: %w", err)
	}
	defer f.Close()
	return store.InsertLocally(url, f)
}

func (store *Store) writeCompressed(id ID, source []byte) error {
	out, err := os.CreateTemp(store.localCachePath, localTempPrefix)
	if err != nil {
		return fmt.Errorf("failed to create file in local cache: %w", err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if _, err = enc.Write(source); err != nil {
		_ = enc.Close()
		_ = os.Remove(out.Name())
		return fmt.Errorf("failed to compress source: %w", err)
	}
	if err = enc.Close(); err != nil {
		_ = os.Remove(out.Name())
		return fmt.Errorf("failed to compress source: %w", err)
	}
	return commitTempFile(out, store.makeLocalPath(id))
}

func (store *Store) writeAlias(url string, id ID) error {
	out, err := os.CreateTemp(store.localCachePath, localTempPrefix)
	if err != nil {
		return fmt.Errorf("failed to create alias for %s: %w", url, err)
	}
	defer out.Close()
	if _, err = out.WriteString(id.String()); err != nil {
		return fmt.Errorf("failed to write alias for %s: %w", url, err)
	}
	return commitTempFile(out, store.makeAliasPath(url))
}

// Lookup returns the ID cached for url, consulting the remote alias when the
// local cache has none.
func (store *Store) Lookup(ctx context.Context, url string) (ID, error) {
	data, err := os.ReadFile(store.makeAliasPath(url))
	if err == nil {
		return IDFromString(strings.TrimSpace(string(data)))
	}
	if !os.IsNotExist(err) {
		return ID{}, fmt.Errorf("failed to read alias of %s: %w", url, err)
	}
	if store.s3client == nil {
		return ID{}, fmt.Errorf("%w: %s", ErrNotFound, url)
	}

	body, err := store.getObject(ctx, s3AliasPrefix+urlKey(url))
	if err != nil {
		return ID{}, fmt.Errorf("%s: %w", url, err)
	}
	id, err := IDFromString(strings.TrimSpace(string(body)))
	if err != nil {
		return ID{}, fmt.Errorf("remote alias of %s: %w", url, err)
	}
	if err = store.writeAlias(url, id); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Source implements jsmodule.SourceProvider.
func (store *Store) Source(ctx context.Context, url string) (string, error) {
	id, err := store.Lookup(ctx, url)
	if err != nil {
		return "", err
	}
	data, err := store.Read(ctx, id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Read returns the uncompressed text of bundle id and verifies its checksum.
func (store *Store) Read(ctx context.Context, id ID) ([]byte, error) {
	localPath, err := store.ensurePresentLocally(ctx, id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local file %s: %w", localPath, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", id, err)
	}

	got, _ := calculateID(bytes.NewReader(data))
	if got != id {
		return nil, fmt.Errorf("bundle %s is corrupt: content hashes to %s", id, got)
	}
	return data, nil
}

// Upload copies bundle and alias of url to the remote bucket. Bundles that
// already exist remotely are not uploaded again.
func (store *Store) Upload(ctx context.Context, url string) error {
	if store.s3client == nil {
		return errors.New("store has no remote")
	}
	id, err := store.Lookup(ctx, url)
	if err != nil {
		return err
	}

	present, err := store.IsPresentRemotely(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check whether the bundle exists on remote: %w", err)
	}
	if !present {
		data, err := os.ReadFile(store.makeLocalPath(id))
		if err != nil {
			return fmt.Errorf("the bundle %s isn't present locally: %w", id, err)
		}
		if err = store.putObject(ctx, s3SourcePrefix+id.String(), data); err != nil {
			return err
		}
		metrics.Add(metrics.IDSourceStoreUploads, 1)
	}
	return store.putObject(ctx, s3AliasPrefix+urlKey(url), []byte(id.String()))
}

func (store *Store) putObject(ctx context.Context, key string, data []byte) error {
	sum := sha256.Sum256(data)
	_, err := store.s3client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(store.bucket),
		Key:            aws.String(key),
		Body:           bytes.NewReader(data),
		ContentType:    aws.String("application/octet-stream"),
		ChecksumSHA256: aws.String(base64.StdEncoding.EncodeToString(sum[:])),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (store *Store) getObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := store.s3client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isErrNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to request %s: %w", key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to receive %s: %w", key, err)
	}
	return data, nil
}

// IsPresentRemotely checks whether a bundle is present in the bucket.
func (store *Store) IsPresentRemotely(ctx context.Context, id ID) (bool, error) {
	_, err := store.s3client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(s3SourcePrefix + id.String()),
	})
	if err != nil {
		if isErrNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query bundle existence: %w", err)
	}
	return true, nil
}

// IsPresentLocally checks whether a bundle is present in the local cache.
func (store *Store) IsPresentLocally(id ID) (bool, error) {
	_, err := os.Stat(store.makeLocalPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat local file: %w", err)
	}
	return true, nil
}

// RemoveLocal removes a bundle from the local cache. No-op if not present.
func (store *Store) RemoveLocal(id ID) error {
	err := os.Remove(store.makeLocalPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete local file: %w", err)
	}
	return nil
}

// RemoveRemote removes a bundle from the bucket. No-op if not present.
func (store *Store) RemoveRemote(ctx context.Context, id ID) error {
	_, err := store.s3client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(s3SourcePrefix + id.String()),
	})
	if err != nil && !isErrNoSuchKey(err) {
		return fmt.Errorf("failed to delete file from remote: %w", err)
	}
	return nil
}

// ListLocal returns the IDs of all bundles in the local cache.
func (store *Store) ListLocal() (libtb.Set[ID], error) {
	files, err := os.ReadDir(store.localCachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read files in local cache: %w", err)
	}
	ids := libtb.Set[ID]{}
	for _, file := range files {
		if id, err := IDFromString(file.Name()); err == nil {
			ids.Add(id)
		}
	}
	return ids, nil
}

// ListRemote returns all bundles in the bucket with their modification time.
func (store *Store) ListRemote(ctx context.Context) (map[ID]time.Time, error) {
	bundles := map[ID]time.Time{}
	pages := s3.NewListObjectsV2Paginator(store.s3client, &s3.ListObjectsV2Input{
		Bucket: aws.String(store.bucket),
		Prefix: aws.String(s3SourcePrefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve object list: %w", err)
		}
		for _, object := range page.Contents {
			if object.Key == nil || object.LastModified == nil {
				return nil, errors.New("s3 object lacks required field")
			}
			id, err := IDFromString(strings.TrimPrefix(*object.Key, s3SourcePrefix))
			if err != nil {
				return nil, fmt.Errorf("failed to parse hash in S3 key: %w", err)
			}
			bundles[id] = *object.LastModified
		}
	}
	return bundles, nil
}

// RemoveLocalTempFiles removes temporary files that were never committed.
func (store *Store) RemoveLocalTempFiles() error {
	files, err := os.ReadDir(store.localCachePath)
	if err != nil {
		return fmt.Errorf("failed to read files in local cache: %w", err)
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		if !strings.HasPrefix(name, localTempPrefix) {
			if _, err := IDFromString(name); err != nil {
				log.Warnf("`%s` file in local cache is neither a temp file nor a bundle", name)
			}
			continue
		}
		if err := os.Remove(filepath.Join(store.localCachePath, name)); err != nil {
			return fmt.Errorf("failed to remove file: %w", err)
		}
	}
	return nil
}

// ensurePresentLocally makes sure a bundle is cached, downloading it if
// needed, and returns the path of the compressed file.
func (store *Store) ensurePresentLocally(ctx context.Context, id ID) (string, error) {
	localPath := store.makeLocalPath(id)
	present, err := store.IsPresentLocally(id)
	if err != nil {
		return "", err
	}
	if present {
		return localPath, nil
	}
	if store.s3client == nil {
		return "", fmt.Errorf("%w: bundle %s", ErrNotFound, id)
	}

	data, err := store.getObject(ctx, s3SourcePrefix+id.String())
	if err != nil {
		return "", fmt.Errorf("bundle %s: %w", id, err)
	}
	file, err := os.CreateTemp(store.localCachePath, localTempPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to create local file: %w", err)
	}
	defer file.Close()
	if _, err = file.Write(data); err != nil {
		return "", fmt.Errorf("failed to store bundle %s: %w", id, err)
	}
	if err = commitTempFile(file, localPath); err != nil {
		return "", err
	}
	metrics.Add(metrics.IDSourceStoreDownloads, 1)
	log.Debugf("Downloaded bundle %s", id)
	return localPath, nil
}

func (store *Store) makeLocalPath(id ID) string {
	return filepath.Join(store.localCachePath, id.String())
}

func (store *Store) makeAliasPath(url string) string {
	return filepath.Join(store.localCachePath, aliasDir, urlKey(url))
}

// commitTempFile flushes temp to disk, then moves it to its final destination.
func commitTempFile(temp *os.File, finalPath string) error {
	if err := temp.Sync(); err != nil {
		return fmt.Errorf("failed to flush file to disk: %w", err)
	}
	if err := os.Rename(temp.Name(), finalPath); err != nil {
		return fmt.Errorf("failed to move file to final location: %w", err)
	}
	return nil
}

// isErrNoSuchKey checks whether the given AWS error indicates that the given key does not exist.
// HeadObject reports a missing key as NotFound, GetObject as NoSuchKey.
func isErrNoSuchKey(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
