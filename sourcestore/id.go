// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package sourcestore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/sha256-simd"
	"github.com/zeebo/xxh3"
)

// ID identifies a source bundle by the SHA256 sum of its uncompressed text.
type ID struct {
	hash [32]byte
}

// String implements the `fmt.Stringer` interface
func (id ID) String() string {
	return hex.EncodeToString(id.hash[:])
}

// IDFromString parses a string into an ID.
func IDFromString(s string) (ID, error) {
	if len(s) != 64 {
		return ID{}, fmt.Errorf("length %d doesn't match expected value (64)", len(s))
	}
	slice, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("failed to parse id: %w", err)
	}
	var id ID
	copy(id.hash[:], slice)
	return id, nil
}

// MarshalJSON encodes the ID into JSON.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes JSON into an ID.
func (id *ID) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := IDFromString(v)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// calculateID hashes everything r yields.
func calculateID(r io.Reader) (ID, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return ID{}, fmt.Errorf("failed to hash source: %w", err)
	}
	var id ID
	copy(id.hash[:], hasher.Sum(nil))
	return id, nil
}

// urlKey names the alias entry that maps a script url to its bundle ID.
func urlKey(url string) string {
	h := xxh3.HashString128(url).Bytes()
	return hex.EncodeToString(h[:])
}
