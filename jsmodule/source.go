// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jsmodule

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// ErrNoSource is returned by providers that do not know a url.
var ErrNoSource = errors.New("no source for url")

// MapSource serves sources from memory, keyed by url.
type MapSource map[string]string

func (m MapSource) Source(_ context.Context, url string) (string, error) {
	src, ok := m[url]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSource, url)
	}
	return src, nil
}

// DirSource serves the file named after the last path element of a url
// from a local directory.
type DirSource struct {
	Dir string
}

func (d DirSource) Source(_ context.Context, rawURL string) (string, error) {
	name := BaseName(rawURL)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("%w: %s", ErrNoSource, rawURL)
	}
	data, err := os.ReadFile(filepath.Join(d.Dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNoSource, rawURL)
		}
		return "", err
	}
	return string(data), nil
}

// BaseName returns the last path element of a script url without query or
// fragment.
func BaseName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if p == "" {
		return ""
	}
	return path.Base(p)
}
