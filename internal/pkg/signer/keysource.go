package signer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbsbridge/claimbridge/internal/pkg/objectstore"
)

// KeySource fetches raw key material for a key reference.
type KeySource interface {
	Fetch(ctx context.Context, ref *url.URL) ([]byte, error)
}

// FileSource reads file:// references. Relative references resolve
// against Root.
type FileSource struct {
	Root string
}

func (s FileSource) Fetch(_ context.Context, ref *url.URL) ([]byte, error) {
	path := ref.Path
	if ref.Host != "" {
		path = filepath.Join(ref.Host, ref.Path)
	} else if ref.Opaque != "" {
		path = ref.Opaque
	}
	if !filepath.IsAbs(path) && s.Root != "" {
		path = filepath.Join(s.Root, path)
	}
	return os.ReadFile(path)
}

// S3Source reads s3://bucket/key references.
type S3Source struct {
	Client *objectstore.Client
}

func (s S3Source) Fetch(ctx context.Context, ref *url.URL) ([]byte, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("S3 key storage is not configured")
	}
	return s.Client.Fetch(ctx, ref.Host, strings.TrimPrefix(ref.Path, "/"))
}

// KeyLoader resolves a certificate's key_ref through the source registered
// for its scheme.
type KeyLoader struct {
	sources  map[string]KeySource
	password string
}

// NewKeyLoader creates a loader. password unlocks PKCS#12 bundles.
func NewKeyLoader(password string, sources map[string]KeySource) *KeyLoader {
	return &KeyLoader{sources: sources, password: password}
}

func (l *KeyLoader) Load(ctx context.Context, keyRef string) (*KeyMaterial, error) {
	ref, err := url.Parse(keyRef)
	if err != nil {
		return nil, fmt.Errorf("invalid key reference: %w", err)
	}
	scheme := ref.Scheme
	if scheme == "" {
		scheme = "file"
	}
	src, ok := l.sources[scheme]
	if !ok {
		return nil, fmt.Errorf("no key source for scheme %q", scheme)
	}
	data, err := src.Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key material: %w", err)
	}
	return ParseKeyMaterial(data, l.password)
}
