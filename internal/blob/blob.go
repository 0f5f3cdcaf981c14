package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotFound     = errors.New("blob not found")
	ErrInvalidKey   = errors.New("invalid blob key")
	ErrInvalidToken = errors.New("invalid blob token")
)

// Store is a bucketed object store
type Store interface {
	Put(ctx context.Context, bucket, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
	SignedURL(bucket, key string, ttl time.Duration) (string, error)
}

// FileStore keeps each bucket as a directory under root
type FileStore struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewFileStore creates a FileStore. baseURL is the public URL of the service
// serving /downloads and /blobs; secret signs private download links.
func NewFileStore(root, baseURL, secret string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FileStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

// Dir returns the directory backing a bucket
func (s *FileStore) Dir(bucket string) string {
	return filepath.Join(s.root, bucket)
}

// resolve maps bucket/key onto a file path, refusing anything that escapes the bucket
func (s *FileStore) resolve(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidKey, bucket)
	}
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, `\`) || clean != "/"+strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.Dir(bucket), filepath.FromSlash(clean[1:])), nil
}

// Put writes r to bucket/key, replacing any previous object, and returns the size written
func (s *FileStore) Put(ctx context.Context, bucket, key string, r io.Reader) (int64, error) {
	dst, err := s.resolve(bucket, key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("failed to create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, readerWithContext(ctx, r))
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("failed to store blob: %w", err)
	}
	return n, nil
}

// Open opens bucket/key for reading
func (s *FileStore) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	p, err := s.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Delete removes bucket/key; a missing object is not an error
func (s *FileStore) Delete(_ context.Context, bucket, key string) error {
	p, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// PublicURL returns the unauthenticated download URL of an object
func (s *FileStore) PublicURL(bucket, key string) string {
	return s.baseURL + "/downloads/" + url.PathEscape(bucket) + "/" + escapeKey(key)
}

type downloadClaims struct {
	Bucket string `json:"bkt"`
	Key    string `json:"key"`
	jwt.RegisteredClaims
}

// SignedURL returns a download URL for a private object that expires after ttl
func (s *FileStore) SignedURL(bucket, key string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("failed to sign blob url: no signing secret")
	}
	if _, err := s.resolve(bucket, key); err != nil {
		return "", err
	}
	now := s.now()
	claims := downloadClaims{
		Bucket: bucket,
		Key:    key,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign blob url: %w", err)
	}
	return s.baseURL + "/blobs/" + url.PathEscape(bucket) + "/" + escapeKey(key) + "?token=" + url.QueryEscape(token), nil
}

// VerifyToken checks that token grants access to bucket/key
func (s *FileStore) VerifyToken(token, bucket, key string) error {
	if len(s.secret) == 0 {
		return ErrInvalidToken
	}
	claims := &downloadClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Bucket != bucket || claims.Key != key {
		return ErrInvalidToken
	}
	return nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
