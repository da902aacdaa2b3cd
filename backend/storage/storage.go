// Package storage holds uploaded evidence files.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"evalsurvey/backend/config"
	"evalsurvey/backend/utils"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

var ErrObjectNotFound = errors.New("object not found")

type FileStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// ObjectKey builds a collision-free key that keeps the original file name
// readable.
func ObjectKey(name string) string {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	clean := strings.Trim(b.String(), ".-")
	if clean == "" {
		clean = "archivo"
	}
	return "evidencias/" + uuid.NewString() + "-" + clean
}

type GCSStore struct {
	log           *utils.Logger
	client        *storage.Client
	bucket        string
	emulatorHost  string
	publicBaseURL string
}

// NewGCSStore connects to Cloud Storage, or to the emulator when
// GCSEmulatorHost is set.
func NewGCSStore(ctx context.Context, cfg *config.Config, log *utils.Logger) (*GCSStore, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("missing GCS_BUCKET")
	}
	emulator := strings.TrimRight(strings.TrimSpace(cfg.GCSEmulatorHost), "/")

	var opts []option.ClientOption
	if emulator != "" {
		opts = append(opts, option.WithoutAuthentication(), option.WithEndpoint(emulator+"/storage/v1/"))
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	s := &GCSStore{
		log:           log.With("service", "GCSStore"),
		client:        client,
		bucket:        cfg.GCSBucket,
		emulatorHost:  emulator,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.GCSPublicBaseURL), "/"),
	}
	s.log.Info("object storage initialized", "bucket", s.bucket, "emulator_host", emulator)
	return s, nil
}

func (s *GCSStore) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer %q: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	if err != nil {
		return fmt.Errorf("delete object %q in bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

func (s *GCSStore) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if s.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
	}
	if s.emulatorHost != "" {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", s.emulatorHost, s.bucket, url.PathEscape(key))
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

// MemoryStore keeps objects in process. It backs local runs without
// Cloud Storage credentials.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *MemoryStore) Upload(_ context.Context, key, _ string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = buf.Bytes()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) PublicURL(key string) string {
	return s.baseURL + "/" + key
}

// Object returns the stored bytes for key.
func (s *MemoryStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	return b, ok
}
