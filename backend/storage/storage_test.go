package storage

import (
	"context"
	"strings"
	"testing"

	"evalsurvey/backend/config"
	"evalsurvey/backend/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("C:\\Docs\\Acta Comité.PDF")
	assert.True(t, strings.HasPrefix(key, "evidencias/"))
	assert.True(t, strings.HasSuffix(key, "-acta-comit.pdf"), key)

	assert.True(t, strings.HasSuffix(ObjectKey("???"), "-archivo"))
	assert.NotEqual(t, ObjectKey("a.pdf"), ObjectKey("a.pdf"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("http://localhost:8080/files/")

	require.NoError(t, s.Upload(ctx, "evidencias/a.pdf", "application/pdf", strings.NewReader("pdf")))
	b, ok := s.Object("evidencias/a.pdf")
	require.True(t, ok)
	assert.Equal(t, "pdf", string(b))
	assert.Equal(t, "http://localhost:8080/files/evidencias/a.pdf", s.PublicURL("evidencias/a.pdf"))

	require.NoError(t, s.Delete(ctx, "evidencias/a.pdf"))
	assert.ErrorIs(t, s.Delete(ctx, "evidencias/a.pdf"), ErrObjectNotFound)
}

func TestGCSPublicURL(t *testing.T) {
	s := &GCSStore{bucket: "multimedia"}
	assert.Equal(t, "https://storage.googleapis.com/multimedia/evidencias/a.pdf", s.PublicURL("/evidencias/a.pdf"))

	s.emulatorHost = "http://localhost:4443"
	assert.Equal(t, "http://localhost:4443/storage/v1/b/multimedia/o/evidencias%2Fa.pdf?alt=media", s.PublicURL("evidencias/a.pdf"))

	s.publicBaseURL = "https://cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/multimedia/evidencias/a.pdf", s.PublicURL("evidencias/a.pdf"))
}

func TestNewGCSStoreRequiresBucket(t *testing.T) {
	_, err := NewGCSStore(context.Background(), &config.Config{}, utils.NopLogger())
	assert.Error(t, err)
}
