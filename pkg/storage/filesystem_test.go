package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageStoreAndOpenSigned(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	store, err := NewLocalStorage(t.TempDir(), "/images", signer)
	require.NoError(t, err)

	ref, err := store.Store(context.Background(), "products/p1/photo.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "products/p1/photo.png", ref)

	url, err := store.URL(ref)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/images/"))

	file, err := store.OpenSigned(strings.TrimPrefix(url, "/images/"))
	require.NoError(t, err)
	defer file.Close()
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
}

func TestLocalStorageKeepsKeysInsideBaseDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "", nil)
	require.NoError(t, err)

	path, err := store.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, dir))

	_, err = store.resolve("")
	assert.Error(t, err)
}
