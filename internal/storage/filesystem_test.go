package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreWriteAndRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key, err := store.Write(context.Background(), "/attachments/u1/../u1/a.png", []byte("png"))
	require.NoError(t, err)
	require.Equal(t, "attachments/u1/a.png", key)

	data, err := store.Read(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, "png", string(data))
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Write(context.Background(), "../outside.txt", []byte("x"))
	require.Error(t, err)
	_, err = store.Read(context.Background(), "../../etc/passwd")
	require.Error(t, err)
}

func TestFileStoreHandler(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Write(context.Background(), "attachments/u1/a.txt", []byte("hi"))
	require.NoError(t, err)

	srv := store.Handler()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attachments/u1/a.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hi", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attachments/u1/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
