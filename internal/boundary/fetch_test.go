package boundary

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFetch_DownloadsAndExtractsShapefile(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"tl_2024_13_sldl.shp": "shape data",
		"tl_2024_13_sldl.dbf": "attributes",
		"tl_2024_13_sldl.prj": "projection",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, 1)
	shpPath, err := f.Fetch(context.Background(), srv.URL+"/tl_2024_13_sldl.zip")
	require.NoError(t, err)
	assert.Equal(t, "tl_2024_13_sldl.shp", filepath.Base(shpPath))
}

func TestFetch_ReusesCachedArchive(t *testing.T) {
	archive := zipArchive(t, map[string]string{"bounds.shp": "x"})

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, 1)
	_, err := f.Fetch(context.Background(), srv.URL+"/bounds.zip")
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), srv.URL+"/bounds.zip")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_RetriesTransientStatus(t *testing.T) {
	archive := zipArchive(t, map[string]string{"bounds.shp": "x"})

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, 1)
	_, err := f.Fetch(context.Background(), srv.URL+"/bounds.zip")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_NoShapefileInArchive(t *testing.T) {
	archive := zipArchive(t, map[string]string{"readme.txt": "no shapes here"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, 1)
	_, err := f.Fetch(context.Background(), srv.URL+"/empty.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".shp")
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	f := NewFetcher(t.TempDir(), time.Minute, 1)
	_, err := f.Fetch(context.Background(), "gopher://example.com/bounds.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestFetchAll_PreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(filepath.Base(r.URL.Path), ".zip")
		_, _ = w.Write(zipArchive(t, map[string]string{name + ".shp": "x"}))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, 2)
	paths, err := f.FetchAll(context.Background(), []string{
		srv.URL + "/alpha.zip",
		srv.URL + "/beta.zip",
		srv.URL + "/gamma.zip",
	})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "alpha.shp", filepath.Base(paths[0]))
	assert.Equal(t, "beta.shp", filepath.Base(paths[1]))
	assert.Equal(t, "gamma.shp", filepath.Base(paths[2]))
}
