package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/helioviz/solar-layer-engine/internal/adapter/http"
	"github.com/helioviz/solar-layer-engine/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockFetcher struct {
	host string
	data []byte
	err  error
	urls []string
}

func (m *mockFetcher) FetchRaster(_ context.Context, url string) ([]byte, error) {
	m.urls = append(m.urls, url)
	if m.err != nil {
		return nil, m.err
	}
	return m.data, nil
}

func (m *mockFetcher) ProviderHost() string { return m.host }

func newTestServer(readyErr error, fetcher *mockFetcher) *httpadapter.Server {
	if fetcher == nil {
		fetcher = &mockFetcher{host: "solar.example.com"}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, fetcher, logger)
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("no layer has been loaded yet"), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no layer has been loaded yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGeoTIFFProxyFetchesProviderRaster(t *testing.T) {
	fetcher := &mockFetcher{host: "solar.example.com", data: []byte("tiff-bytes")}
	srv := newTestServer(nil, fetcher)

	target := "https://solar.example.com/geoTiff/abc"
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/geotiff?url="+url.QueryEscape(target), nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/tiff", rec.Header().Get("Content-Type"))
	assert.Equal(t, "tiff-bytes", rec.Body.String())
	assert.Equal(t, []string{target}, fetcher.urls)
}

func TestGeoTIFFProxyRejectsMissingURL(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/geotiff", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeoTIFFProxyRejectsForeignHost(t *testing.T) {
	fetcher := &mockFetcher{host: "solar.example.com"}
	srv := newTestServer(nil, fetcher)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/geotiff?url="+url.QueryEscape("https://evil.example.com/raster.tif"), nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, fetcher.urls, "foreign URL must never be fetched")
}

func TestGeoTIFFProxyUpstreamFailure(t *testing.T) {
	fetcher := &mockFetcher{
		host: "solar.example.com",
		err:  &domain.FetchError{URL: "https://solar.example.com/x", StatusCode: 500},
	}
	srv := newTestServer(nil, fetcher)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/geotiff?url="+url.QueryEscape("https://solar.example.com/x"), nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
