package solarapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioviz/solar-layer-engine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetDataLayers(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/dataLayers:get", r.URL.Path)
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"imageryQuality": "HIGH",
			"maskUrl": "https://example.com/mask",
			"dsmUrl": "https://example.com/dsm",
			"rgbUrl": "https://example.com/rgb",
			"annualFluxUrl": "https://example.com/annual",
			"monthlyFluxUrl": "https://example.com/monthly",
			"hourlyShadeUrls": ["https://example.com/h1", "https://example.com/h2"]
		}`))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL+"/v1", time.Second, testLogger())
	layers, err := c.GetDataLayers(context.Background(), 37.42468, -122.08934, 50)
	require.NoError(t, err)

	assert.Equal(t, "secret", gotQuery["key"])
	assert.Equal(t, "37.42468", gotQuery["location.latitude"])
	assert.Equal(t, "-122.08934", gotQuery["location.longitude"])
	assert.Equal(t, "50.0", gotQuery["radiusMeters"])
	assert.Equal(t, "FULL_LAYERS", gotQuery["view"])

	assert.Equal(t, "HIGH", layers.ImageryQuality)
	assert.Equal(t, "https://example.com/mask", layers.MaskURL)
	assert.Len(t, layers.HourlyShadeURLs, 2)
}

func TestGetDataLayersErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no coverage", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL, time.Second, testLogger())
	_, err := c.GetDataLayers(context.Background(), 0, 0, 50)
	require.Error(t, err)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestFetchRasterAttachesKeyForProviderHost(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte("tiff-bytes"))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL, time.Second, testLogger())
	data, err := c.FetchRaster(context.Background(), srv.URL+"/raster.tif")
	require.NoError(t, err)

	assert.Equal(t, []byte("tiff-bytes"), data)
	assert.Equal(t, "secret", gotKey)
}

func TestFetchRasterWithholdsKeyFromOtherHosts(t *testing.T) {
	var gotKey string
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte("ok"))
	}))
	defer other.Close()

	// Provider base points elsewhere; the raster lives on a different host
	// and must not see the credential.
	c := NewClient("secret", "https://provider.example/v1", time.Second, testLogger())
	_, err := c.FetchRaster(context.Background(), other.URL+"/raster.tif")
	require.NoError(t, err)
	assert.Empty(t, gotKey)
}

func TestFetchRasterErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c := NewClient("", srv.URL, time.Second, testLogger())
	_, err := c.FetchRaster(context.Background(), srv.URL+"/raster.tif")
	require.Error(t, err)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusGone, fe.StatusCode)
}

func TestFetchRasterTransportError(t *testing.T) {
	c := NewClient("", "http://127.0.0.1:1", 50*time.Millisecond, testLogger())
	_, err := c.FetchRaster(context.Background(), "http://127.0.0.1:1/raster.tif")
	require.Error(t, err)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
}
