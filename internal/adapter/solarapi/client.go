// Package solarapi is the adapter for the upstream building-insight
// provider: it resolves the raster URL bundle for a building and fetches the
// raster files themselves. The provider credential lives only here; it is
// attached exclusively to requests bound for the provider's own host, so
// callers can pass around raster URLs without ever seeing the key.
package solarapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/helioviz/solar-layer-engine/internal/domain"
)

// Date is the provider's calendar date representation.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// DataLayers is the provider's response for a building: the raster bundle
// plus imagery metadata the engine itself does not consume.
type DataLayers struct {
	domain.RasterURLs
	ImageryQuality       string `json:"imageryQuality"`
	ImageryDate          *Date  `json:"imageryDate,omitempty"`
	ImageryProcessedDate *Date  `json:"imageryProcessedDate,omitempty"`
}

// Client talks to the solar data provider.
type Client struct {
	apiKey     string
	baseURL    string
	host       string // only this host ever receives the credential
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider client. baseURL is the API root, e.g.
// "https://solar.googleapis.com/v1".
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	host := ""
	if u, err := url.Parse(baseURL); err == nil {
		host = u.Host
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		host:    host,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ProviderHost returns the host the credential is scoped to.
func (c *Client) ProviderHost() string { return c.host }

// GetDataLayers resolves the raster bundle for a building footprint centered
// on lat/lng with the given radius in meters.
func (c *Client) GetDataLayers(ctx context.Context, lat, lng, radiusMeters float64) (DataLayers, error) {
	params := url.Values{
		"location.latitude":  {fmt.Sprintf("%.5f", lat)},
		"location.longitude": {fmt.Sprintf("%.5f", lng)},
		"radiusMeters":       {fmt.Sprintf("%.1f", radiusMeters)},
		"view":               {"FULL_LAYERS"},
		"requiredQuality":    {"LOW"},
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	fullURL := c.baseURL + "/dataLayers:get?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return DataLayers{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DataLayers{}, &domain.FetchError{URL: c.baseURL + "/dataLayers:get", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DataLayers{}, &domain.FetchError{URL: c.baseURL + "/dataLayers:get", StatusCode: resp.StatusCode}
	}

	var layers DataLayers
	if err := json.NewDecoder(resp.Body).Decode(&layers); err != nil {
		return DataLayers{}, fmt.Errorf("decode data layers response: %w", err)
	}
	c.logger.Info("resolved data layers",
		"quality", layers.ImageryQuality,
		"hourly_shade_files", len(layers.HourlyShadeURLs),
	)
	return layers, nil
}

// FetchRaster downloads one raster file. The credential is appended only
// when the URL points at the provider host. Transport failures and non-2xx
// responses surface as *domain.FetchError.
func (c *Client) FetchRaster(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	if c.apiKey != "" && u.Host == c.host {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, &domain.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	return data, nil
}
