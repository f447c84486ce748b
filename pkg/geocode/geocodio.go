package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	geocodioDefaultBaseURL   = "https://api.geocod.io/v1.7"
	geocodioDefaultBatchSize = 1000
)

// GeocodioProvider geocodes through the Geocodio batch API (US/Canada,
// API key required).
type GeocodioProvider struct {
	apiKey     string
	baseURL    string
	batchSize  int
	httpClient *http.Client
}

// GeocodioOption configures the Geocodio provider.
type GeocodioOption func(*GeocodioProvider)

// WithGeocodioBaseURL overrides the API base URL (for tests).
func WithGeocodioBaseURL(u string) GeocodioOption {
	return func(p *GeocodioProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithGeocodioBatchSize caps the addresses per submission.
func WithGeocodioBatchSize(n int) GeocodioOption {
	return func(p *GeocodioProvider) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithGeocodioHTTPClient sets a custom HTTP client.
func WithGeocodioHTTPClient(hc *http.Client) GeocodioOption {
	return func(p *GeocodioProvider) { p.httpClient = hc }
}

// NewGeocodio creates the Geocodio batch provider. The API key is required
// at submit time, not construction, so the provider can still be listed
// when unconfigured.
func NewGeocodio(apiKey string, opts ...GeocodioOption) *GeocodioProvider {
	p := &GeocodioProvider{
		apiKey:     apiKey,
		baseURL:    geocodioDefaultBaseURL,
		batchSize:  geocodioDefaultBatchSize,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *GeocodioProvider) Name() string { return "geocodio" }

// Type implements Provider.
func (p *GeocodioProvider) Type() ServiceType { return ServiceBatch }

// RequiresKey implements Provider.
func (p *GeocodioProvider) RequiresKey() bool { return true }

// RateLimitDelay implements Provider.
func (p *GeocodioProvider) RateLimitDelay() time.Duration { return 0 }

// MaxBatchSize implements Provider.
func (p *GeocodioProvider) MaxBatchSize() int { return p.batchSize }

// geocodioPayload is the JSON array of address strings built by Prepare.
type geocodioPayload struct {
	body []byte
}

// Prepare builds the JSON array submission. Geocodio returns results in
// input order; Parse re-derives which address slot each submitted string
// belongs to by skipping blank addresses the same way Prepare does.
func (p *GeocodioProvider) Prepare(addrs []Address) (Prepared, error) {
	if len(addrs) == 0 {
		return nil, eris.New("geocode: geocodio prepare: empty batch")
	}
	if len(addrs) > p.batchSize {
		return nil, eris.Errorf("geocode: geocodio prepare: %d addresses exceeds batch size %d", len(addrs), p.batchSize)
	}

	lines := make([]string, 0, len(addrs))
	for _, a := range addrs {
		line := a.OneLine()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, eris.Wrap(ErrInvalidRecord, "geocodio prepare: no usable addresses in batch")
	}

	body, err := json.Marshal(lines)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: geocodio prepare: marshal")
	}
	return geocodioPayload{body: body}, nil
}

// Submit posts the batch and returns the JSON response body.
func (p *GeocodioProvider) Submit(ctx context.Context, prepared Prepared) (Raw, error) {
	if p.apiKey == "" {
		return nil, eris.Wrap(ErrMissingAPIKey, "geocodio")
	}
	payload, ok := prepared.(geocodioPayload)
	if !ok {
		return nil, eris.Errorf("geocode: geocodio submit: unexpected payload type %T", prepared)
	}

	reqURL := p.baseURL + "/geocode?" + url.Values{"api_key": {p.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload.body))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: geocodio submit: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifySubmitErr("geocodio", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("geocodio", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifySubmitErr("geocodio", err)
	}
	return body, nil
}

// geocodioBatchResponse is the wire format of a Geocodio batch response.
type geocodioBatchResponse struct {
	Results []struct {
		Query    string `json:"query"`
		Response struct {
			Results []geocodioMatch `json:"results"`
		} `json:"response"`
	} `json:"results"`
}

type geocodioMatch struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	FormattedAddress string  `json:"formatted_address"`
	Accuracy         float64 `json:"accuracy"`
	AccuracyType     string  `json:"accuracy_type"`
}

// Parse maps batch results back to the submitted addresses in order. A slot
// with no match becomes NO_MATCH; anything the response does not cover stays
// FAILED.
func (p *GeocodioProvider) Parse(raw Raw, addrs []Address) []Attempt {
	now := time.Now().UTC()
	attempts := FailedAttempts(p.Name(), addrs, now)

	var resp geocodioBatchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return attempts
	}

	indexes := make([]int, 0, len(addrs))
	for i, a := range addrs {
		if a.OneLine() != "" {
			indexes = append(indexes, i)
		}
	}

	for i, item := range resp.Results {
		if i >= len(indexes) {
			break
		}
		idx := indexes[i]

		if itemRaw, err := json.Marshal(item); err == nil {
			attempts[idx].Raw = itemRaw
		}

		if len(item.Response.Results) == 0 {
			attempts[idx].Quality = QualityNoMatch
			continue
		}

		best := item.Response.Results[0]
		attempts[idx].Quality = geocodioAccuracyQuality(best.AccuracyType)
		attempts[idx].Latitude = ptr(best.Location.Lat)
		attempts[idx].Longitude = ptr(best.Location.Lng)
		attempts[idx].MatchedAddress = best.FormattedAddress
	}

	return attempts
}

// geocodioAccuracyQuality maps Geocodio accuracy types onto the quality
// taxonomy.
func geocodioAccuracyQuality(accuracyType string) Quality {
	switch strings.ToLower(accuracyType) {
	case "rooftop", "point":
		return QualityExact
	case "range_interpolation", "nearest_rooftop_match":
		return QualityInterpolated
	default:
		// street_center, place, county, state, and anything new.
		return QualityApproximate
	}
}
