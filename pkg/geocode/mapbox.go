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
	mapboxDefaultBaseURL   = "https://api.mapbox.com"
	mapboxDefaultCountry   = "us"
	mapboxDefaultBatchSize = 1000
)

// MapboxProvider geocodes through the Mapbox v6 forward batch API (access
// token required, global coverage).
type MapboxProvider struct {
	apiKey     string
	baseURL    string
	country    string
	batchSize  int
	httpClient *http.Client
}

// MapboxOption configures the Mapbox provider.
type MapboxOption func(*MapboxProvider)

// WithMapboxBaseURL overrides the API base URL (for tests).
func WithMapboxBaseURL(u string) MapboxOption {
	return func(p *MapboxProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithMapboxCountry restricts results to a country code.
func WithMapboxCountry(code string) MapboxOption {
	return func(p *MapboxProvider) { p.country = code }
}

// WithMapboxBatchSize caps the queries per submission.
func WithMapboxBatchSize(n int) MapboxOption {
	return func(p *MapboxProvider) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMapboxHTTPClient sets a custom HTTP client.
func WithMapboxHTTPClient(hc *http.Client) MapboxOption {
	return func(p *MapboxProvider) { p.httpClient = hc }
}

// NewMapbox creates the Mapbox batch provider. Like Geocodio, the access
// token is checked at submit time so an unconfigured provider still lists.
func NewMapbox(apiKey string, opts ...MapboxOption) *MapboxProvider {
	p := &MapboxProvider{
		apiKey:     apiKey,
		baseURL:    mapboxDefaultBaseURL,
		country:    mapboxDefaultCountry,
		batchSize:  mapboxDefaultBatchSize,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *MapboxProvider) Name() string { return "mapbox" }

// Type implements Provider.
func (p *MapboxProvider) Type() ServiceType { return ServiceBatch }

// RequiresKey implements Provider.
func (p *MapboxProvider) RequiresKey() bool { return true }

// RateLimitDelay implements Provider.
func (p *MapboxProvider) RateLimitDelay() time.Duration { return 0 }

// MaxBatchSize implements Provider.
func (p *MapboxProvider) MaxBatchSize() int { return p.batchSize }

// mapboxPayload is the JSON array of query objects built by Prepare.
type mapboxPayload struct {
	body []byte
}

// mapboxQuery is one forward-geocode query in the batch body.
type mapboxQuery struct {
	Q string `json:"q"`
}

// Prepare builds the batch body. Mapbox returns one feature per query in
// input order; Parse re-derives slot positions by skipping blank addresses
// the same way Prepare does.
func (p *MapboxProvider) Prepare(addrs []Address) (Prepared, error) {
	if len(addrs) == 0 {
		return nil, eris.New("geocode: mapbox prepare: empty batch")
	}
	if len(addrs) > p.batchSize {
		return nil, eris.Errorf("geocode: mapbox prepare: %d addresses exceeds batch size %d", len(addrs), p.batchSize)
	}

	queries := make([]mapboxQuery, 0, len(addrs))
	for _, a := range addrs {
		line := a.OneLine()
		if line == "" {
			continue
		}
		queries = append(queries, mapboxQuery{Q: line})
	}
	if len(queries) == 0 {
		return nil, eris.Wrap(ErrInvalidRecord, "mapbox prepare: no usable addresses in batch")
	}

	body, err := json.Marshal(queries)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: mapbox prepare: marshal")
	}
	return mapboxPayload{body: body}, nil
}

// Submit posts the batch to the v6 forward endpoint and returns the JSON
// response body.
func (p *MapboxProvider) Submit(ctx context.Context, prepared Prepared) (Raw, error) {
	if p.apiKey == "" {
		return nil, eris.Wrap(ErrMissingAPIKey, "mapbox")
	}
	payload, ok := prepared.(mapboxPayload)
	if !ok {
		return nil, eris.Errorf("geocode: mapbox submit: unexpected payload type %T", prepared)
	}

	params := url.Values{
		"access_token": {p.apiKey},
		"country":      {p.country},
		"limit":        {"1"},
		"types":        {"address"},
	}
	reqURL := p.baseURL + "/geocoding/v6/forward?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload.body))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: mapbox submit: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifySubmitErr("mapbox", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("mapbox", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifySubmitErr("mapbox", err)
	}
	return body, nil
}

// mapboxFeature is one GeoJSON feature of the batch response, in query
// order.
type mapboxFeature struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		FullAddress string `json:"full_address"`
		PlaceName   string `json:"place_name"`
		MatchCode   struct {
			Confidence string `json:"confidence"`
		} `json:"match_code"`
	} `json:"properties"`
}

// Parse maps batch features back to the submitted addresses in order. A
// feature without coordinates is NO_MATCH; slots the response does not
// cover stay FAILED.
func (p *MapboxProvider) Parse(raw Raw, addrs []Address) []Attempt {
	now := time.Now().UTC()
	attempts := FailedAttempts(p.Name(), addrs, now)

	var features []mapboxFeature
	if err := json.Unmarshal(raw, &features); err != nil {
		return attempts
	}

	indexes := make([]int, 0, len(addrs))
	for i, a := range addrs {
		if a.OneLine() != "" {
			indexes = append(indexes, i)
		}
	}

	for i, feature := range features {
		if i >= len(indexes) {
			break
		}
		idx := indexes[i]

		if featRaw, err := json.Marshal(feature); err == nil {
			attempts[idx].Raw = featRaw
		}

		if len(feature.Geometry.Coordinates) < 2 {
			attempts[idx].Quality = QualityNoMatch
			continue
		}

		matched := feature.Properties.FullAddress
		if matched == "" {
			matched = feature.Properties.PlaceName
		}

		attempts[idx].Quality = mapboxConfidenceQuality(feature.Properties.MatchCode.Confidence)
		attempts[idx].Longitude = ptr(feature.Geometry.Coordinates[0])
		attempts[idx].Latitude = ptr(feature.Geometry.Coordinates[1])
		attempts[idx].MatchedAddress = matched
	}

	return attempts
}

// mapboxConfidenceQuality maps Mapbox match-code confidence onto the
// quality taxonomy.
func mapboxConfidenceQuality(confidence string) Quality {
	switch strings.ToLower(confidence) {
	case "high":
		return QualityExact
	case "medium":
		return QualityInterpolated
	default:
		// low, or an unrecognized confidence level.
		return QualityApproximate
	}
}
