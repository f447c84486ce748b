package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const photonDefaultBaseURL = "https://photon.komoot.io"

// PhotonProvider geocodes one address at a time through the free Photon
// (Komoot) search API, built on OpenStreetMap data. No key; one request
// per second is the courtesy rate for the public instance.
type PhotonProvider struct {
	baseURL    string
	delay      time.Duration
	httpClient *http.Client
}

// PhotonOption configures the Photon provider.
type PhotonOption func(*PhotonProvider)

// WithPhotonBaseURL overrides the API base URL (for tests or a
// self-hosted instance).
func WithPhotonBaseURL(u string) PhotonOption {
	return func(p *PhotonProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithPhotonDelay overrides the per-request spacing. Only shorten this
// against a self-hosted instance.
func WithPhotonDelay(d time.Duration) PhotonOption {
	return func(p *PhotonProvider) {
		if d > 0 {
			p.delay = d
		}
	}
}

// WithPhotonHTTPClient sets a custom HTTP client.
func WithPhotonHTTPClient(hc *http.Client) PhotonOption {
	return func(p *PhotonProvider) { p.httpClient = hc }
}

// NewPhoton creates the Photon individual provider.
func NewPhoton(opts ...PhotonOption) *PhotonProvider {
	p := &PhotonProvider{
		baseURL:    photonDefaultBaseURL,
		delay:      time.Second,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *PhotonProvider) Name() string { return "photon" }

// Type implements Provider.
func (p *PhotonProvider) Type() ServiceType { return ServiceIndividual }

// RequiresKey implements Provider.
func (p *PhotonProvider) RequiresKey() bool { return false }

// RateLimitDelay implements Provider.
func (p *PhotonProvider) RateLimitDelay() time.Duration { return p.delay }

// MaxBatchSize implements Provider.
func (p *PhotonProvider) MaxBatchSize() int { return 1 }

// photonPayload is the search URL built by Prepare.
type photonPayload struct {
	reqURL string
}

// Prepare builds the search request for a single address.
func (p *PhotonProvider) Prepare(addrs []Address) (Prepared, error) {
	if len(addrs) != 1 {
		return nil, eris.Errorf("geocode: photon prepare: expected 1 address, got %d", len(addrs))
	}
	oneLine := addrs[0].OneLine()
	if oneLine == "" {
		return nil, eris.Wrapf(ErrInvalidRecord, "photon prepare: voter %s has no address", addrs[0].ID)
	}

	params := url.Values{
		"q":     {oneLine},
		"limit": {"1"},
	}
	return photonPayload{reqURL: p.baseURL + "/api?" + params.Encode()}, nil
}

// Submit performs the search and returns the JSON response body.
func (p *PhotonProvider) Submit(ctx context.Context, prepared Prepared) (Raw, error) {
	payload, ok := prepared.(photonPayload)
	if !ok {
		return nil, eris.Errorf("geocode: photon submit: unexpected payload type %T", prepared)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: photon submit: build request")
	}
	req.Header.Set("User-Agent", "vote-match/1.0 (voter registration geocoding tool)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifySubmitErr("photon", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("photon", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifySubmitErr("photon", err)
	}
	return body, nil
}

// photonResponse is the GeoJSON FeatureCollection returned by the search
// endpoint.
type photonResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Name   string `json:"name"`
			City   string `json:"city"`
			State  string `json:"state"`
			OSMKey string `json:"osm_key"`
		} `json:"properties"`
	} `json:"features"`
}

// Parse reads the search response. An empty feature list is NO_MATCH; a
// feature without coordinates stays FAILED.
func (p *PhotonProvider) Parse(raw Raw, addrs []Address) []Attempt {
	now := time.Now().UTC()
	attempts := FailedAttempts(p.Name(), addrs, now)
	if len(addrs) != 1 {
		return attempts
	}
	attempts[0].Raw = raw

	var resp photonResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return attempts
	}
	if len(resp.Features) == 0 {
		attempts[0].Quality = QualityNoMatch
		return attempts
	}

	best := resp.Features[0]
	if len(best.Geometry.Coordinates) < 2 {
		return attempts
	}

	var parts []string
	for _, s := range []string{best.Properties.Name, best.Properties.City, best.Properties.State} {
		if s != "" {
			parts = append(parts, s)
		}
	}

	attempts[0].Quality = photonOSMKeyQuality(best.Properties.OSMKey)
	attempts[0].Longitude = ptr(best.Geometry.Coordinates[0])
	attempts[0].Latitude = ptr(best.Geometry.Coordinates[1])
	attempts[0].MatchedAddress = strings.Join(parts, ", ")
	return attempts
}

// photonOSMKeyQuality grades a match by its OSM key. Photon returns no
// confidence score, so the key is the only precision signal: addr is an
// address point, highway a street-level match, everything else (building,
// amenity, place, landuse) some coarser area.
func photonOSMKeyQuality(osmKey string) Quality {
	switch strings.ToLower(osmKey) {
	case "addr":
		return QualityExact
	case "highway":
		return QualityInterpolated
	default:
		return QualityApproximate
	}
}
