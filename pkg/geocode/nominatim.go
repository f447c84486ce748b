package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const nominatimDefaultBaseURL = "https://nominatim.openstreetmap.org"

// NominatimProvider geocodes one address at a time through the public
// Nominatim search API. The OSM usage policy requires an identifying
// User-Agent and at most one request per second.
type NominatimProvider struct {
	baseURL    string
	email      string
	delay      time.Duration
	httpClient *http.Client
}

// NominatimOption configures the Nominatim provider.
type NominatimOption func(*NominatimProvider)

// WithNominatimBaseURL overrides the API base URL (for tests or a
// self-hosted instance).
func WithNominatimBaseURL(u string) NominatimOption {
	return func(p *NominatimProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithNominatimEmail sets the contact email sent in the User-Agent header.
func WithNominatimEmail(email string) NominatimOption {
	return func(p *NominatimProvider) { p.email = email }
}

// WithNominatimDelay overrides the per-request spacing. Only shorten this
// against a self-hosted instance.
func WithNominatimDelay(d time.Duration) NominatimOption {
	return func(p *NominatimProvider) {
		if d > 0 {
			p.delay = d
		}
	}
}

// WithNominatimHTTPClient sets a custom HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(p *NominatimProvider) { p.httpClient = hc }
}

// NewNominatim creates the Nominatim individual provider.
func NewNominatim(opts ...NominatimOption) *NominatimProvider {
	p := &NominatimProvider{
		baseURL:    nominatimDefaultBaseURL,
		delay:      time.Second,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

// Type implements Provider.
func (p *NominatimProvider) Type() ServiceType { return ServiceIndividual }

// RequiresKey implements Provider.
func (p *NominatimProvider) RequiresKey() bool { return false }

// RateLimitDelay implements Provider.
func (p *NominatimProvider) RateLimitDelay() time.Duration { return p.delay }

// MaxBatchSize implements Provider.
func (p *NominatimProvider) MaxBatchSize() int { return 1 }

// nominatimPayload is the search URL built by Prepare.
type nominatimPayload struct {
	reqURL string
}

// Prepare builds the search request for a single address.
func (p *NominatimProvider) Prepare(addrs []Address) (Prepared, error) {
	if len(addrs) != 1 {
		return nil, eris.Errorf("geocode: nominatim prepare: expected 1 address, got %d", len(addrs))
	}
	oneLine := addrs[0].OneLine()
	if oneLine == "" {
		return nil, eris.Wrapf(ErrInvalidRecord, "nominatim prepare: voter %s has no address", addrs[0].ID)
	}

	params := url.Values{
		"q":              {oneLine},
		"format":         {"json"},
		"addressdetails": {"1"},
		"limit":          {"1"},
		"countrycodes":   {"us"},
	}
	return nominatimPayload{reqURL: p.baseURL + "/search?" + params.Encode()}, nil
}

// Submit performs the search and returns the JSON response body.
func (p *NominatimProvider) Submit(ctx context.Context, prepared Prepared) (Raw, error) {
	payload, ok := prepared.(nominatimPayload)
	if !ok {
		return nil, eris.Errorf("geocode: nominatim submit: unexpected payload type %T", prepared)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim submit: build request")
	}
	req.Header.Set("User-Agent", p.userAgent())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifySubmitErr("nominatim", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("nominatim", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifySubmitErr("nominatim", err)
	}
	return body, nil
}

// nominatimResult is one entry of the search response array.
type nominatimResult struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	Importance  *float64 `json:"importance"`
}

// Parse reads the search response. An empty result array is NO_MATCH;
// unparseable coordinates are FAILED.
func (p *NominatimProvider) Parse(raw Raw, addrs []Address) []Attempt {
	now := time.Now().UTC()
	attempts := FailedAttempts(p.Name(), addrs, now)
	if len(addrs) != 1 {
		return attempts
	}
	attempts[0].Raw = raw

	var results []nominatimResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return attempts
	}
	if len(results) == 0 {
		attempts[0].Quality = QualityNoMatch
		return attempts
	}

	best := results[0]
	lat, latErr := strconv.ParseFloat(best.Lat, 64)
	lon, lonErr := strconv.ParseFloat(best.Lon, 64)
	if latErr != nil || lonErr != nil {
		return attempts
	}

	// Results without an importance score grade as middling.
	importance := 0.5
	if best.Importance != nil {
		importance = *best.Importance
	}

	attempts[0].Quality = nominatimImportanceQuality(importance)
	attempts[0].Latitude = ptr(lat)
	attempts[0].Longitude = ptr(lon)
	attempts[0].MatchedAddress = best.DisplayName
	return attempts
}

// nominatimImportanceQuality grades a match by Nominatim's importance score.
func nominatimImportanceQuality(importance float64) Quality {
	switch {
	case importance >= 0.8:
		return QualityExact
	case importance >= 0.5:
		return QualityInterpolated
	default:
		return QualityApproximate
	}
}

func (p *NominatimProvider) userAgent() string {
	if p.email != "" {
		return fmt.Sprintf("vote-match/1.0 (%s)", p.email)
	}
	return "vote-match/1.0 (voter registration geocoding tool)"
}
