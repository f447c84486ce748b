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

const googleDefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleProvider geocodes one address at a time through the Google
// Geocoding API.
type GoogleProvider struct {
	apiKey     string
	baseURL    string
	delay      time.Duration
	httpClient *http.Client
}

// GoogleOption configures the Google provider.
type GoogleOption func(*GoogleProvider)

// WithGoogleBaseURL overrides the API URL (for tests).
func WithGoogleBaseURL(u string) GoogleOption {
	return func(p *GoogleProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithGoogleDelay sets the spacing between requests.
func WithGoogleDelay(d time.Duration) GoogleOption {
	return func(p *GoogleProvider) {
		if d > 0 {
			p.delay = d
		}
	}
}

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(hc *http.Client) GoogleOption {
	return func(p *GoogleProvider) { p.httpClient = hc }
}

// NewGoogle creates the Google individual provider.
func NewGoogle(apiKey string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		apiKey:     apiKey,
		baseURL:    googleDefaultBaseURL,
		delay:      20 * time.Millisecond, // default plan: 50 req/s
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *GoogleProvider) Name() string { return "google" }

// Type implements Provider.
func (p *GoogleProvider) Type() ServiceType { return ServiceIndividual }

// RequiresKey implements Provider.
func (p *GoogleProvider) RequiresKey() bool { return true }

// RateLimitDelay implements Provider.
func (p *GoogleProvider) RateLimitDelay() time.Duration { return p.delay }

// MaxBatchSize implements Provider.
func (p *GoogleProvider) MaxBatchSize() int { return 1 }

// googlePayload is the request URL built by Prepare.
type googlePayload struct {
	reqURL string
}

// Prepare builds the geocode request for a single address.
func (p *GoogleProvider) Prepare(addrs []Address) (Prepared, error) {
	if len(addrs) != 1 {
		return nil, eris.Errorf("geocode: google prepare: expected 1 address, got %d", len(addrs))
	}
	oneLine := addrs[0].OneLine()
	if oneLine == "" {
		return nil, eris.Wrapf(ErrInvalidRecord, "google prepare: voter %s has no address", addrs[0].ID)
	}

	params := url.Values{
		"address": {oneLine},
		"key":     {p.apiKey},
	}
	return googlePayload{reqURL: p.baseURL + "?" + params.Encode()}, nil
}

// Submit performs the request and returns the JSON response body.
func (p *GoogleProvider) Submit(ctx context.Context, prepared Prepared) (Raw, error) {
	if p.apiKey == "" {
		return nil, eris.Wrap(ErrMissingAPIKey, "google")
	}
	payload, ok := prepared.(googlePayload)
	if !ok {
		return nil, eris.Errorf("geocode: google submit: unexpected payload type %T", prepared)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google submit: build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifySubmitErr("google", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("google", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifySubmitErr("google", err)
	}
	return body, nil
}

// googleResponse is the wire format of a geocode response.
type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// Parse reads the geocode response. ZERO_RESULTS is NO_MATCH; any other
// non-OK status (denied key, quota) is FAILED.
func (p *GoogleProvider) Parse(raw Raw, addrs []Address) []Attempt {
	now := time.Now().UTC()
	attempts := FailedAttempts(p.Name(), addrs, now)
	if len(addrs) != 1 {
		return attempts
	}
	attempts[0].Raw = raw

	var resp googleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return attempts
	}

	switch {
	case resp.Status == "ZERO_RESULTS", resp.Status == "OK" && len(resp.Results) == 0:
		attempts[0].Quality = QualityNoMatch
		return attempts
	case resp.Status != "OK":
		return attempts
	}

	best := resp.Results[0]
	attempts[0].Quality = googleLocationTypeQuality(best.Geometry.LocationType)
	attempts[0].Latitude = ptr(best.Geometry.Location.Lat)
	attempts[0].Longitude = ptr(best.Geometry.Location.Lng)
	attempts[0].MatchedAddress = best.FormattedAddress
	return attempts
}

// googleLocationTypeQuality maps Google's location_type onto the quality
// taxonomy.
func googleLocationTypeQuality(locType string) Quality {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return QualityExact
	case "RANGE_INTERPOLATED":
		return QualityInterpolated
	default:
		// GEOMETRIC_CENTER, APPROXIMATE, and anything new.
		return QualityApproximate
	}
}
