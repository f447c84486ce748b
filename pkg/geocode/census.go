package geocode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	censusDefaultBaseURL   = "https://geocoding.geo.census.gov/geocoder"
	censusDefaultBenchmark = "Public_AR_Current"
	censusDefaultVintage   = "Current_Current"
	censusDefaultBatchSize = 10000
)

// CensusProvider geocodes through the Census Bureau batch geocoder. Free, no
// API key, up to 10,000 addresses per submission.
type CensusProvider struct {
	baseURL    string
	benchmark  string
	vintage    string
	batchSize  int
	httpClient *http.Client
}

// CensusOption configures the Census provider.
type CensusOption func(*CensusProvider)

// WithCensusBaseURL overrides the geocoder base URL (for tests).
func WithCensusBaseURL(u string) CensusOption {
	return func(p *CensusProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithCensusBenchmark sets the benchmark dataset name.
func WithCensusBenchmark(b string) CensusOption {
	return func(p *CensusProvider) {
		if b != "" {
			p.benchmark = b
		}
	}
}

// WithCensusVintage sets the geography vintage.
func WithCensusVintage(v string) CensusOption {
	return func(p *CensusProvider) {
		if v != "" {
			p.vintage = v
		}
	}
}

// WithCensusBatchSize caps the addresses per submission.
func WithCensusBatchSize(n int) CensusOption {
	return func(p *CensusProvider) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithCensusHTTPClient sets a custom HTTP client.
func WithCensusHTTPClient(hc *http.Client) CensusOption {
	return func(p *CensusProvider) { p.httpClient = hc }
}

// NewCensus creates the Census batch provider.
func NewCensus(opts ...CensusOption) *CensusProvider {
	p := &CensusProvider{
		baseURL:    censusDefaultBaseURL,
		benchmark:  censusDefaultBenchmark,
		vintage:    censusDefaultVintage,
		batchSize:  censusDefaultBatchSize,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *CensusProvider) Name() string { return "census" }

// Type implements Provider.
func (p *CensusProvider) Type() ServiceType { return ServiceBatch }

// RequiresKey implements Provider.
func (p *CensusProvider) RequiresKey() bool { return false }

// RateLimitDelay implements Provider.
func (p *CensusProvider) RateLimitDelay() time.Duration { return 0 }

// MaxBatchSize implements Provider.
func (p *CensusProvider) MaxBatchSize() int { return p.batchSize }

// censusPayload is the multipart form built by Prepare.
type censusPayload struct {
	body        []byte
	contentType string
}

// Prepare builds the multipart batch submission: a CSV of
// id,street,city,state,zip plus the benchmark and vintage fields. Addresses
// with no usable components are left out of the CSV; Parse backfills them
// as FAILED.
func (p *CensusProvider) Prepare(addrs []Address) (Prepared, error) {
	if len(addrs) == 0 {
		return nil, eris.New("geocode: census prepare: empty batch")
	}
	if len(addrs) > p.batchSize {
		return nil, eris.Errorf("geocode: census prepare: %d addresses exceeds batch size %d", len(addrs), p.batchSize)
	}

	var csv strings.Builder
	var usable int
	for _, a := range addrs {
		if a.OneLine() == "" {
			continue
		}
		usable++
		fmt.Fprintf(&csv, "%s,%s,%s,%s,%s\n", csvField(a.ID), csvField(a.Street), csvField(a.City), csvField(a.State), csvField(a.ZipCode))
	}
	if usable == 0 {
		return nil, eris.Wrap(ErrInvalidRecord, "census prepare: no usable addresses in batch")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("benchmark", p.benchmark); err != nil {
		return nil, eris.Wrap(err, "geocode: census prepare: write benchmark")
	}
	if err := writer.WriteField("vintage", p.vintage); err != nil {
		return nil, eris.Wrap(err, "geocode: census prepare: write vintage")
	}
	part, err := writer.CreateFormFile("addressFile", "addresses.csv")
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census prepare: create form file")
	}
	if _, err := part.Write([]byte(csv.String())); err != nil {
		return nil, eris.Wrap(err, "geocode: census prepare: write csv")
	}
	if err := writer.Close(); err != nil {
		return nil, eris.Wrap(err, "geocode: census prepare: close writer")
	}

	return censusPayload{body: buf.Bytes(), contentType: writer.FormDataContentType()}, nil
}

// Submit posts the batch to the geographies endpoint and returns the CSV
// response body.
func (p *CensusProvider) Submit(ctx context.Context, prepared Prepared) (Raw, error) {
	payload, ok := prepared.(censusPayload)
	if !ok {
		return nil, eris.Errorf("geocode: census submit: unexpected payload type %T", prepared)
	}

	reqURL := p.baseURL + "/geographies/addressbatch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload.body))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census submit: build request")
	}
	req.Header.Set("Content-Type", payload.contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifySubmitErr("census", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("census", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifySubmitErr("census", err)
	}
	return body, nil
}

// Parse reads the batch CSV response. Line format:
// "id","input address","Match|No_Match|Tie","Exact|Non_Exact","matched address","lon,lat",tigerline,side,...
// Every input address gets exactly one attempt; rows the response omits are
// FAILED.
func (p *CensusProvider) Parse(raw Raw, addrs []Address) []Attempt {
	now := time.Now().UTC()
	attempts := FailedAttempts(p.Name(), addrs, now)

	idToIdx := make(map[string]int, len(addrs))
	for i, a := range addrs {
		idToIdx[a.ID] = i
	}

	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := splitCSVLine(line)
		if len(fields) < 3 {
			continue
		}

		idx, ok := idToIdx[strings.Trim(fields[0], "\"")]
		if !ok {
			continue
		}

		attempts[idx].Raw = []byte(line)

		matchFlag := strings.Trim(fields[2], "\"")
		if !strings.EqualFold(matchFlag, "Match") {
			// No_Match and Tie both mean no usable coordinate.
			attempts[idx].Quality = QualityNoMatch
			continue
		}
		if len(fields) < 6 {
			continue
		}

		lon, lat, err := parseCensusCoords(strings.Trim(fields[5], "\""))
		if err != nil {
			attempts[idx].Quality = QualityNoMatch
			continue
		}

		quality := QualityInterpolated
		if strings.EqualFold(strings.Trim(fields[3], "\""), "Exact") {
			quality = QualityExact
		}

		attempts[idx].Quality = quality
		attempts[idx].Latitude = ptr(lat)
		attempts[idx].Longitude = ptr(lon)
		attempts[idx].MatchedAddress = strings.Trim(fields[4], "\"")
	}

	return attempts
}

// parseCensusCoords parses the "lon,lat" coordinate field.
func parseCensusCoords(coords string) (lon, lat float64, err error) {
	parts := strings.SplitN(coords, ",", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("geocode: invalid census coords %q", coords)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lon")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lat")
	}
	return lon, lat, nil
}

// splitCSVLine splits one response line, respecting quoted fields.
func splitCSVLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteRune(ch)
		case ch == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, current.String())
	return fields
}

// csvField strips embedded commas and quotes so a value cannot break the
// submission CSV.
func csvField(s string) string {
	s = strings.ReplaceAll(s, ",", " ")
	s = strings.ReplaceAll(s, "\"", "")
	return strings.TrimSpace(s)
}
