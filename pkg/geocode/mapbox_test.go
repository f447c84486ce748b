package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapboxBatch_RealignsAroundBlankAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.URL.Query().Get("access_token"))
		assert.Equal(t, "us", r.URL.Query().Get("country"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))

		var submitted []mapboxQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
		// The blank middle address never gets submitted.
		require.Len(t, submitted, 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"type": "Feature",
			 "geometry": {"type": "Point", "coordinates": [-84.3880, 33.7590]},
			 "properties": {"full_address": "100 Peachtree St NW, Atlanta, Georgia 30303", "match_code": {"confidence": "high"}}},
			{"type": "Feature", "geometry": null, "properties": {}}
		]`)
	}))
	defer srv.Close()

	p := NewMapbox("test-token", WithMapboxBaseURL(srv.URL))
	addrs := []Address{
		{ID: "V1", Street: "100 Peachtree St NW", City: "Atlanta", State: "GA", ZipCode: "30303"},
		{ID: "V2"}, // no address components
		{ID: "V3", Street: "123 Nowhere St", City: "Faketown", State: "GA"},
	}

	prepared, err := p.Prepare(addrs)
	require.NoError(t, err)

	raw, err := p.Submit(context.Background(), prepared)
	require.NoError(t, err)

	attempts := p.Parse(raw, addrs)
	require.Len(t, attempts, 3)

	assert.Equal(t, QualityExact, attempts[0].Quality)
	assert.InDelta(t, 33.7590, *attempts[0].Latitude, 0.0001)
	assert.InDelta(t, -84.3880, *attempts[0].Longitude, 0.0001)
	assert.Equal(t, "100 Peachtree St NW, Atlanta, Georgia 30303", attempts[0].MatchedAddress)

	assert.Equal(t, QualityFailed, attempts[1].Quality)
	assert.Equal(t, "V2", attempts[1].VoterID)

	assert.Equal(t, QualityNoMatch, attempts[2].Quality)
}

func TestMapboxConfidenceQuality(t *testing.T) {
	tests := []struct {
		confidence string
		want       Quality
	}{
		{"high", QualityExact},
		{"High", QualityExact},
		{"medium", QualityInterpolated},
		{"low", QualityApproximate},
		{"", QualityApproximate},
		{"exotic", QualityApproximate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapboxConfidenceQuality(tt.confidence), tt.confidence)
	}
}

func TestMapboxSubmit_MissingKey(t *testing.T) {
	p := NewMapbox("")
	prepared, err := p.Prepare([]Address{{ID: "V1", Street: "100 Peachtree St NW", City: "Atlanta", State: "GA"}})
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), prepared)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestMapboxSubmit_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewMapbox("test-token", WithMapboxBaseURL(srv.URL))
	prepared, err := p.Prepare([]Address{{ID: "V1", Street: "100 Peachtree St NW", City: "Atlanta", State: "GA"}})
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), prepared)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestMapboxPrepare_AllBlank(t *testing.T) {
	_, err := NewMapbox("k").Prepare([]Address{{ID: "V1"}, {ID: "V2"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestMapboxParse_MalformedBody(t *testing.T) {
	addrs := []Address{{ID: "V1", Street: "x", City: "Atlanta", State: "GA"}}
	attempts := NewMapbox("k").Parse([]byte("<html>gateway error</html>"), addrs)
	require.Len(t, attempts, 1)
	assert.Equal(t, QualityFailed, attempts[0].Quality)
}
