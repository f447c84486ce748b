package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogle_Geocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 33.7590, "lng": -84.3880},
					"location_type": "ROOFTOP"
				},
				"formatted_address": "100 Peachtree St NW, Atlanta, GA 30303, USA"
			}]
		}`)
	}))
	defer srv.Close()

	p := NewGoogle("test-key", WithGoogleBaseURL(srv.URL))
	addrs := []Address{{ID: "V1", Street: "100 Peachtree St NW", City: "Atlanta", State: "GA", ZipCode: "30303"}}

	prepared, err := p.Prepare(addrs)
	require.NoError(t, err)

	raw, err := p.Submit(context.Background(), prepared)
	require.NoError(t, err)

	attempts := p.Parse(raw, addrs)
	require.Len(t, attempts, 1)
	assert.Equal(t, QualityExact, attempts[0].Quality)
	assert.InDelta(t, 33.7590, *attempts[0].Latitude, 0.0001)
	assert.Equal(t, "100 Peachtree St NW, Atlanta, GA 30303, USA", attempts[0].MatchedAddress)
}

func TestGoogleParse_Statuses(t *testing.T) {
	addrs := []Address{{ID: "V1", Street: "x", City: "Atlanta", State: "GA"}}
	p := NewGoogle("k")

	attempts := p.Parse([]byte(`{"status": "ZERO_RESULTS", "results": []}`), addrs)
	assert.Equal(t, QualityNoMatch, attempts[0].Quality)

	// A denied key is a failure for the record, not a miss.
	attempts = p.Parse([]byte(`{"status": "REQUEST_DENIED", "results": []}`), addrs)
	assert.Equal(t, QualityFailed, attempts[0].Quality)

	attempts = p.Parse([]byte(`{"status": "OVER_QUERY_LIMIT", "results": []}`), addrs)
	assert.Equal(t, QualityFailed, attempts[0].Quality)
}

func TestGoogleLocationTypeQuality(t *testing.T) {
	tests := []struct {
		locType string
		want    Quality
	}{
		{"ROOFTOP", QualityExact},
		{"RANGE_INTERPOLATED", QualityInterpolated},
		{"GEOMETRIC_CENTER", QualityApproximate},
		{"APPROXIMATE", QualityApproximate},
		{"rooftop", QualityExact},
		{"", QualityApproximate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, googleLocationTypeQuality(tt.locType), tt.locType)
	}
}

func TestGoogleSubmit_MissingKey(t *testing.T) {
	p := NewGoogle("")
	prepared, err := p.Prepare([]Address{{ID: "V1", Street: "100 Peachtree St NW", City: "Atlanta", State: "GA"}})
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), prepared)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
