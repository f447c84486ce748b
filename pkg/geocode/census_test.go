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

func TestCensusBatch_MixedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, censusDefaultBenchmark, r.FormValue("benchmark"))
		assert.Equal(t, censusDefaultVintage, r.FormValue("vintage"))

		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, `"V100","100 Peachtree St NW, Atlanta, GA, 30303","Match","Exact","100 PEACHTREE ST NW, ATLANTA, GA, 30303","-84.3880,33.7590","647741","L","13","121","011800","1005"
"V200","123 Nowhere St, Faketown, GA, 00000","No_Match"
"V300","55 Ambiguous Rd, Atlanta, GA, 30303","Tie"`)
	}))
	defer srv.Close()

	p := NewCensus(WithCensusBaseURL(srv.URL))
	addrs := []Address{
		{ID: "V100", Street: "100 Peachtree St NW", City: "Atlanta", State: "GA", ZipCode: "30303"},
		{ID: "V200", Street: "123 Nowhere St", City: "Faketown", State: "GA", ZipCode: "00000"},
		{ID: "V300", Street: "55 Ambiguous Rd", City: "Atlanta", State: "GA", ZipCode: "30303"},
		{ID: "V400", Street: "1 Dropped Ln", City: "Atlanta", State: "GA", ZipCode: "30303"},
	}

	prepared, err := p.Prepare(addrs)
	require.NoError(t, err)

	raw, err := p.Submit(context.Background(), prepared)
	require.NoError(t, err)

	attempts := p.Parse(raw, addrs)
	require.Len(t, attempts, 4)

	assert.Equal(t, QualityExact, attempts[0].Quality)
	require.NotNil(t, attempts[0].Latitude)
	assert.InDelta(t, 33.7590, *attempts[0].Latitude, 0.0001)
	assert.InDelta(t, -84.3880, *attempts[0].Longitude, 0.0001)
	assert.Equal(t, "100 PEACHTREE ST NW, ATLANTA, GA, 30303", attempts[0].MatchedAddress)
	assert.Equal(t, "census", attempts[0].Provider)

	assert.Equal(t, QualityNoMatch, attempts[1].Quality)
	assert.Nil(t, attempts[1].Latitude)

	// Tie means no usable coordinate.
	assert.Equal(t, QualityNoMatch, attempts[2].Quality)

	// V400 never came back in the response.
	assert.Equal(t, QualityFailed, attempts[3].Quality)
	assert.Equal(t, "V400", attempts[3].VoterID)
}

func TestCensusParse_NonExactIsInterpolated(t *testing.T) {
	body := `"V1","input","Match","Non_Exact","matched addr","-83.6324,32.8407","999","R"`
	addrs := []Address{{ID: "V1", Street: "x", City: "Macon", State: "GA"}}

	attempts := NewCensus().Parse([]byte(body), addrs)
	require.Len(t, attempts, 1)
	assert.Equal(t, QualityInterpolated, attempts[0].Quality)
	assert.InDelta(t, 32.8407, *attempts[0].Latitude, 0.0001)
}

func TestCensusParse_BadCoordinates(t *testing.T) {
	body := `"V1","input","Match","Exact","matched addr","not-coords","999","R"`
	addrs := []Address{{ID: "V1", Street: "x", City: "Macon", State: "GA"}}

	attempts := NewCensus().Parse([]byte(body), addrs)
	require.Len(t, attempts, 1)
	assert.Equal(t, QualityNoMatch, attempts[0].Quality)
	assert.Nil(t, attempts[0].Latitude)
}

func TestCensusPrepare_Limits(t *testing.T) {
	p := NewCensus(WithCensusBatchSize(2))

	_, err := p.Prepare(nil)
	assert.Error(t, err)

	_, err = p.Prepare([]Address{{ID: "1", Street: "a"}, {ID: "2", Street: "b"}, {ID: "3", Street: "c"}})
	assert.Error(t, err)

	// A batch of only blank addresses cannot be submitted at all.
	_, err = p.Prepare([]Address{{ID: "1"}, {ID: "2"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestCensusSubmit_TransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewCensus(WithCensusBaseURL(srv.URL))
	prepared, err := p.Prepare([]Address{{ID: "V1", Street: "100 Peachtree St NW", City: "Atlanta", State: "GA"}})
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), prepared)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestCensusSubmit_HardStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewCensus(WithCensusBaseURL(srv.URL))
	prepared, err := p.Prepare([]Address{{ID: "V1", Street: "100 Peachtree St NW", City: "Atlanta", State: "GA"}})
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), prepared)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
}

func TestSplitCSVLine_QuotedCommas(t *testing.T) {
	fields := splitCSVLine(`"V1","100 Main St, Atlanta, GA","Match","Exact","addr","-84.1,33.7"`)
	require.Len(t, fields, 6)
	assert.Equal(t, `"100 Main St, Atlanta, GA"`, fields[1])
	assert.Equal(t, `"-84.1,33.7"`, fields[5])
}
