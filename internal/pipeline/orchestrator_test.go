package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerryhatcher/vote-match/internal/voter"
	"github.com/kerryhatcher/vote-match/pkg/geocode"
)

// fakeVoters serves a canned voter list and records selection options.
type fakeVoters struct {
	voters   []voter.Voter
	lastOpts voter.SelectOptions
	applied  []voter.CoordinateUpdate
	applyErr error
}

func (f *fakeVoters) SelectForGeocoding(_ context.Context, opts voter.SelectOptions) ([]voter.Voter, error) {
	f.lastOpts = opts
	if opts.Limit == 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(f.voters) {
		return f.voters[:opts.Limit], nil
	}
	return f.voters, nil
}

func (f *fakeVoters) ApplyCoordinates(_ context.Context, updates []voter.CoordinateUpdate, _ int) (int64, error) {
	if f.applyErr != nil {
		return 0, f.applyErr
	}
	f.applied = append(f.applied, updates...)
	return int64(len(updates)), nil
}

// fakeAttempts accumulates saved attempts and serves canned best attempts.
type fakeAttempts struct {
	saved   []geocode.Attempt
	saveErr error
	best    []BestAttempt
	lastUnr bool
}

func (f *fakeAttempts) SaveBatch(_ context.Context, attempts []geocode.Attempt, _ int) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = append(f.saved, attempts...)
	return int64(len(attempts)), nil
}

func (f *fakeAttempts) BestAttempts(_ context.Context, onlyUnresolved bool, limit int) ([]BestAttempt, error) {
	f.lastUnr = onlyUnresolved
	if limit == 0 {
		return nil, nil
	}
	if limit > 0 && limit < len(f.best) {
		return f.best[:limit], nil
	}
	return f.best, nil
}

// scriptedProvider returns canned qualities per submitted chunk, or errors.
type scriptedProvider struct {
	name      string
	svcType   geocode.ServiceType
	batchSize int
	delay     time.Duration
	submitErr []error // per chunk; nil entry means success
	qualities map[string]geocode.Quality
	submits   int
}

func (p *scriptedProvider) Name() string                  { return p.name }
func (p *scriptedProvider) Type() geocode.ServiceType     { return p.svcType }
func (p *scriptedProvider) RequiresKey() bool             { return false }
func (p *scriptedProvider) RateLimitDelay() time.Duration { return p.delay }
func (p *scriptedProvider) MaxBatchSize() int             { return p.batchSize }

func (p *scriptedProvider) Prepare(addrs []geocode.Address) (geocode.Prepared, error) {
	return addrs, nil
}

func (p *scriptedProvider) Submit(_ context.Context, prepared geocode.Prepared) (geocode.Raw, error) {
	idx := p.submits
	p.submits++
	if idx < len(p.submitErr) && p.submitErr[idx] != nil {
		return nil, p.submitErr[idx]
	}
	return geocode.Raw("ok"), nil
}

func (p *scriptedProvider) Parse(_ geocode.Raw, addrs []geocode.Address) []geocode.Attempt {
	now := time.Now().UTC()
	attempts := make([]geocode.Attempt, len(addrs))
	for i, a := range addrs {
		q, ok := p.qualities[a.ID]
		if !ok {
			q = geocode.QualityExact
		}
		attempts[i] = geocode.Attempt{VoterID: a.ID, Provider: p.name, Quality: q, AttemptedAt: now}
		if q.HasCoordinates() {
			lat, lon := 33.7, -84.3
			attempts[i].Latitude = &lat
			attempts[i].Longitude = &lon
		}
	}
	return attempts
}

func testVoters(ids ...string) []voter.Voter {
	out := make([]voter.Voter, len(ids))
	for i, id := range ids {
		out[i] = voter.Voter{RegistrationNumber: id, StreetNumber: "1", StreetName: "Main", StreetType: "St", City: "Atlanta", ZipCode: "30303"}
	}
	return out
}

func newTestOrchestrator(t *testing.T, fv *fakeVoters, fa *fakeAttempts, p geocode.Provider, primary string) *Orchestrator {
	t.Helper()
	reg := geocode.NewRegistry()
	require.NoError(t, reg.Register(p))
	return NewOrchestrator(OrchestratorConfig{
		Voters:          fv,
		Attempts:        fa,
		Registry:        reg,
		DefaultProvider: primary,
		DefaultState:    "GA",
	})
}

func TestRun_UnknownProviderAborts(t *testing.T) {
	o := newTestOrchestrator(t, &fakeVoters{}, &fakeAttempts{},
		&scriptedProvider{name: "census", svcType: geocode.ServiceBatch, batchSize: 10}, "census")

	_, err := o.Run(context.Background(), RunOptions{Provider: "mapquest", Limit: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, geocode.ErrUnknownProvider)
}

func TestRun_PrimaryVsSecondarySelection(t *testing.T) {
	fv := &fakeVoters{voters: testVoters("V1")}
	fa := &fakeAttempts{}
	p := &scriptedProvider{name: "census", svcType: geocode.ServiceBatch, batchSize: 10}
	o := newTestOrchestrator(t, fv, fa, p, "census")

	_, err := o.Run(context.Background(), RunOptions{Provider: "census", Limit: -1})
	require.NoError(t, err)
	assert.False(t, fv.lastOpts.Secondary, "the default provider runs the primary selection")

	p2 := &scriptedProvider{name: "nominatim", svcType: geocode.ServiceIndividual, batchSize: 1}
	o2 := newTestOrchestrator(t, fv, fa, p2, "census")

	_, err = o2.Run(context.Background(), RunOptions{Provider: "nominatim", Limit: -1, RetryFailed: true})
	require.NoError(t, err)
	assert.True(t, fv.lastOpts.Secondary)
	assert.True(t, fv.lastOpts.RetryFailed)
}

func TestRun_LimitZeroProcessesNothing(t *testing.T) {
	fv := &fakeVoters{voters: testVoters("V1", "V2")}
	fa := &fakeAttempts{}
	p := &scriptedProvider{name: "census", svcType: geocode.ServiceBatch, batchSize: 10}
	o := newTestOrchestrator(t, fv, fa, p, "census")

	result, err := o.Run(context.Background(), RunOptions{Provider: "census", Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Selected)
	assert.Empty(t, fa.saved)
	assert.Equal(t, 0, p.submits)
}

func TestRun_CountsByQuality(t *testing.T) {
	fv := &fakeVoters{voters: testVoters("V1", "V2", "V3")}
	fa := &fakeAttempts{}
	p := &scriptedProvider{
		name: "census", svcType: geocode.ServiceBatch, batchSize: 10,
		qualities: map[string]geocode.Quality{
			"V1": geocode.QualityExact,
			"V2": geocode.QualityInterpolated,
			"V3": geocode.QualityNoMatch,
		},
	}
	o := newTestOrchestrator(t, fv, fa, p, "census")

	result, err := o.Run(context.Background(), RunOptions{Provider: "census", Limit: -1})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Selected)
	assert.Equal(t, 1, result.Counts[geocode.QualityExact])
	assert.Equal(t, 1, result.Counts[geocode.QualityInterpolated])
	assert.Equal(t, 1, result.Counts[geocode.QualityNoMatch])
	assert.Len(t, fa.saved, 3)
	assert.Empty(t, result.ChunkFailures)
}

func TestRun_UnavailableChunkFailsButRunContinues(t *testing.T) {
	fv := &fakeVoters{voters: testVoters("V1", "V2", "V3", "V4")}
	fa := &fakeAttempts{}
	p := &scriptedProvider{
		name: "census", svcType: geocode.ServiceBatch, batchSize: 2,
		submitErr: []error{eris.Wrap(geocode.ErrProviderUnavailable, "census: status 503"), nil},
	}
	o := newTestOrchestrator(t, fv, fa, p, "census")

	result, err := o.Run(context.Background(), RunOptions{Provider: "census", Limit: -1})
	require.NoError(t, err, "an unavailable provider must not abort the run")

	require.Len(t, result.ChunkFailures, 1)
	assert.Equal(t, 0, result.ChunkFailures[0].Index)
	assert.Equal(t, 2, result.ChunkFailures[0].Voters)

	// First chunk persisted as FAILED, second as EXACT.
	assert.Equal(t, 2, result.Counts[geocode.QualityFailed])
	assert.Equal(t, 2, result.Counts[geocode.QualityExact])
	require.Len(t, fa.saved, 4)
	assert.Equal(t, geocode.QualityFailed, fa.saved[0].Quality)
	assert.Equal(t, geocode.QualityExact, fa.saved[2].Quality)
}

func TestRun_PersistErrorRecordedAndRunContinues(t *testing.T) {
	fv := &fakeVoters{voters: testVoters("V1", "V2")}
	fa := &fakeAttempts{saveErr: errors.New("duplicate key violates constraint")}
	p := &scriptedProvider{name: "census", svcType: geocode.ServiceBatch, batchSize: 1}
	o := newTestOrchestrator(t, fv, fa, p, "census")

	result, err := o.Run(context.Background(), RunOptions{Provider: "census", Limit: -1})
	require.NoError(t, err)
	assert.Len(t, result.ChunkFailures, 2)
	assert.Zero(t, result.Counts[geocode.QualityExact], "unpersisted attempts must not be counted")
}

func TestRun_BatchSizeOverridesDownwardOnly(t *testing.T) {
	fv := &fakeVoters{voters: testVoters("V1", "V2", "V3")}
	fa := &fakeAttempts{}
	p := &scriptedProvider{name: "census", svcType: geocode.ServiceBatch, batchSize: 2}
	o := newTestOrchestrator(t, fv, fa, p, "census")

	// Requesting a larger batch than the provider supports keeps the
	// provider's cap: 3 voters over batches of 2 means 2 submissions.
	_, err := o.Run(context.Background(), RunOptions{Provider: "census", Limit: -1, BatchSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, p.submits)
}

func TestRun_MissingKeyAborts(t *testing.T) {
	fv := &fakeVoters{voters: testVoters("V1", "V2")}
	fa := &fakeAttempts{}
	p := &scriptedProvider{
		name: "google", svcType: geocode.ServiceIndividual, batchSize: 1,
		submitErr: []error{eris.Wrap(geocode.ErrMissingAPIKey, "google")},
	}
	o := newTestOrchestrator(t, fv, fa, p, "census")

	_, err := o.Run(context.Background(), RunOptions{Provider: "google", Limit: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, geocode.ErrMissingAPIKey)
	assert.Equal(t, 1, p.submits, "abort on the first chunk, do not burn the rest")
}
