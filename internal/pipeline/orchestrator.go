package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kerryhatcher/vote-match/internal/voter"
	"github.com/kerryhatcher/vote-match/pkg/geocode"
)

// VoterSource is the slice of the voter store the pipeline needs.
type VoterSource interface {
	SelectForGeocoding(ctx context.Context, opts voter.SelectOptions) ([]voter.Voter, error)
	ApplyCoordinates(ctx context.Context, updates []voter.CoordinateUpdate, chunkSize int) (int64, error)
}

// AttemptSink persists and queries geocode attempts.
type AttemptSink interface {
	SaveBatch(ctx context.Context, attempts []geocode.Attempt, chunkSize int) (int64, error)
	BestAttempts(ctx context.Context, onlyUnresolved bool, limit int) ([]BestAttempt, error)
}

// Orchestrator runs one geocoding provider over the voters the cascade
// assigns to it and persists the resulting attempts chunk by chunk.
type Orchestrator struct {
	voters          VoterSource
	attempts        AttemptSink
	registry        *geocode.Registry
	defaultProvider string
	defaultState    string
	submitTimeout   time.Duration
	persistChunk    int
}

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Voters   VoterSource
	Attempts AttemptSink
	Registry *geocode.Registry

	// DefaultProvider is the cascade primary: it geocodes never-attempted
	// voters, while every other provider picks up misses.
	DefaultProvider string

	// DefaultState fills the state component of voter addresses.
	DefaultState string

	// SubmitTimeout bounds each provider submission. Zero means 5 minutes.
	SubmitTimeout time.Duration

	// PersistChunk is the attempt-write chunk size. Zero means 1000.
	PersistChunk int
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Minute
	}
	if cfg.PersistChunk <= 0 {
		cfg.PersistChunk = 1000
	}
	return &Orchestrator{
		voters:          cfg.Voters,
		attempts:        cfg.Attempts,
		registry:        cfg.Registry,
		defaultProvider: cfg.DefaultProvider,
		defaultState:    cfg.DefaultState,
		submitTimeout:   cfg.SubmitTimeout,
		persistChunk:    cfg.PersistChunk,
	}
}

// RunOptions selects what one orchestrator run processes.
type RunOptions struct {
	// Provider names the registered provider to run.
	Provider string

	// Limit caps the voters selected. Zero selects nothing; negative means
	// no cap.
	Limit int

	// RetryFailed re-includes voters whose attempt with this provider is
	// FAILED.
	RetryFailed bool

	// BatchSize overrides the provider's batch capability downward.
	BatchSize int
}

// ChunkFailure records one chunk that could not be processed or persisted.
// The voters involved carry FAILED attempts where persistence succeeded.
type ChunkFailure struct {
	Index  int
	Voters int
	Reason string
}

// RunResult is the structured outcome of an orchestrator run. Partial
// completion is a normal outcome, not an error.
type RunResult struct {
	Provider      string
	Selected      int
	Persisted     int64
	Counts        map[geocode.Quality]int
	ChunkFailures []ChunkFailure
}

// Run executes one provider pass. Registry and configuration problems abort
// the run; provider outages fail individual chunks and the run continues.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	provider, err := o.registry.Get(opts.Provider)
	if err != nil {
		return nil, err
	}

	batchSize := provider.MaxBatchSize()
	if opts.BatchSize > 0 && opts.BatchSize < batchSize {
		batchSize = opts.BatchSize
	}
	if batchSize < 1 {
		batchSize = 1
	}

	log := zap.L().With(zap.String("component", "orchestrator"), zap.String("provider", provider.Name()))

	voters, err := o.voters.SelectForGeocoding(ctx, voter.SelectOptions{
		Provider:    provider.Name(),
		Secondary:   provider.Name() != o.defaultProvider,
		RetryFailed: opts.RetryFailed,
		Limit:       opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Provider: provider.Name(),
		Selected: len(voters),
		Counts:   make(map[geocode.Quality]int),
	}
	if len(voters) == 0 {
		log.Info("no voters selected")
		return result, nil
	}

	log.Info("starting geocode run",
		zap.Int("voters", len(voters)),
		zap.Int("batch_size", batchSize),
		zap.Bool("retry_failed", opts.RetryFailed),
	)

	// Cooperative spacing for INDIVIDUAL providers; BATCH providers pace
	// themselves through submission latency.
	var limiter *rate.Limiter
	if provider.Type() == geocode.ServiceIndividual && provider.RateLimitDelay() > 0 {
		limiter = rate.NewLimiter(rate.Every(provider.RateLimitDelay()), 1)
	}

	for start := 0; start < len(voters); start += batchSize {
		end := min(start+batchSize, len(voters))
		chunkIdx := start / batchSize
		chunk := voters[start:end]

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return result, eris.Wrap(err, "pipeline: rate limit wait")
			}
		} else if err := ctx.Err(); err != nil {
			return result, eris.Wrap(err, "pipeline: run interrupted")
		}

		addrs := make([]geocode.Address, len(chunk))
		for i := range chunk {
			addrs[i] = chunk[i].GeocodeAddress(o.defaultState)
		}

		attempts, chunkErr := o.processChunk(ctx, provider, addrs)
		if chunkErr != nil {
			if eris.Is(chunkErr, geocode.ErrMissingAPIKey) {
				// Setup problem, not a data problem: abort before burning
				// through the rest of the file.
				return result, chunkErr
			}
			log.Warn("chunk failed, marking attempts FAILED",
				zap.Int("chunk", chunkIdx),
				zap.Int("voters", len(addrs)),
				zap.Error(chunkErr),
			)
			result.ChunkFailures = append(result.ChunkFailures, ChunkFailure{
				Index:  chunkIdx,
				Voters: len(addrs),
				Reason: chunkErr.Error(),
			})
			attempts = geocode.FailedAttempts(provider.Name(), addrs, time.Now().UTC())
		}

		n, err := o.attempts.SaveBatch(ctx, attempts, o.persistChunk)
		result.Persisted += n
		if err != nil {
			log.Error("attempt persistence failed",
				zap.Int("chunk", chunkIdx),
				zap.Error(err),
			)
			result.ChunkFailures = append(result.ChunkFailures, ChunkFailure{
				Index:  chunkIdx,
				Voters: len(addrs),
				Reason: err.Error(),
			})
			continue
		}

		for _, a := range attempts {
			result.Counts[a.Quality]++
		}
	}

	log.Info("geocode run finished",
		zap.Int("selected", result.Selected),
		zap.Int64("persisted", result.Persisted),
		zap.Int("chunk_failures", len(result.ChunkFailures)),
	)
	return result, nil
}

// processChunk runs prepare, submit, and parse for one chunk. An invalid
// chunk (nothing submittable) comes back as FAILED attempts rather than an
// error; an unavailable provider comes back as an error for the caller to
// absorb.
func (o *Orchestrator) processChunk(ctx context.Context, provider geocode.Provider, addrs []geocode.Address) ([]geocode.Attempt, error) {
	prepared, err := provider.Prepare(addrs)
	if err != nil {
		if eris.Is(err, geocode.ErrInvalidRecord) {
			return geocode.FailedAttempts(provider.Name(), addrs, time.Now().UTC()), nil
		}
		return nil, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, o.submitTimeout)
	defer cancel()

	raw, err := provider.Submit(submitCtx, prepared)
	if err != nil {
		return nil, err
	}

	return provider.Parse(raw, addrs), nil
}
