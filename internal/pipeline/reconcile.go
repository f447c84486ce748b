package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/kerryhatcher/vote-match/internal/voter"
)

// Reconciler materializes each voter's authoritative coordinate from the
// best attempt across all providers.
type Reconciler struct {
	voters    VoterSource
	attempts  AttemptSink
	chunkSize int
}

// NewReconciler creates a reconciler. chunkSize bounds each write
// transaction; zero means 1000.
func NewReconciler(voters VoterSource, attempts AttemptSink, chunkSize int) *Reconciler {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &Reconciler{voters: voters, attempts: attempts, chunkSize: chunkSize}
}

// SyncOptions controls one reconciler pass.
type SyncOptions struct {
	// Force re-reconciles voters that already have a coordinate. Without it
	// the pass is idempotent: resolved voters are left alone.
	Force bool

	// Limit caps the voters considered. Zero selects nothing; negative
	// means no cap.
	Limit int
}

// Sync writes each selected voter's winning coordinate back to the voter
// row. A winning NO_MATCH or FAILED attempt clears the coordinate, so a
// voter is resolved only when some provider actually matched.
func (r *Reconciler) Sync(ctx context.Context, opts SyncOptions) (int64, error) {
	best, err := r.attempts.BestAttempts(ctx, !opts.Force, opts.Limit)
	if err != nil {
		return 0, err
	}
	if len(best) == 0 {
		zap.L().Info("reconciler: nothing to sync")
		return 0, nil
	}

	updates := make([]voter.CoordinateUpdate, len(best))
	for i, b := range best {
		u := voter.CoordinateUpdate{RegistrationNumber: b.VoterID}
		if b.Quality.HasCoordinates() {
			u.Latitude = b.Latitude
			u.Longitude = b.Longitude
		}
		updates[i] = u
	}

	applied, err := r.voters.ApplyCoordinates(ctx, updates, r.chunkSize)
	if err != nil {
		return applied, err
	}

	zap.L().Info("reconciler sync complete",
		zap.Int64("updated", applied),
		zap.Bool("force", opts.Force),
	)
	return applied, nil
}
