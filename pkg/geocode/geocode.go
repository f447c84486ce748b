// Package geocode defines the geocoding provider contract and the providers
// that implement it: Census (batch), Geocodio (batch), Nominatim and Google
// (individual). Providers never touch the database; they turn addresses into
// attempts and leave persistence to the caller.
package geocode

import (
	"context"
	"strings"
	"time"
)

// ServiceType distinguishes providers that accept many addresses per request
// from those that accept one.
type ServiceType string

const (
	ServiceBatch      ServiceType = "BATCH"
	ServiceIndividual ServiceType = "INDIVIDUAL"
)

// Quality grades a geocoding attempt. Ordering matters: the reconciler keeps
// the highest-quality attempt per voter.
type Quality string

const (
	QualityExact        Quality = "EXACT"
	QualityInterpolated Quality = "INTERPOLATED"
	QualityApproximate  Quality = "APPROXIMATE"
	QualityNoMatch      Quality = "NO_MATCH"
	QualityFailed       Quality = "FAILED"
)

// Rank returns the ordering weight of q; higher is better. Unknown values
// rank below FAILED so corrupt rows never win reconciliation.
func (q Quality) Rank() int {
	switch q {
	case QualityExact:
		return 5
	case QualityInterpolated:
		return 4
	case QualityApproximate:
		return 3
	case QualityNoMatch:
		return 2
	case QualityFailed:
		return 1
	}
	return 0
}

// BetterThan reports whether q outranks other.
func (q Quality) BetterThan(other Quality) bool {
	return q.Rank() > other.Rank()
}

// HasCoordinates reports whether an attempt of this quality carries a usable
// coordinate.
func (q Quality) HasCoordinates() bool {
	switch q {
	case QualityExact, QualityInterpolated, QualityApproximate:
		return true
	}
	return false
}

// Address is a provider's view of a voter record: the registration number
// plus the assembled address components.
type Address struct {
	ID      string // voter registration number
	Street  string
	City    string
	State   string
	ZipCode string
}

// OneLine formats the address as a single comma-joined line, skipping empty
// components.
func (a Address) OneLine() string {
	var parts []string
	for _, p := range []string{a.Street, a.City, a.State, a.ZipCode} {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Attempt is the outcome of geocoding one address with one provider.
// Latitude/Longitude are nil unless Quality carries coordinates. Raw holds
// the provider response fragment that produced the attempt, kept for audit.
type Attempt struct {
	VoterID        string
	Provider       string
	Quality        Quality
	Latitude       *float64
	Longitude      *float64
	MatchedAddress string
	Raw            []byte
	AttemptedAt    time.Time
}

// Prepared is a provider-specific request payload built by Prepare. It is
// opaque to the orchestrator and handed back to Submit unchanged.
type Prepared any

// Raw is the unparsed response body returned by Submit.
type Raw []byte

// Provider is a geocoding backend. Prepare and Parse are pure; Submit is
// the only step that performs network I/O, so a failed Submit leaves no
// partial state to unwind.
type Provider interface {
	// Name is the registry key and the provider column value on attempts.
	Name() string

	// Type reports whether Submit accepts a batch or a single address.
	Type() ServiceType

	// RequiresKey reports whether the provider cannot run without an API key.
	RequiresKey() bool

	// RateLimitDelay is the minimum spacing between Submit calls, zero when
	// the provider imposes none.
	RateLimitDelay() time.Duration

	// MaxBatchSize is the largest slice Prepare accepts; 1 for INDIVIDUAL
	// providers.
	MaxBatchSize() int

	// Prepare builds the request payload for a slice of addresses.
	Prepare(addrs []Address) (Prepared, error)

	// Submit sends the prepared payload and returns the raw response.
	// Transport and availability failures come back wrapped in
	// ErrProviderUnavailable.
	Submit(ctx context.Context, p Prepared) (Raw, error)

	// Parse turns the raw response into exactly one Attempt per input
	// address, in input order. Addresses the response does not cover get a
	// FAILED attempt; Parse never drops a record.
	Parse(raw Raw, addrs []Address) []Attempt
}

// FailedAttempts backfills a FAILED attempt for every address, used when a
// whole submission is lost.
func FailedAttempts(provider string, addrs []Address, now time.Time) []Attempt {
	out := make([]Attempt, len(addrs))
	for i, a := range addrs {
		out[i] = Attempt{
			VoterID:     a.ID,
			Provider:    provider,
			Quality:     QualityFailed,
			AttemptedAt: now,
		}
	}
	return out
}

func ptr(f float64) *float64 { return &f }
