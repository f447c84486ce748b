package geocode

import (
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/kerryhatcher/vote-match/internal/resilience"
)

var (
	// ErrProviderUnavailable marks a Submit failure caused by the service,
	// not the data: transport errors, timeouts, throttling, 5xx. The
	// orchestrator fails the affected chunk and moves on.
	ErrProviderUnavailable = eris.New("geocode: provider unavailable")

	// ErrInvalidRecord marks an address a provider cannot submit at all
	// (for example, every component blank).
	ErrInvalidRecord = eris.New("geocode: invalid record")

	// ErrUnknownProvider is returned by the registry for a name never
	// registered.
	ErrUnknownProvider = eris.New("geocode: unknown provider")

	// ErrDuplicateProvider is returned when a name is registered twice.
	ErrDuplicateProvider = eris.New("geocode: duplicate provider")

	// ErrMissingAPIKey is returned when a provider that requires a key is
	// constructed without one.
	ErrMissingAPIKey = eris.New("geocode: api key not configured")
)

// classifySubmitErr wraps transport-level failures in ErrProviderUnavailable
// so callers can distinguish "the service is down" from "my request is bad".
func classifySubmitErr(provider string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsTransient(err) {
		return eris.Wrapf(ErrProviderUnavailable, "%s: %v", provider, err)
	}
	return eris.Wrapf(err, "geocode: %s submit", provider)
}

// classifyStatus converts a non-200 response status into the right error
// kind: transient statuses mean the provider is unavailable, anything else
// is a hard request failure.
func classifyStatus(provider string, statusCode int) error {
	if resilience.IsTransientHTTPStatus(statusCode) {
		return eris.Wrapf(ErrProviderUnavailable, "%s: status %d", provider, statusCode)
	}
	return eris.Errorf("geocode: %s returned status %d %s", provider, statusCode, http.StatusText(statusCode))
}
