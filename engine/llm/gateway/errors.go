package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/compozy/vachanamrut/engine/core"
)

// ErrNoCredentials marks a provider that has no usable API key.
var ErrNoCredentials = errors.New("no API keys configured")

// Attempt records one failed provider call.
type Attempt struct {
	Provider core.ProviderName
	Err      error
}

// AllProvidersFailedError is returned when every provider in the fallback
// order failed for a single call. It is the only gateway error that aborts a
// pipeline run.
type AllProvidersFailedError struct {
	Attempts []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all LLM providers failed: no providers configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, core.RedactError(a.Err)))
	}
	return "all LLM providers failed: " + strings.Join(parts, "; ")
}

func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// IsAllProvidersFailed reports whether err carries an AllProvidersFailedError.
func IsAllProvidersFailed(err error) bool {
	var target *AllProvidersFailedError
	return errors.As(err, &target)
}
