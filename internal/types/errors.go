package types

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorCode is a stable, machine-readable code surfaced to API callers.
type ErrorCode string

const (
	ErrCodeValidation             ErrorCode = "validation_error"
	ErrCodeNoProvidersAvailable   ErrorCode = "no_providers_available"
	ErrCodeProviderTimeout        ErrorCode = "provider_timeout"
	ErrCodeProviderUnavailable    ErrorCode = "provider_unavailable"
	ErrCodeTokenNotFound          ErrorCode = "token_not_found"
	ErrCodeTokenExpired           ErrorCode = "token_expired"
	ErrCodeTokenAlreadyUsed       ErrorCode = "token_already_used"
	ErrCodeOutcomeAlreadyRecorded ErrorCode = "outcome_already_recorded"
)

// RoutingError is the common error shape for the routing engine. It carries
// a stable code so callers can dispatch without string matching.
type RoutingError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

func (e *RoutingError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RoutingError) Unwrap() error { return e.Wrapped }

// Is matches two RoutingErrors by code, so errors.Is works against the
// sentinel values below.
func (e *RoutingError) Is(target error) bool {
	t, ok := target.(*RoutingError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel values for errors.Is comparisons.
var (
	ErrValidation             = &RoutingError{Code: ErrCodeValidation}
	ErrNoProvidersAvailable   = &RoutingError{Code: ErrCodeNoProvidersAvailable}
	ErrProviderTimeout        = &RoutingError{Code: ErrCodeProviderTimeout}
	ErrProviderUnavailable    = &RoutingError{Code: ErrCodeProviderUnavailable}
	ErrTokenNotFound          = &RoutingError{Code: ErrCodeTokenNotFound, Message: "confirmation token not found"}
	ErrTokenExpired           = &RoutingError{Code: ErrCodeTokenExpired, Message: "confirmation token has expired"}
	ErrTokenAlreadyUsed       = &RoutingError{Code: ErrCodeTokenAlreadyUsed, Message: "confirmation token already used"}
	ErrOutcomeAlreadyRecorded = &RoutingError{Code: ErrCodeOutcomeAlreadyRecorded, Message: "outcome already recorded"}
)

// NewValidationError reports a malformed cart, location, or preset.
func NewValidationError(message string) *RoutingError {
	return &RoutingError{Code: ErrCodeValidation, Message: message}
}

// NewProviderTimeoutError reports a provider that missed its deadline.
func NewProviderTimeoutError(providerID string, wrapped error) *RoutingError {
	return &RoutingError{
		Code:    ErrCodeProviderTimeout,
		Message: fmt.Sprintf("provider %s timed out", providerID),
		Wrapped: wrapped,
	}
}

// NewProviderUnavailableError reports a provider call that failed outright.
func NewProviderUnavailableError(providerID string, wrapped error) *RoutingError {
	return &RoutingError{
		Code:    ErrCodeProviderUnavailable,
		Message: fmt.Sprintf("provider %s unavailable", providerID),
		Wrapped: wrapped,
	}
}

// NoProvidersError is returned when every provider call failed. It carries
// the per-provider failure reasons so callers can see each one.
type NoProvidersError struct {
	ProviderErrors map[string]error
}

func (e *NoProvidersError) Error() string {
	ids := make([]string, 0, len(e.ProviderErrors))
	for id := range e.ProviderErrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.ProviderErrors[id]))
	}
	return fmt.Sprintf("%s: all providers failed (%s)", ErrCodeNoProvidersAvailable, strings.Join(parts, "; "))
}

// Is lets errors.Is match against ErrNoProvidersAvailable.
func (e *NoProvidersError) Is(target error) bool {
	t, ok := target.(*RoutingError)
	return ok && t.Code == ErrCodeNoProvidersAvailable
}
