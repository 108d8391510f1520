package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zero-day-ai/crucible/internal/types"
)

const (
	ErrProviderNotFound      types.ErrorCode = "LLM_PROVIDER_NOT_FOUND"
	ErrProviderUnavailable   types.ErrorCode = "LLM_PROVIDER_UNAVAILABLE"
	ErrProviderUnauthorized  types.ErrorCode = "LLM_PROVIDER_UNAUTHORIZED"
	ErrProviderRateLimited   types.ErrorCode = "LLM_PROVIDER_RATE_LIMITED"
	ErrProviderInvalidInput  types.ErrorCode = "LLM_PROVIDER_INVALID_INPUT"
	ErrProviderAlreadyExists types.ErrorCode = "LLM_PROVIDER_ALREADY_EXISTS"

	ErrInvalidRequest      types.ErrorCode = "LLM_INVALID_REQUEST"
	ErrContentFiltered     types.ErrorCode = "LLM_CONTENT_FILTERED"
	ErrResponseParseFailed types.ErrorCode = "LLM_RESPONSE_PARSE_FAILED"
	ErrTimeoutExceeded     types.ErrorCode = "LLM_TIMEOUT_EXCEEDED"
	ErrContextCanceled     types.ErrorCode = "LLM_CONTEXT_CANCELED"
	ErrNetworkFailed       types.ErrorCode = "LLM_NETWORK_FAILED"
)

// transient codes are worth another attempt even when the error was not
// built as retryable.
var transient = map[types.ErrorCode]bool{
	ErrNetworkFailed:       true,
	ErrProviderRateLimited: true,
	ErrProviderUnavailable: true,
	ErrTimeoutExceeded:     true,
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	var ce *types.CrucibleError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Retryable || transient[ce.Code]
}

// IsTransportFailure reports whether the provider could not be reached or
// refused the credentials, as opposed to rejecting the request itself.
// Targets record these as response errors instead of failing the turn.
func IsTransportFailure(err error) bool {
	var ce *types.CrucibleError
	if !errors.As(err, &ce) {
		return false
	}
	return transient[ce.Code] || ce.Code == ErrProviderUnauthorized
}

func retryable(code types.ErrorCode, message string, cause error) *types.CrucibleError {
	return &types.CrucibleError{Code: code, Message: message, Retryable: true, Cause: cause}
}

func NewProviderNotFoundError(providerName string) *types.CrucibleError {
	return types.NewError(ErrProviderNotFound, "provider not found: "+providerName)
}

func NewProviderUnavailableError(providerName string, cause error) *types.CrucibleError {
	return retryable(ErrProviderUnavailable, "provider temporarily unavailable: "+providerName, cause)
}

func NewInvalidRequestError(message string) *types.CrucibleError {
	return types.NewError(ErrInvalidRequest, message)
}

// NewParseError reports a model reply that could not be decoded. Asking
// again often yields well-formed output, so it is retryable.
func NewParseError(message string, cause error) *types.CrucibleError {
	return retryable(ErrResponseParseFailed, message, cause)
}

func NewNetworkError(message string, cause error) *types.CrucibleError {
	return retryable(ErrNetworkFailed, message, cause)
}

func NewProviderUnauthorizedError(providerName string, cause error) *types.CrucibleError {
	return types.WrapError(ErrProviderUnauthorized, fmt.Sprintf("provider '%s' authentication failed", providerName), cause)
}

// NewAuthError is returned when a keyed provider is built without a key.
func NewAuthError(provider string, err error) error {
	return NewProviderUnauthorizedError(provider, err)
}

// sdkErrors classifies provider SDK errors by message, first match wins.
var sdkErrors = []struct {
	needles []string
	wrap    func(provider string, err error) *types.CrucibleError
}{
	{
		[]string{"unauthorized", "authentication", "api key", "401"},
		NewProviderUnauthorizedError,
	},
	{
		[]string{"rate limit", "too many requests", "429"},
		func(p string, err error) *types.CrucibleError {
			return retryable(ErrProviderRateLimited, "rate limit exceeded for provider: "+p, err)
		},
	},
	{
		[]string{"content filter", "content_filter", "content management policy"},
		func(_ string, err error) *types.CrucibleError {
			return types.WrapError(ErrContentFiltered, "request blocked by provider content filter", err)
		},
	},
	{
		[]string{"timeout", "deadline"},
		func(_ string, err error) *types.CrucibleError { return retryable(ErrTimeoutExceeded, err.Error(), err) },
	},
	{
		[]string{"network", "connection"},
		func(_ string, err error) *types.CrucibleError { return NewNetworkError(err.Error(), err) },
	},
}

// TranslateError maps an SDK error onto a crucible error. Errors that
// already carry a code pass through; anything unrecognised is treated as
// the provider being unavailable.
func TranslateError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ce *types.CrucibleError
	if errors.As(err, &ce) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return types.WrapError(ErrContextCanceled, "request canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return retryable(ErrTimeoutExceeded, "request deadline exceeded", err)
	}

	msg := strings.ToLower(err.Error())
	for _, class := range sdkErrors {
		for _, needle := range class.needles {
			if strings.Contains(msg, needle) {
				return class.wrap(provider, err)
			}
		}
	}
	return NewProviderUnavailableError(provider, err)
}
