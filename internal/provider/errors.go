package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind partitions provider failures into the classes the lifecycle manager
// and the API layer react to differently.
type Kind int

const (
	KindGeneric Kind = iota
	KindInvalidRequest
	KindQuotaExceeded
	KindTimeout
)

// Error is a provider-scoped failure with a backend error code.
type Error struct {
	Provider string
	Code     string
	Kind     Kind
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

// Errorf builds a generic provider error.
func Errorf(providerName, code, format string, args ...any) *Error {
	return &Error{Provider: providerName, Code: code, Kind: KindGeneric, Message: fmt.Sprintf(format, args...)}
}

// InvalidRequestf builds a client-fixable validation error. The message
// surfaces to the caller verbatim.
func InvalidRequestf(providerName, format string, args ...any) *Error {
	return &Error{Provider: providerName, Code: "invalid_request", Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// QuotaExceeded builds the error for 429-class responses.
func QuotaExceeded(providerName string) *Error {
	return &Error{Provider: providerName, Code: "quota_exceeded", Kind: KindQuotaExceeded, Message: "Rate limit or quota exceeded"}
}

// Timeout builds the error for transport timeouts.
func Timeout(providerName, message string) *Error {
	return &Error{Provider: providerName, Code: "timeout", Kind: KindTimeout, Message: message}
}

// WrapTransport classifies a transport-level failure from the HTTP client.
func WrapTransport(providerName string, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Timeout(providerName, "Request timed out")
	}
	return Errorf(providerName, "transport", "request failed: %v", err)
}

// FromStatusCode maps a non-2xx HTTP response to the error taxonomy:
// 429 to quota, other 4xx to invalid request, everything else generic.
func FromStatusCode(providerName string, statusCode int, message string) *Error {
	switch {
	case statusCode == 429:
		return QuotaExceeded(providerName)
	case statusCode >= 400 && statusCode < 500:
		return &Error{Provider: providerName, Code: fmt.Sprintf("http_%d", statusCode), Kind: KindInvalidRequest, Message: message}
	default:
		return &Error{Provider: providerName, Code: fmt.Sprintf("http_%d", statusCode), Kind: KindGeneric, Message: message}
	}
}

func kindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return KindGeneric, false
}

// IsInvalidRequest reports whether err is a client-fixable validation error.
func IsInvalidRequest(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindInvalidRequest
}

// IsQuotaExceeded reports whether err is a rate/quota failure.
func IsQuotaExceeded(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindQuotaExceeded
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}
