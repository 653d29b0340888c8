package appErrors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrorKind is one of a closed set of provider failure categories. Retryability is data on the kind.
type ErrorKind struct {
	Name      string
	Retryable bool
}

func (k ErrorKind) String() string { return k.Name }

var (
	KindServer           = ErrorKind{Name: "server", Retryable: true}
	KindRateLimited      = ErrorKind{Name: "rate_limited", Retryable: true}
	KindAuth             = ErrorKind{Name: "auth", Retryable: false}
	KindInvalidParameter = ErrorKind{Name: "invalid_parameter", Retryable: false}
	KindPolicy           = ErrorKind{Name: "policy", Retryable: false}
	KindClient           = ErrorKind{Name: "client", Retryable: false}         // unclassified 4xx
	KindUnknownServer    = ErrorKind{Name: "unknown_server", Retryable: true}  // unclassified 5xx
)

// providerCodes maps provider error codes to kinds.
var providerCodes = map[int]ErrorKind{
	// server side / temporary
	1:      KindServer,
	2:      KindServer,
	131000: KindServer,
	131016: KindServer,
	133004: KindServer,

	// throughput and spam limits
	4:      KindRateLimited,
	613:    KindRateLimited,
	80007:  KindRateLimited,
	130429: KindRateLimited,
	131048: KindRateLimited,
	131056: KindRateLimited,

	// credentials and permissions; code 0 (AuthException) arrives with 401 and is covered by the status fallback
	3:      KindAuth,
	10:     KindAuth,
	190:    KindAuth,
	131005: KindAuth,

	// malformed requests and template mismatches
	100:    KindInvalidParameter,
	131008: KindInvalidParameter,
	131009: KindInvalidParameter,
	131021: KindInvalidParameter,
	132000: KindInvalidParameter,
	132001: KindInvalidParameter,
	132012: KindInvalidParameter,

	// content, quality and opt-out policy
	368:    KindPolicy,
	131026: KindPolicy,
	131049: KindPolicy,
	131050: KindPolicy,
	132015: KindPolicy,
	132016: KindPolicy,
}

// Classify returns the kind for a provider error. Known codes win over the HTTP status;
// unknown codes fall back to the status class.
func Classify(httpStatus, code int, errType string) ErrorKind {
	if k, ok := providerCodes[code]; ok {
		return k
	}
	if errType == "OAuthException" && (httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden) {
		return KindAuth
	}
	switch {
	case httpStatus == http.StatusTooManyRequests:
		return KindRateLimited
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden:
		return KindAuth
	case httpStatus >= 500:
		return KindUnknownServer
	}
	return KindClient
}

// ProviderError is a classified failure reported by the messaging provider.
type ProviderError struct {
	Kind       ErrorKind
	HTTPStatus int
	Code       int
	Subcode    int
	Type       string
	Message    string
	TraceID    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d (%s, %s): %s", e.Code, e.Type, e.Kind.Name, e.Message)
}

func (e *ProviderError) Retryable() bool { return e.Kind.Retryable }

func NewProviderError(httpStatus, code, subcode int, errType, message, traceID string) *ProviderError {
	return &ProviderError{
		Kind:       Classify(httpStatus, code, errType),
		HTTPStatus: httpStatus,
		Code:       code,
		Subcode:    subcode,
		Type:       errType,
		Message:    message,
		TraceID:    traceID,
	}
}

func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeUnclassified is stored on recipients whose failure carried no provider classification.
const CodeUnclassified = "UNCLASSIFIED"

// CodeInvalidPhone is stored on recipients whose number could not be normalised.
const CodeInvalidPhone = "INVALID_PHONE"

// RecipientErrorCode renders err as the code persisted on a failed recipient.
func RecipientErrorCode(err error) string {
	var ip *InvalidPhoneError
	if errors.As(err, &ip) {
		return CodeInvalidPhone
	}
	if pe, ok := AsProviderError(err); ok {
		if pe.Code == 0 && pe.HTTPStatus != 0 {
			return "HTTP_" + strconv.Itoa(pe.HTTPStatus)
		}
		return strconv.Itoa(pe.Code)
	}
	return CodeUnclassified
}
