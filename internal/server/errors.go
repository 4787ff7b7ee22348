package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	abusedomain "github.com/smallbiznis/tryon/internal/abuse/domain"
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	"github.com/smallbiznis/tryon/internal/providers/synthesis"
	"github.com/smallbiznis/tryon/internal/tryon"
	usagedomain "github.com/smallbiznis/tryon/internal/usage/domain"
	"github.com/smallbiznis/tryon/pkg/db"
)

const (
	typeValidation  = "validation_error"
	typePolicy      = "policy_violation"
	typeConflict    = "conflict"
	typeNotFound    = "not_found"
	typeIntegrity   = "integrity_failure"
	typeTransient   = "transient_storage_error"
	typeUnavailable = "service_unavailable"
	typeUpstream    = "upstream_error"
	typeInternal    = "internal_error"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

type mappedError struct {
	status  int
	payload errorPayload
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		if wait, ok := retryAfter(lastErr.Err); ok {
			c.Header("Retry-After", strconv.Itoa(wait))
		}
		mapped := mapError(lastErr.Err)
		c.AbortWithStatusJSON(mapped.status, errorResponse{Error: mapped.payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) mappedError {
	switch {
	case err == nil:
		return mapped(http.StatusInternalServerError, typeInternal, "internal_error", "internal server error")

	case isValidationError(err):
		return mapped(http.StatusBadRequest, typeValidation, err.Error(), validationMessage(err))

	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return mapped(http.StatusUnauthorized, typeIntegrity, err.Error(), "request could not be authenticated")

	case errors.Is(err, creditdomain.ErrInsufficientCredit):
		return mapped(http.StatusPaymentRequired, typePolicy, err.Error(), "no credits left")
	case errors.Is(err, creditdomain.ErrCooldown):
		return mapped(http.StatusTooManyRequests, typePolicy, err.Error(), "please wait before trying again")
	case errors.Is(err, abusedomain.ErrOriginRateLimited):
		return mapped(http.StatusTooManyRequests, typePolicy, err.Error(), "too many attempts from this network")
	case errors.Is(err, abusedomain.ErrAlreadyGranted):
		return mapped(http.StatusForbidden, typePolicy, err.Error(), "free credit already used")
	case errors.Is(err, abusedomain.ErrContactAlreadyUsed):
		return mapped(http.StatusForbidden, typePolicy, err.Error(), "email already used")

	case errors.Is(err, creditdomain.ErrAlreadyPending):
		return mapped(http.StatusConflict, typeConflict, err.Error(), "a try-on is already in progress")
	case errors.Is(err, creditdomain.ErrNoPendingSpend):
		return mapped(http.StatusConflict, typeConflict, err.Error(), "no reserved credit")
	case errors.Is(err, creditdomain.ErrRefundWindowExpired):
		return mapped(http.StatusConflict, typeConflict, err.Error(), "reservation is too old to refund")
	case errors.Is(err, paymentdomain.ErrEventInFlight):
		return mapped(http.StatusConflict, typeConflict, err.Error(), "event is being processed")

	case errors.Is(err, ErrNotFound),
		errors.Is(err, identitydomain.ErrIdentityNotFound),
		errors.Is(err, paymentdomain.ErrUnresolvedIdentity),
		errors.Is(err, paymentdomain.ErrProviderNotFound):
		return mapped(http.StatusNotFound, typeNotFound, err.Error(), "not found")

	case errors.Is(err, db.ErrTransient):
		return mapped(http.StatusServiceUnavailable, typeTransient, "transient_storage_error", "temporarily unavailable, retry")
	case errors.Is(err, paymentdomain.ErrProviderNotConfigured),
		errors.Is(err, synthesis.ErrNotConfigured):
		return mapped(http.StatusServiceUnavailable, typeUnavailable, err.Error(), "service unavailable")

	case errors.Is(err, paymentdomain.ErrCheckoutFailed),
		errors.Is(err, synthesis.ErrGarmentFetch),
		errors.Is(err, synthesis.ErrSynthesisFailed):
		return mapped(http.StatusBadGateway, typeUpstream, upstreamCode(err), "upstream service failed")

	default:
		return mapped(http.StatusInternalServerError, typeInternal, "internal_error", "internal server error")
	}
}

func mapped(status int, typ, code, message string) mappedError {
	return mappedError{status: status, payload: errorPayload{Type: typ, Code: code, Message: message}}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, abusedomain.ErrInvalidContact),
		errors.Is(err, creditdomain.ErrInvalidAmount),
		errors.Is(err, identitydomain.ErrInvalidReference),
		errors.Is(err, paymentdomain.ErrInvalidPack),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, tryon.ErrInvalidInput),
		errors.Is(err, usagedomain.ErrInvalidRecord),
		errors.Is(err, synthesis.ErrInvalidImage),
		errors.Is(err, synthesis.ErrImageTooLarge),
		errors.Is(err, synthesis.ErrInvalidGarmentURL):
		return true
	default:
		return false
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, abusedomain.ErrInvalidContact):
		return "a valid email address is required"
	case errors.Is(err, paymentdomain.ErrInvalidPack):
		return "unknown credit pack"
	case errors.Is(err, synthesis.ErrImageTooLarge):
		return "image is too large"
	case errors.Is(err, synthesis.ErrInvalidImage):
		return "person_image must be an image"
	case errors.Is(err, synthesis.ErrInvalidGarmentURL):
		return "garment_url must be an http(s) url"
	default:
		return "invalid request"
	}
}

func upstreamCode(err error) string {
	for _, known := range []error{paymentdomain.ErrCheckoutFailed, synthesis.ErrGarmentFetch, synthesis.ErrSynthesisFailed} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "upstream_error"
}

// retryAfter returns whole seconds, rounded up, for errors that know when
// the caller may try again.
func retryAfter(err error) (int, bool) {
	var wait time.Duration
	var cooldown *creditdomain.CooldownError
	var limited *abusedomain.RateLimitedError
	switch {
	case errors.As(err, &cooldown):
		wait = cooldown.RetryAfter
	case errors.As(err, &limited):
		wait = limited.RetryAfter
	default:
		return 0, false
	}
	return max(1, int(math.Ceil(wait.Seconds()))), true
}

// classifyErrorForLog feeds the request log without leaking messages.
func classifyErrorForLog(err error) (string, string) {
	m := mapError(err)
	return m.payload.Type, m.payload.Code
}
