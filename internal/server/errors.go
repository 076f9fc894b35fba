package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/storefront/internal/authorization"
	businessdomain "github.com/smallbiznis/storefront/internal/business/domain"
	coupondomain "github.com/smallbiznis/storefront/internal/coupon/domain"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
	redemptiondomain "github.com/smallbiznis/storefront/internal/redemption/domain"
	tenantdomain "github.com/smallbiznis/storefront/internal/tenant/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

// CouponRejectedError carries the validator's reason for a declined apply.
type CouponRejectedError struct {
	Reason coupondomain.Reason
}

func (e *CouponRejectedError) Error() string {
	return "coupon_rejected: " + string(e.Reason)
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

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

		status, payload := mapError(lastErr.Err)
		if status == http.StatusConflict && payload.Type == "contended" {
			c.Header("Retry-After", "1")
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindingError turns validator failures into field errors.
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Code:    fe.Tag(),
			Message: "invalid value",
		})
	}
	return &ValidationErrors{Errors: out}
}

func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var rejected *CouponRejectedError
	if errors.As(err, &rejected) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "coupon_rejected",
			Message: "coupon rejected",
			Reason:  string(rejected.Reason),
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, redemptiondomain.ErrAlreadyRedeemed):
		return http.StatusConflict, errorPayload{
			Type:    "already_redeemed",
			Message: "order already redeemed a coupon",
		}
	case errors.Is(err, redemptiondomain.ErrContended):
		return http.StatusConflict, errorPayload{
			Type:    "contended",
			Message: "coupon is under contention, retry",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, businessdomain.ErrSlugTaken),
		errors.Is(err, coupondomain.ErrCodeExists),
		errors.Is(err, coupondomain.ErrConflict),
		errors.Is(err, domainbindingdomain.ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, businessdomain.ErrInactive):
		return http.StatusConflict, errorPayload{
			Type:    "business_inactive",
			Message: "business is deactivated",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code attached to request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, "internal"
	}
	if payload.Reason != "" {
		return payload.Type, payload.Reason
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, redemptiondomain.ErrInvalidRequest):
		return true
	case isBusinessValidationError(err),
		isDomainValidationError(err),
		isCouponValidationError(err),
		isAuthorizationValidationError(err):
		return true
	default:
		return false
	}
}

func isBusinessValidationError(err error) bool {
	switch {
	case errors.Is(err, businessdomain.ErrInvalidName),
		errors.Is(err, businessdomain.ErrInvalidSlug),
		errors.Is(err, businessdomain.ErrReservedSlug),
		errors.Is(err, businessdomain.ErrInvalidEmail),
		errors.Is(err, businessdomain.ErrInvalidID),
		errors.Is(err, businessdomain.ErrInvalidTemplateVersion):
		return true
	default:
		return false
	}
}

func isDomainValidationError(err error) bool {
	switch {
	case errors.Is(err, domainbindingdomain.ErrInvalidHostname),
		errors.Is(err, domainbindingdomain.ErrInvalidStatus),
		errors.Is(err, domainbindingdomain.ErrPlatformHostname):
		return true
	default:
		return false
	}
}

func isCouponValidationError(err error) bool {
	switch {
	case errors.Is(err, coupondomain.ErrInvalidBusiness),
		errors.Is(err, coupondomain.ErrInvalidCode),
		errors.Is(err, coupondomain.ErrInvalidDiscountType),
		errors.Is(err, coupondomain.ErrInvalidDiscountValue),
		errors.Is(err, coupondomain.ErrInvalidAmount),
		errors.Is(err, coupondomain.ErrInvalidLimit),
		errors.Is(err, coupondomain.ErrInvalidWindow):
		return true
	default:
		return false
	}
}

func isAuthorizationValidationError(err error) bool {
	switch {
	case errors.Is(err, authorization.ErrInvalidBusiness),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction),
		errors.Is(err, authorization.ErrInvalidRole):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, businessdomain.ErrNotFound),
		errors.Is(err, coupondomain.ErrNotFound),
		errors.Is(err, coupondomain.ErrBusinessNotFound),
		errors.Is(err, domainbindingdomain.ErrNotFound),
		errors.Is(err, domainbindingdomain.ErrBusinessNotFound),
		errors.Is(err, redemptiondomain.ErrNotFound),
		errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, redemptiondomain.ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	switch code {
	case "reserved_slug":
		return "slug"
	case "platform_hostname":
		return "hostname"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "reserved_slug":
		return "slug is reserved"
	case "platform_hostname":
		return "hostname belongs to the platform domain"
	default:
		return "invalid value"
	}
}
