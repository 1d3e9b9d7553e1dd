package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	fiscaldomain "github.com/buildwise/kessan/internal/fiscal/domain"
	paymentcycle "github.com/buildwise/kessan/internal/paymentcycle/domain"
	revenuedomain "github.com/buildwise/kessan/internal/revenue/domain"
)

// APIError is the wire shape for failed requests.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

var (
	ErrNotFound = &APIError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}
)

func newValidationError(field, rule, message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "validation_error:" + field + ":" + rule,
		Message: message,
	}
}

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

// AbortWithError maps domain errors onto HTTP responses. Unrecognized
// errors become opaque 500s; the detail stays in the server log.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	message := "internal error"
	switch {
	case errors.Is(err, fiscaldomain.ErrInvalidCompany),
		errors.Is(err, fiscaldomain.ErrInvalidFiscalYear),
		errors.Is(err, fiscaldomain.ErrInvalidSettlementMonth),
		errors.Is(err, fiscaldomain.ErrChangeNotConfirmed),
		errors.Is(err, paymentcycle.ErrInvalidClosingDay),
		errors.Is(err, paymentcycle.ErrInvalidPaymentDay),
		errors.Is(err, paymentcycle.ErrInvalidMonthOffset):
		status, code, message = http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, paymentcycle.ErrUnsupportedCycleType),
		errors.Is(err, revenuedomain.ErrUnresolvedPaymentDate):
		status, code, message = http.StatusUnprocessableEntity, "resolution_error", err.Error()
	case errors.Is(err, fiscaldomain.ErrFiscalInfoNotFound):
		status, code, message = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, fiscaldomain.ErrRolloverConflict):
		status, code, message = http.StatusConflict, "rollover_conflict", err.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": &APIError{Status: status, Code: code, Message: message}})
}
