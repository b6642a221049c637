package intake

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies intake failures. It is also the outcome label on
// intake_requests_total.
type ErrorKind string

const (
	KindValidationFailed     ErrorKind = "validation_failed"
	KindMalformedRequest     ErrorKind = "malformed_request"
	KindConfigurationMissing ErrorKind = "configuration_missing"
	KindProcessorError       ErrorKind = "processor_error"
	KindStoreError           ErrorKind = "store_error"
	KindInternalError        ErrorKind = "internal_error"
)

// Messages returned to the caller. The cause of a failure is only logged.
const (
	MessageValidationFailed = "Token, email, nombre y uID son requeridos"
	MessageMalformedRequest = "Cuerpo de la solicitud inválido"
	MessageInternalError    = "Error interno al crear el cliente o la suscripción"
)

// ErrPriceNotConfigured is the cause of a KindConfigurationMissing failure
var ErrPriceNotConfigured = errors.New("STRIPE_PRICE_ID is not configured")

// Error is a failed intake. CustomerID is set when the processor customer
// was already created, i.e. the failure left an orphaned customer behind.
type Error struct {
	Kind       ErrorKind
	Op         string
	CustomerID string
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("intake %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("intake %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an intake error. Errors that are not
// *Error are internal.
func KindOf(err error) ErrorKind {
	var intakeErr *Error
	if errors.As(err, &intakeErr) {
		return intakeErr.Kind
	}
	return KindInternalError
}

// StatusCode maps a kind to its HTTP status
func StatusCode(kind ErrorKind) int {
	switch kind {
	case KindValidationFailed, KindMalformedRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage maps a kind to the message shown to the caller
func PublicMessage(kind ErrorKind) string {
	switch kind {
	case KindValidationFailed:
		return MessageValidationFailed
	case KindMalformedRequest:
		return MessageMalformedRequest
	default:
		return MessageInternalError
	}
}
