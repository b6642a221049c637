package intake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/platinummonkey/subscription-intake/pkg/httputil"
)

// Request is the inbound intake payload. Every field must be present and
// non-empty; whitespace-only values are accepted as present.
type Request struct {
	PaymentToken string `json:"token" validate:"required"`
	Email        string `json:"email" validate:"required"`
	FullName     string `json:"name" validate:"required"`
	UserPhoneID  string `json:"userPhoneID" validate:"required"`
}

var (
	validatorInstance *validator.Validate
	validatorOnce     sync.Once
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInstance = validator.New()
	})
	return validatorInstance
}

// Validate checks that all four fields are present
func (r *Request) Validate() error {
	if r == nil {
		return &Error{Kind: KindValidationFailed, Op: "validate"}
	}
	if err := getValidator().Struct(r); err != nil {
		return &Error{Kind: KindValidationFailed, Op: "validate", Err: err}
	}
	return nil
}

// DecodeRequest parses an intake body. Keys are matched exactly, so
// "TOKEN" does not fill token the way encoding/json struct decoding would.
// Only a body that is not a single JSON value is an error; a value that is
// not an object, or an object without the keys, yields empty fields for
// Validate to reject. A present key whose value is not a string or null is
// an error.
func DecodeRequest(body []byte) (*Request, error) {
	var raw json.RawMessage
	if err := httputil.DecodeJSON(body, &raw); err != nil {
		return nil, err
	}

	req := &Request{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// arrays, numbers, strings and booleans carry no fields
		return req, nil
	}

	for key, dest := range map[string]*string{
		"token":       &req.PaymentToken,
		"email":       &req.Email,
		"name":        &req.FullName,
		"userPhoneID": &req.UserPhoneID,
	} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, dest); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return req, nil
}

// Outcome carries the processor identifiers of a completed intake
type Outcome struct {
	CustomerID     string
	SubscriptionID string
}

// Response is the JSON body returned by every entry point
type Response struct {
	Success        bool   `json:"success"`
	CustomerID     string `json:"customerId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Message        string `json:"message,omitempty"`
}

// NewResponse maps the result of Subscribe (or an earlier decode failure)
// to an HTTP status and body.
func NewResponse(out *Outcome, err error) (int, Response) {
	if err != nil {
		kind := KindOf(err)
		return StatusCode(kind), Response{
			Success: false,
			Message: PublicMessage(kind),
		}
	}
	return http.StatusOK, Response{
		Success:        true,
		CustomerID:     out.CustomerID,
		SubscriptionID: out.SubscriptionID,
	}
}
