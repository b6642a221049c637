package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrEmptyBody is returned by DecodeJSON when there is nothing to decode
var ErrEmptyBody = errors.New("empty request body")

// ReadBody reads the whole request body. A missing body reads as empty.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

// DecodeJSON decodes a single JSON value. Trailing data after the value is
// rejected so that concatenated documents are not silently truncated.
func DecodeJSON(body []byte, dest interface{}) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: unexpected data after top-level value")
	}
	return nil
}
