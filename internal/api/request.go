package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DecodeJSONBody decodes the request body into v.
//
// A body cut off by the RequestSizeLimit middleware is reported as a request-too-large error,
// any other decoding failure as a malformed request.
func DecodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return NewRequestTooLargeError(fmt.Sprintf("Request body exceeds maximum allowed size (%d bytes)", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return NewMalformedRequestError("request body is empty")
		default:
			return WrapMalformedRequestError(err, "failed to decode request JSON")
		}
	}
	if dec.More() {
		return NewMalformedRequestError("request body must contain a single JSON object")
	}
	return nil
}
