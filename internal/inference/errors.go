package inference

import (
	"errors"
	"fmt"
)

// TransportError is an HTTP-level failure from the inference server. The raw
// response body is kept for diagnosability; local model servers tend to put
// the actual cause (model not loaded, context overflow) in the body text.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("inference server returned status %d: %s", e.StatusCode, e.Body)
}

// ErrNoContent is returned when the server answers 2xx with an empty body.
// A missing completion is never passed through silently.
var ErrNoContent = errors.New("inference server returned an empty response body")

// ProtocolError is a streaming wire-format failure: the stream ended without
// a terminal event, or the terminal event payload could not be decoded.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "inference stream protocol error: " + e.Reason
}
