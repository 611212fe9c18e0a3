package remote

import "fmt"

// APIError reports a request the verification service rejected. It carries
// the server-supplied message and optional machine-readable code.
type APIError struct {
	Message    string
	Code       string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("verification service error (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("verification service error: %s", e.Message)
}

// TransportError reports a network-level failure reaching the verification
// service (timeout, DNS, connection refused).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("verification service unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
