package backend

import "fmt"

// RequestError is a failed backend call: either the transport failed (Err is
// set) or the backend answered outside 2xx.
type RequestError struct {
	Path       string
	StatusCode int
	Status     string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("%d", e.StatusCode)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// HTTPStatus reports the backend status code, 0 for transport failures
func (e *RequestError) HTTPStatus() int {
	return e.StatusCode
}
