package errors

import (
	"errors"
	"fmt"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

// ServiceError is the normalized failure of one dispatch. Title and Message are
// always populated; StatusCode is 0 when the request never got a response.
type ServiceError struct {
	Title      string
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Title == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// StatusCode reports the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var se *ServiceError
	if errors.As(err, &se) && se.StatusCode != 0 {
		return se.StatusCode, true
	}
	var ws *ErrorWithStatusCode
	if errors.As(err, &ws) {
		return ws.StatusCode, true
	}
	return 0, false
}
