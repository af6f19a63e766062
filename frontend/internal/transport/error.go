package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// HTTPError represents a non-2xx HTTP response returned by the backend.
type HTTPError struct {
	StatusCode int
	Status     string // reason phrase without the numeric code, e.g. "Not Found"
	Body       []byte
	Header     http.Header
}

func newHTTPError(code int, status string, body []byte, header http.Header) *HTTPError {
	return &HTTPError{
		StatusCode: code,
		Status:     statusText(code, status),
		Body:       body,
		Header:     header.Clone(),
	}
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// Message returns the "message" field of a JSON error body, if present.
func (e *HTTPError) Message() string {
	if e == nil || len(e.Body) == 0 || !gjson.ValidBytes(e.Body) {
		return ""
	}
	return strings.TrimSpace(gjson.GetBytes(e.Body, "message").String())
}

// statusText strips the code from a status line ("500 Internal Server Error")
// so a custom reason phrase from the server is kept.
func statusText(code int, status string) string {
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(status), strconv.Itoa(code)))
	if text == "" {
		text = http.StatusText(code)
	}
	return text
}
