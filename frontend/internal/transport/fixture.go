package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/itchan-dev/starter/shared/api"
)

// readFixture serves a fixture file as if it were a 200 GET response. The
// file content is returned untouched; it must already be an envelope.
func (c *Client) readFixture(ctx context.Context, fixturePath string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := path.Clean("/" + strings.TrimSpace(fixturePath))
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." || !fs.ValidPath(name) {
		return nil, newHTTPError(http.StatusBadRequest, "", errorBody(http.StatusBadRequest, "invalid fixture path "+fixturePath), nil)
	}

	data, err := fs.ReadFile(c.fixtures, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newHTTPError(http.StatusNotFound, "", errorBody(http.StatusNotFound, "fixture not found: "+name), nil)
		}
		return nil, fmt.Errorf("transport: read fixture %s: %w", name, err)
	}

	c.log.Debug("fixture served", "path", name, "bytes", len(data))
	return &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       data,
		RequestID:  uuid.NewString(),
	}, nil
}

// errorBody renders the error envelope the backend would send.
func errorBody(status int, msg string) []byte {
	body, err := json.Marshal(api.ErrorResponse{Code: status, Message: msg})
	if err != nil {
		return nil
	}
	return body
}
