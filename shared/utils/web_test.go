package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/itchan-dev/starter/shared/api"
	internal_errors "github.com/itchan-dev/starter/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]int{"n": 1})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body api.BaseResponse[map[string]int]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 200, body.Code)
	assert.Equal(t, "success", body.Message)
	assert.Equal(t, 1, body.Data["n"])
}

func TestWriteErrorAndStatusCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"plain error", errors.New("oops"), http.StatusInternalServerError, "oops"},
		{"status error", &internal_errors.ErrorWithStatusCode{Message: "bad", StatusCode: http.StatusBadRequest}, http.StatusBadRequest, "bad"},
		{"service error", &internal_errors.ServiceError{Title: "Not Found", Message: "no board", StatusCode: http.StatusNotFound}, http.StatusNotFound, "no board"},
		{"unreachable backend", &internal_errors.ServiceError{Title: "Error", Message: "backend unavailable"}, http.StatusBadGateway, "backend unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorAndStatusCode(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Message)
			assert.Equal(t, tt.status, body.Code)
		})
	}
}

func TestGetIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
		ok     bool
	}{
		{"192.168.1.7:5555", "192.168.1.7", true},
		{"[::1]:8080", "::1", true},
		{"10.0.0.1", "10.0.0.1", true},
		{"not-an-ip:80", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			r.Header.Set("X-Forwarded-For", "1.2.3.4")
			ip, err := GetIP(r)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ip)
		})
	}
}
