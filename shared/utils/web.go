package utils

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/itchan-dev/starter/shared/api"
	internal_errors "github.com/itchan-dev/starter/shared/errors"
	"github.com/itchan-dev/starter/shared/logger"
)

// WriteJSON writes data wrapped in the success envelope.
func WriteJSON[T any](w http.ResponseWriter, status int, data T) {
	resp := api.OK(data)
	resp.Code = status
	writeBody(w, status, resp)
}

// WriteErrorAndStatusCode writes err as an error envelope. The status comes
// from the error when it carries one; anything else is a 500.
func WriteErrorAndStatusCode(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if code, ok := internal_errors.StatusCode(err); ok {
		status = code
	}
	msg := err.Error()
	var se *internal_errors.ServiceError
	if errors.As(err, &se) {
		msg = se.Message
		if se.StatusCode == 0 {
			// The backend never answered.
			status = http.StatusBadGateway
		}
	}
	writeBody(w, status, api.ErrorResponse{Code: status, Message: msg})
}

func writeBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Error("encoding response body", "error", err)
	}
}

// GetIP returns the client IP from RemoteAddr. Forwarding headers are not
// trusted.
func GetIP(r *http.Request) (string, error) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if net.ParseIP(ip) == nil {
		return "", &internal_errors.ErrorWithStatusCode{Message: "invalid client address", StatusCode: http.StatusBadRequest}
	}
	return ip, nil
}
