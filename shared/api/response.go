package api

// BaseResponse is the envelope every API response and every fixture carries.
// Consumers only read Data; Code is informational and never validated.
type BaseResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// OK wraps data into a success envelope.
func OK[T any](data T) BaseResponse[T] {
	return BaseResponse[T]{Code: 200, Message: "success", Data: data}
}

// ErrorResponse is the body of a failed API call. Only Message is relied upon.
type ErrorResponse struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}
