package pipeline

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Response is what every pipeline entry point returns instead of an error.
type Response struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

func ok(body any) Response {
	return Response{StatusCode: http.StatusOK, Body: body}
}

func failure(err error) Response {
	return Response{StatusCode: http.StatusInternalServerError, Body: ErrorBody{Error: err.Error()}}
}

// guard converts a panic in the current invocation into a 500 response.
func guard(log *zap.Logger, resp *Response) {
	if r := recover(); r != nil {
		log.Error("invocation panicked", zap.Any("panic", r), zap.Stack("stack"))
		*resp = failure(fmt.Errorf("internal error: %v", r))
	}
}
