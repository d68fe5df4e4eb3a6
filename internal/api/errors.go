package api

import (
	"errors"
	"fmt"

	"github.com/samcharles93/relaxdisp/internal/dispersion"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg   string
	param string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(param, format string, args ...any) error {
	return invalidRequestError{msg: fmt.Sprintf(format, args...), param: param}
}

// describeError maps construction and request errors onto the error body
// returned to clients. ok is false for errors that are not the caller's
// fault.
func describeError(err error) (re ResponseError, ok bool) {
	re = ResponseError{Message: err.Error(), Type: "invalid_request_error"}
	var inv invalidRequestError
	var shape *dispersion.ShapeError
	var model *dispersion.InvalidModelError
	switch {
	case errors.As(err, &inv):
		re.Param = inv.param
	case errors.As(err, &shape):
		re.Code = "invalid_shape"
		re.Param = "data." + shape.Axis
	case errors.As(err, &model):
		re.Code = "invalid_model"
		re.Param = "model"
	case errors.Is(err, dispersion.ErrParameterCount):
		re.Code = "parameter_count"
		re.Param = "x"
	default:
		return ResponseError{Message: err.Error(), Type: "server_error"}, false
	}
	return re, true
}
