package dispersion

import (
	"errors"
	"fmt"
)

var (
	ErrShape          = errors.New("shape_error")
	ErrInvalidModel   = errors.New("invalid_model")
	ErrParameterCount = errors.New("parameter_count")
)

// ShapeError reports an inconsistent or empty axis in the construction input.
type ShapeError struct {
	Axis string
	msg  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape error on %s axis: %s", e.Axis, e.msg)
}

func (e *ShapeError) Unwrap() error {
	return ErrShape
}

func newShapeError(axis, format string, args ...any) error {
	return &ShapeError{Axis: axis, msg: fmt.Sprintf(format, args...)}
}

// InvalidModelError reports an unknown model or one that cannot be applied
// to the supplied data.
type InvalidModelError struct {
	Model string
	msg   string
}

func (e *InvalidModelError) Error() string {
	if e.Model == "" {
		return "invalid model: " + e.msg
	}
	return fmt.Sprintf("invalid model %q: %s", e.Model, e.msg)
}

func (e *InvalidModelError) Unwrap() error {
	return ErrInvalidModel
}

func newInvalidModel(model, format string, args ...any) error {
	return &InvalidModelError{Model: model, msg: fmt.Sprintf(format, args...)}
}

// ParameterCountError reports a parameter vector whose length does not match
// the model layout.
type ParameterCountError struct {
	Got, Want int
}

func (e *ParameterCountError) Error() string {
	return fmt.Sprintf("parameter vector has %d elements, layout needs %d", e.Got, e.Want)
}

func (e *ParameterCountError) Unwrap() error {
	return ErrParameterCount
}
