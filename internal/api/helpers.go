package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"golang.org/x/time/rate"
)

// maxBodyBytes bounds request bodies; datasets are small.
const maxBodyBytes = 32 << 20

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeFailure renders err as a 400 when the request caused it and a 500
// otherwise.
func writeFailure(c *echo.Context, err error) error {
	re, ok := describeError(err)
	status := http.StatusBadRequest
	if !ok {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, map[string]any{"error": re})
}

// decodeJSON rejects unknown fields and oversized bodies.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return out, err
	}
	if len(body) > maxBodyBytes {
		return out, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, errors.New("request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// packParams builds a vector from named blocks, repeating single values
// over the whole block.
func packParams(l dispersion.Layout, params map[string][]float64) ([]float64, error) {
	full := make(map[string][]float64, len(params))
	for name, v := range params {
		b, ok := l.Block(name)
		if !ok {
			return nil, newInvalidRequest("params", "model has no parameter %q", name)
		}
		if len(v) == 1 && b.Len() > 1 {
			rep := make([]float64, b.Len())
			for i := range rep {
				rep[i] = v[0]
			}
			v = rep
		}
		full[name] = v
	}
	x, err := l.Pack(full)
	if err != nil {
		return nil, newInvalidRequest("params", "%v", err)
	}
	return x, nil
}

// rateLimit rejects requests beyond the limiter's budget with 429.
func rateLimit(l *rate.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if l != nil && !l.Allow() {
				return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many requests", "", "")
			}
			return next(c)
		}
	}
}
