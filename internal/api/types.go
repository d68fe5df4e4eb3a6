package api

import (
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/fit"
	"github.com/samcharles93/relaxdisp/internal/version"
)

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type HealthResponse struct {
	Status  string       `json:"status"`
	Version version.Info `json:"version"`
}

type ModelList struct {
	Object string            `json:"object"`
	Data   []dispersion.Info `json:"data"`
}

// EvaluateRequest carries one cluster and one parameter vector. Exactly one
// of Params and X is set. A single value in Params is repeated over every
// spin, experiment and field of its block.
type EvaluateRequest struct {
	Model     string               `json:"model"`
	Data      dispersion.Input     `json:"data"`
	Params    map[string][]float64 `json:"params,omitempty"`
	X         []float64            `json:"x,omitempty"`
	R1Fit     bool                 `json:"r1_fit,omitempty"`
	// RecalcTau defaults to true when omitted.
	RecalcTau *bool                `json:"recalc_tau,omitempty"`
}

type EvaluateResponse struct {
	ID        string               `json:"id"`
	Object    string               `json:"object"`
	CreatedAt int64                `json:"created_at"`
	Model     string               `json:"model"`
	Chi2      float64              `json:"chi2"`
	NumParams int                  `json:"num_params"`
	FitPoints int                  `json:"fit_points"`
	Layout    []dispersion.Block   `json:"layout"`
	BackCalc  [][][][][]float64    `json:"back_calc"`
	Params    map[string][]float64 `json:"params"`
}

type FitRequest struct {
	Model     string           `json:"model"`
	Name      string           `json:"name,omitempty"`
	Data      dispersion.Input `json:"data"`
	R1Fit     bool             `json:"r1_fit,omitempty"`
	RecalcTau *bool            `json:"recalc_tau,omitempty"`
	// Start overrides the default starting value of named blocks.
	Start          map[string]float64 `json:"start,omitempty"`
	MaxEvaluations int                `json:"max_evaluations,omitempty"`
	Simulations    int                `json:"simulations,omitempty"`
	Seed           uint64             `json:"seed,omitempty"`
	// Background queues the fit and returns immediately.
	Background bool `json:"background,omitempty"`
}

// Fit job states.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

type FitJob struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	CreatedAt   int64          `json:"created_at"`
	CompletedAt *int64         `json:"completed_at,omitempty"`
	Status      string         `json:"status"`
	Background  bool           `json:"background"`
	Model       string         `json:"model"`
	Name        string         `json:"name,omitempty"`
	Result      *fit.Result    `json:"result,omitempty"`
	Error       *ResponseError `json:"error,omitempty"`
}

func (j FitJob) finished() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

type FitJobList struct {
	Object string   `json:"object"`
	Data   []FitJob `json:"data"`
}
