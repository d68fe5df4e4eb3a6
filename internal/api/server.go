// Package api serves dispersion evaluation and fitting over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/fit"
	"github.com/samcharles93/relaxdisp/internal/logger"
	"github.com/samcharles93/relaxdisp/internal/version"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config sets server limits. Zero values pick defaults.
type Config struct {
	// Fit holds the defaults applied to every fit request.
	Fit fit.Settings
	// MaxJobs bounds fits running at once; further jobs stay queued.
	MaxJobs int
	// ExpmWorkers is passed to every evaluator.
	ExpmWorkers int
	// RateLimit is the sustained requests per second accepted by the
	// evaluate and fit endpoints; zero disables limiting.
	RateLimit float64
	Burst     int
}

type Server struct {
	store   *FitStore
	cfg     Config
	log     logger.Logger
	jobs    *semaphore.Weighted
	limiter *rate.Limiter
	clock   func() time.Time

	// base parents every background fit so Shutdown can stop them.
	base       context.Context
	cancelBase context.CancelFunc
}

func NewServer(store *FitStore, cfg Config, log logger.Logger) *Server {
	if store == nil {
		store = NewFitStore()
	}
	if log == nil {
		log = logger.Default()
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 1
	}
	if cfg.ExpmWorkers <= 0 {
		cfg.ExpmWorkers = 1
	}
	s := &Server{
		store: store,
		cfg:   cfg,
		log:   log,
		jobs:  semaphore.NewWeighted(int64(cfg.MaxJobs)),
		clock: time.Now,
	}
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	s.base, s.cancelBase = context.WithCancel(logger.WithContext(context.Background(), log))
	return s
}

func (s *Server) Register(e *echo.Echo) {
	limit := rateLimit(s.limiter)

	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/v1/models/:name", s.handleGetModel)
	e.POST("/v1/evaluate", s.handleEvaluate, limit)

	e.POST("/v1/fit", s.handleCreateFit, limit)
	e.GET("/v1/fit", s.handleListFits)
	e.GET("/v1/fit/:id", s.handleGetFit)
	e.DELETE("/v1/fit/:id", s.handleDeleteFit)
	e.POST("/v1/fit/:id/cancel", s.handleCancelFit)
}

// Shutdown cancels every queued and running fit.
func (s *Server) Shutdown() {
	s.store.CancelAll(s.clock())
	s.cancelBase()
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: version.Resolve()})
}

func (s *Server) handleListModels(c *echo.Context) error {
	models := dispersion.Models()
	out := ModelList{Object: "list", Data: make([]dispersion.Info, len(models))}
	for i, m := range models {
		out.Data[i] = m.Info()
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetModel(c *echo.Context) error {
	m, err := dispersion.Lookup(c.Param("name"))
	if err != nil {
		return writeNotFound(c, err.Error())
	}
	return c.JSON(http.StatusOK, m.Info())
}

func (s *Server) handleEvaluate(c *echo.Context) error {
	req, err := decodeJSON[EvaluateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if (req.Params == nil) == (req.X == nil) {
		return writeFailure(c, newInvalidRequest("params", "exactly one of params and x is required"))
	}
	d, err := dispersion.Prepare(req.Data, prepareOptions(req.RecalcTau)...)
	if err != nil {
		return writeFailure(c, err)
	}
	ev, err := dispersion.New(d, req.Model,
		dispersion.WithR1Fit(req.R1Fit),
		dispersion.WithExpmWorkers(s.cfg.ExpmWorkers),
	)
	if err != nil {
		return writeFailure(c, err)
	}
	x := req.X
	if req.Params != nil {
		if x, err = packParams(ev.Layout(), req.Params); err != nil {
			return writeFailure(c, err)
		}
	}
	chi2, err := ev.Evaluate(x)
	if err != nil {
		return writeFailure(c, err)
	}
	params, err := ev.Decode(x)
	if err != nil {
		return writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, EvaluateResponse{
		ID:        "eval_" + uuid.NewString(),
		Object:    "evaluation",
		CreatedAt: s.clock().Unix(),
		Model:     ev.Model().String(),
		Chi2:      chi2,
		NumParams: ev.NumParams(),
		FitPoints: d.FitPoints(),
		Layout:    ev.Layout().Blocks(),
		BackCalc:  ev.BackCalc(),
		Params:    params,
	})
}

// prepareOptions leaves the preparation default in place when recalcTau is
// absent from the request.
func prepareOptions(recalcTau *bool) []dispersion.PrepareOption {
	if recalcTau == nil {
		return nil
	}
	return []dispersion.PrepareOption{dispersion.WithRecalcTau(*recalcTau)}
}
