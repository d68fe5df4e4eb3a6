package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/fit"
	"github.com/samcharles93/relaxdisp/internal/logger"
)

func (s *Server) handleCreateFit(c *echo.Context) error {
	req, err := decodeJSON[FitRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Simulations == 1 || req.Simulations < 0 {
		return writeFailure(c, newInvalidRequest("simulations", "simulations must be 0 or at least 2"))
	}
	p, err := s.problem(&req)
	if err != nil {
		return writeFailure(c, err)
	}
	settings := s.cfg.Fit
	if req.MaxEvaluations > 0 {
		settings.MaxEvaluations = req.MaxEvaluations
	}
	if req.Simulations > 0 {
		settings.Simulations = req.Simulations
	}
	if req.Seed != 0 {
		settings.Seed = req.Seed
	}

	parent := c.Request().Context()
	if req.Background {
		parent = s.base
	}
	ctx, cancel := context.WithCancel(logger.WithContext(parent, s.log))
	job := s.store.Create(&req, p.Model.String(), cancel, s.clock())
	s.log.Info("fit queued", "id", job.ID, "model", job.Model, "background", req.Background)

	if req.Background {
		go s.runFit(ctx, job.ID, p, settings)
		return c.JSON(http.StatusOK, job)
	}
	job = s.runFit(ctx, job.ID, p, settings)
	if job.Status == StatusFailed && job.Error != nil {
		status := http.StatusBadRequest
		if job.Error.Type == "server_error" {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, map[string]any{"error": job.Error})
	}
	return c.JSON(http.StatusOK, job)
}

// problem validates the request by building an evaluator once.
func (s *Server) problem(req *FitRequest) (fit.Problem, error) {
	d, err := dispersion.Prepare(req.Data, prepareOptions(req.RecalcTau)...)
	if err != nil {
		return fit.Problem{}, err
	}
	m, err := dispersion.Lookup(req.Model)
	if err != nil {
		return fit.Problem{}, err
	}
	opts := []dispersion.Option{
		dispersion.WithR1Fit(req.R1Fit),
		dispersion.WithExpmWorkers(s.cfg.ExpmWorkers),
	}
	ev, err := dispersion.NewModel(d, m, opts...)
	if err != nil {
		return fit.Problem{}, err
	}
	start, err := fit.DefaultStart(ev.Layout(), req.Start)
	if err != nil {
		return fit.Problem{}, newInvalidRequest("start", "%v", err)
	}
	return fit.Problem{Name: req.Name, Data: d, Model: m, Options: opts, Start: start}, nil
}

func (s *Server) runFit(ctx context.Context, id string, p fit.Problem, settings fit.Settings) FitJob {
	log := s.log.With("id", id)
	if err := s.jobs.Acquire(ctx, 1); err != nil {
		job, _ := s.store.Finish(id, nil, &ResponseError{Message: err.Error(), Type: "server_error"}, s.clock())
		return job
	}
	defer s.jobs.Release(1)
	if !s.store.Start(id) {
		job, _ := s.store.Get(id)
		return job
	}

	res, err := fit.Run(ctx, p, settings)
	var fitErr *ResponseError
	if err != nil {
		re, _ := describeError(err)
		fitErr = &re
		log.Warn("fit failed", "error", err)
	} else {
		log.Info("fit completed", "chi2", res.Chi2, "evaluations", res.Evaluations, "elapsed", res.Elapsed)
	}
	job, _ := s.store.Finish(id, res, fitErr, s.clock())
	return job
}

func (s *Server) handleListFits(c *echo.Context) error {
	return c.JSON(http.StatusOK, FitJobList{Object: "list", Data: s.store.List()})
}

func (s *Server) handleGetFit(c *echo.Context) error {
	job, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "fit not found")
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancelFit(c *echo.Context) error {
	job, ok := s.store.Cancel(c.Param("id"), s.clock())
	if !ok {
		return writeNotFound(c, "fit not found")
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleDeleteFit(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "fit not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "object": "fit.deleted", "deleted": true})
}
