// Copyright (c) 2025 Berik Ashimov

package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"routeplan/internal/allocator"
	"routeplan/internal/design"
	"routeplan/internal/render"
	"routeplan/internal/store"
)

var errBadID = errors.New("invalid id")

type server struct {
	store   *store.Store
	log     logrus.FieldLogger
	metrics *planMetrics
	now     func() time.Time
}

func newServer(st *store.Store, log logrus.FieldLogger, m *planMetrics) *server {
	return &server{store: st, log: log, metrics: m, now: time.Now}
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(s.metrics.handler()))
	r.GET("/templates", func(c *gin.Context) { c.JSON(http.StatusOK, render.Templates()) })

	r.POST("/plans", s.createPlan)
	r.GET("/plans", s.listPlans)
	r.GET("/plans/:id", s.getPlan)
	r.DELETE("/plans/:id", s.deletePlan)
	r.GET("/plans/:id/source", s.getSource)
	r.GET("/plans/:id/export", s.exportPlan)
	r.GET("/plans/:id/routers/:router", s.getRouter)
	r.GET("/plans/:id/routers/:router/config", s.routerConfig)
	return r
}

func (s *server) healthz(c *gin.Context) {
	if err := s.store.Ping(); err != nil {
		c.String(http.StatusServiceUnavailable, "db: %v", err)
		return
	}
	c.String(http.StatusOK, "ok")
}

// build runs one plan build and records it in the metrics.
func (s *server) build(d *design.Design) (*design.Plan, error) {
	start := time.Now()
	plan, err := design.Build(d, design.WithLogger(s.log))
	s.metrics.observe(plan, err, time.Since(start))
	return plan, err
}

func (s *server) createPlan(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.fail(c, errors.Wrap(design.ErrInvalidDesign, err.Error()))
		return
	}
	format := requestFormat(c)
	if format == "" {
		format = design.DetectFormat(body)
	}
	d, err := design.Parse(body, format)
	if err != nil {
		if !errors.Is(err, design.ErrUnsupportedFormat) {
			err = errors.Wrap(design.ErrInvalidDesign, err.Error())
		}
		s.fail(c, err)
		return
	}
	plan, err := s.build(d)
	if err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.store.SavePlan(plan, store.Source{Body: body, Format: format})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log.WithFields(logrus.Fields{"id": id, "plan": plan.Name, "routes": len(plan.Routes)}).Info("plan stored")
	c.JSON(http.StatusCreated, gin.H{"id": id, "plan": plan})
}

func (s *server) listPlans(c *gin.Context) {
	plans, err := s.store.ListPlans()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (s *server) getPlan(c *gin.Context) {
	plan, ok := s.loadPlan(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *server) deletePlan(c *gin.Context) {
	id, err := planID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.DeletePlan(id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) getSource(c *gin.Context) {
	id, err := planID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	src, err := s.store.LoadSource(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	contentType := "application/x-yaml; charset=utf-8"
	if src.Format == design.FormatJSON {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, src.Body)
}

func (s *server) exportPlan(c *gin.Context) {
	plan, ok := s.loadPlan(c)
	if !ok {
		return
	}
	if err := exportPlan(c, plan, c.Query("format")); err != nil {
		s.fail(c, err)
	}
}

func (s *server) getRouter(c *gin.Context) {
	plan, ok := s.loadPlan(c)
	if !ok {
		return
	}
	id, err := strconv.Atoi(c.Param("router"))
	if err != nil {
		s.fail(c, errors.Wrapf(errBadID, "router %q", c.Param("router")))
		return
	}
	view, found := plan.Router(id)
	if !found {
		s.fail(c, errors.Wrapf(render.ErrUnknownRouter, "%s", design.Hostname(id)))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *server) routerConfig(c *gin.Context) {
	plan, ok := s.loadPlan(c)
	if !ok {
		return
	}
	id, err := strconv.Atoi(c.Param("router"))
	if err != nil {
		s.fail(c, errors.Wrapf(errBadID, "router %q", c.Param("router")))
		return
	}
	opts := render.Options{
		Template:    c.Query("template"),
		GeneratedAt: s.now(),
	}
	if user := strings.TrimSpace(c.Query("ssh_user")); user != "" {
		opts.SSH = &render.SSH{Username: user, Secret: c.Query("ssh_secret"), Domain: c.Query("ssh_domain")}
	}
	out, err := render.Render(plan, id, opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, out)
}

func (s *server) loadPlan(c *gin.Context) (*design.Plan, bool) {
	id, err := planID(c)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	plan, err := s.store.LoadPlan(id)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return plan, true
}

func planID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(errBadID, "plan %q", c.Param("id"))
	}
	return id, nil
}

// requestFormat picks the design format from ?format= or the content type.
func requestFormat(c *gin.Context) string {
	if f := strings.ToLower(strings.TrimSpace(c.Query("format"))); f != "" {
		return f
	}
	ct := strings.ToLower(c.ContentType())
	switch {
	case strings.Contains(ct, "json"):
		return design.FormatJSON
	case strings.Contains(ct, "yaml"):
		return design.FormatYAML
	}
	return ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrPlanNotFound), errors.Is(err, render.ErrUnknownRouter):
		return http.StatusNotFound
	case errors.Is(err, design.ErrInvalidDesign),
		errors.Is(err, design.ErrUnsupportedFormat),
		errors.Is(err, allocator.ErrInvalidPrefix),
		errors.Is(err, render.ErrUnknownTemplate),
		errors.Is(err, errBadID),
		errors.Is(err, errUnknownExport):
		return http.StatusBadRequest
	case errors.Is(err, allocator.ErrAddressSpaceExhausted):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	var verr *design.ValidationError
	if errors.As(err, &verr) {
		body["issues"] = verr.Issues
	}
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}
