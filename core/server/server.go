/*
SPDX-License-Identifier: Apache-2.0

Copyright 2024 The Taxinomia Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package server exposes pivot engines over data sources through HTTP.
//
// Every engine is owned by one EventLoop; handlers load data off the loop
// and run all engine work through EventLoop.Do.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/pivotengine/core/metrics"
	"github.com/google/pivotengine/core/pivot"
	"github.com/google/pivotengine/core/query"
	"github.com/google/pivotengine/core/rendering"
	"github.com/google/pivotengine/core/values"
	"github.com/google/pivotengine/core/views"
	"github.com/google/pivotengine/datasources"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Options configures a Server.
type Options struct {
	Title   string
	Culture *values.Culture
	// InitialView is applied to every engine when it is created. A
	// definition that does not fit a source is logged and ignored.
	InitialView *pivot.ViewDefinition
	// MetricsHandler is served on /metrics when set.
	MetricsHandler http.Handler
	// AccessLog enables echo's request logger.
	AccessLog bool
	// Engine tunes the engines' batched passes. Culture, Scheduler and
	// AutoGenerateFields are set by the server; zero batch settings use
	// pivot.DefaultConfig.
	Engine pivot.Config
}

// Server represents the application server with all its dependencies
type Server struct {
	manager  *datasources.Manager
	renderer *rendering.TableRenderer
	loop     *pivot.EventLoop
	opts     Options
	echo     *echo.Echo

	// Owned by loop.
	engines map[string]*session
}

// session is the engine built over one loaded dataset.
// session is one source's engine. lock serializes requests so that each
// one reads the output of the layout it applied.
type session struct {
	engine  *pivot.Engine
	dataset *datasources.Dataset
	lock    chan struct{}
}

// New creates a server. The caller runs loop.
func New(manager *datasources.Manager, loop *pivot.EventLoop, opts Options) (*Server, error) {
	renderer, err := rendering.NewTableRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	if opts.Title == "" {
		opts.Title = "Pivot"
	}
	if opts.Culture == nil {
		opts.Culture = values.Invariant
	}
	s := &Server{
		manager:  manager,
		renderer: renderer,
		loop:     loop,
		opts:     opts,
		engines:  make(map[string]*session),
	}
	s.echo = s.routes()
	return s, nil
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = goccySerializer{}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	if s.opts.AccessLog {
		e.Use(middleware.Logger())
	}
	e.Use(requestMetrics)

	e.GET("/", s.handleLanding)
	e.GET("/pivot", s.handlePivotHTML)

	api := e.Group("/api")
	api.GET("/sources", s.handleSources)
	api.POST("/sources/:name/reload", s.handleReload)
	api.GET("/pivot", s.handlePivotJSON)
	api.GET("/pivot.txt", s.handlePivotText)
	api.GET("/fields", s.handleFields)
	api.GET("/view", s.handleGetView)
	api.PUT("/view", s.handlePutView)
	api.GET("/detail", s.handleDetail)

	if s.opts.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(s.opts.MetricsHandler))
	}
	return e
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		status := c.Response().Status
		if err != nil {
			status = http.StatusInternalServerError
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(route, status, time.Since(start))
		return err
	}
}

// handleError maps domain errors to status codes before echo's default
// handler writes them.
func (s *Server) handleError(err error, c echo.Context) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
	case errors.Is(err, datasources.ErrUnknownSource):
		err = echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, query.ErrUnknownField), errors.Is(err, errBadRequest):
		err = echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		err = echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("request %s failed: %v", c.Request().URL, err)
	}
	s.echo.DefaultHTTPErrorHandler(err, c)
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// resolveSource picks the query's source, or the only user source.
func (s *Server) resolveSource(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	names := s.manager.UserSourceNames()
	if len(names) == 1 {
		return names[0], nil
	}
	return "", badRequest("source parameter is required")
}

// withEngine loads the source, runs apply on its engine and, once the
// engine's passes have finished, runs read. Both run on the loop; either
// may be nil.
func (s *Server) withEngine(ctx context.Context, source string, apply, read func(e *pivot.Engine) error) error {
	ds, err := s.manager.LoadData(ctx, source)
	if err != nil {
		return err
	}
	var st *session
	if err := s.loop.Do(ctx, func() { st = s.session(source, ds) }); err != nil {
		return err
	}
	select {
	case st.lock <- struct{}{}:
		defer func() { <-st.lock }()
	case <-ctx.Done():
		return ctx.Err()
	}

	e := st.engine
	if apply != nil {
		var applyErr error
		if err := s.loop.Do(ctx, func() { applyErr = apply(e) }); err != nil {
			return err
		}
		if applyErr != nil {
			return applyErr
		}
	}
	for {
		var settled chan struct{}
		var readErr error
		err := s.loop.Do(ctx, func() {
			if !e.Settled() {
				settled = make(chan struct{})
				var unsubscribe func()
				unsubscribe = e.UpdatedView.Subscribe(func(struct{}) {
					unsubscribe()
					close(settled)
				})
				return
			}
			if read != nil {
				readErr = read(e)
			}
		})
		if err != nil {
			return err
		}
		if settled == nil {
			return readErr
		}
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session returns the source's session, replacing it when the dataset was
// reloaded. It runs on the loop.
func (s *Server) session(source string, ds *datasources.Dataset) *session {
	st, ok := s.engines[source]
	if !ok || st.dataset != ds {
		st = &session{engine: s.newEngine(source, ds), dataset: ds, lock: make(chan struct{}, 1)}
		s.engines[source] = st
	}
	return st
}

func (s *Server) newEngine(source string, ds *datasources.Dataset) *pivot.Engine {
	cfg := pivot.DefaultConfig()
	if s.opts.Engine.BatchSize > 0 {
		cfg.BatchSize = s.opts.Engine.BatchSize
	}
	if s.opts.Engine.BatchDelay > 0 {
		cfg.BatchDelay = s.opts.Engine.BatchDelay
	}
	if s.opts.Engine.InvalidateDelay > 0 {
		cfg.InvalidateDelay = s.opts.Engine.InvalidateDelay
	}
	cfg.Culture = s.opts.Culture
	cfg.Scheduler = s.loop
	cfg.AutoGenerateFields = false

	e := pivot.NewEngine(cfg)
	datasources.ApplyColumns(e, ds)
	e.SetItemsSource(ds)
	if s.opts.InitialView != nil {
		if err := e.SetViewDefinition(*s.opts.InitialView); err != nil {
			log.Printf("source %q: initial view not applied: %v", source, err)
		}
	}
	return e
}

// prepare applies the request's query to e, or describes e's current
// layout when the request names no fields.
func prepare(e *pivot.Engine, q *query.Query, source string) (*query.Query, error) {
	if len(q.Rows)+len(q.Columns)+len(q.Values)+len(q.Filters) == 0 {
		cur := query.FromEngine(e, q.Path)
		cur.Source = source
		if len(q.Sort) > 0 {
			cur.Sort = q.Sort
		}
		q = cur
	} else if err := q.ApplyTo(e); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if err := q.ApplySort(e); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return q, nil
}

// pivotModel runs the request's query and builds the view model.
func (s *Server) pivotModel(c echo.Context, path string) (views.TableViewModel, error) {
	q := query.NewQuery(c.Request().URL)
	q.Path = path
	source, err := s.resolveSource(q.Source)
	if err != nil {
		return views.TableViewModel{}, err
	}
	q.Source = source

	var vm views.TableViewModel
	var applied *query.Query
	err = s.withEngine(c.Request().Context(), source, func(e *pivot.Engine) error {
		var err error
		applied, err = prepare(e, q, source)
		return err
	}, func(e *pivot.Engine) error {
		vm = views.BuildViewModel(e, s.opts.Title+" - "+source, applied)
		return nil
	})
	return vm, err
}

func (s *Server) handleLanding(c echo.Context) error {
	vm := views.LandingViewModel{Title: s.opts.Title}
	for _, name := range s.manager.GetSourceNames() {
		src := s.manager.GetSource(name)
		q := &query.Query{Path: "/pivot", Source: name}
		vm.Sources = append(vm.Sources, views.SourceInfo{
			Name:        name,
			Description: src.Description,
			URL:         q.ToSafeURL(),
		})
	}
	return s.renderHTML(c, func(w io.Writer) error { return s.renderer.RenderLanding(w, vm) })
}

func (s *Server) handlePivotHTML(c echo.Context) error {
	vm, err := s.pivotModel(c, "/pivot")
	if err != nil {
		return err
	}
	return s.renderHTML(c, func(w io.Writer) error { return s.renderer.Render(w, vm) })
}

func (s *Server) renderHTML(c echo.Context, render func(io.Writer) error) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	if err := render(c.Response()); err != nil {
		log.Printf("Template rendering error: %v", err)
		return err
	}
	return nil
}

func (s *Server) handlePivotJSON(c echo.Context) error {
	vm, err := s.pivotModel(c, "/pivot")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, vm)
}

func (s *Server) handlePivotText(c echo.Context) error {
	vm, err := s.pivotModel(c, "/pivot")
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return rendering.RenderTerminal(c.Response(), vm)
}

// SourceStatus is one entry of /api/sources.
type SourceStatus struct {
	Name        string `json:"name"`
	SourceType  string `json:"sourceType"`
	Description string `json:"description,omitempty"`
	Loaded      bool   `json:"loaded"`
	URL         string `json:"url"`
}

func (s *Server) handleSources(c echo.Context) error {
	var out []SourceStatus
	for _, name := range s.manager.GetSourceNames() {
		src := s.manager.GetSource(name)
		q := &query.Query{Path: "/pivot", Source: name}
		out = append(out, SourceStatus{
			Name:        name,
			SourceType:  src.SourceType,
			Description: src.Description,
			Loaded:      s.manager.IsLoaded(name),
			URL:         q.ToURL(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleReload(c echo.Context) error {
	name := c.Param("name")
	if s.manager.GetSource(name) == nil {
		return fmt.Errorf("%w: %q", datasources.ErrUnknownSource, name)
	}
	s.manager.InvalidateCache(name)
	// The next request rebuilds the engine once it sees the new dataset.
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleFields(c echo.Context) error {
	source, err := s.resolveSource(c.QueryParam("source"))
	if err != nil {
		return err
	}
	var out []views.FieldInfo
	err = s.withEngine(c.Request().Context(), source, nil, func(e *pivot.Engine) error {
		q := query.FromEngine(e, "/pivot")
		q.Source = source
		out = views.BuildViewModel(e, "", q).Fields
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetView(c echo.Context) error {
	source, err := s.resolveSource(c.QueryParam("source"))
	if err != nil {
		return err
	}
	var def pivot.ViewDefinition
	err = s.withEngine(c.Request().Context(), source, nil, func(e *pivot.Engine) error {
		def = e.ViewDefinition()
		return nil
	})
	if err != nil {
		return err
	}
	if c.QueryParam("format") == "text" {
		data, err := pivot.MarshalViewDefinitionText(def)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, data)
	}
	return c.JSON(http.StatusOK, def)
}

// handlePutView replaces a source's view definition. The body is JSON, or
// text format when the content type is text/plain.
func (s *Server) handlePutView(c echo.Context) error {
	source, err := s.resolveSource(c.QueryParam("source"))
	if err != nil {
		return err
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	parse := pivot.ParseViewDefinition
	if ct := c.Request().Header.Get(echo.HeaderContentType); ct == echo.MIMETextPlain || ct == echo.MIMETextPlainCharsetUTF8 {
		parse = pivot.ParseViewDefinitionText
	}
	def, err := parse(body)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	err = s.withEngine(c.Request().Context(), source, func(e *pivot.Engine) error {
		if err := e.SetViewDefinition(def); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return nil
	}, nil)
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DetailResponse lists the records behind one cell.
type DetailResponse struct {
	Row     []string `json:"row"`
	Column  string   `json:"column,omitempty"`
	Count   int      `json:"count"`
	Records []any    `json:"records"`
}

// handleDetail returns the records behind the cell at row index "row" and
// column index "col" of the view the request's query selects. Without
// "col" every record of the row is returned.
func (s *Server) handleDetail(c echo.Context) error {
	q := query.NewQuery(c.Request().URL)
	source, err := s.resolveSource(q.Source)
	if err != nil {
		return err
	}
	q.Source = source
	rowIndex, err := strconv.Atoi(c.QueryParam("row"))
	if err != nil {
		return badRequest("row must be an integer")
	}
	colIndex := -1
	if v := c.QueryParam("col"); v != "" {
		if colIndex, err = strconv.Atoi(v); err != nil {
			return badRequest("col must be an integer")
		}
	}

	var resp DetailResponse
	err = s.withEngine(c.Request().Context(), source, func(e *pivot.Engine) error {
		_, err := prepare(e, q, source)
		return err
	}, func(e *pivot.Engine) error {
		view := e.View()
		if rowIndex < 0 || rowIndex >= view.Len() {
			return badRequest("row %d out of range", rowIndex)
		}
		row := view.Item(rowIndex)
		if colIndex >= len(e.ColumnKeys()) {
			return badRequest("col %d out of range", colIndex)
		}
		if colIndex >= 0 {
			resp.Column = e.ColumnKeys()[colIndex].ID()
		}
		resp.Row = row.Key().FormattedValues()
		resp.Records = e.Detail(row, resp.Column)
		resp.Count = len(resp.Records)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// goccySerializer encodes echo JSON responses with goccy/go-json.
type goccySerializer struct{}

func (goccySerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (goccySerializer) Deserialize(c echo.Context, i any) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("syntax error at offset %d: %v", se.Offset, se.Error()))
	}
	return err
}
