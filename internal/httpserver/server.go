// Package httpserver serves the latest aggregate state over HTTP while
// the watch loop runs.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
	"github.com/tinytelemetry/procmetrics/internal/model"
	"github.com/tinytelemetry/procmetrics/internal/report"
)

// Server provides read-only HTTP access to the processing metrics.
type Server struct {
	addr      string
	state     *StateHolder
	gatherer  prometheus.Gatherer
	seeAlso   string
	engine    *gin.Engine
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithSeeAlso sets the pointer line of the text report. Empty hides it.
func WithSeeAlso(path string) Option {
	return func(s *Server) { s.seeAlso = path }
}

// NewServer creates a new HTTP server. A nil gatherer disables /metrics.
func NewServer(addr string, state *StateHolder, gatherer prometheus.Gatherer, opts ...Option) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		state:     state,
		gatherer:  gatherer,
		seeAlso:   model.DefaultSeeAlso,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/processing_metrics.json", s.handleJSON)
	r.GET("/processing_metrics.txt", s.handleText)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.engine,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the listen address; after Start it is the bound address.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) loaded(c *gin.Context) (*aggregate.State, time.Time, bool) {
	st, savedAt := s.state.Snapshot()
	if st == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no state loaded yet"})
		return nil, time.Time{}, false
	}
	return st, savedAt, true
}

func (s *Server) handleHealth(c *gin.Context) {
	st, savedAt := s.state.Snapshot()
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if st != nil {
		body["date_logged"] = st.LastLogged
		body["nodes"] = len(st.Nodes())
		body["saved_at"] = savedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleJSON(c *gin.Context) {
	st, _, ok := s.loaded(c)
	if !ok {
		return
	}
	data, err := aggregate.Encode(st)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode state"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) handleText(c *gin.Context) {
	st, _, ok := s.loaded(c)
	if !ok {
		return
	}
	c.String(http.StatusOK, report.Text(st, report.Options{SeeAlso: s.seeAlso}))
}
