// Package httpserver serves the subset of the Elasticsearch REST API that
// the pipeline tools use, backed by the local sink store.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

const (
	defaultAddr = "127.0.0.1:9200"

	// CompatVersion is the Elasticsearch version reported by GET /.
	CompatVersion = "8.17.0"
)

// Server provides the Elasticsearch-compatible HTTP API of the local sink.
type Server struct {
	addr      string
	store     model.DataStreamStore
	name      string
	listener  net.Listener
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	now       func() time.Time
}

// NewServer creates a new HTTP API server. Default addr is "127.0.0.1:9200".
func NewServer(addr string, store model.DataStreamStore) *Server {
	if addr == "" {
		addr = defaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		store:     store,
		name:      "pipecheck-sink",
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Handler builds the router. Start serves it; tests drive it directly.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), productHeader)

	r.GET("/", s.handleInfo)
	r.HEAD("/", s.handleInfo)
	r.GET("/api/health", s.handleHealth)

	r.GET("/_data_stream/:name", s.handleGetDataStream)
	r.PUT("/_data_stream/:name", s.handleCreateDataStream)
	r.DELETE("/_data_stream/:name", s.handleDeleteDataStream)

	r.GET("/_index_template/:name", s.handleGetTemplate)
	r.PUT("/_index_template/:name", s.handlePutTemplate)
	r.POST("/_index_template/:name", s.handlePutTemplate)
	r.DELETE("/_index_template/:name", s.handleDeleteTemplate)

	r.GET("/:index/_count", s.handleCount)
	r.POST("/:index/_count", s.handleCount)

	r.NoRoute(func(c *gin.Context) {
		esError(c, http.StatusBadRequest, "illegal_argument_exception",
			"unsupported request ["+c.Request.Method+" "+c.Request.URL.Path+"]", "")
	})
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

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

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// productHeader marks every response the way the official clients expect.
func productHeader(c *gin.Context) {
	c.Header("X-Elastic-Product", "Elasticsearch")
	c.Next()
}

func (s *Server) handleInfo(c *gin.Context) {
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":         s.name,
		"cluster_name": "pipecheck",
		"version": gin.H{
			"number":       CompatVersion,
			"build_flavor": "default",
		},
		"tagline": "You Know, for Search",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	docCount, err := s.store.CountDocuments("_all", model.CountQuery{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}
	streams, err := s.store.DataStreams("*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"uptime":       time.Since(s.startTime).String(),
		"doc_count":    docCount,
		"data_streams": len(streams),
	})
}

// esError writes an error body shaped like Elasticsearch's.
func esError(c *gin.Context, status int, typ, reason, index string) {
	cause := gin.H{"type": typ, "reason": reason}
	if index != "" {
		cause["index"] = index
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"root_cause": []gin.H{cause},
			"type":       typ,
			"reason":     reason,
			"index":      index,
		},
		"status": status,
	})
}

func notFound(c *gin.Context, index string) {
	esError(c, http.StatusNotFound, "index_not_found_exception", "no such index ["+index+"]", index)
}

func internalError(c *gin.Context, err error) {
	esError(c, http.StatusInternalServerError, "exception", err.Error(), "")
}
