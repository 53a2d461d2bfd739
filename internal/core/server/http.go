package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/segmenter/internal/core/api"
	"github.com/solatis/segmenter/internal/core/config"
	"github.com/solatis/segmenter/internal/core/observability"
	"github.com/solatis/segmenter/internal/rules"
	"github.com/solatis/segmenter/internal/types"
)

var registerValidators sync.Once

// validCombinator accepts AND/OR in any letter case.
func validCombinator(fl validator.FieldLevel) bool {
	_, err := rules.ParseCombinator(fl.Field().String())
	return err == nil
}

// HTTPServer is the JSON gateway over the segment service.
type HTTPServer struct {
	engine  *gin.Engine
	server  *http.Server
	service SegmentAPIServer
	config  config.ServerConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHTTPServer builds the gin router. metrics may be nil, in which case
// /metrics is not served.
func NewHTTPServer(cfg config.ServerConfig, service SegmentAPIServer, logger *slog.Logger, metrics *observability.Metrics) (*HTTPServer, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var regErr error
	registerValidators.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			regErr = v.RegisterValidation("combinator", validCombinator)
		}
	})
	if regErr != nil {
		return nil, fmt.Errorf("register validators: %w", regErr)
	}

	s := &HTTPServer{
		engine:  gin.New(),
		service: service,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
	s.engine.Use(gin.Recovery(), s.observe())
	s.routes()
	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.HTTPPort)),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler { return s.engine }

func (s *HTTPServer) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.engine.Group("/v1")
	v1.GET("/fields", s.fields)
	v1.POST("/segments/calculate", s.computeAudience)
	v1.POST("/segments/describe", s.describe)
	v1.POST("/segments", s.createSegment)
	v1.GET("/segments", s.listSegments)
	v1.GET("/segments/:id", s.getSegment)
	v1.DELETE("/segments/:id", s.deleteSegment)
	v1.POST("/segments/:id/edits", s.editSegment)
	v1.POST("/segments/:id/recalculate", s.recalculate)
	v1.POST("/ai/generate-segment", s.generate)
}

// Start listens on the configured HTTP port until Shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}
	s.logger.Info("http listening", "addr", listener.Addr().String())
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// observe logs each request, records its latency and applies the request
// timeout to the handler context.
func (s *HTTPServer) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		if d := s.config.RequestTimeout; d > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), d)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		code := c.Writer.Status()
		s.metrics.ObserveRequest("http", c.Request.Method+" "+route, fmt.Sprint(code), elapsed)
		s.logger.Debug("http request", "method", c.Request.Method, "route", route, "status", code, "elapsed", elapsed)
	}
}

// httpStatus maps gRPC status codes to HTTP.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return http.StatusRequestTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	st := status.Convert(err)
	c.AbortWithStatusJSON(httpStatus(st.Code()), gin.H{"error": st.Message(), "code": st.Code().String()})
}

func (s *HTTPServer) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codes.InvalidArgument.String()})
}

// respond writes resp or maps err.
func respond[T any](s *HTTPServer, c *gin.Context, code int, resp *T, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(code, resp)
}

func quoteETag(etag string) string { return `"` + etag + `"` }

func unquoteETag(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "W/"))
	return strings.Trim(h, `"`)
}

func (s *HTTPServer) fields(c *gin.Context) {
	resp, err := s.service.Fields(c.Request.Context(), &api.FieldsRequest{})
	respond(s, c, http.StatusOK, resp, err)
}

func (s *HTTPServer) computeAudience(c *gin.Context) {
	var req api.ComputeAudienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	resp, err := s.service.ComputeAudience(c.Request.Context(), &req)
	respond(s, c, http.StatusOK, resp, err)
}

func (s *HTTPServer) describe(c *gin.Context) {
	var req api.DescribeSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	resp, err := s.service.DescribeSegment(c.Request.Context(), &req)
	respond(s, c, http.StatusOK, resp, err)
}

func (s *HTTPServer) createSegment(c *gin.Context) {
	var req api.CreateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	resp, err := s.service.CreateSegment(c.Request.Context(), &req)
	if err == nil {
		c.Header("ETag", quoteETag(resp.Segment.ETag))
		c.Header("Location", "/v1/segments/"+string(resp.Segment.ID))
	}
	respond(s, c, http.StatusCreated, resp, err)
}

func (s *HTTPServer) listSegments(c *gin.Context) {
	var req api.ListSegmentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	resp, err := s.service.ListSegments(c.Request.Context(), &req)
	respond(s, c, http.StatusOK, resp, err)
}

func (s *HTTPServer) getSegment(c *gin.Context) {
	resp, err := s.service.GetSegment(c.Request.Context(), &api.GetSegmentRequest{ID: types.SegmentID(c.Param("id"))})
	if err == nil {
		etag := quoteETag(resp.Segment.ETag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
	}
	respond(s, c, http.StatusOK, resp, err)
}

func (s *HTTPServer) deleteSegment(c *gin.Context) {
	_, err := s.service.DeleteSegment(c.Request.Context(), &api.DeleteSegmentRequest{ID: types.SegmentID(c.Param("id"))})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) editSegment(c *gin.Context) {
	var req api.EditSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	req.ID = types.SegmentID(c.Param("id"))
	if req.IfMatch == "" {
		req.IfMatch = unquoteETag(c.GetHeader("If-Match"))
	}
	resp, err := s.service.EditSegment(c.Request.Context(), &req)
	if err == nil {
		c.Header("ETag", quoteETag(resp.Segment.ETag))
	}
	respond(s, c, http.StatusOK, resp, err)
}

func (s *HTTPServer) recalculate(c *gin.Context) {
	resp, err := s.service.RecalculateSegment(c.Request.Context(), &api.RecalculateSegmentRequest{ID: types.SegmentID(c.Param("id"))})
	respond(s, c, http.StatusOK, resp, err)
}

func (s *HTTPServer) generate(c *gin.Context) {
	var req api.GenerateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	resp, err := s.service.GenerateSegment(c.Request.Context(), &req)
	respond(s, c, http.StatusOK, resp, err)
}
