// Package server provides the HTTP boundary of the converter: an upload
// endpoint returning the CoreTax workbook and a health check.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ginjaninja78/erp-coretax-converter/internal/config"
	"github.com/ginjaninja78/erp-coretax-converter/internal/converter"
	"github.com/ginjaninja78/erp-coretax-converter/internal/logging"
	"github.com/ginjaninja78/erp-coretax-converter/internal/tabular"
)

// ServiceName is reported by the health check.
const ServiceName = "ERP to Core Tax Converter"

// XLSXContentType is the media type of the returned workbook.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Server is the HTTP server for the converter.
type Server struct {
	converter *converter.Converter
	cfg       config.ServerConfig
	router    *chi.Mux

	// server is built once in NewServer and never reassigned.
	server *http.Server

	// now names the downloaded file.
	now func() time.Time
}

// NewServer creates a new Server instance.
func NewServer(cfg config.ServerConfig, conv *converter.Converter) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 32
	}

	s := &Server{
		converter: conv,
		cfg:       cfg,
		router:    chi.NewRouter(),
		now:       time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Leaves room for the handler timeout to answer first.
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/convert/", s.handleConvert)
	s.router.Post("/convert", s.handleConvert)
}

// Router exposes the handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start listens on addr and serves HTTP requests. It returns
// http.ErrServerClosed after Shutdown, including a Shutdown that happened
// before Start.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("server starting", "addr", ln.Addr().String())
	return s.server.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": s.now().Format(time.RFC3339),
	})
}

// handleConvert converts the uploaded "file" field and streams the workbook
// back. An optional "sheet" field selects the worksheet of .xlsx uploads.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	logger := logging.WithFields(r.Context(), "file", header.Filename)

	if !tabular.IsSupported(header.Filename) {
		writeError(w, http.StatusBadRequest, "please upload an Excel (.xlsx) or CSV (.csv) file")
		return
	}

	table, err := tabular.LoadReader(file, header.Filename, r.FormValue("sheet"))
	if err != nil {
		logger.Warn("failed to read upload", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read table: %v", err))
		return
	}
	logger.Info("loaded records", "rows", len(table.Rows))

	conv, err := s.converter.ConvertWithLogger(table, logger)
	if errors.Is(err, converter.ErrNoRecords) {
		writeError(w, http.StatusBadRequest, "no valid data found in the uploaded file")
		return
	}
	if err != nil {
		logger.Error("conversion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "error processing file")
		return
	}
	defer conv.Workbook.Close()

	data, err := conv.Workbook.Bytes()
	if err != nil {
		logger.Error("failed to serialize workbook", "error", err)
		writeError(w, http.StatusInternalServerError, "error processing file")
		return
	}

	filename := fmt.Sprintf("CoreTax_Import_%s.xlsx", s.now().Format("20060102_150405"))

	w.Header().Set("Content-Type", XLSXContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Rows-Total", strconv.Itoa(len(conv.Results)))
	w.Header().Set("X-Rows-Recovered", strconv.Itoa(conv.Recovered()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Warn("failed to write response", "error", err)
		return
	}

	logger.Info("conversion complete", "rows", len(conv.Results), "recovered", conv.Recovered())
}

// =============================================================================
// HELPERS
// =============================================================================

// requestLogger logs one entry per request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			logging.FromContext(r.Context()).Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
