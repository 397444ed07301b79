// Package server exposes the tool surface over HTTP.
//
//	GET  /healthz       liveness
//	GET  /tools         tool catalog
//	POST /tools/{name}  call a tool with a JSON object of arguments
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/koustreak/sqlgate/internal/tools"
)

const (
	maxBodyBytes           = 1 << 20
	defaultShutdownTimeout = 10 * time.Second
)

// Tools is the tool surface served over HTTP.
type Tools interface {
	Catalog() []tools.Tool
	Call(ctx context.Context, name string, args map[string]any) (*tools.Response, error)
}

// Options configure a Server.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	Logger          *logger.Logger
}

// Server is the HTTP transport.
type Server struct {
	tools Tools
	log   *logger.Logger
	opts  Options
	http  *http.Server
}

// New builds a Server; call Run to start it.
func New(t Tools, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	s := &Server{tools: t, log: opts.Logger.With(map[string]any{"component": "http"}), opts: opts}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.log.Zerolog()))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/tools", func(r chi.Router) {
		r.Get("/", s.catalog)
		r.Post("/{name}", s.call)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	s.log.InfoWith("http server listening", map[string]any{"addr": s.opts.Addr})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	s.log.Info("http server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.Catalog()})
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) call(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args := map[string]any{}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, r, errs.Wrap(errs.ErrKindInvalidInput, "read request body", err))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			s.fail(w, r, errs.Wrap(errs.ErrKindInvalidInput, "arguments must be a JSON object", err))
			return
		}
	}

	resp, err := s.tools.Call(r.Context(), name, args)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": resp})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := StatusFor(kind)

	// Policy rejections are expected outcomes, not faults.
	rejected := errs.IsPolicyRejection(err)
	level := zerolog.WarnLevel
	switch {
	case rejected:
		level = zerolog.InfoLevel
	case status >= http.StatusInternalServerError:
		level = zerolog.ErrorLevel
	}
	hlog.FromRequest(r).WithLevel(level).Err(err).
		Str("kind", kind.String()).
		Bool("policy_rejection", rejected).
		Msg("tool call failed")

	writeJSON(w, status, map[string]any{"error": errorBody{Kind: kind.String(), Message: err.Error()}})
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindInvalidInput, errs.ErrKindConfirmationRequired:
		return http.StatusBadRequest
	case errs.ErrKindOperationNotAllowed, errs.ErrKindDestructiveOperationBlocked,
		errs.ErrKindMaintenanceDisabled, errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindNotFound, errs.ErrKindUnknownDatabase, errs.ErrKindTableNotFound:
		return http.StatusNotFound
	case errs.ErrKindUnsupportedOperation:
		return http.StatusUnprocessableEntity
	case errs.ErrKindNotInitialized, errs.ErrKindConnectionFailed, errs.ErrKindPoolCreationFailed:
		return http.StatusServiceUnavailable
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
