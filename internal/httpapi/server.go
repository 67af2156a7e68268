package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/canteen/internal/canteen/service"
	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
)

// DirectoryRefresher reloads the lookup cache on demand.
type DirectoryRefresher interface {
	Refresh(ctx context.Context) error
	LoadedAt() time.Time
}

type Dependencies struct {
	Logger     *zap.Logger
	Addr       string
	Admissions *service.AdmissionService
	Queries    *service.QueryService
	Directory  DirectoryRefresher // optional
	Metrics    http.Handler       // optional, served at /metrics
	Ready      func(ctx context.Context) error

	// RetryAfter is advertised on db_busy responses. Defaults to 1s.
	RetryAfter time.Duration
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     chi.Router
	admissions *service.AdmissionService
	queries    *service.QueryService
	directory  DirectoryRefresher
	ready      func(ctx context.Context) error
	retryAfter string
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.RetryAfter <= 0 {
		d.RetryAfter = time.Second
	}
	secs := int(d.RetryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}

	s := &Server{
		logger:     d.Logger.Named("http"),
		router:     chi.NewRouter(),
		admissions: d.Admissions,
		queries:    d.Queries,
		directory:  d.Directory,
		ready:      d.Ready,
		retryAfter: strconv.Itoa(secs),
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Post("/v1/admissions", s.handleAdmission)
	r.Get("/v1/tenants/{tenantID}/quota-state", s.handleQuotaState)
	r.Get("/v1/tenants/{tenantID}/occupancy/{day}", s.handleDailyCount)
	r.Get("/v1/cards/{card}/events/{day}", s.handleHasEvent)
	r.Get("/v1/occupancy", s.handleOccupancy)
	r.Post("/v1/directory/refresh", s.handleDirectoryRefresh)
	r.Get("/healthz", s.handleHealth)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAdmission(w http.ResponseWriter, r *http.Request) {
	asProto := isProtobuf(r)

	var req types.AdmissionRequest
	if asProto {
		st, err := readStruct(r)
		if err != nil {
			writeErrorAs(w, true, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		if req, err = admissionRequestFromStruct(st); err != nil {
			writeErrorAs(w, true, http.StatusBadRequest, "bad_proto", err.Error())
			return
		}
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.admissions.Admit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBusy):
			w.Header().Set("Retry-After", s.retryAfter)
			writeAdmission(w, asProto, http.StatusConflict, resp)
		case service.IsInvalidInput(err):
			writeErrorAs(w, asProto, http.StatusBadRequest, inputErrorCode(err), err.Error())
		case errors.Is(err, context.Canceled):
			s.logger.Debug("admission cancelled by client", zap.String("request_id", middleware.GetReqID(r.Context())))
		default:
			s.logger.Error("admission error", zap.Error(err), zap.String("request_id", middleware.GetReqID(r.Context())))
			writeErrorAs(w, asProto, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	status := http.StatusOK
	if resp.Accepted() {
		status = http.StatusCreated
	}
	writeAdmission(w, asProto, status, resp)
}

func (s *Server) handleQuotaState(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	st, err := s.queries.QuotaState(r.Context(), tenantID, r.URL.Query().Get("day"))
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDailyCount(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	n, err := s.queries.DailyCount(r.Context(), tenantID, chi.URLParam(r, "day"))
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleHasEvent(w http.ResponseWriter, r *http.Request) {
	dc, err := s.queries.HasEvent(r.Context(), chi.URLParam(r, "card"), chi.URLParam(r, "day"))
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dc)
}

func (s *Server) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	ov, err := s.queries.Occupancy(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleDirectoryRefresh(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeError(w, http.StatusNotImplemented, "no_directory_cache", "directory cache is not enabled")
		return
	}
	if err := s.directory.Refresh(r.Context()); err != nil {
		s.logger.Error("directory refresh error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "directory refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"loaded_at": s.directory.LoadedAt().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "unavailable", "storage not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownTenant):
		writeError(w, http.StatusNotFound, "unknown_tenant", err.Error())
	case service.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, inputErrorCode(err), err.Error())
	default:
		s.logger.Error("query error", zap.Error(err), zap.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func tenantParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_tenant", "tenant id must be a positive integer")
		return 0, false
	}
	return id, true
}

func inputErrorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidCardNumber):
		return "invalid_card_number"
	case errors.Is(err, service.ErrInvalidTenant):
		return "invalid_tenant"
	case errors.Is(err, service.ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, service.ErrInvalidDay):
		return "invalid_day"
	default:
		return "invalid_request"
	}
}
