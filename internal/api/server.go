// Package api serves persisted deals over HTTP as read-only JSON.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/grocery-etl/internal/export"
	"github.com/sells-group/grocery-etl/internal/identity"
	"github.com/sells-group/grocery-etl/internal/model"
)

// Reader is the read side of the deal store.
type Reader interface {
	GetDeal(ctx context.Context, id int64) (*model.Deal, error)
	GetDealByUUID(ctx context.Context, uuid string) (*model.Deal, error)
	ListDeals(ctx context.Context, f model.DealFilter) ([]model.Deal, error)
	SearchDeals(ctx context.Context, term string, limit int) ([]model.Deal, error)
	Stats(ctx context.Context) (*model.Stats, error)
	ListStores(ctx context.Context) ([]model.Store, error)
	Ping(ctx context.Context) error
}

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins []string
}

// Server routes read requests to a Reader.
type Server struct {
	store  Reader
	router chi.Router
}

// New builds the router.
func New(st Reader, opts Options) *Server {
	s := &Server{store: st}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/stats", s.stats)
	r.Get("/stores", s.listStores)
	r.Route("/deals", func(r chi.Router) {
		r.Get("/", s.listDeals)
		r.Get("/search", s.searchDeals)
		r.Get("/export.xlsx", s.exportDeals)
		r.Get("/{ref}", s.getDeal)
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.store.ListStores(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if stores == nil {
		stores = []model.Store{}
	}
	writeJSON(w, http.StatusOK, stores)
}

// dealList is the envelope for deal collections.
type dealList struct {
	Deals []model.Deal `json:"deals"`
	Count int          `json:"count"`
}

func newDealList(deals []model.Deal) dealList {
	if deals == nil {
		deals = []model.Deal{}
	}
	return dealList{Deals: deals, Count: len(deals)}
}

func (s *Server) listDeals(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deals, err := s.store.ListDeals(r.Context(), f)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDealList(deals))
}

func (s *Server) searchDeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := strings.TrimSpace(q.Get("q"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	deals, err := s.store.SearchDeals(r.Context(), term, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDealList(deals))
}

// getDeal resolves {ref} as a uuid, or else a numeric id.
func (s *Server) getDeal(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	var (
		d   *model.Deal
		err error
	)
	switch {
	case identity.Valid(ref):
		d, err = s.store.GetDealByUUID(r.Context(), ref)
	default:
		id, perr := strconv.ParseInt(ref, 10, 64)
		if perr != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "deal reference must be a uuid or a positive id")
			return
		}
		d, err = s.store.GetDeal(r.Context(), id)
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "deal not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) exportDeals(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deals, err := s.store.ListDeals(r.Context(), f)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="deals.xlsx"`)
	if err := export.Write(w, deals, nil); err != nil {
		zap.L().Error("api: export failed", zap.Error(err))
	}
}
