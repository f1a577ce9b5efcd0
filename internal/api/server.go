// Package api serves the dashboard read API over the record store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"garantias/internal/aggregate"
	"garantias/internal/dataset"
	"garantias/internal/metrics"
	"garantias/internal/model"
	"garantias/internal/report"
	"garantias/internal/store"
)

const (
	healthMessage   = "API de Análise de Garantias funcionando!"
	internalError   = "Erro interno do servidor"
	noReportMessage = "Nenhum relatório de reconciliação disponível"
)

type Server struct {
	store   store.Store
	reports report.Reader
	metrics *metrics.Registry
	log     *zap.Logger
	now     func() time.Time
	mux     *http.ServeMux
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Registry) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithReports enables GET /api/reconciliacao.
func WithReports(r report.Reader) Option {
	return func(s *Server) { s.reports = r }
}

// WithClock overrides the time used for the orders-over-time window.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:   st,
		metrics: metrics.NewRegistry(),
		log:     zap.NewNop(),
		now:     time.Now,
		mux:     http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("GET /{$}", s.handleRoot)
	s.handle("GET /healthz", s.handleHealthz)
	s.handle("GET /api/dashboard/stats", s.handleStats)
	s.handle("GET /api/dashboard/charts", s.handleCharts)
	s.handle("GET /api/ordens", s.handleOrders)
	s.handle("GET /api/mecanicos", s.handleDistinct(dataset.ColMechanic))
	s.handle("GET /api/defeitos", s.handleDistinct(dataset.ColDefectGroup))
	s.handle("GET /api/reconciliacao", s.handleReport)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.metrics.APIRequests.WithLabelValues(pattern).Inc()
		h(w, r)
	})
}

func (s *Server) Handler() http.Handler { return s.mux }

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("api listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "message": healthMessage})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	year, month, filtered, err := monthParams(r, "ano", "mes")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	orders, err := dataset.Load(r.Context(), s.store)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, internalError, err)
		return
	}
	if filtered {
		orders = aggregate.FilterMonth(orders, year, month)
	}
	writeJSON(w, http.StatusOK, statsDTO(aggregate.ComputeStats(orders)))
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	orders, err := dataset.Load(r.Context(), s.store)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, internalError, err)
		return
	}
	writeJSON(w, http.StatusOK, chartsDTO(aggregate.ComputeCharts(orders, s.now())))
}

// orderFilterParams are the /api/ordens query parameters matched by equality
// against stored columns.
var orderFilterParams = []string{dataset.ColStatus, dataset.ColDefectGroup, dataset.ColMechanic}

// handleOrders lists orders in stored order. status, defeito_grupo and
// mecanico_responsavel filter by equality, ano_servico/mes_servico by order
// month. page/limit select one page; the unpaged total goes in X-Total-Count.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters []store.Filter
	for _, name := range orderFilterParams {
		if v := q.Get(name); v != "" {
			filters = append(filters, store.Filter{Column: name, Value: v})
		}
	}
	year, month, byMonth, err := monthParams(r, "ano_servico", "mes_servico")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	pg, err := pageParams(r)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	orders, err := dataset.Load(r.Context(), s.store, filters...)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, internalError, err)
		return
	}
	if byMonth {
		orders = aggregate.FilterMonth(orders, year, month)
	}

	total := len(orders)
	if pg.limit > 0 {
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
		w.Header().Set("X-Total-Pages", strconv.Itoa((total+pg.limit-1)/pg.limit))
		orders = pg.slice(orders)
	}
	out := make([]orderJSON, len(orders))
	for i, o := range orders {
		out[i] = orderDTO(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDistinct(column string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vals, err := dataset.Distinct(r.Context(), s.store, column)
		if err != nil {
			s.fail(w, r, http.StatusInternalServerError, internalError, err)
			return
		}
		writeJSON(w, http.StatusOK, vals)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.fail(w, r, http.StatusNotFound, noReportMessage, nil)
		return
	}
	rep, err := s.reports.ReadLatest(r.Context())
	if errors.Is(err, report.ErrNoReport) {
		s.fail(w, r, http.StatusNotFound, noReportMessage, nil)
		return
	}
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, internalError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// fail writes an error body. The cause, when present, is logged but never
// sent to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string, cause error) {
	s.metrics.APIErrors.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
	if cause != nil {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Bool("backend", errors.Is(cause, store.ErrBackend)),
			zap.Error(cause))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// monthParams reads an optional year/month pair. Both or neither must be set.
func monthParams(r *http.Request, yearKey, monthKey string) (int, time.Month, bool, error) {
	q := r.URL.Query()
	ano, mes := q.Get(yearKey), q.Get(monthKey)
	if ano == "" && mes == "" {
		return 0, 0, false, nil
	}
	if ano == "" || mes == "" {
		return 0, 0, false, fmt.Errorf("parâmetros %s e %s devem ser informados juntos", yearKey, monthKey)
	}
	year, err := strconv.Atoi(ano)
	if err != nil || year < 1 {
		return 0, 0, false, fmt.Errorf("parâmetro %s inválido", yearKey)
	}
	month, err := strconv.Atoi(mes)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false, fmt.Errorf("parâmetro %s inválido", monthKey)
	}
	return year, time.Month(month), true, nil
}

const defaultPageLimit = 10

type page struct {
	number, limit int
}

// pageParams reads page and limit. Without either the listing is unpaged
// (limit 0); page alone uses a limit of 10.
func pageParams(r *http.Request) (page, error) {
	q := r.URL.Query()
	rawPage, rawLimit := q.Get("page"), q.Get("limit")
	if rawPage == "" && rawLimit == "" {
		return page{}, nil
	}
	p := page{number: 1, limit: defaultPageLimit}
	if rawPage != "" {
		n, err := strconv.Atoi(rawPage)
		if err != nil || n < 1 {
			return page{}, errors.New("parâmetro page inválido")
		}
		p.number = n
	}
	if rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n < 1 {
			return page{}, errors.New("parâmetro limit inválido")
		}
		p.limit = n
	}
	return p, nil
}

func (p page) slice(orders []model.ServiceOrder) []model.ServiceOrder {
	start := (p.number - 1) * p.limit
	if start >= len(orders) {
		return nil
	}
	return orders[start:min(start+p.limit, len(orders))]
}
