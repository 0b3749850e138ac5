package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sells-group/speedtrack/internal/model"
	"github.com/sells-group/speedtrack/internal/store"
)

const (
	defaultRawLimit = 500
	maxRawLimit     = 5000
)

// Options configures the HTTP handlers.
type Options struct {
	Location       *time.Location
	DefaultDays    int
	ISPPromiseMbps float64
	AllowedOrigins []string
	Clock          clockwork.Clock
}

// Handler serves the dashboard API from a read-only Querier.
type Handler struct {
	q    store.Querier
	opts Options
}

// NewHandler creates a Handler, filling unset options with defaults.
func NewHandler(q store.Querier, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultDays <= 0 {
		opts.DefaultDays = 7
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Handler{q: q, opts: opts}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/medians", h.medians)
		r.Get("/kpi", h.kpi)
		r.Get("/latest", h.latest)
		r.Get("/raw", h.raw)
		r.Get("/bounds", h.bounds)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (Range, bool) {
	q := r.URL.Query()
	rng, err := ParseRange(q.Get("start"), q.Get("end"), h.opts.Clock.Now(), h.opts.Location, h.opts.DefaultDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return Range{}, false
	}
	return rng, true
}

func (h *Handler) medians(w http.ResponseWriter, r *http.Request) {
	rng, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	medians, err := h.q.HourlyMedians(r.Context(), rng.Start, rng.End)
	if err != nil {
		h.internalError(w, r, "hourly medians", err)
		return
	}
	if len(medians) == 0 {
		writeNoData(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"range": rng, "medians": medians})
}

func (h *Handler) kpi(w http.ResponseWriter, r *http.Request) {
	metric, ok := model.ParseMetric(r.URL.Query().Get("metric"))
	if !ok {
		writeError(w, http.StatusBadRequest, "metric must be download_mbps, upload_mbps or latency_ms")
		return
	}
	rng, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	medians, err := h.q.HourlyMedians(r.Context(), rng.Start, rng.End)
	if err != nil {
		h.internalError(w, r, "kpi", err)
		return
	}
	k, ok := ComputeKPI(medians, metric)
	if !ok {
		writeNoData(w)
		return
	}
	resp := map[string]any{"range": rng, "kpi": k}
	if metric == model.MetricDownload && h.opts.ISPPromiseMbps > 0 {
		resp["isp_promise_mbps"] = h.opts.ISPPromiseMbps
		resp["meets_promise"] = k.Actual >= h.opts.ISPPromiseMbps
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	m, err := h.q.LatestMeasurement(r.Context())
	if err != nil {
		h.internalError(w, r, "latest", err)
		return
	}
	if m == nil {
		writeNoData(w)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) raw(w http.ResponseWriter, r *http.Request) {
	limit := defaultRawLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRawLimit)
	}
	rng, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	rows, err := h.q.RawRange(r.Context(), rng.Start, rng.End, limit)
	if err != nil {
		h.internalError(w, r, "raw", err)
		return
	}
	if len(rows) == 0 {
		writeNoData(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"range": rng, "measurements": rows})
}

func (h *Handler) bounds(w http.ResponseWriter, r *http.Request) {
	b, err := h.q.TimeBounds(r.Context())
	if err != nil {
		h.internalError(w, r, "bounds", err)
		return
	}
	if b == nil {
		writeNoData(w)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if r.Context().Err() != nil {
		// Client went away.
		return
	}
	zap.L().Error("dashboard: query failed",
		zap.String("op", op),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "query failed")
}

func writeNoData(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "no_data"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("dashboard: encode response", zap.Error(err))
	}
}
