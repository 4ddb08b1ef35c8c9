package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vibration-monitor/internal/errors"
	"vibration-monitor/internal/metrics"
	"vibration-monitor/internal/models"
)

// Detector то, что нужно обработчику от конвейера
type Detector interface {
	Submit(ctx context.Context, payload []byte) (*models.Verdict, error)
	Ready() bool
	GetStats() map[string]interface{}
}

// StatsProvider источник статистики для /stats
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// RedisClient необязательная зависимость от Redis
type RedisClient interface {
	Ping(ctx context.Context) error
	GetStats() map[string]interface{}
}

// Options ограничения приема пакетов
type Options struct {
	MaxPayloadBytes int64
	SubmitTimeout   time.Duration
	// RateLimit пакетов в секунду, 0 отключает ограничение
	RateLimit float64
	RateBurst int
}

// Handler обработчик HTTP запросов
type Handler struct {
	detector  Detector
	reference StatsProvider
	redis     RedisClient
	limiter   *rate.Limiter
	opts      Options
	log       zerolog.Logger
}

// NewHandler создает новый обработчик. redis может быть nil.
func NewHandler(detector Detector, reference StatsProvider, redis RedisClient, opts Options, log zerolog.Logger) *Handler {
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = 1 << 20
	}

	h := &Handler{
		detector:  detector,
		reference: reference,
		redis:     redis,
		opts:      opts,
		log:       log.With().Str("component", "http").Logger(),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return h
}

// Register регистрирует маршруты
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/{$}", h.Root)
	mux.HandleFunc("/api/v1/bursts", h.SubmitBurst)
	mux.HandleFunc("/api/v1/ready", h.Readiness)
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/stats", h.GetStats)
}

// Root обрабатывает GET / (готовность, тело 1 или 0) и POST / (пакет, 204)
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(r.Method, "/").Observe(time.Since(start).Seconds())
	}()

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		body := "0"
		if h.detector.Ready() {
			body = "1"
		}
		metrics.RequestsTotal.WithLabelValues(r.Method, "/", "200").Inc()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, body)
	case http.MethodPost:
		if _, ok := h.submit(w, r, "/"); !ok {
			return
		}
		metrics.RequestsTotal.WithLabelValues(r.Method, "/", "204").Inc()
		w.WriteHeader(http.StatusNoContent)
	default:
		metrics.RequestsTotal.WithLabelValues(r.Method, "/", "405").Inc()
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// SubmitBurst обрабатывает POST /api/v1/bursts и возвращает вердикт
func (h *Handler) SubmitBurst(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(r.Method, "/api/v1/bursts").Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		metrics.RequestsTotal.WithLabelValues(r.Method, "/api/v1/bursts", "405").Inc()
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	verdict, ok := h.submit(w, r, "/api/v1/bursts")
	if !ok {
		return
	}

	metrics.RequestsTotal.WithLabelValues(r.Method, "/api/v1/bursts", "200").Inc()
	writeJSON(w, http.StatusOK, verdict)
}

// submit читает тело и прогоняет пакет через детектор.
// При ошибке ответ уже записан и возвращается false.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, endpoint string) (*models.Verdict, bool) {
	if h.limiter != nil && !h.limiter.Allow() {
		h.fail(w, r, endpoint, http.StatusTooManyRequests, models.ErrorResponse{
			Error: "too many bursts",
			Code:  "rate_limited",
		})
		return nil, false
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, endpoint, http.StatusRequestEntityTooLarge, models.ErrorResponse{
				Error:   "payload too large",
				Code:    "payload_too_large",
				Message: "limit is " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
			})
			return nil, false
		}
		h.fail(w, r, endpoint, http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to read body",
			Code:    string(errors.CodeDecode),
			Message: err.Error(),
		})
		return nil, false
	}

	ctx := r.Context()
	if h.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.SubmitTimeout)
		defer cancel()
	}

	verdict, err := h.detector.Submit(ctx, payload)
	if err != nil {
		status, resp := errorResponse(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("endpoint", endpoint).Msg("burst not processed")
		}
		h.fail(w, r, endpoint, status, resp)
		return nil, false
	}
	return verdict, true
}

// errorResponse переводит ошибку конвейера в HTTP статус
func errorResponse(err error) (int, models.ErrorResponse) {
	resp := models.ErrorResponse{Message: err.Error()}

	code, ok := errors.CodeOf(err)
	if !ok {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			resp.Error, resp.Code = "burst processing timed out", "timeout"
			return http.StatusGatewayTimeout, resp
		case errors.Is(err, context.Canceled):
			resp.Error, resp.Code = "request cancelled", "cancelled"
			return http.StatusServiceUnavailable, resp
		default:
			resp.Error, resp.Code = "internal error", "internal"
			return http.StatusInternalServerError, resp
		}
	}

	resp.Error, resp.Code = errors.MessageOf(code), string(code)
	switch code {
	case errors.CodeDecode:
		return http.StatusBadRequest, resp
	case errors.CodeShapeMismatch, errors.CodeDegenerateVector:
		return http.StatusUnprocessableEntity, resp
	case errors.CodeReferenceUnavailable, errors.CodeQueueFull, errors.CodeStopped:
		return http.StatusServiceUnavailable, resp
	default:
		return http.StatusInternalServerError, resp
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, status int, resp models.ErrorResponse) {
	metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}

// Readiness обрабатывает GET /api/v1/ready
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ready := h.detector.Ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	metrics.RequestsTotal.WithLabelValues(r.Method, "/api/v1/ready", strconv.Itoa(status)).Inc()

	writeJSON(w, status, map[string]interface{}{
		"ready": ready,
	})
}

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ready := h.detector.Ready()

	resp := map[string]interface{}{
		"reference": ready,
		"timestamp": time.Now(),
	}

	healthy := ready
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		redisOK := h.redis.Ping(ctx) == nil
		resp["redis"] = redisOK
		healthy = healthy && redisOK
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	resp["status"] = status

	writeJSON(w, httpStatus, resp)
}

// GetStats обрабатывает GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(r.Method, "/stats").Observe(time.Since(start).Seconds())
	}()

	resp := map[string]interface{}{
		"detector":  h.detector.GetStats(),
		"timestamp": time.Now(),
	}
	if h.reference != nil {
		resp["reference"] = h.reference.GetStats()
	}
	if h.redis != nil {
		resp["redis"] = h.redis.GetStats()
	}

	metrics.RequestsTotal.WithLabelValues(r.Method, "/stats", "200").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
