package main

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/risk-cli/internal/aggregate"
	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/monitoring"
	"github.com/sells-group/risk-cli/internal/schema"
	"github.com/sells-group/risk-cli/internal/scorer"
)

const (
	requestIDHeader = "X-Request-ID"
	userIDHeader    = "X-User-ID"

	// multipartMemory is the part of a multipart upload kept in memory; the
	// rest spills to temp files.
	multipartMemory = 8 << 20
)

type ctxKey int

const requestIDKey ctxKey = iota

// scoreServer serves scoring requests over HTTP. Each request is scored
// independently; nothing is kept between requests except metrics.
type scoreServer struct {
	env       *pipelineEnv
	cfg       *config.Config
	collector *monitoring.Collector
}

func newScoreServer(env *pipelineEnv, c *config.Config, collector *monitoring.Collector) *scoreServer {
	return &scoreServer{env: env, cfg: c, collector: collector}
}

// routes builds the HTTP handler.
func (s *scoreServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader, userIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.collector.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.Server.RateLimitRPS > 0 {
			r.Use(newClientLimiter(rate.Limit(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst).middleware)
		}
		r.Post("/score", s.handleScore)
		r.Get("/stats", s.handleStats)
	})

	return r
}

func (s *scoreServer) handleScore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	q := r.URL.Query()

	strategy, err := parseStrategy(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	wf := windowFlags{from: q.Get("from"), to: q.Get("to"), through: q.Get("through")}
	window, through, err := wf.resolve(s.cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Input.MaxBytes+multipartMemory)
	data, format, err := s.readDataset(r)
	if err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}

	tbl, err := s.env.Loader.Parse(ctx, data, format)
	if err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}

	report, err := s.env.Pipeline.Run(ctx, scorer.RunContext{
		RunID:    requestIDFrom(ctx),
		UserID:   r.Header.Get(userIDHeader),
		Strategy: strategy,
		Window:   window,
		Through:  through,
	}, tbl)
	s.collector.RecordRun(strategy, report, time.Since(start), err)
	if err != nil {
		writeError(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}

	writeJSONResponse(w, http.StatusOK, report)
}

func (s *scoreServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	lookback := time.Duration(s.cfg.Monitoring.LookbackMinutes) * time.Minute
	if lookback <= 0 {
		lookback = time.Hour
	}
	writeJSONResponse(w, http.StatusOK, s.collector.Collect(lookback))
}

// readDataset returns the uploaded dataset and its format. Multipart
// requests carry it in the "file" field; anything else sends it as the raw
// body typed by Content-Type. A "format" query or form value overrides
// inference.
func (s *scoreServer) readDataset(r *http.Request) ([]byte, fetcher.Format, error) {
	ct := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, "", eris.Wrap(err, "parse multipart form")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, "", eris.Wrap(err, `read form field "file"`)
		}
		defer f.Close() //nolint:errcheck

		data, err := s.env.Loader.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		if v := r.FormValue("format"); v != "" {
			return data, fetcher.Format(v), nil
		}
		format, err := fetcher.FormatFromName(hdr.Filename)
		return data, format, err
	}

	data, err := s.env.Loader.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if v := r.URL.Query().Get("format"); v != "" {
		return data, fetcher.Format(v), nil
	}
	format := fetcher.FormatFromContentType(ct)
	if format == "" {
		return nil, "", eris.Errorf("cannot infer dataset format from Content-Type %q", ct)
	}
	return data, format, nil
}

// statusFor maps pipeline errors onto HTTP statuses, falling back to def.
func statusFor(err error, def int) int {
	var (
		tooBig       *http.MaxBytesError
		missing      *schema.MissingColumnError
		malformed    *schema.MalformedRecordError
		insufficient *scorer.InsufficientMetricsError
	)
	switch {
	case errors.As(err, &tooBig), errors.Is(err, fetcher.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &insufficient), errors.As(err, &missing), errors.Is(err, aggregate.ErrWindowTooLarge):
		return http.StatusUnprocessableEntity
	case errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return def
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("serve: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSONResponse(w, status, map[string]string{"error": err.Error()})
}

// requestID tags each request with an ID, reusing the caller's when sent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// observe logs each request and records it against its route pattern.
func (s *scoreServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.collector.ObserveRequest(r.Method, route, status, elapsed)

		zap.L().Info("serve: request",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", elapsed),
		)
	})
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter rate limits requests per client address.
type clientLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limit:    limit,
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// allow reports whether a request from addr may proceed. Visitors idle for
// more than three minutes are forgotten.
func (l *clientLimiter) allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > 3*time.Minute {
			delete(l.visitors, k)
		}
	}

	v, ok := l.visitors[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[addr] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		if !l.allow(addr) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, eris.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
