package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
	admissionapp "admission-gateway/middleware/admission/application"
	admissioninfra "admission-gateway/middleware/admission/infra"
	"admission-gateway/middleware/audit"
	auditinfra "admission-gateway/middleware/audit/infra"
	"admission-gateway/middleware/dispatch"
	dispatchapp "admission-gateway/middleware/dispatch/application"
	dispatchinfra "admission-gateway/middleware/dispatch/infra"
	"admission-gateway/middleware/ratelimit"
	ratelimitinfra "admission-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- auditoria: memória (hash-chain) + prometheus (+ redis opcional) ---
	memSink := auditinfra.NewMemorySink(auditinfra.WithMaxEntries(cfg.auditMaxEntries))
	sinks := audit.MultiSink{memSink, auditinfra.NewPromSink(nil)}
	if cfg.auditRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.auditRedisAddr,
			Password: cfg.auditRedisPassword,
			DB:       cfg.auditRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			log.Fatalf("redis audit ping error: %v", err)
		}
		sinks = append(sinks, auditinfra.NewRedisSink(rdb))
	}

	// --- dispatch: bindings + dispatcher (+ watcher opcional) ---
	bindings, exempts, err := dispatchinfra.LoadFile(cfg.bindingsFile)
	if err != nil {
		log.Fatalf("bindings error: %v", err)
	}
	registry, err := dispatchapp.NewRegistry(bindings, exempts)
	if err != nil {
		log.Fatalf("registry error: %v", err)
	}
	dispatcher := dispatchapp.NewDispatcher(registry, dispatchapp.WithSink(sinks))

	if cfg.bindingsWatch {
		watcher := dispatchinfra.NewWatcher(cfg.bindingsFile, registry, audit.StdLogger("dispatch: "))
		if err := watcher.Start(ctx); err != nil {
			log.Fatalf("watcher error: %v", err)
		}
	}

	// --- admissão: provider + idle + governor ---
	provider := admissioninfra.NewHTTPProvider(cfg.providerURL,
		admissioninfra.WithAPIKey(cfg.providerAPIKey))
	idle := admissioninfra.NewMemoryIdleProvider(admissioninfra.WithIdleAfter(cfg.idleAfter))

	govOpts := []admissionapp.GovernorOption{
		admissionapp.WithRatePerMinute(cfg.admitRatePerMinute),
		admissionapp.WithCacheTTL(cfg.admitCacheTTL),
		admissionapp.WithBatchWindow(cfg.admitBatchWindow),
		admissionapp.WithTimeout(cfg.admitTimeout),
		admissionapp.WithIdleProvider(idle),
		admissionapp.WithSink(sinks),
	}
	if cfg.breakerEnabled {
		govOpts = append(govOpts, admissionapp.WithBreaker(admissionapp.NewBreaker(
			admissionapp.WithFailureThreshold(cfg.breakerThreshold),
			admissionapp.WithResetTimeout(cfg.breakerReset),
		)))
	}
	governor := admissionapp.NewGovernor(provider, govOpts...)

	// --- limiter de borda por cliente (token bucket) ---
	store := ratelimitinfra.NewStore(cfg.rateRPS, cfg.rateBurst)
	store.StartJanitor(ctx)

	// --- cadeia: limiter → dispatch → admissão → proxy ---
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	h := http.Handler(proxy)
	h = admission.Middleware(admission.Options{
		Governor:   governor,
		Idle:       idle,
		BatchPaths: cfg.batchPaths,
	})(h)
	h = dispatch.Middleware(dispatch.Options{
		Dispatcher:         dispatcher,
		HintHeader:         cfg.hintHeader,
		AddDecisionHeaders: cfg.addDecisionHeaders,
	})(h)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	if cfg.rateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:               store,
			Audit:               sinks,
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
		})(h)
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// --- admin: health, versão dos bindings e métricas ---
	admin := chi.NewRouter()
	admin.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	admin.Get("/bindings/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(registry.Version() + "\n"))
	})
	admin.Handle("/metrics", promhttp.Handler())
	adminSrv := &http.Server{
		Addr:              cfg.adminAddr,
		Handler:           admin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = adminSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("admin server error: %v", err)
		}
	}()

	log.Printf("gateway listening on %s -> %s (admin %s)", cfg.listenAddr, target, cfg.adminAddr)
	log.Printf("bindings: file=%q version=%s watch=%v", cfg.bindingsFile, registry.Version(), cfg.bindingsWatch)
	log.Printf("admit: rate=%d/min ttl=%s batchWindow=%s timeout=%s batchPaths=%v breaker=%v",
		cfg.admitRatePerMinute, cfg.admitCacheTTL, cfg.admitBatchWindow, cfg.admitTimeout, cfg.batchPaths, cfg.breakerEnabled)
	log.Printf("edge rate: enabled=%v rps=%.3f burst=%d keyHeader=%q trustXFF=%v", cfg.rateEnabled, cfg.rateRPS, cfg.rateBurst, cfg.rateKeyHeader, cfg.trustXFF)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

type config struct {
	listenAddr  string
	adminAddr   string
	upstreamURL string

	bindingsFile       string
	bindingsWatch      bool
	hintHeader         string
	addDecisionHeaders bool

	providerURL        string
	providerAPIKey     string
	admitRatePerMinute int
	admitCacheTTL      time.Duration
	admitBatchWindow   time.Duration
	admitTimeout       time.Duration
	batchPaths         []string
	idleAfter          time.Duration

	breakerEnabled   bool
	breakerThreshold int
	breakerReset     time.Duration

	rateEnabled        bool
	rateRPS            float64
	rateBurst          int
	rateKeyHeader      string
	trustXFF           bool
	retryAfter         time.Duration
	addHeaders         bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	auditMaxEntries    int
	auditRedisAddr     string
	auditRedisPassword string
	auditRedisDB       int
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.adminAddr = getenvDefault("ADMIN_ADDR", ":9090")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.bindingsFile = os.Getenv("BINDINGS_FILE")
	cfg.bindingsWatch = getenvBoolDefault("BINDINGS_WATCH", false)
	cfg.hintHeader = getenvDefault("HINT_HEADER", "X-Intent-Hints")
	cfg.addDecisionHeaders = getenvBoolDefault("ADD_DECISION_HEADERS", false)

	cfg.providerURL = os.Getenv("PROVIDER_URL")
	cfg.providerAPIKey = os.Getenv("PROVIDER_API_KEY")
	cfg.admitRatePerMinute = getenvIntDefault("ADMIT_RATE_PER_MINUTE", 5)
	cfg.admitCacheTTL = getenvDurationDefault("ADMIT_CACHE_TTL", 60*time.Second)
	cfg.admitBatchWindow = getenvDurationDefault("ADMIT_BATCH_WINDOW", 500*time.Millisecond)
	cfg.admitTimeout = getenvDurationDefault("ADMIT_TIMEOUT", 8*time.Second)
	if v := os.Getenv("ADMIT_BATCH_PATHS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.batchPaths = append(cfg.batchPaths, p)
			}
		}
	}
	cfg.idleAfter = getenvDurationDefault("IDLE_AFTER", 5*time.Minute)

	cfg.breakerEnabled = getenvBoolDefault("BREAKER_ENABLED", false)
	cfg.breakerThreshold = getenvIntDefault("BREAKER_THRESHOLD", 5)
	cfg.breakerReset = getenvDurationDefault("BREAKER_RESET", 30*time.Second)

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", 10)
	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02), o padrão 20 pode dar a impressão de que
	// o limiter não está funcionando, porque as primeiras ~20 passam.
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 20
		if getenvIsSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", 1*time.Second)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.auditMaxEntries = getenvIntDefault("AUDIT_MAX_ENTRIES", 10000)
	cfg.auditRedisAddr = getenvDefault("AUDIT_REDIS_ADDR", "")
	cfg.auditRedisPassword = os.Getenv("AUDIT_REDIS_PASSWORD")
	cfg.auditRedisDB = getenvIntDefault("AUDIT_REDIS_DB", 0)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.bindingsFile == "" {
		return config{}, errors.New("BINDINGS_FILE is required")
	}
	if cfg.providerURL == "" {
		return config{}, errors.New("PROVIDER_URL is required")
	}
	if cfg.admitRatePerMinute <= 0 {
		return config{}, errors.New("ADMIT_RATE_PER_MINUTE must be > 0")
	}
	if cfg.rateRPS <= 0 {
		return config{}, errors.New("RATE_RPS must be > 0")
	}
	if cfg.rateBurst <= 0 {
		return config{}, errors.New("RATE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
