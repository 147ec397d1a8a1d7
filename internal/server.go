package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/multierr"

	"github.com/2beens/formcoach/internal/auth"
	"github.com/2beens/formcoach/internal/coach"
	"github.com/2beens/formcoach/internal/config"
	"github.com/2beens/formcoach/internal/db"
	"github.com/2beens/formcoach/internal/feedback"
	"github.com/2beens/formcoach/internal/middleware"
	"github.com/2beens/formcoach/internal/misc"
	"github.com/2beens/formcoach/internal/source"
	"github.com/2beens/formcoach/internal/telemetry/metrics"
	"github.com/2beens/formcoach/internal/telemetry/tracing"
	"github.com/2beens/formcoach/internal/workouts"
)

const (
	// id of the session fed by the pose socket
	liveSessionID = "live"
	tokenCacheTTL = 10 * time.Minute
	expiryTick    = 30 * time.Second
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config   *config.Config
	dbPool   *pgxpool.Pool
	registry *coach.Registry
	feedback *feedback.Worker
	verifier *auth.TokenVerifier

	redisClient *redis.Client
	poseSource  *source.SocketSource
	liveDone    chan struct{}

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	RedisPassword           string
	DBUser                  string
	DBPassword              string
	ClientSecretHash        string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		DBUser:         params.DBUser,
		DBPassword:     params.DBPassword,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("formcoach", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "formcoach", rdb)
	if err != nil {
		return nil, err
	}

	if params.ClientSecretHash == "" {
		log.Warnln("client secret hash not set, protected routes will reject all requests")
	}

	return &Server{
		config:      params.Config,
		dbPool:      dbPool,
		versionInfo: params.VersionInfo,
		registry: coach.NewRegistry(
			time.Duration(params.Config.SessionIdleTimeoutSec)*time.Second,
			metricsManager,
		),
		feedback: feedback.NewWorker(
			params.Config.FeedbackQueueSize,
			metricsManager,
			feedback.LogSink{},
			feedback.NewRedisSink(rdb),
		),
		verifier: auth.NewTokenVerifier(params.ClientSecretHash, tokenCacheTTL),

		redisClient: rdb,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("formcoach-router"))

	miscHandler := misc.NewHandler(s.versionInfo, map[string]misc.HealthCheck{
		"redis": func(ctx context.Context) error {
			return s.redisClient.Ping(ctx).Err()
		},
		"postgres": s.dbPool.Ping,
	})
	miscHandler.SetupRoutes(r)

	coachHandler := coach.NewHandler(
		s.registry,
		s.config.Exercises,
		workouts.NewRepo(s.dbPool),
		s.feedback,
	)
	coachHandler.SetupRoutes(
		r,
		redis_rate.NewLimiter(s.redisClient),
		s.metricsManager,
		s.config.FramesRateLimitPerMin,
	)

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.verifier)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.promRegistry,
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	s.feedback.Start()
	go s.registry.RunExpiry(ctx, expiryTick)

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)

	if s.config.LiveExercise != "" {
		if err := s.startLiveSession(ctx); err != nil {
			log.Errorf("failed to start live session: %s", err)
		}
	}
}

// startLiveSession runs a session on frames streamed to the pose socket by
// a local detector.
func (s *Server) startLiveSession(ctx context.Context) error {
	def, ok := s.config.Exercise(s.config.LiveExercise)
	if !ok {
		return fmt.Errorf("%w: %s", coach.ErrUnknownExercise, s.config.LiveExercise)
	}

	src, err := source.NewSocketSource(s.config.PoseSocketDir, s.config.PoseSocketFileName)
	if err != nil {
		return fmt.Errorf("pose socket: %w", err)
	}
	live, err := s.registry.CreatePinned(liveSessionID, def, 0)
	if err != nil {
		return multierr.Append(err, src.Close())
	}
	log.Infof("live %s session listening on pose socket %s", def.ID, src.Addr())

	s.poseSource = src
	s.liveDone = make(chan struct{})
	go func() {
		defer close(s.liveDone)
		if err := coach.Run(ctx, src, live, s.feedback, nil); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("live session: %s", err)
		}
		log.Infof("live session done: %+v", live.Snapshot())
	}()
	return nil
}

func (s *Server) GracefulShutdown() error {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("shutdown http server: %w", shutdownErr))
		}
		log.Warnln("server shut down")
	}

	if s.poseSource != nil {
		err = multierr.Append(err, s.poseSource.Close())
		select {
		case <-s.liveDone:
		case <-ctx.Done():
			log.Warnln("live session did not stop in time")
		}
	}

	// pending notifications are delivered before the sinks go away
	if shutdownErr := s.feedback.Shutdown(ctx); shutdownErr != nil {
		err = multierr.Append(err, fmt.Errorf("shutdown feedback worker: %w", shutdownErr))
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if closeErr := s.redisClient.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close redis client conn: %w", closeErr))
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	if s.metricsHttpServer != nil {
		if shutdownErr := s.metricsHttpServer.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("shutdown metrics http server: %w", shutdownErr))
		}
		log.Warnln("metrics server shut down")
	}

	return err
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
