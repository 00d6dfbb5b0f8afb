package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/NicholasJacob1990/iudex0-sub003/config"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/audit"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/judge"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/queue/streams"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/runtime"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/search"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/store"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/telemetry"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/worker"
)

// Run loads configuration, wires the audit service and blocks serving HTTP.
func Run(cfgPath, addr string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	registerDocs(e)

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		baseLogger.Printf("warn: migrate: %v", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)

	provider, err := judge.New(cfg.Judge.Provider, judge.Options{
		APIKey:          cfg.Judge.APIKey,
		BaseURL:         cfg.Judge.BaseURL,
		Model:           cfg.Judge.Model,
		Timeout:         cfg.Judge.Timeout,
		Temperature:     cfg.Judge.Temperature,
		MaxOutputTokens: cfg.Judge.MaxOutputTokens,
	})
	if err != nil {
		return err
	}

	// The source-attribution collaborator is an integration point; nothing
	// in-process implements it.
	engine, err := audit.NewEngine(provider, nil, cfg.Audit, tele)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
	}

	var idx *search.Index
	if cfg.Search.Enabled {
		idx, err = search.New(cfg.Search.IndexPath)
		if err != nil {
			return err
		}
		if cfg.Search.IndexPath == "" {
			// Memory-only index starts empty; refill it from recent reports.
			go rebuildSearchIndex(ctx, st, idx, baseLogger)
		}
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}
	auth, err := initAuth(ctx, st, secret)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	me := api.Group("/me")
	me.Use(runtime.EchoAuthMiddleware(secret))
	me.GET("", func(c echo.Context) error {
		return c.JSON(http.StatusOK, MeResponse{UserID: c.Get("user_id").(string)})
	})

	requestStream := streams.RequestStream(cfg.Queue.Stream)
	var pub *streams.Publisher
	if cfg.Queue.Enabled {
		pub = streams.NewPublisher(rdb)
		if err := streams.EnsureGroup(ctx, rdb, requestStream, cfg.Queue.Group); err != nil {
			return err
		}
		cons := streams.NewConsumer(rdb, cfg.Queue.Group, cfg.Queue.ConsumerName())
		var workerIndex worker.FindingsIndex
		if idx != nil {
			workerIndex = idx
		}
		proc := worker.NewProcessor(nil, st, engine, pub, cons,
			requestStream, streams.CompletedStream(cfg.Queue.Stream), cfg.Queue.MaxLen, workerIndex)
		go func() {
			if err := proc.Start(ctx); err != nil {
				baseLogger.Printf("audit worker stopped: %v", err)
			}
		}()
	}

	ah := &AuditsHandler{
		Store:         st,
		Engine:        engine,
		RequestStream: requestStream,
		MaxLen:        cfg.Queue.MaxLen,
		QueueEnabled:  cfg.Queue.Enabled,
		Logger:        baseLogger,
	}
	if pub != nil {
		ah.Publisher = pub
	}
	if idx != nil {
		ah.Index = idx
	}
	ah.Register(api.Group("/v1"), secret)

	ops := &OpsHandler{Stream: requestStream, Group: cfg.Queue.Group}
	if cfg.Queue.Enabled {
		ops.Rdb = rdb
	}
	opsGroup := api.Group("/ops")
	opsGroup.Use(runtime.EchoAuthMiddleware(secret))
	ops.Register(opsGroup)

	sched := &Scheduler{
		Store:  st,
		Rdb:    rdb,
		Cfg:    cfg.Retention,
		Stop:   make(chan struct{}),
		Logger: log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
	}
	if idx != nil {
		sched.Index = idx
	}
	sched.Start()

	if addr == "" {
		addr = cfg.Server.Address
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":8080"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// rebuildSearchIndex refills a memory-only findings index from the most
// recent stored reports.
func rebuildSearchIndex(ctx context.Context, st *store.Store, idx *search.Index, logger *log.Logger) {
	recs, err := st.ListRecentReports(ctx, 500)
	if err != nil {
		logger.Printf("warn: rebuild search index: %v", err)
		return
	}
	var indexed int
	for _, rec := range recs {
		var rep audit.FinalReport
		if err := json.Unmarshal(rec.Report, &rep); err != nil {
			logger.Printf("warn: decode stored report %s: %v", rec.ID, err)
			continue
		}
		if err := idx.Add(rec.ID, rec.CreatedAt, &rep); err != nil {
			logger.Printf("warn: index stored report %s: %v", rec.ID, err)
			continue
		}
		indexed++
	}
	if indexed > 0 {
		logger.Printf("search index rebuilt from %d stored reports", indexed)
	}
}
