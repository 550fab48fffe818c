package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	libconfig "github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/idgen"
	"github.com/wyfcoding/pkg/logging"
	libredis "github.com/wyfcoding/pkg/redis"
	"github.com/wyfcoding/portfoliorisk/internal/risk/application"
	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
	"github.com/wyfcoding/portfoliorisk/internal/risk/infrastructure/messaging"
	"github.com/wyfcoding/portfoliorisk/internal/risk/infrastructure/persistence/mysql"
	riskredis "github.com/wyfcoding/portfoliorisk/internal/risk/infrastructure/persistence/redis"
	riskhttp "github.com/wyfcoding/portfoliorisk/internal/risk/interfaces/http"
	"github.com/wyfcoding/portfoliorisk/pkg/config"
	"github.com/wyfcoding/portfoliorisk/pkg/db"
	"github.com/wyfcoding/portfoliorisk/pkg/metrics"
	"github.com/wyfcoding/portfoliorisk/pkg/middleware"
	"github.com/wyfcoding/portfoliorisk/pkg/mq"
	"github.com/wyfcoding/portfoliorisk/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/risk/config.toml", "path to config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "risk service exited: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 2. Logger & ID generator
	initLogger(cfg)
	libconfig.PrintWithMask(cfg)
	if err := idgen.Init(cfg.Snowflake); err != nil {
		return fmt.Errorf("init id generator: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Database
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		models := append(mysql.Models(), messaging.Models()...)
		if err := database.AutoMigrate(models...); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}
	}

	// 4. Redis
	var rdb *libredis.Client
	if cfg.Redis.Enabled {
		client, closeRedis, err := libredis.NewClient(cfg.Redis.Client(), logging.Default())
		if err != nil {
			return err
		}
		defer closeRedis()
		rdb = client
	}

	// 5. Repositories
	portfolioRepo := mysql.NewPortfolioRepository(database.DB)
	var stats domain.MarketStatsProvider = mysql.NewMarketStatsRepository(database.DB, 0)
	if rdb != nil {
		stats = riskredis.NewCachedMarketStats(stats, rdb, cfg.Risk.MarketStatsTTL)
	}

	g, gctx := errgroup.WithContext(ctx)

	// 6. Event publisher
	publisher, closePublisher, err := newPublisher(gctx, g, cfg, database)
	if err != nil {
		return err
	}
	defer closePublisher()

	// 7. Critical alert table
	alerts, err := domain.NewCriticalAlertTable(gctx, cfg.Risk.AlertRetention)
	if err != nil {
		return err
	}
	defer alerts.Close()

	// 8. Metrics
	m := metrics.New(cfg.ServiceName)

	// 9. Application
	svc := application.NewRiskService(portfolioRepo, stats, publisher, alerts, m, application.Config{
		RiskFreeRate:      cfg.Risk.RiskFreeRate,
		MonteCarloPaths:   cfg.Risk.MonteCarloPaths,
		MonteCarloHorizon: cfg.Risk.MonteCarloHorizon,
		MonteCarloTimeout: cfg.Risk.MonteCarloTimeout,
		MonteCarloWorkers: cfg.Risk.MonteCarloWorkers,
		Seed:              cfg.Risk.Seed,
		TWAPWindow:        cfg.Risk.TWAPWindow,
	})

	// 10. HTTP
	if cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware(), middleware.GinLoggingMiddleware(), middleware.GinCORSMiddleware())
	if cfg.Metrics.Enabled {
		r.Use(m.GinMiddleware())
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	var monteCarloLimit gin.HandlerFunc
	if rdb != nil {
		monteCarloLimit = middleware.RateLimitMiddleware(ratelimit.NewRedisRateLimiter(rdb), cfg.RateLimit, "monte-carlo")
	}
	riskhttp.NewRiskHandler(svc, monteCarloLimit).RegisterRoutes(&r.RouterGroup)

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) {
			if err := database.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_READY", "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "READY"})
		})
	}
	pp := r.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 11. gRPC（健康检查与反射）
	grpcSrv := grpc.NewServer(
		grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)),
		grpc.ChainUnaryInterceptor(middleware.GRPCRecoveryInterceptor(), middleware.GRPCLoggingInterceptor()),
	)
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	// 12. Start
	g.Go(func() error {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port))
		if err != nil {
			return err
		}
		logging.Info(gctx, "gRPC server starting", "addr", lis.Addr().String())
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		logging.Info(gctx, "HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 13. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logging.Info(context.Background(), "shutting down servers...")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logging.Error(shutdownCtx, "http shutdown failed", "error", err)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newPublisher 按配置选择事件投递方式：outbox、直连 Kafka 或进程内分发
func newPublisher(ctx context.Context, g *errgroup.Group, cfg *config.Config, database *db.DB) (domain.EventPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		pub := messaging.NewChannelEventPublisher()
		events := pub.Subscribe(256)
		g.Go(func() error {
			for e := range events {
				logging.Info(ctx, "assessment completed",
					"portfolio_id", e.Assessment.PortfolioID,
					"risk_level", e.Assessment.OverallRiskLevel,
					"requires_action", e.Assessment.RequiresAction,
				)
			}
			return nil
		})
		go func() {
			<-ctx.Done()
			pub.Close()
		}()
		return pub, func() {}, nil
	}

	producer, err := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	if err != nil {
		return nil, nil, err
	}
	closeProducer := func() {
		if err := producer.Close(); err != nil {
			logging.Error(context.Background(), "close kafka producer failed", "error", err)
		}
	}

	if !cfg.Kafka.UseOutbox {
		return messaging.NewKafkaEventPublisher(producer), closeProducer, nil
	}

	pub := messaging.NewOutboxEventPublisher(database.DB)
	relay := pub.Relay(producer, cfg.Risk.OutboxBatchSize, cfg.Risk.OutboxInterval)
	relay.Start()
	g.Go(func() error {
		pub.RunCleanup(ctx, time.Hour, 24*time.Hour)
		return nil
	})
	// relay 先于 producer 停止
	return pub, func() {
		relay.Stop()
		closeProducer()
	}, nil
}

// initLogger 按配置构建日志并替换 pkg/logging 的全局默认实例
func initLogger(cfg *config.Config) {
	lc := logging.Config{
		Service:    cfg.ServiceName,
		Module:     "risk",
		Level:      cfg.Logger.Level,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
	}
	if cfg.Logger.Output == "file" {
		lc.File = cfg.Logger.FilePath
	}
	l := logging.NewFromConfig(lc)
	*logging.Default() = *l
	slog.SetDefault(l.Logger)
}
