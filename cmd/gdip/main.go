package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	accountapp "github.com/wyfcoding/gdip/internal/account/application"
	accountdomain "github.com/wyfcoding/gdip/internal/account/domain"
	accountmysql "github.com/wyfcoding/gdip/internal/account/infrastructure/persistence/mysql"
	accounthttp "github.com/wyfcoding/gdip/internal/account/interfaces/http"
	certapp "github.com/wyfcoding/gdip/internal/certificate/application"
	certdomain "github.com/wyfcoding/gdip/internal/certificate/domain"
	certmysql "github.com/wyfcoding/gdip/internal/certificate/infrastructure/persistence/mysql"
	clusterapp "github.com/wyfcoding/gdip/internal/cluster/application"
	clusterdomain "github.com/wyfcoding/gdip/internal/cluster/domain"
	clustermysql "github.com/wyfcoding/gdip/internal/cluster/infrastructure/persistence/mysql"
	clusterhttp "github.com/wyfcoding/gdip/internal/cluster/interfaces/http"
	commodityapp "github.com/wyfcoding/gdip/internal/commodity/application"
	commoditydomain "github.com/wyfcoding/gdip/internal/commodity/domain"
	commoditymysql "github.com/wyfcoding/gdip/internal/commodity/infrastructure/persistence/mysql"
	commodityhttp "github.com/wyfcoding/gdip/internal/commodity/interfaces/http"
	cycleapp "github.com/wyfcoding/gdip/internal/cycle/application"
	cycledomain "github.com/wyfcoding/gdip/internal/cycle/domain"
	cyclemysql "github.com/wyfcoding/gdip/internal/cycle/infrastructure/persistence/mysql"
	cyclehttp "github.com/wyfcoding/gdip/internal/cycle/interfaces/http"
	settlementapp "github.com/wyfcoding/gdip/internal/settlement/application"
	settlementdomain "github.com/wyfcoding/gdip/internal/settlement/domain"
	"github.com/wyfcoding/gdip/internal/settlement/infrastructure/messaging"
	settlementmysql "github.com/wyfcoding/gdip/internal/settlement/infrastructure/persistence/mysql"
	settlementhttp "github.com/wyfcoding/gdip/internal/settlement/interfaces/http"
	"github.com/wyfcoding/gdip/pkg/cache"
	"github.com/wyfcoding/gdip/pkg/config"
	"github.com/wyfcoding/gdip/pkg/db"
	"github.com/wyfcoding/gdip/pkg/logger"
	"github.com/wyfcoding/gdip/pkg/metrics"
	"github.com/wyfcoding/gdip/pkg/middleware"
	"github.com/wyfcoding/gdip/pkg/mq"
	"github.com/wyfcoding/gdip/pkg/ratelimit"
	"github.com/wyfcoding/gdip/pkg/utils"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "configs/gdip/config.toml", "config file path")
	nodeID     = flag.Int64("node", 1, "snowflake node id")
)

func main() {
	flag.Parse()

	// 1. 配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	log := logger.Get()
	ctx := context.Background()

	// 3. 指标
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		logger.Fatal(ctx, "failed to register metrics", "error", err)
	}
	if cfg.Metrics.Enabled {
		metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 4. 基础设施
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to connect database", "error", err)
	}
	defer database.Close()

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(
			&commoditydomain.CommodityType{},
			&clusterdomain.Cluster{},
			&clusterdomain.ClusterSlot{},
			&accountdomain.InvestmentAccount{},
			&certdomain.InsuranceCertificate{},
			&cycledomain.TradeCycle{},
			&settlementdomain.LedgerEntry{},
		); err != nil {
			logger.Error(ctx, "failed to migrate database", "error", err)
		}
	}

	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to connect redis", "error", err)
	}
	defer redisCache.Close()

	producer, err := mq.NewProducer(mq.Config{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to create kafka producer", "error", err)
	}
	defer producer.Close()

	idGen := utils.NewSnowflakeID(*nodeID)

	minPurchase, err := decimal.NewFromString(cfg.Engine.MinPurchaseAmount)
	if err != nil {
		logger.Fatal(ctx, "invalid min_purchase_amount", "value", cfg.Engine.MinPurchaseAmount)
	}
	targetRate, err := decimal.NewFromString(cfg.Engine.DefaultTargetProfitRate)
	if err != nil {
		logger.Fatal(ctx, "invalid default_target_profit_rate", "value", cfg.Engine.DefaultTargetProfitRate)
	}
	cycleDuration := time.Duration(cfg.Engine.CycleDurationDays) * 24 * time.Hour

	// 5. 仓储
	commodityRepo := commoditymysql.NewCommodityRepository(database.DB)
	clusterRepo := clustermysql.NewClusterRepository(database.DB)
	slotRepo := clustermysql.NewSlotRepository(database.DB)
	accountRepo := accountmysql.NewAccountRepository(database.DB)
	certRepo := certmysql.NewCertificateRepository(database.DB)
	cycleRepo := cyclemysql.NewCycleRepository(database.DB)
	ledgerRepo := settlementmysql.NewLedgerRepository(database.DB)

	// 6. 应用服务
	registry := commodityapp.NewRegistryService(commodityRepo, log)
	pool := clusterapp.NewPoolService(clusterRepo, slotRepo, database, idGen, m, log, cfg.Engine.ClusterCapacity)
	clusterQuery := clusterapp.NewQueryService(clusterRepo, slotRepo, redisCache, log)
	issuer := certapp.NewIssuerService(certRepo, certapp.NewLocalUnderwriter(), idGen, log,
		cfg.Engine.InsuranceProvider, cfg.Engine.WarehouseLocation, cycleDuration)
	admission := accountapp.NewAdmissionService(accountRepo, registry, pool, issuer, idGen, m, log, minPurchase)
	accountSvc := accountapp.NewAccountService(accountRepo, log)
	cycleSvc := cycleapp.NewCycleService(cycleRepo, log)
	ledgerQuery := settlementapp.NewLedgerQueryService(ledgerRepo)

	payoutPublisher := messaging.NewKafkaPayoutPublisher(producer, cfg.Kafka.PayoutTopic, log)
	engine := settlementapp.NewEngine(ledgerRepo, accountRepo, cycleRepo, pool, payoutPublisher,
		database, idGen, m, log)

	scheduler := cycleapp.NewScheduler(cycleRepo, pool, engine, idGen, m, log,
		cycleDuration,
		targetRate,
		time.Duration(cfg.Engine.TickInterval)*time.Second)

	// 7. HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecovery(), middleware.GinLogging(m), middleware.GinCORS())

	limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())
	api := r.Group("/api/v1")
	api.Use(middleware.GinRateLimit(limiter, cfg.RateLimit))
	commodityhttp.NewCommodityHandler(registry).RegisterRoutes(api)
	clusterhttp.NewClusterHandler(clusterQuery).RegisterRoutes(api)
	accounthttp.NewAccountHandler(admission, accountSvc).RegisterRoutes(api)
	cyclehttp.NewCycleHandler(cycleSvc).RegisterRoutes(api)
	settlementhttp.NewLedgerHandler(ledgerQuery).RegisterRoutes(api)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": cfg.ServiceName,
			"version": cfg.Version,
		})
	})

	// 8. 启动
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	// 9. 优雅关闭
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "service exited with error", "error", err)
	}
}
