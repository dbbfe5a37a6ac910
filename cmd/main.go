package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lshigami/examcore/config"
	"github.com/lshigami/examcore/database"
	adminctrl "github.com/lshigami/examcore/internal/controller/admin"
	userctrl "github.com/lshigami/examcore/internal/controller/user"
	"github.com/lshigami/examcore/internal/logger"
	"github.com/lshigami/examcore/internal/middleware"
	"github.com/lshigami/examcore/internal/queue"
	"github.com/lshigami/examcore/internal/repository"
	"github.com/lshigami/examcore/internal/router"
	"github.com/lshigami/examcore/internal/scoring"
	"github.com/lshigami/examcore/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const requeueBatchSize = 500

// @title Exam Attempt API
// @version 1.0
// @description Timed exam attempts: start/resume, autosave, deterministic scoring and background per-answer explanations.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()

	app := fx.New(
		fx.Provide(
			config.NewConfig,
			database.NewDatabase,
			NewRedisClient,
			NewGinEngine,
		),

		// Repositories Layer
		fx.Provide(
			repository.NewExamRepository,
			func(db *gorm.DB, rdb *redis.Client, cfg *config.Config) repository.QuestionRepository {
				return repository.NewCachedQuestionRepository(repository.NewQuestionRepository(db), rdb, cfg.Redis.QuestionCacheTTL)
			},
			repository.NewAttemptRepository,
			repository.NewAnswerRepository,
			repository.NewProgressRepository,
		),

		// Services Layer
		fx.Provide(
			func() *scoring.Engine { return scoring.NewEngine() },
			NewReasoningService,
			service.NewEnrichmentService,
			NewEnrichmentDispatcher,
			service.NewExamAttemptService,
			service.NewAdminExamService,
		),

		// API Controllers Layer
		fx.Provide(
			middleware.NewAuthenticator,
			userctrl.NewExamAttemptController,
			adminctrl.NewAdminExamController,
		),

		fx.Invoke(repository.AutoMigrate),
		fx.Invoke(RegisterRoutesAndStartServer),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Application stopped with errors")
	}
}

// NewRedisClient returns nil when REDIS_ADDR is unset; the question cache is then disabled.
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("REDIS_ADDR is not set. Question snapshots will be read from the database every time.")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis is unreachable; cache reads will fall back to the database")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return rdb
}

func NewReasoningService(lc fx.Lifecycle, cfg *config.Config) (service.ReasoningService, error) {
	svc, err := service.NewGeminiReasoningService(cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := svc.(io.Closer); ok {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return closer.Close() },
		})
	}
	return svc, nil
}

// NewEnrichmentDispatcher picks the queue behind the enrichment pipeline and
// binds its consumers to the application lifecycle.
func NewEnrichmentDispatcher(
	lc fx.Lifecycle,
	cfg *config.Config,
	enrich service.EnrichmentService,
	attemptRepo repository.AttemptRepository,
) (service.EnrichmentDispatcher, error) {
	requeue := func(ctx context.Context, d service.EnrichmentDispatcher) {
		ctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		staleBefore := time.Now().UTC().Add(-cfg.Enrichment.Lease)
		n, err := service.RequeuePendingEnrichment(ctx, attemptRepo, d, staleBefore, requeueBatchSize)
		if err != nil {
			log.Error().Err(err).Msg("Failed to requeue pending enrichment")
			return
		}
		if n > 0 {
			log.Info().Int("attempts", n).Msg("Requeued pending enrichment")
		}
	}
	// The sweep runs once at start and then every lease interval, so attempts
	// whose run died mid-way are taken over once their claim expires.
	sweep := func(d service.EnrichmentDispatcher) {
		sweepCtx, stop := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					defer close(done)
					ticker := time.NewTicker(cfg.Enrichment.Lease)
					defer ticker.Stop()
					for {
						requeue(sweepCtx, d)
						select {
						case <-sweepCtx.Done():
							return
						case <-ticker.C:
						}
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				stop()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}

	switch cfg.Enrichment.Queue {
	case "rabbitmq":
		mq, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.Enrichment.Consumers)
		if err != nil {
			return nil, err
		}
		dispatcher := service.NewBrokerDispatcher(mq)
		consumeCtx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				handler := service.EnrichmentMessageHandler(enrich)
				for i := 0; i < cfg.Enrichment.Consumers; i++ {
					if err := mq.Consume(consumeCtx, fmt.Sprintf("examcore-enrichment-%d", i), handler); err != nil {
						return err
					}
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				cancel()
				return mq.Close()
			},
		})
		sweep(dispatcher)
		return dispatcher, nil

	case "memory", "":
		dispatcher := service.NewMemoryDispatcher(enrich, cfg.Enrichment.BufferSize, cfg.Enrichment.Consumers)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				dispatcher.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return dispatcher.Stop(ctx)
			},
		})
		sweep(dispatcher)
		return dispatcher, nil

	default:
		return nil, fmt.Errorf("unknown ENRICHMENT_QUEUE %q", cfg.Enrichment.Queue)
	}
}

func NewGinEngine() *gin.Engine {
	r := gin.New()

	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.Info().
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("user_agent", param.Request.UserAgent()).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// URL: http://localhost:PORT/swagger/index.html
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// RegisterRoutesAndStartServer configures API routes and manages server lifecycle.
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	engine *gin.Engine,
	cfg *config.Config,
	auth *middleware.Authenticator,
	attemptCtrl *userctrl.ExamAttemptController,
	adminExamCtrl *adminctrl.AdminExamController,
) {
	router.RegisterRoutes(engine, auth, attemptCtrl, adminExamCtrl)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Exam attempt API starting on port %s", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}
