package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/cuaderno-api/api/swagger"
	"github.com/noah-isme/cuaderno-api/internal/handler"
	"github.com/noah-isme/cuaderno-api/internal/models"
	"github.com/noah-isme/cuaderno-api/internal/repository"
	"github.com/noah-isme/cuaderno-api/internal/service"
	"github.com/noah-isme/cuaderno-api/pkg/cache"
	"github.com/noah-isme/cuaderno-api/pkg/config"
	"github.com/noah-isme/cuaderno-api/pkg/database"
	"github.com/noah-isme/cuaderno-api/pkg/logger"
)

// @title Cuaderno API
// @version 0.1.0
// @description School administration API: attendance marking, history and summaries
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type attendanceStore interface {
	UpsertMany(ctx context.Context, marks []models.AttendanceMark) (models.BulkMarkResult, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
	Count(ctx context.Context, filter models.AttendanceFilter) (int, error)
	Summary(ctx context.Context, filter models.AttendanceSummaryFilter) ([]models.AttendanceSummaryRow, error)
}

type studentStore interface {
	ValidID(id string) bool
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
}

type userStore interface {
	ValidID(id string) bool
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type stores struct {
	attendance attendanceStore
	students   studentStore
	users      userStore
	pinger     handler.Pinger
	close      func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}

	metrics := service.NewMetricsService()

	var redisClient *redis.Client
	if cfg.Summary.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, summary cache disabled", zap.Error(err))
			redisClient = nil
		}
	}
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient), metrics, cfg.Summary.CacheTTL, logr, redisClient != nil)

	identitySvc := service.NewIdentityService(st.users, logr, service.IdentityConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	studentSvc := service.NewStudentService(st.students, logr)
	attendanceSvc := service.NewAttendanceService(st.attendance, st.students, cacheSvc, metrics, validator.New(), logr, service.AttendanceConfig{
		Location:        cfg.Location,
		SummaryCacheTTL: cfg.Summary.CacheTTL,
	})

	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
	}, handler.RouterDeps{
		Logger:     logr,
		Metrics:    metrics,
		Identity:   identitySvc,
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Students:   handler.NewStudentHandler(studentSvc),
		Probes:     handler.NewMetricsHandler(metrics, st.pinger, cfg.StoreDriver),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := st.close(shutdownCtx); err != nil {
		logr.Error("close store failed", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, db, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		attendance := repository.NewAttendanceMongoRepository(db)
		students := repository.NewStudentMongoRepository(db)
		if err := attendance.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		if err := students.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return &stores{
			attendance: attendance,
			students:   students,
			users:      repository.NewUserMongoRepository(db),
			pinger:     database.MongoPinger{Client: client},
			close:      client.Disconnect,
		}, nil
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := database.MigratePostgres(ctx, db); err != nil {
				return nil, err
			}
			logr.Info("postgres schema applied")
		}
		return &stores{
			attendance: repository.NewAttendanceRepository(db),
			students:   repository.NewStudentRepository(db),
			users:      repository.NewUserRepository(db),
			pinger:     db,
			close:      func(context.Context) error { return db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
