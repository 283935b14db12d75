package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/cuaderno-api/internal/middleware"
	"github.com/noah-isme/cuaderno-api/internal/models"
	"github.com/noah-isme/cuaderno-api/internal/service"
	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
	"github.com/noah-isme/cuaderno-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/cuaderno-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/cuaderno-api/pkg/middleware/requestid"
	"github.com/noah-isme/cuaderno-api/pkg/response"
)

const metricsRoute = "/metrics"

type identityResolver interface {
	Resolve(ctx context.Context, token string) (*models.Identity, error)
}

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
}

// RouterDeps are the collaborators mounted by NewRouter.
type RouterDeps struct {
	Logger     *zap.Logger
	Metrics    *service.MetricsService
	Identity   identityResolver
	Attendance *AttendanceHandler
	Students   *StudentHandler
	Probes     *MetricsHandler
}

// NewRouter builds the gin engine with the shared middleware chain and every route.
func NewRouter(cfg RouterConfig, deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	if deps.Logger != nil {
		r.Use(logger.GinMiddleware(deps.Logger))
	}
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics, metricsRoute))

	api := r.Group(normalizePrefix(cfg.APIPrefix))
	if deps.Probes != nil {
		api.GET("/health", deps.Probes.Health)
		api.GET("/ready", deps.Probes.Ready)
		r.GET(metricsRoute, deps.Probes.Prometheus)
	}
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := api.Group("", middleware.JWT(deps.Identity), middleware.RBAC(models.RoleAdmin, models.RoleTeacher))
	if deps.Attendance != nil {
		attendance := staff.Group("/attendance")
		attendance.POST("/mark", deps.Attendance.Mark)
		attendance.GET("/history", deps.Attendance.History)
		attendance.GET("/summary", deps.Attendance.Summary)
		attendance.GET("/summary/export", deps.Attendance.ExportSummary)
	}
	if deps.Students != nil {
		staff.GET("/students", deps.Students.List)
		staff.GET("/students/:id", deps.Students.Get)
	}

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.ErrNotFound)
	})
	return r
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return "/"
	}
	return "/" + strings.Trim(prefix, "/")
}
