package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"lichtrinh-service/internal/cache"
	"lichtrinh-service/internal/config"
	"lichtrinh-service/internal/schedule"
)

type App struct {
	DB       *pgxpool.Pool
	Resolver *schedule.Resolver
	// TaskCache is nil when Redis is not configured.
	TaskCache *cache.Tasks
	Log       *zap.Logger
	Cfg       config.Config
	Now       func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Router wires every route. The OAuth2 callback and auth endpoints sit in
// front of the auth middleware.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), AccessLog(a.Log), RateLimit(a.Cfg.RateLimitPerMin))

	router.GET("/healthz", a.HealthHandler)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	auth := router.Group("/auth")
	{
		auth.POST("/register", a.RegisterHandler)
		auth.POST("/login", a.LoginHandler)
	}

	api := router.Group("/api", AuthMiddleware(a.Cfg.JWTSecret, a.Cfg.StaticTokens))
	{
		users := api.Group("/users/:id", RequireOwner())
		{
			users.POST("/tasks", a.CreateTaskHandler)
			users.GET("/tasks", a.ListTasksHandler)
			users.GET("/tasks/:task_id", a.GetTaskHandler)
			users.PUT("/tasks/:task_id", a.UpdateTaskHandler)
			users.DELETE("/tasks/:task_id", a.DeleteTaskHandler)

			users.POST("/schedule", a.CreateScheduleEntryHandler)
			users.GET("/schedule", a.ListScheduleEntriesHandler)
			users.GET("/schedule/window", a.WindowHandler)
			users.GET("/schedule/today", a.TodayHandler)
			users.DELETE("/schedule/:entry_id", a.DeleteScheduleEntryHandler)

			users.GET("/stats", a.StatsHandler)

			users.POST("/calendar/import", a.ImportGoogleCalendarHandler)
		}

		calendar := api.Group("/calendar")
		{
			calendar.GET("/auth", a.GoogleAuthHandler)
			calendar.GET("/calendars", a.GetGoogleCalendarList)
		}
	}
	return router
}

func (a *App) HealthHandler(c *gin.Context) {
	if a.DB != nil {
		if err := a.DB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ownerID is the :id path parameter, already parsed by RequireOwner.
func ownerID(c *gin.Context) int64 {
	return c.GetInt64(ctxOwnerID)
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
