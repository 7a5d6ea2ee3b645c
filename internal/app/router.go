package app

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/backup"
	_ "prefect-attendance/internal/docs"
	"prefect-attendance/internal/platform/middleware"
	"prefect-attendance/internal/qrpass"
	"prefect-attendance/internal/remotesync"
	"prefect-attendance/internal/report"
)

const APIPrefix = "/api/v1"

// Router wires every route group under /api/v1.
func (a *App) Router() *gin.Engine {
	if a.Config.Mode == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	log := a.Log.Named("http")
	r.Use(middleware.RequestID(), middleware.AccessLog(log), middleware.Recovery(log))
	_ = r.SetTrustedProxies(nil)

	if a.Config.Mode == "dev" {
		origins := a.Config.Server.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     []string{"Origin", "Content-Type", middleware.HeaderRequestID},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.HeaderRequestID},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group(APIPrefix)
	attendance.RegisterRoutes(api, a.Attendance)
	backup.RegisterRoutes(api, a.Backup)
	remotesync.RegisterRoutes(api, a.Sync, a.Config.Remote.KeepBackups)
	qrpass.RegisterRoutes(api, a.QR)
	report.RegisterRoutes(api, a.Report)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, attendance.ErrorBody(attendance.ErrNotFound("no route for "+c.Request.Method+" "+c.Request.URL.Path)))
	})
	return r
}
