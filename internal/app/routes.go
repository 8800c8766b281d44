package app

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pilling-app/pilling-core/internal/middleware"
	"github.com/pilling-app/pilling-core/internal/modules/crontask"
	"github.com/pilling-app/pilling-core/internal/modules/medicine"
	"github.com/pilling-app/pilling-core/internal/modules/search"
	"github.com/pilling-app/pilling-core/internal/pkg/cron"
	"github.com/pilling-app/pilling-core/internal/pkg/response"
	"github.com/pilling-app/pilling-core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

func newRouter(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.NoMethod(response.MethodNotAllowed)
	r.NoRoute(response.NotFound)
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	return r
}

func registerRoutes(api *gin.RouterGroup, medicineSvc *medicine.Service, searchSvc *search.Service, sched *cron.Scheduler, taskSvc *taskqueue.Service) {
	api.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	authMW := middleware.Auth()
	staffMW := middleware.StaffOnly()

	search.NewHandler(searchSvc).RegisterRoutes(api, authMW)
	medicine.NewHandler(medicineSvc).RegisterRoutes(api, authMW, staffMW)
	crontask.NewHandler(sched, taskSvc).RegisterRoutes(api, authMW, staffMW)
}
