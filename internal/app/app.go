package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pilling-app/pilling-core/internal/config"
	"github.com/pilling-app/pilling-core/internal/database"
	"github.com/pilling-app/pilling-core/internal/modules/directory"
	"github.com/pilling-app/pilling-core/internal/modules/medicine"
	"github.com/pilling-app/pilling-core/internal/modules/search"
	"github.com/pilling-app/pilling-core/internal/modules/summarizer"
	"github.com/pilling-app/pilling-core/internal/pkg/cron"
	"github.com/pilling-app/pilling-core/internal/pkg/jwt"
	redisc "github.com/pilling-app/pilling-core/internal/pkg/redis"
	"github.com/pilling-app/pilling-core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const directoryTimeout = 10 * time.Second

// App holds the assembled application.
type App struct {
	cfg    *config.AppConfig
	log    *zap.Logger
	db     *gorm.DB
	rc     *redisc.Client
	engine *gin.Engine
	sched  *cron.Scheduler
	tasks  *medicine.Tasks
	server *http.Server
}

// New connects the data stores and wires every module together.
func New(cfg *config.AppConfig, log *zap.Logger) (*App, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rc, err := redisc.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	jwt.SetSecret(cfg.JWTSecret)

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	medicineSvc := medicine.NewService(db)
	sum := summarizer.New(cfg.OpenAI)
	dir := directory.New(cfg.Directory.Endpoint, cfg.Directory.ServiceKey, directoryTimeout)
	taskSvc := taskqueue.NewService(rc)

	searchCache := search.NewCache(rc)
	searchSvc := search.NewService(
		medicineSvc, searchCache, dir, sum, taskSvc, log,
		cfg.NameSearchTTL(), cfg.SymptomSearchTTL(),
	)

	tasks := medicine.NewTasks(
		medicineSvc, dir, sum, log,
		cfg.Batch.BatchSize, cfg.BatchDelay(), cfg.PopularDelay(),
	)

	sched := cron.New()

	a := &App{
		cfg:   cfg,
		log:   log,
		db:    db,
		rc:    rc,
		sched: sched,
		tasks: tasks,
	}
	a.registerJobs()
	a.engine = a.buildRouter(medicineSvc, searchSvc, taskSvc)
	return a, nil
}

// Run starts the cron scheduler and the HTTP server, blocking until ctx is
// cancelled, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.sched.Start(ctx)

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Port),
		Handler: a.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("서버 시작", zap.Int("port", a.cfg.Port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("서버 종료 중")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}

func (a *App) buildRouter(medicineSvc *medicine.Service, searchSvc *search.Service, taskSvc *taskqueue.Service) *gin.Engine {
	r := newRouter(a.log)

	api := r.Group("/api/v1")
	registerRoutes(api, medicineSvc, searchSvc, a.sched, taskSvc)
	return r
}
