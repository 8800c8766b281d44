package app

import (
	"context"
	"time"

	"github.com/pilling-app/pilling-core/internal/pkg/cron"
	"go.uber.org/zap"
)

const (
	bulkPopulateMaxItems = 500
	cleanupDays          = 30
)

// registerJobs installs the recurring maintenance jobs. The bulk populate
// job gets framework-level retries because the public directory API flakes
// under load; the others are cheap enough to just wait for the next tick.
func (a *App) registerJobs() {
	log := a.log.Named("CronService")

	a.sched.Register(cron.Job{
		Name:        "medicine_cache_populate",
		Description: "공공 의약품 데이터로 캐시 일괄 생성",
		Interval:    7 * 24 * time.Hour,
		MaxRetries:  3,
		RetryDelay:  60 * time.Second,
		Fn: func(ctx context.Context) error {
			res, err := a.tasks.BulkPopulate(ctx, 1, bulkPopulateMaxItems)
			if err != nil {
				return err
			}
			log.Info("캐시 일괄 생성 완료",
				zap.Int("processed", res.Processed),
				zap.Int("success", res.Success),
				zap.Int("errors", res.Errors),
			)
			return nil
		},
	})

	a.sched.Register(cron.Job{
		Name:        "medicine_summary_refresh",
		Description: "저장된 효능 원문으로 요약 재생성",
		Interval:    7 * 24 * time.Hour,
		Fn: func(ctx context.Context) error {
			updated, err := a.tasks.RefreshSummaries(ctx, nil)
			if err != nil {
				return err
			}
			log.Info("요약 갱신 완료", zap.Int("updated", updated))
			return nil
		},
	})

	a.sched.Register(cron.Job{
		Name:        "custom_summary_cleanup",
		Description: "30일 지난 맞춤 요약 삭제",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			_, err := a.tasks.CleanupCustomSummaries(ctx, cleanupDays)
			return err
		},
	})

	a.sched.Register(cron.Job{
		Name:        "popular_summary_generate",
		Description: "인기 검색어 맞춤 요약 사전 생성",
		Interval:    7 * 24 * time.Hour,
		Fn: func(ctx context.Context) error {
			created, err := a.tasks.GeneratePopularSummaries(ctx)
			if err != nil {
				return err
			}
			log.Info("인기 검색어 요약 생성 완료", zap.Int("created", created))
			return nil
		},
	})
}
