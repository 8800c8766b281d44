package medicine

import (
	"context"
	"fmt"
	"time"

	"github.com/pilling-app/pilling-core/internal/models"
	"github.com/pilling-app/pilling-core/internal/modules/directory"
	"go.uber.org/zap"
)

// Summarizer is the AI capability the batch jobs depend on.
type Summarizer interface {
	Summarize(ctx context.Context, efficacyText string) (string, error)
	SummarizeWithKeyword(ctx context.Context, efficacyText, keyword string) (string, error)
}

// Directory is the page-fetch capability of the drug directory client.
type Directory interface {
	FetchPage(ctx context.Context, pageNo, pageSize int, f directory.Filters) (*directory.Page, error)
}

// Symptom keywords whose summaries are pregenerated for the most recently
// updated medicines.
var popularKeywords = []string{
	"두통", "감기", "소화불량", "변비", "설사",
	"알레르기", "염증", "통증", "발열", "기침",
}

const (
	bulkPages      = 10 // pages processed per bulk-populate run
	popularTopSize = 100

	summaryPlaceholder = "효능 정보 없음"
)

// Tasks holds the batch refresh jobs over the medicine cache. Every job is
// idempotent: population is guarded by existence checks and safe to re-run.
type Tasks struct {
	svc          *Service
	dir          Directory
	sum          Summarizer
	log          *zap.Logger
	batchSize    int
	delay        time.Duration
	popularDelay time.Duration
}

func NewTasks(svc *Service, dir Directory, sum Summarizer, log *zap.Logger, batchSize int, delay, popularDelay time.Duration) *Tasks {
	return &Tasks{
		svc:          svc,
		dir:          dir,
		sum:          sum,
		log:          log.Named("MedicineTasks"),
		batchSize:    batchSize,
		delay:        delay,
		popularDelay: popularDelay,
	}
}

// BulkResult summarizes one bulk-populate run.
type BulkResult struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Errors    int `json:"errors"`
}

// BulkPopulate walks directory pages from startPage and inserts medicines not
// yet cached, one summarizer call per new item with pacing in between.
// maxItems <= 0 means no cap. A page-level failure aborts the run with an
// error so the scheduler retries the whole job; per-item failures are logged
// and skipped.
func (t *Tasks) BulkPopulate(ctx context.Context, startPage, maxItems int) (*BulkResult, error) {
	res := &BulkResult{}

	for pageNo := startPage; pageNo < startPage+bulkPages; pageNo++ {
		page, err := t.dir.FetchPage(ctx, pageNo, t.batchSize, directory.Filters{})
		if err != nil {
			return res, fmt.Errorf("페이지 %d 처리 실패: %w", pageNo, err)
		}
		if page.TotalCount == 0 || len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			if maxItems > 0 && res.Processed >= maxItems {
				return res, nil
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}

			exists, err := t.svc.Exists(item.ItemName)
			if err != nil {
				res.Errors++
				t.log.Error("약물 처리 실패", zap.String("item", item.ItemName), zap.Error(err))
				continue
			}
			if exists {
				continue
			}

			summary := summaryPlaceholder
			if item.EfcyQesitm != "" {
				summary, err = t.sum.Summarize(ctx, item.EfcyQesitm)
				if err != nil {
					res.Errors++
					t.log.Error("약물 처리 실패", zap.String("item", item.ItemName), zap.Error(err))
					continue
				}
				if err := t.sleep(ctx, t.delay); err != nil {
					return res, err
				}
			}

			if _, err := t.svc.UpsertIfAbsent(&models.MedicineCacheModel{
				ItemName:        item.ItemName,
				EfcyOriginal:    item.EfcyQesitm,
				EfcySummary:     summary,
				ItemImage:       item.ItemImage,
				AtpnQesitm:      item.AtpnQesitm,
				IntrcQesitm:     item.IntrcQesitm,
				UseMethodQesitm: item.UseMethodQesitm,
				SeQesitm:        item.SeQesitm,
				CreatedFromAPI:  true,
				LastUpdated:     time.Now(),
			}); err != nil {
				res.Errors++
				t.log.Error("캐시 저장 실패", zap.String("item", item.ItemName), zap.Error(err))
				continue
			}

			res.Success++
			res.Processed++
		}
	}

	t.log.Info("배치 처리 완료",
		zap.Int("processed", res.Processed),
		zap.Int("success", res.Success),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

// RefreshSummaries recomputes summaries from the stored original efficacy
// text for the given medicine names (all cached medicines when empty) and
// bumps last_updated. Per-item failures are logged and skipped.
func (t *Tasks) RefreshSummaries(ctx context.Context, names []string) (int, error) {
	medicines, err := t.svc.FindByNames(names)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, m := range medicines {
		if m.EfcyOriginal == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		summary, err := t.sum.Summarize(ctx, m.EfcyOriginal)
		if err != nil {
			t.log.Error("약물 요약 갱신 실패", zap.String("item", m.ItemName), zap.Error(err))
			continue
		}
		if err := t.svc.UpdateSummary(m.ItemName, summary); err != nil {
			t.log.Error("약물 요약 갱신 실패", zap.String("item", m.ItemName), zap.Error(err))
			continue
		}
		updated++
		if err := t.sleep(ctx, t.delay); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// CleanupCustomSummaries removes keyword summaries older than daysOld days
// and returns the number deleted.
func (t *Tasks) CleanupCustomSummaries(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -daysOld)
	deleted, err := t.svc.DeleteCustomSummariesOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	t.log.Info("오래된 맞춤 요약 삭제 완료", zap.Int64("deleted", deleted))
	return deleted, nil
}

// GeneratePopularSummaries pregenerates keyword summaries for the cross
// product of the popular keyword list and the 100 most recently updated
// medicines, skipping pairs that already exist.
func (t *Tasks) GeneratePopularSummaries(ctx context.Context) (int, error) {
	medicines, err := t.svc.MostRecentlyUpdated(popularTopSize)
	if err != nil {
		return 0, err
	}

	generated := 0
	for _, m := range medicines {
		if m.EfcyOriginal == "" {
			continue
		}
		for _, keyword := range popularKeywords {
			if err := ctx.Err(); err != nil {
				return generated, err
			}

			existing, err := t.svc.FindCustomSummary(m.ItemName, keyword)
			if err != nil {
				t.log.Error("맞춤 요약 조회 실패", zap.String("item", m.ItemName), zap.String("keyword", keyword), zap.Error(err))
				continue
			}
			if existing != nil {
				continue
			}

			summary, err := t.sum.SummarizeWithKeyword(ctx, m.EfcyOriginal, keyword)
			if err != nil {
				t.log.Error("맞춤 요약 생성 실패", zap.String("item", m.ItemName), zap.String("keyword", keyword), zap.Error(err))
				continue
			}
			if err := t.svc.CreateCustomSummary(&models.CustomSummaryCacheModel{
				MedicineName:  m.ItemName,
				SearchKeyword: keyword,
				CustomSummary: summary,
			}); err != nil {
				// A concurrent writer already stored this pair.
				t.log.Warn("맞춤 요약 저장 건너뜀", zap.String("item", m.ItemName), zap.String("keyword", keyword), zap.Error(err))
				continue
			}

			generated++
			if err := t.sleep(ctx, t.popularDelay); err != nil {
				return generated, err
			}
		}
	}
	return generated, nil
}

func (t *Tasks) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
