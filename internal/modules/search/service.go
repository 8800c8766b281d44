package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pilling-app/pilling-core/internal/models"
	"github.com/pilling-app/pilling-core/internal/modules/directory"
	"github.com/pilling-app/pilling-core/internal/modules/medicine"
	"github.com/pilling-app/pilling-core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// ShapeBasic returns name/summary/image; ShapeDetail the full field set.
	ShapeBasic  = "basic"
	ShapeDetail = "detail"

	// detailPlaceholder renders any absent detail field so clients always
	// receive a non-empty string.
	detailPlaceholder = "이 정보가 제공되지 않는 약입니다. :("

	// summaryPlaceholder substitutes a failed live summarizer call.
	summaryPlaceholder = "효능 정보 없음"

	// TaskTypePopulate tags background cache-population task records.
	TaskTypePopulate = "cache:populate"

	fallbackPageSize = 10
)

var (
	// ErrNotFoundByName is returned when neither the cache nor the
	// directory knows the medicine name.
	ErrNotFoundByName = errors.New("해당하는 약 이름에 대한 약 정보가 없습니다.")
	// ErrNotFoundBySymptom is the symptom-search counterpart.
	ErrNotFoundBySymptom = errors.New("해당하는 증상에 대한 약 정보가 없습니다.")
)

// Medicine is one search result. Detail fields are only present in detail
// shape, where they are always non-empty (placeholder-substituted).
type Medicine struct {
	ItemName  string `json:"itemName"`
	Efcy      string `json:"efcy"`
	Image     string `json:"image"`
	Atpn      string `json:"atpn,omitempty"`
	Intrc     string `json:"intrc,omitempty"`
	UseMethod string `json:"usemethod,omitempty"`
	SeQ       string `json:"seQ,omitempty"`
}

// Summarizer is the AI capability the orchestrator depends on.
type Summarizer interface {
	Summarize(ctx context.Context, efficacyText string) (string, error)
	SummarizeWithKeyword(ctx context.Context, efficacyText, keyword string) (string, error)
}

// Directory is the page-fetch capability of the drug directory client.
type Directory interface {
	FetchPage(ctx context.Context, pageNo, pageSize int, f directory.Filters) (*directory.Page, error)
}

// Service orchestrates a search request: ephemeral cache, then store, then
// directory fallback with summarization and background population.
type Service struct {
	store      *medicine.Service
	cache      *Cache
	dir        Directory
	sum        Summarizer
	taskSvc    *taskqueue.Service
	log        *zap.Logger
	nameTTL    time.Duration
	symptomTTL time.Duration
}

func NewService(store *medicine.Service, cache *Cache, dir Directory, sum Summarizer, taskSvc *taskqueue.Service, log *zap.Logger, nameTTL, symptomTTL time.Duration) *Service {
	return &Service{
		store:      store,
		cache:      cache,
		dir:        dir,
		sum:        sum,
		taskSvc:    taskSvc,
		log:        log.Named("SearchService"),
		nameTTL:    nameTTL,
		symptomTTL: symptomTTL,
	}
}

// SearchByName looks up medicines by (partial) name.
func (s *Service) SearchByName(ctx context.Context, itemName, shape string) ([]Medicine, error) {
	// Legacy clients double-encode the query; everything after the first
	// '%' is an encoding artifact.
	if idx := strings.Index(itemName, "%"); idx >= 0 {
		itemName = itemName[:idx]
	}

	key := nameSearchKey(itemName, shape)
	var cached []Medicine
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		s.log.Info("캐시 히트", zap.String("itemName", itemName))
		return cached, nil
	}

	records, err := s.store.FindByName(itemName)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		s.log.Info("DB 캐시 히트", zap.String("itemName", itemName), zap.Int("count", len(records)))
		result := s.formatCached(records, shape)
		if err := s.cache.Set(ctx, key, result, s.nameTTL); err != nil {
			s.log.Warn("캐시 저장 실패", zap.Error(err))
		}
		return result, nil
	}

	s.log.Info("실시간 API 호출", zap.String("itemName", itemName))
	return s.fallbackSearch(ctx, itemName, "", shape, key, s.nameTTL)
}

// SearchBySymptom looks up medicines whose efficacy matches a symptom
// keyword. Store hits resolve a per-keyword custom summary for every
// candidate record, creating missing ones synchronously; the candidate set is
// already capped so the fan-out is bounded.
func (s *Service) SearchBySymptom(ctx context.Context, efcy, shape string) ([]Medicine, error) {
	key := symptomSearchKey(efcy, shape)
	var cached []Medicine
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	records, err := s.store.FindBySymptom(efcy)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		s.log.Info("증상 DB 캐시 히트", zap.String("efcy", efcy), zap.Int("count", len(records)))

		result := make([]Medicine, 0, len(records))
		for _, m := range records {
			// every candidate gets its keyword summary resolved, so a
			// detail search also warms the pair cache
			summary := s.resolveCustomSummary(ctx, &m, efcy)
			if shape == ShapeDetail {
				result = append(result, formatDetail(&m))
				continue
			}
			result = append(result, Medicine{
				ItemName: m.ItemName,
				Efcy:     summary,
				Image:    m.ItemImage,
			})
		}

		if err := s.cache.Set(ctx, key, result, s.symptomTTL); err != nil {
			s.log.Warn("캐시 저장 실패", zap.Error(err))
		}
		return result, nil
	}

	return s.fallbackSearch(ctx, "", efcy, shape, key, s.symptomTTL)
}

// resolveCustomSummary returns the keyword-biased summary for one cached
// medicine, generating and persisting it on first miss. A duplicate-key
// failure means a concurrent request beat us to it; the computed summary is
// still valid for this response. On summarizer failure the generic stored
// summary stands in.
func (s *Service) resolveCustomSummary(ctx context.Context, m *models.MedicineCacheModel, keyword string) string {
	existing, err := s.store.FindCustomSummary(m.ItemName, keyword)
	if err == nil && existing != nil {
		return existing.CustomSummary
	}

	summary, err := s.sum.SummarizeWithKeyword(ctx, m.EfcyOriginal, keyword)
	if err != nil {
		s.log.Warn("맞춤 요약 생성 실패", zap.String("item", m.ItemName), zap.String("keyword", keyword), zap.Error(err))
		if m.EfcySummary != "" {
			return m.EfcySummary
		}
		return summaryPlaceholder
	}

	if err := s.store.CreateCustomSummary(&models.CustomSummaryCacheModel{
		MedicineName:  m.ItemName,
		SearchKeyword: keyword,
		CustomSummary: summary,
	}); err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		s.log.Warn("맞춤 요약 저장 실패", zap.String("item", m.ItemName), zap.Error(err))
	}
	return summary
}

// fallbackSearch queries the live directory API when both cache tiers miss.
func (s *Service) fallbackSearch(ctx context.Context, itemName, efcy, shape, cacheKey string, ttl time.Duration) ([]Medicine, error) {
	page, err := s.dir.FetchPage(ctx, 1, fallbackPageSize, directory.Filters{
		ItemName:   itemName,
		EfcyQesitm: efcy,
	})
	if err != nil {
		s.log.Error("공공데이터 API 호출 실패", zap.Error(err))
		return nil, err
	}
	if page.TotalCount == 0 || len(page.Items) == 0 {
		if itemName != "" {
			return nil, ErrNotFoundByName
		}
		return nil, ErrNotFoundBySymptom
	}

	// Detail shape renders raw directory fields directly; no AI involved.
	if shape == ShapeDetail {
		result := make([]Medicine, 0, len(page.Items))
		for _, item := range page.Items {
			result = append(result, Medicine{
				ItemName:  item.ItemName,
				Efcy:      orPlaceholder(item.EfcyQesitm),
				Image:     item.ItemImage,
				Atpn:      orPlaceholder(item.AtpnQesitm),
				Intrc:     orPlaceholder(item.IntrcQesitm),
				UseMethod: orPlaceholder(item.UseMethodQesitm),
				SeQ:       orPlaceholder(item.SeQesitm),
			})
		}
		return result, nil
	}

	result := make([]Medicine, 0, len(page.Items))
	for _, item := range page.Items {
		summary := summaryPlaceholder
		if item.EfcyQesitm != "" {
			var sumErr error
			if efcy != "" {
				summary, sumErr = s.sum.SummarizeWithKeyword(ctx, item.EfcyQesitm, efcy)
			} else {
				summary, sumErr = s.sum.Summarize(ctx, item.EfcyQesitm)
			}
			if sumErr != nil {
				s.log.Error("약물 처리 실패", zap.String("item", item.ItemName), zap.Error(sumErr))
				summary = summaryPlaceholder
			}
		}

		result = append(result, Medicine{
			ItemName: item.ItemName,
			Efcy:     summary,
			Image:    item.ItemImage,
		})

		s.populateInBackground(item, summary)
	}

	if err := s.cache.Set(ctx, cacheKey, result, ttl); err != nil {
		s.log.Warn("캐시 저장 실패", zap.Error(err))
	}
	return result, nil
}

// populatePayload records what a background population task writes.
type populatePayload struct {
	ItemName string `json:"item_name"`
	Summary  string `json:"summary"`
}

// populateInBackground persists a directory item into the medicine store
// without blocking the response. Failures are recorded on the task and
// logged, never surfaced to the requester.
func (s *Service) populateInBackground(item directory.Item, summary string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	task, err := s.taskSvc.Enqueue(ctx, TaskTypePopulate, populatePayload{
		ItemName: item.ItemName,
		Summary:  summary,
	}, item.ItemName)
	if err != nil {
		cancel()
		s.log.Warn("백그라운드 작업 등록 실패", zap.String("item", item.ItemName), zap.Error(err))
		return
	}
	if task == nil || task.Status != taskqueue.TaskPending {
		cancel()
		return
	}

	go func() {
		defer cancel()
		s.taskSvc.UpdateStatus(ctx, task.ID, taskqueue.TaskRunning, nil, "")

		inserted, err := s.store.UpsertIfAbsent(&models.MedicineCacheModel{
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
		})
		if err != nil {
			s.log.Error("캐시 저장 실패", zap.String("item", item.ItemName), zap.Error(err))
			s.taskSvc.UpdateStatus(ctx, task.ID, taskqueue.TaskFailed, nil, err.Error())
			return
		}
		s.taskSvc.UpdateStatus(ctx, task.ID, taskqueue.TaskCompleted, map[string]bool{"inserted": inserted}, "")
	}()
}

func (s *Service) formatCached(records []models.MedicineCacheModel, shape string) []Medicine {
	result := make([]Medicine, 0, len(records))
	for _, m := range records {
		if shape == ShapeDetail {
			result = append(result, formatDetail(&m))
		} else {
			result = append(result, Medicine{
				ItemName: m.ItemName,
				Efcy:     m.EfcySummary,
				Image:    m.ItemImage,
			})
		}
	}
	return result
}

func formatDetail(m *models.MedicineCacheModel) Medicine {
	return Medicine{
		ItemName:  m.ItemName,
		Efcy:      orPlaceholder(m.EfcyOriginal),
		Image:     m.ItemImage,
		Atpn:      orPlaceholder(m.AtpnQesitm),
		Intrc:     orPlaceholder(m.IntrcQesitm),
		UseMethod: orPlaceholder(m.UseMethodQesitm),
		SeQ:       orPlaceholder(m.SeQesitm),
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return detailPlaceholder
	}
	return s
}
