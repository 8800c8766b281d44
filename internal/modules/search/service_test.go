package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pilling-app/pilling-core/internal/models"
	"github.com/pilling-app/pilling-core/internal/modules/directory"
	"github.com/pilling-app/pilling-core/internal/modules/medicine"
	redisc "github.com/pilling-app/pilling-core/internal/pkg/redis"
	"github.com/pilling-app/pilling-core/internal/pkg/taskqueue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubDirectory records the last filters it was called with.
type stubDirectory struct {
	page    *directory.Page
	err     error
	calls   int
	lastFil directory.Filters
}

func (d *stubDirectory) FetchPage(ctx context.Context, pageNo, pageSize int, f directory.Filters) (*directory.Page, error) {
	d.calls++
	d.lastFil = f
	if d.err != nil {
		return nil, d.err
	}
	if d.page == nil {
		return &directory.Page{}, nil
	}
	return d.page, nil
}

type stubSummarizer struct {
	calls        int
	keywordCalls int
	err          error
}

func (s *stubSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "요약: " + text, nil
}

func (s *stubSummarizer) SummarizeWithKeyword(ctx context.Context, text, keyword string) (string, error) {
	s.keywordCalls++
	if s.err != nil {
		return "", s.err
	}
	return keyword + " 요약", nil
}

type testEnv struct {
	svc   *Service
	store *medicine.Service
	cache *Cache
	dir   *stubDirectory
	sum   *stubSummarizer
	db    *gorm.DB
	mr    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.MedicineCacheModel{}, &models.CustomSummaryCacheModel{}))

	mr := miniredis.RunT(t)
	rc := redisc.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	store := medicine.NewService(db)
	cache := NewCache(rc)
	dir := &stubDirectory{}
	sum := &stubSummarizer{}
	taskSvc := taskqueue.NewService(rc)

	svc := NewService(store, cache, dir, sum, taskSvc, zap.NewNop(), time.Hour, 30*time.Minute)
	return &testEnv{svc: svc, store: store, cache: cache, dir: dir, sum: sum, db: db, mr: mr}
}

func seedMedicine(t *testing.T, store *medicine.Service, m models.MedicineCacheModel) {
	t.Helper()
	inserted, err := store.UpsertIfAbsent(&m)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestSearchByNameStoreHitSkipsSummarizerAndDirectory(t *testing.T) {
	env := newTestEnv(t)
	seedMedicine(t, env.store, models.MedicineCacheModel{
		ItemName:     "타이레놀정",
		EfcyOriginal: "두통, 발열에 사용",
		EfcySummary:  "두통 해열",
		ItemImage:    "https://img.example/tylenol.jpg",
	})

	result, err := env.svc.SearchByName(context.Background(), "타이레놀정", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "타이레놀정", result[0].ItemName)
	assert.Equal(t, "두통 해열", result[0].Efcy)
	assert.Equal(t, "https://img.example/tylenol.jpg", result[0].Image)
	assert.Empty(t, result[0].Atpn)

	assert.Equal(t, 0, env.dir.calls)
	assert.Equal(t, 0, env.sum.calls)
}

func TestSearchByNameEphemeralHitSkipsStore(t *testing.T) {
	env := newTestEnv(t)
	seedMedicine(t, env.store, models.MedicineCacheModel{
		ItemName:    "타이레놀정",
		EfcySummary: "두통 해열",
	})

	_, err := env.svc.SearchByName(context.Background(), "타이레놀정", ShapeBasic)
	require.NoError(t, err)

	// the store row is gone but the ephemeral entry still answers
	require.NoError(t, env.db.Unscoped().
		Where("item_name = ?", "타이레놀정").
		Delete(&models.MedicineCacheModel{}).Error)
	env.dir.err = directory.ErrUnavailable

	result, err := env.svc.SearchByName(context.Background(), "타이레놀정", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "두통 해열", result[0].Efcy)
	assert.Equal(t, 0, env.dir.calls)
}

func TestSearchByNameShapesCacheSeparately(t *testing.T) {
	env := newTestEnv(t)
	seedMedicine(t, env.store, models.MedicineCacheModel{
		ItemName:     "타이레놀정",
		EfcyOriginal: "두통, 발열에 사용",
		EfcySummary:  "두통 해열",
		AtpnQesitm:   "과량 복용 금지",
	})

	basic, err := env.svc.SearchByName(context.Background(), "타이레놀정", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, basic, 1)
	assert.Empty(t, basic[0].Atpn)

	detail, err := env.svc.SearchByName(context.Background(), "타이레놀정", ShapeDetail)
	require.NoError(t, err)
	require.Len(t, detail, 1)
	assert.Equal(t, "두통, 발열에 사용", detail[0].Efcy)
	assert.Equal(t, "과량 복용 금지", detail[0].Atpn)
	assert.Equal(t, detailPlaceholder, detail[0].Intrc)
}

func TestSearchByNameStripsEncodingArtifacts(t *testing.T) {
	env := newTestEnv(t)
	env.dir.page = &directory.Page{} // empty result

	_, err := env.svc.SearchByName(context.Background(), "타이레놀%EC%A0%95", ShapeBasic)
	assert.ErrorIs(t, err, ErrNotFoundByName)
	assert.Equal(t, "타이레놀", env.dir.lastFil.ItemName)
}

func TestSearchByNameFallbackPopulatesStore(t *testing.T) {
	env := newTestEnv(t)
	env.dir.page = &directory.Page{
		TotalCount: 1,
		Items: []directory.Item{{
			ItemName:   "아스피린",
			EfcyQesitm: "해열, 진통, 소염에 사용",
			ItemImage:  "https://img.example/aspirin.jpg",
		}},
	}

	result, err := env.svc.SearchByName(context.Background(), "아스피린", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "요약: 해열, 진통, 소염에 사용", result[0].Efcy)
	assert.Equal(t, 1, env.sum.calls)

	// background population writes the durable row
	require.Eventually(t, func() bool {
		exists, err := env.store.Exists("아스피린")
		return err == nil && exists
	}, 2*time.Second, 10*time.Millisecond)

	rows, err := env.store.FindByName("아스피린")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].CreatedFromAPI)
	assert.Equal(t, "요약: 해열, 진통, 소염에 사용", rows[0].EfcySummary)
}

func TestSearchByNameFallbackSummarizerFailureUsesPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	env.dir.page = &directory.Page{
		TotalCount: 1,
		Items:      []directory.Item{{ItemName: "아스피린", EfcyQesitm: "해열, 진통"}},
	}
	env.sum.err = errors.New("quota exceeded")

	result, err := env.svc.SearchByName(context.Background(), "아스피린", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, summaryPlaceholder, result[0].Efcy)
}

func TestSearchByNameFallbackDetailSkipsSummarizer(t *testing.T) {
	env := newTestEnv(t)
	env.dir.page = &directory.Page{
		TotalCount: 1,
		Items: []directory.Item{{
			ItemName:   "아스피린",
			EfcyQesitm: "해열, 진통, 소염에 사용",
		}},
	}

	result, err := env.svc.SearchByName(context.Background(), "아스피린", ShapeDetail)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "해열, 진통, 소염에 사용", result[0].Efcy)
	assert.Equal(t, detailPlaceholder, result[0].Atpn)
	assert.Equal(t, detailPlaceholder, result[0].UseMethod)
	assert.Equal(t, 0, env.sum.calls)
}

func TestSearchByNameNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.dir.page = &directory.Page{}

	_, err := env.svc.SearchByName(context.Background(), "존재하지않는약", ShapeBasic)
	assert.ErrorIs(t, err, ErrNotFoundByName)
}

func TestSearchByNameDirectoryDown(t *testing.T) {
	env := newTestEnv(t)
	env.dir.err = fmt.Errorf("%w: connection refused", directory.ErrUnavailable)

	_, err := env.svc.SearchByName(context.Background(), "타이레놀정", ShapeBasic)
	assert.ErrorIs(t, err, directory.ErrUnavailable)
}

func TestSearchBySymptomCreatesCustomSummaryOnce(t *testing.T) {
	env := newTestEnv(t)
	seedMedicine(t, env.store, models.MedicineCacheModel{
		ItemName:     "타이레놀정",
		EfcyOriginal: "두통, 발열에 사용",
		EfcySummary:  "두통 해열",
	})

	result, err := env.svc.SearchBySymptom(context.Background(), "두통", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "두통 요약", result[0].Efcy)
	assert.Equal(t, 1, env.sum.keywordCalls)

	cs, err := env.store.FindCustomSummary("타이레놀정", "두통")
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, "두통 요약", cs.CustomSummary)

	// after the ephemeral entry expires the stored pair answers, no new call
	env.mr.FlushAll()
	result, err = env.svc.SearchBySymptom(context.Background(), "두통", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "두통 요약", result[0].Efcy)
	assert.Equal(t, 1, env.sum.keywordCalls)
}

func TestSearchBySymptomDetailWarmsKeywordSummaries(t *testing.T) {
	env := newTestEnv(t)
	seedMedicine(t, env.store, models.MedicineCacheModel{
		ItemName:     "타이레놀정",
		EfcyOriginal: "두통, 발열에 사용",
		EfcySummary:  "두통 해열",
		AtpnQesitm:   "과량 복용 금지",
	})

	result, err := env.svc.SearchBySymptom(context.Background(), "두통", ShapeDetail)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "두통, 발열에 사용", result[0].Efcy)
	assert.Equal(t, "과량 복용 금지", result[0].Atpn)

	// the detail response carries raw fields, but the keyword pair is
	// still resolved and persisted for later basic searches
	assert.Equal(t, 1, env.sum.keywordCalls)
	cs, err := env.store.FindCustomSummary("타이레놀정", "두통")
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, "두통 요약", cs.CustomSummary)

	// a later basic search reuses the pair
	basic, err := env.svc.SearchBySymptom(context.Background(), "두통", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, basic, 1)
	assert.Equal(t, "두통 요약", basic[0].Efcy)
	assert.Equal(t, 1, env.sum.keywordCalls)
}

func TestSearchBySymptomSummarizerFailureFallsBackToStoredSummary(t *testing.T) {
	env := newTestEnv(t)
	seedMedicine(t, env.store, models.MedicineCacheModel{
		ItemName:     "타이레놀정",
		EfcyOriginal: "두통, 발열에 사용",
		EfcySummary:  "두통 해열",
	})
	env.sum.err = errors.New("quota exceeded")

	result, err := env.svc.SearchBySymptom(context.Background(), "두통", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "두통 해열", result[0].Efcy)

	// nothing is persisted for the failed pair
	cs, err := env.store.FindCustomSummary("타이레놀정", "두통")
	require.NoError(t, err)
	assert.Nil(t, cs)
}

func TestSearchBySymptomNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.dir.page = &directory.Page{}

	_, err := env.svc.SearchBySymptom(context.Background(), "희귀증상", ShapeBasic)
	assert.ErrorIs(t, err, ErrNotFoundBySymptom)
	assert.Equal(t, "희귀증상", env.dir.lastFil.EfcyQesitm)
}

func TestSearchBySymptomFallbackUsesKeywordSummary(t *testing.T) {
	env := newTestEnv(t)
	env.dir.page = &directory.Page{
		TotalCount: 1,
		Items:      []directory.Item{{ItemName: "판콜에이", EfcyQesitm: "감기 증상 완화"}},
	}

	result, err := env.svc.SearchBySymptom(context.Background(), "감기", ShapeBasic)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "감기 요약", result[0].Efcy)
	assert.Equal(t, 1, env.sum.keywordCalls)
	assert.Equal(t, 0, env.sum.calls)
}
