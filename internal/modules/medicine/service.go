package medicine

import (
	"errors"
	"strings"
	"time"

	"github.com/pilling-app/pilling-core/internal/models"
	"github.com/pilling-app/pilling-core/internal/pkg/pagination"
	"github.com/pilling-app/pilling-core/internal/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// searchResultLimit caps store lookups for both search paths.
const searchResultLimit = 10

// Service is the durable medicine cache store. It is the single source of
// truth behind the ephemeral search cache.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// escapeLike neutralizes LIKE wildcards in user input so a query containing
// '%' or '_' matches those characters literally. '!' is the escape character
// because a literal backslash means different things to mysql and sqlite.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// FindByName returns cached medicines whose name equals or contains the query
// (case-insensitive). Exact matches sort before partial matches; within each
// group insertion order is kept.
func (s *Service) FindByName(name string) ([]models.MedicineCacheModel, error) {
	var items []models.MedicineCacheModel
	err := s.db.
		Where("LOWER(item_name) = LOWER(?) OR LOWER(item_name) LIKE LOWER(?) ESCAPE '!'", name, "%"+escapeLike(name)+"%").
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN LOWER(item_name) = LOWER(?) THEN 0 ELSE 1 END, created_at",
			Vars:               []interface{}{name},
			WithoutParentheses: true,
		}}).
		Limit(searchResultLimit).
		Find(&items).Error
	return items, err
}

// FindBySymptom returns cached medicines whose original or summarized
// efficacy text contains the keyword (case-insensitive).
func (s *Service) FindBySymptom(keyword string) ([]models.MedicineCacheModel, error) {
	var items []models.MedicineCacheModel
	pattern := "%" + escapeLike(keyword) + "%"
	err := s.db.
		Where("LOWER(efcy_original) LIKE LOWER(?) ESCAPE '!' OR LOWER(efcy_summary) LIKE LOWER(?) ESCAPE '!'", pattern, pattern).
		Limit(searchResultLimit).
		Find(&items).Error
	return items, err
}

// Exists reports whether a medicine with the given name is already cached.
func (s *Service) Exists(itemName string) (bool, error) {
	var count int64
	err := s.db.Model(&models.MedicineCacheModel{}).
		Where("item_name = ?", itemName).
		Count(&count).Error
	return count > 0, err
}

// UpsertIfAbsent inserts the record unless a row with the same item name
// already exists. An existing row is never overwritten — a curated summary
// must survive re-population. Returns whether a row was inserted.
func (s *Service) UpsertIfAbsent(rec *models.MedicineCacheModel) (bool, error) {
	exists, err := s.Exists(rec.ItemName)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = time.Now()
	}
	if err := s.db.Create(rec).Error; err != nil {
		// A concurrent writer won the race; that row stands.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateSummary replaces the stored summary and bumps last_updated.
func (s *Service) UpdateSummary(itemName, summary string) error {
	return s.db.Model(&models.MedicineCacheModel{}).
		Where("item_name = ?", itemName).
		Updates(map[string]interface{}{
			"efcy_summary": summary,
			"last_updated": time.Now(),
		}).Error
}

// FindCustomSummary returns the keyword-biased summary for a medicine, or nil
// when none exists.
func (s *Service) FindCustomSummary(medicineName, keyword string) (*models.CustomSummaryCacheModel, error) {
	var cs models.CustomSummaryCacheModel
	err := s.db.
		Where("medicine_name = ? AND search_keyword = ?", medicineName, keyword).
		First(&cs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// CreateCustomSummary persists a keyword-biased summary. Concurrent creates
// on the same (medicine, keyword) pair surface gorm.ErrDuplicatedKey; the
// first writer wins and callers treat the error as benign.
func (s *Service) CreateCustomSummary(cs *models.CustomSummaryCacheModel) error {
	return s.db.Create(cs).Error
}

// DeleteCustomSummariesOlderThan hard-deletes keyword summaries created
// strictly before the cutoff and returns the number removed.
func (s *Service) DeleteCustomSummariesOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.CustomSummaryCacheModel{})
	return result.RowsAffected, result.Error
}

// MostRecentlyUpdated returns up to limit cached medicines ordered by
// last_updated descending. Used by the popular-summary pregeneration job.
func (s *Service) MostRecentlyUpdated(limit int) ([]models.MedicineCacheModel, error) {
	var items []models.MedicineCacheModel
	err := s.db.Order("last_updated DESC").Limit(limit).Find(&items).Error
	return items, err
}

// FindByNames returns cached medicines whose names are in the given set, or
// all cached medicines when names is empty.
func (s *Service) FindByNames(names []string) ([]models.MedicineCacheModel, error) {
	tx := s.db.Model(&models.MedicineCacheModel{})
	if len(names) > 0 {
		tx = tx.Where("item_name IN ?", names)
	}
	var items []models.MedicineCacheModel
	err := tx.Find(&items).Error
	return items, err
}

// Stats describes the cache for the admin endpoint.
type Stats struct {
	TotalCachedMedicines int64      `json:"total_cached_medicines"`
	TotalCustomSummaries int64      `json:"total_custom_summaries"`
	LastUpdated          *time.Time `json:"last_updated"`
}

// GetStats returns cache row counts and the most recent summary update time.
func (s *Service) GetStats() (*Stats, error) {
	var stats Stats
	if err := s.db.Model(&models.MedicineCacheModel{}).Count(&stats.TotalCachedMedicines).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.CustomSummaryCacheModel{}).Count(&stats.TotalCustomSummaries).Error; err != nil {
		return nil, err
	}
	if stats.TotalCachedMedicines > 0 {
		var latest models.MedicineCacheModel
		if err := s.db.Order("last_updated DESC").First(&latest).Error; err == nil {
			stats.LastUpdated = &latest.LastUpdated
		}
	}
	return &stats, nil
}

// ListCached returns a page of cached medicines for the admin listing,
// newest summaries first.
func (s *Service) ListCached(q pagination.Query) ([]models.MedicineCacheModel, response.Pagination, error) {
	tx := s.db.Model(&models.MedicineCacheModel{}).Order("last_updated DESC")
	var items []models.MedicineCacheModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}
