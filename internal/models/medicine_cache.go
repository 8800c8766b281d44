package models

import "time"

// MedicineCacheModel caches one medicine from the public drug directory together
// with its AI-generated efficacy summary. Rows are inserted by batch preprocessing
// or by background population during live search, never overwritten by either.
type MedicineCacheModel struct {
	Base
	ItemName        string    `json:"item_name"         gorm:"uniqueIndex;not null"`
	EfcyOriginal    string    `json:"efcy_original"     gorm:"type:text"`
	EfcySummary     string    `json:"efcy_summary"      gorm:"type:text"`
	ItemImage       string    `json:"item_image"`
	AtpnQesitm      string    `json:"atpn_qesitm"       gorm:"type:text"`
	IntrcQesitm     string    `json:"intrc_qesitm"      gorm:"type:text"`
	UseMethodQesitm string    `json:"use_method_qesitm" gorm:"type:text"`
	SeQesitm        string    `json:"se_qesitm"         gorm:"type:text"`
	CreatedFromAPI  bool      `json:"created_from_api"`
	LastUpdated     time.Time `json:"last_updated"` // bumped only when the summary is regenerated
}

func (MedicineCacheModel) TableName() string { return "medicine_caches" }

// CustomSummaryCacheModel stores a keyword-biased efficacy summary, at most one
// per (medicine, keyword) pair. Rows are created lazily on symptom-search misses
// and bulk-deleted by the cleanup job after the retention window.
type CustomSummaryCacheModel struct {
	Base
	MedicineName  string `json:"medicine_name"  gorm:"uniqueIndex:idx_medicine_keyword;not null"`
	SearchKeyword string `json:"search_keyword" gorm:"uniqueIndex:idx_medicine_keyword;not null"`
	CustomSummary string `json:"custom_summary" gorm:"type:text;not null"`
}

func (CustomSummaryCacheModel) TableName() string { return "custom_summary_caches" }
