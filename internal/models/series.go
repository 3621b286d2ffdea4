package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type SeriesMode string

const (
	SeriesPractice SeriesMode = "practice"
	SeriesLive     SeriesMode = "live"
	SeriesOfficial SeriesMode = "official"
)

// TestSeries is the published definition a student attempts against. Once an
// attempt has been started the bound question set never changes, even if the
// series' pools are later resampled or edited.
type TestSeries struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Title       string     `json:"title" gorm:"not null;size:255"`
	Description *string    `json:"description" gorm:"type:text"`
	Mode        SeriesMode `json:"mode" gorm:"default:practice;index"`

	// Timing
	Duration int        `json:"duration" gorm:"not null"` // minutes
	StartAt  *time.Time `json:"start_at"`                 // live mode window
	EndAt    *time.Time `json:"end_at"`

	// Attempt policy
	MaxAttempts           int  `json:"max_attempts" gorm:"default:1"`
	StrictMode            bool `json:"strict_mode"` // enables the anti-cheat monitor
	RandomizeSectionOrder bool `json:"randomize_section_order"`

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Sections []Section       `json:"sections" gorm:"foreignKey:SeriesID"`
	Variants []SeriesVariant `json:"variants" gorm:"foreignKey:SeriesID"`
}

func (TestSeries) TableName() string {
	return "test_series"
}

// SeriesVariant is one alternate arrangement of a series (Set A, Set B).
// Sections carry an optional variant id; an attempt is bound against the
// sections of exactly one variant plus the variant-less common sections.
type SeriesVariant struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	SeriesID uint   `json:"series_id" gorm:"not null;index"`
	Label    string `json:"label" gorm:"not null;size:50"`
	Order    int    `json:"order" gorm:"not null;column:display_order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SeriesVariant) TableName() string {
	return "series_variants"
}

// WindowOpen reports whether the series can be started at the given instant.
// Practice and official series have no window.
func (s *TestSeries) WindowOpen(now time.Time) bool {
	if s.Mode != SeriesLive {
		return true
	}
	if s.StartAt != nil && now.Before(*s.StartAt) {
		return false
	}
	if s.EndAt != nil && now.After(*s.EndAt) {
		return false
	}
	return true
}

// Section groups questions within a series. A section is either fixed
// (question_ids) or pool-based (question_pool + questions_to_select).
type Section struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	SeriesID uint   `json:"series_id" gorm:"not null;index"`
	Title    string `json:"title" gorm:"not null;size:255"`
	Order    int    `json:"order" gorm:"not null;column:display_order"`

	// Nil means the section is common to every variant.
	VariantID *uint `json:"variant_id" gorm:"index"`

	QuestionIDs       datatypes.JSON `json:"question_ids" gorm:"type:jsonb"`
	QuestionPool      datatypes.JSON `json:"question_pool" gorm:"type:jsonb"`
	QuestionsToSelect int            `json:"questions_to_select"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Section) TableName() string {
	return "sections"
}

// GetQuestionIDs decodes the fixed question list. Absent column means an
// empty list, not an error.
func (s *Section) GetQuestionIDs() ([]uint, error) {
	return decodeIDList(s.QuestionIDs)
}

// GetQuestionPool decodes the pool the selector samples from.
func (s *Section) GetQuestionPool() ([]uint, error) {
	return decodeIDList(s.QuestionPool)
}

// ExpectedQuestionCount is the number of slots this section contributes to a
// bound attempt: fixed-list length plus the pool pick count.
func (s *Section) ExpectedQuestionCount() (int, error) {
	fixed, err := s.GetQuestionIDs()
	if err != nil {
		return 0, err
	}
	return len(fixed) + s.QuestionsToSelect, nil
}

func decodeIDList(raw datatypes.JSON) ([]uint, error) {
	if len(raw) == 0 {
		return []uint{}, nil
	}
	var ids []uint
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
