package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// DefaultLanguage is the translation used when the caller does not ask for a
// specific one. Every question is expected to carry at least this translation.
const DefaultLanguage = "en"

// EntityRef is a normalized reference to a question-bank entity
// (subject/topic/branch). The name is denormalized at write time so readers
// never branch on "is this an id or a populated object".
type EntityRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name,omitempty"`
}

// QuestionOption is one selectable option inside a translation. Option IDs
// are stable across translations of the same question, which is what makes
// grading language-independent.
type QuestionOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// QuestionTranslation is the per-language rendering of a question.
type QuestionTranslation struct {
	Text        string           `json:"text"`
	Options     []QuestionOption `json:"options"`
	Explanation string           `json:"explanation,omitempty"`
}

// Question is owned by the question bank and read-only to this service.
type Question struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	Difficulty DifficultyLevel `json:"difficulty" gorm:"default:medium;index"`
	Marks      int             `json:"marks" gorm:"not null;default:1"`

	// Per-language translations keyed by language code.
	Translations datatypes.JSON `json:"translations" gorm:"type:jsonb"`

	// Normalized references, resolved once on write.
	Subject datatypes.JSON `json:"subject" gorm:"type:jsonb"`
	Topic   datatypes.JSON `json:"topic" gorm:"type:jsonb"`
	Branch  datatypes.JSON `json:"branch" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

// GetTranslations decodes the translation map.
func (q *Question) GetTranslations() (map[string]QuestionTranslation, error) {
	translations := make(map[string]QuestionTranslation)
	if len(q.Translations) == 0 {
		return translations, nil
	}
	if err := json.Unmarshal(q.Translations, &translations); err != nil {
		return nil, fmt.Errorf("question %d: invalid translations: %w", q.ID, err)
	}
	return translations, nil
}

// Translation returns the requested language, falling back to the default
// and then to any available translation.
func (q *Question) Translation(language string) (QuestionTranslation, error) {
	translations, err := q.GetTranslations()
	if err != nil {
		return QuestionTranslation{}, err
	}
	if t, ok := translations[language]; ok {
		return t, nil
	}
	if t, ok := translations[DefaultLanguage]; ok {
		return t, nil
	}
	for _, t := range translations {
		return t, nil
	}
	return QuestionTranslation{}, fmt.Errorf("question %d has no translations", q.ID)
}

// CorrectOptionIDs returns the answer key as a set of option ids. Option ids
// are translation-stable, so any translation yields the same key.
func (q *Question) CorrectOptionIDs() ([]string, error) {
	t, err := q.Translation(DefaultLanguage)
	if err != nil {
		return nil, err
	}
	var correct []string
	for _, opt := range t.Options {
		if opt.IsCorrect {
			correct = append(correct, opt.ID)
		}
	}
	return correct, nil
}

// GetSubject decodes the normalized subject reference.
func (q *Question) GetSubject() (EntityRef, error) {
	return decodeEntityRef(q.Subject)
}

// GetTopic decodes the normalized topic reference.
func (q *Question) GetTopic() (EntityRef, error) {
	return decodeEntityRef(q.Topic)
}

// GetBranch decodes the normalized branch reference.
func (q *Question) GetBranch() (EntityRef, error) {
	return decodeEntityRef(q.Branch)
}

func decodeEntityRef(raw datatypes.JSON) (EntityRef, error) {
	var ref EntityRef
	if len(raw) == 0 {
		return ref, nil
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		return ref, err
	}
	return ref, nil
}
