package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

// fakeStore is the shared in-memory backing of the fake repository. All
// sub-repositories mutate the same store, so transactional code paths see a
// consistent view just like they would against one database.
type fakeStore struct {
	mu sync.Mutex

	series    map[uint]*models.TestSeries
	questions map[uint]*models.Question
	attempts  map[uint]*models.TestAttempt
	responses map[uint][]models.AttemptResponse
	events    map[uint][]models.CheatingEvent
	counters  map[string]*models.AttemptCounter

	nextAttemptID  uint
	nextResponseID uint
	nextEventID    uint

	// failVersionNext makes the next UpdateWithVersion calls fail with a
	// version conflict, simulating a racing writer.
	failVersionNext int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		series:    make(map[uint]*models.TestSeries),
		questions: make(map[uint]*models.Question),
		attempts:  make(map[uint]*models.TestAttempt),
		responses: make(map[uint][]models.AttemptResponse),
		events:    make(map[uint][]models.CheatingEvent),
		counters:  make(map[string]*models.AttemptCounter),
	}
}

func counterKey(studentID string, seriesID uint) string {
	return fmt.Sprintf("%s:%d", studentID, seriesID)
}

type fakeRepo struct {
	store *fakeStore
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{store: newFakeStore()}
}

func (r *fakeRepo) Series() repositories.SeriesRepository   { return &fakeSeriesRepo{r.store} }
func (r *fakeRepo) Question() repositories.QuestionRepository { return &fakeQuestionRepo{r.store} }
func (r *fakeRepo) Attempt() repositories.AttemptRepository { return &fakeAttemptRepo{r.store} }
func (r *fakeRepo) Response() repositories.ResponseRepository { return &fakeResponseRepo{r.store} }
func (r *fakeRepo) CheatingEvent() repositories.CheatingEventRepository {
	return &fakeCheatingEventRepo{r.store}
}
func (r *fakeRepo) Counter() repositories.CounterRepository { return &fakeCounterRepo{r.store} }
func (r *fakeRepo) User() repositories.UserRepository       { return nil }

func (r *fakeRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

// ===== SERIES =====

type fakeSeriesRepo struct{ s *fakeStore }

func (f *fakeSeriesRepo) GetByID(ctx context.Context, id uint) (*models.TestSeries, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	series, ok := f.s.series[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *series
	return &cp, nil
}

func (f *fakeSeriesRepo) List(ctx context.Context, filters repositories.SeriesFilters) ([]*models.TestSeries, int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.TestSeries
	for _, series := range f.s.series {
		cp := *series
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (f *fakeSeriesRepo) ExistsByID(ctx context.Context, id uint) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	_, ok := f.s.series[id]
	return ok, nil
}

// ===== QUESTIONS =====

type fakeQuestionRepo struct{ s *fakeStore }

func (f *fakeQuestionRepo) GetByID(ctx context.Context, id uint) (*models.Question, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	question, ok := f.s.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *question
	return &cp, nil
}

func (f *fakeQuestionRepo) GetByIDs(ctx context.Context, ids []uint) ([]*models.Question, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.Question
	for _, id := range ids {
		if question, ok := f.s.questions[id]; ok {
			cp := *question
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ===== ATTEMPTS =====

type fakeAttemptRepo struct{ s *fakeStore }

func (f *fakeAttemptRepo) Create(ctx context.Context, attempt *models.TestAttempt) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.nextAttemptID++
	attempt.ID = f.s.nextAttemptID
	cp := *attempt
	f.s.attempts[attempt.ID] = &cp
	return nil
}

func (f *fakeAttemptRepo) GetByID(ctx context.Context, id uint) (*models.TestAttempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	attempt, ok := f.s.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *attempt
	return &cp, nil
}

func (f *fakeAttemptRepo) GetWithResponses(ctx context.Context, id uint) (*models.TestAttempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	attempt, ok := f.s.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *attempt
	cp.Responses = append([]models.AttemptResponse(nil), f.s.responses[id]...)
	cp.CheatingEvents = append([]models.CheatingEvent(nil), f.s.events[id]...)
	return &cp, nil
}

func (f *fakeAttemptRepo) GetActiveAttempt(ctx context.Context, studentID string, seriesID uint) (*models.TestAttempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, attempt := range f.s.attempts {
		if attempt.StudentID == studentID && attempt.SeriesID == seriesID && attempt.Status == models.AttemptInProgress {
			cp := *attempt
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAttemptRepo) HasActiveAttempt(ctx context.Context, studentID string, seriesID uint) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, attempt := range f.s.attempts {
		if attempt.StudentID == studentID && attempt.SeriesID == seriesID && attempt.Status == models.AttemptInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAttemptRepo) UpdateWithVersion(ctx context.Context, attempt *models.TestAttempt) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if f.s.failVersionNext > 0 {
		f.s.failVersionNext--
		return repositories.ErrVersionConflict
	}

	stored, ok := f.s.attempts[attempt.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Version != attempt.Version {
		return repositories.ErrVersionConflict
	}

	attempt.Version++
	cp := *attempt
	cp.Responses = nil
	cp.CheatingEvents = nil
	f.s.attempts[attempt.ID] = &cp
	return nil
}

func (f *fakeAttemptRepo) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.TestAttempt
	for _, attempt := range f.s.attempts {
		if filters.StudentID != nil && attempt.StudentID != *filters.StudentID {
			continue
		}
		if filters.SeriesID != nil && attempt.SeriesID != *filters.SeriesID {
			continue
		}
		if filters.Status != nil && attempt.Status != *filters.Status {
			continue
		}
		cp := *attempt
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (f *fakeAttemptRepo) GetSeriesStats(ctx context.Context, seriesID uint) (*repositories.AttemptStats, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	stats := &repositories.AttemptStats{}
	for _, attempt := range f.s.attempts {
		if attempt.SeriesID != seriesID {
			continue
		}
		stats.TotalAttempts++
		switch attempt.Status {
		case models.AttemptInProgress:
			stats.InProgressAttempts++
		case models.AttemptGraded:
			stats.GradedAttempts++
		case models.AttemptAborted:
			stats.AbortedAttempts++
		}
		if attempt.IntegrityStatus != models.IntegrityClean {
			stats.FlaggedAttempts++
		}
	}
	return stats, nil
}

// ===== RESPONSES =====

type fakeResponseRepo struct{ s *fakeStore }

func (f *fakeResponseRepo) CreateBatch(ctx context.Context, responses []models.AttemptResponse) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, response := range responses {
		f.s.nextResponseID++
		response.ID = f.s.nextResponseID
		f.s.responses[response.AttemptID] = append(f.s.responses[response.AttemptID], response)
	}
	return nil
}

func (f *fakeResponseRepo) UpdateBatch(ctx context.Context, responses []models.AttemptResponse) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, response := range responses {
		rows := f.s.responses[response.AttemptID]
		found := false
		for i := range rows {
			if rows[i].QuestionID == response.QuestionID {
				response.ID = rows[i].ID
				rows[i] = response
				found = true
				break
			}
		}
		if !found {
			f.s.nextResponseID++
			response.ID = f.s.nextResponseID
			f.s.responses[response.AttemptID] = append(rows, response)
		}
	}
	return nil
}

func (f *fakeResponseRepo) GetByAttempt(ctx context.Context, attemptID uint) ([]models.AttemptResponse, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]models.AttemptResponse(nil), f.s.responses[attemptID]...), nil
}

// ===== CHEATING EVENTS =====

type fakeCheatingEventRepo struct{ s *fakeStore }

func (f *fakeCheatingEventRepo) Append(ctx context.Context, event *models.CheatingEvent) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.nextEventID++
	event.ID = f.s.nextEventID
	event.CreatedAt = time.Now().UTC()
	f.s.events[event.AttemptID] = append(f.s.events[event.AttemptID], *event)
	return nil
}

func (f *fakeCheatingEventRepo) ListByAttempt(ctx context.Context, attemptID uint) ([]models.CheatingEvent, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]models.CheatingEvent(nil), f.s.events[attemptID]...), nil
}

func (f *fakeCheatingEventRepo) CountByAttempt(ctx context.Context, attemptID uint) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return int64(len(f.s.events[attemptID])), nil
}

// ===== COUNTERS =====

type fakeCounterRepo struct{ s *fakeStore }

func (f *fakeCounterRepo) Get(ctx context.Context, studentID string, seriesID uint) (*models.AttemptCounter, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if counter, ok := f.s.counters[counterKey(studentID, seriesID)]; ok {
		cp := *counter
		return &cp, nil
	}
	return &models.AttemptCounter{StudentID: studentID, SeriesID: seriesID}, nil
}

func (f *fakeCounterRepo) Increment(ctx context.Context, studentID string, seriesID uint, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	key := counterKey(studentID, seriesID)
	counter, ok := f.s.counters[key]
	if !ok {
		counter = &models.AttemptCounter{StudentID: studentID, SeriesID: seriesID}
		f.s.counters[key] = counter
	}
	counter.Count++
	counter.LastAttemptAt = &at
	return nil
}

// ===== SEED HELPERS =====

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// seedQuestion stores a question with one English translation. Options named
// after their ids; correct marks the answer key.
func seedQuestion(repo *fakeRepo, id uint, marks int, optionIDs []string, correct []string, difficulty models.DifficultyLevel, subject string) {
	correctSet := make(map[string]bool, len(correct))
	for _, c := range correct {
		correctSet[c] = true
	}

	options := make([]models.QuestionOption, len(optionIDs))
	for i, optID := range optionIDs {
		options[i] = models.QuestionOption{
			ID:        optID,
			Text:      "Option " + optID,
			IsCorrect: correctSet[optID],
		}
	}

	question := &models.Question{
		ID:         id,
		Difficulty: difficulty,
		Marks:      marks,
		Translations: mustJSON(map[string]models.QuestionTranslation{
			"en": {Text: fmt.Sprintf("Question %d", id), Options: options},
		}),
	}
	if subject != "" {
		question.Subject = mustJSON(models.EntityRef{ID: 1, Name: subject})
	}

	repo.store.questions[id] = question
}

// seedSeries stores a practice series with one fixed-list section covering
// the given question ids.
func seedSeries(repo *fakeRepo, id uint, questionIDs []uint, maxAttempts int, durationMinutes int, strict bool) *models.TestSeries {
	series := &models.TestSeries{
		ID:          id,
		Title:       fmt.Sprintf("Series %d", id),
		Mode:        models.SeriesPractice,
		Duration:    durationMinutes,
		MaxAttempts: maxAttempts,
		StrictMode:  strict,
		CreatedBy:   "teacher-1",
		Sections: []models.Section{
			{
				ID:          id*100 + 1,
				SeriesID:    id,
				Title:       "Section A",
				Order:       0,
				QuestionIDs: mustJSON(questionIDs),
			},
		},
	}
	repo.store.series[id] = series
	return series
}
