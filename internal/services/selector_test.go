package services

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/prepstack/attempt-service/internal/models"
)

func seededSelector(seed int64) *PoolSelector {
	return NewPoolSelector(rand.New(rand.NewSource(seed)))
}

func boundIDs(bound []models.BoundQuestion) []uint {
	ids := make([]uint, len(bound))
	for i, bq := range bound {
		ids[i] = bq.QuestionID
	}
	return ids
}

func TestPoolSelector_FixedSections(t *testing.T) {
	selector := seededSelector(1)

	bound, err := selector.Select([]SectionDefinition{
		{SectionID: 1, Title: "A", Order: 0, Questions: []uint{10, 11}},
		{SectionID: 2, Title: "B", Order: 1, Questions: []uint{20}},
	}, false)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	want := []uint{10, 11, 20}
	got := boundIDs(bound)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected binding %v, got %v", want, got)
		}
	}
	for i, bq := range bound {
		if bq.Order != i {
			t.Errorf("position %d has order %d", i, bq.Order)
		}
	}
}

func TestPoolSelector_SamplesExactCountDistinct(t *testing.T) {
	selector := seededSelector(42)
	pool := []uint{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	bound, err := selector.Select([]SectionDefinition{
		{SectionID: 1, Title: "Pool", QuestionPool: pool, QuestionsToSelect: 4},
	}, false)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(bound) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(bound))
	}

	seen := make(map[uint]bool)
	inPool := make(map[uint]bool)
	for _, id := range pool {
		inPool[id] = true
	}
	for _, bq := range bound {
		if seen[bq.QuestionID] {
			t.Fatalf("question %d selected twice", bq.QuestionID)
		}
		seen[bq.QuestionID] = true
		if !inPool[bq.QuestionID] {
			t.Fatalf("question %d not in pool", bq.QuestionID)
		}
	}
}

func TestPoolSelector_InsufficientPool(t *testing.T) {
	selector := seededSelector(7)

	_, err := selector.Select([]SectionDefinition{
		{SectionID: 1, Title: "Short", QuestionPool: []uint{1, 2}, QuestionsToSelect: 3},
	}, false)

	var poolErr *InsufficientPoolError
	if !errors.As(err, &poolErr) {
		t.Fatalf("expected InsufficientPoolError, got %v", err)
	}
	if poolErr.PoolSize != 2 || poolErr.Requested != 3 {
		t.Errorf("unexpected error detail: %+v", poolErr)
	}
}

func TestPoolSelector_DeterministicWithSeed(t *testing.T) {
	sections := []SectionDefinition{
		{SectionID: 1, Title: "Pool", QuestionPool: []uint{1, 2, 3, 4, 5, 6}, QuestionsToSelect: 3},
	}

	first, err := seededSelector(99).Select(sections, false)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	second, err := seededSelector(99).Select(sections, false)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	for i := range first {
		if first[i].QuestionID != second[i].QuestionID {
			t.Fatalf("same seed produced different bindings: %v vs %v", boundIDs(first), boundIDs(second))
		}
	}
}

func TestPoolSelector_DeduplicatesAcrossSections(t *testing.T) {
	selector := seededSelector(3)

	bound, err := selector.Select([]SectionDefinition{
		{SectionID: 1, Title: "A", Order: 0, Questions: []uint{1, 2, 3}},
		{SectionID: 2, Title: "B", Order: 1, Questions: []uint{3, 4}},
	}, false)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(bound) != 4 {
		t.Fatalf("expected 4 distinct questions, got %d", len(bound))
	}
	// First occurrence wins: question 3 belongs to section A
	for _, bq := range bound {
		if bq.QuestionID == 3 && bq.SectionID != 1 {
			t.Errorf("duplicate question kept in section %d, want 1", bq.SectionID)
		}
	}
}

func TestPoolSelector_SectionOrderRandomization(t *testing.T) {
	sections := []SectionDefinition{
		{SectionID: 1, Title: "A", Order: 0, Questions: []uint{1, 2}},
		{SectionID: 2, Title: "B", Order: 1, Questions: []uint{3, 4}},
		{SectionID: 3, Title: "C", Order: 2, Questions: []uint{5, 6}},
	}

	bound, err := seededSelector(5).Select(sections, true)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(bound) != 6 {
		t.Fatalf("expected 6 questions, got %d", len(bound))
	}

	// Questions of one section must stay contiguous and in order even when
	// sections are shuffled.
	for i := 0; i < len(bound); i += 2 {
		first, second := bound[i], bound[i+1]
		if first.SectionID != second.SectionID {
			t.Fatalf("section %d split across positions %d and %d", first.SectionID, i, i+1)
		}
		if second.QuestionID != first.QuestionID+1 {
			t.Errorf("questions within section %d reordered", first.SectionID)
		}
	}
}

func TestPoolSelector_MixedFixedAndPool(t *testing.T) {
	selector := seededSelector(11)

	bound, err := selector.Select([]SectionDefinition{
		{
			SectionID:         1,
			Title:             "Mixed",
			Questions:         []uint{1, 2},
			QuestionPool:      []uint{10, 11, 12, 13},
			QuestionsToSelect: 2,
		},
	}, false)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(bound) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(bound))
	}
	if bound[0].QuestionID != 1 || bound[1].QuestionID != 2 {
		t.Errorf("fixed questions must come first, got %v", boundIDs(bound))
	}
	for _, bq := range bound[2:] {
		if bq.QuestionID < 10 {
			t.Errorf("sampled slot holds fixed question %d", bq.QuestionID)
		}
	}
}

func TestPoolSelector_PickVariant(t *testing.T) {
	selector := seededSelector(7)

	if v := selector.PickVariant(nil); v != nil {
		t.Fatalf("no variants must yield nil, got %+v", v)
	}

	variants := []models.SeriesVariant{
		{ID: 1, Label: "Set A"},
		{ID: 2, Label: "Set B"},
	}
	counts := map[uint]int{}
	for i := 0; i < 100; i++ {
		counts[selector.PickVariant(variants).ID]++
	}
	if counts[1] == 0 || counts[2] == 0 {
		t.Errorf("expected both variants drawn over 100 picks, got %v", counts)
	}
}

func TestSectionDefinitions_VariantFiltering(t *testing.T) {
	setA, setB := uint(1), uint(2)
	series := &models.TestSeries{
		Sections: []models.Section{
			{ID: 1, Title: "Common", Order: 0, QuestionIDs: mustJSON([]uint{10})},
			{ID: 2, Title: "Set A only", Order: 1, VariantID: &setA, QuestionIDs: mustJSON([]uint{20})},
			{ID: 3, Title: "Set B only", Order: 1, VariantID: &setB, QuestionIDs: mustJSON([]uint{30})},
		},
	}

	defs, err := sectionDefinitionsFromSeries(series, &models.SeriesVariant{ID: setA, Label: "Set A"})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected common + Set A sections, got %+v", defs)
	}
	if defs[0].SectionID != 1 || defs[1].SectionID != 2 {
		t.Errorf("wrong sections kept: %+v", defs)
	}

	// Without a drawn variant only the common sections remain
	defs, err = sectionDefinitionsFromSeries(series, nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(defs) != 1 || defs[0].SectionID != 1 {
		t.Errorf("expected only the common section, got %+v", defs)
	}
}
