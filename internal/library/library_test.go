package library

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

func newTestLibrary(t *testing.T) *DocLibrary {
	t.Helper()
	s, err := docstore.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewDocLibrary(s, "library")
}

func TestDocLibraryFetch(t *testing.T) {
	l := newTestLibrary(t)
	ctx := context.Background()
	seed := []model.QuestionDocument{
		{QuestionID: "q1", SubjectID: "math", Title: "2+2?", Type: model.QuestionMCQ,
			Options: []model.Option{{ID: "a", Text: "4", Weight: 1}, {ID: "b", Text: "5"}}, AnswerKey: []string{"a"}},
		{QuestionID: "q2", SubjectID: "math", Title: "The capital of France is ___", Type: model.QuestionFIB,
			Blanks: []model.Blank{{ID: "b1", CorrectAnswers: []string{"Paris"}, Weight: 1}}},
	}
	for _, q := range seed {
		if err := l.Put(ctx, q); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := l.Fetch(ctx, []model.QuestionRef{
		{QuestionID: "q1", SubjectID: "math"},
		{QuestionID: "q2", SubjectID: "math"},
		{QuestionID: "q1", SubjectID: "math"},
		{QuestionID: "q1", SubjectID: "physics"},
		{QuestionID: "q9", SubjectID: "math"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(got))
	}
	sort.Slice(got, func(i, j int) bool { return got[i].QuestionID < got[j].QuestionID })
	if got[0].AnswerKey[0] != "a" || len(got[0].Options) != 2 {
		t.Errorf("unexpected q1: %+v", got[0])
	}
	if got[1].Blanks[0].CorrectAnswers[0] != "Paris" {
		t.Errorf("unexpected q2: %+v", got[1])
	}
}

func TestDocLibraryFetchEmpty(t *testing.T) {
	l := newTestLibrary(t)
	got, err := l.Fetch(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("Fetch(nil) = %v, %v", got, err)
	}
}

func TestDocLibraryPutValidates(t *testing.T) {
	l := newTestLibrary(t)
	err := l.Put(context.Background(), model.QuestionDocument{QuestionID: "q1"})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestImportLog(t *testing.T) {
	s, err := docstore.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	log := NewImportLog(s, "library")
	ctx := context.Background()

	h, err := log.Hash(ctx, "questions/physics.json")
	if err != nil || h != "" {
		t.Fatalf("expected no hash before import, got %q %v", h, err)
	}
	if err := log.Record(ctx, "questions/physics.json", "abc", 12); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := log.Record(ctx, "questions/physics.json", "def", 13); err != nil {
		t.Fatalf("Record again: %v", err)
	}
	h, err = log.Hash(ctx, "questions/physics.json")
	if err != nil || h != "def" {
		t.Errorf("expected latest hash def, got %q %v", h, err)
	}
}
