package exam

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

func int64p(v int64) *int64 { return &v }

func publishableExam() *model.Exam {
	st := model.DefaultSettings()
	key := "E1-v1.json"
	return &model.Exam{
		ID:             "E1",
		Title:          "Physics Mock",
		Type:           model.ExamTypeMock,
		GoalID:         "G1",
		Duration:       int64p(3_600_000),
		StartTimeStamp: int64p(1_700_000_000_000),
		Settings:       &st,
		BlobBucketKey:  &key,
		QuestionSection: []model.Section{{
			Title: "Section A", PMark: 4, NMark: -1,
			Questions: []model.QuestionRef{
				{QuestionID: "Q1", SubjectID: "phy"},
				{QuestionID: "Q2", SubjectID: "phy"},
			},
		}},
	}
}

func TestValidateForBlob(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *model.Exam)
		detail string
	}{
		{"valid", func(e *model.Exam) {}, ""},
		{"missing title", func(e *model.Exam) { e.Title = "  " }, "title"},
		{"bad type", func(e *model.Exam) { e.Type = "quiz" }, "type"},
		{"missing duration", func(e *model.Exam) { e.Duration = nil }, "duration"},
		{"missing start", func(e *model.Exam) { e.StartTimeStamp = nil }, "startTimeStamp"},
		{"no sections", func(e *model.Exam) { e.QuestionSection = nil }, "no sections"},
		{"untitled section", func(e *model.Exam) { e.QuestionSection[0].Title = "" }, "questionSection[0].title"},
		{"nan marks", func(e *model.Exam) { e.QuestionSection[0].PMark = math.NaN() }, "marks"},
		{"empty section", func(e *model.Exam) { e.QuestionSection[0].Questions = nil }, "no questions"},
		{"ref without subject", func(e *model.Exam) { e.QuestionSection[0].Questions[1].SubjectID = "" }, "questions[1].subjectID"},
		{"ref without id", func(e *model.Exam) { e.QuestionSection[0].Questions[0].QuestionID = "" }, "questions[0].questionID"},
		{"missing settings", func(e *model.Exam) { e.Settings = nil }, "settings are missing"},
		{"missing reward", func(e *model.Exam) { e.Settings.MCoinReward = nil }, "mCoinReward"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := publishableExam()
			tt.mutate(e)
			err := ValidateForBlob(e)
			if tt.detail == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var me *model.Error
			if !errors.As(err, &me) || me.Code != "ExamIncomplete" {
				t.Fatalf("expected ExamIncomplete, got %v", err)
			}
			if !strings.Contains(me.Detail, tt.detail) {
				t.Errorf("detail %q does not mention %q", me.Detail, tt.detail)
			}
		})
	}
}

func TestValidateForBlobFailsFast(t *testing.T) {
	e := publishableExam()
	e.Title = ""
	e.Settings = nil
	var me *model.Error
	if err := ValidateForBlob(e); !errors.As(err, &me) || me.Detail != "title is missing" {
		t.Fatalf("expected the title to be reported first, got %v", err)
	}
}

func TestValidateBatchListLimit(t *testing.T) {
	tests := []struct {
		n       int
		wantErr bool
	}{
		{0, false},
		{1, false},
		{MaxBatchList, false},
		{MaxBatchList + 1, true},
	}
	for _, tt := range tests {
		err := ValidateBatchListLimit(make([]string, tt.n))
		if tt.wantErr != (err != nil) {
			t.Errorf("ValidateBatchListLimit(%d) = %v, wantErr %v", tt.n, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, model.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	}
}

func TestCleanBatchList(t *testing.T) {
	got := cleanBatchList([]string{" b1", "b2", "", "b1", "b3 "})
	want := []string{"b1", "b2", "b3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}
