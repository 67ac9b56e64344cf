package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	v := viper.New()
	v.Set("backend", "sqlite")
	v.Set("db", filepath.Join(dir, "tmadmin.db"))
	v.Set("blob-backend", "dir")
	v.Set("blob-dir", filepath.Join(dir, "blobs"))
	v.Set("library", "docstore")
	v.Set("library-table", "questions")
	v.Set("exam-table", "exams")

	a, err := buildApp(context.Background(), v)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestBuildAppRejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"document store", "backend", "cassandra"},
		{"blob store", "blob-backend", "ftp"},
		{"library", "library", "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			v := viper.New()
			v.Set("backend", "sqlite")
			v.Set("db", filepath.Join(dir, "x.db"))
			v.Set("blob-backend", "dir")
			v.Set("blob-dir", dir)
			v.Set("library", "docstore")
			v.Set(tt.key, tt.val)
			if _, err := buildApp(context.Background(), v); err == nil {
				t.Errorf("expected an error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestImportQuestions(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "physics.json")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write(`[{"questionID":"Q1","subjectID":"phy","title":"Unit of force?","type":"MCQ",
		"options":[{"id":"a","text":"Newton","weight":1},{"id":"b","text":"Joule"}],"answerKey":["a"]}]`)
	if err := importQuestions(ctx, a, []string{path}); err != nil {
		t.Fatalf("importQuestions: %v", err)
	}
	docs, err := a.lib.Fetch(ctx, []model.QuestionRef{{QuestionID: "Q1", SubjectID: "phy"}})
	if err != nil || len(docs) != 1 || docs[0].Title != "Unit of force?" {
		t.Fatalf("question not imported: %+v %v", docs, err)
	}

	// Unchanged content is skipped; changed content replaces the question.
	if err := importQuestions(ctx, a, []string{path}); err != nil {
		t.Fatalf("second import: %v", err)
	}
	write(`[{"questionID":"Q1","subjectID":"phy","title":"SI unit of force?","type":"MCQ",
		"options":[{"id":"a","text":"Newton","weight":1}],"answerKey":["a"]}]`)
	if err := importQuestions(ctx, a, []string{path}); err != nil {
		t.Fatalf("changed import: %v", err)
	}
	docs, _ = a.lib.Fetch(ctx, []model.QuestionRef{{QuestionID: "Q1", SubjectID: "phy"}})
	if len(docs) != 1 || docs[0].Title != "SI unit of force?" {
		t.Errorf("question not replaced: %+v", docs)
	}

	write(`[{"questionID":"","subjectID":"phy"}]`)
	if err := importQuestions(ctx, a, []string{path}); err == nil {
		t.Error("expected an error for a question without an ID")
	}
}

func TestPrintResultFailure(t *testing.T) {
	a := newTestApp(t)
	res, err := a.svc.MarkExamAsLive(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != "not_found" {
		t.Errorf("kind = %q", res.Kind)
	}
	if err := printResult(res); err == nil {
		t.Error("expected a failed envelope to become an error")
	}
}
