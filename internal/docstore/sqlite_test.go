package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type testDoc struct {
	Title     string   `json:"title"`
	Version   int      `json:"version"`
	IsLive    bool     `json:"isLive"`
	Tags      []string `json:"tags"`
	UpdatedAt int64    `json:"updatedAt"`
}

func testKey(id string) Key {
	return Key{Table: "t", PK: "DOC#" + id, SK: "DOCS"}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	var d testDoc
	err := s.Get(context.Background(), testKey("nope"), &d)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutConditions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	k := testKey("1")

	if err := s.Put(ctx, k, testDoc{Title: "first"}, ItemNotExists()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err := s.Put(ctx, k, testDoc{Title: "second"}, ItemNotExists())
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate put, got %v", err)
	}

	var d testDoc
	if err := s.Get(ctx, k, &d); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Title != "first" {
		t.Errorf("expected title %q, got %q", "first", d.Title)
	}

	if err := s.Put(ctx, k, testDoc{Title: "third"}, Condition{}); err != nil {
		t.Fatalf("unconditional Put: %v", err)
	}
	if err := s.Get(ctx, k, &d); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Title != "third" {
		t.Errorf("expected title %q, got %q", "third", d.Title)
	}
}

func TestUpdateConditions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	k := testKey("1")
	if err := s.Put(ctx, k, testDoc{Title: "a", UpdatedAt: 1700000000000}, Condition{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tests := []struct {
		name     string
		cond     Condition
		conflict bool
	}{
		{"exists", ItemExists(), false},
		{"matching timestamp", ItemExists().Equal("updatedAt", int64(1700000000000)), false},
		{"stale timestamp", ItemExists().Equal("updatedAt", int64(1)), true},
		{"live flag", ItemExists().Equal("isLive", true), true},
		{"not exists", ItemNotExists(), true},
		{"missing attribute", ItemExists().Equal("nope", 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update(ctx, k, NewPatch().Set("version", 2), tt.cond)
			if tt.conflict && !errors.Is(err, model.ErrConflict) {
				t.Errorf("expected ErrConflict, got %v", err)
			}
			if !tt.conflict && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	if err := s.Update(ctx, testKey("missing"), NewPatch().Set("version", 1), ItemExists()); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected ErrConflict updating missing item, got %v", err)
	}
}

func TestUpdatePatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	k := testKey("1")
	if err := s.Put(ctx, k, testDoc{Title: "a", Tags: []string{"x"}}, Condition{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	p := NewPatch().
		Set("title", "b").
		Set("version", 3).
		Append("tags", []string{"y", "z"})
	if err := s.Update(ctx, k, p, ItemExists()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	var d testDoc
	if err := s.Get(ctx, k, &d); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Title != "b" || d.Version != 3 {
		t.Errorf("unexpected doc: %+v", d)
	}
	if fmt.Sprint(d.Tags) != "[x y z]" {
		t.Errorf("expected tags [x y z], got %v", d.Tags)
	}

	if err := s.Update(ctx, k, NewPatch().Remove("tags[1]"), ItemExists()); err != nil {
		t.Fatalf("Update remove: %v", err)
	}
	if err := s.Get(ctx, k, &d); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fmt.Sprint(d.Tags) != "[x z]" {
		t.Errorf("expected tags [x z], got %v", d.Tags)
	}
}

func TestNestedPatch(t *testing.T) {
	type section struct {
		Title     string   `json:"title"`
		Questions []string `json:"questions"`
	}
	type nested struct {
		Sections []section      `json:"sections"`
		Settings map[string]any `json:"settings"`
	}
	s := newTestStore(t)
	ctx := context.Background()
	k := testKey("n")
	if err := s.Put(ctx, k, nested{Sections: []section{{Title: "s0"}}}, Condition{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	p := NewPatch().
		Set("sections[0].title", "renamed").
		Set("sections[1]", section{Title: "s1", Questions: []string{}}).
		Append("sections[0].questions", []string{"q1"}).
		Set("settings.reward.coins", 5)
	if err := s.Update(ctx, k, p, ItemExists()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var got nested
	if err := s.Get(ctx, k, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(got.Sections))
	}
	if got.Sections[0].Title != "renamed" || fmt.Sprint(got.Sections[0].Questions) != "[q1]" {
		t.Errorf("unexpected section 0: %+v", got.Sections[0])
	}
	if got.Sections[1].Title != "s1" {
		t.Errorf("unexpected section 1: %+v", got.Sections[1])
	}
	reward, ok := got.Settings["reward"].(map[string]any)
	if !ok || reward["coins"] != float64(5) {
		t.Errorf("unexpected settings: %v", got.Settings)
	}
}

func TestDeleteConditions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	k := testKey("1")
	if err := s.Put(ctx, k, testDoc{Title: "a", IsLive: true}, Condition{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, k, ItemExists().Equal("isLive", false)); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.Delete(ctx, k, ItemExists()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := s.Count(ctx, "t"); n != 0 {
		t.Errorf("expected 0 items after delete, got %d", n)
	}
}

func TestTransactWriteAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, testKey("exists"), testDoc{Title: "x"}, Condition{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ops := []Op{
		PutOp(testKey("new1"), testDoc{Title: "n1"}, ItemNotExists()),
		PutOp(testKey("new2"), testDoc{Title: "n2"}, ItemNotExists()),
		PutOp(testKey("exists"), testDoc{Title: "overwrite"}, ItemNotExists()),
	}
	err := s.TransactWrite(ctx, ops)
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	n, err := s.Count(ctx, "t")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected rollback to leave 1 item, got %d", n)
	}

	ops = []Op{
		PutOp(testKey("new1"), testDoc{Title: "n1"}, ItemNotExists()),
		UpdateOp(testKey("exists"), NewPatch().Set("title", "y"), ItemExists()),
		CheckOp(testKey("new2"), ItemNotExists()),
	}
	if err := s.TransactWrite(ctx, ops); err != nil {
		t.Fatalf("TransactWrite: %v", err)
	}
	if n, _ := s.Count(ctx, "t"); n != 2 {
		t.Errorf("expected 2 items, got %d", n)
	}
}

func TestTransactWriteLimits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		ops  []Op
	}{
		{"empty", nil},
		{"duplicate key", []Op{
			PutOp(testKey("a"), testDoc{}, Condition{}),
			DeleteOp(testKey("a"), Condition{}),
		}},
		{"bare check", []Op{CheckOp(testKey("a"), Condition{})}},
		{"too many", func() []Op {
			ops := make([]Op, MaxTransactItems+1)
			for i := range ops {
				ops[i] = PutOp(testKey(fmt.Sprint(i)), testDoc{}, Condition{})
			}
			return ops
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.TransactWrite(ctx, tt.ops); !errors.Is(err, model.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBatchGetSkipsMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "c"} {
		if err := s.Put(ctx, testKey(id), testDoc{Title: id}, Condition{}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	docs, err := s.BatchGet(ctx, []Key{testKey("a"), testKey("b"), testKey("c")})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	var d testDoc
	if err := docs[1].Decode(&d); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Title != "c" || docs[1].Key != testKey("c") {
		t.Errorf("unexpected second doc: %+v %v", d, docs[1].Key)
	}
}
