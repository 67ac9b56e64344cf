package library

import (
	"context"
	"fmt"

	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// DocLibrary reads questions from a document-store table keyed by
// QUESTION#{questionID} / QUESTIONS@{subjectID}.
type DocLibrary struct {
	docs  docstore.Store
	table string
}

var _ Library = (*DocLibrary)(nil)

func NewDocLibrary(docs docstore.Store, table string) *DocLibrary {
	return &DocLibrary{docs: docs, table: table}
}

func (l *DocLibrary) key(questionID, subjectID string) docstore.Key {
	return docstore.Key{
		Table: l.table,
		PK:    "QUESTION#" + questionID,
		SK:    "QUESTIONS@" + subjectID,
	}
}

func (l *DocLibrary) Fetch(ctx context.Context, refs []model.QuestionRef) ([]model.QuestionDocument, error) {
	refs = uniqueRefs(refs)
	if len(refs) == 0 {
		return nil, nil
	}
	keys := make([]docstore.Key, len(refs))
	for i, r := range refs {
		keys[i] = l.key(r.QuestionID, r.SubjectID)
	}
	found, err := l.docs.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	out := make([]model.QuestionDocument, 0, len(found))
	for _, d := range found {
		var q model.QuestionDocument
		if err := d.Decode(&q); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", d.Key.PK, err)
		}
		out = append(out, q)
	}
	return out, nil
}

// Put stores or replaces a question.
func (l *DocLibrary) Put(ctx context.Context, doc model.QuestionDocument) error {
	if doc.QuestionID == "" || doc.SubjectID == "" {
		return model.Validation("InvalidQuestion", "questionID and subjectID are required")
	}
	return l.docs.Put(ctx, l.key(doc.QuestionID, doc.SubjectID), doc, docstore.Condition{})
}
