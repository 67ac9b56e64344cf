// Package library reads question documents referenced by exam sections.
package library

import (
	"context"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// Library resolves question references. Fetch returns the documents that
// exist, in no particular order; unknown references are simply absent.
type Library interface {
	Fetch(ctx context.Context, refs []model.QuestionRef) ([]model.QuestionDocument, error)
	Put(ctx context.Context, doc model.QuestionDocument) error
}

// uniqueRefs drops repeated references, keeping first occurrences.
func uniqueRefs(refs []model.QuestionRef) []model.QuestionRef {
	seen := make(map[model.QuestionRef]bool, len(refs))
	out := make([]model.QuestionRef, 0, len(refs))
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
