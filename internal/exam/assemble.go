package exam

import (
	"context"
	"fmt"
	"strings"

	"github.com/themastersacademy/tm-admin-sub000/internal/library"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// Assembly is the output of Assemble: the public blob and the private answer list.
type Assembly struct {
	Blob    model.ExamBlob
	Answers []model.AnswerEntry
}

// Assemble resolves every question reference of a validated exam and builds
// the student-facing blob for version together with its answer list.
func Assemble(ctx context.Context, lib library.Library, e *model.Exam, version int) (*Assembly, error) {
	// A question used in several sections is fetched once.
	var refs []model.QuestionRef
	seen := map[model.QuestionRef]bool{}
	for _, sec := range e.QuestionSection {
		for _, q := range sec.Questions {
			if seen[q] {
				continue
			}
			seen[q] = true
			refs = append(refs, q)
		}
	}

	docs, err := lib.Fetch(ctx, refs)
	if err != nil {
		return nil, err
	}
	// A document only answers the reference naming both its ID and its subject.
	byRef := make(map[model.QuestionRef]model.QuestionDocument, len(docs))
	for _, d := range docs {
		byRef[model.QuestionRef{QuestionID: d.QuestionID, SubjectID: d.SubjectID}] = d
	}
	var missing []string
	for _, r := range refs {
		if _, ok := byRef[r]; !ok {
			missing = append(missing, r.QuestionID)
		}
	}
	if len(missing) > 0 {
		err := model.NotFound("StaleQuestionReference", strings.Join(missing, ", "))
		err.Data = map[string]any{"questionIDs": missing}
		return nil, err
	}

	a := &Assembly{
		Blob: model.ExamBlob{
			ExamID:         e.ID,
			Title:          e.Title,
			Version:        version,
			Settings:       *e.Settings,
			Duration:       *e.Duration,
			StartTimeStamp: *e.StartTimeStamp,
			IsLifeTime:     e.IsLifeTime,
			EndTimeStamp:   e.EndTimeStamp,
			TotalSections:  len(e.QuestionSection),
			Sections:       make([]model.BlobSection, 0, len(e.QuestionSection)),
		},
		Answers: []model.AnswerEntry{},
	}
	if e.IsLifeTime {
		a.Blob.EndTimeStamp = nil
	}

	for i, sec := range e.QuestionSection {
		bs := model.BlobSection{
			Title:     sec.Title,
			PMark:     sec.PMark,
			NMark:     sec.NMark,
			Questions: make([]model.BlobQuestion, 0, len(sec.Questions)),
		}
		for _, ref := range sec.Questions {
			doc := byRef[ref]
			bq, err := publicQuestion(ref, doc)
			if err != nil {
				return nil, err
			}
			bs.Questions = append(bs.Questions, bq)
			a.Answers = append(a.Answers, answerEntry(ref, doc, i, sec))
		}
		a.Blob.Sections = append(a.Blob.Sections, bs)
		a.Blob.TotalQuestions += len(sec.Questions)
		a.Blob.TotalMarks += sec.PMark * float64(len(sec.Questions))
	}
	return a, nil
}

// publicQuestion strips weights and correctness from doc.
func publicQuestion(ref model.QuestionRef, doc model.QuestionDocument) (model.BlobQuestion, error) {
	bq := model.BlobQuestion{
		QuestionID: ref.QuestionID,
		SubjectID:  ref.SubjectID,
		Title:      doc.Title,
		Type:       doc.Type,
	}
	switch doc.Type {
	case model.QuestionFIB:
		n := len(doc.Blanks)
		bq.NoOfBlanks = &n
	case model.QuestionMCQ, model.QuestionMSQ:
		bq.Options = make([]model.BlobOption, len(doc.Options))
		for i, o := range doc.Options {
			bq.Options[i] = model.BlobOption{ID: o.ID, Text: o.Text}
		}
	default:
		return bq, model.Validation("UnsupportedQuestionType",
			fmt.Sprintf("question %s has type %q", doc.QuestionID, doc.Type))
	}
	return bq, nil
}

func answerEntry(ref model.QuestionRef, doc model.QuestionDocument, sectionIndex int, sec model.Section) model.AnswerEntry {
	entry := model.AnswerEntry{
		QuestionID:   ref.QuestionID,
		SubjectID:    ref.SubjectID,
		Type:         doc.Type,
		SectionIndex: sectionIndex,
		PMark:        sec.PMark,
		NMark:        sec.NMark,
		Solution:     doc.Solution,
	}
	if doc.Type == model.QuestionFIB {
		entry.Blanks = append([]model.Blank(nil), doc.Blanks...)
		return entry
	}
	correct := make(map[string]bool, len(doc.AnswerKey))
	for _, id := range doc.AnswerKey {
		correct[id] = true
	}
	for _, o := range doc.Options {
		if correct[o.ID] {
			entry.Options = append(entry.Options, model.AnswerOption{ID: o.ID, Text: o.Text, Weight: o.Weight})
		}
	}
	return entry
}
