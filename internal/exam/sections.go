package exam

import (
	"context"
	"fmt"
	"strings"

	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
	"github.com/themastersacademy/tm-admin-sub000/internal/i18n"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// SectionInput creates a section when SectionIndex is nil, and otherwise
// patches the supplied fields of the section at that index.
type SectionInput struct {
	ExamID       string   `json:"examID"`
	SectionIndex *int     `json:"sectionIndex,omitempty"`
	Title        *string  `json:"title,omitempty"`
	PMark        *float64 `json:"pMark,omitempty"`
	NMark        *float64 `json:"nMark,omitempty"`
}

func sectionPath(i int) string {
	return fmt.Sprintf("questionSection[%d]", i)
}

func checkSectionIndex(e *model.Exam, i int) error {
	if i < 0 || i >= len(e.QuestionSection) {
		return model.NotFound("SectionIndexOutOfRange",
			fmt.Sprintf("section %d of %d", i, len(e.QuestionSection)))
	}
	return nil
}

func checkMarks(pMark, nMark *float64) error {
	if pMark != nil && !finite(*pMark) {
		return model.Validation("InvalidMarks", "pMark is not a number")
	}
	if nMark != nil && !finite(*nMark) {
		return model.Validation("InvalidMarks", "nMark is not a number")
	}
	return nil
}

// CreateAndUpdateExamSection appends or edits a section of a draft exam.
func (s *Service) CreateAndUpdateExamSection(ctx context.Context, in SectionInput) (model.Result, error) {
	created := in.SectionIndex == nil
	e, err := s.mutateDraft(ctx, in.ExamID, func(e *model.Exam) (*docstore.Patch, []docstore.Op, error) {
		if err := checkMarks(in.PMark, in.NMark); err != nil {
			return nil, nil, err
		}
		if created {
			return newSectionPatch(in)
		}
		return editSectionPatch(e, in)
	})
	if err != nil {
		return s.fail(ctx, "createAndUpdateExamSection", err)
	}
	msg := "SectionUpdated"
	if created {
		msg = "SectionCreated"
	}
	return ok(i18n.T(ctx, msg), publicView(e)), nil
}

func newSectionPatch(in SectionInput) (*docstore.Patch, []docstore.Op, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, nil, model.Validation("MissingTitle", "section title is required")
	}
	sec := model.Section{Title: strings.TrimSpace(*in.Title), Questions: []model.QuestionRef{}}
	if in.PMark != nil {
		sec.PMark = *in.PMark
	}
	if in.NMark != nil {
		sec.NMark = *in.NMark
	}
	return docstore.NewPatch().Append("questionSection", []model.Section{sec}), nil, nil
}

func editSectionPatch(e *model.Exam, in SectionInput) (*docstore.Patch, []docstore.Op, error) {
	i := *in.SectionIndex
	if err := checkSectionIndex(e, i); err != nil {
		return nil, nil, err
	}
	if in.Title == nil && in.PMark == nil && in.NMark == nil {
		return nil, nil, model.Validation("NothingToUpdate", "no section fields given")
	}
	p := docstore.NewPatch()
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, nil, model.Validation("MissingTitle", "section title cannot be empty")
		}
		p.Set(sectionPath(i)+".title", title)
	}
	if in.PMark != nil {
		p.Set(sectionPath(i)+".pMark", *in.PMark)
	}
	if in.NMark != nil {
		p.Set(sectionPath(i)+".nMark", *in.NMark)
	}
	return p, nil, nil
}

// QuestionsInput names questions to add to a section.
type QuestionsInput struct {
	ExamID       string              `json:"examID"`
	SectionIndex int                 `json:"sectionIndex"`
	Questions    []model.QuestionRef `json:"questions"`
}

// AddQuestionToExamSection appends question references to a section. A
// question already in that section is never added twice.
func (s *Service) AddQuestionToExamSection(ctx context.Context, in QuestionsInput) (model.Result, error) {
	var added int
	e, err := s.mutateDraft(ctx, in.ExamID, func(e *model.Exam) (*docstore.Patch, []docstore.Op, error) {
		if len(in.Questions) == 0 {
			return nil, nil, model.Validation("NoQuestionsGiven", "no questions given")
		}
		if err := checkSectionIndex(e, in.SectionIndex); err != nil {
			return nil, nil, err
		}
		present := map[string]bool{}
		for _, q := range e.QuestionSection[in.SectionIndex].Questions {
			present[q.QuestionID] = true
		}
		var fresh []model.QuestionRef
		for _, q := range in.Questions {
			if q.QuestionID == "" || q.SubjectID == "" {
				return nil, nil, model.Validation("InvalidQuestionRef", "questionID and subjectID are required")
			}
			if present[q.QuestionID] {
				continue
			}
			present[q.QuestionID] = true
			fresh = append(fresh, q)
		}
		added = len(fresh)
		if added == 0 {
			return nil, nil, nil
		}
		return docstore.NewPatch().Append(sectionPath(in.SectionIndex)+".questions", fresh), nil, nil
	})
	if err != nil {
		return s.fail(ctx, "addQuestionToExamSection", err)
	}
	return ok(i18n.Tp(ctx, "QuestionsAdded", added), publicView(e)), nil
}

// RemoveQuestionsInput names questions to drop from a section.
type RemoveQuestionsInput struct {
	ExamID       string   `json:"examID"`
	SectionIndex int      `json:"sectionIndex"`
	QuestionIDs  []string `json:"questionIDs"`
}

// RemoveQuestionsFromSection drops the listed questions from a section.
func (s *Service) RemoveQuestionsFromSection(ctx context.Context, in RemoveQuestionsInput) (model.Result, error) {
	var removed int
	e, err := s.mutateDraft(ctx, in.ExamID, func(e *model.Exam) (*docstore.Patch, []docstore.Op, error) {
		if len(in.QuestionIDs) == 0 {
			return nil, nil, model.Validation("NoQuestionsGiven", "no questions given")
		}
		if err := checkSectionIndex(e, in.SectionIndex); err != nil {
			return nil, nil, err
		}
		drop := make(map[string]bool, len(in.QuestionIDs))
		for _, id := range in.QuestionIDs {
			drop[id] = true
		}
		current := e.QuestionSection[in.SectionIndex].Questions
		kept := make([]model.QuestionRef, 0, len(current))
		for _, q := range current {
			if drop[q.QuestionID] {
				continue
			}
			kept = append(kept, q)
		}
		removed = len(current) - len(kept)
		if removed == 0 {
			return nil, nil, nil
		}
		// The whole list is replaced; the updatedAt condition keeps this safe.
		return docstore.NewPatch().Set(sectionPath(in.SectionIndex)+".questions", kept), nil, nil
	})
	if err != nil {
		return s.fail(ctx, "removeQuestionsFromSection", err)
	}
	return ok(i18n.Tp(ctx, "QuestionsRemoved", removed), publicView(e)), nil
}

// DeleteSection removes an empty section from a draft exam.
func (s *Service) DeleteSection(ctx context.Context, examID string, sectionIndex int) (model.Result, error) {
	e, err := s.mutateDraft(ctx, examID, func(e *model.Exam) (*docstore.Patch, []docstore.Op, error) {
		if err := checkSectionIndex(e, sectionIndex); err != nil {
			return nil, nil, err
		}
		if n := len(e.QuestionSection[sectionIndex].Questions); n > 0 {
			return nil, nil, model.Conflict("SectionNotEmpty", fmt.Sprintf("section %d has %d questions", sectionIndex, n))
		}
		return docstore.NewPatch().Remove(sectionPath(sectionIndex)), nil, nil
	})
	if err != nil {
		return s.fail(ctx, "deleteSection", err)
	}
	return ok(i18n.T(ctx, "SectionDeleted"), publicView(e)), nil
}
