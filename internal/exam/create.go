package exam

import (
	"context"
	"errors"
	"strings"

	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
	"github.com/themastersacademy/tm-admin-sub000/internal/i18n"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// CreateExamInput describes a new exam. Which reference is required depends on Type.
type CreateExamInput struct {
	Type      model.ExamType `json:"type"`
	Title     string         `json:"title"`
	GoalID    string         `json:"goalID,omitempty"`
	GroupID   string         `json:"groupID,omitempty"`
	BatchList []string       `json:"batchList,omitempty"`
}

// CreateExam writes a new draft exam. Scheduled exams get one junction record
// per batch in the same transaction as the exam itself.
func (s *Service) CreateExam(ctx context.Context, in CreateExamInput) (model.Result, error) {
	e, err := s.createExam(ctx, in)
	if err != nil {
		return s.fail(ctx, "createExam", err)
	}
	return ok(i18n.T(ctx, "ExamCreated"), publicView(e)), nil
}

func (s *Service) createExam(ctx context.Context, in CreateExamInput) (*model.Exam, error) {
	if !in.Type.Valid() {
		return nil, model.Validation("InvalidExamType", string(in.Type))
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, model.Validation("MissingTitle", "title is required")
	}

	now := s.nowMs()
	e := &model.Exam{
		ID:              s.newID(),
		Title:           title,
		Type:            in.Type,
		CreatedAt:       now,
		UpdatedAt:       now,
		QuestionSection: []model.Section{},
		AnswerList:      []model.AnswerEntry{},
	}

	switch in.Type {
	case model.ExamTypeMock:
		if in.GoalID == "" {
			return nil, model.Validation("MissingGoalID", "goalID is required for mock exams")
		}
		e.GoalID = in.GoalID
		st := model.DefaultSettings()
		e.Settings = &st

	case model.ExamTypeGroup:
		if in.GoalID == "" {
			return nil, model.Validation("MissingGoalID", "goalID is required for group exams")
		}
		if in.GroupID == "" {
			return nil, model.Validation("MissingGroupID", "groupID is required for group exams")
		}
		var g model.ExamGroup
		err := s.docs.Get(ctx, s.keys.group(in.GroupID), &g)
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NotFound("GroupNotFound", in.GroupID)
		}
		if err != nil {
			return nil, err
		}
		e.GoalID = in.GoalID
		e.GroupID = in.GroupID
		e.Settings = inheritSettings(g.Settings)

	case model.ExamTypeScheduled:
		batches := cleanBatchList(in.BatchList)
		if len(batches) == 0 {
			return nil, model.Validation("MissingBatchList", "batchList is required for scheduled exams")
		}
		if err := ValidateBatchListLimit(batches); err != nil {
			return nil, err
		}
		e.BatchList = batches
		st := model.DefaultSettings()
		e.Settings = &st

		ops := make([]docstore.Op, 0, len(batches)+1)
		ops = append(ops, docstore.PutOp(s.keys.exam(e.ID), e, docstore.ItemNotExists()))
		for _, b := range batches {
			ops = append(ops, docstore.PutOp(s.keys.batchExam(b, e.ID), s.junction(b, e, now), docstore.ItemNotExists()))
		}
		if err := s.docs.TransactWrite(ctx, ops); err != nil {
			return nil, err
		}
		return e, nil
	}

	if err := s.docs.Put(ctx, s.keys.exam(e.ID), e, docstore.ItemNotExists()); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) junction(batchID string, e *model.Exam, now int64) model.BatchExam {
	return model.BatchExam{BatchID: batchID, ExamID: e.ID, Title: e.Title, CreatedAt: now, UpdatedAt: now}
}

// inheritSettings copies group defaults so later edits to the exam do not
// alias the group's values.
func inheritSettings(src *model.Settings) *model.Settings {
	st := model.DefaultSettings()
	if src != nil {
		st = *src
		if src.MCoinReward != nil {
			r := *src.MCoinReward
			st.MCoinReward = &r
		} else {
			st.MCoinReward = &model.CoinReward{}
		}
	}
	return &st
}

// CreateExamGroupInput describes a new exam group.
type CreateExamGroupInput struct {
	GoalID   string          `json:"goalID"`
	Title    string          `json:"title"`
	Settings *model.Settings `json:"settings,omitempty"`
}

// CreateExamGroup writes the group whose settings its group exams inherit.
func (s *Service) CreateExamGroup(ctx context.Context, in CreateExamGroupInput) (model.Result, error) {
	g, err := s.createExamGroup(ctx, in)
	if err != nil {
		return s.fail(ctx, "createExamGroup", err)
	}
	return ok(i18n.T(ctx, "ExamGroupCreated"), g), nil
}

func (s *Service) createExamGroup(ctx context.Context, in CreateExamGroupInput) (*model.ExamGroup, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, model.Validation("MissingTitle", "title is required")
	}
	if in.GoalID == "" {
		return nil, model.Validation("MissingGoalID", "goalID is required for exam groups")
	}
	if in.Settings != nil {
		if err := checkCoinReward(in.Settings.MCoinReward); err != nil {
			return nil, err
		}
	}
	now := s.nowMs()
	g := &model.ExamGroup{
		ID:        s.newID(),
		GoalID:    in.GoalID,
		Title:     title,
		Settings:  inheritSettings(in.Settings),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.docs.Put(ctx, s.keys.group(g.ID), g, docstore.ItemNotExists()); err != nil {
		return nil, err
	}
	return g, nil
}
