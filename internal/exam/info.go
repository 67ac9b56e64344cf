package exam

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
	"github.com/themastersacademy/tm-admin-sub000/internal/i18n"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// GetExam returns the structural record without its answer list.
func (s *Service) GetExam(ctx context.Context, examID string) (model.Result, error) {
	e, err := s.loadExam(ctx, examID)
	if err != nil {
		return s.fail(ctx, "getExam", err)
	}
	return ok(i18n.T(ctx, "ExamFetched"), publicView(e)), nil
}

// BasicInfoInput patches title and schedule fields. Nil fields are left alone.
type BasicInfoInput struct {
	ExamID         string  `json:"examID"`
	Title          *string `json:"title,omitempty"`
	Duration       *int64  `json:"duration,omitempty"`
	StartTimeStamp *int64  `json:"startTimeStamp,omitempty"`
	IsLifeTime     *bool   `json:"isLifeTime,omitempty"`
	EndTimeStamp   *int64  `json:"endTimeStamp,omitempty"`
}

// UpdateExamBasicInfo edits the title and schedule of a draft exam. Making an
// exam lifetime clears its end time.
func (s *Service) UpdateExamBasicInfo(ctx context.Context, in BasicInfoInput) (model.Result, error) {
	e, err := s.mutateDraft(ctx, in.ExamID, func(e *model.Exam) (*docstore.Patch, []docstore.Op, error) {
		return s.basicInfoChange(e, in)
	})
	if err != nil {
		return s.fail(ctx, "updateExamBasicInfo", err)
	}
	return ok(i18n.T(ctx, "ExamInfoUpdated"), publicView(e)), nil
}

// basicInfoChange also rewrites the title copied onto each batch junction of a
// scheduled exam, in the same transaction as the exam record.
func (s *Service) basicInfoChange(e *model.Exam, in BasicInfoInput) (*docstore.Patch, []docstore.Op, error) {
	if in.Title == nil && in.Duration == nil && in.StartTimeStamp == nil && in.IsLifeTime == nil && in.EndTimeStamp == nil {
		return nil, nil, model.Validation("NothingToUpdate", "no fields given")
	}
	p := docstore.NewPatch()
	var ops []docstore.Op
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, nil, model.Validation("MissingTitle", "title cannot be empty")
		}
		p.Set("title", title)
		if title != e.Title {
			ops = s.junctionTitleOps(e, title)
		}
	}
	if in.Duration != nil {
		if *in.Duration <= 0 {
			return nil, nil, model.Validation("InvalidSchedule", "duration must be positive")
		}
		p.Set("duration", *in.Duration)
	}
	start := e.StartTimeStamp
	if in.StartTimeStamp != nil {
		if *in.StartTimeStamp < 0 {
			return nil, nil, model.Validation("InvalidSchedule", "startTimeStamp cannot be negative")
		}
		start = in.StartTimeStamp
		p.Set("startTimeStamp", *in.StartTimeStamp)
	}

	lifetime := e.IsLifeTime
	if in.IsLifeTime != nil {
		lifetime = *in.IsLifeTime
		p.Set("isLifeTime", lifetime)
	}
	switch {
	case lifetime:
		if in.EndTimeStamp != nil {
			return nil, nil, model.Validation("InvalidSchedule", "a lifetime exam has no end time")
		}
		if e.EndTimeStamp != nil {
			p.Remove("endTimeStamp")
		}
	case in.EndTimeStamp != nil:
		if start != nil && *in.EndTimeStamp <= *start {
			return nil, nil, model.Validation("InvalidSchedule", "endTimeStamp must be after startTimeStamp")
		}
		p.Set("endTimeStamp", *in.EndTimeStamp)
	}
	return p, ops, nil
}

func (s *Service) junctionTitleOps(e *model.Exam, title string) []docstore.Op {
	if e.Type != model.ExamTypeScheduled {
		return nil
	}
	now := s.nowMs()
	ops := make([]docstore.Op, 0, len(e.BatchList))
	for _, b := range e.BatchList {
		touch := docstore.NewPatch().
			Set("batchID", b).
			Set("examID", e.ID).
			Set("title", title).
			Set("updatedAt", now)
		ops = append(ops, docstore.UpdateOp(s.keys.batchExam(b, e.ID), touch, docstore.Condition{}))
	}
	return ops
}

// CoinRewardPatch changes individual coin reward fields.
type CoinRewardPatch struct {
	IsEnabled        *bool    `json:"isEnabled,omitempty"`
	ConditionPercent *float64 `json:"conditionPercent,omitempty"`
	RewardCoin       *float64 `json:"rewardCoin,omitempty"`
}

// SettingsPatch changes individual settings flags. Nil fields are left alone.
type SettingsPatch struct {
	IsShowResult     *bool            `json:"isShowResult,omitempty"`
	IsAntiCheat      *bool            `json:"isAntiCheat,omitempty"`
	IsFullScreenMode *bool            `json:"isFullScreenMode,omitempty"`
	IsProTest        *bool            `json:"isProTest,omitempty"`
	IsRandomQuestion *bool            `json:"isRandomQuestion,omitempty"`
	MCoinReward      *CoinRewardPatch `json:"mCoinReward,omitempty"`
}

// SettingsInput targets one exam with a settings patch.
type SettingsInput struct {
	ExamID   string        `json:"examID"`
	Settings SettingsPatch `json:"settings"`
}

func (p SettingsPatch) fields() map[string]any {
	out := map[string]any{}
	put := func(name string, v *bool) {
		if v != nil {
			out[name] = *v
		}
	}
	put("isShowResult", p.IsShowResult)
	put("isAntiCheat", p.IsAntiCheat)
	put("isFullScreenMode", p.IsFullScreenMode)
	put("isProTest", p.IsProTest)
	put("isRandomQuestion", p.IsRandomQuestion)
	if r := p.MCoinReward; r != nil {
		if r.IsEnabled != nil {
			out["mCoinReward.isEnabled"] = *r.IsEnabled
		}
		if r.ConditionPercent != nil {
			out["mCoinReward.conditionPercent"] = *r.ConditionPercent
		}
		if r.RewardCoin != nil {
			out["mCoinReward.rewardCoin"] = *r.RewardCoin
		}
	}
	return out
}

func checkCoinReward(r *model.CoinReward) error {
	if r == nil {
		return nil
	}
	return checkCoinRewardValues(&r.ConditionPercent, &r.RewardCoin)
}

func checkCoinRewardValues(percent, coins *float64) error {
	if percent != nil && (!finite(*percent) || *percent < 0 || *percent > 100) {
		return model.Validation("InvalidSettings", "conditionPercent must be between 0 and 100")
	}
	if coins != nil && (!finite(*coins) || *coins < 0) {
		return model.Validation("InvalidSettings", "rewardCoin cannot be negative")
	}
	return nil
}

// UpdateExamSettings patches settings flags of a draft exam; only supplied
// fields change.
func (s *Service) UpdateExamSettings(ctx context.Context, in SettingsInput) (model.Result, error) {
	e, err := s.mutateDraft(ctx, in.ExamID, func(e *model.Exam) (*docstore.Patch, []docstore.Op, error) {
		return settingsPatch(e, in.Settings)
	})
	if err != nil {
		return s.fail(ctx, "updateExamSettings", err)
	}
	return ok(i18n.T(ctx, "SettingsUpdated"), publicView(e)), nil
}

func settingsPatch(e *model.Exam, sp SettingsPatch) (*docstore.Patch, []docstore.Op, error) {
	fields := sp.fields()
	if len(fields) == 0 {
		return nil, nil, model.Validation("NothingToUpdate", "no settings given")
	}
	if r := sp.MCoinReward; r != nil {
		if err := checkCoinRewardValues(r.ConditionPercent, r.RewardCoin); err != nil {
			return nil, nil, err
		}
	}

	// Without a stored settings map (or reward map) there is no path to patch
	// into, so the merged object is written whole.
	if e.Settings == nil || e.Settings.MCoinReward == nil {
		merged := inheritSettings(e.Settings)
		applySettings(merged, sp)
		return docstore.NewPatch().Set("settings", merged), nil, nil
	}
	p := docstore.NewPatch()
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		p.Set("settings."+name, fields[name])
	}
	return p, nil, nil
}

func applySettings(st *model.Settings, sp SettingsPatch) {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&st.IsShowResult, sp.IsShowResult)
	set(&st.IsAntiCheat, sp.IsAntiCheat)
	set(&st.IsFullScreenMode, sp.IsFullScreenMode)
	set(&st.IsProTest, sp.IsProTest)
	set(&st.IsRandomQuestion, sp.IsRandomQuestion)
	if r := sp.MCoinReward; r != nil {
		set(&st.MCoinReward.IsEnabled, r.IsEnabled)
		if r.ConditionPercent != nil {
			st.MCoinReward.ConditionPercent = *r.ConditionPercent
		}
		if r.RewardCoin != nil {
			st.MCoinReward.RewardCoin = *r.RewardCoin
		}
	}
}

// BatchListInput replaces the batch list of a scheduled exam.
type BatchListInput struct {
	ExamID    string   `json:"examID"`
	BatchList []string `json:"batchList"`
}

// UpdateBatchListExamBasicInfo replaces the batches of a scheduled exam.
// Junction records are inserted, deleted or touched to match the new list in
// the same transaction as the exam update.
func (s *Service) UpdateBatchListExamBasicInfo(ctx context.Context, in BatchListInput) (model.Result, error) {
	e, err := s.mutateDraft(ctx, in.ExamID, func(e *model.Exam) (*docstore.Patch, []docstore.Op, error) {
		return s.batchListChange(e, in.BatchList)
	})
	if err != nil {
		return s.fail(ctx, "updateBatchListExamBasicInfo", err)
	}
	return ok(i18n.T(ctx, "BatchListUpdated"), publicView(e)), nil
}

func (s *Service) batchListChange(e *model.Exam, list []string) (*docstore.Patch, []docstore.Op, error) {
	if e.Type != model.ExamTypeScheduled {
		return nil, nil, model.Validation("NotScheduledExam", string(e.Type))
	}
	next := cleanBatchList(list)
	if len(next) == 0 {
		return nil, nil, model.Validation("MissingBatchList", "batchList cannot be empty")
	}
	if err := ValidateBatchListLimit(next); err != nil {
		return nil, nil, err
	}

	now := s.nowMs()
	old := make(map[string]bool, len(e.BatchList))
	for _, b := range e.BatchList {
		old[b] = true
	}
	var ops []docstore.Op
	for _, b := range next {
		if old[b] {
			touch := docstore.NewPatch().
				Set("batchID", b).
				Set("examID", e.ID).
				Set("title", e.Title).
				Set("updatedAt", now)
			ops = append(ops, docstore.UpdateOp(s.keys.batchExam(b, e.ID), touch, docstore.Condition{}))
			delete(old, b)
			continue
		}
		ops = append(ops, docstore.PutOp(s.keys.batchExam(b, e.ID), s.junction(b, e, now), docstore.Condition{}))
	}
	for _, b := range e.BatchList {
		if old[b] {
			ops = append(ops, docstore.DeleteOp(s.keys.batchExam(b, e.ID), docstore.Condition{}))
		}
	}
	if len(ops)+1 > docstore.MaxTransactItems {
		return nil, nil, model.Validation("BatchListTooLarge",
			fmt.Sprintf("change needs %d writes, at most %d allowed", len(ops)+1, docstore.MaxTransactItems))
	}
	return docstore.NewPatch().Set("batchList", next), ops, nil
}
