package exam

import (
	"fmt"
	"math"
	"strings"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// MaxBatchList is the most batches a scheduled exam may be assigned. The exam
// record and one junction per batch must fit in a single transaction.
const MaxBatchList = 99

func incomplete(format string, args ...any) error {
	return model.Validation("ExamIncomplete", fmt.Sprintf(format, args...))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ValidateForBlob checks that e is complete enough to publish. It stops at
// the first problem and touches nothing outside e.
func ValidateForBlob(e *model.Exam) error {
	if strings.TrimSpace(e.Title) == "" {
		return incomplete("title is missing")
	}
	if !e.Type.Valid() {
		return incomplete("type %q is not a valid exam type", e.Type)
	}
	if e.Duration == nil {
		return incomplete("duration is missing")
	}
	if e.StartTimeStamp == nil {
		return incomplete("startTimeStamp is missing")
	}

	if len(e.QuestionSection) == 0 {
		return incomplete("exam has no sections")
	}
	for i, sec := range e.QuestionSection {
		if strings.TrimSpace(sec.Title) == "" {
			return incomplete("questionSection[%d].title is missing", i)
		}
		if !finite(sec.PMark) || !finite(sec.NMark) {
			return incomplete("questionSection[%d] marks are not numbers", i)
		}
		if len(sec.Questions) == 0 {
			return incomplete("questionSection[%d] has no questions", i)
		}
		for j, q := range sec.Questions {
			if q.QuestionID == "" {
				return incomplete("questionSection[%d].questions[%d].questionID is missing", i, j)
			}
			if q.SubjectID == "" {
				return incomplete("questionSection[%d].questions[%d].subjectID is missing", i, j)
			}
		}
	}

	if e.Settings == nil {
		return incomplete("settings are missing")
	}
	r := e.Settings.MCoinReward
	if r == nil {
		return incomplete("settings.mCoinReward is missing")
	}
	if !finite(r.ConditionPercent) || !finite(r.RewardCoin) {
		return incomplete("settings.mCoinReward values are not numbers")
	}
	return nil
}

// ValidateBatchListLimit rejects batch lists that cannot be written in one transaction.
func ValidateBatchListLimit(batchList []string) error {
	if len(batchList) > MaxBatchList {
		return model.Validation("BatchListTooLarge",
			fmt.Sprintf("%d batches given, at most %d allowed", len(batchList), MaxBatchList))
	}
	return nil
}

// cleanBatchList trims, drops blanks and removes repeats, keeping order.
func cleanBatchList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, b := range in {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}
