// Package exam implements exam authoring and the publish pipeline: structural
// edits on draft exams, validation, blob assembly, and the live/draft state
// machine backed by a document store and an object store.
package exam

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/themastersacademy/tm-admin-sub000/internal/cache"
	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
	"github.com/themastersacademy/tm-admin-sub000/internal/i18n"
	"github.com/themastersacademy/tm-admin-sub000/internal/library"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
	"github.com/themastersacademy/tm-admin-sub000/internal/notify"
	"github.com/themastersacademy/tm-admin-sub000/internal/objstore"
)

// Deps are the collaborators a Service needs. Notifier and Live are optional.
type Deps struct {
	Docs      docstore.Store
	Blobs     objstore.Store
	Library   library.Library
	Notifier  notify.Notifier
	Live      cache.LiveIndex
	ExamTable string
	Now       func() time.Time
	NewID     func() string
}

type Service struct {
	docs     docstore.Store
	blobs    objstore.Store
	lib      library.Library
	notifier notify.Notifier
	live     cache.LiveIndex
	keys     keys
	now      func() time.Time
	newID    func() string
}

func New(d Deps) *Service {
	s := &Service{
		docs:     d.Docs,
		blobs:    d.Blobs,
		lib:      d.Library,
		notifier: d.Notifier,
		live:     d.Live,
		keys:     keys{table: d.ExamTable},
		now:      d.Now,
		newID:    d.NewID,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

func (s *Service) nowMs() int64 {
	return s.now().UnixMilli()
}

// loadExam reads the structural record, mapping absence to ExamNotFound.
func (s *Service) loadExam(ctx context.Context, examID string) (*model.Exam, error) {
	if examID == "" {
		return nil, model.Validation("MissingExamID", "examID is required")
	}
	var e model.Exam
	err := s.docs.Get(ctx, s.keys.exam(examID), &e)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.NotFound("ExamNotFound", examID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// editStamp returns the updatedAt value for an edit of e. It always moves
// past both updatedAt and blobUpdatedAt, so a later publish sees the edit
// even when the clock has not advanced.
func (s *Service) editStamp(e *model.Exam) int64 {
	return max(s.nowMs(), e.UpdatedAt+1, e.BlobUpdatedAt+1)
}

// draftCondition holds while e is still the stored, non-live version.
func draftCondition(e *model.Exam) docstore.Condition {
	return docstore.ItemExists().
		Equal("isLive", false).
		Equal("updatedAt", e.UpdatedAt)
}

// draftEdit computes the change for one structural mutation. A nil patch means
// there is nothing to write. ops are written in the same transaction.
type draftEdit func(e *model.Exam) (patch *docstore.Patch, ops []docstore.Op, err error)

// mutateDraft applies edit to a draft exam. Every structural mutation goes
// through here, which is what keeps updatedAt bumped on each change.
func (s *Service) mutateDraft(ctx context.Context, examID string, edit draftEdit) (*model.Exam, error) {
	e, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if e.IsLive {
		return nil, model.Conflict("ExamIsLive", examID)
	}
	patch, ops, err := edit(e)
	if err != nil {
		return nil, err
	}
	if patch == nil {
		return e, nil
	}
	stamp := s.editStamp(e)
	patch.Set("updatedAt", stamp)

	key := s.keys.exam(examID)
	if len(ops) == 0 {
		err = s.docs.Update(ctx, key, patch, draftCondition(e))
	} else {
		all := append([]docstore.Op{docstore.UpdateOp(key, patch, draftCondition(e))}, ops...)
		err = s.docs.TransactWrite(ctx, all)
	}
	if errors.Is(err, model.ErrConflict) {
		return nil, s.explainConflict(ctx, examID)
	}
	if err != nil {
		return nil, err
	}
	return s.loadExam(ctx, examID)
}

// explainConflict re-reads the exam after a failed conditional write to tell
// the caller why it failed.
func (s *Service) explainConflict(ctx context.Context, examID string) error {
	e, err := s.loadExam(ctx, examID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return model.Conflict("ExamNotFound", examID)
	case err != nil:
		return model.Conflict("ExamModified", examID)
	case e.IsLive:
		return model.Conflict("ExamIsLive", examID)
	}
	return model.Conflict("ExamModified", examID)
}

func ok(msg string, data any) model.Result {
	return model.Result{Success: true, Message: msg, Data: data}
}

// fail turns expected failures into an envelope. Anything else is logged
// and returned for the transport to report.
func (s *Service) fail(ctx context.Context, op string, err error) (model.Result, error) {
	kind := model.KindName(err)
	if kind == "" {
		slog.Error("exam operation failed", "op", op, "error", err)
		return model.Result{}, err
	}
	var me *model.Error
	if !errors.As(err, &me) {
		me = &model.Error{Code: fallbackCodes[kind], Detail: err.Error()}
	}
	slog.Debug("exam operation rejected", "op", op, "kind", kind, "code", me.Code, "detail", me.Detail)
	return model.Result{
		Success: false,
		Message: i18n.Td(ctx, me.Code, map[string]any{"Detail": me.Detail}),
		Data:    me.Data,
		Kind:    kind,
	}, nil
}

var fallbackCodes = map[string]string{
	"validation": "InvalidRequest",
	"not_found":  "NotFound",
	"conflict":   "ExamModified",
}

// publicView hides grading data from admin reads.
func publicView(e *model.Exam) *model.Exam {
	out := *e
	out.AnswerList = nil
	return &out
}
