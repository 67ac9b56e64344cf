package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
	"github.com/themastersacademy/tm-admin-sub000/internal/i18n"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
	"github.com/themastersacademy/tm-admin-sub000/internal/notify"
	"github.com/themastersacademy/tm-admin-sub000/internal/objstore"
)

type publishOutcome int

const (
	outcomeRebuilt publishOutcome = iota
	outcomeRelisted
	outcomeAlreadyLive
)

var publishMessages = map[publishOutcome]string{
	outcomeRebuilt:     "ExamPublished",
	outcomeRelisted:    "ExamRelisted",
	outcomeAlreadyLive: "ExamAlreadyLive",
}

// MarkExamAsLive publishes an exam. When nothing changed since the last
// build the existing blob is reused; otherwise a new version is validated,
// assembled, uploaded and committed.
func (s *Service) MarkExamAsLive(ctx context.Context, examID string) (model.Result, error) {
	ptr, outcome, err := s.publish(ctx, examID)
	if err != nil {
		return s.fail(ctx, "markExamAsLive", err)
	}
	return ok(i18n.T(ctx, publishMessages[outcome]), ptr), nil
}

func pointerOf(e *model.Exam) model.LivePointer {
	p := model.LivePointer{ExamID: e.ID, Version: e.BlobVersion}
	if e.BlobBucketKey != nil {
		p.BlobBucketKey = *e.BlobBucketKey
	}
	return p
}

func (s *Service) publish(ctx context.Context, examID string) (model.LivePointer, publishOutcome, error) {
	e, err := s.loadExam(ctx, examID)
	if err != nil {
		return model.LivePointer{}, 0, err
	}
	if e.IsLive {
		return pointerOf(e), outcomeAlreadyLive, nil
	}

	if e.BlobBucketKey != nil && e.BlobUpdatedAt >= e.UpdatedAt {
		cond := draftCondition(e).Equal("blobVersion", e.BlobVersion)
		err := s.docs.Update(ctx, s.keys.exam(examID), docstore.NewPatch().Set("isLive", true), cond)
		if errors.Is(err, model.ErrConflict) {
			return model.LivePointer{}, 0, s.explainConflict(ctx, examID)
		}
		if err != nil {
			return model.LivePointer{}, 0, err
		}
		ptr := pointerOf(e)
		slog.Info("exam relisted", "exam_id", examID, "version", ptr.Version)
		s.announce(ctx, ptr, notify.OpPublish)
		return ptr, outcomeRelisted, nil
	}

	ptr, err := s.rebuild(ctx, e)
	if err != nil {
		return model.LivePointer{}, 0, err
	}
	s.announce(ctx, ptr, notify.OpPublish)
	return ptr, outcomeRebuilt, nil
}

func (s *Service) rebuild(ctx context.Context, e *model.Exam) (model.LivePointer, error) {
	if err := ValidateForBlob(e); err != nil {
		return model.LivePointer{}, err
	}
	version := e.BlobVersion + 1
	key := BlobKey(e.ID, version)
	slog.Info("building exam blob", "exam_id", e.ID, "version", version)

	asm, err := Assemble(ctx, s.lib, e, version)
	if err != nil {
		return model.LivePointer{}, err
	}
	data, err := json.Marshal(asm.Blob)
	if err != nil {
		return model.LivePointer{}, fmt.Errorf("encode blob: %w", err)
	}
	if err := s.blobs.Put(ctx, key, data, objstore.ContentTypeJSON); err != nil {
		return model.LivePointer{}, fmt.Errorf("upload blob %s: %w", key, err)
	}
	slog.Info("exam blob uploaded", "exam_id", e.ID, "key", key, "bytes", len(data))

	now := max(s.nowMs(), e.UpdatedAt)
	patch := docstore.NewPatch().
		Set("blobVersion", version).
		Set("blobBucketKey", key).
		Set("answerList", asm.Answers).
		Set("totalSections", asm.Blob.TotalSections).
		Set("totalQuestions", asm.Blob.TotalQuestions).
		Set("totalMarks", asm.Blob.TotalMarks).
		Set("isLive", true).
		Set("blobUpdatedAt", now).
		Set("updatedAt", now)
	cond := draftCondition(e).Equal("blobVersion", e.BlobVersion)

	if err := s.docs.Update(ctx, s.keys.exam(e.ID), patch, cond); err != nil {
		slog.Error("exam publish commit failed", "exam_id", e.ID, "key", key, "error", err)
		s.rollbackBlob(ctx, e.ID, key)
		if errors.Is(err, model.ErrConflict) {
			return model.LivePointer{}, s.explainConflict(ctx, e.ID)
		}
		return model.LivePointer{}, fmt.Errorf("commit exam %s version %d: %w", e.ID, version, err)
	}
	return model.LivePointer{ExamID: e.ID, Version: version, BlobBucketKey: key}, nil
}

// rollbackBlob deletes an uploaded blob whose commit failed. A concurrent
// publisher of the same version may have committed that key, in which case
// the blob is kept. Delete failures are logged only: an unreferenced blob is
// harmless.
func (s *Service) rollbackBlob(ctx context.Context, examID, key string) {
	var cur model.Exam
	if err := s.docs.Get(ctx, s.keys.exam(examID), &cur); err == nil &&
		cur.BlobBucketKey != nil && *cur.BlobBucketKey == key {
		slog.Warn("blob committed by another publisher, keeping it", "exam_id", examID, "key", key)
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.Error("rollback blob delete failed", "exam_id", examID, "key", key, "error", err)
		return
	}
	slog.Info("rolled back exam blob", "exam_id", examID, "key", key)
}

// MakeExamUnlive takes a live exam down. It never force-flips: a missing or
// draft exam is a conflict.
func (s *Service) MakeExamUnlive(ctx context.Context, examID string) (model.Result, error) {
	if err := s.unpublish(ctx, examID); err != nil {
		return s.fail(ctx, "makeExamUnlive", err)
	}
	return ok(i18n.T(ctx, "ExamUnpublished"), map[string]any{"examID": examID}), nil
}

func (s *Service) unpublish(ctx context.Context, examID string) error {
	if examID == "" {
		return model.Validation("MissingExamID", "examID is required")
	}
	cond := docstore.ItemExists().Equal("isLive", true)
	err := s.docs.Update(ctx, s.keys.exam(examID), docstore.NewPatch().Set("isLive", false), cond)
	if errors.Is(err, model.ErrConflict) {
		var cur model.Exam
		gerr := s.docs.Get(ctx, s.keys.exam(examID), &cur)
		if errors.Is(gerr, model.ErrNotFound) {
			return model.Conflict("ExamNotFound", examID)
		}
		return model.Conflict("ExamNotLive", examID)
	}
	if err != nil {
		return err
	}
	slog.Info("exam unpublished", "exam_id", examID)
	s.announce(ctx, model.LivePointer{ExamID: examID}, notify.OpUnpublish)
	return nil
}

// announce updates the live index and emits an event. Both are best-effort.
func (s *Service) announce(ctx context.Context, ptr model.LivePointer, op string) {
	if s.live != nil {
		var err error
		if op == notify.OpPublish {
			err = s.live.SetLive(ctx, ptr)
		} else {
			err = s.live.ClearLive(ctx, ptr.ExamID)
		}
		if err != nil {
			slog.Warn("live index update failed", "exam_id", ptr.ExamID, "operation", op, "error", err)
		}
	}
	ev := notify.Event{ExamID: ptr.ExamID, Operation: op, Version: ptr.Version, BlobKey: ptr.BlobBucketKey, At: s.nowMs()}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("exam event not delivered", "exam_id", ptr.ExamID, "operation", op, "error", err)
	}
}

// LivePointer reports which blob a live exam serves. The exam record decides;
// the live index is brought back in line with it when they disagree.
func (s *Service) LivePointer(ctx context.Context, examID string) (model.Result, error) {
	ptr, err := s.livePointer(ctx, examID)
	if err != nil {
		return s.fail(ctx, "livePointer", err)
	}
	return ok(i18n.T(ctx, "LivePointerFetched"), ptr), nil
}

func (s *Service) livePointer(ctx context.Context, examID string) (model.LivePointer, error) {
	e, err := s.loadExam(ctx, examID)
	if err != nil {
		return model.LivePointer{}, err
	}
	if !e.IsLive {
		if s.live != nil {
			// An unpublish whose ClearLive failed leaves a stale entry behind.
			if _, err := s.live.GetLive(ctx, examID); err == nil {
				if err := s.live.ClearLive(ctx, examID); err != nil {
					slog.Warn("live index cleanup failed", "exam_id", examID, "error", err)
				}
			}
		}
		return model.LivePointer{}, model.Conflict("ExamNotLive", examID)
	}
	ptr := pointerOf(e)
	if s.live != nil {
		cached, err := s.live.GetLive(ctx, examID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			slog.Warn("live index read failed", "exam_id", examID, "error", err)
		}
		if err != nil || cached != ptr {
			if err := s.live.SetLive(ctx, ptr); err != nil {
				slog.Warn("live index update failed", "exam_id", examID, "error", err)
			}
		}
	}
	return ptr, nil
}
